package entity

import (
	"maps"
	"slices"
)

// LineItem is one row of an itemized document.
type LineItem struct {
	Description string   `json:"description"`
	Quantity    *float64 `json:"quantity,omitempty"`
	UnitPrice   *float64 `json:"unit_price,omitempty"`
	Amount      *float64 `json:"amount,omitempty"`
}

// FieldSource records which page a merged field came from.
type FieldSource struct {
	SourcePage int      `json:"source_page"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// FinancialRecord is the canonical structured output of an extraction.
type FinancialRecord struct {
	InvoiceNumber string                 `json:"invoice_number"`
	Date          string                 `json:"date"` // YYYY-MM-DD
	TotalAmount   float64                `json:"total_amount"`
	Currency      string                 `json:"currency,omitempty"`
	LineItems     []LineItem             `json:"line_items,omitempty"`
	Amounts       map[string]float64     `json:"amounts,omitempty"`
	Confidence    *float64               `json:"confidence,omitempty"`
	SourcePage    *int                   `json:"source_page,omitempty"`
	Provenance    map[string]FieldSource `json:"provenance,omitempty"`
}

// Completeness counts populated fields; used to rank candidate records.
func (r *FinancialRecord) Completeness() int {
	if r == nil {
		return 0
	}
	n := 0
	if r.InvoiceNumber != "" {
		n++
	}
	if r.Date != "" {
		n++
	}
	if r.TotalAmount != 0 {
		n++
	}
	if r.Currency != "" {
		n++
	}
	if len(r.LineItems) > 0 {
		n++
	}
	for _, v := range r.Amounts {
		if v != 0 {
			n++
		}
	}
	return n
}

// ConfidenceOrZero returns the model confidence, or 0 when absent.
func (r *FinancialRecord) ConfidenceOrZero() float64 {
	if r == nil || r.Confidence == nil {
		return 0
	}
	return *r.Confidence
}

// Clone returns a deep copy.
func (r *FinancialRecord) Clone() *FinancialRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.LineItems = slices.Clone(r.LineItems)
	out.Amounts = maps.Clone(r.Amounts)
	out.Provenance = maps.Clone(r.Provenance)
	if r.Confidence != nil {
		c := *r.Confidence
		out.Confidence = &c
	}
	if r.SourcePage != nil {
		p := *r.SourcePage
		out.SourcePage = &p
	}
	return &out
}
