package pipeline

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/nilansh-07/FintelAI/constants"
	"github.com/nilansh-07/FintelAI/internal/entity"
)

// merge sets the document status, record, warnings and errors from
// out.Pages, which must already be in page order.
func merge(out *entity.DocumentResult) {
	var ok []entity.PageResult
	for _, p := range out.Pages {
		if p.Succeeded() {
			ok = append(ok, p)
			continue
		}
		out.Errors = append(out.Errors, p.Errors...)
	}

	switch {
	case len(out.Pages) > 0 && len(ok) == len(out.Pages):
		out.Status = constants.DocumentSuccess
	case len(ok) > 0:
		out.Status = constants.DocumentPartial
	default:
		out.Status = constants.DocumentFailure
		return
	}

	best := bestPage(ok)
	rec := best.Record.Clone()
	rec.SourcePage = &best.Index
	rec.Provenance = map[string]entity.FieldSource{}
	src := func(p entity.PageResult) entity.FieldSource {
		return entity.FieldSource{SourcePage: p.Index, Confidence: p.Record.Confidence}
	}
	rec.Provenance["invoice_number"] = src(best)
	rec.Provenance["date"] = src(best)
	rec.Provenance["total_amount"] = src(best)
	if rec.Currency != "" {
		rec.Provenance["currency"] = src(best)
	}
	if len(rec.LineItems) > 0 {
		rec.Provenance["line_items"] = src(best)
	}
	for k := range rec.Amounts {
		rec.Provenance["amounts."+k] = src(best)
	}

	for _, p := range ok {
		if p.Index == best.Index {
			continue
		}
		other := p.Record
		out.Warnings = append(out.Warnings, conflicts(best, p)...)

		if rec.Currency == "" && other.Currency != "" {
			rec.Currency = other.Currency
			rec.Provenance["currency"] = src(p)
		}
		if len(best.Record.LineItems) == 0 && len(other.LineItems) > 0 {
			rec.LineItems = append(rec.LineItems, other.LineItems...)
			if _, seen := rec.Provenance["line_items"]; !seen {
				rec.Provenance["line_items"] = src(p)
			}
		}
		for _, k := range sortedKeys(other.Amounts) {
			if _, have := rec.Amounts[k]; have {
				continue
			}
			if rec.Amounts == nil {
				rec.Amounts = map[string]float64{}
			}
			rec.Amounts[k] = other.Amounts[k]
			rec.Provenance["amounts."+k] = src(p)
		}
	}
	out.Record = rec
}

// bestPage ranks by completeness, then confidence, then lowest page index.
func bestPage(pages []entity.PageResult) entity.PageResult {
	best := pages[0]
	for _, p := range pages[1:] {
		bc, pc := best.Record.Completeness(), p.Record.Completeness()
		switch {
		case pc > bc:
			best = p
		case pc == bc && p.Record.ConfidenceOrZero() > best.Record.ConfidenceOrZero():
			best = p
		case pc == bc && p.Record.ConfidenceOrZero() == best.Record.ConfidenceOrZero() && p.Index < best.Index:
			best = p
		}
	}
	return best
}

func conflicts(best, p entity.PageResult) []string {
	a, b := best.Record, p.Record
	var out []string
	differ := func(field, chosen, other string) {
		out = append(out, fmt.Sprintf("page %d %s %q differs from %q on page %d", p.Index, field, other, chosen, best.Index))
	}
	if b.InvoiceNumber != "" && b.InvoiceNumber != a.InvoiceNumber {
		differ("invoice_number", a.InvoiceNumber, b.InvoiceNumber)
	}
	if b.Date != "" && b.Date != a.Date {
		differ("date", a.Date, b.Date)
	}
	if b.TotalAmount != a.TotalAmount {
		differ("total_amount", formatAmount(a.TotalAmount), formatAmount(b.TotalAmount))
	}
	if a.Currency != "" && b.Currency != "" && a.Currency != b.Currency {
		differ("currency", a.Currency, b.Currency)
	}
	return out
}

func formatAmount(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
