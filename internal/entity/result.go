package entity

import (
	"time"

	"github.com/nilansh-07/FintelAI/constants"
)

// PageResult is the terminal outcome for one page.
type PageResult struct {
	Index       int                        `json:"index"`
	PageHash    string                     `json:"page_hash"`
	Status      constants.ValidationStatus `json:"status"`
	Record      *FinancialRecord           `json:"record,omitempty"`
	Errors      []ErrorDetail              `json:"errors,omitempty"`
	FieldErrors []FieldError               `json:"field_errors,omitempty"`
	Repairs     []string                   `json:"repairs,omitempty"`
	Attempts    int                        `json:"attempts"`
	LatencyMS   int64                      `json:"latency_ms"`
	Cached      bool                       `json:"cached"`
}

// Succeeded reports whether the page produced a record.
func (p PageResult) Succeeded() bool {
	return p.Status.Succeeded() && p.Record != nil
}

// DocumentResult aggregates every page of one document.
type DocumentResult struct {
	DocumentID  string                   `json:"document_id"`
	Status      constants.DocumentStatus `json:"status"`
	Pages       []PageResult             `json:"pages"`
	Record      *FinancialRecord         `json:"record,omitempty"`
	Warnings    []string                 `json:"warnings,omitempty"`
	Errors      []ErrorDetail            `json:"errors,omitempty"`
	Template    string                   `json:"template"`
	ProcessedAt time.Time                `json:"processed_at"`
	ElapsedMS   int64                    `json:"elapsed_ms"`
}
