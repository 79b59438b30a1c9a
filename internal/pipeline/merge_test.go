package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nilansh-07/FintelAI/constants"
	"github.com/nilansh-07/FintelAI/internal/entity"
)

func conf(v float64) *float64 { return &v }

func page(i int, rec *entity.FinancialRecord) entity.PageResult {
	return entity.PageResult{Index: i, Status: constants.StatusValid, Record: rec}
}

func TestMergePicksMostCompleteRecord(t *testing.T) {
	out := entity.DocumentResult{Pages: []entity.PageResult{
		page(0, &entity.FinancialRecord{InvoiceNumber: "INV-1", Date: "2024-01-01"}),
		page(1, &entity.FinancialRecord{InvoiceNumber: "INV-1", Date: "2024-01-01", TotalAmount: 99, Currency: "EUR"}),
		page(2, &entity.FinancialRecord{InvoiceNumber: "INV-1", Date: "2024-01-01", TotalAmount: 99}),
	}}
	merge(&out)

	assert.Equal(t, constants.DocumentSuccess, out.Status)
	require.NotNil(t, out.Record)
	assert.Equal(t, 1, *out.Record.SourcePage)
	assert.Equal(t, 1, out.Record.Provenance["total_amount"].SourcePage)
	assert.Equal(t, []string{`page 0 total_amount "0" differs from "99" on page 1`}, out.Warnings)
}

func TestMergeTieBreaksOnConfidenceThenIndex(t *testing.T) {
	out := entity.DocumentResult{Pages: []entity.PageResult{
		page(0, &entity.FinancialRecord{InvoiceNumber: "A", Date: "2024-01-01", TotalAmount: 1, Confidence: conf(0.5)}),
		page(1, &entity.FinancialRecord{InvoiceNumber: "B", Date: "2024-01-01", TotalAmount: 1, Confidence: conf(0.9)}),
		page(2, &entity.FinancialRecord{InvoiceNumber: "C", Date: "2024-01-01", TotalAmount: 1, Confidence: conf(0.9)}),
	}}
	merge(&out)

	assert.Equal(t, "B", out.Record.InvoiceNumber)
	assert.Len(t, out.Warnings, 2)
	assert.Equal(t, 0.9, *out.Record.Provenance["invoice_number"].Confidence)
}

func TestMergeConcatenatesLineItemsAndFillsGaps(t *testing.T) {
	out := entity.DocumentResult{Pages: []entity.PageResult{
		page(0, &entity.FinancialRecord{InvoiceNumber: "X", Date: "2024-01-01", TotalAmount: 30, Amounts: map[string]float64{"Invoice Amount": 27, "Tax Amount": 3, "Total Amount": 30}}),
		page(1, &entity.FinancialRecord{InvoiceNumber: "X", Date: "2024-01-01", TotalAmount: 30, Currency: "USD",
			LineItems: []entity.LineItem{{Description: "a"}}, Amounts: map[string]float64{"Discount Amount": 2}}),
		{Index: 2, Status: constants.StatusInvalid, Errors: []entity.ErrorDetail{{Code: "VALIDATION_ERROR"}}},
		page(3, &entity.FinancialRecord{InvoiceNumber: "X", Date: "2024-01-01", TotalAmount: 30,
			LineItems: []entity.LineItem{{Description: "b"}, {Description: "c"}}}),
	}}
	merge(&out)

	assert.Equal(t, constants.DocumentPartial, out.Status)
	rec := out.Record
	assert.Equal(t, 0, *rec.SourcePage)
	assert.Equal(t, "USD", rec.Currency)
	assert.Equal(t, 1, rec.Provenance["currency"].SourcePage)
	assert.Equal(t, []entity.LineItem{{Description: "a"}, {Description: "b"}, {Description: "c"}}, rec.LineItems)
	assert.Equal(t, 1, rec.Provenance["line_items"].SourcePage)
	assert.Equal(t, map[string]float64{"Invoice Amount": 27, "Tax Amount": 3, "Total Amount": 30, "Discount Amount": 2}, rec.Amounts)
	assert.Equal(t, 1, rec.Provenance["amounts.Discount Amount"].SourcePage)
	assert.Empty(t, out.Warnings)
	assert.Len(t, out.Errors, 1)
}

func TestMergeDoesNotMutatePageRecords(t *testing.T) {
	first := &entity.FinancialRecord{InvoiceNumber: "X", Date: "2024-01-01", TotalAmount: 1, Amounts: map[string]float64{"A": 1}}
	out := entity.DocumentResult{Pages: []entity.PageResult{
		page(0, first),
		page(1, &entity.FinancialRecord{InvoiceNumber: "X", Date: "2024-01-01", TotalAmount: 1, Amounts: map[string]float64{"B": 2}}),
	}}
	merge(&out)
	assert.Equal(t, map[string]float64{"A": 1}, first.Amounts)
	assert.Nil(t, first.Provenance)
}

func TestMergeNoPagesIsFailure(t *testing.T) {
	out := entity.DocumentResult{}
	merge(&out)
	assert.Equal(t, constants.DocumentFailure, out.Status)
	assert.Nil(t, out.Record)
}
