package constants

import (
	"strings"
)

// DocType identifies the prompt template used for a document.
type DocType string

const (
	Invoice       DocType = "invoice"
	Receipt       DocType = "receipt"
	SalarySlip    DocType = "salary_slip"
	BankStatement DocType = "bank_statement"
	BalanceSheet  DocType = "balance_sheet"
	ProfitAndLoss DocType = "profit_and_loss"
)

const DefaultDocType = Invoice

// DocTypeConfig describes what a template asks the model for on top of the core record.
type DocTypeConfig struct {
	Label string
	// ReferenceHint and TotalHint tell the model which printed values to place
	// into invoice_number and total_amount for non-invoice documents.
	ReferenceHint string
	TotalHint     string
	Fields        []string
}

var docTypeConfigs = map[DocType]DocTypeConfig{
	Invoice: {
		Label:         "Invoice",
		ReferenceHint: "the invoice number",
		TotalHint:     "the grand total payable",
		Fields:        []string{"Invoice Amount", "Tax Amount", "Total Amount", "Discount Amount"},
	},
	Receipt: {
		Label:         "Receipt",
		ReferenceHint: "the receipt or transaction number",
		TotalHint:     "the total paid",
		Fields:        []string{"Subtotal", "Tax Amount", "Tip", "Total Amount"},
	},
	SalarySlip: {
		Label:         "Salary Slip",
		ReferenceHint: "the payslip or employee reference",
		TotalHint:     "the net salary",
		Fields:        []string{"Basic Salary", "HRA", "DA", "PF", "Net Salary", "Gross Salary"},
	},
	BankStatement: {
		Label:         "Bank Statement",
		ReferenceHint: "the account or statement number",
		TotalHint:     "the closing balance",
		Fields:        []string{"Opening Balance", "Closing Balance", "Total Credits", "Total Debits"},
	},
	BalanceSheet: {
		Label:         "Balance Sheet",
		ReferenceHint: "the company registration or report reference",
		TotalHint:     "the total assets",
		Fields:        []string{"Total Assets", "Total Liabilities", "Current Assets", "Current Liabilities", "Net Worth"},
	},
	ProfitAndLoss: {
		Label:         "Profit and Loss",
		ReferenceHint: "the report or period reference",
		TotalHint:     "the net profit",
		Fields:        []string{"Revenue", "Expenses", "Net Profit", "Gross Profit", "Operating Profit"},
	},
}

var allDocTypes = []DocType{Invoice, Receipt, SalarySlip, BankStatement, BalanceSheet, ProfitAndLoss}

func AsStringSlice() []string {
	result := make([]string, len(allDocTypes))
	for i, dt := range allDocTypes {
		result[i] = string(dt)
	}
	return result
}

// Config returns the template config; unknown types fall back to Invoice.
func (d DocType) Config() DocTypeConfig {
	if c, ok := docTypeConfigs[d]; ok {
		return c
	}
	return docTypeConfigs[Invoice]
}

// Canonicalize maps labels like "Salary Slip", "p&l" or "bank-statement" to a DocType.
func Canonicalize(input string) (DocType, bool) {
	if strings.TrimSpace(input) == "" {
		return DefaultDocType, false
	}

	normalized := strings.ToLower(strings.TrimSpace(input))
	normalized = strings.NewReplacer("-", "_", " ", "_").Replace(normalized)

	synonyms := map[string]DocType{
		"bill":                      Invoice,
		"payslip":                   SalarySlip,
		"pay_slip":                  SalarySlip,
		"statement":                 BankStatement,
		"p&l":                       ProfitAndLoss,
		"pnl":                       ProfitAndLoss,
		"p_and_l":                   ProfitAndLoss,
		"profit_and_loss_statement": ProfitAndLoss,
	}
	if dt, ok := synonyms[normalized]; ok {
		return dt, true
	}

	for _, dt := range allDocTypes {
		if normalized == string(dt) || normalized == strings.ReplaceAll(strings.ToLower(docTypeConfigs[dt].Label), " ", "_") {
			return dt, true
		}
	}
	return DefaultDocType, false
}
