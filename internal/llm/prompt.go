package llm

import (
	"encoding/json"
	"strings"

	"github.com/nilansh-07/FintelAI/constants"
)

// SystemPrompt is sent with every request regardless of template.
const SystemPrompt = "You extract structured data from financial documents. Respond with a single JSON object and nothing else."

// BuildPrompt composes the user prompt for a document template: the core
// record keys, the template's amount fields and the number formatting rules.
func BuildPrompt(dt constants.DocType) string {
	cfg := dt.Config()

	amounts := make(map[string]string, len(cfg.Fields))
	for _, f := range cfg.Fields {
		amounts[f] = "number"
	}
	amountsJSON, _ := json.Marshal(amounts)

	parts := []string{
		"Analyze this " + cfg.Label + " image. Return the output strictly as one valid JSON object.",
		`Required keys: "invoice_number" (string; ` + cfg.ReferenceHint + `), "date" (YYYY-MM-DD), "total_amount" (number; ` + cfg.TotalHint + `).`,
		`Optional keys: "currency" (3-letter ISO 4217 code), "line_items" (array of objects with "description", "quantity", "unit_price", "amount"), "confidence" (number from 0 to 1).`,
		`Also include "amounts", an object with this structure: ` + string(amountsJSON) + ".",
		"Do not include currency symbols (like $, ₹) or commas in the numbers.",
		"If an amount is not found in the document, set its value to 0.",
		"Never output null. If an optional key is not present, omit it.",
	}
	return strings.Join(parts, " ")
}

// ResolvePrompt returns the template id and prompt text for a request. A
// non-empty override replaces the template prompt but keeps the template id.
func ResolvePrompt(dt constants.DocType, override string) (template, prompt string) {
	if _, ok := constants.Canonicalize(string(dt)); !ok {
		dt = constants.DefaultDocType
	}
	if o := strings.TrimSpace(override); o != "" {
		return string(dt), o
	}
	return string(dt), BuildPrompt(dt)
}
