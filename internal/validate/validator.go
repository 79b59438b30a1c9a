package validate

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/nilansh-07/FintelAI/constants"
	"github.com/nilansh-07/FintelAI/internal/common"
	"github.com/nilansh-07/FintelAI/internal/entity"
)

// Report is the full outcome of validating one raw backend response.
type Report struct {
	Record      *entity.FinancialRecord
	Status      constants.ValidationStatus
	Parsed      any
	FieldErrors []entity.FieldError
	Repairs     []string
	Err         error // VALIDATION_ERROR when Status is invalid
}

// Validator parses, repairs and coerces backend output into a FinancialRecord.
// It is safe for concurrent use.
type Validator struct {
	schema *jsonschema.Schema
	logger *slog.Logger
}

func NewValidator(logger *slog.Logger) (*Validator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	schema, err := compileRecordSchema()
	if err != nil {
		return nil, err
	}
	return &Validator{schema: schema, logger: logger}, nil
}

// Validate never fails: every problem is reported in the returned Report.
// Field errors accumulate; status is invalid when the text cannot be parsed
// after one repair pass or a required field fails, repaired when any repair
// or coercion was applied, and valid otherwise.
func (v *Validator) Validate(raw string) Report {
	var rep Report

	obj, err := parseObject(raw)
	if err != nil {
		repaired, applied := repairPass(raw)
		rep.Repairs = append(rep.Repairs, applied...)
		obj, err = parseObject(repaired)
		if err != nil {
			fv := common.NewValidator().Add("$", nil, "unparseable JSON after repair: "+err.Error())
			rep.Status = constants.StatusInvalid
			rep.FieldErrors = fv.Errors()
			rep.Err = common.ValidateAndReturnError(fv)
			v.logger.Warn("validate.unparseable", "repairs", applied, "error", err, "raw_bytes", len(raw))
			return rep
		}
	}
	rep.Parsed = obj

	fv := common.NewValidator()
	rec := &entity.FinancialRecord{}
	coerced := v.required(obj, rec, fv)
	coerced = append(coerced, v.optional(obj, rec, fv)...)
	rep.Repairs = append(rep.Repairs, coerced...)
	rep.FieldErrors = fv.Errors()

	requiredFailed := fv.HasFieldError("invoice_number") || fv.HasFieldError("date") || fv.HasFieldError("total_amount")
	if !requiredFailed {
		if err := checkAgainstSchema(v.schema, rec); err != nil {
			v.logger.Error("validate.schema_guard_failed", "error", err)
			fv.Add("$", nil, err.Error())
			rep.FieldErrors = fv.Errors()
			requiredFailed = true
		}
	}

	switch {
	case requiredFailed:
		rep.Status = constants.StatusInvalid
		rep.Err = common.ValidateAndReturnError(fv)
	case len(rep.Repairs) > 0:
		rep.Status = constants.StatusRepaired
		rep.Record = rec
	default:
		rep.Status = constants.StatusValid
		rep.Record = rec
	}
	return rep
}

// Apply validates res.Raw and writes the report into res. Results the
// adapter already marked invalid are left untouched.
func (v *Validator) Apply(res *entity.ExtractionResult) {
	if res.Status == constants.StatusInvalid {
		return
	}
	rep := v.Validate(res.Raw)
	res.Status = rep.Status
	res.Parsed = rep.Parsed
	res.Record = rep.Record
	res.FieldErrors = rep.FieldErrors
	res.Repairs = rep.Repairs
	if rep.Err != nil {
		res.Errors = append(res.Errors, entity.NewErrorDetail(rep.Err))
	}
}

// parseObject decodes exactly one top-level JSON object.
func parseObject(s string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after top-level value")
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("top-level value is %T, want object", v)
	}
	return obj, nil
}

func (v *Validator) required(obj map[string]any, rec *entity.FinancialRecord, fv *common.Validator) []string {
	var coerced []string

	switch t := obj["invoice_number"].(type) {
	case string:
		rec.InvoiceNumber = strings.TrimSpace(t)
		if rec.InvoiceNumber != t && rec.InvoiceNumber != "" {
			coerced = append(coerced, "coerce:invoice_number")
		}
		fv.Field("invoice_number", rec.InvoiceNumber, common.Required, common.MaxLength(128))
	case json.Number:
		rec.InvoiceNumber = t.String()
		coerced = append(coerced, "coerce:invoice_number")
	case nil:
		fv.Field("invoice_number", nil, common.Required)
	default:
		fv.Add("invoice_number", t, "must be a string")
	}

	switch t := obj["date"].(type) {
	case string:
		d, err := parseDate(t)
		if err != nil {
			fv.Add("date", t, "must be a recognizable date")
			break
		}
		rec.Date = d
		if d != t {
			coerced = append(coerced, "coerce:date")
		}
		fv.Field("date", d, common.ISODate)
	case nil:
		fv.Field("date", nil, common.Required)
	default:
		fv.Add("date", t, "must be a date string")
	}

	if raw, ok := obj["total_amount"]; !ok || raw == nil {
		fv.Field("total_amount", nil, common.Required)
	} else {
		amount, cur, changed, err := parseMoney(raw)
		if err != nil {
			fv.Add("total_amount", raw, "must be numeric")
		} else {
			rec.TotalAmount = amount
			if changed {
				coerced = append(coerced, "coerce:total_amount")
			}
			fv.Field("total_amount", amount, common.NonNegative)
			if _, hasCurrency := obj["currency"]; !hasCurrency && cur != "" {
				if code, ok := normalizeCurrency(cur); ok {
					rec.Currency = code
					coerced = append(coerced, "infer:currency")
				}
			}
		}
	}
	return coerced
}

func (v *Validator) optional(obj map[string]any, rec *entity.FinancialRecord, fv *common.Validator) []string {
	var notes []string
	drop := func(field string, value any, msg string) {
		fv.Add(field, value, msg)
		notes = append(notes, "drop:"+field)
	}

	switch t := obj["currency"].(type) {
	case nil:
	case string:
		code, ok := normalizeCurrency(t)
		if !ok {
			drop("currency", t, "must be a 3-letter ISO 4217 code")
			break
		}
		if err := common.CurrencyCode("currency", code); err != nil {
			drop("currency", t, err.Message)
			break
		}
		rec.Currency = code
		if code != t {
			notes = append(notes, "coerce:currency")
		}
	default:
		drop("currency", t, "must be a string")
	}

	switch t := obj["line_items"].(type) {
	case nil:
	case []any:
		for i, item := range t {
			li, itemNotes, ok := lineItem(fmt.Sprintf("line_items[%d]", i), item, fv)
			notes = append(notes, itemNotes...)
			if ok {
				rec.LineItems = append(rec.LineItems, li)
			}
		}
	default:
		drop("line_items", t, "must be an array")
	}

	switch t := obj["amounts"].(type) {
	case nil:
	case map[string]any:
		for _, k := range slices.Sorted(maps.Keys(t)) {
			raw := t[k]
			field := "amounts." + k
			if raw == nil {
				continue
			}
			amount, _, changed, err := parseMoney(raw)
			if err != nil {
				drop(field, raw, "must be numeric")
				continue
			}
			if rec.Amounts == nil {
				rec.Amounts = make(map[string]float64, len(t))
			}
			rec.Amounts[k] = amount
			if changed {
				notes = append(notes, "coerce:"+field)
			}
		}
	default:
		drop("amounts", t, "must be an object")
	}

	if raw, ok := obj["confidence"]; ok && raw != nil {
		c, _, changed, err := parseMoney(raw)
		if err != nil {
			drop("confidence", raw, "must be a number")
		} else if e := common.Fraction("confidence", c); e != nil {
			drop("confidence", raw, e.Message)
		} else {
			rec.Confidence = &c
			if changed {
				notes = append(notes, "coerce:confidence")
			}
		}
	}
	return notes
}

func lineItem(field string, item any, fv *common.Validator) (entity.LineItem, []string, bool) {
	var notes []string
	m, ok := item.(map[string]any)
	if !ok {
		fv.Add(field, item, "must be an object")
		return entity.LineItem{}, []string{"drop:" + field}, false
	}

	var li entity.LineItem
	switch d := m["description"].(type) {
	case string:
		li.Description = strings.TrimSpace(d)
	case json.Number:
		li.Description = d.String()
		notes = append(notes, "coerce:"+field+".description")
	}
	if li.Description == "" {
		fv.Add(field+".description", m["description"], "is required")
		return entity.LineItem{}, append(notes, "drop:"+field), false
	}

	num := func(key string) *float64 {
		raw, ok := m[key]
		if !ok || raw == nil {
			return nil
		}
		f, _, changed, err := parseMoney(raw)
		if err != nil {
			fv.Add(field+"."+key, raw, "must be numeric")
			notes = append(notes, "drop:"+field+"."+key)
			return nil
		}
		if changed {
			notes = append(notes, "coerce:"+field+"."+key)
		}
		return &f
	}
	li.Quantity = num("quantity")
	li.UnitPrice = num("unit_price")
	li.Amount = num("amount")
	return li, notes, true
}
