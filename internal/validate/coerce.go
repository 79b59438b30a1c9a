package validate

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var currencySymbols = map[string]string{
	"$":   "USD",
	"US$": "USD",
	"€":   "EUR",
	"£":   "GBP",
	"₹":   "INR",
	"Rs.": "INR",
	"Rs":  "INR",
	"¥":   "JPY",
}

// symbolOrder lists symbols longest first so "US$" wins over "$".
var symbolOrder = []string{"US$", "Rs.", "Rs", "$", "€", "£", "₹", "¥"}

var (
	reISOCode     = regexp.MustCompile(`^[A-Z]{3}$`)
	reLeadingCode = regexp.MustCompile(`^([A-Za-z]{3})\s*`)
	reTrailCode   = regexp.MustCompile(`\s*([A-Za-z]{3})$`)
	reGrouped     = regexp.MustCompile(`^\d{1,3}(,\d{3})+(\.\d+)?$`)
)

var errNotANumber = errors.New("not a number")

// normalizeCurrency maps symbols and casing onto an ISO 4217 code.
func normalizeCurrency(s string) (string, bool) {
	t := strings.TrimSpace(s)
	if code, ok := currencySymbols[t]; ok {
		return code, true
	}
	t = strings.ToUpper(t)
	return t, reISOCode.MatchString(t)
}

// parseMoney coerces a JSON value into an amount. changed reports whether
// the value was anything other than a plain JSON number; currency holds a
// code found next to the digits, if any.
func parseMoney(v any) (amount float64, currency string, changed bool, err error) {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		return f, "", false, err
	case float64:
		return t, "", false, nil
	case string:
		f, cur, err := parseMoneyString(t)
		return f, cur, true, err
	default:
		return 0, "", false, errNotANumber
	}
}

func parseMoneyString(raw string) (float64, string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, "", errNotANumber
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	if strings.HasPrefix(s, "-") {
		negative = !negative
		s = strings.TrimSpace(s[1:])
	}

	var currency string
	for _, sym := range symbolOrder {
		if strings.HasPrefix(s, sym) {
			currency, s = currencySymbols[sym], strings.TrimSpace(s[len(sym):])
			break
		}
		if strings.HasSuffix(s, sym) {
			currency, s = currencySymbols[sym], strings.TrimSpace(s[:len(s)-len(sym)])
			break
		}
	}
	if m := reLeadingCode.FindStringSubmatch(s); m != nil {
		currency, s = strings.ToUpper(m[1]), s[len(m[0]):]
	} else if m := reTrailCode.FindStringSubmatch(s); m != nil {
		currency, s = strings.ToUpper(m[1]), s[:len(s)-len(m[0])]
	}
	if strings.HasPrefix(s, "-") && !negative {
		negative = true
		s = s[1:]
	}

	s = strings.NewReplacer(" ", "", "\u00a0", "", "\u202f", "", "'", "", "_", "").Replace(s)
	s = normalizeSeparators(s)

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, currency, fmt.Errorf("%w: %q", errNotANumber, raw)
	}
	if negative {
		f = -f
	}
	return f, currency, nil
}

// normalizeSeparators rewrites thousands and decimal separators into Go
// float syntax. "1,234.56", "1.234,56", "1,00,000" and "12,5" are handled.
func normalizeSeparators(s string) string {
	lastComma := strings.LastIndexByte(s, ',')
	lastDot := strings.LastIndexByte(s, '.')
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			// European: dots group, comma is the decimal mark
			return strings.Replace(strings.ReplaceAll(s, ".", ""), ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case lastComma >= 0:
		if reGrouped.MatchString(s) || strings.Count(s, ",") > 1 {
			return strings.ReplaceAll(s, ",", "")
		}
		if digits := len(s) - lastComma - 1; digits >= 1 && digits <= 2 {
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case strings.Count(s, ".") > 1:
		return strings.ReplaceAll(s, ".", "")
	default:
		return s
	}
}

// dateLayouts are tried in order. Day-first numeric forms precede
// month-first ones.
var dateLayouts = []string{
	time.DateOnly,
	time.RFC3339,
	"2006-01-02T15:04:05",
	time.DateTime,
	"2006/01/02",
	"2006.01.02",
	"02/01/2006",
	"02-01-2006",
	"02.01.2006",
	"01/02/2006",
	"2/1/2006",
	"1/2/2006",
	"02/01/06",
	"2 Jan 2006",
	"02 Jan 2006",
	"2 January 2006",
	"02-Jan-2006",
	"2-Jan-2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"Jan 2 2006",
	"January 2 2006",
}

var reOrdinal = regexp.MustCompile(`(\d)(st|nd|rd|th)\b`)

// parseDate returns the canonical YYYY-MM-DD form of s.
func parseDate(s string) (string, error) {
	t := strings.TrimSpace(s)
	t = reOrdinal.ReplaceAllString(t, "$1")
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, t); err == nil {
			return d.Format(time.DateOnly), nil
		}
	}
	return "", fmt.Errorf("unrecognized date %q", s)
}
