package constants

// ValidationStatus is the outcome of validating one extraction.
type ValidationStatus string

// Stable values (emitted verbatim in result JSON and stored in the cache).
const (
	StatusValid    ValidationStatus = "valid"    // parsed and conformed without changes
	StatusRepaired ValidationStatus = "repaired" // a syntactic repair or coercion was applied
	StatusInvalid  ValidationStatus = "invalid"  // unparseable, missing required fields, or backend exhausted
)

// Succeeded reports whether a record could be produced.
func (s ValidationStatus) Succeeded() bool {
	return s == StatusValid || s == StatusRepaired
}

// DocumentStatus is the aggregated status of a processed document.
type DocumentStatus string

const (
	DocumentSuccess DocumentStatus = "success"
	DocumentPartial DocumentStatus = "partial"
	DocumentFailure DocumentStatus = "failure"
)
