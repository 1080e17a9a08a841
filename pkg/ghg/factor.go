package ghg

import "github.com/shopspring/decimal"

// Placeholder is shown wherever a factor is missing or not available.
const Placeholder = "--.--"

// FactorResult is the outcome of resolving a complete path.
//
// SubcategoryID is the identifier the staged-activity resource is keyed by;
// it is unrelated to the main category id and is only valid together with
// Path.
type FactorResult struct {
	Path          Path
	Value         decimal.Decimal
	SubcategoryID string
	Available     bool
}

// NotAvailableFor builds the "no factor" outcome for path.
func NotAvailableFor(path Path) FactorResult {
	return FactorResult{Path: path}
}

// Matches reports whether r was produced for exactly path.
func (r FactorResult) Matches(path Path) bool {
	return r.Path == path
}

// Display renders the factor, or the placeholder when not available.
func (r FactorResult) Display() string {
	if !r.Available {
		return Placeholder
	}
	return r.Value.String()
}
