package enums

import "fmt"

// ConsolidationClass tracks the label-merging decision for an order line.
// Extra and one-parcel are terminal for a run.
type ConsolidationClass string

const (
	ConsolidationClassNone      ConsolidationClass = ""
	ConsolidationClassSingle    ConsolidationClass = "single"
	ConsolidationClassCombined  ConsolidationClass = "combined"
	ConsolidationClassExtra     ConsolidationClass = "extra"
	ConsolidationClassOneParcel ConsolidationClass = "one_parcel"
)

var validConsolidationClasses = []ConsolidationClass{
	ConsolidationClassSingle,
	ConsolidationClassCombined,
	ConsolidationClassExtra,
	ConsolidationClassOneParcel,
}

// String implements fmt.Stringer.
func (c ConsolidationClass) String() string {
	return string(c)
}

// IsValid reports whether the value is a known ConsolidationClass.
func (c ConsolidationClass) IsValid() bool {
	for _, candidate := range validConsolidationClasses {
		if candidate == c {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the class may never be reassigned within a run.
func (c ConsolidationClass) IsTerminal() bool {
	return c == ConsolidationClassExtra || c == ConsolidationClassOneParcel
}

// ParseConsolidationClass converts raw input into a ConsolidationClass.
func ParseConsolidationClass(value string) (ConsolidationClass, error) {
	for _, candidate := range validConsolidationClasses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid consolidation class %q", value)
}
