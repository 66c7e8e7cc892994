package enums

import "fmt"

// PolicyCode keys a center-specific policy value in the rule configuration.
type PolicyCode string

const (
	PolicyCodeShippingCost PolicyCode = "shipping_cost"
	PolicyCodeBoxSize      PolicyCode = "box_size"
	PolicyCodePrintCount   PolicyCode = "print_count"
)

var validPolicyCodes = []PolicyCode{
	PolicyCodeShippingCost,
	PolicyCodeBoxSize,
	PolicyCodePrintCount,
}

// RequiredPolicyCodes lists the codes every center must define; a missing
// value is a fatal configuration error.
func RequiredPolicyCodes() []PolicyCode {
	out := make([]PolicyCode, len(validPolicyCodes))
	copy(out, validPolicyCodes)
	return out
}

// String implements fmt.Stringer.
func (p PolicyCode) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PolicyCode.
func (p PolicyCode) IsValid() bool {
	for _, candidate := range validPolicyCodes {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePolicyCode converts raw input into a PolicyCode.
func ParsePolicyCode(value string) (PolicyCode, error) {
	for _, candidate := range validPolicyCodes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid policy code %q", value)
}
