package enums

import "fmt"

// Center identifies the destination fulfillment center a line is routed to.
type Center string

const (
	// CenterFrozen is the default arm for unmapped classification keys.
	CenterFrozen     Center = "frozen"
	CenterChilled    Center = "chilled"
	CenterRegional   Center = "regional"
	CenterIndustrial Center = "industrial"
)

var validCenters = []Center{
	CenterFrozen,
	CenterChilled,
	CenterRegional,
	CenterIndustrial,
}

// Centers returns every known destination center.
func Centers() []Center {
	out := make([]Center, len(validCenters))
	copy(out, validCenters)
	return out
}

// String implements fmt.Stringer.
func (c Center) String() string {
	return string(c)
}

// IsValid reports whether the value is a known Center.
func (c Center) IsValid() bool {
	for _, candidate := range validCenters {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCenter converts raw input into a Center.
func ParseCenter(value string) (Center, error) {
	for _, candidate := range validCenters {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid center %q", value)
}
