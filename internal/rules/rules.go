package rules

import (
	"fmt"
	"strings"

	"github.com/shiplinehq/shipline/pkg/enums"
	pkgerrors "github.com/shiplinehq/shipline/pkg/errors"
)

// ClassificationKeyLen is the item-name prefix length used for routing.
const ClassificationKeyLen = 3

// ClassificationEntry is one prefix arm of the routing table.
type ClassificationEntry struct {
	Prefix string       `validate:"required,len=3"`
	Center enums.Center `validate:"required"`
}

// Table is the total prefix-to-center mapping: unmapped prefixes fall
// through to the default center, so every lookup yields exactly one arm.
type Table struct {
	entries       map[string]enums.Center
	defaultCenter enums.Center
}

// NewTable builds a routing table with the given default arm.
func NewTable(entries []ClassificationEntry, defaultCenter enums.Center) (*Table, error) {
	if !defaultCenter.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeConfig, fmt.Sprintf("invalid default center %q", defaultCenter))
	}
	index := make(map[string]enums.Center, len(entries))
	for _, entry := range entries {
		if len(entry.Prefix) != ClassificationKeyLen {
			return nil, pkgerrors.New(pkgerrors.CodeConfig, fmt.Sprintf("classification prefix %q must be %d characters", entry.Prefix, ClassificationKeyLen))
		}
		if !entry.Center.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeConfig, fmt.Sprintf("classification prefix %q maps to unknown center %q", entry.Prefix, entry.Center))
		}
		if _, exists := index[entry.Prefix]; exists {
			return nil, pkgerrors.New(pkgerrors.CodeConfig, fmt.Sprintf("duplicate classification prefix %q", entry.Prefix))
		}
		index[entry.Prefix] = entry.Center
	}
	return &Table{entries: index, defaultCenter: defaultCenter}, nil
}

// Lookup returns the destination center for a classification key. The
// default arm makes this total.
func (t *Table) Lookup(key string) enums.Center {
	if center, ok := t.entries[key]; ok {
		return center
	}
	return t.defaultCenter
}

// LookupMapped is Lookup plus whether the key hit a configured arm rather
// than the default.
func (t *Table) LookupMapped(key string) (enums.Center, bool) {
	if center, ok := t.entries[key]; ok {
		return center, true
	}
	return t.defaultCenter, false
}

// DefaultCenter returns the fall-through arm.
func (t *Table) DefaultCenter() enums.Center {
	return t.defaultCenter
}

// Key extracts the classification key from a display name: the first
// ClassificationKeyLen characters after trimming, case-sensitive.
func Key(displayName string) string {
	trimmed := strings.TrimSpace(displayName)
	runes := []rune(trimmed)
	if len(runes) <= ClassificationKeyLen {
		return string(runes)
	}
	return string(runes[:ClassificationKeyLen])
}

// Alternate is one physically shipped unit of a virtual item code. Each
// alternate carries its own parcel units; the source line's density never
// applies to the items it expands into.
type Alternate struct {
	Code        string `validate:"required"`
	Name        string
	UnitFactor  int `validate:"required,min=1"`
	ParcelUnits int `validate:"required,min=1"`
}

// Substitution expands one virtual item code into 1..4 shipped units.
// The first alternate is the primary and keeps the money fields.
type Substitution struct {
	SourceCode string      `validate:"required"`
	Alternates []Alternate `validate:"required,min=1,max=4,dive"`
}

// Overflow reroutes high-quantity lines of one classification into a
// separate overflow run for the owning center.
type Overflow struct {
	Center       enums.Center `validate:"required"`
	SourceKey    string       `validate:"required,len=3"`
	ThresholdQty int          `validate:"required,min=1"`
	TargetKey    string       `validate:"required,len=3"`
	NamePrefix   string       `validate:"required"`
	CompanionKey string
}

type policyKey struct {
	center enums.Center
	code   enums.PolicyCode
}

// Set is the rule configuration for one run, loaded once before any data
// mutation.
type Set struct {
	Classification *Table
	Substitutions  map[string]Substitution
	Overflow       map[enums.Center]Overflow
	policies       map[policyKey]string
}

// NewSet assembles a rule set from already validated parts. Loading from
// the store is the normal path; this exists for callers that build rules
// in memory.
func NewSet(classification *Table, subs map[string]Substitution, overflow map[enums.Center]Overflow, policies map[enums.Center]map[enums.PolicyCode]string) *Set {
	flat := make(map[policyKey]string)
	for center, values := range policies {
		for code, value := range values {
			flat[policyKey{center: center, code: code}] = value
		}
	}
	return &Set{
		Classification: classification,
		Substitutions:  subs,
		Overflow:       overflow,
		policies:       flat,
	}
}

// Policy returns the configured value for (center, code). A missing value
// is a fatal configuration error naming the specific key.
func (s *Set) Policy(center enums.Center, code enums.PolicyCode) (string, error) {
	if value, ok := s.policies[policyKey{center: center, code: code}]; ok {
		return value, nil
	}
	return "", pkgerrors.New(pkgerrors.CodeConfig, fmt.Sprintf("missing policy value %s for center %s", code, center))
}

// SubstitutionFor returns the substitution owning the item code, if any.
func (s *Set) SubstitutionFor(itemCode string) (Substitution, bool) {
	sub, ok := s.Substitutions[itemCode]
	return sub, ok
}

// OverflowFor returns the overflow rule for a center, if any.
func (s *Set) OverflowFor(center enums.Center) (Overflow, bool) {
	rule, ok := s.Overflow[center]
	return rule, ok
}
