package rules

import (
	"testing"

	"github.com/shiplinehq/shipline/pkg/enums"
	pkgerrors "github.com/shiplinehq/shipline/pkg/errors"
)

func TestTableLookupIsTotal(t *testing.T) {
	table, err := NewTable([]ClassificationEntry{
		{Prefix: "CHL", Center: enums.CenterChilled},
		{Prefix: "IND", Center: enums.CenterIndustrial},
	}, enums.CenterFrozen)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := table.Lookup("CHL"); got != enums.CenterChilled {
		t.Fatalf("expected chilled, got %s", got)
	}
	if got := table.Lookup("XYZ"); got != enums.CenterFrozen {
		t.Fatalf("unmapped prefix must hit the default arm, got %s", got)
	}
	if got := table.Lookup(""); got != enums.CenterFrozen {
		t.Fatalf("empty key must hit the default arm, got %s", got)
	}
}

func TestNewTableRejectsBadEntries(t *testing.T) {
	if _, err := NewTable([]ClassificationEntry{{Prefix: "TOOLONG", Center: enums.CenterChilled}}, enums.CenterFrozen); err == nil {
		t.Fatal("expected error for over-length prefix")
	}
	if _, err := NewTable([]ClassificationEntry{{Prefix: "ABC", Center: "warehouse-9"}}, enums.CenterFrozen); err == nil {
		t.Fatal("expected error for unknown center")
	}
	_, err := NewTable([]ClassificationEntry{
		{Prefix: "ABC", Center: enums.CenterChilled},
		{Prefix: "ABC", Center: enums.CenterIndustrial},
	}, enums.CenterFrozen)
	if err == nil {
		t.Fatal("expected error for duplicate prefix")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeConfig {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestKeyExtraction(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{name: "CHL salmon fillet", want: "CHL"},
		{name: "  IND drill bit", want: "IND"},
		{name: "ab", want: "ab"},
		{name: "", want: ""},
		{name: "冷凍 ほたて", want: "冷凍 "},
	}
	for _, tt := range tests {
		if got := Key(tt.name); got != tt.want {
			t.Fatalf("Key(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestPolicyMissingIsFatalConfigError(t *testing.T) {
	set := &Set{policies: map[policyKey]string{
		{center: enums.CenterFrozen, code: enums.PolicyCodeBoxSize}: "60",
	}}

	if value, err := set.Policy(enums.CenterFrozen, enums.PolicyCodeBoxSize); err != nil || value != "60" {
		t.Fatalf("expected 60, got %q err=%v", value, err)
	}

	_, err := set.Policy(enums.CenterChilled, enums.PolicyCodeShippingCost)
	if err == nil {
		t.Fatal("expected missing policy error")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeConfig {
		t.Fatalf("expected config code, got %v", err)
	}
	if !pkgerrors.IsFatal(err) {
		t.Fatal("missing policy must be fatal")
	}
}
