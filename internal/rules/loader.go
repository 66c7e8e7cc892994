package rules

import (
	"context"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"github.com/shiplinehq/shipline/pkg/db/models"
	"github.com/shiplinehq/shipline/pkg/enums"
	pkgerrors "github.com/shiplinehq/shipline/pkg/errors"
)

// Loader reads the rule configuration tables once per run and validates
// them up front, so classification itself never has to handle bad rules.
type Loader struct {
	db       *gorm.DB
	validate *validator.Validate
}

// NewLoader builds a rule loader bound to the provided DB.
func NewLoader(db *gorm.DB) (*Loader, error) {
	if db == nil {
		return nil, fmt.Errorf("db handle required")
	}
	return &Loader{
		db:       db,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}, nil
}

// Load reads, validates and indexes every rule table. Any defect is a
// fatal configuration error surfaced before data mutation starts.
func (l *Loader) Load(ctx context.Context) (*Set, error) {
	table, err := l.loadClassification(ctx)
	if err != nil {
		return nil, err
	}
	substitutions, err := l.loadSubstitutions(ctx)
	if err != nil {
		return nil, err
	}
	overflow, err := l.loadOverflow(ctx)
	if err != nil {
		return nil, err
	}
	policies, err := l.loadPolicies(ctx)
	if err != nil {
		return nil, err
	}
	return &Set{
		Classification: table,
		Substitutions:  substitutions,
		Overflow:       overflow,
		policies:       policies,
	}, nil
}

func (l *Loader) loadClassification(ctx context.Context) (*Table, error) {
	var rows []models.ClassificationRule
	if err := l.db.WithContext(ctx).Order("prefix ASC").Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load classification rules")
	}
	entries := make([]ClassificationEntry, 0, len(rows))
	for _, row := range rows {
		entry := ClassificationEntry{Prefix: row.Prefix, Center: row.Center}
		if err := l.validate.Struct(entry); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConfig, err, fmt.Sprintf("classification rule %q invalid", row.Prefix))
		}
		entries = append(entries, entry)
	}
	return NewTable(entries, enums.CenterFrozen)
}

func (l *Loader) loadSubstitutions(ctx context.Context) (map[string]Substitution, error) {
	var rows []models.SubstitutionRule
	err := l.db.WithContext(ctx).
		Order("source_code ASC").
		Order("position ASC").
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load substitution rules")
	}

	grouped := make(map[string][]models.SubstitutionRule)
	for _, row := range rows {
		grouped[row.SourceCode] = append(grouped[row.SourceCode], row)
	}

	out := make(map[string]Substitution, len(grouped))
	for source, members := range grouped {
		sort.Slice(members, func(i, j int) bool { return members[i].Position < members[j].Position })
		sub := Substitution{SourceCode: source}
		for idx, member := range members {
			if member.Position != idx+1 {
				return nil, pkgerrors.New(pkgerrors.CodeConfig, fmt.Sprintf("substitution %q has non-contiguous positions", source))
			}
			sub.Alternates = append(sub.Alternates, Alternate{
				Code:        member.AltCode,
				Name:        member.AltName,
				UnitFactor:  member.UnitFactor,
				ParcelUnits: member.ParcelUnits,
			})
		}
		if err := l.validate.Struct(sub); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConfig, err, fmt.Sprintf("substitution %q invalid", source))
		}
		out[source] = sub
	}
	return out, nil
}

func (l *Loader) loadOverflow(ctx context.Context) (map[enums.Center]Overflow, error) {
	var rows []models.OverflowRule
	if err := l.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load overflow rules")
	}
	out := make(map[enums.Center]Overflow, len(rows))
	for _, row := range rows {
		rule := Overflow{
			Center:       row.Center,
			SourceKey:    row.SourceKey,
			ThresholdQty: row.ThresholdQty,
			TargetKey:    row.TargetKey,
			NamePrefix:   row.NamePrefix,
			CompanionKey: row.CompanionKey,
		}
		if err := l.validate.Struct(rule); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConfig, err, fmt.Sprintf("overflow rule for center %s invalid", row.Center))
		}
		if !rule.Center.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeConfig, fmt.Sprintf("overflow rule names unknown center %q", row.Center))
		}
		if _, exists := out[rule.Center]; exists {
			return nil, pkgerrors.New(pkgerrors.CodeConfig, fmt.Sprintf("duplicate overflow rule for center %s", rule.Center))
		}
		out[rule.Center] = rule
	}
	return out, nil
}

func (l *Loader) loadPolicies(ctx context.Context) (map[policyKey]string, error) {
	var rows []models.PolicyValue
	if err := l.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load policy values")
	}
	out := make(map[policyKey]string, len(rows))
	for _, row := range rows {
		if !row.Center.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeConfig, fmt.Sprintf("policy value names unknown center %q", row.Center))
		}
		if !row.Code.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeConfig, fmt.Sprintf("unknown policy code %q for center %s", row.Code, row.Center))
		}
		out[policyKey{center: row.Center, code: row.Code}] = row.Value
	}
	for _, center := range enums.Centers() {
		for _, code := range enums.RequiredPolicyCodes() {
			if _, ok := out[policyKey{center: center, code: code}]; !ok {
				return nil, pkgerrors.New(pkgerrors.CodeConfig, fmt.Sprintf("missing policy value %s for center %s", code, center))
			}
		}
	}
	return out, nil
}
