package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ConsolidationMethod decides how much of a subsidiary's capital the
// parent carries
type ConsolidationMethod string

const (
	// ConsolidateFull carries the whole figure
	ConsolidateFull ConsolidationMethod = "full"
	// ConsolidateProportional carries the ownership share
	ConsolidateProportional ConsolidationMethod = "proportional"
	// ConsolidateEquity carries nothing; the holding is an investment
	ConsolidateEquity ConsolidationMethod = "equity"
)

// ConsolidationMapping links a subsidiary to its parent over a period
type ConsolidationMapping struct {
	ID             string              `yaml:"id" json:"id"`
	ParentEntityID string              `yaml:"parent_entity_id" json:"parent_entity_id"`
	ChildEntityID  string              `yaml:"child_entity_id" json:"child_entity_id"`
	OwnershipPct   decimal.Decimal     `yaml:"ownership_pct" json:"ownership_pct"`
	Method         ConsolidationMethod `yaml:"method" json:"method"`
	EffectiveFrom  time.Time           `yaml:"effective_from" json:"effective_from"`
	// EffectiveTo is exclusive; nil means open-ended
	EffectiveTo *time.Time `yaml:"effective_to,omitempty" json:"effective_to,omitempty"`
}

// Validate checks the mapping
func (m *ConsolidationMapping) Validate() error {
	field, detail := "", ""
	switch {
	case strings.TrimSpace(m.ParentEntityID) == "" || strings.TrimSpace(m.ChildEntityID) == "":
		field, detail = "entity_id", "mapping "+m.ID+" needs a parent and a child"
	case m.ParentEntityID == m.ChildEntityID:
		field, detail = "child_entity_id", "mapping "+m.ID+" maps "+m.ChildEntityID+" to itself"
	case m.OwnershipPct.IsNegative() || m.OwnershipPct.GreaterThan(hundred):
		field, detail = "ownership_pct", "mapping "+m.ID+": ownership must be between 0 and 100, got "+m.OwnershipPct.String()
	case m.Method != ConsolidateFull && m.Method != ConsolidateProportional && m.Method != ConsolidateEquity:
		field, detail = "method", "mapping "+m.ID+": unknown consolidation method "+string(m.Method)
	case m.EffectiveFrom.IsZero():
		field, detail = "effective_from", "mapping "+m.ID+" has no effective date"
	case m.EffectiveTo != nil && !m.EffectiveTo.After(m.EffectiveFrom):
		field, detail = "effective_to", "mapping "+m.ID+": effective_to must be after effective_from"
	default:
		return nil
	}
	return &DomainComputationError{EntityID: m.ParentEntityID, Field: field, Detail: detail}
}

// InEffect reports whether the mapping covers asOf
func (m *ConsolidationMapping) InEffect(asOf time.Time) bool {
	if asOf.Before(m.EffectiveFrom) {
		return false
	}
	return m.EffectiveTo == nil || asOf.Before(*m.EffectiveTo)
}

// Weight is the share of the child's capital the parent carries
func (m *ConsolidationMapping) Weight() decimal.Decimal {
	switch m.Method {
	case ConsolidateFull:
		return decimal.NewFromInt(1)
	case ConsolidateProportional:
		return m.OwnershipPct.Div(hundred)
	}
	return decimal.Zero
}
