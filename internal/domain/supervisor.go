package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OverrideStatus is the lifecycle state of a supervisor override
type OverrideStatus string

const (
	OverrideProposed OverrideStatus = "proposed"
	OverrideApproved OverrideStatus = "approved"
	OverrideRejected OverrideStatus = "rejected"
	OverrideRevoked  OverrideStatus = "revoked"
)

// OverrideReason is the standardised ground for a supervisor override
type OverrideReason string

const (
	ReasonDataQuality             OverrideReason = "data_quality_issue"
	ReasonExceptionalCircumstance OverrideReason = "exceptional_circumstances"
	ReasonRegulatoryGuidance      OverrideReason = "regulatory_guidance"
	ReasonBusinessRestructuring   OverrideReason = "business_restructuring"
	ReasonSystemLimitation        OverrideReason = "system_limitation"
	ReasonConservativeAdjustment  OverrideReason = "conservative_adjustment"
	ReasonTemporaryAdjustment     OverrideReason = "temporary_adjustment"
	ReasonOther                   OverrideReason = "other"
)

// OverrideReasons lists every accepted reason
var OverrideReasons = []OverrideReason{
	ReasonDataQuality, ReasonExceptionalCircumstance, ReasonRegulatoryGuidance,
	ReasonBusinessRestructuring, ReasonSystemLimitation, ReasonConservativeAdjustment,
	ReasonTemporaryAdjustment, ReasonOther,
}

// Valid reports whether r is a known reason
func (r OverrideReason) Valid() bool {
	for _, known := range OverrideReasons {
		if r == known {
			return true
		}
	}
	return false
}

var (
	minAdjustmentPct = decimal.NewFromInt(-100)
	maxAdjustmentPct = decimal.NewFromInt(1000)
	hundred          = decimal.NewFromInt(100)
)

// SupervisorOverride replaces or scales the capital figure of one entity
// and method over an effective period. Exactly one of CapitalValue and
// AdjustmentPct is set.
type SupervisorOverride struct {
	ID            string           `yaml:"id" json:"id"`
	EntityID      string           `yaml:"entity_id" json:"entity_id"`
	Method        Method           `yaml:"method" json:"method"`
	CapitalValue  *decimal.Decimal `yaml:"capital_value,omitempty" json:"capital_value,omitempty"`
	AdjustmentPct *decimal.Decimal `yaml:"adjustment_pct,omitempty" json:"adjustment_pct,omitempty"`
	Reason        OverrideReason   `yaml:"reason" json:"reason"`
	Justification string           `yaml:"justification" json:"justification"`
	EffectiveFrom time.Time        `yaml:"effective_from" json:"effective_from"`
	// EffectiveTo is exclusive; nil means open-ended
	EffectiveTo *time.Time     `yaml:"effective_to,omitempty" json:"effective_to,omitempty"`
	Status      OverrideStatus `yaml:"status" json:"status"`
	ProposedBy  string         `yaml:"proposed_by" json:"proposed_by"`
	ApprovedBy  string         `yaml:"approved_by,omitempty" json:"approved_by,omitempty"`
	ApprovalRef string         `yaml:"approval_ref,omitempty" json:"approval_ref,omitempty"`
	Decisions   []Approval     `yaml:"decisions,omitempty" json:"decisions,omitempty"`
	CreatedAt   time.Time      `yaml:"created_at" json:"created_at"`
}

// Validate checks the override terms and returns every violation
func (o *SupervisorOverride) Validate() []Violation {
	var v []Violation
	add := func(field, msg string) { v = append(v, Violation{Field: field, Message: msg}) }

	if strings.TrimSpace(o.EntityID) == "" {
		add("entity_id", "is required")
	}
	switch o.Method {
	case MethodPrimary, MethodFlat, MethodSegmented:
	default:
		add("method", "must be one of primary flat segmented")
	}
	switch {
	case o.CapitalValue == nil && o.AdjustmentPct == nil:
		add("capital_value", "a capital value or an adjustment percentage is required")
	case o.CapitalValue != nil && o.AdjustmentPct != nil:
		add("capital_value", "give either a capital value or an adjustment percentage, not both")
	case o.CapitalValue != nil && o.CapitalValue.IsNegative():
		add("capital_value", "must not be negative, got "+o.CapitalValue.String())
	case o.AdjustmentPct != nil && (o.AdjustmentPct.LessThan(minAdjustmentPct) || o.AdjustmentPct.GreaterThan(maxAdjustmentPct)):
		add("adjustment_pct", "must be between -100 and 1000, got "+o.AdjustmentPct.String())
	}
	if !o.Reason.Valid() {
		add("reason", "unknown reason "+string(o.Reason))
	}
	if strings.TrimSpace(o.Justification) == "" {
		add("justification", "is required")
	}
	if o.EffectiveFrom.IsZero() {
		add("effective_from", "is required")
	}
	if o.EffectiveTo != nil && !o.EffectiveTo.After(o.EffectiveFrom) {
		add("effective_to", "must be after effective_from")
	}
	return v
}

// InEffect reports whether the override covers asOf
func (o *SupervisorOverride) InEffect(asOf time.Time) bool {
	if asOf.Before(o.EffectiveFrom) {
		return false
	}
	return o.EffectiveTo == nil || asOf.Before(*o.EffectiveTo)
}

// Overlaps reports whether two overrides share any date
func (o *SupervisorOverride) Overlaps(other *SupervisorOverride) bool {
	if o.EffectiveTo != nil && !o.EffectiveTo.After(other.EffectiveFrom) {
		return false
	}
	if other.EffectiveTo != nil && !other.EffectiveTo.After(o.EffectiveFrom) {
		return false
	}
	return true
}

// Apply returns the capital figure that replaces calculated, rounded to cents
func (o *SupervisorOverride) Apply(calculated decimal.Decimal) decimal.Decimal {
	if o.CapitalValue != nil {
		return o.CapitalValue.Round(2)
	}
	factor := hundred.Add(*o.AdjustmentPct).Div(hundred)
	return calculated.Mul(factor).Round(2)
}

// Clone returns a deep copy
func (o *SupervisorOverride) Clone() *SupervisorOverride {
	if o == nil {
		return nil
	}
	out := *o
	if o.CapitalValue != nil {
		v := *o.CapitalValue
		out.CapitalValue = &v
	}
	if o.AdjustmentPct != nil {
		v := *o.AdjustmentPct
		out.AdjustmentPct = &v
	}
	if o.EffectiveTo != nil {
		t := *o.EffectiveTo
		out.EffectiveTo = &t
	}
	out.Decisions = append([]Approval(nil), o.Decisions...)
	return &out
}

// AppliedOverride is the lineage trace of an override used by a run
type AppliedOverride struct {
	OverrideID        string          `json:"override_id"`
	Reason            OverrideReason  `json:"reason"`
	ApprovedBy        string          `json:"approved_by"`
	ApprovalRef       string          `json:"approval_ref"`
	CalculatedCapital decimal.Decimal `json:"calculated_capital"`
	OverrideCapital   decimal.Decimal `json:"override_capital"`
}
