package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Method is a capital calculation method
type Method string

const (
	MethodPrimary   Method = "primary"
	MethodFlat      Method = "flat"
	MethodSegmented Method = "segmented"
)

// Model returns the parameter model that drives the method
func (m Method) Model() Model {
	return Model(m)
}

// GateState is the outcome of the loss multiplier gating rules
type GateState string

const (
	GateComputed         GateState = "computed"
	GateBucketFloor      GateState = "gated_bucket_floor"
	GateInsufficientData GateState = "gated_insufficient_data"
	GateByPolicyOverride GateState = "gated_policy_override"
	GateNotApplicable    GateState = "not_applicable"
)

// InputSnapshot is the frozen copy of every input a run consumed
type InputSnapshot struct {
	IndicatorPeriods []IndicatorPeriod `json:"indicator_periods,omitempty"`
	LossRecords      []LossRecord      `json:"loss_records,omitempty"`
	SegmentIncome    []SegmentIncome   `json:"segment_income,omitempty"`
	// Parameters are the effective values after overrides
	Parameters      []Parameter `json:"parameters"`
	IncludedLossIDs []string    `json:"included_loss_ids,omitempty"`
}

// Outputs are the headline figures of a run
type Outputs struct {
	CapitalRequirement decimal.Decimal `json:"capital_requirement"`
	RiskWeightedAssets decimal.Decimal `json:"risk_weighted_assets"`
}

// CalculationRun is the write-once lineage record of one calculation
type CalculationRun struct {
	RunID         string            `json:"run_id"`
	EntityID      string            `json:"entity_id"`
	Method        Method            `json:"method"`
	AsOfDate      time.Time         `json:"as_of_date"`
	ParameterRefs []ParameterRef    `json:"parameter_refs"`
	Overrides     map[string]string `json:"overrides,omitempty"`
	Input         InputSnapshot     `json:"input"`
	InputHash     string            `json:"input_hash"`
	Intermediates map[string]string `json:"intermediates"`
	Outputs       Outputs           `json:"outputs"`
	// SupervisorOverride is set when an approved override replaced the
	// calculated capital
	SupervisorOverride *AppliedOverride `json:"supervisor_override,omitempty"`
	OutputHash         string           `json:"output_hash"`
	Anomalies          []string         `json:"anomalies,omitempty"`
	InitiatedBy        string           `json:"initiated_by"`
	CreatedAt          time.Time        `json:"created_at"`
}

// Clone returns a deep copy so a recorded run never aliases caller data
func (r *CalculationRun) Clone() *CalculationRun {
	if r == nil {
		return nil
	}
	out := *r
	out.ParameterRefs = append([]ParameterRef(nil), r.ParameterRefs...)
	out.Overrides = cloneStrings(r.Overrides)
	out.Intermediates = cloneStrings(r.Intermediates)
	out.Anomalies = append([]string(nil), r.Anomalies...)
	if r.SupervisorOverride != nil {
		applied := *r.SupervisorOverride
		out.SupervisorOverride = &applied
	}
	out.Input = InputSnapshot{
		IndicatorPeriods: append([]IndicatorPeriod(nil), r.Input.IndicatorPeriods...),
		LossRecords:      append([]LossRecord(nil), r.Input.LossRecords...),
		SegmentIncome:    append([]SegmentIncome(nil), r.Input.SegmentIncome...),
		Parameters:       append([]Parameter(nil), r.Input.Parameters...),
		IncludedLossIDs:  append([]string(nil), r.Input.IncludedLossIDs...),
	}
	return &out
}

func cloneStrings(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// CalculationResult is what a caller gets back from a calculation
type CalculationResult struct {
	RunID              string            `json:"run_id"`
	EntityID           string            `json:"entity_id"`
	Method             Method            `json:"method"`
	AsOfDate           time.Time         `json:"as_of_date"`
	CapitalRequirement decimal.Decimal   `json:"capital_requirement"`
	RiskWeightedAssets decimal.Decimal   `json:"risk_weighted_assets"`
	GateState          GateState         `json:"gate_state"`
	GateReason         string            `json:"gate_reason,omitempty"`
	Intermediates      map[string]string `json:"intermediates"`
	ParameterRefs      []ParameterRef    `json:"parameter_refs"`
	IncludedLossIDs    []string          `json:"included_loss_ids,omitempty"`
	Anomalies          []string          `json:"anomalies,omitempty"`
	SupervisorOverride *AppliedOverride  `json:"supervisor_override,omitempty"`
	InputHash          string            `json:"input_hash"`
	OutputHash         string            `json:"output_hash"`
}
