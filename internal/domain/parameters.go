package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Model names a calculation method whose parameters are versioned together
type Model string

const (
	ModelPrimary   Model = "primary"
	ModelFlat      Model = "flat"
	ModelSegmented Model = "segmented"
)

// Models lists every known model
var Models = []Model{ModelPrimary, ModelFlat, ModelSegmented}

// Valid reports whether m is a known model
func (m Model) Valid() bool {
	for _, known := range Models {
		if m == known {
			return true
		}
	}
	return false
}

// ParameterKind distinguishes numeric parameters from flags
type ParameterKind string

const (
	KindNumeric ParameterKind = "numeric"
	KindBoolean ParameterKind = "boolean"
)

// Parameter is a single named value within a parameter set
type Parameter struct {
	Name  string          `yaml:"name" json:"name"`
	Kind  ParameterKind   `yaml:"kind" json:"kind"`
	Value decimal.Decimal `yaml:"value" json:"value"`
	Flag  bool            `yaml:"flag" json:"flag"`
}

// Status is the lifecycle state of a parameter set version
type Status string

const (
	StatusDraft       Status = "draft"
	StatusUnderReview Status = "under_review"
	StatusApproved    Status = "approved"
	StatusActive      Status = "active"
	StatusSuperseded  Status = "superseded"
	StatusRejected    Status = "rejected"
)

// Frozen reports whether values of a set in this status may no longer change
func (s Status) Frozen() bool {
	switch s {
	case StatusApproved, StatusActive, StatusSuperseded:
		return true
	}
	return false
}

// Role is the governance role an actor acts under
type Role string

const (
	RoleMaker    Role = "maker"
	RoleChecker  Role = "checker"
	RoleApprover Role = "approver"
	RoleSystem   Role = "system"
)

// Approval is one sign-off in a parameter set's approver chain
type Approval struct {
	Actor    string    `yaml:"actor" json:"actor"`
	Role     Role      `yaml:"role" json:"role"`
	Decision string    `yaml:"decision" json:"decision"`
	Comment  string    `yaml:"comment,omitempty" json:"comment,omitempty"`
	At       time.Time `yaml:"at" json:"at"`
}

// ParameterSet is one version of the parameters for a model
type ParameterSet struct {
	ModelName           Model       `yaml:"model" json:"model"`
	VersionID           string      `yaml:"version_id" json:"version_id"`
	EffectiveDate       time.Time   `yaml:"effective_date" json:"effective_date"`
	Parameters          []Parameter `yaml:"parameters" json:"parameters"`
	CreatedBy           string      `yaml:"created_by" json:"created_by"`
	ApproverChain       []Approval  `yaml:"approver_chain,omitempty" json:"approver_chain,omitempty"`
	Status              Status      `yaml:"status" json:"status"`
	ParentVersionID     string      `yaml:"parent_version_id,omitempty" json:"parent_version_id,omitempty"`
	ChangeReason        string      `yaml:"change_reason,omitempty" json:"change_reason,omitempty"`
	ContentDigest       string      `yaml:"content_digest,omitempty" json:"content_digest,omitempty"`
	ScheduledActivation *time.Time  `yaml:"scheduled_activation,omitempty" json:"scheduled_activation,omitempty"`
	CreatedAt           time.Time   `yaml:"created_at" json:"created_at"`
	ActivatedAt         *time.Time  `yaml:"activated_at,omitempty" json:"activated_at,omitempty"`
}

// Lookup returns the named parameter
func (ps *ParameterSet) Lookup(name string) (Parameter, bool) {
	for _, p := range ps.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// Clone returns a deep copy
func (ps *ParameterSet) Clone() *ParameterSet {
	if ps == nil {
		return nil
	}
	out := *ps
	out.Parameters = append([]Parameter(nil), ps.Parameters...)
	out.ApproverChain = append([]Approval(nil), ps.ApproverChain...)
	if ps.ScheduledActivation != nil {
		t := *ps.ScheduledActivation
		out.ScheduledActivation = &t
	}
	if ps.ActivatedAt != nil {
		t := *ps.ActivatedAt
		out.ActivatedAt = &t
	}
	return &out
}

// ParameterRef identifies the exact parameter version a run used
type ParameterRef struct {
	Model         Model  `json:"model"`
	VersionID     string `json:"version_id"`
	ContentDigest string `json:"content_digest"`
}
