package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// MaxApprovalRefLength bounds the exclusion approval reference
const MaxApprovalRefLength = 100

// LossRecord is a single operational loss event. Records are never edited in
// place: a correction is a new record whose SupersedesEventID points at the
// version it replaces.
type LossRecord struct {
	EventID              string          `yaml:"event_id" json:"event_id"`
	EntityID             string          `yaml:"entity_id" json:"entity_id"`
	OccurrenceDate       time.Time       `yaml:"occurrence_date" json:"occurrence_date"`
	DiscoveryDate        time.Time       `yaml:"discovery_date" json:"discovery_date"`
	AccountingDate       time.Time       `yaml:"accounting_date" json:"accounting_date"`
	GrossAmount          decimal.Decimal `yaml:"gross_amount" json:"gross_amount"`
	RecoveredAmount      decimal.Decimal `yaml:"recovered_amount" json:"recovered_amount"`
	Excluded             bool            `yaml:"excluded" json:"excluded"`
	ExclusionApprovalRef string          `yaml:"exclusion_approval_ref,omitempty" json:"exclusion_approval_ref,omitempty"`
	ExclusionReason      string          `yaml:"exclusion_reason,omitempty" json:"exclusion_reason,omitempty"`
	SupersedesEventID    string          `yaml:"supersedes_event_id,omitempty" json:"supersedes_event_id,omitempty"`
	EventType            string          `yaml:"event_type,omitempty" json:"event_type,omitempty"`
	BusinessLine         string          `yaml:"business_line,omitempty" json:"business_line,omitempty"`
	RecordedAt           time.Time       `yaml:"recorded_at" json:"recorded_at"`
}

// NetAmount returns gross minus recoveries
func (r LossRecord) NetAmount() decimal.Decimal {
	return r.GrossAmount.Sub(r.RecoveredAmount)
}

// Validate checks everything a loss record must satisfy at ingestion
func (r LossRecord) Validate() error {
	if err := r.ValidateAmounts(); err != nil {
		return err
	}
	switch {
	case strings.TrimSpace(r.EventID) == "":
		return r.invalid("event_id", "event id is required")
	case r.AccountingDate.IsZero():
		return r.invalid("accounting_date", "accounting date is required")
	case r.Excluded && !ValidApprovalRef(r.ExclusionApprovalRef):
		return r.invalid("exclusion_approval_ref", "excluded record needs a valid approval reference")
	}
	return nil
}

// ValidateAmounts checks 0 <= recovered <= gross
func (r LossRecord) ValidateAmounts() error {
	switch {
	case r.GrossAmount.IsNegative():
		return r.invalid("gross_amount", "gross amount must not be negative")
	case r.RecoveredAmount.IsNegative():
		return r.invalid("recovered_amount", "recovered amount must not be negative")
	case r.RecoveredAmount.GreaterThan(r.GrossAmount):
		return r.invalid("recovered_amount", "recovered amount exceeds gross amount")
	}
	return nil
}

func (r LossRecord) invalid(field, detail string) error {
	return &DomainComputationError{
		EntityID: r.EntityID,
		Field:    field,
		Detail:   "loss " + r.EventID + ": " + detail,
	}
}

// ValidApprovalRef reports whether ref can authorise an exclusion
func ValidApprovalRef(ref string) bool {
	ref = strings.TrimSpace(ref)
	return ref != "" && utf8.RuneCountInString(ref) <= MaxApprovalRefLength
}

// LossEventAction is the kind of change recorded against a loss record
type LossEventAction string

const (
	LossEventRecorded LossEventAction = "recorded"
	LossEventAmended  LossEventAction = "amended"
	LossEventExcluded LossEventAction = "excluded"
)

// LossEvent is an audit entry for a change to the loss history
type LossEvent struct {
	ID          string          `json:"id"`
	EventID     string          `json:"event_id"`
	PriorID     string          `json:"prior_id,omitempty"`
	Action      LossEventAction `json:"action"`
	Actor       string          `json:"actor"`
	ApprovalRef string          `json:"approval_ref,omitempty"`
	Reason      string          `json:"reason,omitempty"`
	RecordedAt  time.Time       `json:"recorded_at"`
}
