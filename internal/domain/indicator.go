package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// IndicatorPeriod is one reporting period of the business indicator for an entity
type IndicatorPeriod struct {
	ID          string `yaml:"id" json:"id"`
	EntityID    string `yaml:"entity_id" json:"entity_id"`
	PeriodLabel string `yaml:"period_label" json:"period_label"`
	// InterestComponent is the interest, leases and dividend component (ILDC)
	InterestComponent decimal.Decimal `yaml:"ildc" json:"ildc"`
	// ServicesComponent is the services component (SC)
	ServicesComponent decimal.Decimal `yaml:"sc" json:"sc"`
	// FinancialComponent is the financial component (FC)
	FinancialComponent decimal.Decimal `yaml:"fc" json:"fc"`
	AsOfDate           time.Time       `yaml:"as_of_date" json:"as_of_date"`
}

// Total returns ILDC + SC + FC
func (p IndicatorPeriod) Total() decimal.Decimal {
	return p.InterestComponent.Add(p.ServicesComponent).Add(p.FinancialComponent)
}

// SegmentIncome is the gross income of one business line for one period
type SegmentIncome struct {
	ID          string          `yaml:"id" json:"id"`
	EntityID    string          `yaml:"entity_id" json:"entity_id"`
	PeriodLabel string          `yaml:"period_label" json:"period_label"`
	Segment     string          `yaml:"segment" json:"segment"`
	GrossIncome decimal.Decimal `yaml:"gross_income" json:"gross_income"`
	AsOfDate    time.Time       `yaml:"as_of_date" json:"as_of_date"`
}

// Bracket is a progressive bracket: the coefficient applies to the slice of
// value between the previous bracket's threshold and this one's.
type Bracket struct {
	Threshold   decimal.Decimal `yaml:"threshold" json:"threshold"`
	Coefficient decimal.Decimal `yaml:"coefficient" json:"coefficient"`
}
