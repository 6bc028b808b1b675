// Package store persists calculation inputs, parameter set versions and
// lineage records, and serves them back to the engine.
package store

import (
	"context"
	"os"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/rgehrsitz/opcap/internal/domain"
)

// Dataset is a bundle of raw inputs for one or more entities, as loaded
// from an ingest file
type Dataset struct {
	IndicatorPeriods []domain.IndicatorPeriod `yaml:"indicator_periods"`
	LossRecords      []domain.LossRecord      `yaml:"loss_records"`
	SegmentIncome    []domain.SegmentIncome   `yaml:"segment_income"`

	ConsolidationMappings []domain.ConsolidationMapping `yaml:"consolidation_mappings"`
}

// LoadDataset reads a Dataset from a YAML file
func LoadDataset(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "store: read dataset %s", path)
	}
	var ds Dataset
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return nil, eris.Wrapf(err, "store: parse dataset %s", path)
	}
	return &ds, nil
}

// Validate checks every record the way ingestion does
func (ds *Dataset) Validate() error {
	for _, p := range ds.IndicatorPeriods {
		if err := validatePeriod(p); err != nil {
			return err
		}
	}
	for _, r := range ds.LossRecords {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	for _, s := range ds.SegmentIncome {
		if err := validateIncome(s); err != nil {
			return err
		}
	}
	for _, m := range ds.ConsolidationMappings {
		if err := m.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func validatePeriod(p domain.IndicatorPeriod) error {
	switch {
	case p.EntityID == "":
		return &domain.DomainComputationError{Field: "entity_id", Detail: "indicator period " + p.ID + " has no entity"}
	case p.PeriodLabel == "":
		return &domain.DomainComputationError{EntityID: p.EntityID, Field: "period_label", Detail: "indicator period " + p.ID + " has no label"}
	case p.AsOfDate.IsZero():
		return &domain.DomainComputationError{EntityID: p.EntityID, Field: "as_of_date", Detail: "indicator period " + p.PeriodLabel + " has no date"}
	}
	return nil
}

func validateIncome(s domain.SegmentIncome) error {
	switch {
	case s.EntityID == "":
		return &domain.DomainComputationError{Field: "entity_id", Detail: "segment income " + s.ID + " has no entity"}
	case s.PeriodLabel == "" || s.Segment == "":
		return &domain.DomainComputationError{EntityID: s.EntityID, Field: "segment", Detail: "segment income " + s.ID + " needs a period label and a segment"}
	case s.AsOfDate.IsZero():
		return &domain.DomainComputationError{EntityID: s.EntityID, Field: "as_of_date", Detail: "segment income " + s.PeriodLabel + " has no date"}
	}
	return nil
}

// MemoryData serves a Dataset held in memory. It applies the same as-of and
// lookback rules as SQLiteStore.
type MemoryData struct {
	ds Dataset
}

// NewMemoryData validates ds and wraps a copy of it
func NewMemoryData(ds *Dataset) (*MemoryData, error) {
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return &MemoryData{ds: Dataset{
		IndicatorPeriods: append([]domain.IndicatorPeriod(nil), ds.IndicatorPeriods...),
		LossRecords:      append([]domain.LossRecord(nil), ds.LossRecords...),
		SegmentIncome:    append([]domain.SegmentIncome(nil), ds.SegmentIncome...),

		ConsolidationMappings: append([]domain.ConsolidationMapping(nil), ds.ConsolidationMappings...),
	}}, nil
}

// FetchIndicatorPeriods returns the latest lookback periods dated on or
// before asOf, oldest first
func (m *MemoryData) FetchIndicatorPeriods(_ context.Context, entityID string, asOf time.Time, lookback int) ([]domain.IndicatorPeriod, error) {
	var out []domain.IndicatorPeriod
	for _, p := range m.ds.IndicatorPeriods {
		if p.EntityID == entityID && !p.AsOfDate.After(asOf) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].AsOfDate.Equal(out[j].AsOfDate) {
			return out[i].AsOfDate.Before(out[j].AsOfDate)
		}
		return out[i].PeriodLabel < out[j].PeriodLabel
	})
	if lookback > 0 && len(out) > lookback {
		out = out[len(out)-lookback:]
	}
	return out, nil
}

// FetchLossRecords returns every record version accounted within the window
// together with every later version of those records, wherever the later
// version is accounted
func (m *MemoryData) FetchLossRecords(_ context.Context, entityID string, asOf time.Time, windowYears int) ([]domain.LossRecord, error) {
	start := asOf.AddDate(-windowYears, 0, 0)
	successor := make(map[string]domain.LossRecord)
	for _, r := range m.ds.LossRecords {
		if r.SupersedesEventID != "" {
			successor[r.SupersedesEventID] = r
		}
	}
	seen := make(map[string]bool)
	var out []domain.LossRecord
	for _, r := range m.ds.LossRecords {
		if r.EntityID != entityID || !r.AccountingDate.After(start) || r.AccountingDate.After(asOf) {
			continue
		}
		for next, ok := r, true; ok && !seen[next.EventID]; next, ok = successor[next.EventID] {
			seen[next.EventID] = true
			out = append(out, next)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EventID < out[j].EventID })
	return out, nil
}

// FetchSegmentIncome returns the rows of the latest lookback period labels
// dated on or before asOf
func (m *MemoryData) FetchSegmentIncome(_ context.Context, entityID string, asOf time.Time, lookback int) ([]domain.SegmentIncome, error) {
	latest := make(map[string]time.Time)
	var rows []domain.SegmentIncome
	for _, s := range m.ds.SegmentIncome {
		if s.EntityID != entityID || s.AsOfDate.After(asOf) {
			continue
		}
		rows = append(rows, s)
		if s.AsOfDate.After(latest[s.PeriodLabel]) {
			latest[s.PeriodLabel] = s.AsOfDate
		}
	}

	labels := make([]string, 0, len(latest))
	for label := range latest {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if !latest[labels[i]].Equal(latest[labels[j]]) {
			return latest[labels[i]].Before(latest[labels[j]])
		}
		return labels[i] < labels[j]
	})
	if lookback > 0 && len(labels) > lookback {
		labels = labels[len(labels)-lookback:]
	}
	keep := make(map[string]bool, len(labels))
	for _, label := range labels {
		keep[label] = true
	}

	var out []domain.SegmentIncome
	for _, s := range rows {
		if keep[s.PeriodLabel] {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].AsOfDate.Equal(out[j].AsOfDate) {
			return out[i].AsOfDate.Before(out[j].AsOfDate)
		}
		if out[i].PeriodLabel != out[j].PeriodLabel {
			return out[i].PeriodLabel < out[j].PeriodLabel
		}
		return out[i].Segment < out[j].Segment
	})
	return out, nil
}

// FetchConsolidationMappings returns the mappings under parentID in effect
// at asOf, ordered by child
func (m *MemoryData) FetchConsolidationMappings(_ context.Context, parentID string, asOf time.Time) ([]domain.ConsolidationMapping, error) {
	var out []domain.ConsolidationMapping
	for _, c := range m.ds.ConsolidationMappings {
		if c.ParentEntityID == parentID && c.InEffect(asOf) {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ChildEntityID != out[j].ChildEntityID {
			return out[i].ChildEntityID < out[j].ChildEntityID
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
