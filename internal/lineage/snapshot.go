package lineage

import (
	"sort"

	"github.com/rgehrsitz/opcap/internal/canonical"
	"github.com/rgehrsitz/opcap/internal/domain"
	"github.com/rgehrsitz/opcap/internal/params"
)

// InputDocument is the canonical form of everything a run consumed. Every
// list is sorted by id so the document does not depend on fetch order.
func InputDocument(run *domain.CalculationRun) map[string]any {
	in := run.Input

	refs := append([]domain.ParameterRef(nil), run.ParameterRefs...)
	sort.Slice(refs, func(i, j int) bool { return refs[i].Model < refs[j].Model })
	refDocs := make([]any, len(refs))
	for i, ref := range refs {
		refDocs[i] = map[string]any{
			"model":          string(ref.Model),
			"version_id":     ref.VersionID,
			"content_digest": ref.ContentDigest,
		}
	}

	periods := append([]domain.IndicatorPeriod(nil), in.IndicatorPeriods...)
	sort.Slice(periods, func(i, j int) bool { return periods[i].ID < periods[j].ID })
	periodDocs := make([]any, len(periods))
	for i, p := range periods {
		periodDocs[i] = map[string]any{
			"id":           p.ID,
			"entity_id":    p.EntityID,
			"period_label": p.PeriodLabel,
			"ildc":         p.InterestComponent,
			"sc":           p.ServicesComponent,
			"fc":           p.FinancialComponent,
			"as_of_date":   p.AsOfDate,
		}
	}

	losses := append([]domain.LossRecord(nil), in.LossRecords...)
	sort.Slice(losses, func(i, j int) bool { return losses[i].EventID < losses[j].EventID })
	lossDocs := make([]any, len(losses))
	for i, r := range losses {
		lossDocs[i] = map[string]any{
			"event_id":               r.EventID,
			"entity_id":              r.EntityID,
			"occurrence_date":        r.OccurrenceDate,
			"discovery_date":         r.DiscoveryDate,
			"accounting_date":        r.AccountingDate,
			"gross_amount":           r.GrossAmount,
			"recovered_amount":       r.RecoveredAmount,
			"excluded":               r.Excluded,
			"exclusion_approval_ref": r.ExclusionApprovalRef,
			"exclusion_reason":       r.ExclusionReason,
			"supersedes_event_id":    r.SupersedesEventID,
			"event_type":             r.EventType,
			"business_line":          r.BusinessLine,
			"recorded_at":            r.RecordedAt,
		}
	}

	income := append([]domain.SegmentIncome(nil), in.SegmentIncome...)
	sort.Slice(income, func(i, j int) bool { return income[i].ID < income[j].ID })
	incomeDocs := make([]any, len(income))
	for i, s := range income {
		incomeDocs[i] = map[string]any{
			"id":           s.ID,
			"entity_id":    s.EntityID,
			"period_label": s.PeriodLabel,
			"segment":      s.Segment,
			"gross_income": s.GrossIncome,
			"as_of_date":   s.AsOfDate,
		}
	}

	included := append([]string(nil), in.IncludedLossIDs...)
	sort.Strings(included)

	overrides := run.Overrides
	if overrides == nil {
		overrides = map[string]string{}
	}

	return map[string]any{
		"entity_id":         run.EntityID,
		"method":            string(run.Method),
		"as_of_date":        run.AsOfDate,
		"parameter_refs":    refDocs,
		"overrides":         overrides,
		"parameters":        params.Document(in.Parameters),
		"indicator_periods": periodDocs,
		"loss_records":      lossDocs,
		"segment_income":    incomeDocs,
		"included_loss_ids": included,
	}
}

// OutputDocument is the canonical form of what a run produced
func OutputDocument(run *domain.CalculationRun) map[string]any {
	intermediates := run.Intermediates
	if intermediates == nil {
		intermediates = map[string]string{}
	}
	anomalies := run.Anomalies
	if anomalies == nil {
		anomalies = []string{}
	}
	doc := map[string]any{
		"intermediates": intermediates,
		"outputs": map[string]any{
			"capital_requirement":  run.Outputs.CapitalRequirement,
			"risk_weighted_assets": run.Outputs.RiskWeightedAssets,
		},
		"anomalies": anomalies,
	}
	// absent rather than null so runs without an override hash as before
	if o := run.SupervisorOverride; o != nil {
		doc["supervisor_override"] = map[string]any{
			"override_id":        o.OverrideID,
			"reason":             string(o.Reason),
			"approved_by":        o.ApprovedBy,
			"approval_ref":       o.ApprovalRef,
			"calculated_capital": o.CalculatedCapital,
			"override_capital":   o.OverrideCapital,
		}
	}
	return doc
}

// InputHash hashes the canonical input document
func InputHash(run *domain.CalculationRun) (string, error) {
	return canonical.Hash(canonical.DomainRunInput, InputDocument(run))
}

// OutputHash hashes the canonical output document
func OutputHash(run *domain.CalculationRun) (string, error) {
	return canonical.Hash(canonical.DomainRunOutput, OutputDocument(run))
}
