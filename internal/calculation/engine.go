package calculation

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rgehrsitz/opcap/internal/domain"
	"github.com/rgehrsitz/opcap/internal/lineage"
	"github.com/rgehrsitz/opcap/internal/metrics"
	"github.com/rgehrsitz/opcap/internal/params"
)

// DefaultBatchLimit bounds concurrent calculations in CalculateBatch
const DefaultBatchLimit = 4

// Request asks for one capital calculation
type Request struct {
	EntityID  string            `json:"entity_id" validate:"required"`
	AsOf      time.Time         `json:"as_of" validate:"required"`
	Method    domain.Method     `json:"method" validate:"required,oneof=primary flat segmented"`
	Overrides map[string]string `json:"overrides,omitempty"`
	// ParameterVersion pins a frozen version instead of resolving the active one
	ParameterVersion string `json:"parameter_version,omitempty"`
	InitiatedBy      string `json:"initiated_by" validate:"required"`
}

// BatchResult pairs a batch request with its outcome
type BatchResult struct {
	Request Request
	Result  *domain.CalculationResult
	Err     error
}

// Engine orchestrates parameter resolution, data fetching, the method
// calculators and the lineage write
type Engine struct {
	Params    ParameterResolver
	Data      DataSource
	Lineage   *lineage.Recorder
	Primary   *PrimaryCalculator
	Flat      FlatCalculator
	Segmented SegmentedCalculator
	// Supervisor, when set, applies approved overrides of the final figure
	Supervisor OverrideSource
	BatchLimit int

	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	validate *validator.Validate
}

// NewEngine creates an engine with the default calculators
func NewEngine(resolver ParameterResolver, data DataSource, recorder *lineage.Recorder) *Engine {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return &Engine{
		Params:     resolver,
		Data:       data,
		Lineage:    recorder,
		Primary:    NewPrimaryCalculator(),
		BatchLimit: DefaultBatchLimit,
		Logger:     zap.NewNop(),
		validate:   v,
	}
}

// SetLogger sets the engine logger; nil installs a no-op logger
func (e *Engine) SetLogger(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	e.Logger = logger
}

// SetMetrics sets the collectors; nil disables metrics
func (e *Engine) SetMetrics(m *metrics.Metrics) {
	e.Metrics = m
}

// Calculate runs one calculation and records its lineage
func (e *Engine) Calculate(ctx context.Context, req Request) (*domain.CalculationResult, error) {
	start := time.Now()
	result, err := e.calculate(ctx, req)
	if err != nil {
		err = domain.Annotate(err, req.EntityID, req.Method)
		e.Metrics.ObserveFailure(string(req.Method), errorKind(err))
		e.Logger.Error("calculation failed",
			zap.String("entity_id", req.EntityID),
			zap.String("method", string(req.Method)),
			zap.Time("as_of", req.AsOf),
			zap.String("kind", errorKind(err)),
			zap.Error(err),
		)
		return nil, err
	}

	e.Metrics.ObserveRun(string(result.Method), string(result.GateState), time.Since(start))
	e.Logger.Info("calculation complete",
		zap.String("run_id", result.RunID),
		zap.String("entity_id", result.EntityID),
		zap.String("method", string(result.Method)),
		zap.String("capital", result.CapitalRequirement.String()),
		zap.String("gate_state", string(result.GateState)),
	)
	return result, nil
}

func (e *Engine) calculate(ctx context.Context, req Request) (*domain.CalculationResult, error) {
	if err := e.checkRequest(req); err != nil {
		return nil, err
	}

	set, err := e.resolve(req)
	if err != nil {
		return nil, err
	}
	effective, err := params.ApplyOverrides(set, req.Overrides)
	if err != nil {
		return nil, err
	}
	snap, err := params.Decode(effective)
	if err != nil {
		return nil, err
	}

	run := &domain.CalculationRun{
		EntityID: req.EntityID,
		Method:   req.Method,
		AsOfDate: req.AsOf,
		ParameterRefs: []domain.ParameterRef{{
			Model:         set.ModelName,
			VersionID:     set.VersionID,
			ContentDigest: set.ContentDigest,
		}},
		Overrides:   cloneOverrides(req.Overrides),
		InitiatedBy: req.InitiatedBy,
	}
	run.Input.Parameters = append([]domain.Parameter(nil), effective.Parameters...)

	gate := domain.GateNotApplicable
	var reason string
	switch req.Method {
	case domain.MethodPrimary:
		r, err := e.runPrimary(ctx, req, snap, run)
		if err != nil {
			return nil, err
		}
		gate, reason = r.Multiplier.State, r.Multiplier.Reason
	case domain.MethodFlat:
		periods, err := e.Data.FetchIndicatorPeriods(ctx, req.EntityID, req.AsOf, snap.FlatLookback)
		if err != nil {
			return nil, eris.Wrap(err, "calculation: fetch indicator periods")
		}
		run.Input.IndicatorPeriods = periods
		r, err := e.Flat.Calculate(snap, periods)
		if err != nil {
			return nil, err
		}
		fillLegacy(run, r)
	case domain.MethodSegmented:
		income, err := e.Data.FetchSegmentIncome(ctx, req.EntityID, req.AsOf, snap.SegmentedLookback)
		if err != nil {
			return nil, eris.Wrap(err, "calculation: fetch segment income")
		}
		run.Input.SegmentIncome = income
		r, err := e.Segmented.Calculate(snap, income)
		if err != nil {
			return nil, err
		}
		fillLegacy(run, r)
	}
	e.applySupervisorOverride(run, snap)

	if _, err := e.Lineage.Record(ctx, run); err != nil {
		return nil, err
	}

	return &domain.CalculationResult{
		RunID:              run.RunID,
		EntityID:           run.EntityID,
		Method:             run.Method,
		AsOfDate:           run.AsOfDate,
		CapitalRequirement: run.Outputs.CapitalRequirement,
		RiskWeightedAssets: run.Outputs.RiskWeightedAssets,
		GateState:          gate,
		GateReason:         reason,
		Intermediates:      cloneOverrides(run.Intermediates),
		ParameterRefs:      append([]domain.ParameterRef(nil), run.ParameterRefs...),
		IncludedLossIDs:    append([]string(nil), run.Input.IncludedLossIDs...),
		Anomalies:          append([]string(nil), run.Anomalies...),
		SupervisorOverride: cloneApplied(run.SupervisorOverride),
		InputHash:          run.InputHash,
		OutputHash:         run.OutputHash,
	}, nil
}

func (e *Engine) runPrimary(ctx context.Context, req Request, snap *params.Snapshot, run *domain.CalculationRun) (*PrimaryResult, error) {
	periods, err := e.Data.FetchIndicatorPeriods(ctx, req.EntityID, req.AsOf, snap.AveragingYears)
	if err != nil {
		return nil, eris.Wrap(err, "calculation: fetch indicator periods")
	}
	losses, err := e.Data.FetchLossRecords(ctx, req.EntityID, req.AsOf, snap.LossWindowYears)
	if err != nil {
		return nil, eris.Wrap(err, "calculation: fetch loss records")
	}
	run.Input.IndicatorPeriods = periods
	run.Input.LossRecords = losses

	r, err := e.Primary.Calculate(snap, periods, losses, LossWindow{
		AsOf:         req.AsOf,
		Years:        snap.LossWindowYears,
		MinThreshold: snap.MinLossThreshold,
	})
	if err != nil {
		return nil, err
	}
	run.Input.IncludedLossIDs = append([]string(nil), r.Losses.IncludedIDs...)
	run.Intermediates = r.Intermediates()
	run.Anomalies = r.Anomalies()
	run.Outputs = domain.Outputs{CapitalRequirement: r.Capital, RiskWeightedAssets: r.RWA}
	return r, nil
}

// applySupervisorOverride replaces the calculated capital with the approved
// override in effect, keeping the calculated figure in the lineage
func (e *Engine) applySupervisorOverride(run *domain.CalculationRun, snap *params.Snapshot) {
	if e.Supervisor == nil {
		return
	}
	o, ok := e.Supervisor.InEffect(run.EntityID, run.Method, run.AsOfDate)
	if !ok {
		return
	}
	calculated := run.Outputs.CapitalRequirement
	capital := o.Apply(calculated)
	run.SupervisorOverride = &domain.AppliedOverride{
		OverrideID:        o.ID,
		Reason:            o.Reason,
		ApprovedBy:        o.ApprovedBy,
		ApprovalRef:       o.ApprovalRef,
		CalculatedCapital: calculated,
		OverrideCapital:   capital,
	}
	run.Outputs = domain.Outputs{
		CapitalRequirement: capital,
		RiskWeightedAssets: capital.Mul(snap.LeverageConstant).Round(2),
	}
	if run.Intermediates == nil {
		run.Intermediates = make(map[string]string)
	}
	run.Intermediates["calculated_capital"] = calculated.String()
	run.Anomalies = append(run.Anomalies, fmt.Sprintf(
		"capital %s replaced by supervisor override %s (approval %s)", calculated.StringFixed(2), o.ID, o.ApprovalRef))
	e.Metrics.ObserveOverrideDecision("applied")
	e.Logger.Info("supervisor override applied",
		zap.String("entity_id", run.EntityID),
		zap.String("method", string(run.Method)),
		zap.String("override_id", o.ID),
		zap.String("calculated", calculated.String()),
		zap.String("capital", capital.String()))
}

func fillLegacy(run *domain.CalculationRun, r *LegacyResult) {
	run.Intermediates = r.Intermediates()
	run.Anomalies = r.Anomalies()
	run.Outputs = domain.Outputs{CapitalRequirement: r.Capital, RiskWeightedAssets: r.RWA}
}

// resolve finds the parameter set for the request's method
func (e *Engine) resolve(req Request) (*domain.ParameterSet, error) {
	model := req.Method.Model()
	if req.ParameterVersion == "" {
		return e.Params.ResolveActive(model, req.AsOf)
	}
	set, err := e.Params.GetVersion(req.ParameterVersion)
	if err != nil {
		return nil, err
	}
	if set.ModelName != model {
		return nil, &domain.ValidationError{
			Model:     set.ModelName,
			VersionID: set.VersionID,
			Violations: []domain.Violation{{
				Field:   "parameter_version",
				Message: fmt.Sprintf("version is for model %s, request needs %s", set.ModelName, model),
			}},
		}
	}
	if !set.Status.Frozen() {
		return nil, &domain.ValidationError{
			Model:     set.ModelName,
			VersionID: set.VersionID,
			Violations: []domain.Violation{{
				Field:   "parameter_version",
				Message: "version has status " + string(set.Status) + " and is not approved",
			}},
		}
	}
	return set, nil
}

func (e *Engine) checkRequest(req Request) error {
	err := e.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return eris.Wrap(err, "calculation: validate request")
	}
	out := &domain.ValidationError{EntityID: req.EntityID}
	for _, fe := range verrs {
		msg := "failed " + fe.Tag()
		switch fe.Tag() {
		case "required":
			msg = "is required"
		case "oneof":
			msg = "must be one of " + fe.Param()
		}
		out.Violations = append(out.Violations, domain.Violation{Field: fe.Field(), Message: msg})
	}
	return out
}

// CalculateBatch runs independent requests concurrently, at most BatchLimit
// at a time. One failure does not stop the others.
func (e *Engine) CalculateBatch(ctx context.Context, reqs []Request) []BatchResult {
	out := make([]BatchResult, len(reqs))
	var g errgroup.Group
	limit := e.BatchLimit
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			out[i].Request = req
			if err := ctx.Err(); err != nil {
				out[i].Err = err
				return nil
			}
			out[i].Result, out[i].Err = e.Calculate(ctx, req)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// GetLineage returns the recorded run
func (e *Engine) GetLineage(ctx context.Context, runID string) (*domain.CalculationRun, error) {
	return e.Lineage.Get(ctx, runID)
}

// VerifyIntegrity recomputes the hashes of a recorded run
func (e *Engine) VerifyIntegrity(ctx context.Context, runID string) (*lineage.Verification, error) {
	return e.Lineage.Verify(ctx, runID)
}

// ValidateParameters checks a candidate parameter set for model without
// storing it
func (e *Engine) ValidateParameters(model domain.Model, candidate *domain.ParameterSet) []domain.Violation {
	if candidate == nil {
		return []domain.Violation{{Field: "parameter_set", Message: "is required"}}
	}
	set := candidate.Clone()
	if set.ModelName == "" {
		set.ModelName = model
	}
	if set.ModelName != model {
		return []domain.Violation{{
			Field:   "model",
			Message: fmt.Sprintf("candidate is for model %s, expected %s", set.ModelName, model),
		}}
	}
	return params.Validate(set)
}

func errorKind(err error) string {
	var (
		insufficient *domain.InsufficientDataError
		validation   *domain.ValidationError
		computation  *domain.DomainComputationError
		integrity    *domain.IntegrityError
	)
	switch {
	case errors.As(err, &insufficient):
		return "insufficient_data"
	case errors.As(err, &validation):
		return "validation"
	case errors.As(err, &computation):
		return "domain_computation"
	case errors.As(err, &integrity):
		return "integrity"
	case errors.Is(err, domain.ErrNoActiveVersion):
		return "no_active_version"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}

func cloneApplied(a *domain.AppliedOverride) *domain.AppliedOverride {
	if a == nil {
		return nil
	}
	out := *a
	return &out
}

func cloneOverrides(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
