// Package lineage records calculation runs write-once with content hashes
// over their inputs and outputs, and verifies them later.
package lineage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/rgehrsitz/opcap/internal/domain"
	"github.com/rgehrsitz/opcap/internal/metrics"
)

// Store is append-only run storage. Implementations must reject a second
// Append with an existing run id and return domain.ErrNotFound from Get.
type Store interface {
	Append(ctx context.Context, run *domain.CalculationRun) error
	Get(ctx context.Context, runID string) (*domain.CalculationRun, error)
	List(ctx context.Context, entityID string) ([]*domain.CalculationRun, error)
}

// HashCheck compares one stored hash with its recomputation
type HashCheck struct {
	Stored     string `json:"stored"`
	Recomputed string `json:"recomputed"`
	Match      bool   `json:"match"`
}

// Verification is the result of re-hashing a stored run
type Verification struct {
	RunID      string    `json:"run_id"`
	InputHash  HashCheck `json:"input_hash"`
	OutputHash HashCheck `json:"output_hash"`
	Valid      bool      `json:"valid"`
	CheckedAt  time.Time `json:"checked_at"`
}

// Recorder owns run identity and hashing
type Recorder struct {
	store   Store
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	newID   func() string
}

// Option configures a Recorder
type Option func(*Recorder)

// WithLogger sets the recorder logger
func WithLogger(l *zap.Logger) Option {
	return func(r *Recorder) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics counts integrity checks
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Recorder) { r.metrics = m }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// NewRecorder creates a recorder writing to store
func NewRecorder(store Store, opts ...Option) *Recorder {
	r := &Recorder{
		store:  store,
		logger: zap.NewNop(),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record assigns the run id and creation time, computes both hashes and
// appends a private copy to the store. The hashes and id are written back
// to run so the caller can return them.
func (r *Recorder) Record(ctx context.Context, run *domain.CalculationRun) (string, error) {
	run.RunID = r.newID()
	run.CreatedAt = r.now()

	in, err := InputHash(run)
	if err != nil {
		return "", eris.Wrap(err, "lineage: hash input")
	}
	out, err := OutputHash(run)
	if err != nil {
		return "", eris.Wrap(err, "lineage: hash output")
	}
	run.InputHash = in
	run.OutputHash = out

	if err := r.store.Append(ctx, run.Clone()); err != nil {
		return "", eris.Wrapf(err, "lineage: append run %s", run.RunID)
	}
	r.logger.Debug("run recorded",
		zap.String("run_id", run.RunID),
		zap.String("entity_id", run.EntityID),
		zap.String("method", string(run.Method)),
		zap.String("input_hash", in),
		zap.String("output_hash", out),
	)
	return run.RunID, nil
}

// Get returns a copy of a stored run
func (r *Recorder) Get(ctx context.Context, runID string) (*domain.CalculationRun, error) {
	run, err := r.store.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	return run.Clone(), nil
}

// List returns copies of every run for an entity, oldest first
func (r *Recorder) List(ctx context.Context, entityID string) ([]*domain.CalculationRun, error) {
	runs, err := r.store.List(ctx, entityID)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.CalculationRun, len(runs))
	for i, run := range runs {
		out[i] = run.Clone()
	}
	return out, nil
}

// Verify recomputes both hashes of a stored run. On any mismatch it returns
// the verification together with an *domain.IntegrityError. The stored run
// is never modified.
func (r *Recorder) Verify(ctx context.Context, runID string) (*Verification, error) {
	run, err := r.store.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	in, err := InputHash(run)
	if err != nil {
		return nil, eris.Wrap(err, "lineage: hash input")
	}
	out, err := OutputHash(run)
	if err != nil {
		return nil, eris.Wrap(err, "lineage: hash output")
	}

	v := &Verification{
		RunID:      runID,
		InputHash:  HashCheck{Stored: run.InputHash, Recomputed: in, Match: in == run.InputHash},
		OutputHash: HashCheck{Stored: run.OutputHash, Recomputed: out, Match: out == run.OutputHash},
		CheckedAt:  r.now(),
	}
	v.Valid = v.InputHash.Match && v.OutputHash.Match
	r.metrics.ObserveIntegrity(v.Valid)
	if v.Valid {
		return v, nil
	}

	ierr := &domain.IntegrityError{RunID: runID}
	if !v.InputHash.Match {
		ierr.Mismatches = append(ierr.Mismatches, domain.HashMismatch{Name: "input_hash", Stored: run.InputHash, Recomputed: in})
	}
	if !v.OutputHash.Match {
		ierr.Mismatches = append(ierr.Mismatches, domain.HashMismatch{Name: "output_hash", Stored: run.OutputHash, Recomputed: out})
	}
	r.logger.Warn("lineage integrity check failed",
		zap.String("run_id", runID),
		zap.Bool("input_match", v.InputHash.Match),
		zap.Bool("output_match", v.OutputHash.Match),
	)
	return v, ierr
}
