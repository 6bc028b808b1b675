// Package supervisor governs supervisor overrides of the final capital
// figure: a proposer raises an override, a different approver accepts it
// under an approval reference, and the engine applies the approved
// override in effect at a run's as-of date.
package supervisor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/rgehrsitz/opcap/internal/domain"
	"github.com/rgehrsitz/opcap/internal/metrics"
)

// Repository persists overrides
type Repository interface {
	SaveSupervisorOverride(ctx context.Context, o *domain.SupervisorOverride) error
	LoadSupervisorOverrides(ctx context.Context) ([]domain.SupervisorOverride, error)
}

// Registry holds every override and its decisions
type Registry struct {
	mu        sync.RWMutex
	overrides map[string]*domain.SupervisorOverride
	order     []string

	repo    Repository
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures a Registry
type Option func(*Registry)

// WithRepository persists every change through repo
func WithRepository(repo Repository) Option {
	return func(r *Registry) { r.repo = repo }
}

// WithLogger sets the registry logger
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics counts override decisions
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates an empty registry
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		overrides: make(map[string]*domain.SupervisorOverride),
		logger:    zap.NewNop(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Restore loads persisted overrides
func (r *Registry) Restore(ctx context.Context) error {
	if r.repo == nil {
		return nil
	}
	loaded, err := r.repo.LoadSupervisorOverrides(ctx)
	if err != nil {
		return eris.Wrap(err, "supervisor: restore")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range loaded {
		o := loaded[i].Clone()
		if _, dup := r.overrides[o.ID]; dup {
			continue
		}
		r.overrides[o.ID] = o
		r.order = append(r.order, o.ID)
	}
	r.logger.Info("supervisor overrides restored", zap.Int("overrides", len(r.order)))
	return nil
}

// Propose registers a new override raised by proposer
func (r *Registry) Propose(ctx context.Context, o domain.SupervisorOverride, proposer string) (*domain.SupervisorOverride, error) {
	if strings.TrimSpace(proposer) == "" {
		return nil, fmt.Errorf("%w: a proposer is required", domain.ErrTransitionDenied)
	}
	next := o.Clone()
	if next.ID == "" {
		next.ID = uuid.New().String()
	}
	if vs := next.Validate(); len(vs) > 0 {
		return nil, &domain.ValidationError{
			Subject:    "supervisor override " + next.ID,
			EntityID:   next.EntityID,
			Method:     next.Method,
			Violations: vs,
		}
	}
	now := r.now()
	next.Status = domain.OverrideProposed
	next.ProposedBy = proposer
	next.ApprovedBy = ""
	next.ApprovalRef = ""
	next.CreatedAt = now
	next.Decisions = []domain.Approval{{Actor: proposer, Role: domain.RoleMaker, Decision: "proposed", At: now}}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.overrides[next.ID]; exists {
		return nil, fmt.Errorf("supervisor override %s already exists", next.ID)
	}
	if err := r.persist(ctx, next); err != nil {
		return nil, err
	}
	r.overrides[next.ID] = next
	r.order = append(r.order, next.ID)
	r.metrics.ObserveOverrideDecision("proposed")
	r.logger.Info("supervisor override proposed",
		zap.String("override_id", next.ID),
		zap.String("entity_id", next.EntityID),
		zap.String("method", string(next.Method)),
		zap.String("reason", string(next.Reason)),
		zap.String("proposer", proposer))
	return next.Clone(), nil
}

// Approve accepts a proposed override. The approver must differ from the
// proposer and cite an approval reference. An override cannot overlap
// another approved override for the same entity and method.
func (r *Registry) Approve(ctx context.Context, id, approver, approvalRef, comment string) (*domain.SupervisorOverride, error) {
	if !domain.ValidApprovalRef(approvalRef) {
		return nil, &domain.ValidationError{
			Subject: "supervisor override " + id,
			Violations: []domain.Violation{{
				Field:   "approval_ref",
				Message: fmt.Sprintf("must be non-blank and at most %d characters", domain.MaxApprovalRefLength),
			}},
		}
	}
	return r.decide(ctx, id, "approved", func(o *domain.SupervisorOverride) error {
		if o.Status != domain.OverrideProposed {
			return fmt.Errorf("%w: override %s is %s, not proposed", domain.ErrTransitionDenied, o.ID, o.Status)
		}
		if approver == o.ProposedBy {
			return fmt.Errorf("%w: proposer %s cannot approve their own override", domain.ErrTransitionDenied, approver)
		}
		for _, other := range r.overrides {
			if other.ID == o.ID || other.Status != domain.OverrideApproved ||
				other.EntityID != o.EntityID || other.Method != o.Method {
				continue
			}
			if other.Overlaps(o) {
				return fmt.Errorf("%w: override %s overlaps approved override %s", domain.ErrTransitionDenied, o.ID, other.ID)
			}
		}
		o.Status = domain.OverrideApproved
		o.ApprovedBy = approver
		o.ApprovalRef = strings.TrimSpace(approvalRef)
		o.Decisions = append(o.Decisions, domain.Approval{
			Actor: approver, Role: domain.RoleApprover, Decision: "approved", Comment: comment, At: r.now(),
		})
		return nil
	})
}

// Reject ends a proposed override without approving it
func (r *Registry) Reject(ctx context.Context, id, actor, reason string) (*domain.SupervisorOverride, error) {
	return r.decide(ctx, id, "rejected", func(o *domain.SupervisorOverride) error {
		if o.Status != domain.OverrideProposed {
			return fmt.Errorf("%w: override %s is %s, not proposed", domain.ErrTransitionDenied, o.ID, o.Status)
		}
		if actor == o.ProposedBy {
			return fmt.Errorf("%w: proposer %s cannot reject their own override", domain.ErrTransitionDenied, actor)
		}
		o.Status = domain.OverrideRejected
		o.Decisions = append(o.Decisions, domain.Approval{
			Actor: actor, Role: domain.RoleApprover, Decision: "rejected", Comment: reason, At: r.now(),
		})
		return nil
	})
}

// Revoke withdraws an approved override; runs already recorded keep it
func (r *Registry) Revoke(ctx context.Context, id, actor, reason string) (*domain.SupervisorOverride, error) {
	return r.decide(ctx, id, "revoked", func(o *domain.SupervisorOverride) error {
		if o.Status != domain.OverrideApproved {
			return fmt.Errorf("%w: override %s is %s, not approved", domain.ErrTransitionDenied, o.ID, o.Status)
		}
		if strings.TrimSpace(actor) == "" || actor == o.ProposedBy {
			return fmt.Errorf("%w: override %s must be revoked by an approver other than its proposer", domain.ErrTransitionDenied, o.ID)
		}
		o.Status = domain.OverrideRevoked
		o.Decisions = append(o.Decisions, domain.Approval{
			Actor: actor, Role: domain.RoleApprover, Decision: "revoked", Comment: reason, At: r.now(),
		})
		return nil
	})
}

// decide applies fn to a copy of an override and commits it only when fn
// and the write succeed
func (r *Registry) decide(ctx context.Context, id, decision string, fn func(*domain.SupervisorOverride) error) (*domain.SupervisorOverride, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.overrides[id]
	if !ok {
		return nil, fmt.Errorf("supervisor override %s: %w", id, domain.ErrNotFound)
	}
	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if err := r.persist(ctx, next); err != nil {
		return nil, err
	}
	r.overrides[id] = next
	r.metrics.ObserveOverrideDecision(decision)
	r.logger.Info("supervisor override "+decision,
		zap.String("override_id", id),
		zap.String("entity_id", next.EntityID),
		zap.String("status", string(next.Status)))
	return next.Clone(), nil
}

// Get returns a copy of one override
func (r *Registry) Get(id string) (*domain.SupervisorOverride, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.overrides[id]
	if !ok {
		return nil, fmt.Errorf("supervisor override %s: %w", id, domain.ErrNotFound)
	}
	return o.Clone(), nil
}

// List returns copies of the overrides of an entity in creation order.
// An empty entity lists all overrides.
func (r *Registry) List(entityID string) []domain.SupervisorOverride {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.SupervisorOverride
	for _, id := range r.order {
		o := r.overrides[id]
		if entityID == "" || o.EntityID == entityID {
			out = append(out, *o.Clone())
		}
	}
	return out
}

// InEffect returns the approved override covering entity, method and asOf
func (r *Registry) InEffect(entityID string, method domain.Method, asOf time.Time) (*domain.SupervisorOverride, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var matches []*domain.SupervisorOverride
	for _, id := range r.order {
		o := r.overrides[id]
		if o.Status == domain.OverrideApproved && o.EntityID == entityID && o.Method == method && o.InEffect(asOf) {
			matches = append(matches, o)
		}
	}
	if len(matches) == 0 {
		return nil, false
	}
	// approval rejects overlaps, so more than one match means restored data
	// from outside the registry; the latest start wins
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].EffectiveFrom.After(matches[j].EffectiveFrom)
	})
	return matches[0].Clone(), true
}

func (r *Registry) persist(ctx context.Context, o *domain.SupervisorOverride) error {
	if r.repo == nil {
		return nil
	}
	return eris.Wrapf(r.repo.SaveSupervisorOverride(ctx, o), "supervisor: persist %s", o.ID)
}
