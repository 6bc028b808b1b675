package params

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/rgehrsitz/opcap/internal/domain"
	"github.com/rgehrsitz/opcap/internal/metrics"
)

// Repository persists parameter set versions. SaveParameterSets stores every
// set or none of them.
type Repository interface {
	SaveParameterSets(ctx context.Context, sets ...*domain.ParameterSet) error
	LoadParameterSets(ctx context.Context) ([]domain.ParameterSet, error)
}

// activation is one entry in a model's activation history
type activation struct {
	versionID   string
	effective   time.Time
	activatedAt time.Time
}

// activeIndex is immutable once published
type activeIndex struct {
	history map[domain.Model][]activation
}

// Registry holds every parameter set version and governs its lifecycle.
// Versions are append-only; activation publishes a new index with a single
// atomic pointer swap so readers see the old index or the new one, never a mix.
type Registry struct {
	mu       sync.RWMutex
	versions map[string]*domain.ParameterSet
	order    []string
	active   atomic.Pointer[activeIndex]

	repo    Repository
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures a Registry
type Option func(*Registry)

// WithRepository persists every lifecycle change through repo
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

// WithMetrics counts activations
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
		versions: make(map[string]*domain.ParameterSet),
		logger:   zap.NewNop(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	r.active.Store(&activeIndex{history: map[domain.Model][]activation{}})
	return r
}

// Restore loads persisted versions and rebuilds the activation history
func (r *Registry) Restore(ctx context.Context) error {
	if r.repo == nil {
		return nil
	}
	sets, err := r.repo.LoadParameterSets(ctx)
	if err != nil {
		return eris.Wrap(err, "params: restore")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var activated []*domain.ParameterSet
	for i := range sets {
		set := sets[i].Clone()
		if _, dup := r.versions[set.VersionID]; dup {
			continue
		}
		r.versions[set.VersionID] = set
		r.order = append(r.order, set.VersionID)
		if set.ActivatedAt != nil {
			activated = append(activated, set)
		}
	}
	sort.SliceStable(activated, func(i, j int) bool {
		return activated[i].ActivatedAt.Before(*activated[j].ActivatedAt)
	})

	next := &activeIndex{history: map[domain.Model][]activation{}}
	for _, set := range activated {
		next.history[set.ModelName] = append(next.history[set.ModelName], activation{
			versionID:   set.VersionID,
			effective:   set.EffectiveDate,
			activatedAt: *set.ActivatedAt,
		})
	}
	r.active.Store(next)
	r.logger.Info("parameter registry restored",
		zap.Int("versions", len(r.order)),
		zap.Int("activations", len(activated)))
	return nil
}

// ResolveActive returns the version of model in force at asOf: the most
// recent activation whose effective date is not after asOf. A later
// activation replaces an earlier one even when it is effective from an
// earlier date.
func (r *Registry) ResolveActive(model domain.Model, asOf time.Time) (*domain.ParameterSet, error) {
	history := r.active.Load().history[model]
	var best *activation
	for i := len(history) - 1; i >= 0; i-- {
		if !history[i].effective.After(asOf) {
			best = &history[i]
			break
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: model %s as of %s",
			domain.ErrNoActiveVersion, model, asOf.Format("2006-01-02"))
	}
	return r.GetVersion(best.versionID)
}

// GetVersion returns a copy of one version
func (r *Registry) GetVersion(versionID string) (*domain.ParameterSet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set, ok := r.versions[versionID]
	if !ok {
		return nil, fmt.Errorf("parameter set %s: %w", versionID, domain.ErrNotFound)
	}
	return set.Clone(), nil
}

// List returns copies of every version of model in creation order.
// An empty model lists all versions.
func (r *Registry) List(model domain.Model) []domain.ParameterSet {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.ParameterSet
	for _, id := range r.order {
		set := r.versions[id]
		if model == "" || set.ModelName == model {
			out = append(out, *set.Clone())
		}
	}
	return out
}

// Propose registers a new draft authored by maker
func (r *Registry) Propose(ctx context.Context, set domain.ParameterSet, maker string) (*domain.ParameterSet, error) {
	if strings.TrimSpace(maker) == "" {
		return nil, fmt.Errorf("%w: a maker is required", domain.ErrTransitionDenied)
	}
	if !set.ModelName.Valid() {
		return nil, &domain.ValidationError{Model: set.ModelName, VersionID: set.VersionID,
			Violations: []domain.Violation{{Field: "model", Message: fmt.Sprintf("unknown model %q", set.ModelName)}}}
	}

	draft := set.Clone()
	if draft.VersionID == "" {
		draft.VersionID = uuid.New().String()
	}
	draft.Status = domain.StatusDraft
	draft.CreatedBy = maker
	draft.CreatedAt = r.now()
	draft.ApproverChain = nil
	draft.ContentDigest = ""
	draft.ScheduledActivation = nil
	draft.ActivatedAt = nil

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.versions[draft.VersionID]; exists {
		return nil, fmt.Errorf("parameter set %s already exists", draft.VersionID)
	}
	if draft.ParentVersionID != "" {
		if _, ok := r.versions[draft.ParentVersionID]; !ok {
			return nil, fmt.Errorf("parent parameter set %s: %w", draft.ParentVersionID, domain.ErrNotFound)
		}
	}
	if err := r.persist(ctx, draft); err != nil {
		return nil, err
	}
	r.versions[draft.VersionID] = draft
	r.order = append(r.order, draft.VersionID)
	r.logger.Info("parameter set proposed",
		zap.String("version_id", draft.VersionID),
		zap.String("model", string(draft.ModelName)),
		zap.String("maker", maker))
	return draft.Clone(), nil
}

// UpdateDraft replaces the parameters of a draft. Only the maker may edit,
// and only while the set is still a draft.
func (r *Registry) UpdateDraft(ctx context.Context, versionID string, parameters []domain.Parameter, actor string) (*domain.ParameterSet, error) {
	return r.mutate(ctx, versionID, func(set *domain.ParameterSet) error {
		if set.Status != domain.StatusDraft {
			return fmt.Errorf("%w: %s is %s", domain.ErrFrozen, set.VersionID, set.Status)
		}
		if actor != set.CreatedBy {
			return fmt.Errorf("%w: only the maker may edit %s", domain.ErrTransitionDenied, set.VersionID)
		}
		set.Parameters = append([]domain.Parameter(nil), parameters...)
		return nil
	})
}

// Submit moves a valid draft to review
func (r *Registry) Submit(ctx context.Context, versionID, actor string) (*domain.ParameterSet, error) {
	return r.mutate(ctx, versionID, func(set *domain.ParameterSet) error {
		if err := checkTransition(set, domain.StatusUnderReview, domain.RoleMaker); err != nil {
			return err
		}
		if actor != set.CreatedBy {
			return fmt.Errorf("%w: only the maker may submit %s", domain.ErrTransitionDenied, set.VersionID)
		}
		if err := Check(set); err != nil {
			return err
		}
		set.Status = domain.StatusUnderReview
		set.ApproverChain = append(set.ApproverChain, r.approval(actor, domain.RoleMaker, "submitted", ""))
		return nil
	})
}

// Review records a checker sign-off on a set under review
func (r *Registry) Review(ctx context.Context, versionID, checker, comment string) (*domain.ParameterSet, error) {
	return r.mutate(ctx, versionID, func(set *domain.ParameterSet) error {
		if set.Status != domain.StatusUnderReview {
			return fmt.Errorf("%w: %s is %s, not under review", domain.ErrTransitionDenied, set.VersionID, set.Status)
		}
		if checker == set.CreatedBy {
			return fmt.Errorf("%w: maker %s cannot check their own set", domain.ErrTransitionDenied, checker)
		}
		if signedOff(set, checker, domain.RoleChecker) {
			return fmt.Errorf("%w: %s already reviewed %s", domain.ErrTransitionDenied, checker, set.VersionID)
		}
		set.ApproverChain = append(set.ApproverChain, r.approval(checker, domain.RoleChecker, "reviewed", comment))
		return nil
	})
}

// Approve freezes a reviewed set and fixes its content digest
func (r *Registry) Approve(ctx context.Context, versionID, approver, comment string) (*domain.ParameterSet, error) {
	return r.mutate(ctx, versionID, func(set *domain.ParameterSet) error {
		if err := checkTransition(set, domain.StatusApproved, domain.RoleApprover); err != nil {
			return err
		}
		if approver == set.CreatedBy {
			return fmt.Errorf("%w: maker %s cannot approve their own set", domain.ErrTransitionDenied, approver)
		}
		if signedOff(set, approver, domain.RoleChecker) {
			return fmt.Errorf("%w: checker %s cannot also approve %s", domain.ErrTransitionDenied, approver, set.VersionID)
		}
		if !hasRole(set, domain.RoleChecker) {
			return fmt.Errorf("%w: %s has no checker review", domain.ErrTransitionDenied, set.VersionID)
		}
		if err := Check(set); err != nil {
			return err
		}
		digest, err := Digest(set)
		if err != nil {
			return err
		}
		set.Status = domain.StatusApproved
		set.ContentDigest = digest
		set.ApproverChain = append(set.ApproverChain, r.approval(approver, domain.RoleApprover, "approved", comment))
		return nil
	})
}

// Reject ends review of a set without approving it
func (r *Registry) Reject(ctx context.Context, versionID, actor string, role domain.Role, reason string) (*domain.ParameterSet, error) {
	return r.mutate(ctx, versionID, func(set *domain.ParameterSet) error {
		if err := checkTransition(set, domain.StatusRejected, role); err != nil {
			return err
		}
		if actor == set.CreatedBy {
			return fmt.Errorf("%w: maker %s cannot reject their own set", domain.ErrTransitionDenied, actor)
		}
		set.Status = domain.StatusRejected
		set.ApproverChain = append(set.ApproverChain, r.approval(actor, role, "rejected", reason))
		return nil
	})
}

// ScheduleActivation marks an approved set for activation at a later time
func (r *Registry) ScheduleActivation(ctx context.Context, versionID string, at time.Time, approver string) (*domain.ParameterSet, error) {
	return r.mutate(ctx, versionID, func(set *domain.ParameterSet) error {
		if set.Status != domain.StatusApproved {
			return fmt.Errorf("%w: %s is %s, not approved", domain.ErrTransitionDenied, set.VersionID, set.Status)
		}
		if approver == set.CreatedBy {
			return fmt.Errorf("%w: maker %s cannot schedule their own set", domain.ErrTransitionDenied, approver)
		}
		when := at.UTC()
		set.ScheduledActivation = &when
		set.ApproverChain = append(set.ApproverChain,
			r.approval(approver, domain.RoleApprover, "scheduled", when.Format(time.RFC3339)))
		return nil
	})
}

// Activate makes an approved set the active version of its model and
// supersedes the previous active version.
func (r *Registry) Activate(ctx context.Context, versionID, approver string) (*domain.ParameterSet, error) {
	return r.activate(ctx, versionID, approver, domain.RoleApprover)
}

// ActivateDue activates every approved set whose scheduled time has passed
func (r *Registry) ActivateDue(ctx context.Context, now time.Time) ([]string, error) {
	type due struct {
		id string
		at time.Time
	}
	r.mu.RLock()
	var pending []due
	for _, id := range r.order {
		set := r.versions[id]
		if set.Status == domain.StatusApproved && set.ScheduledActivation != nil && !set.ScheduledActivation.After(now) {
			pending = append(pending, due{id: id, at: *set.ScheduledActivation})
		}
	}
	r.mu.RUnlock()
	sort.SliceStable(pending, func(i, j int) bool { return pending[i].at.Before(pending[j].at) })

	var activated []string
	for _, d := range pending {
		if _, err := r.activate(ctx, d.id, "scheduler", domain.RoleSystem); err != nil {
			return activated, err
		}
		activated = append(activated, d.id)
	}
	return activated, nil
}

func (r *Registry) activate(ctx context.Context, versionID, actor string, role domain.Role) (*domain.ParameterSet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.versions[versionID]
	if !ok {
		return nil, fmt.Errorf("parameter set %s: %w", versionID, domain.ErrNotFound)
	}
	if err := checkTransition(current, domain.StatusActive, role); err != nil {
		return nil, err
	}
	if role == domain.RoleApprover && actor == current.CreatedBy {
		return nil, fmt.Errorf("%w: maker %s cannot activate their own set", domain.ErrTransitionDenied, actor)
	}
	if err := Check(current); err != nil {
		return nil, err
	}
	digest, err := Digest(current)
	if err != nil {
		return nil, err
	}
	if digest != current.ContentDigest {
		return nil, &domain.IntegrityError{
			Subject: "parameter set " + versionID,
			Mismatches: []domain.HashMismatch{{
				Name:       "content_digest",
				Stored:     current.ContentDigest,
				Recomputed: digest,
			}},
		}
	}

	now := r.now()
	next := current.Clone()
	next.Status = domain.StatusActive
	next.ActivatedAt = &now
	next.ApproverChain = append(next.ApproverChain, r.approval(actor, role, "activated", ""))

	var superseded []*domain.ParameterSet
	for _, id := range r.order {
		prior := r.versions[id]
		if prior.ModelName != current.ModelName || prior.Status != domain.StatusActive {
			continue
		}
		old := prior.Clone()
		old.Status = domain.StatusSuperseded
		old.ApproverChain = append(old.ApproverChain,
			r.approval(string(domain.RoleSystem), domain.RoleSystem, "superseded", "by "+versionID))
		superseded = append(superseded, old)
	}

	if err := r.persist(ctx, append(superseded, next)...); err != nil {
		return nil, err
	}
	for _, set := range superseded {
		r.versions[set.VersionID] = set
	}
	r.versions[versionID] = next
	r.publish(next.ModelName, activation{versionID: versionID, effective: next.EffectiveDate, activatedAt: now})

	r.metrics.ObserveActivation(string(next.ModelName))
	r.logger.Info("parameter set activated",
		zap.String("version_id", versionID),
		zap.String("model", string(next.ModelName)),
		zap.Time("effective_date", next.EffectiveDate),
		zap.String("actor", actor),
		zap.Int("superseded", len(superseded)))
	return next.Clone(), nil
}

// publish appends to a copy of the index and swaps it in
func (r *Registry) publish(model domain.Model, a activation) {
	old := r.active.Load()
	next := &activeIndex{history: make(map[domain.Model][]activation, len(old.history)+1)}
	for m, h := range old.history {
		next.history[m] = h
	}
	history := make([]activation, 0, len(old.history[model])+1)
	history = append(history, old.history[model]...)
	next.history[model] = append(history, a)
	r.active.Store(next)
}

// mutate applies fn to a copy of a version and commits it only on success
func (r *Registry) mutate(ctx context.Context, versionID string, fn func(*domain.ParameterSet) error) (*domain.ParameterSet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.versions[versionID]
	if !ok {
		return nil, fmt.Errorf("parameter set %s: %w", versionID, domain.ErrNotFound)
	}
	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if err := r.persist(ctx, next); err != nil {
		return nil, err
	}
	r.versions[versionID] = next
	r.logger.Debug("parameter set updated",
		zap.String("version_id", versionID),
		zap.String("status", string(next.Status)))
	return next.Clone(), nil
}

func (r *Registry) persist(ctx context.Context, sets ...*domain.ParameterSet) error {
	if r.repo == nil || len(sets) == 0 {
		return nil
	}
	ids := make([]string, len(sets))
	for i, set := range sets {
		ids[i] = set.VersionID
	}
	return eris.Wrapf(r.repo.SaveParameterSets(ctx, sets...), "params: persist %s", strings.Join(ids, ", "))
}

func (r *Registry) approval(actor string, role domain.Role, decision, comment string) domain.Approval {
	return domain.Approval{Actor: actor, Role: role, Decision: decision, Comment: comment, At: r.now()}
}

func signedOff(set *domain.ParameterSet, actor string, role domain.Role) bool {
	for _, a := range set.ApproverChain {
		if a.Actor == actor && a.Role == role {
			return true
		}
	}
	return false
}

func hasRole(set *domain.ParameterSet, role domain.Role) bool {
	for _, a := range set.ApproverChain {
		if a.Role == role {
			return true
		}
	}
	return false
}
