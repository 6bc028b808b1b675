package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/rgehrsitz/opcap/internal/domain"
)

// timeLayout is fixed width so stored timestamps sort as text
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "sqlite: parse time %q", s)
	}
	return t, nil
}

// SQLiteStore keeps inputs, parameter sets and lineage in one SQLite file.
// Loss records and calculation runs are append-only at the schema level.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS indicator_periods (
	id           TEXT PRIMARY KEY,
	entity_id    TEXT NOT NULL,
	period_label TEXT NOT NULL,
	ildc         TEXT NOT NULL,
	sc           TEXT NOT NULL,
	fc           TEXT NOT NULL,
	as_of_date   TEXT NOT NULL,
	UNIQUE (entity_id, period_label)
);

CREATE TABLE IF NOT EXISTS loss_records (
	event_id               TEXT PRIMARY KEY,
	entity_id              TEXT NOT NULL,
	occurrence_date        TEXT NOT NULL,
	discovery_date         TEXT NOT NULL,
	accounting_date        TEXT NOT NULL,
	gross_amount           TEXT NOT NULL,
	recovered_amount       TEXT NOT NULL,
	excluded               INTEGER NOT NULL DEFAULT 0,
	exclusion_approval_ref TEXT NOT NULL DEFAULT '',
	exclusion_reason       TEXT NOT NULL DEFAULT '',
	supersedes_event_id    TEXT REFERENCES loss_records(event_id),
	event_type             TEXT NOT NULL DEFAULT '',
	business_line          TEXT NOT NULL DEFAULT '',
	recorded_at            TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS loss_events (
	id           TEXT PRIMARY KEY,
	event_id     TEXT NOT NULL REFERENCES loss_records(event_id),
	prior_id     TEXT NOT NULL DEFAULT '',
	action       TEXT NOT NULL,
	actor        TEXT NOT NULL,
	approval_ref TEXT NOT NULL DEFAULT '',
	reason       TEXT NOT NULL DEFAULT '',
	recorded_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS segment_income (
	id           TEXT PRIMARY KEY,
	entity_id    TEXT NOT NULL,
	period_label TEXT NOT NULL,
	segment      TEXT NOT NULL,
	gross_income TEXT NOT NULL,
	as_of_date   TEXT NOT NULL,
	UNIQUE (entity_id, period_label, segment)
);

CREATE TABLE IF NOT EXISTS parameter_sets (
	version_id TEXT PRIMARY KEY,
	model      TEXT NOT NULL,
	status     TEXT NOT NULL,
	document   TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS supervisor_overrides (
	override_id TEXT PRIMARY KEY,
	entity_id   TEXT NOT NULL,
	status      TEXT NOT NULL,
	document    TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS consolidation_mappings (
	mapping_id      TEXT PRIMARY KEY,
	parent_entity_id TEXT NOT NULL,
	child_entity_id TEXT NOT NULL,
	ownership_pct   TEXT NOT NULL,
	method          TEXT NOT NULL,
	effective_from  TEXT NOT NULL,
	effective_to    TEXT
);

CREATE TABLE IF NOT EXISTS calculation_runs (
	run_id      TEXT PRIMARY KEY,
	entity_id   TEXT NOT NULL,
	method      TEXT NOT NULL,
	as_of_date  TEXT NOT NULL,
	input_hash  TEXT NOT NULL,
	output_hash TEXT NOT NULL,
	document    TEXT NOT NULL,
	created_at  TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_loss_records_supersedes ON loss_records(supersedes_event_id)
	WHERE supersedes_event_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_loss_records_entity ON loss_records(entity_id, accounting_date);
CREATE INDEX IF NOT EXISTS idx_loss_events_event ON loss_events(event_id);
CREATE INDEX IF NOT EXISTS idx_indicator_periods_entity ON indicator_periods(entity_id, as_of_date);
CREATE INDEX IF NOT EXISTS idx_segment_income_entity ON segment_income(entity_id, as_of_date);
CREATE INDEX IF NOT EXISTS idx_consolidation_parent ON consolidation_mappings(parent_entity_id, effective_from);
CREATE INDEX IF NOT EXISTS idx_calculation_runs_entity ON calculation_runs(entity_id, created_at);

CREATE TRIGGER IF NOT EXISTS calculation_runs_no_update BEFORE UPDATE ON calculation_runs
BEGIN SELECT RAISE(ABORT, 'calculation_runs is append-only'); END;
CREATE TRIGGER IF NOT EXISTS calculation_runs_no_delete BEFORE DELETE ON calculation_runs
BEGIN SELECT RAISE(ABORT, 'calculation_runs is append-only'); END;
CREATE TRIGGER IF NOT EXISTS loss_records_no_update BEFORE UPDATE ON loss_records
BEGIN SELECT RAISE(ABORT, 'loss_records is append-only'); END;
CREATE TRIGGER IF NOT EXISTS loss_records_no_delete BEFORE DELETE ON loss_records
BEGIN SELECT RAISE(ABORT, 'loss_records is append-only'); END;
CREATE TRIGGER IF NOT EXISTS loss_events_no_update BEFORE UPDATE ON loss_events
BEGIN SELECT RAISE(ABORT, 'loss_events is append-only'); END;
CREATE TRIGGER IF NOT EXISTS loss_events_no_delete BEFORE DELETE ON loss_events
BEGIN SELECT RAISE(ABORT, 'loss_events is append-only'); END;
`

// Migrate creates the schema if it does not exist
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- lineage ---

// Append writes a run once; the schema rejects updates and deletes
func (s *SQLiteStore) Append(ctx context.Context, run *domain.CalculationRun) error {
	doc, err := json.Marshal(run)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal run")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO calculation_runs (run_id, entity_id, method, as_of_date, input_hash, output_hash, document, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.EntityID, string(run.Method), formatTime(run.AsOfDate),
		run.InputHash, run.OutputHash, string(doc), formatTime(run.CreatedAt),
	)
	return eris.Wrapf(err, "sqlite: insert run %s", run.RunID)
}

// Get returns one run
func (s *SQLiteStore) Get(ctx context.Context, runID string) (*domain.CalculationRun, error) {
	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT document FROM calculation_runs WHERE run_id = ?`, runID,
	).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(domain.ErrNotFound, "sqlite: run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	return decodeRun(doc)
}

// List returns an entity's runs oldest first; an empty entity lists all runs
func (s *SQLiteStore) List(ctx context.Context, entityID string) ([]*domain.CalculationRun, error) {
	query := `SELECT document FROM calculation_runs`
	var args []any
	if entityID != "" {
		query += ` WHERE entity_id = ?`
		args = append(args, entityID)
	}
	query += ` ORDER BY created_at, rowid`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []*domain.CalculationRun
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		run, err := decodeRun(doc)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func decodeRun(doc string) (*domain.CalculationRun, error) {
	var run domain.CalculationRun
	if err := json.Unmarshal([]byte(doc), &run); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal run")
	}
	return &run, nil
}

// --- parameter sets ---

// SaveParameterSets stores the current state of each version in one
// transaction
func (s *SQLiteStore) SaveParameterSets(ctx context.Context, sets ...*domain.ParameterSet) error {
	updated := formatTime(s.now())
	return s.inTx(ctx, "parameter sets", func(tx *sql.Tx) error {
		for _, set := range sets {
			if set.VersionID == "" {
				return eris.New("sqlite: parameter set has no version id")
			}
			doc, err := json.Marshal(set)
			if err != nil {
				return eris.Wrap(err, "sqlite: marshal parameter set")
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO parameter_sets (version_id, model, status, document, updated_at) VALUES (?, ?, ?, ?, ?)
				 ON CONFLICT (version_id) DO UPDATE SET status = excluded.status, document = excluded.document, updated_at = excluded.updated_at`,
				set.VersionID, string(set.ModelName), string(set.Status), string(doc), updated,
			)
			if err != nil {
				return eris.Wrapf(err, "sqlite: save parameter set %s", set.VersionID)
			}
		}
		return nil
	})
}

// LoadParameterSets returns every stored version in creation order
func (s *SQLiteStore) LoadParameterSets(ctx context.Context) ([]domain.ParameterSet, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT document FROM parameter_sets ORDER BY rowid`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load parameter sets")
	}
	defer rows.Close()

	var sets []domain.ParameterSet
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan parameter set")
		}
		var set domain.ParameterSet
		if err := json.Unmarshal([]byte(doc), &set); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal parameter set")
		}
		sets = append(sets, set)
	}
	return sets, eris.Wrap(rows.Err(), "sqlite: load parameter sets iterate")
}

// --- supervisor overrides ---

// SaveSupervisorOverride stores or updates one override
func (s *SQLiteStore) SaveSupervisorOverride(ctx context.Context, o *domain.SupervisorOverride) error {
	if o.ID == "" {
		return eris.New("sqlite: supervisor override has no id")
	}
	doc, err := json.Marshal(o)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal supervisor override")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO supervisor_overrides (override_id, entity_id, status, document, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (override_id) DO UPDATE SET status = excluded.status, document = excluded.document, updated_at = excluded.updated_at`,
		o.ID, o.EntityID, string(o.Status), string(doc), formatTime(s.now()),
	)
	return eris.Wrapf(err, "sqlite: save supervisor override %s", o.ID)
}

// LoadSupervisorOverrides returns every stored override in creation order
func (s *SQLiteStore) LoadSupervisorOverrides(ctx context.Context) ([]domain.SupervisorOverride, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT document FROM supervisor_overrides ORDER BY rowid`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load supervisor overrides")
	}
	defer rows.Close()

	var out []domain.SupervisorOverride
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan supervisor override")
		}
		var o domain.SupervisorOverride
		if err := json.Unmarshal([]byte(doc), &o); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal supervisor override")
		}
		out = append(out, o)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: load supervisor overrides iterate")
}

// --- consolidation mappings ---

// AddConsolidationMappings inserts mappings; an id can be stored once
func (s *SQLiteStore) AddConsolidationMappings(ctx context.Context, mappings ...domain.ConsolidationMapping) error {
	return s.inTx(ctx, "consolidation mappings", func(tx *sql.Tx) error {
		return insertMappings(ctx, tx, mappings)
	})
}

func insertMappings(ctx context.Context, tx *sql.Tx, mappings []domain.ConsolidationMapping) error {
	for _, m := range mappings {
		if err := m.Validate(); err != nil {
			return err
		}
		id := m.ID
		if id == "" {
			id = uuid.New().String()
		}
		var to sql.NullString
		if m.EffectiveTo != nil {
			to = sql.NullString{String: formatTime(*m.EffectiveTo), Valid: true}
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO consolidation_mappings (mapping_id, parent_entity_id, child_entity_id, ownership_pct, method, effective_from, effective_to)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, m.ParentEntityID, m.ChildEntityID, m.OwnershipPct.String(), string(m.Method), formatTime(m.EffectiveFrom), to,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert consolidation mapping %s", id)
		}
	}
	return nil
}

// FetchConsolidationMappings returns the mappings under parentID in effect
// at asOf, ordered by child
func (s *SQLiteStore) FetchConsolidationMappings(ctx context.Context, parentID string, asOf time.Time) ([]domain.ConsolidationMapping, error) {
	at := formatTime(asOf)
	rows, err := s.db.QueryContext(ctx,
		`SELECT mapping_id, parent_entity_id, child_entity_id, ownership_pct, method, effective_from, effective_to
		 FROM consolidation_mappings
		 WHERE parent_entity_id = ? AND effective_from <= ? AND (effective_to IS NULL OR effective_to > ?)
		 ORDER BY child_entity_id, mapping_id`,
		parentID, at, at,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: fetch consolidation mappings")
	}
	defer rows.Close()

	var out []domain.ConsolidationMapping
	for rows.Next() {
		var m domain.ConsolidationMapping
		var pct, method, from string
		var to sql.NullString
		if err := rows.Scan(&m.ID, &m.ParentEntityID, &m.ChildEntityID, &pct, &method, &from, &to); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan consolidation mapping")
		}
		m.Method = domain.ConsolidationMethod(method)
		if m.OwnershipPct, err = parseDecimal(pct); err != nil {
			return nil, err
		}
		if m.EffectiveFrom, err = parseTime(from); err != nil {
			return nil, err
		}
		if to.Valid {
			t, err := parseTime(to.String)
			if err != nil {
				return nil, err
			}
			m.EffectiveTo = &t
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: fetch consolidation mappings iterate")
}

// --- indicator periods and segment income ---

// AddIndicatorPeriods inserts periods; a label can be stored once per entity
func (s *SQLiteStore) AddIndicatorPeriods(ctx context.Context, periods ...domain.IndicatorPeriod) error {
	return s.inTx(ctx, "indicator periods", func(tx *sql.Tx) error {
		return insertPeriods(ctx, tx, periods)
	})
}

func insertPeriods(ctx context.Context, tx *sql.Tx, periods []domain.IndicatorPeriod) error {
	for _, p := range periods {
		if err := validatePeriod(p); err != nil {
			return err
		}
		if p.ID == "" {
			p.ID = uuid.New().String()
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO indicator_periods (id, entity_id, period_label, ildc, sc, fc, as_of_date) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.EntityID, p.PeriodLabel, p.InterestComponent.String(), p.ServicesComponent.String(),
			p.FinancialComponent.String(), formatTime(p.AsOfDate),
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert indicator period %s/%s", p.EntityID, p.PeriodLabel)
		}
	}
	return nil
}

// inTx runs fn in a transaction and commits only when fn succeeds
func (s *SQLiteStore) inTx(ctx context.Context, what string, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	return eris.Wrapf(tx.Commit(), "sqlite: commit %s", what)
}

// FetchIndicatorPeriods returns the latest lookback periods dated on or
// before asOf, oldest first
func (s *SQLiteStore) FetchIndicatorPeriods(ctx context.Context, entityID string, asOf time.Time, lookback int) ([]domain.IndicatorPeriod, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, entity_id, period_label, ildc, sc, fc, as_of_date FROM indicator_periods
		 WHERE entity_id = ? AND as_of_date <= ?
		 ORDER BY as_of_date DESC, period_label DESC LIMIT ?`,
		entityID, formatTime(asOf), limit(lookback),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: fetch indicator periods")
	}
	defer rows.Close()

	var out []domain.IndicatorPeriod
	for rows.Next() {
		var p domain.IndicatorPeriod
		var ildc, sc, fc, asOfDate string
		if err := rows.Scan(&p.ID, &p.EntityID, &p.PeriodLabel, &ildc, &sc, &fc, &asOfDate); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan indicator period")
		}
		if p.InterestComponent, err = parseDecimal(ildc); err != nil {
			return nil, err
		}
		if p.ServicesComponent, err = parseDecimal(sc); err != nil {
			return nil, err
		}
		if p.FinancialComponent, err = parseDecimal(fc); err != nil {
			return nil, err
		}
		if p.AsOfDate, err = parseTime(asOfDate); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: fetch indicator periods iterate")
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// AddSegmentIncome inserts segment income rows
func (s *SQLiteStore) AddSegmentIncome(ctx context.Context, income ...domain.SegmentIncome) error {
	return s.inTx(ctx, "segment income", func(tx *sql.Tx) error {
		return insertIncome(ctx, tx, income)
	})
}

func insertIncome(ctx context.Context, tx *sql.Tx, income []domain.SegmentIncome) error {
	for _, row := range income {
		if err := validateIncome(row); err != nil {
			return err
		}
		if row.ID == "" {
			row.ID = uuid.New().String()
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO segment_income (id, entity_id, period_label, segment, gross_income, as_of_date) VALUES (?, ?, ?, ?, ?, ?)`,
			row.ID, row.EntityID, row.PeriodLabel, row.Segment, row.GrossIncome.String(), formatTime(row.AsOfDate),
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert segment income %s/%s/%s", row.EntityID, row.PeriodLabel, row.Segment)
		}
	}
	return nil
}

// FetchSegmentIncome returns the rows of the latest lookback period labels
// dated on or before asOf
func (s *SQLiteStore) FetchSegmentIncome(ctx context.Context, entityID string, asOf time.Time, lookback int) ([]domain.SegmentIncome, error) {
	cutoff := formatTime(asOf)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, entity_id, period_label, segment, gross_income, as_of_date FROM segment_income
		 WHERE entity_id = ? AND as_of_date <= ? AND period_label IN (
			SELECT period_label FROM segment_income
			WHERE entity_id = ? AND as_of_date <= ?
			GROUP BY period_label
			ORDER BY MAX(as_of_date) DESC, period_label DESC
			LIMIT ?)
		 ORDER BY as_of_date, period_label, segment`,
		entityID, cutoff, entityID, cutoff, limit(lookback),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: fetch segment income")
	}
	defer rows.Close()

	var out []domain.SegmentIncome
	for rows.Next() {
		var row domain.SegmentIncome
		var gross, asOfDate string
		if err := rows.Scan(&row.ID, &row.EntityID, &row.PeriodLabel, &row.Segment, &gross, &asOfDate); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan segment income")
		}
		if row.GrossIncome, err = parseDecimal(gross); err != nil {
			return nil, err
		}
		if row.AsOfDate, err = parseTime(asOfDate); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: fetch segment income iterate")
}

// --- loss history ---

const lossColumns = `event_id, entity_id, occurrence_date, discovery_date, accounting_date, gross_amount,
	recovered_amount, excluded, exclusion_approval_ref, exclusion_reason, supersedes_event_id,
	event_type, business_line, recorded_at`

// RecordLoss appends a loss record and its audit event. A record with
// SupersedesEventID set is an amendment of that record.
func (s *SQLiteStore) RecordLoss(ctx context.Context, r domain.LossRecord, actor string) (*domain.LossRecord, error) {
	action := domain.LossEventRecorded
	if r.SupersedesEventID != "" {
		action = domain.LossEventAmended
	}
	return s.appendLossWithReason(ctx, r, action, actor, r.ExclusionReason)
}

// AmendLoss appends a corrected version of priorEventID
func (s *SQLiteStore) AmendLoss(ctx context.Context, priorEventID string, amended domain.LossRecord, actor, reason string) (*domain.LossRecord, error) {
	prior, err := s.GetLoss(ctx, priorEventID)
	if err != nil {
		return nil, err
	}
	if amended.EntityID == "" {
		amended.EntityID = prior.EntityID
	}
	if amended.EntityID != prior.EntityID {
		return nil, &domain.DomainComputationError{
			EntityID: prior.EntityID,
			Field:    "entity_id",
			Detail:   "loss " + priorEventID + ": an amendment cannot move a loss to another entity",
		}
	}
	amended.SupersedesEventID = priorEventID
	if amended.EventID == "" {
		amended.EventID = uuid.New().String()
	}
	return s.appendLossWithReason(ctx, amended, domain.LossEventAmended, actor, reason)
}

// ExcludeLoss appends an excluded version of eventID. The approval
// reference is mandatory.
func (s *SQLiteStore) ExcludeLoss(ctx context.Context, eventID, approvalRef, reason, actor string) (*domain.LossRecord, error) {
	if !domain.ValidApprovalRef(approvalRef) {
		return nil, &domain.DomainComputationError{
			Field:  "exclusion_approval_ref",
			Detail: "loss " + eventID + ": exclusion needs a non-blank approval reference of at most 100 characters",
		}
	}
	prior, err := s.GetLoss(ctx, eventID)
	if err != nil {
		return nil, err
	}
	next := *prior
	next.EventID = uuid.New().String()
	next.SupersedesEventID = prior.EventID
	next.Excluded = true
	next.ExclusionApprovalRef = strings.TrimSpace(approvalRef)
	next.ExclusionReason = reason
	next.RecordedAt = time.Time{}
	return s.appendLossWithReason(ctx, next, domain.LossEventExcluded, actor, reason)
}

func (s *SQLiteStore) appendLossWithReason(ctx context.Context, r domain.LossRecord, action domain.LossEventAction, actor, reason string) (*domain.LossRecord, error) {
	var out *domain.LossRecord
	err := s.inTx(ctx, "loss", func(tx *sql.Tx) error {
		var err error
		out, err = s.insertLoss(ctx, tx, r, action, actor, reason)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// insertLoss writes one record version and its audit event
func (s *SQLiteStore) insertLoss(ctx context.Context, tx *sql.Tx, r domain.LossRecord, action domain.LossEventAction, actor, reason string) (*domain.LossRecord, error) {
	if strings.TrimSpace(actor) == "" {
		return nil, eris.New("sqlite: loss changes need an actor")
	}
	if r.EventID == "" {
		r.EventID = uuid.New().String()
	}
	if r.RecordedAt.IsZero() {
		r.RecordedAt = s.now()
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}

	var supersedes any
	if r.SupersedesEventID != "" {
		supersedes = r.SupersedesEventID
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO loss_records (`+lossColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.EventID, r.EntityID, formatTime(r.OccurrenceDate), formatTime(r.DiscoveryDate), formatTime(r.AccountingDate),
		r.GrossAmount.String(), r.RecoveredAmount.String(), r.Excluded, r.ExclusionApprovalRef, r.ExclusionReason,
		supersedes, r.EventType, r.BusinessLine, formatTime(r.RecordedAt),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert loss %s", r.EventID)
	}

	event := domain.LossEvent{
		ID:          uuid.New().String(),
		EventID:     r.EventID,
		PriorID:     r.SupersedesEventID,
		Action:      action,
		Actor:       actor,
		ApprovalRef: r.ExclusionApprovalRef,
		Reason:      reason,
		RecordedAt:  r.RecordedAt,
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO loss_events (id, event_id, prior_id, action, actor, approval_ref, reason, recorded_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.EventID, event.PriorID, string(event.Action), event.Actor, event.ApprovalRef, event.Reason,
		formatTime(event.RecordedAt),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert loss event for %s", r.EventID)
	}
	return &r, nil
}

// GetLoss returns one loss record version
func (s *SQLiteStore) GetLoss(ctx context.Context, eventID string) (*domain.LossRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+lossColumns+` FROM loss_records WHERE event_id = ?`, eventID)
	r, err := scanLoss(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(domain.ErrNotFound, "sqlite: loss %s", eventID)
	}
	return r, err
}

// FetchLossRecords returns every record version accounted within the window
// together with every later version of those records, wherever the later
// version is accounted, so an amendment that moves a loss out of the window
// still supersedes the version inside it.
func (s *SQLiteStore) FetchLossRecords(ctx context.Context, entityID string, asOf time.Time, windowYears int) ([]domain.LossRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`WITH RECURSIVE fetched(event_id) AS (
			SELECT event_id FROM loss_records
			WHERE entity_id = ? AND accounting_date > ? AND accounting_date <= ?
			UNION
			SELECT r.event_id FROM loss_records r JOIN fetched f ON r.supersedes_event_id = f.event_id
		)
		SELECT `+lossColumns+` FROM loss_records
		WHERE event_id IN (SELECT event_id FROM fetched)
		ORDER BY event_id`,
		entityID, formatTime(asOf.AddDate(-windowYears, 0, 0)), formatTime(asOf),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: fetch loss records")
	}
	defer rows.Close()

	var out []domain.LossRecord
	for rows.Next() {
		r, err := scanLoss(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: fetch loss records iterate")
}

// LossEvents returns the audit trail of a loss record and every version
// that supersedes it, oldest first
func (s *SQLiteStore) LossEvents(ctx context.Context, eventID string) ([]domain.LossEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`WITH RECURSIVE chain(event_id) AS (
			SELECT ?
			UNION
			SELECT r.event_id FROM loss_records r JOIN chain c ON r.supersedes_event_id = c.event_id
		)
		SELECT id, event_id, prior_id, action, actor, approval_ref, reason, recorded_at
		FROM loss_events WHERE event_id IN (SELECT event_id FROM chain)
		ORDER BY recorded_at, rowid`,
		eventID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: loss events")
	}
	defer rows.Close()

	var out []domain.LossEvent
	for rows.Next() {
		var e domain.LossEvent
		var action, recordedAt string
		if err := rows.Scan(&e.ID, &e.EventID, &e.PriorID, &action, &e.Actor, &e.ApprovalRef, &e.Reason, &recordedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan loss event")
		}
		e.Action = domain.LossEventAction(action)
		if e.RecordedAt, err = parseTime(recordedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: loss events iterate")
}

// Ingest loads a dataset in one transaction: periods, segment income,
// consolidation mappings and losses are stored together or not at all
func (s *SQLiteStore) Ingest(ctx context.Context, ds *Dataset, actor string) error {
	if err := ds.Validate(); err != nil {
		return err
	}
	return s.inTx(ctx, "ingest", func(tx *sql.Tx) error {
		if err := insertPeriods(ctx, tx, ds.IndicatorPeriods); err != nil {
			return err
		}
		if err := insertIncome(ctx, tx, ds.SegmentIncome); err != nil {
			return err
		}
		if err := insertMappings(ctx, tx, ds.ConsolidationMappings); err != nil {
			return err
		}
		// originals before their amendments
		inDataset := make(map[string]bool, len(ds.LossRecords))
		for _, r := range ds.LossRecords {
			inDataset[r.EventID] = true
		}
		written := make(map[string]bool, len(ds.LossRecords))
		pending := append([]domain.LossRecord(nil), ds.LossRecords...)
		for len(pending) > 0 {
			var next []domain.LossRecord
			for _, r := range pending {
				prior := r.SupersedesEventID
				if prior != "" && inDataset[prior] && !written[prior] {
					next = append(next, r)
					continue
				}
				action := domain.LossEventRecorded
				if prior != "" {
					action = domain.LossEventAmended
				}
				if _, err := s.insertLoss(ctx, tx, r, action, actor, r.ExclusionReason); err != nil {
					return err
				}
				written[r.EventID] = true
			}
			if len(next) == len(pending) {
				return eris.Errorf("store: loss amendments form a cycle starting at %s", next[0].EventID)
			}
			pending = next
		}
		return nil
	})
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLoss(row scanner) (*domain.LossRecord, error) {
	var r domain.LossRecord
	var occurred, discovered, accounted, gross, recovered, recorded string
	var supersedes sql.NullString
	err := row.Scan(&r.EventID, &r.EntityID, &occurred, &discovered, &accounted, &gross, &recovered,
		&r.Excluded, &r.ExclusionApprovalRef, &r.ExclusionReason, &supersedes, &r.EventType, &r.BusinessLine, &recorded)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan loss")
	}
	r.SupersedesEventID = supersedes.String
	for _, f := range []struct {
		dst *time.Time
		src string
	}{{&r.OccurrenceDate, occurred}, {&r.DiscoveryDate, discovered}, {&r.AccountingDate, accounted}, {&r.RecordedAt, recorded}} {
		if *f.dst, err = parseTime(f.src); err != nil {
			return nil, err
		}
	}
	if r.GrossAmount, err = parseDecimal(gross); err != nil {
		return nil, err
	}
	if r.RecoveredAmount, err = parseDecimal(recovered); err != nil {
		return nil, err
	}
	return &r, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, eris.Wrapf(err, "sqlite: parse decimal %q", s)
	}
	return d, nil
}

// limit maps a non-positive lookback to SQLite's "no limit"
func limit(n int) int {
	if n <= 0 {
		return -1
	}
	return n
}
