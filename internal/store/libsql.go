package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/macta/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/macta.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Some PRAGMAs return rows, so they go through QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB (used by the event log).
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Process models ---

// SaveProcessModel inserts or replaces a model, keeping its creation time.
func (s *LibSQLStore) SaveProcessModel(ctx context.Context, m *ProcessModel) error {
	now := time.Now().UTC()
	m.CreatedAt = timeOrNow(m.CreatedAt)
	m.UpdatedAt = now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO process_models (id, name, description, model_data, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name=excluded.name, description=excluded.description,
		 model_data=excluded.model_data, updated_at=excluded.updated_at`,
		m.ID, m.Name, nullStr(m.Description), m.ModelData, m.CreatedAt, m.UpdatedAt,
	)
	return err
}

func (s *LibSQLStore) GetProcessModel(ctx context.Context, id string) (*ProcessModel, error) {
	m := &ProcessModel{}
	var desc sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, model_data, created_at, updated_at FROM process_models WHERE id = ?`, id,
	).Scan(&m.ID, &m.Name, &desc, &m.ModelData, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeNotFound("process model", id)
	}
	if err != nil {
		return nil, err
	}
	m.Description = desc.String
	return m, nil
}

// ListProcessModels returns models newest first. Model XML is included.
func (s *LibSQLStore) ListProcessModels(ctx context.Context, limit int) ([]*ProcessModel, error) {
	query := `SELECT id, name, description, model_data, created_at, updated_at FROM process_models ORDER BY updated_at DESC, id ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var models []*ProcessModel
	for rows.Next() {
		m := &ProcessModel{}
		var desc sql.NullString
		if err := rows.Scan(&m.ID, &m.Name, &desc, &m.ModelData, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		m.Description = desc.String
		models = append(models, m)
	}
	return models, rows.Err()
}

func (s *LibSQLStore) DeleteProcessModel(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM process_models WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "process model", id)
}

// --- Resource allocations ---

// SetResourceAllocations replaces every allocation of a process. Positions
// are reassigned from the slice order.
func (s *LibSQLStore) SetResourceAllocations(ctx context.Context, processID string, allocs []ResourceAllocation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM process_models WHERE id = ?`, processID).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return storeNotFound("process model", processID)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM resource_allocations WHERE process_id = ?`, processID); err != nil {
		return fmt.Errorf("clear allocations: %w", err)
	}
	for i, a := range allocs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO resource_allocations (process_id, resource_id, name, count, service_rate_per_hour, position)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			processID, a.ResourceID, a.Name, a.Count, a.ServiceRatePerHour, i,
		); err != nil {
			return schema.NewErrorf(schema.ErrCodeConflict, "insert allocation %q: %s", a.ResourceID, err.Error()).WithCause(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit allocations: %w", err)
	}
	return nil
}

func (s *LibSQLStore) ListResourceAllocations(ctx context.Context, processID string) ([]ResourceAllocation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT process_id, resource_id, name, count, service_rate_per_hour, position
		 FROM resource_allocations WHERE process_id = ? ORDER BY position ASC`, processID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ResourceAllocation
	for rows.Next() {
		var a ResourceAllocation
		if err := rows.Scan(&a.ProcessID, &a.ResourceID, &a.Name, &a.Count, &a.ServiceRatePerHour, &a.Position); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// --- Simulation configs ---

func (s *LibSQLStore) SaveSimulationConfig(ctx context.Context, rec *SimulationConfigRecord) error {
	cfg, err := json.Marshal(rec.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	rec.CreatedAt = timeOrNow(rec.CreatedAt)
	rec.UpdatedAt = time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO simulation_configs (name, process_id, description, config, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name, process_id) DO UPDATE SET description=excluded.description, config=excluded.config, updated_at=excluded.updated_at`,
		rec.Name, rec.ProcessID, nullStr(rec.Description), string(cfg), rec.CreatedAt, rec.UpdatedAt,
	)
	return err
}

// GetSimulationConfig returns the config named name for processID, falling
// back to the shared config of that name.
func (s *LibSQLStore) GetSimulationConfig(ctx context.Context, name, processID string) (*SimulationConfigRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, process_id, description, config, created_at, updated_at FROM simulation_configs
		 WHERE name = ? AND process_id IN (?, '') ORDER BY process_id DESC LIMIT 1`, name, processID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recs, err := scanConfigs(rows)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, storeNotFound("simulation config", name)
	}
	return recs[0], nil
}

// ListSimulationConfigs returns the configs visible to processID, shared ones included.
func (s *LibSQLStore) ListSimulationConfigs(ctx context.Context, processID string) ([]*SimulationConfigRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, process_id, description, config, created_at, updated_at FROM simulation_configs
		 WHERE process_id IN (?, '') ORDER BY name ASC, process_id DESC`, processID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanConfigs(rows)
}

func scanConfigs(rows *sql.Rows) ([]*SimulationConfigRecord, error) {
	var out []*SimulationConfigRecord
	for rows.Next() {
		rec := &SimulationConfigRecord{}
		var desc sql.NullString
		var cfg string
		if err := rows.Scan(&rec.Name, &rec.ProcessID, &desc, &cfg, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		rec.Description = desc.String
		if err := json.Unmarshal([]byte(cfg), &rec.Config); err != nil {
			return nil, fmt.Errorf("unmarshal config %q: %w", rec.Name, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// --- Simulation runs ---

const runColumns = `id, process_id, config_type, status, seed, horizon_hours, trigger_name, result, error, created_at, started_at, completed_at`

func (s *LibSQLStore) CreateSimulationRun(ctx context.Context, run *SimulationRun) error {
	run.CreatedAt = timeOrNow(run.CreatedAt)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO simulation_results (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.ProcessID, run.ConfigType, string(run.Status), strconv.FormatUint(run.Seed, 10), run.HorizonHours,
		nullStr(run.Trigger), nullRaw(run.Result), nullRaw(run.Error),
		run.CreatedAt, nullTime(run.StartedAt), nullTime(run.CompletedAt),
	)
	return err
}

func (s *LibSQLStore) GetSimulationRun(ctx context.Context, id string) (*SimulationRun, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM simulation_results WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs, err := scanRuns(rows)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, storeNotFound("simulation run", id)
	}
	return runs[0], nil
}

func (s *LibSQLStore) UpdateSimulationRun(ctx context.Context, id string, update RunUpdate) error {
	var sets []string
	var args []any

	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*update.Status))
	}
	if update.Result != nil {
		sets = append(sets, "result = ?")
		args = append(args, string(update.Result))
	}
	if update.Error != nil {
		sets = append(sets, "error = ?")
		args = append(args, string(update.Error))
	}
	if update.StartedAt != nil {
		sets = append(sets, "started_at = ?")
		args = append(args, *update.StartedAt)
	}
	if update.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, *update.CompletedAt)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE simulation_results SET %s WHERE id = ?", strings.Join(sets, ", ")), args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "simulation run", id)
}

// ListSimulationRuns returns runs newest first.
func (s *LibSQLStore) ListSimulationRuns(ctx context.Context, filter RunFilter) ([]*SimulationRun, error) {
	var where []string
	var args []any

	if filter.ProcessID != "" {
		where = append(where, "process_id = ?")
		args = append(args, filter.ProcessID)
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.Since != nil {
		where = append(where, "created_at >= ?")
		args = append(args, *filter.Since)
	}

	query := `SELECT ` + runColumns + ` FROM simulation_results`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRuns(rows)
}

func scanRuns(rows *sql.Rows) ([]*SimulationRun, error) {
	var runs []*SimulationRun
	for rows.Next() {
		r := &SimulationRun{}
		var (
			status, seed           string
			trigger, result, errJS sql.NullString
			startedAt, completedAt sql.NullTime
		)
		if err := rows.Scan(&r.ID, &r.ProcessID, &r.ConfigType, &status, &seed, &r.HorizonHours,
			&trigger, &result, &errJS, &r.CreatedAt, &startedAt, &completedAt); err != nil {
			return nil, err
		}
		r.Status = schema.RunStatus(status)
		r.Seed, _ = strconv.ParseUint(seed, 10, 64)
		r.Trigger = trigger.String
		r.Result = rawOrNil(result)
		r.Error = rawOrNil(errJS)
		if startedAt.Valid {
			r.StartedAt = &startedAt.Time
		}
		if completedAt.Valid {
			r.CompletedAt = &completedAt.Time
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// --- Events ---

// AppendEvent appends an event with the next sequence number of its subject.
func (s *LibSQLStore) AppendEvent(ctx context.Context, event *Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// In WAL mode BeginTx starts a deferred transaction. A throwaway write
	// takes the write lock before the sequence is read.
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO schema_version (version, name) VALUES (-1, '_lock_noop')`); err != nil {
		return fmt.Errorf("acquire write lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM schema_version WHERE version = -1`); err != nil {
		return fmt.Errorf("cleanup write lock: %w", err)
	}

	if err := insertEvent(ctx, tx, event); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event: %w", err)
	}
	return nil
}

func insertEvent(ctx context.Context, tx *sql.Tx, event *Event) error {
	var seq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM events WHERE subject_id = ?`, event.SubjectID,
	).Scan(&seq); err != nil {
		return fmt.Errorf("get next sequence: %w", err)
	}
	event.Sequence = seq
	event.Timestamp = timeOrNow(event.Timestamp)

	res, err := tx.ExecContext(ctx,
		`INSERT INTO events (subject_id, event_type, payload, timestamp, sequence) VALUES (?, ?, ?, ?, ?)`,
		event.SubjectID, event.Type, nullRaw(event.Payload), event.Timestamp, seq,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		event.ID = id
	}
	return nil
}

// GetEvents returns the events of a subject with sequence > since, in order.
func (s *LibSQLStore) GetEvents(ctx context.Context, subjectID string, since int64) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, subject_id, event_type, payload, timestamp, sequence
		 FROM events WHERE subject_id = ? AND sequence > ? ORDER BY sequence ASC`,
		subjectID, since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *LibSQLStore) GetEventsByType(ctx context.Context, eventType string, filter EventFilter) ([]*Event, error) {
	where := []string{"event_type = ?"}
	args := []any{eventType}

	if filter.SubjectID != "" {
		where = append(where, "subject_id = ?")
		args = append(args, filter.SubjectID)
	}
	if filter.Since != nil {
		where = append(where, "timestamp >= ?")
		args = append(args, *filter.Since)
	}

	query := `SELECT id, subject_id, event_type, payload, timestamp, sequence FROM events WHERE ` +
		strings.Join(where, " AND ") + " ORDER BY timestamp DESC, id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]*Event, error) {
	var events []*Event
	for rows.Next() {
		e := &Event{}
		var payload sql.NullString
		if err := rows.Scan(&e.ID, &e.SubjectID, &e.Type, &payload, &e.Timestamp, &e.Sequence); err != nil {
			return nil, err
		}
		e.Payload = rawOrNil(payload)
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- Scheduled simulations ---

const scheduleColumns = `id, process_id, config_type, simulation_hours, cron_expression, enabled, last_run_at, next_run_at, last_run_status, last_run_id, created_at`

func (s *LibSQLStore) CreateSchedule(ctx context.Context, sched *ScheduledSimulation) error {
	sched.CreatedAt = timeOrNow(sched.CreatedAt)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scheduled_simulations (`+scheduleColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sched.ID, sched.ProcessID, sched.ConfigType, sched.SimulationHours, sched.CronExpression, sched.Enabled,
		nullTime(sched.LastRunAt), nullTime(sched.NextRunAt), nullStr(sched.LastRunStatus), nullStr(sched.LastRunID),
		sched.CreatedAt,
	)
	return err
}

func (s *LibSQLStore) GetSchedule(ctx context.Context, id string) (*ScheduledSimulation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+scheduleColumns+` FROM scheduled_simulations WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	scheds, err := scanSchedules(rows)
	if err != nil {
		return nil, err
	}
	if len(scheds) == 0 {
		return nil, storeNotFound("scheduled simulation", id)
	}
	return scheds[0], nil
}

func (s *LibSQLStore) UpdateSchedule(ctx context.Context, id string, update ScheduleUpdate) error {
	var sets []string
	var args []any

	if update.Enabled != nil {
		sets = append(sets, "enabled = ?")
		args = append(args, *update.Enabled)
	}
	if update.LastRunAt != nil {
		sets = append(sets, "last_run_at = ?")
		args = append(args, *update.LastRunAt)
	}
	if update.NextRunAt != nil {
		sets = append(sets, "next_run_at = ?")
		args = append(args, *update.NextRunAt)
	}
	if update.LastRunStatus != "" {
		sets = append(sets, "last_run_status = ?")
		args = append(args, update.LastRunStatus)
	}
	if update.LastRunID != "" {
		sets = append(sets, "last_run_id = ?")
		args = append(args, update.LastRunID)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE scheduled_simulations SET %s WHERE id = ?", strings.Join(sets, ", ")), args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "scheduled simulation", id)
}

func (s *LibSQLStore) ListSchedules(ctx context.Context, filter ScheduleFilter) ([]*ScheduledSimulation, error) {
	var where []string
	var args []any

	if filter.Enabled != nil {
		where = append(where, "enabled = ?")
		args = append(args, *filter.Enabled)
	}
	if filter.ProcessID != "" {
		where = append(where, "process_id = ?")
		args = append(args, filter.ProcessID)
	}

	query := `SELECT ` + scheduleColumns + ` FROM scheduled_simulations`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSchedules(rows)
}

func (s *LibSQLStore) DeleteSchedule(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_simulations WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "scheduled simulation", id)
}

func scanSchedules(rows *sql.Rows) ([]*ScheduledSimulation, error) {
	var out []*ScheduledSimulation
	for rows.Next() {
		j := &ScheduledSimulation{}
		var (
			lastRun, nextRun sql.NullTime
			status, runID    sql.NullString
		)
		if err := rows.Scan(&j.ID, &j.ProcessID, &j.ConfigType, &j.SimulationHours, &j.CronExpression, &j.Enabled,
			&lastRun, &nextRun, &status, &runID, &j.CreatedAt); err != nil {
			return nil, err
		}
		if lastRun.Valid {
			j.LastRunAt = &lastRun.Time
		}
		if nextRun.Valid {
			j.NextRunAt = &nextRun.Time
		}
		j.LastRunStatus = status.String
		j.LastRunID = runID.String
		out = append(out, j)
	}
	return out, rows.Err()
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.MactaError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func rawOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}
