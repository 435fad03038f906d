package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/quillagent/quill/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-20000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

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

// --- OAuth token ---

func (s *LibSQLStore) PutToken(ctx context.Context, payload []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO oauth_token (id, payload, updated_at) VALUES (1, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(id) DO UPDATE SET payload=excluded.payload, updated_at=CURRENT_TIMESTAMP`,
		string(payload),
	)
	return err
}

func (s *LibSQLStore) GetToken(ctx context.Context) ([]byte, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM oauth_token WHERE id = 1`).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("oauth token", "1")
	}
	if err != nil {
		return nil, err
	}
	return []byte(payload), nil
}

func (s *LibSQLStore) DeleteToken(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM oauth_token WHERE id = 1`)
	return err
}

// --- Scheduled publishes ---

func (s *LibSQLStore) CreateScheduledPublish(ctx context.Context, sp *ScheduledPublish) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scheduled_publishes (id, name, action, params, cron_expression, when_expression, enabled, last_run_at, next_run_at, last_run_status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sp.ID, nullStr(sp.Name), sp.Action, nullRaw(sp.Params), sp.CronExpression, nullStr(sp.When),
		sp.Enabled, nullTime(sp.LastRunAt), nullTime(sp.NextRunAt), nullStr(sp.LastRunStatus),
		timeOrNow(sp.CreatedAt), timeOrNow(sp.UpdatedAt),
	)
	return err
}

func (s *LibSQLStore) GetScheduledPublish(ctx context.Context, id string) (*ScheduledPublish, error) {
	sp := &ScheduledPublish{}
	var (
		name, when, params, status sql.NullString
		lastRun, nextRun           sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, action, params, cron_expression, when_expression, enabled, last_run_at, next_run_at, last_run_status, created_at, updated_at
		 FROM scheduled_publishes WHERE id = ?`, id,
	).Scan(&sp.ID, &name, &sp.Action, &params, &sp.CronExpression, &when, &sp.Enabled,
		&lastRun, &nextRun, &status, &sp.CreatedAt, &sp.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("scheduled publish", id)
	}
	if err != nil {
		return nil, err
	}
	sp.Name = name.String
	sp.When = when.String
	sp.Params = rawOrNil(params)
	sp.LastRunStatus = status.String
	if lastRun.Valid {
		sp.LastRunAt = &lastRun.Time
	}
	if nextRun.Valid {
		sp.NextRunAt = &nextRun.Time
	}
	return sp, nil
}

func (s *LibSQLStore) UpdateScheduledPublish(ctx context.Context, id string, update ScheduledPublishUpdate) error {
	var sets []string
	var args []any

	if update.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *update.Name)
	}
	if update.Action != nil {
		sets = append(sets, "action = ?")
		args = append(args, *update.Action)
	}
	if update.Params != nil {
		sets = append(sets, "params = ?")
		args = append(args, string(update.Params))
	}
	if update.CronExpression != nil {
		sets = append(sets, "cron_expression = ?")
		args = append(args, *update.CronExpression)
	}
	if update.When != nil {
		sets = append(sets, "when_expression = ?")
		args = append(args, *update.When)
	}
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
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_publishes SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "scheduled publish", id)
}

func (s *LibSQLStore) ListScheduledPublishes(ctx context.Context, filter ScheduledPublishFilter) ([]*ScheduledPublish, error) {
	query := `SELECT id, name, action, params, cron_expression, when_expression, enabled, last_run_at, next_run_at, last_run_status, created_at, updated_at
		 FROM scheduled_publishes`
	var where []string
	var args []any
	if filter.Enabled != nil {
		where = append(where, "enabled = ?")
		args = append(args, *filter.Enabled)
	}
	if filter.Action != "" {
		where = append(where, "action = ?")
		args = append(args, filter.Action)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ScheduledPublish
	for rows.Next() {
		sp := &ScheduledPublish{}
		var (
			name, when, params, status sql.NullString
			lastRun, nextRun           sql.NullTime
		)
		if err := rows.Scan(&sp.ID, &name, &sp.Action, &params, &sp.CronExpression, &when, &sp.Enabled,
			&lastRun, &nextRun, &status, &sp.CreatedAt, &sp.UpdatedAt); err != nil {
			return nil, err
		}
		sp.Name = name.String
		sp.When = when.String
		sp.Params = rawOrNil(params)
		sp.LastRunStatus = status.String
		if lastRun.Valid {
			sp.LastRunAt = &lastRun.Time
		}
		if nextRun.Valid {
			sp.NextRunAt = &nextRun.Time
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}

func (s *LibSQLStore) DeleteScheduledPublish(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_publishes WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "scheduled publish", id)
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.QuillError {
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

func nullRaw(r []byte) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func rawOrNil(ns sql.NullString) []byte {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return []byte(ns.String)
}
