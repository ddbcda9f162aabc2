package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"mercator-hq/minerva/pkg/audit"
	"mercator-hq/minerva/pkg/decision"
)

const sqliteSchemaVersion = 1

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS executions (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	ruleset_id TEXT NOT NULL DEFAULT '',
	ruleset_code TEXT NOT NULL DEFAULT '',
	ruleset_version INTEGER NOT NULL DEFAULT 0,
	executor TEXT NOT NULL DEFAULT '',
	correlation_id TEXT NOT NULL DEFAULT '',
	executed_at INTEGER NOT NULL,
	matched_rules TEXT NOT NULL DEFAULT '[]',
	rules_evaluated INTEGER NOT NULL DEFAULT 0,
	context BLOB,
	derived_scope BLOB,
	warnings TEXT NOT NULL DEFAULT '[]',
	status TEXT NOT NULL,
	error_detail TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_executions_tenant_time
	ON executions(tenant_id, executed_at DESC);
CREATE INDEX IF NOT EXISTS idx_executions_correlation
	ON executions(correlation_id);

CREATE TABLE IF NOT EXISTS decisions (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	policy_type TEXT NOT NULL,
	policy_version INTEGER NOT NULL,
	fingerprint TEXT NOT NULL,
	context BLOB,
	decision TEXT NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	rules_evaluated INTEGER NOT NULL DEFAULT 0,
	rules_matched INTEGER NOT NULL DEFAULT 0,
	confidence INTEGER NOT NULL DEFAULT 0,
	evaluated_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL DEFAULT 0,
	related_entity TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_decisions_tenant_policy
	ON decisions(tenant_id, policy_type, evaluated_at DESC);

CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);
`

// SQLiteConfig configures the SQLite audit store.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// MaxOpenConns is the maximum number of open connections.
	// Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// WALMode enables Write-Ahead Logging for better concurrency.
	// Default: true
	WALMode bool

	// BusyTimeout is how long to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/audit.db",
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteStore implements audit.Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	config *SQLiteConfig
}

// NewSQLiteStore opens (creating if needed) a SQLite audit store.
func NewSQLiteStore(config *SQLiteConfig) (*SQLiteStore, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}
	if config.Path == "" {
		return nil, fmt.Errorf("audit db path cannot be empty")
	}
	if config.MaxOpenConns == 0 {
		config.MaxOpenConns = 10
	}
	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = 5
	}
	if config.BusyTimeout == 0 {
		config.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("%s?_busy_timeout=%d", config.Path, int(config.BusyTimeout.Milliseconds()))
	if config.WALMode {
		dsn += "&_journal_mode=WAL&_synchronous=NORMAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, audit.NewStorageError("sqlite", "open", err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)

	s := &SQLiteStore{db: db, config: config}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, audit.NewStorageError("sqlite", "init schema", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	if _, err := s.db.Exec(sqliteSchema); err != nil {
		return err
	}

	var current int
	err := s.db.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&current)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = s.db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, sqliteSchemaVersion)
		return err
	case err != nil:
		return err
	case current != sqliteSchemaVersion:
		return fmt.Errorf("schema version mismatch: have %d, want %d", current, sqliteSchemaVersion)
	}
	return nil
}

// SaveExecution appends an execution record.
func (s *SQLiteStore) SaveExecution(ctx context.Context, rec *audit.ExecutionRecord) error {
	matched, err := json.Marshal(emptyIfNil(rec.MatchedRuleCodes))
	if err != nil {
		return audit.NewStorageError("sqlite", "marshal matched rules", err)
	}
	warnings, err := json.Marshal(emptyIfNil(rec.Warnings))
	if err != nil {
		return audit.NewStorageError("sqlite", "marshal warnings", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO executions (id, tenant_id, ruleset_id, ruleset_code,
			ruleset_version, executor, correlation_id, executed_at,
			matched_rules, rules_evaluated, context, derived_scope,
			warnings, status, error_detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.TenantID, rec.RulesetID, rec.RulesetCode,
		rec.RulesetVersion, rec.Executor, rec.CorrelationID, rec.ExecutedAt.Unix(),
		string(matched), rec.RulesEvaluated, rec.Context, rec.DerivedScope,
		string(warnings), string(rec.Status), rec.ErrorDetail,
	)
	if err != nil {
		return audit.NewStorageError("sqlite", "save execution", err)
	}
	return nil
}

// GetExecution returns an execution record by id.
func (s *SQLiteStore) GetExecution(ctx context.Context, id string) (*audit.ExecutionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, ruleset_id, ruleset_code, ruleset_version,
			executor, correlation_id, executed_at, matched_rules,
			rules_evaluated, context, derived_scope, warnings, status,
			error_detail
		FROM executions WHERE id = ?`, id)

	rec, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &audit.NotFoundError{ID: id}
	}
	return rec, err
}

// QueryExecutions returns matching records, newest first.
func (s *SQLiteStore) QueryExecutions(ctx context.Context, q audit.Query) ([]*audit.ExecutionRecord, error) {
	var where []string
	var args []any

	if q.TenantID != "" {
		where = append(where, "tenant_id = ?")
		args = append(args, q.TenantID)
	}
	if q.RulesetCode != "" {
		where = append(where, "ruleset_code = ?")
		args = append(args, q.RulesetCode)
	}
	if q.CorrelationID != "" {
		where = append(where, "correlation_id = ?")
		args = append(args, q.CorrelationID)
	}
	if q.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(q.Status))
	}
	if !q.From.IsZero() {
		where = append(where, "executed_at >= ?")
		args = append(args, q.From.Unix())
	}
	if !q.To.IsZero() {
		where = append(where, "executed_at <= ?")
		args = append(args, q.To.Unix())
	}

	query := `
		SELECT id, tenant_id, ruleset_id, ruleset_code, ruleset_version,
			executor, correlation_id, executed_at, matched_rules,
			rules_evaluated, context, derived_scope, warnings, status,
			error_detail
		FROM executions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY executed_at DESC, id DESC LIMIT ?"

	limit := q.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, audit.NewStorageError("sqlite", "query executions", err)
	}
	defer rows.Close()

	var out []*audit.ExecutionRecord
	for rows.Next() {
		rec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SaveDecision persists a policy decision.
func (s *SQLiteStore) SaveDecision(ctx context.Context, d *decision.PolicyDecision) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO decisions (id, tenant_id, policy_type, policy_version,
			fingerprint, context, decision, reason, rules_evaluated,
			rules_matched, confidence, evaluated_at, expires_at,
			related_entity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.TenantID, d.PolicyType, d.PolicyVersion,
		d.Fingerprint, d.Context, d.Decision, d.Reason, d.RulesEvaluated,
		d.RulesMatched, d.Confidence, d.EvaluatedAt.Unix(), unixOrZero(d.ExpiresAt),
		d.RelatedEntity,
	)
	if err != nil {
		return audit.NewStorageError("sqlite", "save decision", err)
	}
	return nil
}

// QueryDecisions returns a tenant's persisted decisions for a policy type,
// newest first.
func (s *SQLiteStore) QueryDecisions(ctx context.Context, tenantID, policyType string, limit int) ([]*decision.PolicyDecision, error) {
	if limit <= 0 {
		limit = defaultQueryLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, policy_type, policy_version, fingerprint,
			context, decision, reason, rules_evaluated, rules_matched,
			confidence, evaluated_at, expires_at, related_entity
		FROM decisions
		WHERE tenant_id = ? AND policy_type = ?
		ORDER BY evaluated_at DESC, id DESC LIMIT ?`,
		tenantID, policyType, limit)
	if err != nil {
		return nil, audit.NewStorageError("sqlite", "query decisions", err)
	}
	defer rows.Close()

	var out []*decision.PolicyDecision
	for rows.Next() {
		var (
			d           decision.PolicyDecision
			evaluatedAt int64
			expiresAt   int64
		)
		if err := rows.Scan(&d.ID, &d.TenantID, &d.PolicyType, &d.PolicyVersion,
			&d.Fingerprint, &d.Context, &d.Decision, &d.Reason, &d.RulesEvaluated,
			&d.RulesMatched, &d.Confidence, &evaluatedAt, &expiresAt,
			&d.RelatedEntity); err != nil {
			return nil, audit.NewStorageError("sqlite", "scan decision", err)
		}
		d.EvaluatedAt = time.Unix(evaluatedAt, 0).UTC()
		if expiresAt != 0 {
			d.ExpiresAt = time.Unix(expiresAt, 0).UTC()
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

// PruneDecisionsBefore deletes persisted decisions older than the cutoff.
func (s *SQLiteStore) PruneDecisionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM decisions WHERE evaluated_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, audit.NewStorageError("sqlite", "prune decisions", err)
	}
	return res.RowsAffected()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExecution(row scanner) (*audit.ExecutionRecord, error) {
	var (
		rec        audit.ExecutionRecord
		executedAt int64
		matched    string
		warnings   string
		status     string
	)
	err := row.Scan(&rec.ID, &rec.TenantID, &rec.RulesetID, &rec.RulesetCode,
		&rec.RulesetVersion, &rec.Executor, &rec.CorrelationID, &executedAt,
		&matched, &rec.RulesEvaluated, &rec.Context, &rec.DerivedScope,
		&warnings, &status, &rec.ErrorDetail)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, audit.NewStorageError("sqlite", "scan execution", err)
	}

	rec.ExecutedAt = time.Unix(executedAt, 0).UTC()
	rec.Status = audit.Status(status)
	if err := json.Unmarshal([]byte(matched), &rec.MatchedRuleCodes); err != nil {
		return nil, audit.NewStorageError("sqlite", "unmarshal matched rules", err)
	}
	if err := json.Unmarshal([]byte(warnings), &rec.Warnings); err != nil {
		return nil, audit.NewStorageError("sqlite", "unmarshal warnings", err)
	}
	return &rec, nil
}

func emptyIfNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
