package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"mercator-hq/minerva/pkg/rules/parser"
	"mercator-hq/minerva/pkg/ruleset"
)

// schemaVersion is bumped on incompatible schema changes.
const schemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS rulesets (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL DEFAULT '',
	code TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	version INTEGER NOT NULL,
	status TEXT NOT NULL,
	previous_version_id TEXT NOT NULL DEFAULT '',
	change_notes TEXT NOT NULL DEFAULT '',
	activated_at INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	deleted INTEGER NOT NULL DEFAULT 0,
	UNIQUE(tenant_id, code, version)
);

CREATE INDEX IF NOT EXISTS idx_rulesets_lineage
	ON rulesets(tenant_id, code, status) WHERE deleted = 0;

CREATE TABLE IF NOT EXISTS rules (
	ruleset_id TEXT NOT NULL REFERENCES rulesets(id),
	code TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	business_reason TEXT NOT NULL DEFAULT '',
	priority INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	condition_json TEXT NOT NULL DEFAULT '',
	actions_json TEXT NOT NULL DEFAULT '',
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (ruleset_id, code)
);

CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);
`

// SQLiteStore implements ruleset.Store on a SQLite database.
// Rule conditions and actions are stored as JSON blobs in the wire format
// defined by pkg/rules/parser and parsed eagerly on read, so a corrupt blob
// surfaces as a load error rather than a silent evaluation miss.
type SQLiteStore struct {
	db *sql.DB
}

// SQLiteConfig configures the SQLite ruleset store.
type SQLiteConfig struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// NewSQLiteStore opens (creating if needed) a SQLite ruleset store.
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		cfg.DBPath, int(cfg.BusyTimeout.Milliseconds()))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	var current int
	err := s.db.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&current)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = s.db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, schemaVersion)
		return err
	case err != nil:
		return err
	case current != schemaVersion:
		return fmt.Errorf("schema version mismatch: have %d, want %d", current, schemaVersion)
	}
	return nil
}

// Put inserts a ruleset version and its rules in one transaction.
func (s *SQLiteStore) Put(ctx context.Context, rs *ruleset.Ruleset) error {
	if rs.ID == "" {
		return fmt.Errorf("ruleset id cannot be empty")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO rulesets (id, tenant_id, code, name, version, status,
			previous_version_id, change_notes, activated_at, created_at, deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		rs.ID, rs.TenantID, rs.Code, rs.Name, rs.Version, string(rs.Status),
		rs.PreviousVersionID, rs.ChangeNotes, unixOrZero(rs.ActivatedAt), rs.CreatedAt.Unix(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			scope := ruleset.ScopeKey{TenantID: rs.TenantID, Code: rs.Code}
			return fmt.Errorf("%w: %s v%d", ruleset.ErrVersionExists, scope, rs.Version)
		}
		return fmt.Errorf("failed to insert ruleset: %w", err)
	}

	for _, r := range rs.Rules {
		condJSON, err := parser.EncodeCondition(r.Condition)
		if err != nil {
			return fmt.Errorf("rule %s: %w", r.Code, err)
		}
		actJSON, err := parser.EncodeActions(r.Actions)
		if err != nil {
			return fmt.Errorf("rule %s: %w", r.Code, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO rules (ruleset_id, code, name, business_reason,
				priority, status, condition_json, actions_json, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rs.ID, r.Code, r.Name, r.BusinessReason,
			r.Priority, string(r.Status), string(condJSON), string(actJSON),
			unixOrZero(r.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to insert rule %s: %w", r.Code, err)
		}
	}

	return tx.Commit()
}

// Get returns a ruleset version by id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*ruleset.Ruleset, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, code, name, version, status,
			previous_version_id, change_notes, activated_at, created_at
		FROM rulesets WHERE id = ? AND deleted = 0`, id)

	rs, err := scanRuleset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &ruleset.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadRules(ctx, rs); err != nil {
		return nil, err
	}
	return rs, nil
}

// GetVersion returns one version of a lineage.
func (s *SQLiteStore) GetVersion(ctx context.Context, scope ruleset.ScopeKey, version int) (*ruleset.Ruleset, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, code, name, version, status,
			previous_version_id, change_notes, activated_at, created_at
		FROM rulesets
		WHERE tenant_id = ? AND code = ? AND version = ? AND deleted = 0`,
		scope.TenantID, scope.Code, version)

	rs, err := scanRuleset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &ruleset.NotFoundError{Scope: scope, Version: version}
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadRules(ctx, rs); err != nil {
		return nil, err
	}
	return rs, nil
}

// GetActive returns the Active version of a lineage.
func (s *SQLiteStore) GetActive(ctx context.Context, scope ruleset.ScopeKey) (*ruleset.Ruleset, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, code, name, version, status,
			previous_version_id, change_notes, activated_at, created_at
		FROM rulesets
		WHERE tenant_id = ? AND code = ? AND status = ? AND deleted = 0`,
		scope.TenantID, scope.Code, string(ruleset.StatusActive))

	rs, err := scanRuleset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &ruleset.NoActiveVersionError{Scope: scope}
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadRules(ctx, rs); err != nil {
		return nil, err
	}
	return rs, nil
}

// ListVersions returns all versions of a lineage ordered by version
// ascending, without rules.
func (s *SQLiteStore) ListVersions(ctx context.Context, scope ruleset.ScopeKey) ([]*ruleset.Ruleset, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, code, name, version, status,
			previous_version_id, change_notes, activated_at, created_at
		FROM rulesets
		WHERE tenant_id = ? AND code = ? AND deleted = 0
		ORDER BY version ASC`,
		scope.TenantID, scope.Code)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	var out []*ruleset.Ruleset
	for rows.Next() {
		rs, err := scanRuleset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rs)
	}
	return out, rows.Err()
}

// Swap atomically activates one version and retires another.
func (s *SQLiteStore) Swap(ctx context.Context, activateID, retireID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Unix()

	if retireID != "" {
		res, err := tx.ExecContext(ctx, `
			UPDATE rulesets SET status = ? WHERE id = ? AND deleted = 0`,
			string(ruleset.StatusRetired), retireID)
		if err != nil {
			return fmt.Errorf("failed to retire ruleset: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return &ruleset.NotFoundError{ID: retireID}
		}
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE rulesets SET status = ?, activated_at = ?, previous_version_id =
			CASE WHEN ? = '' THEN previous_version_id ELSE ? END
		WHERE id = ? AND deleted = 0`,
		string(ruleset.StatusActive), now, retireID, retireID, activateID)
	if err != nil {
		return fmt.Errorf("failed to activate ruleset: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ruleset.NotFoundError{ID: activateID}
	}

	return tx.Commit()
}

// Delete marks a version row as soft-deleted. The row and its rules stay in
// the database for audit queries made directly against the file.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE rulesets SET deleted = 1 WHERE id = ? AND deleted = 0`, id)
	if err != nil {
		return fmt.Errorf("failed to delete ruleset: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ruleset.NotFoundError{ID: id}
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) loadRules(ctx context.Context, rs *ruleset.Ruleset) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT code, name, business_reason, priority, status,
			condition_json, actions_json, updated_at
		FROM rules WHERE ruleset_id = ? ORDER BY code ASC`, rs.ID)
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			r         ruleset.Rule
			status    string
			condJSON  string
			actJSON   string
			updatedAt int64
		)
		if err := rows.Scan(&r.Code, &r.Name, &r.BusinessReason, &r.Priority,
			&status, &condJSON, &actJSON, &updatedAt); err != nil {
			return fmt.Errorf("failed to scan rule: %w", err)
		}
		r.Status = ruleset.RuleStatus(status)
		r.UpdatedAt = timeOrZero(updatedAt)

		r.Condition, err = parser.ParseCondition([]byte(condJSON))
		if err != nil {
			return fmt.Errorf("rule %s: %w", r.Code, err)
		}
		r.Actions, err = parser.ParseActions([]byte(actJSON))
		if err != nil {
			return fmt.Errorf("rule %s: %w", r.Code, err)
		}
		rs.Rules = append(rs.Rules, &r)
	}
	return rows.Err()
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRuleset(row scanner) (*ruleset.Ruleset, error) {
	var (
		rs          ruleset.Ruleset
		status      string
		activatedAt int64
		createdAt   int64
	)
	err := row.Scan(&rs.ID, &rs.TenantID, &rs.Code, &rs.Name, &rs.Version,
		&status, &rs.PreviousVersionID, &rs.ChangeNotes, &activatedAt, &createdAt)
	if err != nil {
		return nil, err
	}
	rs.Status = ruleset.Status(status)
	rs.ActivatedAt = timeOrZero(activatedAt)
	rs.CreatedAt = timeOrZero(createdAt)
	return &rs, nil
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func timeOrZero(unix int64) time.Time {
	if unix == 0 {
		return time.Time{}
	}
	return time.Unix(unix, 0).UTC()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
