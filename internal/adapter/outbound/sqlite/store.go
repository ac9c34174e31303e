// Package sqlite provides a SQLite-backed implementation of the
// template, version, and audit stores using modernc.org/sqlite
// (CGo-free driver).
//
// Write transactions are opened immediate, so the publish critical
// section and version-number allocation are serialized by the database.
// A partial unique index on (template_id) WHERE status='published' is a
// hard backstop for the single-published invariant.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Desk-Guard/Deskguard/internal/domain/audit"
	"github.com/Desk-Guard/Deskguard/internal/domain/policy"
)

const schema = `
CREATE TABLE IF NOT EXISTS templates (
	id          TEXT PRIMARY KEY,
	domain      TEXT NOT NULL,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	scope_type  TEXT NOT NULL,
	scope_value TEXT NOT NULL DEFAULT '',
	is_active   INTEGER NOT NULL DEFAULT 1,
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS versions (
	id           TEXT PRIMARY KEY,
	template_id  TEXT NOT NULL REFERENCES templates(id),
	version      INTEGER NOT NULL,
	status       TEXT NOT NULL,
	config       TEXT NOT NULL,
	created_by   TEXT NOT NULL,
	published_by TEXT NOT NULL DEFAULT '',
	published_at TEXT,
	created_at   TEXT NOT NULL,
	UNIQUE (template_id, version)
);

CREATE UNIQUE INDEX IF NOT EXISTS versions_one_published
	ON versions (template_id) WHERE status = 'published';

CREATE TABLE IF NOT EXISTS audit_log (
	id          TEXT PRIMARY KEY,
	policy_type TEXT NOT NULL,
	action      TEXT NOT NULL,
	template_id TEXT NOT NULL,
	version_id  TEXT NOT NULL DEFAULT '',
	actor_label TEXT NOT NULL,
	created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS audit_log_template ON audit_log (template_id, created_at);
`

// Store implements policy.TemplateStore, policy.VersionStore, and
// audit.Store against a single SQLite database.
type Store struct {
	db *sql.DB
}

// txKey carries the mutation transaction through the audit func so
// Append can join it. Keyed per store: a transaction from a different
// Store must not capture another database's audit writes.
type txKey struct{}

type inflightTx struct {
	store *Store
	tx    *sql.Tx
}

// withTx returns ctx carrying the open mutation transaction.
func (s *Store) withTx(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, inflightTx{store: s, tx: tx})
}

// runAudit invokes the mutation's audit func with the transaction in
// context. The caller rolls back on error.
func (s *Store) runAudit(ctx context.Context, tx *sql.Tx, auditFn policy.AuditFunc) error {
	if auditFn == nil {
		return nil
	}
	return auditFn(s.withTx(ctx, tx))
}

// Open opens (creating if needed) the database at path and applies the
// schema. Use ":memory:" for an ephemeral database in tests.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// The modernc driver serializes on a single connection; more would
	// surface SQLITE_BUSY on concurrent writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

// --- policy.TemplateStore ---

// CreateTemplate persists a new template. The row and its audit entry
// commit in one transaction.
func (s *Store) CreateTemplate(ctx context.Context, t *policy.Template, auditFn policy.AuditFunc) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO templates (id, domain, name, description, scope_type, scope_value, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, string(t.Domain), t.Name, t.Description, string(t.ScopeType), t.ScopeValue,
		boolToInt(t.IsActive), formatTime(t.CreatedAt), formatTime(t.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert template: %w", err)
	}
	if err := s.runAudit(ctx, tx, auditFn); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit template: %w", err)
	}
	return nil
}

// UpdateTemplate replaces the mutable fields of an existing template,
// committing the update and its audit entry together.
func (s *Store) UpdateTemplate(ctx context.Context, t *policy.Template, auditFn policy.AuditFunc) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE templates
		SET name = ?, description = ?, scope_type = ?, scope_value = ?, is_active = ?, updated_at = ?
		WHERE id = ?`,
		t.Name, t.Description, string(t.ScopeType), t.ScopeValue,
		boolToInt(t.IsActive), formatTime(t.UpdatedAt), t.ID)
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return policy.NewTemplateNotFound(t.ID)
	}
	if err := s.runAudit(ctx, tx, auditFn); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit template: %w", err)
	}
	return nil
}

// GetTemplate returns a template by id.
func (s *Store) GetTemplate(ctx context.Context, id string) (*policy.Template, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, domain, name, description, scope_type, scope_value, is_active, created_at, updated_at
		FROM templates WHERE id = ?`, id)
	t, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, policy.NewTemplateNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	return t, nil
}

// ListTemplates returns templates matching the filter, oldest first.
func (s *Store) ListTemplates(ctx context.Context, filter policy.TemplateFilter) ([]policy.Template, error) {
	query := `SELECT id, domain, name, description, scope_type, scope_value, is_active, created_at, updated_at FROM templates`
	var args []any
	where := ""
	if filter.Domain != "" {
		where = " WHERE domain = ?"
		args = append(args, string(filter.Domain))
	}
	if filter.ActiveOnly {
		if where == "" {
			where = " WHERE is_active = 1"
		} else {
			where += " AND is_active = 1"
		}
	}
	rows, err := s.db.QueryContext(ctx, query+where+" ORDER BY created_at, id", args...)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()
	return collectTemplates(rows)
}

// FindByScope returns all templates for the exact scope tuple.
func (s *Store) FindByScope(ctx context.Context, domain policy.Domain, scopeType policy.ScopeType, scopeValue string) ([]policy.Template, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, domain, name, description, scope_type, scope_value, is_active, created_at, updated_at
		FROM templates
		WHERE domain = ? AND scope_type = ? AND scope_value = ?
		ORDER BY id`,
		string(domain), string(scopeType), scopeValue)
	if err != nil {
		return nil, fmt.Errorf("find templates by scope: %w", err)
	}
	defer rows.Close()
	return collectTemplates(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(r rowScanner) (*policy.Template, error) {
	var t policy.Template
	var domain, scopeType, createdAt, updatedAt string
	var active int
	if err := r.Scan(&t.ID, &domain, &t.Name, &t.Description, &scopeType, &t.ScopeValue, &active, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	t.Domain = policy.Domain(domain)
	t.ScopeType = policy.ScopeType(scopeType)
	t.IsActive = active != 0
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	return &t, nil
}

func collectTemplates(rows *sql.Rows) ([]policy.Template, error) {
	var result []policy.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		result = append(result, *t)
	}
	return result, rows.Err()
}

// --- policy.VersionStore ---

// CreateVersion persists v as a draft, assigning the next version number
// for its template inside an immediate transaction. The UNIQUE
// (template_id, version) constraint backstops the allocation; the audit
// entry commits in the same transaction.
func (s *Store) CreateVersion(ctx context.Context, v *policy.Version, auditFn policy.AuditFunc) error {
	cfg, err := json.Marshal(v.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var next int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM versions WHERE template_id = ?`,
		v.TemplateID).Scan(&next); err != nil {
		return fmt.Errorf("allocate version number: %w", err)
	}

	v.Number = next
	v.Status = policy.StatusDraft
	_, err = tx.ExecContext(ctx, `
		INSERT INTO versions (id, template_id, version, status, config, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.TemplateID, v.Number, string(v.Status), string(cfg), v.CreatedBy, formatTime(v.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert version: %w", err)
	}
	if err := s.runAudit(ctx, tx, auditFn); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit version: %w", err)
	}
	return nil
}

// GetVersion returns a version by id.
func (s *Store) GetVersion(ctx context.Context, id string) (*policy.Version, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, template_id, version, status, config, created_by, published_by, published_at, created_at
		FROM versions WHERE id = ?`, id)
	v, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, policy.NewVersionNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get version: %w", err)
	}
	return v, nil
}

// ListVersions returns all versions of a template, newest number first.
func (s *Store) ListVersions(ctx context.Context, templateID string) ([]policy.Version, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, template_id, version, status, config, created_by, published_by, published_at, created_at
		FROM versions WHERE template_id = ? ORDER BY version DESC`, templateID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var result []policy.Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		result = append(result, *v)
	}
	return result, rows.Err()
}

// ReplaceConfig swaps the config of a draft version, committing the
// swap and its audit entry together.
func (s *Store) ReplaceConfig(ctx context.Context, id string, cfg policy.Config, auditFn policy.AuditFunc) (*policy.Version, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE versions SET config = ? WHERE id = ? AND status = ?`,
		string(data), id, string(policy.StatusDraft))
	if err != nil {
		return nil, fmt.Errorf("replace config: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Distinguish missing from non-draft.
		v, err := getVersionTx(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		return nil, &policy.StateError{Op: "update", Status: v.Status}
	}
	if err := s.runAudit(ctx, tx, auditFn); err != nil {
		return nil, err
	}
	v, err := getVersionTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit config: %w", err)
	}
	return v, nil
}

func getVersionTx(ctx context.Context, tx *sql.Tx, id string) (*policy.Version, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT id, template_id, version, status, config, created_by, published_by, published_at, created_at
		FROM versions WHERE id = ?`, id)
	v, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, policy.NewVersionNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get version: %w", err)
	}
	return v, nil
}

// Publish atomically promotes a draft and archives the template's
// currently published version within one immediate transaction. The
// caller's expectedPublishedID is the compare-and-swap guard; the audit
// entries commit with the transition.
func (s *Store) Publish(ctx context.Context, id, actor string, at time.Time, expectedPublishedID string, auditFn policy.AuditFunc) (*policy.PublishResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	v, err := getVersionTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if v.Status != policy.StatusDraft {
		return nil, &policy.StateError{Op: "publish", Status: v.Status}
	}

	currentRow := tx.QueryRowContext(ctx, `
		SELECT id, template_id, version, status, config, created_by, published_by, published_at, created_at
		FROM versions WHERE template_id = ? AND status = ?`,
		v.TemplateID, string(policy.StatusPublished))
	current, err := scanVersion(currentRow)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get published version: %w", err)
	}

	currentID := ""
	if current != nil {
		currentID = current.ID
	}
	if currentID != expectedPublishedID {
		return nil, &policy.ConflictError{
			Reason: "another version was published concurrently; re-fetch and retry",
		}
	}

	result := &policy.PublishResult{}
	if current != nil {
		if _, err := tx.ExecContext(ctx,
			`UPDATE versions SET status = ? WHERE id = ?`,
			string(policy.StatusArchived), current.ID); err != nil {
			return nil, fmt.Errorf("archive current version: %w", err)
		}
		current.Status = policy.StatusArchived
		result.Demoted = current
	}

	publishedAt := formatTime(at)
	if _, err := tx.ExecContext(ctx,
		`UPDATE versions SET status = ?, published_by = ?, published_at = ? WHERE id = ?`,
		string(policy.StatusPublished), actor, publishedAt, id); err != nil {
		return nil, fmt.Errorf("publish version: %w", err)
	}

	if err := s.runAudit(ctx, tx, auditFn); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit publish: %w", err)
	}

	v.Status = policy.StatusPublished
	v.PublishedBy = actor
	ts := at.UTC()
	v.PublishedAt = &ts
	result.Published = v
	return result, nil
}

// Archive retires a draft or published version, committing the status
// change and its audit entry together.
func (s *Store) Archive(ctx context.Context, id string, at time.Time, auditFn policy.AuditFunc) (*policy.Version, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE versions SET status = ? WHERE id = ? AND status != ?`,
		string(policy.StatusArchived), id, string(policy.StatusArchived))
	if err != nil {
		return nil, fmt.Errorf("archive version: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		v, err := getVersionTx(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		return nil, &policy.StateError{Op: "archive", Status: v.Status}
	}
	if err := s.runAudit(ctx, tx, auditFn); err != nil {
		return nil, err
	}
	v, err := getVersionTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit archive: %w", err)
	}
	return v, nil
}

// GetPublished returns the template's published version, or nil.
func (s *Store) GetPublished(ctx context.Context, templateID string) (*policy.Version, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, template_id, version, status, config, created_by, published_by, published_at, created_at
		FROM versions WHERE template_id = ? AND status = ?`,
		templateID, string(policy.StatusPublished))
	v, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get published version: %w", err)
	}
	return v, nil
}

func scanVersion(r rowScanner) (*policy.Version, error) {
	var v policy.Version
	var status, cfg, createdAt string
	var publishedAt sql.NullString
	if err := r.Scan(&v.ID, &v.TemplateID, &v.Number, &status, &cfg, &v.CreatedBy, &v.PublishedBy, &publishedAt, &createdAt); err != nil {
		return nil, err
	}
	v.Status = policy.Status(status)
	v.CreatedAt = parseTime(createdAt)
	if publishedAt.Valid && publishedAt.String != "" {
		t := parseTime(publishedAt.String)
		v.PublishedAt = &t
	}
	if err := unmarshalConfig(cfg, &v.Config); err != nil {
		return nil, err
	}
	return &v, nil
}

// unmarshalConfig decodes the stored JSON config with integer
// preservation, matching the validator's normalized representation.
func unmarshalConfig(data string, out *policy.Config) error {
	dec := json.NewDecoder(strings.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	*out = policy.Config(coerceNumbers(raw).(map[string]any))
	return nil
}

// coerceNumbers rewrites json.Number values to int64 when integral and
// float64 otherwise, and []any of strings to []string, so a round-trip
// through the database yields the same shapes normalization produced.
func coerceNumbers(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = coerceNumbers(e)
		}
		return t
	case []any:
		allStrings := len(t) > 0
		for i, e := range t {
			t[i] = coerceNumbers(e)
			if _, ok := t[i].(string); !ok {
				allStrings = false
			}
		}
		if allStrings {
			out := make([]string, len(t))
			for i, e := range t {
				out[i] = e.(string)
			}
			return out
		}
		if len(t) == 0 {
			return []string{}
		}
		return t
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	default:
		return v
	}
}

// --- audit.Store ---

// Append stores one audit entry. When the context carries this store's
// open mutation transaction, the row joins it, so the entry commits or
// rolls back with the mutation. Joining also keeps the append off the
// store's single connection, which the transaction already holds.
func (s *Store) Append(ctx context.Context, e *audit.Entry) error {
	var run interface {
		ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	} = s.db
	if in, ok := ctx.Value(txKey{}).(inflightTx); ok && in.store == s {
		run = in.tx
	}
	_, err := run.ExecContext(ctx, `
		INSERT INTO audit_log (id, policy_type, action, template_id, version_id, actor_label, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.PolicyType), string(e.Action), e.TemplateID, e.VersionID, e.ActorLabel, formatTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// Query returns audit entries matching the filter, newest first.
func (s *Store) Query(ctx context.Context, f audit.Filter) ([]audit.Entry, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = audit.DefaultQueryLimit
	}
	if limit > audit.MaxQueryLimit {
		limit = audit.MaxQueryLimit
	}

	query := `SELECT id, policy_type, action, template_id, version_id, actor_label, created_at FROM audit_log WHERE 1=1`
	var args []any
	if f.PolicyType != "" {
		query += " AND policy_type = ?"
		args = append(args, string(f.PolicyType))
	}
	if f.TemplateID != "" {
		query += " AND template_id = ?"
		args = append(args, f.TemplateID)
	}
	if f.Action != "" {
		query += " AND action = ?"
		args = append(args, string(f.Action))
	}
	if !f.Since.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, formatTime(f.Since))
	}
	if !f.Until.IsZero() {
		query += " AND created_at < ?"
		args = append(args, formatTime(f.Until))
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var result []audit.Entry
	for rows.Next() {
		var e audit.Entry
		var policyType, action, createdAt string
		if err := rows.Scan(&e.ID, &policyType, &action, &e.TemplateID, &e.VersionID, &e.ActorLabel, &createdAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.PolicyType = policy.Domain(policyType)
		e.Action = audit.Action(action)
		e.CreatedAt = parseTime(createdAt)
		result = append(result, e)
	}
	return result, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
