package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"github.com/mcpgate/gateway/pkg/catalog"
	"github.com/mcpgate/gateway/pkg/store"
)

// Store is the sqlite-backed implementation of store.Store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the sqlite database at path and applies
// any pending migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening %s: %w", path, err)
	}
	// One process, one user: a single writer connection avoids SQLITE_BUSY
	// without a busy-timeout dance.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close implements store.Store.
func (s *Store) Close() error {
	return s.db.Close()
}

// LoadAllDefinitions implements store.Store.
func (s *Store) LoadAllDefinitions(ctx context.Context) ([]catalog.ServerDefinition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, transport, command, args, env, meta, created_at
		FROM server_definitions ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading definitions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var defs []catalog.ServerDefinition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

// FindByName implements store.Store.
func (s *Store) FindByName(ctx context.Context, name string) (catalog.ServerDefinition, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, transport, command, args, env, meta, created_at
		FROM server_definitions WHERE name = ?`, name)
	def, err := scanDefinition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.ServerDefinition{}, store.ErrNotFound
	}
	return def, err
}

// Upsert implements store.Store.
func (s *Store) Upsert(ctx context.Context, def catalog.ServerDefinition) (catalog.ServerDefinition, error) {
	args, err := json.Marshal(def.Args)
	if err != nil {
		return catalog.ServerDefinition{}, fmt.Errorf("sqlite: marshaling args: %w", err)
	}
	env, err := json.Marshal(def.Env)
	if err != nil {
		return catalog.ServerDefinition{}, fmt.Errorf("sqlite: marshaling env: %w", err)
	}
	var meta any
	if def.Meta != nil {
		b, err := json.Marshal(def.Meta)
		if err != nil {
			return catalog.ServerDefinition{}, fmt.Errorf("sqlite: marshaling meta: %w", err)
		}
		meta = string(b)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO server_definitions (name, transport, command, args, env, meta)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			transport = excluded.transport,
			command   = excluded.command,
			args      = excluded.args,
			env       = excluded.env,
			meta      = excluded.meta`,
		def.Name, string(def.Transport), def.Command, string(args), string(env), meta)
	if err != nil {
		return catalog.ServerDefinition{}, fmt.Errorf("sqlite: upserting %q: %w", def.Name, err)
	}
	return s.FindByName(ctx, def.Name)
}

// Delete implements store.Store. Deleting an absent name is a no-op.
func (s *Store) Delete(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM server_definitions WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("sqlite: deleting %q: %w", name, err)
	}
	return nil
}

// InsertAudit implements store.Store.
func (s *Store) InsertAudit(ctx context.Context, rec store.AuditRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_records (
			request_id, session_id, mcp_session_id, server_name, client_info,
			method, request_headers, request_body, response_body,
			response_headers, status_code, error_message, duration_ms, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RequestID, rec.SessionID, rec.MCPSessionID, rec.ServerName, rec.ClientInfoJSON,
		rec.Method, rec.RequestHeaders, rec.RequestBody, rec.ResponseBody,
		rec.ResponseHeaders, rec.StatusCode, rec.ErrorMessage, rec.DurationMS, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("sqlite: inserting audit record %q: %w", rec.RequestID, err)
	}
	return nil
}

// PurgeAuditOlderThan implements store.Store.
func (s *Store) PurgeAuditOlderThan(ctx context.Context, days int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -days)
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_records WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sqlite: purging audit records: %w", err)
	}
	return res.RowsAffected()
}

// ListAudit implements store.Store.
func (s *Store) ListAudit(ctx context.Context, filters store.AuditFilters, page, pageSize int) ([]store.AuditRecord, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}

	clauses := "1=1"
	var args []any
	if filters.ServerName != "" {
		clauses += " AND server_name = ?"
		args = append(args, filters.ServerName)
	}
	if filters.SessionID != "" {
		clauses += " AND session_id = ?"
		args = append(args, filters.SessionID)
	}
	if filters.MCPSessionID != "" {
		clauses += " AND mcp_session_id = ?"
		args = append(args, filters.MCPSessionID)
	}
	if filters.Since != nil {
		clauses += " AND timestamp >= ?"
		args = append(args, *filters.Since)
	}
	if filters.Until != nil {
		clauses += " AND timestamp <= ?"
		args = append(args, *filters.Until)
	}
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, request_id, session_id, mcp_session_id, server_name, client_info,
			method, request_headers, request_body, response_body, response_headers,
			status_code, error_message, duration_ms, timestamp
		FROM audit_records WHERE %s
		ORDER BY timestamp DESC LIMIT ? OFFSET ?`, clauses), args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing audit records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var recs []store.AuditRecord
	for rows.Next() {
		var r store.AuditRecord
		if err := rows.Scan(&r.ID, &r.RequestID, &r.SessionID, &r.MCPSessionID, &r.ServerName,
			&r.ClientInfoJSON, &r.Method, &r.RequestHeaders, &r.RequestBody, &r.ResponseBody,
			&r.ResponseHeaders, &r.StatusCode, &r.ErrorMessage, &r.DurationMS, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("sqlite: scanning audit record: %w", err)
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDefinition(row rowScanner) (catalog.ServerDefinition, error) {
	var (
		def       catalog.ServerDefinition
		transport string
		args      string
		env       string
		meta      sql.NullString
	)
	if err := row.Scan(&def.ID, &def.Name, &transport, &def.Command, &args, &env, &meta, &def.CreatedAt); err != nil {
		return catalog.ServerDefinition{}, err
	}
	def.Transport = catalog.Transport(transport)

	if err := json.Unmarshal([]byte(args), &def.Args); err != nil {
		return catalog.ServerDefinition{}, fmt.Errorf("sqlite: unmarshaling args for %q: %w", def.Name, err)
	}
	if err := json.Unmarshal([]byte(env), &def.Env); err != nil {
		return catalog.ServerDefinition{}, fmt.Errorf("sqlite: unmarshaling env for %q: %w", def.Name, err)
	}
	if meta.Valid {
		if err := json.Unmarshal([]byte(meta.String), &def.Meta); err != nil {
			return catalog.ServerDefinition{}, fmt.Errorf("sqlite: unmarshaling meta for %q: %w", def.Name, err)
		}
	}
	return def, nil
}
