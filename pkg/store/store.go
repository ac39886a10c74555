// Package store defines the persistence interface the supervisor and audit
// logger depend on. The core never depends on a concrete database;
// pkg/store/sqlite ships the one implementation this module runs standalone
// with.
package store

import (
	"context"
	"time"

	"github.com/mcpgate/gateway/pkg/catalog"
)

// AuditRecord is the persisted shape of one forwarded call. Nested mappings
// are carried as already-serialized JSON strings so the Store implementation
// never needs to know their internal shape.
type AuditRecord struct {
	ID              int64
	RequestID       string
	SessionID       string
	MCPSessionID    *string
	ServerName      string
	ClientInfoJSON  string
	Method          *string
	RequestHeaders  string
	RequestBody     *string
	ResponseBody    *string
	ResponseHeaders string
	StatusCode      int
	ErrorMessage    *string
	DurationMS      int64
	Timestamp       time.Time
}

// AuditFilters narrows ListAudit results.
type AuditFilters struct {
	ServerName   string
	SessionID    string
	MCPSessionID string
	Since        *time.Time
	Until        *time.Time
}

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks github.com/mcpgate/gateway/pkg/store Store

// Store is the persistence collaborator: ServerDefinitions and
// AuditRecords. The supervisor and audit logger consume exactly this
// interface.
type Store interface {
	// LoadAllDefinitions returns every persisted ServerDefinition.
	LoadAllDefinitions(ctx context.Context) ([]catalog.ServerDefinition, error)

	// FindByName looks up one ServerDefinition by its unique name. Returns
	// ErrNotFound if absent.
	FindByName(ctx context.Context, name string) (catalog.ServerDefinition, error)

	// Upsert inserts or replaces a ServerDefinition keyed by name.
	Upsert(ctx context.Context, def catalog.ServerDefinition) (catalog.ServerDefinition, error)

	// Delete removes a ServerDefinition by name. A second delete of an
	// already-absent name is a no-op.
	Delete(ctx context.Context, name string) error

	// InsertAudit persists one AuditRecord. Failures here are logged by the
	// caller (pkg/audit) and never surfaced to the live request.
	InsertAudit(ctx context.Context, record AuditRecord) error

	// PurgeAuditOlderThan deletes audit rows older than the given retention
	// window, in days.
	PurgeAuditOlderThan(ctx context.Context, days int) (int64, error)

	// ListAudit returns one page of audit rows matching filters, newest
	// first.
	ListAudit(ctx context.Context, filters AuditFilters, page, pageSize int) ([]AuditRecord, error)

	// Close releases the underlying connection pool.
	Close() error
}
