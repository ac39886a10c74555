package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mcpgate/gateway/pkg/catalog"
	"github.com/mcpgate/gateway/pkg/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUpsertAndFindByName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	def := catalog.ServerDefinition{
		Name:      "cat",
		Transport: catalog.TransportStdio,
		Command:   "/usr/bin/cat",
		Args:      []string{},
		Env:       map[string]string{},
	}

	saved, err := s.Upsert(ctx, def)
	require.NoError(t, err)
	require.Equal(t, "cat", saved.Name)
	require.NotZero(t, saved.ID)

	found, err := s.FindByName(ctx, "cat")
	require.NoError(t, err)
	require.Equal(t, saved.ID, found.ID)
	require.Equal(t, catalog.TransportStdio, found.Transport)
}

func TestFindByNameMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.FindByName(context.Background(), "nope")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpsertIsIdempotentOnName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	def := catalog.ServerDefinition{Name: "echo", Transport: catalog.TransportStdio, Command: "/bin/echo"}
	first, err := s.Upsert(ctx, def)
	require.NoError(t, err)

	def.Command = "/usr/bin/echo"
	second, err := s.Upsert(ctx, def)
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID, "upsert on existing name must update, not duplicate")
	require.Equal(t, "/usr/bin/echo", second.Command)
}

func TestDeleteIsNoopWhenAbsent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Delete(ctx, "never-existed"))
	require.NoError(t, s.Delete(ctx, "never-existed"))
}

func TestAuditRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	method := "ping"
	rec := store.AuditRecord{
		RequestID:       "req-1",
		SessionID:       "sess-1",
		ServerName:      "cat",
		ClientInfoJSON:  `{"user_agent":"test"}`,
		Method:          &method,
		RequestHeaders:  `{}`,
		ResponseHeaders: `{}`,
		StatusCode:      200,
		DurationMS:      12,
		Timestamp:       time.Now(),
	}
	require.NoError(t, s.InsertAudit(ctx, rec))

	rows, err := s.ListAudit(ctx, store.AuditFilters{ServerName: "cat"}, 1, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "req-1", rows[0].RequestID)
	require.NotNil(t, rows[0].Method)
	require.Equal(t, "ping", *rows[0].Method)
}

func TestPurgeAuditOlderThan(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := store.AuditRecord{
		RequestID:       "old",
		SessionID:       "s",
		ServerName:      "cat",
		ClientInfoJSON:  `{}`,
		RequestHeaders:  `{}`,
		ResponseHeaders: `{}`,
		StatusCode:      200,
		Timestamp:       time.Now().AddDate(0, 0, -30),
	}
	require.NoError(t, s.InsertAudit(ctx, old))

	n, err := s.PurgeAuditOlderThan(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	rows, err := s.ListAudit(ctx, store.AuditFilters{}, 1, 10)
	require.NoError(t, err)
	require.Empty(t, rows)
}
