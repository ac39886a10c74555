package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mcpgate/gateway/pkg/catalog"
	"github.com/mcpgate/gateway/pkg/store"
)

// fakeStore is a minimal in-memory store.Store used only to observe what
// the logger hands it, without pulling in the sqlite implementation.
type fakeStore struct {
	mu       sync.Mutex
	records  []store.AuditRecord
	failNext bool
}

func (f *fakeStore) LoadAllDefinitions(context.Context) ([]catalog.ServerDefinition, error) {
	return nil, nil
}
func (f *fakeStore) FindByName(context.Context, string) (catalog.ServerDefinition, error) {
	return catalog.ServerDefinition{}, store.ErrNotFound
}
func (f *fakeStore) Upsert(_ context.Context, d catalog.ServerDefinition) (catalog.ServerDefinition, error) {
	return d, nil
}
func (f *fakeStore) Delete(context.Context, string) error { return nil }

func (f *fakeStore) InsertAudit(_ context.Context, rec store.AuditRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return errors.New("simulated write failure")
	}
	f.records = append(f.records, rec)
	return nil
}
func (f *fakeStore) PurgeAuditOlderThan(context.Context, int) (int64, error) { return 0, nil }
func (f *fakeStore) ListAudit(context.Context, store.AuditFilters, int, int) ([]store.AuditRecord, error) {
	return nil, nil
}
func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) snapshot() []store.AuditRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.AuditRecord, len(f.records))
	copy(out, f.records)
	return out
}

func TestLoggerEnqueueWritesAsynchronously(t *testing.T) {
	fs := &fakeStore{}
	l := NewLogger(fs)

	method := "ping"
	l.Enqueue(Record{
		RequestID:  "r1",
		SessionID:  "s1",
		ServerName: "cat",
		Method:     &method,
		StatusCode: 200,
		Timestamp:  time.Now(),
	})

	require.Eventually(t, func() bool {
		return len(fs.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)

	got := fs.snapshot()[0]
	require.Equal(t, "r1", got.RequestID)
	require.Equal(t, "ping", *got.Method)
}

func TestLoggerSwallowsWriteFailure(t *testing.T) {
	fs := &fakeStore{failNext: true}
	l := NewLogger(fs)

	// Must not panic, must not block the caller.
	done := make(chan struct{})
	go func() {
		l.Enqueue(Record{RequestID: "r2", ServerName: "cat", StatusCode: 500})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked")
	}
}

func TestNilLoggerEnqueueIsNoop(t *testing.T) {
	var l *Logger
	require.NotPanics(t, func() {
		l.Enqueue(Record{RequestID: "r3"})
	})
}

func TestMarshalMapNilIsJSONNull(t *testing.T) {
	s, err := marshalMap(nil)
	require.NoError(t, err)
	require.Equal(t, "null", s)
}
