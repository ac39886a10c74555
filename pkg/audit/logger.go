package audit

import (
	"context"
	"time"

	"github.com/mcpgate/gateway/pkg/logger"
	"github.com/mcpgate/gateway/pkg/store"
)

// Logger consumes Records off the request path and hands each to Store. A
// failure to persist never affects the live response returned to the
// client.
type Logger struct {
	backend store.Store

	// writeTimeout bounds how long a single Store.InsertAudit call may run
	// before the logger gives up on it and logs a failure; it does not
	// retry.
	writeTimeout time.Duration
}

// NewLogger constructs a Logger writing to backend.
func NewLogger(backend store.Store) *Logger {
	return &Logger{backend: backend, writeTimeout: 10 * time.Second}
}

// Enqueue hands rec to Store asynchronously and returns immediately. A
// spawn-per-record pattern suffices because Store writes are fast compared
// to request rates. A nil Logger is valid and enqueues nothing, so code that
// builds a Proxy without an audit logger needs no no-op stub.
func (l *Logger) Enqueue(rec Record) {
	if l == nil {
		return
	}
	go l.writeOne(rec)
}

func (l *Logger) writeOne(rec Record) {
	ctx, cancel := context.WithTimeout(context.Background(), l.writeTimeout)
	defer cancel()

	stored, err := toStoreRecord(rec)
	if err != nil {
		logger.Errorf("audit: serializing record %s: %v", rec.RequestID, err)
		return
	}

	if err := l.backend.InsertAudit(ctx, stored); err != nil {
		// Persistence failures stay local: log and move on.
		logger.Errorf("audit: persisting record %s for server %q: %v", rec.RequestID, rec.ServerName, err)
	}
}

func toStoreRecord(rec Record) (store.AuditRecord, error) {
	clientInfo, err := marshalClientInfo(rec.ClientInfo)
	if err != nil {
		return store.AuditRecord{}, err
	}
	reqHeaders, err := marshalMap(rec.RequestHeaders)
	if err != nil {
		return store.AuditRecord{}, err
	}
	respHeaders, err := marshalMap(rec.ResponseHeaders)
	if err != nil {
		return store.AuditRecord{}, err
	}

	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	return store.AuditRecord{
		RequestID:       rec.RequestID,
		SessionID:       rec.SessionID,
		MCPSessionID:    rec.MCPSessionID,
		ServerName:      rec.ServerName,
		ClientInfoJSON:  clientInfo,
		Method:          rec.Method,
		RequestHeaders:  reqHeaders,
		RequestBody:     rec.RequestBody,
		ResponseBody:    rec.ResponseBody,
		ResponseHeaders: respHeaders,
		StatusCode:      rec.StatusCode,
		ErrorMessage:    rec.ErrorMessage,
		DurationMS:      rec.DurationMS,
		Timestamp:       ts,
	}, nil
}
