package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dreamsoft-pro/rae/infrastructure/logging"
	"github.com/dreamsoft-pro/rae/internal/storage"
	"github.com/dreamsoft-pro/rae/internal/storage/memory"
)

func newTestSink(queueDepth int) (*Sink, *memory.Store) {
	backend := memory.New()
	return New(backend, logging.New("audit-test", "error", "text"), queueDepth), backend
}

func TestRecordPersistsToBackend(t *testing.T) {
	sink, backend := newTestSink(16)
	sink.Record(storage.AuditEvent{Tenant: "acme", Action: "store", Target: "mem-1"})
	sink.Close()

	events, err := backend.List(context.Background(), "acme", time.Time{}, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "store", events[0].Action)
}

func TestRecordDropsNonCriticalUnderBackpressure(t *testing.T) {
	sink, _ := newTestSink(1)
	defer sink.Close()

	for i := 0; i < 50; i++ {
		sink.Record(storage.AuditEvent{Tenant: "acme", Action: "fetch"})
	}

	_, dropped := sink.Stats()
	require.Greater(t, dropped, int64(0))
}

func TestRecordNeverDropsCriticalEventSilently(t *testing.T) {
	sink, backend := newTestSink(8)
	sink.Record(storage.AuditEvent{Tenant: "acme", Action: "restricted_write", Critical: true})
	sink.Close()

	events, err := backend.List(context.Background(), "acme", time.Time{}, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.True(t, events[0].Critical)
}

func TestCloseIsIdempotent(t *testing.T) {
	sink, _ := newTestSink(4)
	sink.Close()
	require.NotPanics(t, func() { sink.Close() })
}
