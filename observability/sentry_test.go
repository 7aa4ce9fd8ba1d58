package observability_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdl/schedule-engine/observability"
)

// captureEvents points the global hub at a client that records events
// instead of sending them.
func captureEvents(t *testing.T) func() []*sentry.Event {
	t.Helper()
	var (
		mu     sync.Mutex
		events []*sentry.Event
	)
	require.NoError(t, sentry.Init(sentry.ClientOptions{
		Dsn: "https://public@example.com/1",
		BeforeSend: func(e *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, e)
			return nil
		},
	}))
	t.Cleanup(func() { _ = sentry.Init(sentry.ClientOptions{}) })
	return func() []*sentry.Event {
		mu.Lock()
		defer mu.Unlock()
		return events
	}
}

func TestInitSentry_NoDSN(t *testing.T) {
	flush, err := observability.InitSentry("", "dev", "test")

	require.NoError(t, err)
	require.NotNil(t, flush)
	flush()
}

func TestCaptureErr(t *testing.T) {
	events := captureEvents(t)

	observability.CaptureErr(nil)
	observability.CaptureErr(errors.New("listener closed"))

	require.Len(t, events(), 1)
	require.NotEmpty(t, events()[0].Exception)
	assert.Equal(t, "listener closed", events()[0].Exception[0].Value)
}

func TestCaptureRequestErr_Tags(t *testing.T) {
	events := captureEvents(t)

	observability.CaptureRequestErr(errors.New("commit failed"), "POST", "/api/schedules/bulk", "req-1")

	require.Len(t, events(), 1)
	tags := events()[0].Tags
	assert.Equal(t, "POST", tags["http.method"])
	assert.Equal(t, "/api/schedules/bulk", tags["http.route"])
	assert.Equal(t, "req-1", tags["request_id"])
}
