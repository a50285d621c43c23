package queue

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConsumer(t *testing.T) *AuditConsumer {
	t.Helper()
	return NewAuditConsumer("amqp://127.0.0.1:1/", t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestFormatAuditLine(t *testing.T) {
	ev := AccountEvent{
		ID:         "e1",
		Type:       EventStatusChanged,
		AccountID:  7,
		ActorID:    1,
		Data:       map[string]string{"status": "banned", "b": "x"},
		OccurredAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	assert.Equal(t,
		`[2026-03-01T12:00:00Z] account.status_changed | event_id=e1 | account_id=7 | actor_id=1 | b="x" | status="banned"`+"\n",
		FormatAuditLine(ev))

	ev.ActorID = 7
	assert.NotContains(t, FormatAuditLine(ev), "actor_id")
}

func TestHandleMessageAppendsWithoutSecrets(t *testing.T) {
	c := newTestConsumer(t)

	ev := NewAccountEvent(EventConfirmationRequested, 3, 3).With("email", "a@b.com")
	ev.Secret = map[string]string{"selector": "sel-zzzz", "token": "super-secret-verifier"}
	body, err := json.Marshal(ev)
	require.NoError(t, err)

	require.NoError(t, c.handleMessage(body))
	require.NoError(t, c.handleMessage(body))

	raw, err := os.ReadFile(filepath.Join(c.dir, AuditLogFile))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], "account.confirmation_requested")
	assert.NotContains(t, string(raw), "super-secret-verifier")
	assert.NotContains(t, string(raw), "sel-zzzz")
}

func TestHandleMessageRejectsGarbage(t *testing.T) {
	c := newTestConsumer(t)
	assert.Error(t, c.handleMessage([]byte("{not json")))
	assert.Error(t, c.handleMessage([]byte(`{"id":"x"}`)))
}

func TestRunStopsWithContext(t *testing.T) {
	c := newTestConsumer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
