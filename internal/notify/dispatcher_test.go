package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vigil/internal/platform/config"
)

func configFixture(host string) config.Delivery {
	return config.Delivery{
		SMTPHost:    host,
		SMTPPort:    587,
		SenderName:  "Event Registration",
		SenderEmail: "noreply@example.com",
		Password:    "app-password",
	}
}

var errTransient = errors.New("connection reset")

// scriptedTransport returns the scripted errors in order, then succeeds.
type scriptedTransport struct {
	script []error
	calls  int
	sent   []Message
}

func (t *scriptedTransport) Send(_ context.Context, msg Message) error {
	t.calls++
	if t.calls <= len(t.script) {
		return t.script[t.calls-1]
	}
	t.sent = append(t.sent, msg)
	return nil
}

// recordingSleeper captures backoff durations instead of waiting.
type recordingSleeper struct {
	waits []time.Duration
}

func (s *recordingSleeper) sleep(_ context.Context, d time.Duration) {
	s.waits = append(s.waits, d)
}

func newTestDispatcher(transport Transport, sleeper *recordingSleeper) *Dispatcher {
	return NewDispatcher(transport, zap.NewNop(),
		WithMaxAttempts(3),
		WithBackoffUnit(time.Millisecond),
		WithSleeper(sleeper.sleep),
	)
}

func TestDeliver_SucceedsFirstAttempt(t *testing.T) {
	transport := &scriptedTransport{}
	sleeper := &recordingSleeper{}
	d := newTestDispatcher(transport, sleeper)

	ok := d.Deliver(context.Background(), "patient@example.com", "tok_first", time.Now())

	assert.True(t, ok)
	assert.Equal(t, 1, transport.calls)
	assert.Empty(t, sleeper.waits)
}

func TestDeliver_RetriesTransientThenSucceeds(t *testing.T) {
	transport := &scriptedTransport{script: []error{errTransient, errTransient}}
	sleeper := &recordingSleeper{}
	d := newTestDispatcher(transport, sleeper)

	ok := d.Deliver(context.Background(), "patient@example.com", "tok_retry", time.Now())

	assert.True(t, ok)
	assert.Equal(t, 3, transport.calls)
	// Two waits of increasing duration: 2^1 and 2^2 units.
	require.Len(t, sleeper.waits, 2)
	assert.Equal(t, 2*time.Millisecond, sleeper.waits[0])
	assert.Equal(t, 4*time.Millisecond, sleeper.waits[1])
	assert.Greater(t, sleeper.waits[1], sleeper.waits[0])
}

func TestDeliver_ExhaustsBudget(t *testing.T) {
	transport := &scriptedTransport{script: []error{errTransient, errTransient, errTransient, errTransient}}
	sleeper := &recordingSleeper{}
	d := newTestDispatcher(transport, sleeper)

	ok := d.Deliver(context.Background(), "patient@example.com", "tok_exhaust", time.Now())

	assert.False(t, ok)
	assert.Equal(t, 3, transport.calls)
	// No wait after the final attempt.
	assert.Len(t, sleeper.waits, 2)
}

func TestDeliver_AuthFailureNotRetried(t *testing.T) {
	transport := &scriptedTransport{script: []error{ErrAuthFailed}}
	sleeper := &recordingSleeper{}
	d := newTestDispatcher(transport, sleeper)

	ok := d.Deliver(context.Background(), "patient@example.com", "tok_auth", time.Now())

	assert.False(t, ok)
	assert.Equal(t, 1, transport.calls)
	assert.Empty(t, sleeper.waits)
}

func TestDeliver_RecipientRejectedNotRetried(t *testing.T) {
	transport := &scriptedTransport{script: []error{ErrRecipientRejected}}
	sleeper := &recordingSleeper{}
	d := newTestDispatcher(transport, sleeper)

	ok := d.Deliver(context.Background(), "bogus@example.com", "tok_rcpt", time.Now())

	assert.False(t, ok)
	assert.Equal(t, 1, transport.calls)
	assert.Empty(t, sleeper.waits)
}

func TestDeliver_ConfigIncompleteNotRetried(t *testing.T) {
	transport := &scriptedTransport{script: []error{ErrConfigIncomplete}}
	sleeper := &recordingSleeper{}
	d := newTestDispatcher(transport, sleeper)

	ok := d.Deliver(context.Background(), "patient@example.com", "tok_cfg", time.Now())

	assert.False(t, ok)
	assert.Equal(t, 1, transport.calls)
	assert.Empty(t, sleeper.waits)
}

func TestDeliver_MessageEmbedsTokenAndAppointment(t *testing.T) {
	transport := &scriptedTransport{}
	sleeper := &recordingSleeper{}
	d := newTestDispatcher(transport, sleeper)

	appointment := time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)
	ok := d.Deliver(context.Background(), "patient@example.com", "tok_body", appointment)
	require.True(t, ok)

	require.Len(t, transport.sent, 1)
	msg := transport.sent[0]
	assert.Equal(t, "patient@example.com", msg.To)
	assert.Contains(t, msg.HTML, "tok_body")
	assert.Contains(t, msg.HTML, "2025-03-10 14:30")
	assert.Contains(t, msg.Subject, "2025-03-10 14:30")
}

func TestWorker_DeliversAndReportsVerdict(t *testing.T) {
	transport := &scriptedTransport{}
	sleeper := &recordingSleeper{}
	d := newTestDispatcher(transport, sleeper)

	inbox := make(chan Job, 1)
	worker := NewWorker(d, inbox)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	result := make(chan bool, 1)
	inbox <- Job{To: "patient@example.com", TokenID: "tok_worker", AppointmentAt: time.Now(), Result: result}

	select {
	case delivered := <-result:
		assert.True(t, delivered)
	case <-time.After(2 * time.Second):
		t.Fatal("no delivery verdict")
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestSMTPTransport_ConfigIncomplete(t *testing.T) {
	transport := NewSMTPTransport(configFixture(""))

	err := transport.Send(context.Background(), Message{To: "patient@example.com"})
	assert.ErrorIs(t, err, ErrConfigIncomplete)
}

func TestTokenPrefix(t *testing.T) {
	assert.Equal(t, "short", tokenPrefix("short"))
	full := strings.Repeat("a", 24)
	assert.Equal(t, "aaaaaaaa...", tokenPrefix(full))
}
