package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"vigil/internal/platform/metrics"
)

const (
	// DefaultMaxAttempts bounds the delivery loop, first attempt included.
	DefaultMaxAttempts = 3
	// DefaultBackoffUnit is the base of the 2^attempt backoff.
	DefaultBackoffUnit = time.Second
)

// Sleeper abstracts backoff waits so tests run without real delays.
type Sleeper func(ctx context.Context, d time.Duration)

func sleepFor(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// Dispatcher delivers registration tokens by email with bounded retries and
// exponential backoff. It never returns an error past its boundary: every
// path terminates in a delivered/not-delivered verdict.
type Dispatcher struct {
	transport   Transport
	maxAttempts int
	backoffUnit time.Duration
	sleep       Sleeper
	logger      *zap.Logger
	metrics     *metrics.Metrics
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithMaxAttempts overrides the attempt budget.
func WithMaxAttempts(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxAttempts = n
		}
	}
}

// WithBackoffUnit overrides the backoff time unit.
func WithBackoffUnit(unit time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if unit > 0 {
			d.backoffUnit = unit
		}
	}
}

// WithSleeper injects the wait function for tests.
func WithSleeper(sleep Sleeper) DispatcherOption {
	return func(d *Dispatcher) {
		if sleep != nil {
			d.sleep = sleep
		}
	}
}

// WithMetrics attaches delivery metrics.
func WithMetrics(m *metrics.Metrics) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

func NewDispatcher(transport Transport, logger *zap.Logger, opts ...DispatcherOption) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		transport:   transport,
		maxAttempts: DefaultMaxAttempts,
		backoffUnit: DefaultBackoffUnit,
		sleep:       sleepFor,
		logger:      logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Deliver sends the token to the destination address. It returns true on the
// first successful handoff; transient failures are retried with 2^attempt
// waits until the budget runs out, while config, auth, and recipient failures
// end the sequence immediately.
func (d *Dispatcher) Deliver(ctx context.Context, to, tokenID string, appointmentAt time.Time) bool {
	log := d.logger.With(
		zap.String("recipient", to),
		zap.String("token_prefix", tokenPrefix(tokenID)),
	)

	msg, err := RenderRegistration(to, tokenID, appointmentAt)
	if err != nil {
		log.Error("failed to render registration mail", zap.Error(err))
		d.metrics.IncDeliveriesFailed()
		return false
	}

	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		err := d.transport.Send(ctx, msg)
		if err == nil {
			log.Info("registration mail delivered", zap.Int("attempt", attempt))
			d.metrics.IncDeliveriesSent()
			d.metrics.ObserveDeliveryAttempts(attempt)
			return true
		}

		if fatal(err) {
			log.Error("registration mail delivery failed permanently",
				zap.Int("attempt", attempt), zap.Error(err))
			d.metrics.IncDeliveriesFailed()
			d.metrics.ObserveDeliveryAttempts(attempt)
			return false
		}

		if attempt == d.maxAttempts {
			log.Error("registration mail delivery exhausted",
				zap.Int("attempts", attempt), zap.Error(err))
			d.metrics.IncDeliveriesFailed()
			d.metrics.ObserveDeliveryAttempts(attempt)
			return false
		}

		backoff := d.backoffUnit << attempt // 2^attempt time units
		log.Warn("registration mail attempt failed, backing off",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))
		d.sleep(ctx, backoff)

		if ctx.Err() != nil {
			d.metrics.IncDeliveriesFailed()
			d.metrics.ObserveDeliveryAttempts(attempt)
			return false
		}
	}
	return false
}
