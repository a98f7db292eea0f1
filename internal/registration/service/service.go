package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"vigil/internal/directory"
	"vigil/internal/notify"
	"vigil/internal/platform/metrics"
	"vigil/internal/registration/models"
	"vigil/internal/registration/store"
	dErrors "vigil/pkg/domain-errors"
	"vigil/pkg/platform/sentinel"
)

const (
	// DefaultCreateAttempts bounds the generate-and-insert loop. Collisions
	// are astronomically rare at the default identifier length, so hitting
	// this budget signals a misconfigured length or a store problem.
	DefaultCreateAttempts = 3

	// defaultDeliveryWait bounds how long a registration blocks on the
	// delivery verdict. It covers a full retry sequence at default backoff.
	defaultDeliveryWait = 2 * time.Minute
)

// ErrTokenGenerationExhausted is returned when every create attempt collided.
var ErrTokenGenerationExhausted = dErrors.New(dErrors.CodeTokenExhausted,
	"failed to generate a unique registration token")

// Messages returned by ValidateAndConsume. Callers surface these verbatim.
const (
	MsgTokenNotFound    = "token not found"
	MsgTokenAlreadyUsed = "token already used"
	MsgTokenValidated   = "token validated successfully"
)

// Generator produces opaque token identifiers.
type Generator interface {
	Generate() (string, error)
}

// Issuer mints signed onboarding credentials from event timing.
type Issuer interface {
	Issue(subject string, startAt time.Time, durationSeconds int64) (string, error)
}

// Service owns the registration token lifecycle and the caller-facing
// register/onboard operations. All status writes go through the store's
// conditioned update; the service itself holds no token state, so instances
// are safe to run concurrently against a shared store.
type Service struct {
	events    store.EventStore
	tokens    store.TokenStore
	generator Generator
	issuer    Issuer
	directory directory.Directory
	outbox    chan<- notify.Job

	createAttempts int
	deliveryWait   time.Duration
	clock          func() time.Time

	logger  *zap.Logger
	metrics *metrics.Metrics
}

// Option configures a Service.
type Option func(*Service)

// WithCreateAttempts overrides the token creation retry budget.
func WithCreateAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.createAttempts = n
		}
	}
}

// WithDeliveryWait bounds how long RegisterPatient waits for the delivery
// verdict.
func WithDeliveryWait(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.deliveryWait = d
		}
	}
}

// WithClock injects the time source for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithMetrics attaches lifecycle metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(
	events store.EventStore,
	tokens store.TokenStore,
	generator Generator,
	issuer Issuer,
	dir directory.Directory,
	outbox chan<- notify.Job,
	logger *zap.Logger,
	opts ...Option,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		events:         events,
		tokens:         tokens,
		generator:      generator,
		issuer:         issuer,
		directory:      dir,
		outbox:         outbox,
		createAttempts: DefaultCreateAttempts,
		deliveryWait:   defaultDeliveryWait,
		clock:          time.Now,
		logger:         logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// CreateToken mints a single-use token for the event. Identifier collisions
// are retried with fresh identifiers up to the budget; any other store
// failure aborts immediately. A successful return means exactly one PENDING
// row was persisted.
func (s *Service) CreateToken(ctx context.Context, eventID string) (*models.RegistrationToken, error) {
	for attempt := 1; attempt <= s.createAttempts; attempt++ {
		candidate, err := s.generator.Generate()
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate token identifier")
		}

		tok := &models.RegistrationToken{
			ID:        candidate,
			EventID:   eventID,
			Status:    models.StatusPending,
			CreatedAt: s.clock(),
		}

		err = s.tokens.Insert(ctx, tok)
		if err == nil {
			s.metrics.IncTokensCreated()
			return tok, nil
		}
		if errors.Is(err, store.ErrConflict) {
			s.metrics.IncTokenCollisions()
			s.logger.Warn("token identifier collision",
				zap.String("event_id", eventID),
				zap.Int("attempt", attempt))
			continue
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist registration token")
	}
	return nil, ErrTokenGenerationExhausted
}

// ValidateAndConsume transitions a token PENDING -> DONE exactly once. The
// write is conditioned on the status still being PENDING at write time, so
// two racing onboarding attempts resolve to one success; the loser is told
// the token was already used, same as a late arrival.
func (s *Service) ValidateAndConsume(ctx context.Context, tokenID string) (bool, string) {
	tok, err := s.tokens.FindByID(ctx, tokenID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, MsgTokenNotFound
		}
		return false, fmt.Sprintf("failed to validate token: %v", err)
	}

	if tok.Status != models.StatusPending {
		s.metrics.IncTokenReuseDenied()
		return false, MsgTokenAlreadyUsed
	}

	err = s.tokens.CompareAndSetStatus(ctx, tokenID, models.StatusPending, models.StatusDone)
	switch {
	case err == nil:
		s.metrics.IncTokensConsumed()
		return true, MsgTokenValidated
	case errors.Is(err, store.ErrInvalidState), errors.Is(err, store.ErrNotFound):
		// Lost the race between read and conditioned write.
		s.metrics.IncTokenReuseDenied()
		return false, MsgTokenAlreadyUsed
	default:
		return false, fmt.Sprintf("failed to validate token: %v", err)
	}
}

// RegisterRequest carries a validated registration.
type RegisterRequest struct {
	PatientID            string
	PatientMail          string
	WatchID              string
	PhoneID              string
	ContextID            string
	EventStart           time.Time
	EventDurationSeconds int64
	AppointmentAt        time.Time
}

// RegisterPatient creates the monitoring event, mints its token, and hands
// the notification to the delivery worker. The registration is reported
// failed when the notification could not be delivered, even though the event
// and token rows already persisted; callers see this as an unavailable error
// distinct from validation failures.
func (s *Service) RegisterPatient(ctx context.Context, req RegisterRequest) (string, error) {
	if req.EventDurationSeconds < 0 {
		return "", dErrors.New(dErrors.CodeInvalidTiming, "event duration must not be negative")
	}

	patient, err := s.directory.Lookup(ctx, req.PatientID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return "", dErrors.New(dErrors.CodeNotFound, "patient not found")
		}
		return "", dErrors.Wrap(err, dErrors.CodeUnavailable, "patient directory unavailable")
	}

	event := &models.Event{
		ID:              uuid.NewString(),
		PatientID:       patient.PatientID,
		WatchID:         req.WatchID,
		PhoneID:         req.PhoneID,
		ContextID:       req.ContextID,
		StartAt:         req.EventStart.UTC(),
		DurationSeconds: req.EventDurationSeconds,
		CreatedAt:       s.clock(),
	}
	if err := s.events.Insert(ctx, event); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist event")
	}

	tok, err := s.CreateToken(ctx, event.ID)
	if err != nil {
		return "", err
	}

	s.logger.Info("registration created",
		zap.String("event_id", event.ID),
		zap.String("patient_id", patient.PatientID))

	if !s.dispatch(ctx, req.PatientMail, tok.ID, req.AppointmentAt) {
		return "", dErrors.New(dErrors.CodeUnavailable, "failed to deliver registration notification")
	}

	return tok.ID, nil
}

// dispatch hands the delivery to the worker and waits for its verdict within
// the configured bound.
func (s *Service) dispatch(ctx context.Context, to, tokenID string, appointmentAt time.Time) bool {
	result := make(chan bool, 1)
	job := notify.Job{
		To:            to,
		TokenID:       tokenID,
		AppointmentAt: appointmentAt,
		Result:        result,
	}

	wait := time.NewTimer(s.deliveryWait)
	defer wait.Stop()

	select {
	case s.outbox <- job:
	case <-wait.C:
		s.logger.Error("delivery worker backed up, dropping job")
		return false
	case <-ctx.Done():
		return false
	}

	select {
	case delivered := <-result:
		return delivered
	case <-wait.C:
		s.logger.Error("timed out waiting for delivery verdict")
		return false
	case <-ctx.Done():
		return false
	}
}

// Onboard consumes a token and exchanges it for a signed credential derived
// from the event's timing. Not-found and already-used are expected outcomes,
// not system errors.
func (s *Service) Onboard(ctx context.Context, tokenID string) (string, string, error) {
	ok, msg := s.ValidateAndConsume(ctx, tokenID)
	if !ok {
		return "", msg, dErrors.New(dErrors.CodeNotFound, msg)
	}

	tok, err := s.tokens.FindByID(ctx, tokenID)
	if err != nil {
		return "", "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to reload consumed token")
	}

	event, err := s.events.FindByID(ctx, tok.EventID)
	if err != nil {
		return "", "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to load event for token")
	}

	cred, err := s.issuer.Issue(event.ID, event.StartAt, event.DurationSeconds)
	if err != nil {
		return "", "", err
	}

	s.logger.Info("token exchanged for credential", zap.String("event_id", event.ID))
	return cred, msg, nil
}
