package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"vigil/internal/registration/models"
)

// Clock abstracts time.Now for testability.
type Clock func() time.Time

// PostgresTokenStore persists registration tokens in PostgreSQL. The primary
// key on id gives Insert its insert-if-absent semantics; the status predicate
// in the UPDATE gives CompareAndSetStatus its conditioned-write semantics.
type PostgresTokenStore struct {
	db    *sql.DB
	clock Clock
}

// PostgresTokenStoreOption configures a PostgresTokenStore instance.
type PostgresTokenStoreOption func(*PostgresTokenStore)

// WithTokenClock sets the clock function for testability.
func WithTokenClock(clock Clock) PostgresTokenStoreOption {
	return func(s *PostgresTokenStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewPostgresTokenStore constructs a PostgreSQL-backed token store.
func NewPostgresTokenStore(db *sql.DB, opts ...PostgresTokenStoreOption) *PostgresTokenStore {
	s := &PostgresTokenStore{
		db:    db,
		clock: time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *PostgresTokenStore) Insert(ctx context.Context, token *models.RegistrationToken) error {
	createdAt := token.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.clock()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO registration_tokens (id, event_id, status, created_at)
		VALUES ($1, $2, $3, $4)
	`, token.ID, token.EventID, string(token.Status), createdAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return fmt.Errorf("token %q: %w", token.ID, ErrConflict)
		}
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

func (s *PostgresTokenStore) FindByID(ctx context.Context, id string) (*models.RegistrationToken, error) {
	var token models.RegistrationToken
	var status string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, event_id, status, created_at
		FROM registration_tokens
		WHERE id = $1
	`, id).Scan(&token.ID, &token.EventID, &status, &token.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("token not found: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("find token: %w", err)
	}
	token.Status = models.TokenStatus(status)
	return &token, nil
}

// CompareAndSetStatus flips the status only when the row still holds the
// expected value at write time. RowsAffected distinguishes a lost race from a
// missing row.
func (s *PostgresTokenStore) CompareAndSetStatus(ctx context.Context, id string, expected, next models.TokenStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE registration_tokens
		SET status = $3
		WHERE id = $1 AND status = $2
	`, id, string(expected), string(next))
	if err != nil {
		return fmt.Errorf("update token status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 1 {
		return nil
	}

	// No row changed: either the token is gone or another caller won the race.
	var current string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM registration_tokens WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("token not found: %w", ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("read token status: %w", err)
	}
	return fmt.Errorf("token status is %s, expected %s: %w", current, expected, ErrInvalidState)
}

// PostgresEventStore persists monitoring events in PostgreSQL.
type PostgresEventStore struct {
	db *sql.DB
}

func NewPostgresEventStore(db *sql.DB) *PostgresEventStore {
	return &PostgresEventStore{db: db}
}

func (s *PostgresEventStore) Insert(ctx context.Context, event *models.Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (id, patient_id, watch_id, phone_id, context_id, start_at, duration_seconds, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, event.ID, event.PatientID, event.WatchID, event.PhoneID, event.ContextID,
		event.StartAt, event.DurationSeconds, event.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return fmt.Errorf("event %q: %w", event.ID, ErrConflict)
		}
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (s *PostgresEventStore) FindByID(ctx context.Context, id string) (*models.Event, error) {
	var event models.Event
	err := s.db.QueryRowContext(ctx, `
		SELECT id, patient_id, watch_id, phone_id, context_id, start_at, duration_seconds, created_at
		FROM events
		WHERE id = $1
	`, id).Scan(&event.ID, &event.PatientID, &event.WatchID, &event.PhoneID, &event.ContextID,
		&event.StartAt, &event.DurationSeconds, &event.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("event not found: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("find event: %w", err)
	}
	return &event, nil
}

// Migrate creates the schema when it does not exist yet. Kept here rather
// than in a migration tool because the surface is two tables.
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			patient_id TEXT NOT NULL,
			watch_id TEXT NOT NULL DEFAULT '',
			phone_id TEXT NOT NULL DEFAULT '',
			context_id TEXT NOT NULL DEFAULT '',
			start_at TIMESTAMPTZ NOT NULL,
			duration_seconds BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS registration_tokens (
			id TEXT PRIMARY KEY,
			event_id TEXT NOT NULL REFERENCES events (id),
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
