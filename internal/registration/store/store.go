package store

import (
	"context"

	"vigil/internal/registration/models"
	"vigil/pkg/platform/sentinel"
)

// Error Contract:
// All store methods follow this pattern:
// - Return sentinel.ErrNotFound (wrapped) when the requested entity does not exist
// - Return sentinel.ErrConflict (wrapped) when an insert collides with an existing key
// - Return sentinel.ErrInvalidState (wrapped) when a conditioned update finds the
//   entity in a different state than expected
// - Return wrapped errors with context for infrastructure failures

//go:generate mockgen -source=store.go -destination=mocks/store_mock.go -package=storemocks

// TokenStore is the minimal persistence contract the token lifecycle depends
// on. Insert is atomic insert-if-absent; CompareAndSetStatus is the only way
// status ever changes, conditioned on the expected current value at write
// time so concurrent consumers resolve to exactly one winner.
type TokenStore interface {
	Insert(ctx context.Context, token *models.RegistrationToken) error
	FindByID(ctx context.Context, id string) (*models.RegistrationToken, error)
	CompareAndSetStatus(ctx context.Context, id string, expected, next models.TokenStatus) error
}

// EventStore persists monitoring events. Events are written once and read
// back when a token is exchanged for a credential.
type EventStore interface {
	Insert(ctx context.Context, event *models.Event) error
	FindByID(ctx context.Context, id string) (*models.Event, error)
}

// Re-exported so callers matching on store outcomes do not import sentinel
// directly everywhere.
var (
	ErrNotFound     = sentinel.ErrNotFound
	ErrConflict     = sentinel.ErrConflict
	ErrInvalidState = sentinel.ErrInvalidState
)
