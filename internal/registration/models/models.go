package models

import "time"

// TokenStatus is the closed set of persisted token states. The lifecycle is
// PENDING -> DONE, at most once; there is no transition back.
type TokenStatus string

const (
	StatusPending TokenStatus = "PENDING"
	StatusDone    TokenStatus = "DONE"
)

// Valid reports whether s is a member of the closed enumeration.
func (s TokenStatus) Valid() bool {
	return s == StatusPending || s == StatusDone
}

// Event is the monitoring event a registration belongs to. Created once at
// registration time and immutable afterwards; the credential issuer reads its
// timing fields when a token is exchanged.
type Event struct {
	ID              string
	PatientID       string
	WatchID         string
	PhoneID         string
	ContextID       string
	StartAt         time.Time
	DurationSeconds int64
	CreatedAt       time.Time
}

// RegistrationToken is a single-use bearer secret tied to one event. The
// identifier doubles as the primary key; rows are never deleted here.
type RegistrationToken struct {
	ID        string
	EventID   string
	Status    TokenStatus
	CreatedAt time.Time
}
