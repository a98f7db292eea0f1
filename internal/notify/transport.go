package notify

import (
	"context"
	"errors"
)

// Fatal transport outcomes. The dispatcher gives up immediately on these;
// anything else is treated as transient and retried within the budget.
var (
	ErrConfigIncomplete  = errors.New("delivery configuration incomplete")
	ErrAuthFailed        = errors.New("transport authentication failed")
	ErrRecipientRejected = errors.New("recipient rejected by transport")
)

// Transport hands a rendered message to the outbound mail system. One call is
// one delivery attempt; the transport does not retry internally.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// fatal reports whether err is an outcome retrying cannot fix.
func fatal(err error) bool {
	return errors.Is(err, ErrConfigIncomplete) ||
		errors.Is(err, ErrAuthFailed) ||
		errors.Is(err, ErrRecipientRejected)
}
