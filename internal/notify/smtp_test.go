package notify

import (
	"errors"
	"fmt"
	"net/textproto"
	"testing"

	"github.com/stretchr/testify/assert"
)

func protoReply(code int, msg string) error {
	return &textproto.Error{Code: code, Msg: msg}
}

func TestReplyClass(t *testing.T) {
	tests := map[string]struct {
		err  error
		want int
	}{
		"auth rejected 535":      {protoReply(535, "authentication credentials invalid"), 5},
		"mailbox unavailable":    {protoReply(550, "no such user"), 5},
		"service closing 421":    {protoReply(421, "service not available"), 4},
		"temporary auth failure": {protoReply(454, "temporary authentication failure"), 4},
		"wrapped reply":          {fmt.Errorf("auth: %w", protoReply(535, "bad credentials")), 5},
		"transport error":        {errors.New("connection reset"), 0},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, replyClass(tc.err))
		})
	}
}

func TestAuthError_Classification(t *testing.T) {
	permanent := authError("noreply@example.com", protoReply(535, "bad credentials"))
	assert.ErrorIs(t, permanent, ErrAuthFailed)

	// A transient reply must not map to the fatal sentinel so the dispatcher
	// keeps retrying it.
	transient := authError("noreply@example.com", protoReply(454, "temporary failure"))
	assert.NotErrorIs(t, transient, ErrAuthFailed)

	network := authError("noreply@example.com", errors.New("connection reset"))
	assert.NotErrorIs(t, network, ErrAuthFailed)
}

func TestRcptError_Classification(t *testing.T) {
	permanent := rcptError("patient@example.com", protoReply(550, "no such user"))
	assert.ErrorIs(t, permanent, ErrRecipientRejected)

	transient := rcptError("patient@example.com", protoReply(452, "mailbox full, try later"))
	assert.NotErrorIs(t, transient, ErrRecipientRejected)

	network := rcptError("patient@example.com", errors.New("connection reset"))
	assert.NotErrorIs(t, network, ErrRecipientRejected)
}
