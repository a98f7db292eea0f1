package credential

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	dErrors "vigil/pkg/domain-errors"
)

// Issuer mints time-bounded onboarding credentials. It is a pure function of
// its inputs and the signing key; safe for concurrent use.
type Issuer struct {
	signingKey []byte
	method     jwt.SigningMethod
}

// NewIssuer constructs an Issuer for the named HMAC algorithm (HS256, HS384
// or HS512). Asymmetric algorithms are rejected here so a misconfigured
// deployment fails at startup instead of at the first onboarding.
func NewIssuer(signingKey string, algorithm string) (*Issuer, error) {
	if signingKey == "" {
		return nil, errors.New("signing key is required")
	}
	method := jwt.GetSigningMethod(algorithm)
	if method == nil {
		return nil, fmt.Errorf("unknown signing algorithm %q", algorithm)
	}
	if _, ok := method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("signing algorithm %q is not HMAC", algorithm)
	}
	return &Issuer{
		signingKey: []byte(signingKey),
		method:     method,
	}, nil
}

// Issue derives a signed credential from the event's timing: issued-at is the
// event start and expiry is start plus duration. The credential is
// bearer-equivalent to the registration token; callers must not log it.
func (i *Issuer) Issue(subject string, startAt time.Time, durationSeconds int64) (string, error) {
	if subject == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "subject is required")
	}
	if startAt.IsZero() {
		return "", dErrors.New(dErrors.CodeInvalidTiming, "event start time is required")
	}
	if durationSeconds < 0 {
		return "", dErrors.New(dErrors.CodeInvalidTiming, "event duration must not be negative")
	}

	issuedAt := startAt.UTC()
	expiresAt := issuedAt.Add(time.Duration(durationSeconds) * time.Second)

	token := jwt.NewWithClaims(i.method, jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	})

	signed, err := token.SignedString(i.signingKey)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign credential")
	}
	return signed, nil
}

// Verify parses and validates a credential, returning its claims. Expiry is
// checked against now so callers holding a stale credential get a clean
// rejection.
func (i *Issuer) Verify(credential string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(credential, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return i.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "credential has expired")
		}
		return nil, dErrors.New(dErrors.CodeInvalidInput, "invalid credential")
	}
	if !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "invalid credential")
	}
	return claims, nil
}
