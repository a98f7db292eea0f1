package credential

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "vigil/pkg/domain-errors"
)

const testKey = "unit-test-signing-key"

// decodeClaims parses without validating exp so fixed historical dates can be
// asserted exactly.
func decodeClaims(t *testing.T, signed string) *jwt.RegisteredClaims {
	t.Helper()
	claims := &jwt.RegisteredClaims{}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	_, err := parser.ParseWithClaims(signed, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(testKey), nil
	})
	require.NoError(t, err)
	return claims
}

func TestIssue_TimingCorrectness(t *testing.T) {
	issuer, err := NewIssuer(testKey, "HS256")
	require.NoError(t, err)

	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	signed, err := issuer.Issue("E1", start, 900)
	require.NoError(t, err)

	claims := decodeClaims(t, signed)
	assert.Equal(t, "E1", claims.Subject)
	assert.Equal(t, start, claims.IssuedAt.Time.UTC())
	assert.Equal(t, time.Date(2025, 1, 1, 0, 15, 0, 0, time.UTC), claims.ExpiresAt.Time.UTC())
}

func TestIssue_Deterministic(t *testing.T) {
	issuer, err := NewIssuer(testKey, "HS256")
	require.NoError(t, err)

	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	first, err := issuer.Issue("E1", start, 3600)
	require.NoError(t, err)
	second, err := issuer.Issue("E1", start, 3600)
	require.NoError(t, err)

	// HS256 is deterministic, so identical inputs yield identical blobs.
	assert.Equal(t, first, second)
}

func TestIssue_RejectsNegativeDuration(t *testing.T) {
	issuer, err := NewIssuer(testKey, "HS256")
	require.NoError(t, err)

	_, err = issuer.Issue("E1", time.Now(), -1)
	require.Error(t, err)

	var de *dErrors.Error
	require.True(t, errors.As(err, &de))
	assert.Equal(t, dErrors.CodeInvalidTiming, de.Code)
}

func TestIssue_RejectsZeroStart(t *testing.T) {
	issuer, err := NewIssuer(testKey, "HS256")
	require.NoError(t, err)

	_, err = issuer.Issue("E1", time.Time{}, 900)
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeInvalidTiming, dErrors.CodeOf(err))
}

func TestIssue_ZeroDurationExpiresAtIssue(t *testing.T) {
	issuer, err := NewIssuer(testKey, "HS256")
	require.NoError(t, err)

	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	signed, err := issuer.Issue("E1", start, 0)
	require.NoError(t, err)

	claims := decodeClaims(t, signed)
	assert.Equal(t, claims.IssuedAt.Time, claims.ExpiresAt.Time)
}

func TestVerify_RoundTrip(t *testing.T) {
	issuer, err := NewIssuer(testKey, "HS256")
	require.NoError(t, err)

	start := time.Now().UTC().Truncate(time.Second)
	signed, err := issuer.Issue("E42", start, 3600)
	require.NoError(t, err)

	claims, err := issuer.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, "E42", claims.Subject)
}

func TestVerify_RejectsExpired(t *testing.T) {
	issuer, err := NewIssuer(testKey, "HS256")
	require.NoError(t, err)

	start := time.Now().UTC().Add(-2 * time.Hour)
	signed, err := issuer.Issue("E42", start, 60)
	require.NoError(t, err)

	_, err = issuer.Verify(signed)
	assert.Error(t, err)
}

func TestVerify_RejectsOtherKey(t *testing.T) {
	issuer, err := NewIssuer(testKey, "HS256")
	require.NoError(t, err)
	other, err := NewIssuer("another-key", "HS256")
	require.NoError(t, err)

	signed, err := other.Issue("E1", time.Now(), 3600)
	require.NoError(t, err)

	_, err = issuer.Verify(signed)
	assert.Error(t, err)
}

func TestNewIssuer_RejectsNonHMAC(t *testing.T) {
	_, err := NewIssuer(testKey, "RS256")
	assert.Error(t, err)

	_, err = NewIssuer(testKey, "none")
	assert.Error(t, err)

	_, err = NewIssuer("", "HS256")
	assert.Error(t, err)
}
