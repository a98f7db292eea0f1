package token

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// DefaultLengthBytes matches 16 bytes of raw entropy, enough that identifier
// collisions are astronomically rare in practice.
const DefaultLengthBytes = 16

// Generator produces opaque registration token identifiers. Values come from
// a cryptographically secure source and are encoded URL-safe so they can be
// embedded in links and QR payloads.
type Generator struct {
	lengthBytes int
}

// NewGenerator constructs a Generator reading lengthBytes of entropy per
// token. Non-positive lengths fall back to the default.
func NewGenerator(lengthBytes int) *Generator {
	if lengthBytes <= 0 {
		lengthBytes = DefaultLengthBytes
	}
	return &Generator{lengthBytes: lengthBytes}
}

// Generate returns a fresh identifier. It fails only if the system's secure
// random source is unreadable.
func (g *Generator) Generate() (string, error) {
	buf := make([]byte, g.lengthBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
