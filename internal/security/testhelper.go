package security

import (
	"time"

	"github.com/benbjohnson/clock"
)

// TestSecret is the HMAC secret used by NewTestVerifier and NewTestIssuer. For tests only.
var TestSecret = []byte("test-secret-test-secret-test-secret!")

// NewTestIssuer returns an HS256 Issuer over TestSecret with a 15 minute TTL.
// For unit tests only. Callers must not use in production.
func NewTestIssuer(clk clock.Clock) *Issuer {
	i, err := NewIssuer(TestSecret, "", "", 15*time.Minute, clk)
	if err != nil {
		panic(err)
	}
	return i
}

// NewTestVerifier returns a Verifier accepting tokens from NewTestIssuer.
// For unit tests only. Callers must not use in production.
func NewTestVerifier(clk clock.Clock) *Verifier {
	v, err := NewVerifier(TestSecret, nil, "", "", clk)
	if err != nil {
		panic(err)
	}
	return v
}
