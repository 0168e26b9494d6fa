// Package testing provides utilities for testing applications that use
// gatekit. It provides a mock issuer that serves JWKS and can sign actor
// tokens, enabling integration tests without a real auth server.
//
// Example usage:
//
//	issuer := testing.NewTestIssuer()
//	defer issuer.Close()
//
//	verifier := issuer.Verifier()
//	token := issuer.CreateToken("user-123", "monthly", true)
package testing

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/open-rails/gatekit/identity"
)

// TestIssuer runs an HTTP server that serves JWKS at /.well-known/jwks.json
// and signs JWTs that validate against it.
type TestIssuer struct {
	server   *httptest.Server
	key      *rsa.PrivateKey
	kid      string
	audience string
	keySet   jwk.Set
}

// NewTestIssuer creates a test issuer with a fresh RSA key pair.
// Call Close when done to shut down the JWKS server.
func NewTestIssuer() *TestIssuer {
	return NewTestIssuerWithAudience("test-app")
}

// NewTestIssuerWithAudience creates a test issuer with a specific audience.
func NewTestIssuerWithAudience(audience string) *TestIssuer {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic("failed to generate RSA key: " + err.Error())
	}

	ti := &TestIssuer{
		key:      key,
		kid:      "test-key-1",
		audience: audience,
	}

	pub, err := jwk.FromRaw(key.Public())
	if err != nil {
		panic("failed to build JWK: " + err.Error())
	}
	_ = pub.Set(jwk.KeyIDKey, ti.kid)
	_ = pub.Set(jwk.AlgorithmKey, jwa.RS256)
	_ = pub.Set(jwk.KeyUsageKey, "sig")
	set := jwk.NewSet()
	_ = set.AddKey(pub)
	ti.keySet = set

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/jwks.json", ti.handleJWKS)
	ti.server = httptest.NewServer(mux)
	return ti
}

// URL returns the issuer URL (also the "iss" claim in minted tokens).
func (ti *TestIssuer) URL() string { return ti.server.URL }

// Audience returns the configured audience claim.
func (ti *TestIssuer) Audience() string { return ti.audience }

// KeySet returns the public key set tokens validate against.
func (ti *TestIssuer) KeySet() jwk.Set { return ti.keySet }

// Verifier builds a token verifier wired to this issuer.
func (ti *TestIssuer) Verifier() *identity.TokenVerifier {
	return identity.NewTokenVerifier(ti.URL(), ti.audience, ti.keySet)
}

// Close shuts down the JWKS server.
func (ti *TestIssuer) Close() {
	if ti.server != nil {
		ti.server.Close()
	}
}

func (ti *TestIssuer) handleJWKS(w http.ResponseWriter, _ *http.Request) {
	b, _ := json.Marshal(ti.keySet)
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(b)
}

// CreateToken mints a signed actor token carrying the tier and subscription
// claims the identity verifier extracts.
func (ti *TestIssuer) CreateToken(actorID, rawTier string, subscriptionActive bool) string {
	return ti.CreateTokenWithClaims(actorID, map[string]any{
		identity.ClaimTier:               rawTier,
		identity.ClaimSubscriptionActive: subscriptionActive,
	})
}

// CreateTokenWithClaims mints a signed token with extra claims merged over
// the standard set (sub, iss, aud, exp, iat).
func (ti *TestIssuer) CreateTokenWithClaims(actorID string, extraClaims map[string]any) string {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": actorID,
		"iss": ti.URL(),
		"aud": ti.audience,
		"exp": now.Add(time.Hour).Unix(),
		"iat": now.Unix(),
	}
	for k, v := range extraClaims {
		claims[k] = v
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = ti.kid
	signed, err := token.SignedString(ti.key)
	if err != nil {
		panic("failed to sign token: " + err.Error())
	}
	return signed
}

// CreateExpiredToken mints a token that has already expired, for testing
// that stale sessions degrade to anonymous.
func (ti *TestIssuer) CreateExpiredToken(actorID string) string {
	now := time.Now()
	return ti.CreateTokenWithClaims(actorID, map[string]any{
		"exp": now.Add(-time.Hour).Unix(),
		"iat": now.Add(-2 * time.Hour).Unix(),
	})
}
