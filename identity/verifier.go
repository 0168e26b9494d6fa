package identity

import (
	"context"
	"errors"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/sirupsen/logrus"
)

// Claim names the verifier extracts beyond the registered set.
const (
	ClaimTier               = "tier"
	ClaimSubscriptionActive = "subscription_active"
)

// TokenVerifier validates bearer tokens against issuer, audience, and a key
// set, and extracts the actor fields the entitlement engine needs.
type TokenVerifier struct {
	issuer   string
	audience string
	keySet   jwk.Set
}

// NewTokenVerifier builds a verifier. keySet is typically fetched and cached
// from the issuer's JWKS endpoint by the caller.
func NewTokenVerifier(issuer, audience string, keySet jwk.Set) *TokenVerifier {
	return &TokenVerifier{issuer: issuer, audience: audience, keySet: keySet}
}

// Verify validates rawToken and returns the actor it describes. Expiry,
// issuer, audience, and signature failures all surface as errors; the caller
// decides whether that means "unauthenticated" or "reject".
func (v *TokenVerifier) Verify(ctx context.Context, rawToken string) (*Actor, error) {
	if v == nil || v.keySet == nil {
		return nil, errors.New("identity: missing key set")
	}
	token, err := jwt.ParseString(
		rawToken,
		jwt.WithKeySet(v.keySet),
		jwt.WithValidate(true),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithContext(ctx),
	)
	if err != nil {
		return nil, err
	}
	actor := &Actor{ID: token.Subject()}
	if raw, ok := token.Get(ClaimTier); ok {
		if s, ok := raw.(string); ok {
			actor.RawTier = s
		}
	}
	if raw, ok := token.Get(ClaimSubscriptionActive); ok {
		switch b := raw.(type) {
		case bool:
			actor.SubscriptionActive = b
		case string:
			actor.SubscriptionActive = b == "true"
		}
	}
	if actor.ID == "" {
		return nil, errors.New("identity: token has no subject")
	}
	return actor, nil
}

// BearerProvider resolves the actor from a bearer token supplied by the
// surrounding request machinery. An absent or invalid token is treated as
// unauthenticated rather than as a failure: entitlement assembly must degrade
// to the anonymous path, not reject the request.
type BearerProvider struct {
	verifier *TokenVerifier
	token    func(ctx context.Context) string
	log      *logrus.Logger
}

// NewBearerProvider wires a verifier to a token extractor (for example, one
// reading the Authorization header stashed in ctx by the transport layer).
func NewBearerProvider(verifier *TokenVerifier, token func(ctx context.Context) string, log *logrus.Logger) *BearerProvider {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &BearerProvider{verifier: verifier, token: token, log: log}
}

func (p *BearerProvider) CurrentActor(ctx context.Context) (*Actor, error) {
	raw := ""
	if p.token != nil {
		raw = p.token(ctx)
	}
	if raw == "" {
		return nil, nil
	}
	actor, err := p.verifier.Verify(ctx, raw)
	if err != nil {
		p.log.WithError(err).Warn("identity: bearer token rejected, treating as anonymous")
		return nil, nil
	}
	return actor, nil
}
