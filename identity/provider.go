// Package identity resolves who is making the current request and what their
// raw billing state looks like. It supplies the engine's actor input; tier
// interpretation and fail-closed defaults live with the consumer.
package identity

import "context"

// Actor is the raw identity handed to the entitlement engine. RawTier is the
// uninterpreted billing plan value; an empty RawTier resolves to the free
// tier downstream.
type Actor struct {
	ID                 string
	RawTier            string
	SubscriptionActive bool
}

// Provider yields the current actor. (nil, nil) means unauthenticated and is
// a normal outcome; a non-nil error means genuine infrastructure failure.
type Provider interface {
	CurrentActor(ctx context.Context) (*Actor, error)
}

// StaticProvider always returns the same actor (or nil). Useful in tests and
// in servers that resolve identity upstream of the engine.
type StaticProvider struct {
	Actor *Actor
}

func (p StaticProvider) CurrentActor(context.Context) (*Actor, error) {
	if p.Actor == nil {
		return nil, nil
	}
	a := *p.Actor
	return &a, nil
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context) (*Actor, error)

func (f ProviderFunc) CurrentActor(ctx context.Context) (*Actor, error) { return f(ctx) }
