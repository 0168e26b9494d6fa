// Package billing fetches subscription state from an external billing API.
// It is an alternative tier source for deployments where billing lives in a
// separate service instead of a shared database.
package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/open-rails/gatekit/identity"
)

// Subscription is the billing API's view of one actor.
type Subscription struct {
	ActorID string `json:"actor_id"`
	Plan    string `json:"plan"`
	Active  bool   `json:"active"`
}

// Config configures the billing API client.
type Config struct {
	// BaseURL of the billing API, e.g. "https://billing.internal".
	BaseURL string
	// TokenURL, ClientID, ClientSecret drive the client-credentials grant.
	TokenURL     string
	ClientID     string
	ClientSecret string
	// Timeout per request; zero means 5 seconds.
	Timeout time.Duration
}

// Client calls the billing API with an OAuth2 client-credentials transport
// that refreshes its token automatically.
type Client struct {
	base    string
	http    *http.Client
	timeout time.Duration
}

func NewClient(ctx context.Context, cfg Config) *Client {
	cc := &clientcredentials.Config{
		TokenURL:     cfg.TokenURL,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		base:    strings.TrimRight(cfg.BaseURL, "/"),
		http:    cc.Client(ctx),
		timeout: timeout,
	}
}

// GetSubscription returns the actor's subscription, or (nil, nil) on 404.
func (c *Client) GetSubscription(ctx context.Context, actorID string) (*Subscription, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := c.base + "/v1/subscriptions/" + url.PathEscape(actorID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var sub Subscription
		if err := json.NewDecoder(resp.Body).Decode(&sub); err != nil {
			return nil, err
		}
		return &sub, nil
	case http.StatusNotFound:
		return nil, nil
	default:
		return nil, fmt.Errorf("billing: unexpected status %d", resp.StatusCode)
	}
}

// Enrich wraps a base identity provider so resolved actors carry the billing
// API's plan and liveness. Lookup failures degrade to an empty plan, matching
// the fail-closed posture of the database-backed provider.
func (c *Client) Enrich(base identity.Provider) identity.Provider {
	return identity.ProviderFunc(func(ctx context.Context) (*identity.Actor, error) {
		actor, err := base.CurrentActor(ctx)
		if err != nil || actor == nil {
			return actor, err
		}
		sub, err := c.GetSubscription(ctx, actor.ID)
		out := *actor
		if err != nil || sub == nil {
			out.RawTier = ""
			out.SubscriptionActive = false
			return &out, nil
		}
		out.RawTier = sub.Plan
		out.SubscriptionActive = sub.Active
		return &out, nil
	})
}
