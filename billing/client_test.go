package billing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/open-rails/gatekit/identity"
)

// fakeBilling serves a token endpoint and a subscriptions endpoint, checking
// that API calls carry the bearer token the token endpoint issued.
func fakeBilling(t *testing.T, subs map[string]Subscription) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "test-token",
			"token_type":   "bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/v1/subscriptions/", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("authorization = %q", got)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
		sub, ok := subs[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(sub)
	})
	return httptest.NewServer(mux)
}

func newClient(srv *httptest.Server) *Client {
	return NewClient(context.Background(), Config{
		BaseURL:      srv.URL,
		TokenURL:     srv.URL + "/oauth/token",
		ClientID:     "gatekit",
		ClientSecret: "secret",
	})
}

func TestGetSubscription(t *testing.T) {
	srv := fakeBilling(t, map[string]Subscription{
		"u1": {ActorID: "u1", Plan: "yearly", Active: true},
	})
	defer srv.Close()

	sub, err := newClient(srv).GetSubscription(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if sub == nil || sub.Plan != "yearly" || !sub.Active {
		t.Errorf("sub = %+v", sub)
	}
}

func TestGetSubscriptionNotFound(t *testing.T) {
	srv := fakeBilling(t, nil)
	defer srv.Close()

	sub, err := newClient(srv).GetSubscription(context.Background(), "missing")
	if err != nil || sub != nil {
		t.Errorf("got (%+v, %v), want (nil, nil)", sub, err)
	}
}

func TestEnrichAppliesPlan(t *testing.T) {
	srv := fakeBilling(t, map[string]Subscription{
		"u1": {ActorID: "u1", Plan: "monthly", Active: true},
	})
	defer srv.Close()

	base := identity.StaticProvider{Actor: &identity.Actor{ID: "u1"}}
	actor, err := newClient(srv).Enrich(base).CurrentActor(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if actor.RawTier != "monthly" || !actor.SubscriptionActive {
		t.Errorf("actor = %+v", actor)
	}
}

// A billing outage must downgrade, not propagate: the actor keeps an empty
// plan and an inactive subscription.
func TestEnrichFailureDowngrades(t *testing.T) {
	srv := fakeBilling(t, nil)
	base := identity.StaticProvider{Actor: &identity.Actor{ID: "u1", RawTier: "monthly", SubscriptionActive: true}}
	client := newClient(srv)
	srv.Close()

	actor, err := client.Enrich(base).CurrentActor(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if actor.RawTier != "" || actor.SubscriptionActive {
		t.Errorf("actor = %+v, want downgraded", actor)
	}
}

func TestEnrichAnonymousPassthrough(t *testing.T) {
	srv := fakeBilling(t, nil)
	defer srv.Close()

	actor, err := newClient(srv).Enrich(identity.StaticProvider{}).CurrentActor(context.Background())
	if err != nil || actor != nil {
		t.Errorf("got (%+v, %v), want (nil, nil)", actor, err)
	}
}
