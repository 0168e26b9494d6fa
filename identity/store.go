package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/open-rails/gatekit/audit"
)

// Store provides minimal subscription lookups against the billing schema.
type Store struct {
	pg     *pgxpool.Pool
	schema string
}

func NewStore(pg *pgxpool.Pool, schema string) *Store {
	s := strings.TrimSpace(schema)
	if s == "" {
		s = "billing"
	}
	return &Store{pg: pg, schema: s}
}

func (s *Store) subscriptionsTable() string { return s.schema + ".subscriptions" }

// Subscription is one actor's billing record.
type Subscription struct {
	ActorID   uuid.UUID
	Plan      string
	Active    bool
	ExpiresAt *time.Time
}

// GetSubscription returns the actor's subscription, or (nil, nil) when no row
// exists. Newly created accounts have no billing row yet, so absence is an
// expected state, not an error.
func (s *Store) GetSubscription(ctx context.Context, actorID uuid.UUID) (*Subscription, error) {
	if s.pg == nil || actorID == uuid.Nil {
		return nil, nil
	}
	var sub Subscription
	err := s.pg.QueryRow(ctx,
		`SELECT actor_id, plan, active, expires_at FROM `+s.subscriptionsTable()+` WHERE actor_id=$1 LIMIT 1`,
		actorID,
	).Scan(&sub.ActorID, &sub.Plan, &sub.Active, &sub.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// DBProvider layers a billing lookup over a base provider: the base answers
// "who", the store answers "what plan". A failed or missing billing lookup
// degrades to an empty plan (interpreted as free downstream) and is reported
// as a warning, never propagated.
type DBProvider struct {
	base    Provider
	store   *Store
	auditor audit.Logger
	log     *logrus.Logger
}

func NewDBProvider(base Provider, store *Store, auditor audit.Logger, log *logrus.Logger) *DBProvider {
	if auditor == nil {
		auditor = audit.NopLogger{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &DBProvider{base: base, store: store, auditor: auditor, log: log}
}

func (p *DBProvider) CurrentActor(ctx context.Context) (*Actor, error) {
	actor, err := p.base.CurrentActor(ctx)
	if err != nil || actor == nil {
		return actor, err
	}

	id, err := uuid.Parse(actor.ID)
	if err != nil {
		// Non-UUID subjects (service accounts, external IDs) keep whatever
		// tier the base provider resolved.
		return actor, nil
	}

	sub, err := p.store.GetSubscription(ctx, id)
	if err != nil {
		p.log.WithError(err).WithField("actor_id", actor.ID).Warn("identity: billing lookup failed, downgrading to free")
		_ = p.auditor.RecordFault(ctx, audit.FaultEvent{
			Fault:    audit.FaultTierLookupFailed,
			Severity: audit.SeverityWarn,
			Err:      err.Error(),
			At:       time.Now(),
		})
		out := *actor
		out.RawTier = ""
		out.SubscriptionActive = false
		return &out, nil
	}
	if sub == nil {
		// No billing row yet: expected for fresh accounts.
		out := *actor
		out.RawTier = ""
		out.SubscriptionActive = false
		return &out, nil
	}
	out := *actor
	out.RawTier = sub.Plan
	out.SubscriptionActive = sub.Active
	return &out, nil
}
