package policy

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/open-rails/gatekit/tier"
)

// PostgresRepository reads and writes feature policies in a Postgres table.
// One row per feature key; list columns are text arrays.
type PostgresRepository struct {
	pg     *pgxpool.Pool
	schema string
}

// NewPostgresRepository builds a repository over the given pool. schema
// defaults to "gatekit".
func NewPostgresRepository(pg *pgxpool.Pool, schema string) *PostgresRepository {
	s := strings.TrimSpace(schema)
	if s == "" {
		s = "gatekit"
	}
	return &PostgresRepository{pg: pg, schema: s}
}

func (r *PostgresRepository) table() string { return r.schema + ".feature_policies" }

// LoadPolicies returns the complete policy table, or ErrUnavailable on any
// storage fault. A scan error mid-result also fails the whole load; a map
// missing rows must never escape.
func (r *PostgresRepository) LoadPolicies(ctx context.Context) (map[string]Policy, error) {
	if r.pg == nil {
		return nil, fmt.Errorf("%w: no pool configured", ErrUnavailable)
	}
	rows, err := r.pg.Query(ctx, `SELECT feature_key, enabled, min_tier, rollout_percentage, allowlist, denylist, beta_users FROM `+r.table())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	out := make(map[string]Policy)
	for rows.Next() {
		var (
			key     string
			p       Policy
			minTier int
			pct     *int
		)
		if err := rows.Scan(&key, &p.Enabled, &minTier, &pct, &p.Allowlist, &p.Denylist, &p.BetaUsers); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		p.MinTier = tier.Level(minTier)
		p.RolloutPercentage = pct
		out[key] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return out, nil
}

// Upsert creates or replaces the record for a feature key.
func (r *PostgresRepository) Upsert(ctx context.Context, key string, p Policy) error {
	k, err := ValidateFeatureKey(key)
	if err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}
	if r.pg == nil {
		return fmt.Errorf("%w: no pool configured", ErrUnavailable)
	}
	// Array columns are NOT NULL; a nil slice would insert NULL.
	allow, deny, beta := orEmpty(p.Allowlist), orEmpty(p.Denylist), orEmpty(p.BetaUsers)
	_, err = r.pg.Exec(ctx, `
		INSERT INTO `+r.table()+` (feature_key, enabled, min_tier, rollout_percentage, allowlist, denylist, beta_users, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (feature_key) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			min_tier = EXCLUDED.min_tier,
			rollout_percentage = EXCLUDED.rollout_percentage,
			allowlist = EXCLUDED.allowlist,
			denylist = EXCLUDED.denylist,
			beta_users = EXCLUDED.beta_users,
			updated_at = NOW()`,
		k, p.Enabled, int(p.MinTier), p.RolloutPercentage, allow, deny, beta)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func orEmpty(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

// Delete removes the record for a feature key. Deleting an absent key is not
// an error.
func (r *PostgresRepository) Delete(ctx context.Context, key string) error {
	k, err := ValidateFeatureKey(key)
	if err != nil {
		return err
	}
	if r.pg == nil {
		return fmt.Errorf("%w: no pool configured", ErrUnavailable)
	}
	if _, err := r.pg.Exec(ctx, `DELETE FROM `+r.table()+` WHERE feature_key=$1`, k); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
