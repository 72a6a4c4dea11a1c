package plans

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/platinummonkey/gatehouse/pkg/cache"
	"github.com/platinummonkey/gatehouse/pkg/observability"
)

// PostgresSource reads plans from the plans table
type PostgresSource struct {
	db *sql.DB
}

// NewPostgresSource creates a plan source
func NewPostgresSource(db *sql.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

// GetPlan retrieves a plan by ID. Malformed feature or limit columns are errors.
func (s *PostgresSource) GetPlan(ctx context.Context, id string) (*Plan, error) {
	query := `
		SELECT id, name, display_name, active, features, limits, pricing
		FROM plans
		WHERE id = $1
	`
	p := &Plan{}
	var features, limits, pricing []byte
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.Name, &p.DisplayName, &p.Active, &features, &limits, &pricing,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}

	if len(features) > 0 {
		if err := json.Unmarshal(features, &p.Features); err != nil {
			return nil, fmt.Errorf("plan %s: %w", id, err)
		}
	}
	if len(limits) > 0 {
		if err := json.Unmarshal(limits, &p.Limits); err != nil {
			return nil, fmt.Errorf("plan %s: invalid limits: %w", id, err)
		}
	}
	if len(pricing) > 0 {
		if err := json.Unmarshal(pricing, &p.Pricing); err != nil {
			return nil, fmt.Errorf("plan %s: invalid pricing: %w", id, err)
		}
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// CachedSource wraps a Source with a read-through cache
type CachedSource struct {
	source Source
	cache  *cache.ReadThrough[*Plan]
}

// NewCachedSource creates a cached plan source. cfg.Name defaults to "plan".
func NewCachedSource(source Source, cfg cache.Config, metrics *observability.Metrics, logger *observability.Logger) *CachedSource {
	if cfg.Name == "" {
		cfg.Name = "plan"
	}
	return &CachedSource{
		source: source,
		cache:  cache.New[*Plan](cfg, metrics, logger),
	}
}

// GetPlan returns the cached plan. Plans are immutable and shared.
func (s *CachedSource) GetPlan(ctx context.Context, id string) (*Plan, error) {
	return s.cache.Get(ctx, id, s.source.GetPlan)
}

// Invalidate drops a plan after it was changed
func (s *CachedSource) Invalidate(ctx context.Context, id string) error {
	return s.cache.Invalidate(ctx, id)
}
