package postgres

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/upb/omniagent/models"
	"github.com/upb/omniagent/repositories"
)

// MaxListLimit caps ListRecent
const MaxListLimit = 500

// RoutingEventRepository implements the repositories.RoutingEventRepository interface
type RoutingEventRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewRoutingEventRepository creates a new routing event repository
func NewRoutingEventRepository(db *DB, logger *zap.Logger) repositories.RoutingEventRepository {
	return &RoutingEventRepository{
		db:     db,
		logger: logger,
	}
}

// Insert inserts a new routing event
func (r *RoutingEventRepository) Insert(ctx context.Context, event *models.RoutingEvent) error {
	query := `
		INSERT INTO routing_events (
			id, session_id, request_id, target_backend, provider, rule, forced_local,
			original_backend, succeeded, used_fallback, error_kind, latency_ms, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		)
	`

	_, err := r.db.ExecContext(ctx, query,
		event.ID,
		event.SessionID,
		event.RequestID,
		event.TargetBackend,
		event.Provider,
		event.Rule,
		event.ForcedLocal,
		event.OriginalBackend,
		event.Succeeded,
		event.UsedFallback,
		event.ErrorKind,
		event.LatencyMs,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert routing event: %w", err)
	}

	r.logger.Debug("routing event inserted",
		zap.String("id", event.ID.String()),
		zap.String("target_backend", event.TargetBackend))
	return nil
}

// ListRecent retrieves the most recent routing events
func (r *RoutingEventRepository) ListRecent(ctx context.Context, limit int) ([]*models.RoutingEvent, error) {
	if limit <= 0 || limit > MaxListLimit {
		limit = MaxListLimit
	}

	query := `
		SELECT id, session_id, request_id, target_backend, provider, rule, forced_local,
		       original_backend, succeeded, used_fallback, error_kind, latency_ms, created_at
		FROM routing_events
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list routing events: %w", err)
	}
	defer rows.Close()

	events := make([]*models.RoutingEvent, 0)
	for rows.Next() {
		event := &models.RoutingEvent{}
		if err := rows.Scan(
			&event.ID,
			&event.SessionID,
			&event.RequestID,
			&event.TargetBackend,
			&event.Provider,
			&event.Rule,
			&event.ForcedLocal,
			&event.OriginalBackend,
			&event.Succeeded,
			&event.UsedFallback,
			&event.ErrorKind,
			&event.LatencyMs,
			&event.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan routing event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating routing events: %w", err)
	}

	return events, nil
}
