package repositories

import (
	"context"

	"github.com/upb/omniagent/models"
)

// RoutingEventRepository persists routing events
type RoutingEventRepository interface {
	// Insert stores one event
	Insert(ctx context.Context, event *models.RoutingEvent) error

	// ListRecent returns up to limit events, newest first
	ListRecent(ctx context.Context, limit int) ([]*models.RoutingEvent, error)
}

// Repositories holds all repository instances
type Repositories struct {
	RoutingEvents RoutingEventRepository
}
