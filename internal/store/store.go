package store

import "context"

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// OAuth token (single row; replaced on every write)
	PutToken(ctx context.Context, payload []byte) error
	GetToken(ctx context.Context) ([]byte, error)
	DeleteToken(ctx context.Context) error

	// Scheduled publishes
	CreateScheduledPublish(ctx context.Context, sp *ScheduledPublish) error
	GetScheduledPublish(ctx context.Context, id string) (*ScheduledPublish, error)
	UpdateScheduledPublish(ctx context.Context, id string, update ScheduledPublishUpdate) error
	ListScheduledPublishes(ctx context.Context, filter ScheduledPublishFilter) ([]*ScheduledPublish, error)
	DeleteScheduledPublish(ctx context.Context, id string) error

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
