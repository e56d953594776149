package store

import "context"

// EventStoreInterface defines the interface for event stores
type EventStoreInterface interface {
	Append(ctx context.Context, aggregateID, aggregateType, eventType string, data any) (*Event, error)
	GetEvents(ctx context.Context, aggregateID string) ([]Event, error)
	GetEventsFromVersion(ctx context.Context, aggregateID string, version int) ([]Event, error)
	GetEventsByType(ctx context.Context, aggregateType string) ([]Event, error)
	GetAllEvents(ctx context.Context) ([]Event, error)
	GetSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error)
	SaveSnapshot(ctx context.Context, snapshot *Snapshot) error
}

// Publisher forwards stored events to downstream consumers. A failed publish
// does not undo the append; consumers catch up on replay.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// ReadStoreInterface holds projected read models by collection and id.
// Stored values are treated as immutable: Update replaces, never mutates.
type ReadStoreInterface interface {
	Set(collection, id string, data any)
	Get(collection, id string) (any, bool)
	// GetAll returns the items of a collection ordered by id
	GetAll(collection string) []any
	Delete(collection, id string)
	// Update replaces a read model with updateFn's result; false if it does not exist
	Update(collection, id string, updateFn func(current any) any) bool
}
