package observation

import "context"

// EventStore is the append-only log collaborator. Implementations must return
// per-resource history in append order and report ErrNotFound for unknown ids.
type EventStore interface {
	// Append durably records e and indexes it under every resource it references.
	Append(ctx context.Context, e EconomicEvent) (string, error)
	// HistoryFor returns every event referencing resourceID, in append order.
	HistoryFor(ctx context.Context, resourceID string) ([]EconomicEvent, error)
	// Event returns a single event by id.
	Event(ctx context.Context, id string) (EconomicEvent, error)
	// Events lists events matching filter in append order.
	Events(ctx context.Context, filter EventFilter) ([]EconomicEvent, error)
	// ResourceIDs lists every resource referenced by at least one event.
	ResourceIDs(ctx context.Context) ([]string, error)
}

// ProjectionCache keeps the last known projection per resource.
type ProjectionCache interface {
	Load(ctx context.Context, resourceID string) (EconomicResource, bool, error)
	Save(ctx context.Context, resources ...EconomicResource) error
	Invalidate(ctx context.Context, resourceIDs ...string) error
}

// Locker guards per-resource critical sections. Lock receives keys in
// ascending order and must acquire them in that order. unlock is idempotent
// and returns ErrLockLost when exclusivity was not held until release.
type Locker interface {
	Lock(ctx context.Context, keys ...string) (unlock func() error, err error)
}

// RebuildScheduler receives resources whose snapshot could not be refreshed
// after a durable append.
type RebuildScheduler interface {
	ScheduleRebuild(ctx context.Context, resourceID string) error
}
