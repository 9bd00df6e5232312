package observation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-rea/internal/observability"
)

// NegativePolicy decides whether a quantity track may drop below zero.
type NegativePolicy string

const (
	// NegativeAllow permits negative quantities (backorders, overdrawn custody).
	NegativeAllow NegativePolicy = "allow"
	// NegativeReject refuses any event that would leave a negative track.
	NegativeReject NegativePolicy = "reject"
)

// ParseNegativePolicy resolves a policy name; empty means allow.
func ParseNegativePolicy(s string) (NegativePolicy, error) {
	switch NegativePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", NegativeAllow:
		return NegativeAllow, nil
	case NegativeReject:
		return NegativeReject, nil
	default:
		return "", fmt.Errorf("observation: unknown negative quantity policy %q", s)
	}
}

// ServiceConfig groups the collaborators of Service.
type ServiceConfig struct {
	Store          EventStore
	Cache          ProjectionCache
	Locker         Locker
	Units          UnitRegistry
	NegativePolicy NegativePolicy
	Rebuilds       RebuildScheduler
	Metrics        *observability.Metrics
	Logger         *slog.Logger
	Clock          func() time.Time
	NewID          func() string
}

// Service appends economic events and serves resource projections.
type Service struct {
	store     EventStore
	cache     ProjectionCache
	locker    Locker
	validator *inputValidator
	policy    NegativePolicy
	rebuilds  RebuildScheduler
	metrics   *observability.Metrics
	logger    *slog.Logger
	clock     func() time.Time
	newID     func() string
	reads     singleflight.Group
}

// NewService builds Service. Store is required; the remaining fields default
// to an in-process locker, no cache, any unit and the allow policy.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("observation: event store required")
	}
	svc := &Service{
		store:     cfg.Store,
		cache:     cfg.Cache,
		locker:    cfg.Locker,
		validator: newInputValidator(cfg.Units),
		policy:    cfg.NegativePolicy,
		rebuilds:  cfg.Rebuilds,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		clock:     cfg.Clock,
		newID:     cfg.NewID,
	}
	if svc.locker == nil {
		svc.locker = NewLocalLocker()
	}
	if svc.policy == "" {
		svc.policy = NegativeAllow
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	if svc.clock == nil {
		svc.clock = time.Now
	}
	if svc.newID == nil {
		svc.newID = func() string { return uuid.Must(uuid.NewV7()).String() }
	}
	return svc, nil
}

// CreateEvent validates, appends and projects a new economic event. When
// newResource is set the event creates a resource whose id is assigned here.
// Validation failures abort before anything is appended; both sides of a
// transfer are computed and persisted under the same critical section.
func (s *Service) CreateEvent(ctx context.Context, input EventInput, newResource *ResourceInput) (CreateResult, error) {
	action, err := s.validator.check(&input, newResource)
	if err != nil {
		return CreateResult{}, s.rejected(string(action), err)
	}
	event := s.buildEvent(input, action, newResource)

	keys := event.ResourceIDs()
	unlock, err := s.locker.Lock(ctx, keys...)
	if err != nil {
		s.metrics.ObserveEvent(string(action), "failed")
		return CreateResult{}, fmt.Errorf("observation: lock resources %v: %w", keys, err)
	}
	defer s.release(ctx, unlock, keys...)

	current := make(map[string]EconomicResource, len(keys))
	for _, id := range keys {
		if event.CreatesResource() && id == event.ResourceInventoriedAs {
			continue
		}
		r, err := s.current(ctx, id)
		if err != nil {
			return CreateResult{}, s.rejected(string(action), err)
		}
		current[id] = r
	}
	next, err := ApplyEvent(current, event)
	if err != nil {
		return CreateResult{}, s.rejected(string(action), err)
	}
	if s.policy == NegativeReject {
		for _, id := range keys {
			if r := next[id]; HasNegativeQuantity(r) {
				return CreateResult{}, s.rejected(string(action), fmt.Errorf("%w: resource %s would hold %s / %s", ErrNegativeQuantity, id, r.AccountingQuantity, r.OnhandQuantity))
			}
		}
	}

	digest, err := Digest(event)
	if err != nil {
		return CreateResult{}, s.rejected(string(action), fmt.Errorf("%w: %v", ErrValidation, err))
	}
	event.Digest = digest
	if _, err := s.store.Append(ctx, event); err != nil {
		s.metrics.ObserveEvent(string(action), "failed")
		if errors.Is(err, ErrDuplicateRequest) {
			return CreateResult{}, err
		}
		s.logger.Error("append economic event", slog.String("event_id", event.ID), slog.Any("error", err))
		return CreateResult{}, storageErr("append event", err)
	}

	updated := make([]EconomicResource, 0, len(keys))
	for _, id := range keys {
		updated = append(updated, next[id])
	}
	s.refreshSnapshots(ctx, updated)
	s.metrics.ObserveEvent(string(action), "appended")
	s.logger.Debug("economic event appended",
		slog.String("event_id", event.ID),
		slog.String("action", string(action)),
		slog.Any("resources", keys),
	)

	result := CreateResult{Event: event}
	if event.CreatesResource() {
		created := next[event.ResourceInventoriedAs]
		result.Resource = &created
	}
	return result, nil
}

// GetResource returns the current projection of resourceID.
func (s *Service) GetResource(ctx context.Context, resourceID string) (EconomicResource, error) {
	resourceID = normalize(resourceID)
	if resourceID == "" {
		return EconomicResource{}, fmt.Errorf("%w: resource id required", ErrNotFound)
	}
	if s.cache == nil {
		return s.fold(ctx, resourceID)
	}
	if r, ok := s.loadSnapshot(ctx, resourceID); ok {
		return r, nil
	}
	v, err, _ := s.reads.Do(resourceID, func() (any, error) {
		unlock, err := s.locker.Lock(ctx, resourceID)
		if err != nil {
			return nil, fmt.Errorf("observation: lock resource %s: %w", resourceID, err)
		}
		defer s.release(ctx, unlock, resourceID)
		return s.current(ctx, resourceID)
	})
	if err != nil {
		return EconomicResource{}, err
	}
	return v.(EconomicResource).Clone(), nil
}

// History returns every event referencing resourceID in append order.
func (s *Service) History(ctx context.Context, resourceID string) ([]EconomicEvent, error) {
	resourceID = normalize(resourceID)
	events, err := s.store.HistoryFor(ctx, resourceID)
	if err != nil {
		return nil, storageErr("history", err)
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("%w: resource %s", ErrNotFound, resourceID)
	}
	return events, nil
}

// GetEvent returns a single event.
func (s *Service) GetEvent(ctx context.Context, id string) (EconomicEvent, error) {
	e, err := s.store.Event(ctx, normalize(id))
	if err != nil {
		return EconomicEvent{}, storageErr("get event", err)
	}
	return e, nil
}

// ListEvents lists events matching filter.
func (s *Service) ListEvents(ctx context.Context, filter EventFilter) ([]EconomicEvent, error) {
	if filter.Action != "" {
		action, err := ParseAction(string(filter.Action))
		if err != nil {
			return nil, err
		}
		filter.Action = action
	}
	events, err := s.store.Events(ctx, filter)
	if err != nil {
		return nil, storageErr("list events", err)
	}
	return events, nil
}

// Rebuild refolds resourceID from its full history and replaces its snapshot.
func (s *Service) Rebuild(ctx context.Context, resourceID string) (EconomicResource, error) {
	resourceID = normalize(resourceID)
	unlock, err := s.locker.Lock(ctx, resourceID)
	if err != nil {
		return EconomicResource{}, fmt.Errorf("observation: lock resource %s: %w", resourceID, err)
	}
	defer s.release(ctx, unlock, resourceID)
	r, err := s.fold(ctx, resourceID)
	if err != nil {
		return EconomicResource{}, err
	}
	if s.cache != nil {
		if err := s.cache.Save(ctx, r); err != nil {
			return EconomicResource{}, fmt.Errorf("observation: save snapshot %s: %w", resourceID, err)
		}
	}
	return r, nil
}

// Verify refolds resourceID, checks every event digest and compares the
// result with the cached snapshot. A drifted snapshot is replaced.
func (s *Service) Verify(ctx context.Context, resourceID string) (VerifyReport, error) {
	resourceID = normalize(resourceID)
	report := VerifyReport{ResourceID: resourceID}
	unlock, err := s.locker.Lock(ctx, resourceID)
	if err != nil {
		return report, fmt.Errorf("observation: lock resource %s: %w", resourceID, err)
	}
	defer s.release(ctx, unlock, resourceID)

	history, err := s.History(ctx, resourceID)
	if err != nil {
		return report, err
	}
	report.Events = len(history)
	for _, e := range history {
		ok, err := VerifyDigest(e)
		if err != nil {
			return report, err
		}
		if !ok {
			report.TamperedEvents = append(report.TamperedEvents, e.ID)
		}
	}
	replayed, err := Project(resourceID, history)
	if err != nil {
		return report, err
	}
	if s.cache == nil {
		return report, nil
	}
	snapshot, ok, err := s.cache.Load(ctx, resourceID)
	if err != nil {
		return report, fmt.Errorf("observation: load snapshot %s: %w", resourceID, err)
	}
	if ok && SameProjection(snapshot, replayed) {
		return report, nil
	}
	report.Drifted = ok
	if ok {
		s.metrics.ObserveDrift()
		s.logger.Warn("projection drift repaired", slog.String("resource_id", resourceID),
			slog.String("snapshot_event", snapshot.LastEventID), slog.String("replayed_event", replayed.LastEventID))
	}
	if err := s.cache.Save(ctx, replayed); err != nil {
		return report, fmt.Errorf("observation: save snapshot %s: %w", resourceID, err)
	}
	report.Repaired = true
	return report, nil
}

// VerifyAll runs Verify for every known resource with at most concurrency
// resources in flight. Reports are returned sorted by resource id.
func (s *Service) VerifyAll(ctx context.Context, concurrency int) ([]VerifyReport, error) {
	ids, err := s.store.ResourceIDs(ctx)
	if err != nil {
		return nil, storageErr("list resources", err)
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	var (
		mu      sync.Mutex
		reports = make([]VerifyReport, 0, len(ids))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, id := range ids {
		g.Go(func() error {
			report, err := s.Verify(gctx, id)
			if err != nil {
				return fmt.Errorf("verify %s: %w", id, err)
			}
			mu.Lock()
			reports = append(reports, report)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	slices.SortFunc(reports, func(a, b VerifyReport) int { return strings.Compare(a.ResourceID, b.ResourceID) })
	return reports, nil
}

func (s *Service) buildEvent(in EventInput, action Action, newResource *ResourceInput) EconomicEvent {
	e := EconomicEvent{
		ID:                      s.newID(),
		Action:                  action,
		ResourceInventoriedAs:   in.ResourceInventoriedAs,
		ToResourceInventoriedAs: in.ToResourceInventoriedAs,
		ResourceQuantity:        cloneMeasure(in.ResourceQuantity),
		EffortQuantity:          cloneMeasure(in.EffortQuantity),
		ResourceClassifiedAs:    slices.Clone(in.ResourceClassifiedAs),
		ResourceConformsTo:      in.ResourceConformsTo,
		AtLocation:              in.AtLocation,
		Note:                    in.Note,
		Provider:                in.Provider,
		Receiver:                in.Receiver,
		InputOf:                 in.InputOf,
		OutputOf:                in.OutputOf,
		HasBeginning:            in.HasBeginning,
		HasEnd:                  in.HasEnd,
		HasPointInTime:          in.HasPointInTime,
		AgreedIn:                in.AgreedIn,
		TriggeredBy:             in.TriggeredBy,
		RealizationOf:           in.RealizationOf,
		InScopeOf:               slices.Clone(in.InScopeOf),
		RequestKey:              in.RequestKey,
		RecordedAt:              s.clock().UTC(),
	}
	if newResource != nil {
		res := *newResource
		res.ClassifiedAs = slices.Clone(newResource.ClassifiedAs)
		e.NewInventoriedResource = &res
		e.ResourceInventoriedAs = s.newID()
	}
	return e
}

// current returns the latest projection of resourceID. Callers hold its lock.
func (s *Service) current(ctx context.Context, resourceID string) (EconomicResource, error) {
	if s.cache != nil {
		if r, ok := s.loadSnapshot(ctx, resourceID); ok {
			return r, nil
		}
	}
	r, err := s.fold(ctx, resourceID)
	if err != nil {
		return EconomicResource{}, err
	}
	if s.cache != nil {
		if err := s.cache.Save(ctx, r); err != nil {
			s.logger.Warn("save projection snapshot", slog.String("resource_id", resourceID), slog.Any("error", err))
		}
	}
	return r, nil
}

func (s *Service) loadSnapshot(ctx context.Context, resourceID string) (EconomicResource, bool) {
	r, ok, err := s.cache.Load(ctx, resourceID)
	if err != nil {
		s.logger.Warn("load projection snapshot", slog.String("resource_id", resourceID), slog.Any("error", err))
		return EconomicResource{}, false
	}
	if ok {
		s.metrics.ObserveProjectionRead("cache")
	}
	return r, ok
}

func (s *Service) fold(ctx context.Context, resourceID string) (EconomicResource, error) {
	history, err := s.History(ctx, resourceID)
	if err != nil {
		return EconomicResource{}, err
	}
	r, err := Project(resourceID, history)
	if err != nil {
		return EconomicResource{}, err
	}
	s.metrics.ObserveProjectionRead("fold")
	return r, nil
}

// refreshSnapshots stores the new projections. The log is already durable, so
// a failed save only drops the snapshots and asks for an asynchronous rebuild.
func (s *Service) refreshSnapshots(ctx context.Context, updated []EconomicResource) {
	if s.cache == nil {
		return
	}
	err := s.cache.Save(ctx, updated...)
	if err == nil {
		return
	}
	ids := make([]string, 0, len(updated))
	for _, r := range updated {
		ids = append(ids, r.ID)
	}
	s.logger.Warn("save projection snapshots", slog.Any("resources", ids), slog.Any("error", err))
	s.dropSnapshots(ctx, ids)
}

// dropSnapshots invalidates ids so the next read refolds from the log, and
// asks for an asynchronous rebuild of each.
func (s *Service) dropSnapshots(ctx context.Context, ids []string) {
	if err := s.cache.Invalidate(ctx, ids...); err != nil {
		s.logger.Error("invalidate projection snapshots", slog.Any("resources", ids), slog.Any("error", err))
	}
	if s.rebuilds == nil {
		return
	}
	for _, id := range ids {
		if err := s.rebuilds.ScheduleRebuild(ctx, id); err != nil {
			s.logger.Error("schedule projection rebuild", slog.String("resource_id", id), slog.Any("error", err))
		}
	}
}

// release ends a critical section. When the lease did not survive until now,
// another writer may have folded from the same base, so snapshots written
// under it are dropped.
func (s *Service) release(ctx context.Context, unlock func() error, ids ...string) {
	err := unlock()
	switch {
	case err == nil:
	case errors.Is(err, ErrLockLost):
		s.logger.Warn("critical section outlived its lock", slog.Any("resources", ids), slog.Any("error", err))
		if s.cache != nil {
			s.dropSnapshots(context.WithoutCancel(ctx), ids)
		}
	default:
		s.logger.Warn("release resource lock", slog.Any("resources", ids), slog.Any("error", err))
	}
}

func (s *Service) rejected(action string, err error) error {
	if IsValidationError(err) {
		s.metrics.ObserveEvent(action, "rejected")
		s.logger.Info("economic event rejected", slog.String("action", action), slog.Any("error", err))
		return err
	}
	s.metrics.ObserveEvent(action, "failed")
	return err
}

func storageErr(op string, err error) error {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrDuplicateRequest) || errors.Is(err, ErrStorage) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}
