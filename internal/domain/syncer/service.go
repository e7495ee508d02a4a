package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"racuni/internal/domain/entity"
)

var (
	syncMeter           = otel.Meter("racuni/sync")
	pushTotal, _        = syncMeter.Int64Counter("sync.push.total", metric.WithDescription("Pushed mutations by entity type, operation and outcome"))
	pullKindFailures, _ = syncMeter.Int64Counter("sync.pull.kind_failures", metric.WithDescription("Per-kind fetch failures during pull and debug"))
)

// applier is the per-kind dispatch record resolved once at startup.
type applier struct {
	descriptor entity.Descriptor
	apply      map[entity.Operation]func(context.Context, Mutation) error
}

// Service implements push, pull and diagnostics on top of a Store.
type Service struct {
	registry *entity.Registry
	store    Store
	appliers map[entity.Kind]applier
	now      func() time.Time
}

// NewService creates a new sync service
func NewService(registry *entity.Registry, store Store) *Service {
	s := &Service{
		registry: registry,
		store:    store,
		appliers: make(map[entity.Kind]applier),
		now:      time.Now,
	}
	for _, d := range registry.Descriptors() {
		s.appliers[d.Kind] = applier{
			descriptor: d,
			apply: map[entity.Operation]func(context.Context, Mutation) error{
				entity.OpCreate: store.Create,
				entity.OpUpdate: store.Update,
				entity.OpDelete: store.Delete,
			},
		}
	}
	return s
}

// Prepare validates an envelope and turns it into a Mutation. It returns
// entity.FieldErrors for structural problems and ErrUnknownEntityType when
// the token is not registered.
func (s *Service) Prepare(userID string, env Envelope) (*Mutation, error) {
	if errs := env.Validate(); len(errs) > 0 {
		return nil, errs
	}

	d, ok := s.registry.Lookup(env.EntityType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntityType, env.EntityType)
	}

	m := &Mutation{
		Descriptor: d,
		UserID:     userID,
		EntityID:   env.EntityID,
		Operation:  env.Operation,
	}
	if env.Operation == entity.OpDelete {
		return m, nil
	}

	decoded, errs := d.Decode(env.Operation, env.Data)
	if len(errs) > 0 {
		return nil, errs
	}
	m.Payload = decoded.Payload
	m.ClientCreatedAt = decoded.ClientCreatedAt
	return m, nil
}

// Push applies a single envelope for userID.
func (s *Service) Push(ctx context.Context, userID string, env Envelope) (*PushResult, error) {
	m, err := s.Prepare(userID, env)
	if err != nil {
		pushTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("entity_type", env.EntityType),
			attribute.String("operation", string(env.Operation)),
			attribute.String("status", "rejected"),
		))
		return nil, err
	}

	a := s.appliers[m.Descriptor.Kind]
	if err := a.apply[m.Operation](ctx, *m); err != nil {
		pushTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("entity_type", string(m.Descriptor.Kind)),
			attribute.String("operation", string(m.Operation)),
			attribute.String("status", "error"),
		))
		return nil, fmt.Errorf("failed to %s %s %s: %w", m.Operation, m.Descriptor.Kind, m.EntityID, err)
	}

	pushTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("entity_type", string(m.Descriptor.Kind)),
		attribute.String("operation", string(m.Operation)),
		attribute.String("status", "success"),
	))

	return &PushResult{
		Operation:  m.Operation,
		EntityType: m.Descriptor.Kind,
		EntityID:   m.EntityID,
	}, nil
}

// Pull returns every live entity of userID. Each kind is fetched on its own;
// a failing kind is logged and returned as an empty list.
func (s *Service) Pull(ctx context.Context, userID string) (*Snapshot, error) {
	if userID == "" {
		return nil, errors.New("valid user ID is required")
	}

	descs := s.registry.Descriptors()
	results := make([][]entity.Record, len(descs))
	errs := make([]error, len(descs))

	var wg sync.WaitGroup
	for i, d := range descs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = s.store.ListLive(ctx, d, userID)
		}()
	}
	wg.Wait()

	snap := &Snapshot{
		Collections: make(map[string][]map[string]any),
		Counts:      make(map[string]int),
		PulledAt:    s.now().UTC(),
	}

	for i, d := range descs {
		if errs[i] != nil {
			log.Printf("Error pulling %s for user %s: %v", d.Collection, userID, errs[i])
			pullKindFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("entity_type", string(d.Kind))))
			snap.Failed = append(snap.Failed, d.Collection)
			results[i] = nil
		}

		if d.Singleton {
			snap.Settings = latest(results[i])
			if snap.Settings != nil {
				snap.Counts[d.Collection] = 1
			} else {
				snap.Counts[d.Collection] = 0
			}
			continue
		}

		rows := make([]map[string]any, 0, len(results[i]))
		for _, rec := range results[i] {
			rows = append(rows, rec.Wire())
		}
		snap.Collections[d.Collection] = rows
		snap.Counts[d.Collection] = len(rows)
	}

	return snap, nil
}

// latest picks the most recently updated record of a singleton kind.
func latest(records []entity.Record) map[string]any {
	if len(records) == 0 {
		return nil
	}
	best := records[0]
	for _, r := range records[1:] {
		if r.UpdatedAt.After(best.UpdatedAt) {
			best = r
		}
	}
	return best.Wire()
}

// Diagnose returns per-kind live counts and latest update times for userID.
func (s *Service) Diagnose(ctx context.Context, userID string) (*Diagnostics, error) {
	if userID == "" {
		return nil, errors.New("valid user ID is required")
	}

	descs := s.registry.Descriptors()
	stats := make([]KindStats, len(descs))
	errs := make([]error, len(descs))

	var wg sync.WaitGroup
	for i, d := range descs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stats[i], errs[i] = s.store.Stats(ctx, d, userID)
		}()
	}
	wg.Wait()

	diag := &Diagnostics{
		UserID:        userID,
		Counts:        make(map[string]int64),
		LatestUpdates: make(map[string]*time.Time),
	}
	for i, d := range descs {
		if errs[i] != nil {
			log.Printf("Error counting %s for user %s: %v", d.Collection, userID, errs[i])
			pullKindFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("entity_type", string(d.Kind))))
			diag.Failed = append(diag.Failed, d.Collection)
			diag.Counts[d.Collection] = 0
			diag.LatestUpdates[d.Collection] = nil
			continue
		}
		diag.Counts[d.Collection] = stats[i].Count
		diag.LatestUpdates[d.Collection] = stats[i].LatestUpdated
	}

	return diag, nil
}
