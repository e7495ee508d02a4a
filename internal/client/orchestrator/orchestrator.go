// Package orchestrator drives the client side of sync: it drains the local
// mutation queue to the server, merges server snapshots into the local
// cache and keeps a status for the UI.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"racuni/internal/client/localdb"
	"racuni/internal/client/remote"
	"racuni/internal/domain/entity"
	"racuni/internal/domain/syncer"
)

var (
	ErrSyncInProgress  = errors.New("sync already in progress")
	ErrUnauthenticated = errors.New("not authenticated")
)

// Queue is the durable local store the orchestrator works on.
type Queue interface {
	Record(ctx context.Context, entityType, entityID string, op entity.Operation, data json.RawMessage) (*localdb.Item, error)
	Ready(ctx context.Context) ([]localdb.Item, error)
	Items(ctx context.Context) ([]localdb.Item, error)
	DeadLetters(ctx context.Context) ([]localdb.Item, error)
	Counts(ctx context.Context) (pending, dead int, err error)
	Complete(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, lastError string, nextAttempt time.Time) error
	MarkDead(ctx context.Context, id, lastError string) error
	Retry(ctx context.Context, id string) error
	Discard(ctx context.Context, id string) error
	MergeRemote(ctx context.Context, entityType, entityID string, data json.RawMessage, updatedAt time.Time) (localdb.MergeOutcome, error)
	PruneRemote(ctx context.Context, entityType string, keep []string) (int, error)
}

// Remote is the server side of the protocol.
type Remote interface {
	Push(ctx context.Context, env syncer.Envelope) (*remote.PushResult, error)
	Pull(ctx context.Context) (*remote.Snapshot, error)
}

var (
	_ Queue  = (*localdb.DB)(nil)
	_ Remote = (*remote.Client)(nil)
)

// Config controls concurrency, timeouts and the retry policy.
type Config struct {
	Workers     int
	CallTimeout time.Duration
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	MaxRetries  int
}

func DefaultConfig() Config {
	return Config{
		Workers:     4,
		CallTimeout: 30 * time.Second,
		BaseBackoff: 2 * time.Second,
		MaxBackoff:  30 * time.Minute,
		MaxRetries:  10,
	}
}

// Backoff returns the delay before attempt n+1 after n failures:
// base * 2^(n-1), capped at MaxBackoff.
func (c Config) Backoff(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := c.BaseBackoff
	for i := 1; i < n; i++ {
		d *= 2
		if d >= c.MaxBackoff {
			return c.MaxBackoff
		}
	}
	return min(d, c.MaxBackoff)
}

// Status is the sync state shown to the user.
type Status struct {
	Pending    int
	Dead       int
	LastPushAt *time.Time
	LastPullAt *time.Time
	LastError  string
	Syncing    bool
}

// PushReport summarises one PushAll round.
type PushReport struct {
	Pushed  int
	Retried int // failed, scheduled for another attempt
	Dead    int
	Skipped int // not attempted this round
}

// PullReport summarises one PullAll round.
type PullReport struct {
	Applied        int
	SkippedPending int
	SkippedStale   int
	Invalid        int
	Removed        int // deleted on the server since the last pull
	Failed         []string // collections the server could not read
}

// SyncReport is the result of FullSync.
type SyncReport struct {
	Push *PushReport
	Pull *PullReport
}

type Orchestrator struct {
	queue    Queue
	remote   Remote
	registry *entity.Registry
	cfg      Config
	now      func() time.Time

	running atomic.Bool
	trigger chan struct{}

	mu      sync.Mutex
	status  Status
	subs    map[int]chan Status
	nextSub int
}

// New creates an orchestrator. Zero fields of cfg take their defaults.
func New(queue Queue, rem Remote, cfg Config) *Orchestrator {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = def.CallTimeout
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = def.BaseBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	return &Orchestrator{
		queue:    queue,
		remote:   rem,
		registry: entity.NewRegistry(),
		cfg:      cfg,
		now:      time.Now,
		trigger:  make(chan struct{}, 1),
		subs:     make(map[int]chan Status),
	}
}

// SetClock replaces the time source used for backoff scheduling.
func (o *Orchestrator) SetClock(now func() time.Time) {
	o.now = now
}

// Record validates a local mutation and queues it. The entity type may be
// any registered token; it is stored under its canonical kind.
func (o *Orchestrator) Record(ctx context.Context, entityType, entityID string, op entity.Operation, data json.RawMessage) (*localdb.Item, error) {
	d, ok := o.registry.Lookup(entityType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", syncer.ErrUnknownEntityType, entityType)
	}
	if op != entity.OpDelete {
		if _, errs := d.Decode(op, data); len(errs) > 0 {
			return nil, errs
		}
	}

	item, err := o.queue.Record(ctx, string(d.Kind), entityID, op, data)
	if err != nil {
		return nil, err
	}
	o.refresh(ctx, nil)
	return item, nil
}

// PushAll drains every ready queue item once.
func (o *Orchestrator) PushAll(ctx context.Context) (*PushReport, error) {
	if !o.begin(ctx) {
		return nil, ErrSyncInProgress
	}
	defer o.end(ctx)

	report, err := o.pushAll(ctx)
	o.refresh(ctx, func(s *Status) {
		t := o.now().UTC()
		s.LastPushAt = &t
		s.LastError = errorText(err)
	})
	return report, err
}

// PullAll fetches the server snapshot and merges it into the local cache.
func (o *Orchestrator) PullAll(ctx context.Context) (*PullReport, error) {
	if !o.begin(ctx) {
		return nil, ErrSyncInProgress
	}
	defer o.end(ctx)

	report, err := o.pullAll(ctx)
	o.refresh(ctx, func(s *Status) {
		if err == nil {
			t := o.now().UTC()
			s.LastPullAt = &t
		}
		s.LastError = errorText(err)
	})
	return report, err
}

// FullSync pushes, then pulls. The pull is skipped when the push could not
// authenticate or failed to read the queue.
func (o *Orchestrator) FullSync(ctx context.Context) (*SyncReport, error) {
	if !o.begin(ctx) {
		return nil, ErrSyncInProgress
	}
	defer o.end(ctx)

	start := time.Now()
	report := &SyncReport{}

	var err error
	report.Push, err = o.pushAll(ctx)
	pushedAt := o.now().UTC()
	if err == nil {
		report.Pull, err = o.pullAll(ctx)
	}

	o.refresh(ctx, func(s *Status) {
		s.LastPushAt = &pushedAt
		if report.Pull != nil && err == nil {
			t := o.now().UTC()
			s.LastPullAt = &t
		}
		s.LastError = errorText(err)
	})

	status := "success"
	if err != nil {
		status = "error"
	}
	runTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", "full"), attribute.String("status", status)))
	log.Printf("[sync] Full sync finished in %s: %s", time.Since(start).Round(time.Millisecond), status)

	return report, err
}

func (o *Orchestrator) begin(ctx context.Context) bool {
	if !o.running.CompareAndSwap(false, true) {
		return false
	}
	o.refresh(ctx, func(s *Status) { s.Syncing = true })
	return true
}

func (o *Orchestrator) end(ctx context.Context) {
	o.running.Store(false)
	o.refresh(ctx, func(s *Status) { s.Syncing = false })
}

type group struct {
	key   string
	items []localdb.Item
}

// groupItems groups items by entity, keeping seq order inside each group and
// ordering groups by their first item.
func groupItems(items []localdb.Item) []*group {
	index := make(map[string]*group)
	var groups []*group
	for _, it := range items {
		key := it.EntityType + "/" + it.EntityID
		g, ok := index[key]
		if !ok {
			g = &group{key: key}
			index[key] = g
			groups = append(groups, g)
		}
		g.items = append(g.items, it)
	}
	return groups
}

// pushRun is the shared state of one PushAll round.
type pushRun struct {
	o *Orchestrator

	mu        sync.Mutex
	report    PushReport
	attempted int
	authErr   error
}

func (r *pushRun) record(fn func(*PushReport)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempted++
	fn(&r.report)
}

func (r *pushRun) unauthenticated() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.authErr
}

func (r *pushRun) setUnauthenticated(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.authErr == nil {
		r.authErr = err
	}
}

type groupJob struct {
	run   *pushRun
	group *group
}

func (j *groupJob) Key() string {
	return j.group.key
}

// Execute pushes the group's items in order and stops at the first failure.
func (j *groupJob) Execute(ctx context.Context) error {
	for _, it := range j.group.items {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := j.run.unauthenticated(); err != nil {
			return err
		}
		if err := j.run.o.pushItem(ctx, j.run, it); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) pushAll(ctx context.Context) (*PushReport, error) {
	items, err := o.queue.Ready(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load sync queue: %w", err)
	}
	if len(items) == 0 {
		return &PushReport{}, nil
	}

	groups := groupItems(items)
	run := &pushRun{o: o}

	p := newPool(min(o.cfg.Workers, len(groups)), len(groups))
	p.start(ctx)
	for _, g := range groups {
		p.submit(&groupJob{run: run, group: g})
	}
	p.wait()

	run.report.Skipped = len(items) - run.attempted
	log.Printf("[sync] Push round: %d pushed, %d retried, %d dead, %d skipped",
		run.report.Pushed, run.report.Retried, run.report.Dead, run.report.Skipped)

	if run.authErr != nil {
		return &run.report, run.authErr
	}
	return &run.report, nil
}

// pushItem sends one item and records the outcome. The HTTP call and the
// bookkeeping are not cancelled with ctx.
func (o *Orchestrator) pushItem(ctx context.Context, run *pushRun, it localdb.Item) error {
	detached := context.WithoutCancel(ctx)
	callCtx, cancel := context.WithTimeout(detached, o.cfg.CallTimeout)
	defer cancel()

	_, err := o.remote.Push(callCtx, syncer.Envelope{
		EntityType: it.EntityType,
		EntityID:   it.EntityID,
		Operation:  it.Operation,
		Data:       it.Payload,
	})
	if err == nil {
		if err := o.queue.Complete(detached, it.ID); err != nil {
			return fmt.Errorf("failed to complete item %s: %w", it.ID, err)
		}
		run.record(func(r *PushReport) { r.Pushed++ })
		itemTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "pushed")))
		return nil
	}

	var rerr *remote.Error
	if !errors.As(err, &rerr) {
		rerr = &remote.Error{Kind: remote.KindNetwork, Message: "push failed", Err: err}
	}

	switch {
	case rerr.Kind == remote.KindAuth:
		authErr := fmt.Errorf("%w: %v", ErrUnauthenticated, rerr)
		run.setUnauthenticated(authErr)
		itemTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "unauthenticated")))
		return authErr

	case !rerr.Retryable() || it.RetryCount+1 >= o.cfg.MaxRetries:
		if err := o.queue.MarkDead(detached, it.ID, rerr.Error()); err != nil {
			return fmt.Errorf("failed to mark item %s dead: %w", it.ID, err)
		}
		run.record(func(r *PushReport) { r.Dead++ })
		itemTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "dead")))
		return rerr

	default:
		next := o.now().Add(o.cfg.Backoff(it.RetryCount + 1))
		if err := o.queue.MarkFailed(detached, it.ID, rerr.Error(), next); err != nil {
			return fmt.Errorf("failed to reschedule item %s: %w", it.ID, err)
		}
		run.record(func(r *PushReport) { r.Retried++ })
		itemTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "retried")))
		return rerr
	}
}

type rowMeta struct {
	ID        string    `json:"id"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (o *Orchestrator) pullAll(ctx context.Context) (*PullReport, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
	defer cancel()

	snap, err := o.remote.Pull(callCtx)
	if err != nil {
		if remote.IsKind(err, remote.KindAuth) {
			return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
		}
		return nil, fmt.Errorf("failed to pull: %w", err)
	}

	report := &PullReport{Failed: snap.Failed}
	for _, d := range o.registry.Descriptors() {
		if slices.Contains(snap.Failed, d.Collection) {
			log.Printf("[sync] Server could not read %s, keeping local copies", d.Collection)
			continue
		}

		rows := snap.Collections[d.Collection]
		if d.Singleton && snap.Settings != nil {
			rows = []json.RawMessage{snap.Settings}
		}

		seen := make([]string, 0, len(rows))
		invalid := 0
		for _, row := range rows {
			var meta rowMeta
			if err := json.Unmarshal(row, &meta); err != nil || meta.ID == "" {
				invalid++
				continue
			}
			seen = append(seen, meta.ID)

			outcome, err := o.queue.MergeRemote(ctx, string(d.Kind), meta.ID, row, meta.UpdatedAt)
			if err != nil {
				return report, err
			}
			mergeTotal.Add(ctx, 1, metric.WithAttributes(
				attribute.String("entity_type", string(d.Kind)),
				attribute.String("outcome", outcome.String()),
			))

			switch outcome {
			case localdb.MergeApplied:
				report.Applied++
			case localdb.MergeSkippedPending:
				report.SkippedPending++
			case localdb.MergeSkippedStale:
				report.SkippedStale++
			}
		}
		report.Invalid += invalid

		// An unreadable row could be any local entity, so nothing is pruned.
		if invalid > 0 {
			continue
		}
		removed, err := o.queue.PruneRemote(ctx, string(d.Kind), seen)
		if err != nil {
			return report, err
		}
		report.Removed += removed
	}

	log.Printf("[sync] Pull merged: %d applied, %d kept pending, %d stale, %d removed",
		report.Applied, report.SkippedPending, report.SkippedStale, report.Removed)
	return report, nil
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
