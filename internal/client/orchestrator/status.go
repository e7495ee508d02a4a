package orchestrator

import (
	"context"
	"errors"
	"log"
	"time"

	"racuni/internal/client/localdb"
)

// Status returns the current sync status.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// Subscribe returns a channel that receives the status after every change,
// starting with the current one. Slow readers only see the latest status.
// The returned func unsubscribes and closes the channel.
func (o *Orchestrator) Subscribe() (<-chan Status, func()) {
	o.mu.Lock()
	defer o.mu.Unlock()

	id := o.nextSub
	o.nextSub++
	ch := make(chan Status, 1)
	ch <- o.status
	o.subs[id] = ch

	return ch, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if _, ok := o.subs[id]; ok {
			delete(o.subs, id)
			close(ch)
		}
	}
}

// refresh reloads queue counts, applies update and notifies subscribers.
func (o *Orchestrator) refresh(ctx context.Context, update func(*Status)) {
	pending, dead, err := o.queue.Counts(context.WithoutCancel(ctx))
	if err != nil {
		log.Printf("[sync] Error counting queue: %v", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if err == nil {
		o.status.Pending = pending
		o.status.Dead = dead
	}
	if update != nil {
		update(&o.status)
	}

	for _, ch := range o.subs {
		select {
		case <-ch:
		default:
		}
		ch <- o.status
	}
}

// Diagnostics returns every queue item with its retry state.
func (o *Orchestrator) Diagnostics(ctx context.Context) ([]localdb.Item, error) {
	return o.queue.Items(ctx)
}

// DeadLetters returns the items that are no longer retried automatically.
func (o *Orchestrator) DeadLetters(ctx context.Context) ([]localdb.Item, error) {
	return o.queue.DeadLetters(ctx)
}

// Retry re-queues a dead item.
func (o *Orchestrator) Retry(ctx context.Context, id string) error {
	if err := o.queue.Retry(ctx, id); err != nil {
		return err
	}
	o.refresh(ctx, nil)
	return nil
}

// Discard drops a dead item.
func (o *Orchestrator) Discard(ctx context.Context, id string) error {
	if err := o.queue.Discard(ctx, id); err != nil {
		return err
	}
	o.refresh(ctx, nil)
	return nil
}

// Trigger requests a sync from Run without waiting for the next tick.
func (o *Orchestrator) Trigger() {
	select {
	case o.trigger <- struct{}{}:
	default:
	}
}

// Run syncs immediately, then on every interval tick and Trigger call, until
// ctx is done.
func (o *Orchestrator) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	o.Trigger()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-o.trigger:
		}

		_, err := o.FullSync(ctx)
		switch {
		case err == nil, errors.Is(err, ErrSyncInProgress):
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			log.Printf("[sync] Sync failed: %v", err)
		}
	}
}
