package orchestrator

import (
	"context"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	pushTracer       = otel.Tracer("racuni/client")
	pushMeter        = otel.Meter("racuni/client")
	groupDuration, _ = pushMeter.Float64Histogram("sync.client.group.duration", metric.WithDescription("Time to push one entity's queued mutations"), metric.WithUnit("s"))
	itemTotal, _     = pushMeter.Int64Counter("sync.client.items", metric.WithDescription("Pushed queue items by outcome"))
	mergeTotal, _    = pushMeter.Int64Counter("sync.client.merge", metric.WithDescription("Pulled entities by merge outcome"))
	runTotal, _      = pushMeter.Int64Counter("sync.client.runs", metric.WithDescription("Sync runs by kind and status"))
)

// job is one unit of pool work: the queued mutations of a single entity.
type job interface {
	Execute(ctx context.Context) error
	Key() string
}

// pool runs jobs on a fixed number of workers. Jobs are queued up front and
// the pool is drained with wait.
type pool struct {
	workers int
	jobs    chan job
	wg      sync.WaitGroup
}

func newPool(workers, queueSize int) *pool {
	if workers < 1 {
		workers = 1
	}
	return &pool{
		workers: workers,
		jobs:    make(chan job, queueSize),
	}
}

// start launches the workers. ctx is handed to every job; the workers stop
// picking up jobs once it is done.
func (p *pool) start(ctx context.Context) {
	for i := 1; i <= p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

func (p *pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	for j := range p.jobs {
		if ctx.Err() != nil {
			// Drain without running so wait returns promptly
			continue
		}
		p.run(ctx, id, j)
	}
}

func (p *pool) run(ctx context.Context, workerID int, j job) {
	ctx, span := pushTracer.Start(ctx, "sync.push_group",
		trace.WithAttributes(
			attribute.Int("worker.id", workerID),
			attribute.String("entity.key", j.Key()),
		),
	)
	defer span.End()

	start := time.Now()
	err := j.Execute(ctx)
	groupDuration.Record(ctx, time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Printf("[sync] Worker %d: %s stopped: %v", workerID, j.Key(), err)
	}
}

// submit queues a job. It blocks while the queue is full.
func (p *pool) submit(j job) {
	p.jobs <- j
}

// wait closes the queue and blocks until every worker has returned.
func (p *pool) wait() {
	close(p.jobs)
	p.wg.Wait()
}
