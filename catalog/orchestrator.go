package catalog

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/catalogarchive/archiver/telemetry"
)

// Orchestrator is C8: per-uploader lifecycle driver. It owns the bounded
// queue, starts the producer and the worker pool, waits for the producer to
// finish, then posts one sentinel per worker behind the items still queued
// (so workers consume those first), joins workers, and applies the
// inter-uploader delay before moving to the next uploader (spec.md §4.8).
type Orchestrator struct {
	store     *Store
	producer  *Producer
	delay     *DelayPolicy
	poolSize  int
	queueSize int
	newPool   func() *Pool
}

func NewOrchestrator(store *Store, producer *Producer, delay *DelayPolicy, poolSize, queueSize int, newPool func() *Pool) *Orchestrator {
	return &Orchestrator{store: store, producer: producer, delay: delay, poolSize: poolSize, queueSize: queueSize, newPool: newPool}
}

// RunAll processes every uploader id serially (non-goal: cross-uploader
// parallelism, §1), applying the inter-uploader delay between all but the
// last one.
func (o *Orchestrator) RunAll(ctx context.Context) error {
	ids, err := o.store.ListUploaderIDs(ctx)
	if err != nil {
		return err
	}
	for i, id := range ids {
		o.runOne(ctx, id)
		if i < len(ids)-1 {
			if err := sleepCtx(ctx, o.delay.InterUploaderDelay()); err != nil {
				return err
			}
		}
	}
	return nil
}

// runOne drives one uploader's full producer/worker-pool lifecycle. The
// producer never raises, so failures surface only as logs and a partially
// filled queue — the orchestrator proceeds regardless (§7 propagation policy).
func (o *Orchestrator) runOne(ctx context.Context, uploaderID int64) {
	ctx, span := telemetry.StartSpan(ctx, "catalog-orchestrator", "uploader-pass")
	defer span.End()

	queue := make(chan Video, o.queueSize)
	pool := o.newPool()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		pool.Run(gctx, queue)
		return nil
	})
	g.Go(func() error {
		o.producer.Run(gctx, uploaderID, queue)
		for i := 0; i < pool.Size(); i++ {
			select {
			case queue <- Sentinel:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Warn("orchestrator: uploader pass ended early", slog.Int64("uploader_id", uploaderID), slog.Any("err", err))
		telemetry.RecordError(span, err)
		return
	}
	telemetry.SetSpanSuccess(span)
}
