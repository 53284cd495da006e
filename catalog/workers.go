package catalog

import (
	"context"
	"log/slog"

	"golang.org/x/sync/semaphore"

	"github.com/catalogarchive/archiver/telemetry"
)

// VideoSaver is the persistence surface a worker needs (satisfied by *Store).
type VideoSaver interface {
	SaveVideo(ctx context.Context, v Video) error
}

// Sentinel is the queue's out-of-band "stop" marker, posted by the
// orchestrator once per worker after the producer returns, behind any items
// still queued. A real video
// always carries a non-empty ShortID, so the zero value is unambiguous.
var Sentinel = Video{}

func isSentinel(v Video) bool { return v.ShortID == "" }

// Worker is one consumer in C6's pool: it pops videos off the shared queue,
// fetches parts and tags concurrently per item under the pool-wide permit
// semaphore, classifies, and persists atomically. A failure on any one item
// is logged and the worker moves on; it exits only on the sentinel, a closed
// queue, or context cancellation.
type Worker struct {
	client     *Client
	store      VideoSaver
	classifier *Classifier
	permits    *semaphore.Weighted
}

func NewWorker(client *Client, store VideoSaver, classifier *Classifier, permits *semaphore.Weighted) *Worker {
	return &Worker{client: client, store: store, classifier: classifier, permits: permits}
}

// Run drains queue until it pops the sentinel, then returns. It never sends
// on queue and never closes it — the orchestrator owns both sentinel
// posting and channel lifetime.
func (w *Worker) Run(ctx context.Context, queue <-chan Video) {
	for {
		select {
		case v, ok := <-queue:
			if !ok || isSentinel(v) {
				return
			}
			w.process(ctx, v)
		case <-ctx.Done():
			return
		}
	}
}

func (w *Worker) process(ctx context.Context, v Video) {
	if err := w.permits.Acquire(ctx, 1); err != nil {
		slog.Warn("worker: permit acquire aborted", slog.String("bvid", v.ShortID), slog.Any("err", err))
		return
	}
	telemetry.InFlightPermitGauge.Inc()
	defer func() {
		w.permits.Release(1)
		telemetry.InFlightPermitGauge.Dec()
	}()

	ctx, span := telemetry.StartSpan(ctx, "catalog-worker", "process-item")
	defer span.End()

	telemetry.TimeFunc(telemetry.WorkerItemDuration, func() {
		parts, tags, err := w.fetchPartsAndTags(ctx, v.ShortID)
		if err != nil {
			slog.Warn("worker: enrichment failed, item skipped", slog.String("bvid", v.ShortID), slog.Any("err", err))
			telemetry.ItemsFailed.Inc()
			telemetry.RecordError(span, err)
			return
		}

		v.Tags = FilterDiscoveryTags(tags)
		v.Parts = parts
		v.Classification = w.classifier.Classify(v.Tags, v.Classification)

		if err := w.store.SaveVideo(ctx, v); err != nil {
			slog.Warn("worker: persist failed, item skipped", slog.String("bvid", v.ShortID), slog.Any("err", err))
			telemetry.ItemsFailed.Inc()
			telemetry.RecordError(span, err)
			return
		}
		telemetry.ItemsSucceeded.Inc()
		telemetry.SetSpanSuccess(span)
	})
}

// fetchPartsAndTags launches both sub-fetches concurrently and awaits both
// (§4.6 step 2), returning the first error encountered if either fails.
func (w *Worker) fetchPartsAndTags(ctx context.Context, shortID string) ([]VideoPart, []string, error) {
	type partsResult struct {
		parts []VideoPart
		err   error
	}
	type tagsResult struct {
		tags []string
		err  error
	}

	partsCh := make(chan partsResult, 1)
	tagsCh := make(chan tagsResult, 1)

	go func() {
		parts, err := w.client.GetParts(ctx, shortID)
		partsCh <- partsResult{parts, err}
	}()
	go func() {
		tags, err := w.client.GetTags(ctx, shortID)
		tagsCh <- tagsResult{tags, err}
	}()

	pr, tr := <-partsCh, <-tagsCh
	if pr.err != nil {
		return nil, nil, pr.err
	}
	if tr.err != nil {
		return nil, nil, tr.err
	}
	return pr.parts, tr.tags, nil
}

// Pool owns the shared queue read end and launches N workers sharing one
// permit semaphore of size N (§4.6).
type Pool struct {
	workers []*Worker
}

func NewPool(n int, client *Client, store VideoSaver, classifier *Classifier) *Pool {
	permits := semaphore.NewWeighted(int64(n))
	workers := make([]*Worker, n)
	for i := range workers {
		workers[i] = NewWorker(client, store, classifier, permits)
	}
	return &Pool{workers: workers}
}

func (p *Pool) Size() int { return len(p.workers) }

// Run launches all workers against queue and blocks until every one of them
// has exited (i.e. popped its sentinel).
func (p *Pool) Run(ctx context.Context, queue <-chan Video) {
	done := make(chan struct{}, len(p.workers))
	for _, w := range p.workers {
		w := w
		go func() {
			w.Run(ctx, queue)
			done <- struct{}{}
		}()
	}
	for range p.workers {
		<-done
	}
}
