package catalog

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/catalogarchive/archiver/telemetry"
)

// longRetryDelays is the escalating page-level retry schedule (§4.5 step 1):
// up to 3 tries total, sleeping 30s then 60s between them.
var longRetryDelays = []time.Duration{30 * time.Second, 60 * time.Second, 90 * time.Second}

// Producer is C5: for one uploader, drives paginated listing, expands bundle
// references inline, and pushes discovered videos into a bounded queue. It
// never raises — page-exhaustion aborts only the current uploader, logged
// critical, and Run returns normally either way.
type Producer struct {
	client   *Client
	delay    *DelayPolicy
	pageSize int
	sleep    func(context.Context, time.Duration) error
}

func NewProducer(client *Client, delay *DelayPolicy, pageSize int) *Producer {
	return &Producer{client: client, delay: delay, pageSize: pageSize, sleep: sleepCtx}
}

// Run paginates uploaderID's listing and pushes every discovered video to
// queue exactly once, expanding bundle references as it goes (invariant 3).
// queue is the only channel of output; Run closes no resources and never
// sends a sentinel — that is the orchestrator's responsibility.
func (p *Producer) Run(ctx context.Context, uploaderID int64, queue chan<- Video) {
	seenBundles := make(map[int64]struct{})

	firstPage, err := p.fetchPageWithLongRetry(ctx, uploaderID, 1)
	if err != nil {
		slog.Error("producer: first page exhausted, aborting uploader",
			slog.Int64("uploader_id", uploaderID), slog.Any("err", err))
		return
	}
	p.delay.UpdateVideoCount(firstPage.Total)
	p.pushPage(ctx, uploaderID, firstPage, seenBundles, queue)

	// totalPages is computed only after the first page succeeds, so a failure
	// on some unrelated branch before this point can never read it undefined.
	totalPages := int(math.Ceil(float64(firstPage.Total) / float64(p.pageSize)))
	for pageNo := 2; pageNo <= totalPages; pageNo++ {
		if err := p.sleep(ctx, p.delay.PageDelay()); err != nil {
			return
		}
		page, err := p.fetchPageWithLongRetry(ctx, uploaderID, pageNo)
		if err != nil {
			slog.Error("producer: page exhausted, aborting uploader",
				slog.Int64("uploader_id", uploaderID), slog.Int("page", pageNo), slog.Any("err", err))
			return
		}
		p.pushPage(ctx, uploaderID, page, seenBundles, queue)
	}
}

// pushPage enqueues page's videos in source order, expanding any unseen
// bundle reference inline in place of the listing entry itself.
func (p *Producer) pushPage(ctx context.Context, uploaderID int64, page ListPage, seenBundles map[int64]struct{}, queue chan<- Video) {
	for _, v := range page.Videos {
		if v.BundleID == nil {
			send(ctx, queue, v)
			telemetry.VideosEnqueued.Inc()
			continue
		}
		bundleID := *v.BundleID
		if _, seen := seenBundles[bundleID]; seen {
			continue
		}
		seenBundles[bundleID] = struct{}{}
		telemetry.BundlesExpanded.Inc()

		for _, bv := range p.client.ListBundle(ctx, uploaderID, bundleID) {
			send(ctx, queue, bv)
			telemetry.VideosEnqueued.Inc()
		}
	}
}

func send(ctx context.Context, queue chan<- Video, v Video) {
	select {
	case queue <- v:
		telemetry.SetQueueDepth(len(queue))
	case <-ctx.Done():
	}
}

// fetchPageWithLongRetry wraps ListUploaderPage with the page-level long-interval
// retry policy (§4.5 step 1), distinct from and layered atop C2's own
// short-interval retries performed inside the client/requester.
func (p *Producer) fetchPageWithLongRetry(ctx context.Context, uploaderID int64, pageNo int) (ListPage, error) {
	ctx, span := telemetry.StartSpan(ctx, "catalog-producer", "fetch-page")
	defer span.End()

	var lastErr, abortErr error
	var page ListPage
	var ok bool
	telemetry.TimeFunc(telemetry.PageFetchDuration, func() {
		for attempt := 0; attempt < len(longRetryDelays); attempt++ {
			var err error
			page, err = p.client.ListUploaderPage(ctx, uploaderID, pageNo, p.pageSize)
			if err == nil {
				ok = true
				return
			}
			lastErr = err
			if attempt == len(longRetryDelays)-1 {
				return
			}
			if sleepErr := p.sleep(ctx, longRetryDelays[attempt]); sleepErr != nil {
				abortErr = sleepErr
				return
			}
		}
	})
	switch {
	case ok:
		telemetry.PagesFetched.Inc()
		telemetry.SetSpanSuccess(span)
		return page, nil
	case abortErr != nil:
		telemetry.RecordError(span, abortErr)
		return ListPage{}, abortErr
	default:
		telemetry.PagesExhausted.Inc()
		err := &PageFetchExhaustedError{UploaderID: uploaderID, Page: pageNo, Attempts: len(longRetryDelays), Cause: lastErr}
		telemetry.RecordError(span, err)
		return ListPage{}, err
	}
}
