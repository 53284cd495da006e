package catalog

import (
	"math/rand"
	"sync"
	"time"
)

// UserSwitchConfig parameterizes the inter-uploader delay formula (spec.md
// §4.3 / §6 "USER_SWITCH_CONFIG").
type UserSwitchConfig struct {
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	FactorPerVideo time.Duration
	JitterRatio    float64
}

// DelayPolicy is C3: pure functions/state computing per-request, inter-page,
// and inter-uploader delays. Its inter-uploader state is single-writer
// (the producer, once per uploader) / single-reader (the orchestrator,
// once per uploader) by construction since uploaders are processed serially;
// the mutex exists only so the type remains safe if that ever changes, per
// the design notes' guidance to avoid a true process-global singleton.
type DelayPolicy struct {
	requestDelay  func() time.Duration
	pageDelay     time.Duration
	switchConfig  UserSwitchConfig
	mu            sync.Mutex
	lastVideoCnt  int
}

// NewDelayPolicy builds a DelayPolicy. requestDelay defaults to a uniform
// jittered 1-3s draw (the source's single-digit-second per-request pacing)
// when nil.
func NewDelayPolicy(requestDelay func() time.Duration, pageDelay time.Duration, switchConfig UserSwitchConfig) *DelayPolicy {
	if requestDelay == nil {
		requestDelay = defaultRequestDelay
	}
	return &DelayPolicy{
		requestDelay: requestDelay,
		pageDelay:    pageDelay,
		switchConfig: switchConfig,
	}
}

func defaultRequestDelay() time.Duration {
	return time.Duration(1000+rand.Intn(2000)) * time.Millisecond
}

// RequestDelay draws a per-request pacing delay.
func (p *DelayPolicy) RequestDelay() time.Duration { return p.requestDelay() }

// PageDelay is the fixed inter-page delay the producer sleeps between
// consecutive listing pages (after the first).
func (p *DelayPolicy) PageDelay() time.Duration { return p.pageDelay }

// UpdateVideoCount is called exactly once per uploader, by the producer,
// when it learns the uploader's total video count.
func (p *DelayPolicy) UpdateVideoCount(count int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastVideoCnt = count
}

// InterUploaderDelay is read exactly once per uploader, by the orchestrator,
// between uploaders. Formula from spec.md §4.3:
//
//	dynamic = count * FACTOR_PER_VIDEO
//	capped  = min(BASE + dynamic, MAX)
//	final   = max(0, capped + U(-capped*JITTER, +capped*JITTER))
func (p *DelayPolicy) InterUploaderDelay() time.Duration {
	p.mu.Lock()
	count := p.lastVideoCnt
	p.mu.Unlock()

	dynamic := time.Duration(count) * p.switchConfig.FactorPerVideo
	capped := p.switchConfig.BaseDelay + dynamic
	if capped > p.switchConfig.MaxDelay {
		capped = p.switchConfig.MaxDelay
	}

	jitterSpan := float64(capped) * p.switchConfig.JitterRatio
	jitter := time.Duration(rand.Float64()*2*jitterSpan - jitterSpan)

	final := capped + jitter
	if final < 0 {
		final = 0
	}
	return final
}
