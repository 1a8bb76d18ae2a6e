package poller

import (
	"context"
	"sync"
	"time"
)

const DefaultInterval = 20 * time.Second

// FetchFunc pulls the latest snapshot and replaces local state wholesale,
// so duplicated or skipped polls cannot corrupt anything.
type FetchFunc func(ctx context.Context) error

// Visibility reports whether the consumer is currently visible. Hidden
// consumers skip scheduled polls to bound background cost.
type Visibility interface {
	Visible() bool
}

type alwaysVisible struct{}

func (alwaysVisible) Visible() bool { return true }

// AlwaysVisible is the Visibility for headless consumers.
var AlwaysVisible Visibility = alwaysVisible{}

type Logger interface {
	Printf(format string, args ...any)
}

type Options struct {
	Interval   time.Duration
	Fetch      FetchFunc
	Visibility Visibility
	Logger     Logger

	// ticks overrides the interval ticker in tests.
	ticks <-chan time.Time
}

// Poller is the fallback pull loop shadowing a realtime channel. It polls
// on a fixed interval while the channel is not ready and goes quiet the
// moment the channel confirms its subscription.
type Poller struct {
	interval time.Duration
	fetch    FetchFunc
	vis      Visibility
	logger   Logger
	ticks    <-chan time.Time

	mu      sync.Mutex
	ready   bool
	started bool
	stopped bool
	stop    chan struct{}
	kick    chan struct{}
	done    chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
}

func New(opts Options) *Poller {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	vis := opts.Visibility
	if vis == nil {
		vis = AlwaysVisible
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Poller{
		interval: interval,
		fetch:    opts.Fetch,
		vis:      vis,
		logger:   opts.Logger,
		ticks:    opts.ticks,
		stop:     make(chan struct{}),
		kick:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (p *Poller) Start() {
	p.mu.Lock()
	if p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()
	go p.run()
}

// SetReady flips the realtime handoff: ready=true silences the poller
// before its next tick, ready=false resumes polling with an immediate
// catch-up fetch.
func (p *Poller) SetReady(ready bool) {
	p.mu.Lock()
	was := p.ready
	p.ready = ready
	p.mu.Unlock()
	if was && !ready {
		p.requestFetch()
	}
}

// NotifyVisible forces an immediate fetch after the consumer becomes
// visible again.
func (p *Poller) NotifyVisible() {
	p.requestFetch()
}

func (p *Poller) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	started := p.started
	close(p.stop)
	p.mu.Unlock()
	p.cancel()
	if started {
		<-p.done
	}
}

func (p *Poller) requestFetch() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

func (p *Poller) run() {
	defer close(p.done)
	ticks := p.ticks
	if ticks == nil {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		ticks = ticker.C
	}
	for {
		select {
		case <-p.stop:
			return
		case <-ticks:
			if p.shouldPoll(true) {
				p.doFetch()
			}
		case <-p.kick:
			if p.shouldPoll(false) {
				p.doFetch()
			}
		}
	}
}

func (p *Poller) shouldPoll(gateVisibility bool) bool {
	p.mu.Lock()
	ready := p.ready
	stopped := p.stopped
	p.mu.Unlock()
	if ready || stopped {
		return false
	}
	if gateVisibility && !p.vis.Visible() {
		return false
	}
	return true
}

func (p *Poller) doFetch() {
	if p.fetch == nil {
		return
	}
	if err := p.fetch(p.ctx); err != nil {
		p.logf("poll fetch failed: %v", err)
	}
}

func (p *Poller) logf(format string, args ...any) {
	if p.logger == nil {
		return
	}
	p.logger.Printf(format, args...)
}
