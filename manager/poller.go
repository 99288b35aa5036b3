package manager

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tavolo/tavolo-api/services"
	"github.com/tavolo/tavolo-api/store"
)

// Poller reloads the cache from the backend at a fixed interval. While the
// host view is hidden the poller is paused: ticks are skipped rather than
// queued, so resuming never replays a burst of missed reloads. Orders with a
// mutation in flight are skip-merged; the next tick after the guard clears
// picks up the server truth.
type Poller struct {
	api        services.OrderAPI
	cache      *store.Cache
	reconciler *Reconciler
	interval   time.Duration
	log        *zap.Logger

	mu     sync.Mutex
	paused bool
}

// NewPoller creates a poller over the given backend client and cache.
func NewPoller(api services.OrderAPI, cache *store.Cache, reconciler *Reconciler, interval time.Duration, log *zap.Logger) *Poller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Poller{
		api:        api,
		cache:      cache,
		reconciler: reconciler,
		interval:   interval,
		log:        log,
	}
}

// Pause suspends polling, typically because the dashboard view went hidden.
func (p *Poller) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = true
}

// Resume re-enables polling. The next reload happens on the next tick.
func (p *Poller) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = false
}

// Paused reports whether the poller is currently suspended.
func (p *Poller) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// Refresh performs one bulk reload immediately, regardless of pause state.
// Used for the initial load and for NotFound recovery.
func (p *Poller) Refresh(ctx context.Context) error {
	orders, err := p.api.ListOrders(ctx)
	if err != nil {
		return err
	}
	p.cache.Reload(orders, p.reconciler.Busy)
	p.log.Debug("order cache reloaded", zap.Int("orders", len(orders)))
	return nil
}

// Run polls until the context is cancelled. A failed reload is logged and
// retried on the next tick; previous cache contents stay in place.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if p.Paused() {
				continue
			}
			if err := p.Refresh(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				p.log.Warn("order poll failed", zap.Error(err))
			}
		}
	}
}
