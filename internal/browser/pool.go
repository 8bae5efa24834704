package browser

import (
	"context"
	"sync"

	"consulta-vehicular-go/internal/platform/config"
	"consulta-vehicular-go/internal/platform/errors"
	"consulta-vehicular-go/internal/platform/logging"
)

// Pool keeps warm browsing contexts so lookups do not pay the context
// creation cost on every request. Contexts returned by Acquire are
// exclusively owned until released or dropped. Idle contexts are held
// in a bounded list and destroyed explicitly, never left to the GC.
type Pool struct {
	driver *Driver
	cfg    config.PoolConfig
	logger *logging.Logger

	mu        sync.Mutex
	idle      []*Context
	closed    bool
	created   int64
	destroyed int64
	inUse     int64
}

func NewPool(driver *Driver, cfg config.PoolConfig, logger *logging.Logger) *Pool {
	return &Pool{driver: driver, cfg: cfg, logger: logger}
}

// Acquire hands out an idle context, creating one when none is parked.
func (p *Pool) Acquire(ctx context.Context) (*Context, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, errors.New(errors.KindInternal, "pool.acquire", "context pool closed")
	}
	if n := len(p.idle); n > 0 {
		bc := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.inUse++
		p.mu.Unlock()
		return bc, nil
	}
	p.mu.Unlock()

	bc, err := p.driver.Open(ctx)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.created++
	p.inUse++
	p.mu.Unlock()
	return bc, nil
}

// Release resets a context back to a blank page and parks it; a context
// that fails the reset, or that the idle list has no room for, is
// destroyed instead.
func (p *Pool) Release(ctx context.Context, bc *Context) {
	if bc == nil {
		return
	}
	p.mu.Lock()
	p.inUse--
	p.mu.Unlock()

	if err := bc.Navigate(ctx, "about:blank", navigateResetTimeout); err != nil {
		p.logger.WarnTag("Browser", "context reset failed, dropping: %v", err)
		p.destroy(bc)
		return
	}
	if !p.park(bc) {
		p.destroy(bc)
	}
}

// Drop destroys a context without returning it to the pool. Used when a
// lookup left the page in an unknown state.
func (p *Pool) Drop(bc *Context) {
	if bc == nil {
		return
	}
	p.mu.Lock()
	p.inUse--
	p.mu.Unlock()
	p.destroy(bc)
}

// park appends to the idle list unless the pool is closed or the list
// already holds MaxSize contexts.
func (p *Pool) park(bc *Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	if p.cfg.MaxSize > 0 && len(p.idle) >= p.cfg.MaxSize {
		return false
	}
	p.idle = append(p.idle, bc)
	return true
}

func (p *Pool) destroy(bc *Context) {
	bc.Close()
	p.mu.Lock()
	p.destroyed++
	p.mu.Unlock()
}

// Warmup pre-creates contexts up to the configured minimum.
func (p *Pool) Warmup(ctx context.Context) {
	for i := 0; i < p.cfg.MinSize; i++ {
		bc, err := p.Acquire(ctx)
		if err != nil {
			p.logger.WarnTag("Browser", "warmup: %v", err)
			return
		}
		p.Release(ctx, bc)
	}
}

// Stats exposes a snapshot of pool utilisation for monitoring.
func (p *Pool) Stats() map[string]int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return map[string]int64{
		"total":     p.created - p.destroyed,
		"in_use":    p.inUse,
		"available": int64(len(p.idle)),
	}
}

// Close marks the pool closed and destroys every idle context; contexts
// released afterwards are destroyed rather than parked.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	drained := p.idle
	p.idle = nil
	p.mu.Unlock()
	for _, bc := range drained {
		p.destroy(bc)
	}
}
