package browser

import (
	"context"
	"testing"

	platformconfig "consulta-vehicular-go/internal/platform/config"
	platformtesting "consulta-vehicular-go/internal/platform/testing"
)

func newTestPool(t *testing.T, maxSize int) *Pool {
	t.Helper()
	logger := platformtesting.SetupTestLogger(t)
	return NewPool(NewDriver(platformconfig.BrowserConfig{}, logger), platformconfig.PoolConfig{MaxSize: maxSize}, logger)
}

func TestPoolParkBoundedByMaxSize(t *testing.T) {
	p := newTestPool(t, 2)

	if !p.park(&Context{}) || !p.park(&Context{}) {
		t.Fatal("expected room for two idle contexts")
	}
	if p.park(&Context{}) {
		t.Error("expected park to refuse a third context at MaxSize=2")
	}
	if got := p.Stats()["available"]; got != 2 {
		t.Errorf("available = %d, expected 2", got)
	}
}

func TestPoolAcquireReusesParkedContext(t *testing.T) {
	p := newTestPool(t, 4)

	first, second := &Context{}, &Context{}
	p.park(first)
	p.park(second)

	got, err := p.Acquire(context.Background())
	platformtesting.AssertNoError(t, err)
	if got != second {
		t.Error("expected the most recently parked context first")
	}
	got, err = p.Acquire(context.Background())
	platformtesting.AssertNoError(t, err)
	if got != first {
		t.Error("expected the remaining parked context")
	}
	if got := p.Stats()["in_use"]; got != 2 {
		t.Errorf("in_use = %d, expected 2", got)
	}
}

func TestPoolParkRefusedAfterClose(t *testing.T) {
	p := newTestPool(t, 4)
	p.Close()

	if p.park(&Context{}) {
		t.Error("expected park to refuse contexts after Close")
	}
	if _, err := p.Acquire(context.Background()); err == nil {
		t.Error("expected Acquire to fail on a closed pool")
	}
}
