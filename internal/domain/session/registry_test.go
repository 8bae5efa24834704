package session

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"consulta-vehicular-go/internal/domain/captcha"
	"consulta-vehicular-go/internal/platform/errors"
	"consulta-vehicular-go/internal/platform/logging"
)

func testLogger(t *testing.T) *logging.Logger {
	t.Helper()
	logger, err := logging.New(logging.Config{Level: "error"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return logger
}

// fakeFlow counts releases and scripts submit verdicts.
type fakeFlow struct {
	closed    atomic.Int32
	verdict   captcha.Verdict
	raw       string
	submitErr error
	refreshed []byte
}

func (f *fakeFlow) Submit(ctx context.Context, answer string) (string, captcha.Verdict, error) {
	return f.raw, f.verdict, f.submitErr
}

func (f *fakeFlow) RefreshImage(ctx context.Context) ([]byte, error) {
	if f.refreshed == nil {
		return []byte("fresh"), nil
	}
	return f.refreshed, nil
}

func (f *fakeFlow) Parse(raw string, verdict captcha.Verdict) any {
	return map[string]any{"raw": raw}
}

func (f *fakeFlow) Close() { f.closed.Add(1) }

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestRegistry(t *testing.T, cfg Config, clock *fakeClock) *Registry {
	t.Helper()
	r := NewRegistry(cfg, testLogger(t), WithClock(clock.now))
	t.Cleanup(r.Shutdown)
	return r
}

func TestRegistryLifecycle(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	r := newTestRegistry(t, Config{TTL: 2 * time.Minute, Capacity: 50}, clock)

	flow := &fakeFlow{}
	s := r.Create("by-document", map[string]string{"dni": "12345678"}, []byte("img"), flow)
	if s.ID == "" {
		t.Fatal("expected non-empty session id")
	}

	got, err := r.Get(s.ID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if string(got.Image) != "img" {
		t.Errorf("unexpected stored image: %q", got.Image)
	}

	r.Close(s.ID)
	if _, err := r.Get(s.ID); !errors.IsKind(err, errors.KindNotFound) {
		t.Errorf("expected not-found after close, got %v", err)
	}
	if flow.closed.Load() != 1 {
		t.Errorf("context released %d times, expected exactly once", flow.closed.Load())
	}

	// Closing again must not double-release.
	r.Close(s.ID)
	if flow.closed.Load() != 1 {
		t.Errorf("double release detected: %d", flow.closed.Load())
	}
}

func TestRegistryTTLExpiry(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	r := newTestRegistry(t, Config{TTL: 2 * time.Minute, Capacity: 50}, clock)

	flow := &fakeFlow{}
	s := r.Create("by-document", nil, []byte("img"), flow)

	clock.advance(121 * time.Second)
	r.Cleanup()

	if _, err := r.Get(s.ID); !errors.IsKind(err, errors.KindNotFound) {
		t.Errorf("expected expired session to be gone, got %v", err)
	}
	if flow.closed.Load() != 1 {
		t.Errorf("expired session released %d times", flow.closed.Load())
	}
}

func TestRegistryCapacityEvictsOldest(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	r := newTestRegistry(t, Config{TTL: time.Hour, Capacity: 3}, clock)

	flows := make([]*fakeFlow, 4)
	ids := make([]string, 4)
	for i := 0; i < 4; i++ {
		flows[i] = &fakeFlow{}
		ids[i] = r.Create("by-document", nil, []byte("img"), flows[i]).ID
		clock.advance(time.Second)
	}

	if r.Len() != 3 {
		t.Fatalf("len = %d, expected capacity 3", r.Len())
	}
	if _, err := r.Get(ids[0]); !errors.IsKind(err, errors.KindNotFound) {
		t.Errorf("oldest session should be evicted, got %v", err)
	}
	if flows[0].closed.Load() != 1 {
		t.Errorf("evicted session released %d times", flows[0].closed.Load())
	}
	for i := 1; i < 4; i++ {
		if _, err := r.Get(ids[i]); err != nil {
			t.Errorf("session %d should survive: %v", i, err)
		}
		if flows[i].closed.Load() != 0 {
			t.Errorf("surviving session %d was released", i)
		}
	}
}

func TestCleanupKeepsSessionsAtExactCapacity(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	r := newTestRegistry(t, Config{TTL: time.Hour, Capacity: 3}, clock)

	flows := make([]*fakeFlow, 3)
	ids := make([]string, 3)
	for i := 0; i < 3; i++ {
		flows[i] = &fakeFlow{}
		ids[i] = r.Create("by-document", nil, []byte("img"), flows[i]).ID
		clock.advance(time.Second)
	}

	r.Cleanup()

	if r.Len() != 3 {
		t.Fatalf("len = %d after sweep at exact capacity, expected 3", r.Len())
	}
	for i, id := range ids {
		if _, err := r.Get(id); err != nil {
			t.Errorf("session %d should survive the sweep: %v", i, err)
		}
		if flows[i].closed.Load() != 0 {
			t.Errorf("session %d was released by the sweep", i)
		}
	}
}

func TestRecordAnswerAccepted(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	r := newTestRegistry(t, Config{TTL: time.Minute, Capacity: 10}, clock)

	flow := &fakeFlow{verdict: captcha.VerdictAccepted, raw: "RESULT"}
	s := r.Create("by-document", nil, []byte("img"), flow)

	out, err := r.RecordAnswer(context.Background(), s.ID, "123456")
	if err != nil {
		t.Fatalf("RecordAnswer error: %v", err)
	}
	if !out.Accepted {
		t.Error("expected acceptance")
	}
	if out.Result == nil {
		t.Error("expected parsed result")
	}
	if _, err := r.Get(s.ID); !errors.IsKind(err, errors.KindNotFound) {
		t.Errorf("accepted session should be removed, got %v", err)
	}
	if flow.closed.Load() != 1 {
		t.Errorf("accepted session released %d times", flow.closed.Load())
	}
}

func TestRecordAnswerRejectedKeepsSession(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	r := newTestRegistry(t, Config{TTL: time.Minute, Capacity: 10}, clock)

	flow := &fakeFlow{verdict: captcha.VerdictRejected, refreshed: []byte("fresh-img")}
	s := r.Create("by-document", nil, []byte("img"), flow)
	created := s.CreatedAt

	clock.advance(30 * time.Second)
	out, err := r.RecordAnswer(context.Background(), s.ID, "654321")
	if err != nil {
		t.Fatalf("RecordAnswer error: %v", err)
	}
	if out.Accepted {
		t.Error("expected rejection")
	}
	if string(out.Image) != "fresh-img" {
		t.Errorf("expected refreshed image, got %q", out.Image)
	}

	got, err := r.Get(s.ID)
	if err != nil {
		t.Fatalf("rejected session should stay alive: %v", err)
	}
	if string(got.Image) != "fresh-img" {
		t.Errorf("stored image not replaced: %q", got.Image)
	}
	if !got.CreatedAt.After(created) {
		t.Error("createdAt should be refreshed on rejection")
	}
	if flow.closed.Load() != 0 {
		t.Error("rejected session must not release its context")
	}
}

func TestRecordAnswerValidation(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	r := newTestRegistry(t, Config{TTL: time.Minute, Capacity: 10}, clock)

	if _, err := r.RecordAnswer(context.Background(), "whatever", "12ab"); !errors.IsKind(err, errors.KindValidation) {
		t.Errorf("expected validation error for malformed answer, got %v", err)
	}
	if _, err := r.RecordAnswer(context.Background(), "missing-id", "123456"); !errors.IsKind(err, errors.KindNotFound) {
		t.Errorf("expected not-found for unknown session, got %v", err)
	}
}

func TestRecordAnswerValidationMessageUsesConfiguredLength(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	r := newTestRegistry(t, Config{TTL: time.Minute, Capacity: 10, AnswerLen: 4}, clock)

	_, err := r.RecordAnswer(context.Background(), "whatever", "12")
	if !errors.IsKind(err, errors.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if msg := errors.PublicMessage(err); !strings.Contains(msg, "4 digits") {
		t.Errorf("message %q should name the configured answer length", msg)
	}
}
