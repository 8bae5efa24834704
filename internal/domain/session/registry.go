// Package session tracks manual challenge-solving sessions, each one
// owning a live browser page waiting for a human answer.
package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"consulta-vehicular-go/internal/domain/captcha"
	"consulta-vehicular-go/internal/platform/errors"
	"consulta-vehicular-go/internal/platform/logging"
)

// Flow is the portal-specific side of a manual session: submitting an
// answer through the live page, refreshing the challenge image on that
// same page, parsing an accepted result, and releasing the page.
type Flow interface {
	Submit(ctx context.Context, answer string) (string, captcha.Verdict, error)
	RefreshImage(ctx context.Context) ([]byte, error)
	Parse(raw string, verdict captcha.Verdict) any
	Close()
}

// Session binds an opaque id to one live automation context and the
// challenge image the client was shown.
type Session struct {
	ID        string
	Kind      string
	Params    map[string]string
	CreatedAt time.Time
	Image     []byte

	flow      Flow
	closeOnce sync.Once
}

// release closes the underlying automation context exactly once,
// whichever removal path gets here first.
func (s *Session) release() {
	s.closeOnce.Do(func() {
		if s.flow != nil {
			s.flow.Close()
		}
	})
}

// Config bounds the registry.
type Config struct {
	TTL       time.Duration
	Capacity  int
	AnswerLen int
}

// Registry is the shared session map. All mutations are serialized.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	cfg      Config
	now      func() time.Time
	logger   *logging.Logger
}

type Option func(*Registry)

// WithClock injects a time source so TTL behavior is testable without
// real delays.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

func NewRegistry(cfg Config, logger *logging.Logger, opts ...Option) *Registry {
	if cfg.TTL <= 0 {
		cfg.TTL = 120 * time.Second
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = 50
	}
	if cfg.AnswerLen <= 0 {
		cfg.AnswerLen = 6
	}
	r := &Registry{
		sessions: make(map[string]*Session),
		cfg:      cfg,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create sweeps expired sessions, makes room for the newcomer by
// evicting the oldest when the registry is full, then registers a new
// session under an unguessable id.
func (r *Registry) Create(kind string, params map[string]string, image []byte, flow Flow) *Session {
	r.mu.Lock()
	r.cleanupLocked()
	r.evictOverLocked(r.cfg.Capacity - 1)

	s := &Session{
		ID:        uuid.NewString(),
		Kind:      kind,
		Params:    params,
		CreatedAt: r.now(),
		Image:     image,
		flow:      flow,
	}
	r.sessions[s.ID] = s
	count := len(r.sessions)
	r.mu.Unlock()

	r.logger.InfoTag("Session", "created %s kind=%s (active=%d)", s.ID, kind, count)
	return s
}

func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, errors.New(errors.KindNotFound, "session.get", "session not found or expired")
	}
	return s, nil
}

// SubmitOutcome is what RecordAnswer hands back: either a parsed result
// on acceptance, or a refreshed challenge image with the session kept
// alive for another try.
type SubmitOutcome struct {
	Accepted bool
	Verdict  captcha.Verdict
	Result   any
	Image    []byte
}

// RecordAnswer pushes a client-provided answer through the session's
// live page. Acceptance releases the context and removes the session;
// rejection refreshes the stored image and resets the session's age.
func (r *Registry) RecordAnswer(ctx context.Context, id, answer string) (SubmitOutcome, error) {
	if captcha.CleanAnswer(answer, r.cfg.AnswerLen) == "" {
		return SubmitOutcome{}, errors.New(errors.KindValidation, "session.answer",
			fmt.Sprintf("answer must be exactly %d digits", r.cfg.AnswerLen))
	}

	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		s.CreatedAt = r.now()
	}
	r.mu.Unlock()
	if !ok {
		return SubmitOutcome{}, errors.New(errors.KindNotFound, "session.answer", "session not found or expired")
	}

	raw, verdict, err := s.flow.Submit(ctx, answer)
	if err != nil {
		r.remove(id)
		return SubmitOutcome{}, errors.Wrap(errors.KindUpstream, "session.answer", "submit answer", err)
	}

	if verdict.Accepted() {
		result := s.flow.Parse(raw, verdict)
		r.remove(id)
		return SubmitOutcome{Accepted: true, Verdict: verdict, Result: result}, nil
	}

	fresh, err := s.flow.RefreshImage(ctx)
	if err != nil {
		r.remove(id)
		return SubmitOutcome{}, errors.Wrap(errors.KindUpstream, "session.answer", "refresh challenge image", err)
	}

	r.mu.Lock()
	if cur, still := r.sessions[id]; still {
		cur.Image = fresh
		cur.CreatedAt = r.now()
	}
	r.mu.Unlock()

	return SubmitOutcome{Accepted: false, Verdict: verdict, Image: fresh}, nil
}

// Close removes a session explicitly, releasing its context.
func (r *Registry) Close(id string) {
	r.remove(id)
}

// Cleanup applies the TTL sweep and capacity eviction.
func (r *Registry) Cleanup() {
	r.mu.Lock()
	r.cleanupLocked()
	r.mu.Unlock()
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Shutdown releases every live session.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	doomed := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		doomed = append(doomed, s)
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	for _, s := range doomed {
		s.release()
	}
}

// StartCleanupLoop sweeps in the background until ctx is done.
func (r *Registry) StartCleanupLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Cleanup()
			}
		}
	}()
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if ok {
		s.release()
	}
}

// cleanupLocked expires sessions past the TTL, then evicts oldest-first
// only when the count exceeds the capacity bound; a registry at exactly
// capacity keeps every live session. Caller holds the lock.
func (r *Registry) cleanupLocked() {
	now := r.now()
	for id, s := range r.sessions {
		if now.Sub(s.CreatedAt) > r.cfg.TTL {
			delete(r.sessions, id)
			s.release()
			r.logger.InfoTag("Session", "expired %s", id)
		}
	}
	r.evictOverLocked(r.cfg.Capacity)
}

// evictOverLocked removes oldest sessions until at most limit remain.
// Caller holds the lock.
func (r *Registry) evictOverLocked(limit int) {
	if limit < 0 {
		limit = 0
	}
	if len(r.sessions) <= limit {
		return
	}
	remaining := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		remaining = append(remaining, s)
	}
	sort.Slice(remaining, func(i, j int) bool {
		return remaining[i].CreatedAt.Before(remaining[j].CreatedAt)
	})
	for len(remaining) > limit {
		oldest := remaining[0]
		remaining = remaining[1:]
		delete(r.sessions, oldest.ID)
		oldest.release()
		r.logger.InfoTag("Session", "evicted %s (capacity)", oldest.ID)
	}
}
