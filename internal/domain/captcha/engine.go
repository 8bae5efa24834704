package captcha

import (
	"context"
	"strings"
	"time"

	"consulta-vehicular-go/internal/platform/logging"
)

// Solver recognizes text in a challenge image. One call, one guess, no
// retries; retrying across variants is this package's job.
type Solver interface {
	Name() string
	Solve(ctx context.Context, image []byte) (string, error)
}

// Candidate is one distinct answer guess with the plan entry that
// produced it.
type Candidate struct {
	Text    string
	Backend string
}

// PlanEntry pairs a preprocessing mode with a binarization threshold
// (0 = compute with Otsu, ignored outside ModeBinary).
type PlanEntry struct {
	Mode      Mode
	Threshold int
}

// DefaultPlan covers the variants that historically break these captchas:
// untouched, cleaned grayscale, and three binarization cuts.
func DefaultPlan() []PlanEntry {
	return []PlanEntry{
		{Mode: ModeOriginal},
		{Mode: ModeGray},
		{Mode: ModeBinary},
		{Mode: ModeBinary, Threshold: 92},
		{Mode: ModeBinary, Threshold: 118},
	}
}

// Engine drives the preprocessing plan through a solver and collects
// distinct fixed-length answer candidates.
type Engine struct {
	solver      Solver
	plan        []PlanEntry
	answerLen   int
	callTimeout time.Duration
	logger      *logging.Logger
}

type EngineOption func(*Engine)

func WithPlan(plan []PlanEntry) EngineOption {
	return func(e *Engine) {
		if len(plan) > 0 {
			e.plan = plan
		}
	}
}

func WithAnswerLen(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.answerLen = n
		}
	}
}

func WithCallTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.callTimeout = d
		}
	}
}

func NewEngine(solver Solver, logger *logging.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		solver:      solver,
		plan:        DefaultPlan(),
		answerLen:   6,
		callTimeout: 10 * time.Second,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Candidates returns up to maxCandidates distinct guesses for one
// challenge image, in plan order. An empty slice means the challenge is
// unresolved; it is a legitimate outcome, not an error.
func (e *Engine) Candidates(ctx context.Context, pngBytes []byte, maxCandidates int) []Candidate {
	if maxCandidates <= 0 {
		return nil
	}

	var out []Candidate
	seen := make(map[string]bool)

	for _, entry := range e.plan {
		if ctx.Err() != nil {
			break
		}

		variant, err := Preprocess(pngBytes, entry.Mode, entry.Threshold)
		if err != nil {
			e.logger.WarnTag("Captcha", "preprocess %s failed: %v", entry.Mode, err)
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
		text, err := e.solver.Solve(callCtx, variant)
		cancel()
		if err != nil {
			e.logger.DebugTag("Captcha", "solver %s on %s: %v", e.solver.Name(), entry.Mode, err)
			continue
		}

		cleaned := CleanAnswer(text, e.answerLen)
		if cleaned == "" || seen[cleaned] {
			continue
		}
		seen[cleaned] = true
		out = append(out, Candidate{Text: cleaned, Backend: e.solver.Name() + ":" + string(entry.Mode)})
		if len(out) >= maxCandidates {
			break
		}
	}
	return out
}

// CleanAnswer strips everything but digits and accepts the guess only
// when exactly length digits remain.
func CleanAnswer(raw string, length int) string {
	var sb strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	if sb.Len() != length {
		return ""
	}
	return sb.String()
}
