package captcha

import (
	"context"

	"consulta-vehicular-go/internal/platform/errors"
)

// Verdict classifies what a portal did with a submitted answer.
type Verdict int

const (
	// VerdictRejected means the captcha answer was not accepted.
	VerdictRejected Verdict = iota
	// VerdictAccepted means the answer unlocked a populated result.
	VerdictAccepted
	// VerdictAcceptedEmpty means the answer was accepted but the query
	// matched no records.
	VerdictAcceptedEmpty
)

// Accepted reports whether the verdict counts as a solved challenge.
func (v Verdict) Accepted() bool {
	return v == VerdictAccepted || v == VerdictAcceptedEmpty
}

// SubmitHooks are the portal-specific pieces of the solve-and-submit
// loop. Submit posts one answer through the live page and returns the
// raw result text. Classify decides what the portal did with it.
// Refresh obtains a new challenge image on the same page after a failed
// round; it may be nil when the portal does not allow refreshing.
type SubmitHooks struct {
	Submit   func(ctx context.Context, answer string) (string, error)
	Classify func(raw string) Verdict
	Refresh  func(ctx context.Context) ([]byte, error)
}

// SolveAndSubmit runs the full loop: generate candidates for the image,
// try each in order against the live page, and on a fully rejected round
// refresh the image and try again, up to attempts rounds. First accepted
// answer wins and stops everything.
func (e *Engine) SolveAndSubmit(ctx context.Context, image []byte, maxCandidates, attempts int, hooks SubmitHooks) (string, Verdict, error) {
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if hooks.Refresh == nil {
				break
			}
			fresh, err := hooks.Refresh(ctx)
			if err != nil {
				return "", VerdictRejected, errors.Wrap(errors.KindUpstream, "captcha.refresh", "refresh challenge image", err)
			}
			image = fresh
		}

		candidates := e.Candidates(ctx, image, maxCandidates)
		if len(candidates) == 0 {
			continue
		}

		for _, cand := range candidates {
			raw, err := hooks.Submit(ctx, cand.Text)
			if err != nil {
				return "", VerdictRejected, errors.Wrap(errors.KindUpstream, "captcha.submit", "submit answer", err)
			}
			verdict := hooks.Classify(raw)
			if verdict.Accepted() {
				return raw, verdict, nil
			}
		}
	}

	return "", VerdictRejected, errors.New(errors.KindChallenge, "captcha.solve", "challenge unresolved after all candidates")
}
