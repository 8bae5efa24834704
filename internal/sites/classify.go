package sites

import (
	"strings"

	"consulta-vehicular-go/internal/domain/captcha"
)

// Signals describes how a portal's post-submit page reads. Positive
// markers prove a populated result and override any negative text on
// the same page; empty markers are the portal explicitly saying the
// query matched nothing, which still counts as an accepted challenge.
type Signals struct {
	Positive []string
	Empty    []string
}

// Classify applies the shared acceptance heuristic to raw page text.
func Classify(raw string, sig Signals) captcha.Verdict {
	upper := strings.ToUpper(raw)
	for _, marker := range sig.Positive {
		if strings.Contains(upper, strings.ToUpper(marker)) {
			return captcha.VerdictAccepted
		}
	}
	for _, marker := range sig.Empty {
		if strings.Contains(upper, strings.ToUpper(marker)) {
			return captcha.VerdictAcceptedEmpty
		}
	}
	return captcha.VerdictRejected
}
