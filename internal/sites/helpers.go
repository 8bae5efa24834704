package sites

import (
	"context"
	"strings"

	"consulta-vehicular-go/internal/domain/captcha"
	"consulta-vehicular-go/internal/platform/errors"
)

// solveTextCaptcha is the one-shot path for portals whose captcha is
// free-form text: grayscale the image, ask the backend once, keep the
// alphanumeric characters.
func (r *Registry) solveTextCaptcha(ctx context.Context, image []byte) (string, error) {
	variant, err := captcha.Preprocess(image, captcha.ModeGray, 0)
	if err != nil {
		variant = image
	}
	raw, err := r.solver.Solve(ctx, variant)
	if err != nil {
		return "", err
	}
	cleaned := cleanAlnum(raw)
	if cleaned == "" {
		return "", errors.New(errors.KindChallenge, "sites.captcha", "empty recognition result")
	}
	return cleaned, nil
}

func cleanAlnum(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'A' && r <= 'Z':
			sb.WriteRune(r)
		case r >= 'a' && r <= 'z':
			sb.WriteRune(r - 'a' + 'A')
		}
	}
	return sb.String()
}

// containsAny reports whether text contains any marker, ignoring case.
func containsAny(text string, markers ...string) bool {
	lower := strings.ToLower(text)
	for _, m := range markers {
		if strings.Contains(lower, strings.ToLower(m)) {
			return true
		}
	}
	return false
}
