package capmonster

import (
	"context"

	"consulta-vehicular-go/internal/platform/errors"
)

type turnstileTask struct {
	Type       string `json:"type"`
	WebsiteURL string `json:"websiteURL"`
	WebsiteKey string `json:"websiteKey"`
	PageAction string `json:"pageAction,omitempty"`
	Data       string `json:"data,omitempty"`
	UserAgent  string `json:"userAgent,omitempty"`
}

// TurnstileRequest carries everything captured from the page that the
// token backend needs to produce a valid token.
type TurnstileRequest struct {
	PageURL   string
	SiteKey   string
	Action    string
	Data      string
	UserAgent string
}

// TokenSolver obtains solved interactive-challenge tokens.
type TokenSolver struct {
	client *Client
}

func NewTokenSolver(client *Client) *TokenSolver {
	return &TokenSolver{client: client}
}

func (s *TokenSolver) Solve(ctx context.Context, req TurnstileRequest) (string, error) {
	sol, err := s.client.run(ctx, turnstileTask{
		Type:       "TurnstileTaskProxyless",
		WebsiteURL: req.PageURL,
		WebsiteKey: req.SiteKey,
		PageAction: req.Action,
		Data:       req.Data,
		UserAgent:  req.UserAgent,
	})
	if err != nil {
		return "", err
	}
	if sol.Token == "" {
		return "", errors.New(errors.KindUpstream, "capmonster.turnstile", "backend returned no token")
	}
	return sol.Token, nil
}
