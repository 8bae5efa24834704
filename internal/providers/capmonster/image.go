package capmonster

import (
	"context"
	"encoding/base64"

	"consulta-vehicular-go/internal/platform/errors"
)

type imageToTextTask struct {
	Type    string `json:"type"`
	Body    string `json:"body"`
	Numeric int    `json:"numeric,omitempty"`
	Module  string `json:"CapMonsterModule,omitempty"`
}

// ImageSolver recognizes text in a challenge image. It satisfies the
// voting engine's Solver interface: one call, one guess.
type ImageSolver struct {
	client  *Client
	module  string
	numeric bool
}

// NewImageSolver creates a solver, optionally pinned to a recognition
// module the backend supports for this captcha family. numericOnly
// tells the backend the answer alphabet is digits.
func NewImageSolver(client *Client, module string, numericOnly bool) *ImageSolver {
	return &ImageSolver{client: client, module: module, numeric: numericOnly}
}

func (s *ImageSolver) Name() string {
	if s.module != "" {
		return "capmonster:" + s.module
	}
	return "capmonster"
}

func (s *ImageSolver) Solve(ctx context.Context, image []byte) (string, error) {
	numeric := 0
	if s.numeric {
		numeric = 1
	}
	sol, err := s.client.run(ctx, imageToTextTask{
		Type:    "ImageToTextTask",
		Body:    base64.StdEncoding.EncodeToString(image),
		Numeric: numeric,
		Module:  s.module,
	})
	if err != nil {
		return "", err
	}
	if sol.Text == "" {
		return "", errors.New(errors.KindUpstream, "capmonster.image", "empty recognition result")
	}
	return sol.Text, nil
}
