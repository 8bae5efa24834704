package captcha

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	platerrors "consulta-vehicular-go/internal/platform/errors"
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

func grayPNG(t *testing.T, w, h int, fill func(x, y int) uint8) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: fill(x, y)})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestOtsuThresholdClamped(t *testing.T) {
	tests := []struct {
		name string
		fill func(x, y int) uint8
	}{
		{"all black", func(x, y int) uint8 { return 0 }},
		{"all white", func(x, y int) uint8 { return 255 }},
		{"single mid value", func(x, y int) uint8 { return 140 }},
		{"bimodal", func(x, y int) uint8 {
			if x < 10 {
				return 30
			}
			return 220
		}},
		{"gradient", func(x, y int) uint8 { return uint8((x * 255) / 20) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := image.NewGray(image.Rect(0, 0, 20, 10))
			for y := 0; y < 10; y++ {
				for x := 0; x < 20; x++ {
					img.SetGray(x, y, color.Gray{Y: tt.fill(x, y)})
				}
			}
			got := OtsuThreshold(img)
			if got < 90 || got > 210 {
				t.Errorf("OtsuThreshold = %d, expected within [90,210]", got)
			}
		})
	}
}

func TestPreprocessModes(t *testing.T) {
	src := grayPNG(t, 30, 12, func(x, y int) uint8 {
		if (x+y)%3 == 0 {
			return 40
		}
		return 200
	})

	if out, err := Preprocess(src, ModeOriginal, 0); err != nil || !bytes.Equal(out, src) {
		t.Errorf("ModeOriginal should return input untouched (err=%v)", err)
	}

	for _, mode := range []Mode{ModeGray, ModeBinary} {
		out, err := Preprocess(src, mode, 0)
		if err != nil {
			t.Fatalf("Preprocess(%s) error: %v", mode, err)
		}
		img, _, err := image.Decode(bytes.NewReader(out))
		if err != nil {
			t.Fatalf("decode %s variant: %v", mode, err)
		}
		// Upscaled 2x.
		if img.Bounds().Dx() != 60 || img.Bounds().Dy() != 24 {
			t.Errorf("%s variant bounds = %v, expected 60x24", mode, img.Bounds())
		}
	}

	out, err := Preprocess(src, ModeBinary, 118)
	if err != nil {
		t.Fatalf("Preprocess binary 118: %v", err)
	}
	img, _, _ := image.Decode(bytes.NewReader(out))
	gray := img.(*image.Gray)
	b := gray.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if v := gray.GrayAt(x, y).Y; v != 0 && v != 255 {
				t.Fatalf("binary variant has intermediate value %d at (%d,%d)", v, x, y)
			}
		}
	}
}

func TestCleanAnswer(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"123456", "123456"},
		{" 12 34-56 ", "123456"},
		{"a1b2c3d4e5f6", "123456"},
		{"12345", ""},
		{"1234567", ""},
		{"abcdef", ""},
	}
	for _, tt := range tests {
		if got := CleanAnswer(tt.raw, 6); got != tt.want {
			t.Errorf("CleanAnswer(%q) = %q, expected %q", tt.raw, got, tt.want)
		}
	}
}

// scriptedSolver returns its answers in order, one per Solve call.
type scriptedSolver struct {
	answers []string
	calls   int
}

func (s *scriptedSolver) Name() string { return "scripted" }

func (s *scriptedSolver) Solve(ctx context.Context, image []byte) (string, error) {
	if s.calls >= len(s.answers) {
		return "", errors.New("exhausted")
	}
	answer := s.answers[s.calls]
	s.calls++
	if answer == "" {
		return "", errors.New("no recognition")
	}
	return answer, nil
}

func TestCandidatesDistinctAndBounded(t *testing.T) {
	src := grayPNG(t, 20, 10, func(x, y int) uint8 { return uint8(x * 12) })
	solver := &scriptedSolver{answers: []string{"111111", "111111", "222222", "333333", "444444"}}
	engine := NewEngine(solver, testLogger(t))

	got := engine.Candidates(context.Background(), src, 3)
	if len(got) != 3 {
		t.Fatalf("got %d candidates, expected 3", len(got))
	}
	seen := map[string]bool{}
	for _, c := range got {
		if seen[c.Text] {
			t.Errorf("duplicate candidate %q", c.Text)
		}
		seen[c.Text] = true
	}
	if got[0].Text != "111111" || got[1].Text != "222222" {
		t.Errorf("candidates out of plan order: %+v", got)
	}
}

func TestCandidatesEmptyPlanExhausted(t *testing.T) {
	src := grayPNG(t, 20, 10, func(x, y int) uint8 { return 128 })
	solver := &scriptedSolver{answers: []string{"", "", "", "", ""}}
	engine := NewEngine(solver, testLogger(t))

	if got := engine.Candidates(context.Background(), src, 4); len(got) != 0 {
		t.Errorf("expected no candidates, got %+v", got)
	}
}

func TestSolveAndSubmitFirstAcceptedWins(t *testing.T) {
	src := grayPNG(t, 20, 10, func(x, y int) uint8 { return uint8(x * 10) })
	solver := &scriptedSolver{answers: []string{"111111", "222222", "333333", "444444", "555555"}}
	engine := NewEngine(solver, testLogger(t))

	var submitted []string
	raw, verdict, err := engine.SolveAndSubmit(context.Background(), src, 4, 3, SubmitHooks{
		Submit: func(ctx context.Context, answer string) (string, error) {
			submitted = append(submitted, answer)
			if answer == "222222" {
				return "RESULTADO", nil
			}
			return "captcha incorrecto", nil
		},
		Classify: func(raw string) Verdict {
			if raw == "RESULTADO" {
				return VerdictAccepted
			}
			return VerdictRejected
		},
	})
	if err != nil {
		t.Fatalf("SolveAndSubmit error: %v", err)
	}
	if verdict != VerdictAccepted || raw != "RESULTADO" {
		t.Errorf("verdict=%v raw=%q", verdict, raw)
	}
	if len(submitted) != 2 {
		t.Errorf("expected submission to stop after acceptance, got %v", submitted)
	}
}

func TestSolveAndSubmitUnresolved(t *testing.T) {
	src := grayPNG(t, 20, 10, func(x, y int) uint8 { return uint8(x * 10) })
	solver := &scriptedSolver{answers: []string{"111111", "222222", "333333", "444444", "555555"}}
	engine := NewEngine(solver, testLogger(t))

	_, verdict, err := engine.SolveAndSubmit(context.Background(), src, 4, 1, SubmitHooks{
		Submit:   func(ctx context.Context, answer string) (string, error) { return "error", nil },
		Classify: func(raw string) Verdict { return VerdictRejected },
	})
	if err == nil {
		t.Fatal("expected unresolved error")
	}
	if !platerrors.IsKind(err, platerrors.KindChallenge) {
		t.Errorf("expected challenge kind, got %v", err)
	}
	if verdict.Accepted() {
		t.Error("verdict should not be accepted")
	}
}
