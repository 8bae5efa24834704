// Package vision extracts owner names from result screenshots when a
// portal renders them as an image instead of text.
package vision

import (
	"context"
	"encoding/base64"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"consulta-vehicular-go/internal/platform/config"
	"consulta-vehicular-go/internal/platform/errors"
	"consulta-vehicular-go/internal/platform/logging"
)

const ownerPrompt = "La imagen muestra el resultado de una consulta de registro vehicular. " +
	"Devuelve solo los nombres completos de los propietarios, uno por linea, sin texto adicional. " +
	"Si no hay propietarios visibles devuelve NINGUNO."

// garbageWords are table headers and labels the model sometimes echoes
// back instead of names.
var garbageWords = map[string]bool{
	"NINGUNO": true, "PLACA": true, "PARTIDA": true, "ESTADO": true,
	"PROPIETARIO": true, "PROPIETARIOS": true, "SERIE": true, "MOTOR": true,
	"MARCA": true, "MODELO": true, "COLOR": true, "RESULTADO": true,
}

// Extractor reads owner names out of a screenshot via a vision model.
type Extractor struct {
	client *openai.Client
	model  string
	logger *logging.Logger
}

// NewExtractor returns nil when vision extraction is disabled; callers
// treat a nil extractor as "feature off".
func NewExtractor(cfg config.VisionConfig, logger *logging.Logger) *Extractor {
	if !cfg.Enabled || cfg.APIKey == "" {
		return nil
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &Extractor{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		logger: logger,
	}
}

// Owners returns the owner names visible in a PNG screenshot, already
// filtered of table labels. An empty slice means none were readable.
func (e *Extractor) Owners(ctx context.Context, png []byte) ([]string, error) {
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     e.model,
		MaxTokens: 300,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: ownerPrompt},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURL,
							Detail: openai.ImageURLDetailAuto,
						},
					},
				},
			},
		},
	})
	if err != nil {
		return nil, errors.Wrap(errors.KindUpstream, "vision.owners", "vision completion", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New(errors.KindUpstream, "vision.owners", "empty completion")
	}

	return FilterOwnerLines(resp.Choices[0].Message.Content), nil
}

// FilterOwnerLines keeps lines that plausibly are person names and
// drops labels, separators and the explicit NINGUNO marker.
func FilterOwnerLines(raw string) []string {
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(strings.Trim(line, "-*• \t"))
		if line == "" {
			continue
		}
		upper := strings.ToUpper(line)
		if garbageWords[upper] {
			continue
		}
		if len(strings.Fields(upper)) < 2 {
			continue
		}
		out = append(out, upper)
	}
	return out
}
