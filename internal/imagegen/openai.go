package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"promptguessr/internal/game"
)

// OpenAIGenerator calls the OpenAI image generation endpoint directly over
// net/http, following the same hand-rolled request/response shape the game
// server this was adapted from uses for its chat-completions calls.
type OpenAIGenerator struct {
	apiKey string
	model  string
	client *http.Client
}

// NewOpenAIGenerator builds an OpenAIGenerator. An empty model defaults to
// "dall-e-3".
func NewOpenAIGenerator(apiKey, model string, timeout time.Duration) *OpenAIGenerator {
	if model == "" {
		model = "dall-e-3"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OpenAIGenerator{apiKey: apiKey, model: model, client: &http.Client{Timeout: timeout}}
}

func (g *OpenAIGenerator) Name() string { return ProviderOpenAI }

type openAIImageRequest struct {
	Model string `json:"model"`
	Prompt string `json:"prompt"`
	N      int    `json:"n"`
	Size   string `json:"size"`
}

type openAIImageResponse struct {
	Data []struct {
		URL           string `json:"url"`
		RevisedPrompt string `json:"revised_prompt"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string, count int, ownerPlayerID string) ([]*game.GeneratedImage, error) {
	if strings.TrimSpace(g.apiKey) == "" {
		return nil, &TransientError{Provider: ProviderOpenAI, cause: fmt.Errorf("OpenAI API key is not configured")}
	}
	started := time.Now()
	reqBody := openAIImageRequest{Model: g.model, Prompt: prompt, N: count, Size: "1024x1024"}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &TransientError{Provider: ProviderOpenAI, cause: err}
	}

	reqCtx, cancel := context.WithTimeout(ctx, g.client.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, "https://api.openai.com/v1/images/generations", bytes.NewReader(payload))
	if err != nil {
		return nil, &TransientError{Provider: ProviderOpenAI, cause: err}
	}
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(g.apiKey))
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, &TransientError{Provider: ProviderOpenAI, cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientError{Provider: ProviderOpenAI, cause: err}
	}

	var parsed openAIImageResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &TransientError{Provider: ProviderOpenAI, cause: err}
	}
	if parsed.Error != nil {
		if parsed.Error.Code == "content_policy_violation" {
			return nil, &ContentPolicyError{Provider: ProviderOpenAI, Reason: parsed.Error.Message}
		}
		return nil, &TransientError{Provider: ProviderOpenAI, cause: fmt.Errorf("%s", parsed.Error.Message)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &TransientError{Provider: ProviderOpenAI, cause: fmt.Errorf("openai request failed (%d)", resp.StatusCode)}
	}

	images := make([]*game.GeneratedImage, 0, len(parsed.Data))
	for _, d := range parsed.Data {
		images = append(images, &game.GeneratedImage{
			ID:           uuid.NewString(),
			PlayerID:     ownerPlayerID,
			ImageURL:     d.URL,
			ThumbnailURL: d.URL,
			Provider:     ProviderOpenAI,
			Status:       game.ImageComplete,
			GeneratedAt:  time.Now(),
			Metadata: game.ImageMetadata{
				Model:          g.model,
				RevisedPrompt:  d.RevisedPrompt,
				GenerationTime: time.Since(started).Seconds(),
			},
		})
	}
	return images, nil
}
