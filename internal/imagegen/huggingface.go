package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"promptguessr/internal/game"
)

// HuggingFaceGenerator calls the Hugging Face Inference API's text-to-image
// endpoint once per requested image: unlike OpenAI, a single call returns
// exactly one image.
type HuggingFaceGenerator struct {
	apiKey string
	model  string
	client *http.Client
}

// NewHuggingFaceGenerator builds a HuggingFaceGenerator. An empty model
// defaults to a widely available Stable Diffusion checkpoint.
func NewHuggingFaceGenerator(apiKey, model string, timeout time.Duration) *HuggingFaceGenerator {
	if model == "" {
		model = "stabilityai/stable-diffusion-xl-base-1.0"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HuggingFaceGenerator{apiKey: apiKey, model: model, client: &http.Client{Timeout: timeout}}
}

func (g *HuggingFaceGenerator) Name() string { return ProviderHuggingFace }

type huggingFaceRequest struct {
	Inputs string `json:"inputs"`
}

type huggingFaceError struct {
	Error         string  `json:"error"`
	EstimatedTime float64 `json:"estimated_time"`
}

func (g *HuggingFaceGenerator) Generate(ctx context.Context, prompt string, count int, ownerPlayerID string) ([]*game.GeneratedImage, error) {
	if strings.TrimSpace(g.apiKey) == "" {
		return nil, &TransientError{Provider: ProviderHuggingFace, cause: fmt.Errorf("Hugging Face API key is not configured")}
	}
	images := make([]*game.GeneratedImage, 0, count)
	for i := 0; i < count; i++ {
		img, err := g.generateOne(ctx, prompt, ownerPlayerID)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, nil
}

func (g *HuggingFaceGenerator) generateOne(ctx context.Context, prompt, ownerPlayerID string) (*game.GeneratedImage, error) {
	started := time.Now()
	payload, err := json.Marshal(huggingFaceRequest{Inputs: prompt})
	if err != nil {
		return nil, &TransientError{Provider: ProviderHuggingFace, cause: err}
	}

	reqCtx, cancel := context.WithTimeout(ctx, g.client.Timeout)
	defer cancel()

	url := "https://api-inference.huggingface.co/models/" + g.model
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, &TransientError{Provider: ProviderHuggingFace, cause: err}
	}
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(g.apiKey))
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, &TransientError{Provider: ProviderHuggingFace, cause: err}
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientError{Provider: ProviderHuggingFace, cause: err}
	}

	if resp.StatusCode == http.StatusUnprocessableEntity {
		return nil, &ContentPolicyError{Provider: ProviderHuggingFace, Reason: string(body)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || strings.HasPrefix(contentType, "application/json") {
		var hfErr huggingFaceError
		if err := json.Unmarshal(body, &hfErr); err == nil && hfErr.Error != "" {
			return nil, &TransientError{Provider: ProviderHuggingFace, cause: fmt.Errorf("%s", hfErr.Error)}
		}
		return nil, &TransientError{Provider: ProviderHuggingFace, cause: fmt.Errorf("huggingface request failed (%d)", resp.StatusCode)}
	}

	dataURL := "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(body)
	return &game.GeneratedImage{
		ID:           uuid.NewString(),
		PlayerID:     ownerPlayerID,
		ImageURL:     dataURL,
		ThumbnailURL: dataURL,
		Provider:     ProviderHuggingFace,
		Status:       game.ImageComplete,
		GeneratedAt:  time.Now(),
		Metadata:     game.ImageMetadata{Model: g.model, GenerationTime: time.Since(started).Seconds()},
	}, nil
}
