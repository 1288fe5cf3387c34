package imagegen

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"promptguessr/internal/game"
)

// MockGenerator returns deterministic per-prompt placeholder URLs after a
// simulated 0.5-1.5s generation delay, for local development and tests that
// don't want a real provider dependency.
type MockGenerator struct {
	mu   sync.Mutex
	rand *rand.Rand
}

// NewMockGenerator returns a MockGenerator.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{rand: rand.New(rand.NewSource(1))}
}

func (m *MockGenerator) Name() string { return ProviderMock }

func (m *MockGenerator) Generate(ctx context.Context, prompt string, count int, ownerPlayerID string) ([]*game.GeneratedImage, error) {
	m.mu.Lock()
	jitter := m.rand.Int63n(int64(time.Second))
	m.mu.Unlock()
	delay := 500*time.Millisecond + time.Duration(jitter)
	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return nil, &TransientError{Provider: ProviderMock, cause: ctx.Err()}
	}
	seed := promptSeed(prompt)
	images := make([]*game.GeneratedImage, 0, count)
	for i := 0; i < count; i++ {
		url := fmt.Sprintf("https://picsum.photos/seed/%s-%d/512/512", seed, i)
		images = append(images, &game.GeneratedImage{
			ID:           uuid.NewString(),
			PlayerID:     ownerPlayerID,
			ImageURL:     url,
			ThumbnailURL: url,
			Provider:     ProviderMock,
			Status:       game.ImageComplete,
			GeneratedAt:  time.Now(),
			Metadata:     game.ImageMetadata{Model: "mock-diffusion-v0", GenerationTime: delay.Seconds()},
		})
	}
	return images, nil
}

func promptSeed(prompt string) string {
	sum := sha1.Sum([]byte(prompt))
	return hex.EncodeToString(sum[:8])
}
