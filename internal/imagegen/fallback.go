package imagegen

import (
	"context"

	"promptguessr/internal/game"
)

// FallbackGenerator retries once on a secondary provider when the primary
// fails transiently. A content-policy verdict from either provider is final
// and is re-raised as-is: it is a judgment about the prompt, not the
// provider, so a second opinion would not change the outcome.
type FallbackGenerator struct {
	primary  Generator
	fallback Generator
}

func (f *FallbackGenerator) Name() string { return f.primary.Name() }

func (f *FallbackGenerator) Generate(ctx context.Context, prompt string, count int, ownerPlayerID string) ([]*game.GeneratedImage, error) {
	images, err := f.primary.Generate(ctx, prompt, count, ownerPlayerID)
	if err == nil || IsContentPolicy(err) {
		return images, err
	}
	return f.fallback.Generate(ctx, prompt, count, ownerPlayerID)
}
