// Package orchestrator calls into image generation and scoring on the room
// and game service's behalf, running outside the request that triggered it
// so a submit_prompt or submit_guess call never blocks on a model call.
package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"promptguessr/internal/game"
	"promptguessr/internal/gamesvc"
	"promptguessr/internal/imagegen"
)

// pacingDelay staggers progress notifications so clients have time to render
// each image as it lands instead of seeing them all appear at once.
const pacingDelay = 100 * time.Millisecond

// Notifier is how the orchestrator reports back to the session gateway for
// fan-out. Every method receives the freshly persisted room so the gateway
// can broadcast a coherent snapshot without re-fetching it.
type Notifier interface {
	NotifyGenerationProgress(ctx context.Context, room *game.Room, playerID string)
	NotifyPromptRejected(ctx context.Context, room *game.Room, playerID string)
	NotifyRoundTransition(ctx context.Context, room *game.Room)
	NotifyScored(ctx context.Context, room *game.Room)
}

// Orchestrator wires the room service to the image generator and scorer.
type Orchestrator struct {
	manager   *gamesvc.Manager
	generator imagegen.Generator
	score     func(prompt, guess string) int
	notifier  Notifier
	imageCount func(*game.Room) int
	log       *slog.Logger
}

// New builds an Orchestrator.
func New(manager *gamesvc.Manager, generator imagegen.Generator, score func(prompt, guess string) int, notifier Notifier, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		manager:   manager,
		generator: generator,
		score:     score,
		notifier:  notifier,
		imageCount: func(r *game.Room) int { return r.Settings.ImageCount },
		log:       log,
	}
}

// RunGeneration is triggered once a submitPrompt call reports every player
// has submitted. It generates images for every pending prompt in the round
// concurrently and reconverges on the room's transition once all of them
// have settled.
func (o *Orchestrator) RunGeneration(ctx context.Context, roomID string) {
	room, err := o.manager.GetRoom(ctx, roomID)
	if err != nil {
		o.log.Error("orchestrator: failed to load room for generation", "room_id", roomID, "error", err)
		return
	}
	round := room.Game.CurrentRoundPtr()
	if round == nil {
		return
	}
	imageCount := o.imageCount(room)

	pending := make([]string, 0, len(round.Prompts))
	for playerID, submission := range round.Prompts {
		if submission.Status == game.SubmissionPending {
			pending = append(pending, playerID)
		}
	}

	group, gctx := errgroup.WithContext(ctx)
	for _, playerID := range pending {
		playerID := playerID
		prompt := round.Prompts[playerID].Prompt
		group.Go(func() error {
			o.generateOne(gctx, roomID, playerID, prompt, imageCount)
			return nil
		})
	}
	_ = group.Wait()

	room, err = o.manager.GetRoom(ctx, roomID)
	if err != nil {
		o.log.Error("orchestrator: failed to reload room after generation", "room_id", roomID, "error", err)
		return
	}
	round = room.Game.CurrentRoundPtr()
	done, rejected := game.GenerationOutcome(round)
	if !done {
		return
	}
	if len(rejected) > 0 {
		return
	}
	o.notifier.NotifyRoundTransition(ctx, room)
}

// generateOne runs one player's prompt through image generation and feeds
// the outcome back through the room service, notifying the gateway either
// way.
func (o *Orchestrator) generateOne(ctx context.Context, roomID, playerID, prompt string, imageCount int) {
	outcome := o.generate(ctx, playerID, prompt, imageCount)
	room, _, rejected, err := o.manager.ApplyGenerationResult(ctx, roomID, playerID, outcome)
	if room == nil {
		o.log.Error("orchestrator: failed to apply generation result", "room_id", roomID, "player_id", playerID, "error", err)
		return
	}
	time.Sleep(pacingDelay)
	if len(rejected) > 0 {
		for _, rejectedPlayerID := range rejected {
			if rejectedPlayerID == playerID {
				o.notifier.NotifyPromptRejected(ctx, room, playerID)
			}
		}
	}
	o.notifier.NotifyGenerationProgress(ctx, room, playerID)
}

func (o *Orchestrator) generate(ctx context.Context, playerID, prompt string, imageCount int) game.PromptOutcome {
	images, err := o.generator.Generate(ctx, prompt, imageCount, playerID)
	switch {
	case err == nil:
		return game.PromptOutcome{Images: images}
	case imagegen.IsContentPolicy(err):
		o.log.Info("orchestrator: prompt rejected by content policy", "player_id", playerID)
		return game.PromptOutcome{ContentPolicy: true}
	default:
		o.log.Warn("orchestrator: image generation failed", "player_id", playerID, "error", err)
		return game.PromptOutcome{Transient: true}
	}
}

// RunResubmit drives resubmitPrompt's synchronous call into image
// generation: unlike RunGeneration, the caller is waiting on this one, so it
// runs in the calling goroutine rather than being fired and forgotten.
func (o *Orchestrator) RunResubmit(ctx context.Context, roomID, playerID, text string) (*game.Room, bool, error) {
	room, err := o.manager.BeginResubmitPrompt(ctx, roomID, playerID, text)
	if err != nil {
		return nil, false, err
	}
	imageCount := o.imageCount(room)
	outcome := o.generate(ctx, playerID, text, imageCount)
	room, done, rejected, err := o.manager.ApplyGenerationResult(ctx, roomID, playerID, outcome)
	if room == nil {
		return nil, false, err
	}
	shouldTransition := done && len(rejected) == 0
	return room, shouldTransition, err
}

// RunScoring is triggered when submitGuess reports a transition to scoring.
func (o *Orchestrator) RunScoring(ctx context.Context, roomID string) {
	room, err := o.manager.ScoreRound(ctx, roomID, o.score)
	if err != nil {
		o.log.Error("orchestrator: scoring failed", "room_id", roomID, "error", err)
		return
	}
	o.notifier.NotifyScored(ctx, room)
}
