package gateway

import (
	"context"

	"promptguessr/internal/game"
)

// NotifyGenerationProgress implements orchestrator.Notifier: one prompt's
// image generation settled, so every connection in the room gets a fresh
// image_progress snapshot. Throttling to one broadcast per completion falls
// out naturally since RunGeneration calls this once per prompt.
func (g *Gateway) NotifyGenerationProgress(_ context.Context, room *game.Room, _ string) {
	g.hub.Broadcast(room.ID, EventImageProgress, imageProgressPayload{Game: room.Game})
}

// NotifyPromptRejected implements orchestrator.Notifier: unicast to the
// submitter only.
func (g *Gateway) NotifyPromptRejected(_ context.Context, room *game.Room, playerID string) {
	g.hub.Unicast(room.ID, playerID, EventPromptRejected, promptRejectedPayload{PlayerID: playerID, Reason: "content_policy"})
}

// NotifyRoundTransition implements orchestrator.Notifier: every prompt in the
// round has settled with none rejected (failed prompts do not hold it back),
// so the round has moved to image_select.
func (g *Gateway) NotifyRoundTransition(_ context.Context, room *game.Room) {
	round := room.Game.CurrentRoundPtr()
	if round == nil {
		return
	}
	g.hub.Broadcast(room.ID, EventPhaseTransition, phaseTransitionPayload{Game: room.Game, Phase: string(round.Status)})
	g.hub.Broadcast(room.ID, EventRoomUpdate, roomUpdatePayload{Room: room})
	g.reschedulePhaseTimer(room)
}

// NotifyScored implements orchestrator.Notifier: scoring finished and the
// round moved to reveal_results.
func (g *Gateway) NotifyScored(_ context.Context, room *game.Room) {
	round := room.Game.CurrentRoundPtr()
	if round == nil {
		return
	}
	g.hub.Broadcast(room.ID, EventPhaseTransition, phaseTransitionPayload{Game: room.Game, Phase: string(round.Status)})
	g.hub.Broadcast(room.ID, EventRoomUpdate, roomUpdatePayload{Room: room})
	g.reschedulePhaseTimer(room)
}
