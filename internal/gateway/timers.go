package gateway

import (
	"context"
	"sync"
	"time"

	"promptguessr/internal/game"
)

// phaseTimers holds one in-flight time.AfterFunc per room, guarding phases
// that must not wait forever on a player who has gone quiet. It is the
// websocket-era analogue of the HTML server's single-game timer map: rooms
// never block each other since each gets its own *time.Timer.
type phaseTimers struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

func newPhaseTimers() *phaseTimers {
	return &phaseTimers{timers: make(map[string]*time.Timer)}
}

func (t *phaseTimers) schedule(roomID string, duration time.Duration, fire func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.timers[roomID]; ok {
		existing.Stop()
	}
	if duration <= 0 {
		delete(t.timers, roomID)
		return
	}
	t.timers[roomID] = time.AfterFunc(duration, fire)
}

func (t *phaseTimers) cancel(roomID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.timers[roomID]; ok {
		existing.Stop()
		delete(t.timers, roomID)
	}
}

// phaseDuration returns how long room's current phase is allowed to run
// before the gateway force-advances it, per the room's own settings.
func phaseDuration(room *game.Room) time.Duration {
	if room.Game == nil {
		return 0
	}
	switch room.Game.Status {
	case game.PhasePromptSubmit:
		return room.Settings.PromptTimeLimit
	case game.PhaseImageSelect:
		return room.Settings.SelectionTimeLimit
	case game.PhaseRevealGuess:
		return room.Settings.GuessingTimeLimit
	case game.PhaseRevealResults:
		return room.Settings.ResultsTimeLimit
	default:
		return 0
	}
}

// reschedulePhaseTimer re-arms the timer for room's current phase, replacing
// any timer already running for it. Call this after every mutation that may
// have changed room.Game.Status, whether the change came from a player
// action or from a previous timer firing.
func (g *Gateway) reschedulePhaseTimer(room *game.Room) {
	if room == nil || room.Game == nil {
		g.timers.cancel(room.ID)
		return
	}
	phase := room.Game.Status
	roomID := room.ID
	g.timers.schedule(roomID, phaseDuration(room), func() {
		g.autoAdvancePhase(roomID, phase)
	})
}

// autoAdvancePhase fires once expectedPhase has run out its time limit. It
// re-fetches the room first since a player action may have already moved it
// on, in which case this firing is stale and does nothing.
func (g *Gateway) autoAdvancePhase(roomID string, expectedPhase game.Phase) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	room, err := g.manager.GetRoom(ctx, roomID)
	if err != nil || room.Game == nil || room.Game.Status != expectedPhase {
		return
	}

	switch expectedPhase {
	case game.PhasePromptSubmit:
		g.autoAdvancePromptSubmit(ctx, roomID)
	case game.PhaseImageSelect:
		g.autoAdvanceImageSelect(ctx, roomID)
	case game.PhaseRevealGuess:
		g.autoAdvanceRevealGuess(ctx, roomID)
	case game.PhaseRevealResults:
		g.autoAdvanceRevealResults(ctx, roomID)
	}
}

func (g *Gateway) autoAdvancePromptSubmit(ctx context.Context, roomID string) {
	room, filled, allSubmitted, err := g.manager.ForceMissingPrompts(ctx, roomID)
	if err != nil {
		g.log.Warn("gateway: failed to force-fill missing prompts", "room_id", roomID, "error", err)
		return
	}
	for _, playerID := range filled {
		g.hub.Broadcast(roomID, EventPromptSubmitted, promptSubmittedPayload{PlayerID: playerID})
	}
	g.hub.Broadcast(roomID, EventRoomUpdate, roomUpdatePayload{Room: room})
	if allSubmitted && g.orch != nil {
		go g.orch.RunGeneration(context.Background(), roomID)
	}
	g.reschedulePhaseTimer(room)
}

func (g *Gateway) autoAdvanceImageSelect(ctx context.Context, roomID string) {
	room, allSelected, err := g.manager.ForceMissingSelections(ctx, roomID)
	if err != nil {
		g.log.Warn("gateway: failed to force-fill missing selections", "room_id", roomID, "error", err)
		return
	}
	g.hub.Broadcast(roomID, EventRoomUpdate, roomUpdatePayload{Room: room})
	if allSelected {
		g.hub.Broadcast(roomID, EventPhaseTransition, phaseTransitionPayload{Game: room.Game, Phase: string(room.Game.CurrentRoundPtr().Status)})
	}
	g.reschedulePhaseTimer(room)
}

func (g *Gateway) autoAdvanceRevealGuess(ctx context.Context, roomID string) {
	room, allGuessed, transitionedToScoring, err := g.manager.ForceMissingGuesses(ctx, roomID)
	if err != nil {
		g.log.Warn("gateway: failed to force-fill missing guesses", "room_id", roomID, "error", err)
		return
	}
	g.hub.Broadcast(roomID, EventRoomUpdate, roomUpdatePayload{Room: room})
	if allGuessed && !transitionedToScoring {
		g.hub.Broadcast(roomID, EventPhaseTransition, phaseTransitionPayload{Game: room.Game, Phase: string(room.Game.CurrentRoundPtr().Status)})
	}
	if transitionedToScoring && g.orch != nil {
		go g.orch.RunScoring(context.Background(), roomID)
	}
	g.reschedulePhaseTimer(room)
}

func (g *Gateway) autoAdvanceRevealResults(ctx context.Context, roomID string) {
	room, transitioned, err := g.manager.CompleteReveal(ctx, roomID)
	if err != nil {
		g.log.Warn("gateway: failed to auto-complete reveal", "room_id", roomID, "error", err)
		return
	}
	g.hub.Broadcast(roomID, EventRoomUpdate, roomUpdatePayload{Room: room})
	if transitioned {
		g.hub.Broadcast(roomID, EventPhaseTransition, phaseTransitionPayload{Game: room.Game, Phase: string(room.Game.Status)})
		g.reschedulePhaseTimer(room)
	}
}
