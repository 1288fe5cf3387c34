package gamesvc

import (
	"context"
	"testing"

	"promptguessr/internal/game"
	"promptguessr/internal/gameerr"
	"promptguessr/internal/kv"
)

func TestCreateAndJoinRoom(t *testing.T) {
	ctx := context.Background()
	m := NewManager(kv.NewMemoryStore())

	room, hostID, err := m.CreateRoom(ctx, "Ada", game.DefaultSettings())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if room.HostID != hostID {
		t.Fatalf("expected host id to match")
	}

	joined, guestID, err := m.JoinRoom(ctx, room.Code, "Bob")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if joined.Players.Len() != 2 {
		t.Fatalf("expected 2 players, got %d", joined.Players.Len())
	}
	if _, ok := joined.Players.Get(guestID); !ok {
		t.Fatalf("expected guest seated")
	}
}

func TestJoinRoomUnknownCode(t *testing.T) {
	ctx := context.Background()
	m := NewManager(kv.NewMemoryStore())
	if _, _, err := m.JoinRoom(ctx, "ZZZZ", "Bob"); gameerr.KindOf(err) != gameerr.KindRoomNotFound {
		t.Fatalf("expected RoomNotFound, got %v", err)
	}
}

func TestRemovePlayerEvictsEmptyRoom(t *testing.T) {
	ctx := context.Background()
	m := NewManager(kv.NewMemoryStore())
	room, hostID, err := m.CreateRoom(ctx, "Ada", game.DefaultSettings())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, emptied, _, err := m.RemovePlayer(ctx, room.ID, hostID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !emptied {
		t.Fatalf("expected room to be emptied")
	}
	if _, err := m.GetRoom(ctx, room.ID); gameerr.KindOf(err) != gameerr.KindRoomNotFound {
		t.Fatalf("expected evicted room to be gone, got %v", err)
	}
	if _, _, err := m.JoinRoom(ctx, room.Code, "Cleo"); gameerr.KindOf(err) != gameerr.KindRoomNotFound {
		t.Fatalf("expected join code to be freed, got %v", err)
	}
}

func TestFullRoundLifecycleThroughManager(t *testing.T) {
	ctx := context.Background()
	m := NewManager(kv.NewMemoryStore())
	room, hostID, err := m.CreateRoom(ctx, "Ada", game.DefaultSettings())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, guestID, err := m.JoinRoom(ctx, room.Code, "Bob")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := m.SetReady(ctx, room.ID, hostID, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := m.SetReady(ctx, room.ID, guestID, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := m.StartGame(ctx, room.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, allSubmitted, err := m.SubmitPrompt(ctx, room.ID, hostID, "a cat wearing a hat"); err != nil || allSubmitted {
		t.Fatalf("unexpected result: allSubmitted=%v err=%v", allSubmitted, err)
	}
	latest, allSubmitted, err := m.SubmitPrompt(ctx, room.ID, guestID, "a dog in a boat")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allSubmitted {
		t.Fatalf("expected transition once every player has submitted")
	}
	round := latest.Game.CurrentRoundPtr()
	if round.Status != game.PhaseImageGenerate {
		t.Fatalf("expected image_generate, got %v", round.Status)
	}

	for _, playerID := range []string{hostID, guestID} {
		outcome := game.PromptOutcome{Images: []*game.GeneratedImage{
			{ID: playerID + "-img-1"}, {ID: playerID + "-img-2"},
		}}
		_, done, rejected, applyErr := m.ApplyGenerationResult(ctx, room.ID, playerID, outcome)
		if applyErr != nil {
			t.Fatalf("unexpected apply error: %v", applyErr)
		}
		_ = done
		_ = rejected
	}

	room, err = m.GetRoom(ctx, room.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	round = room.Game.CurrentRoundPtr()
	if round.Status != game.PhaseImageSelect {
		t.Fatalf("expected image_select once all prompts ready, got %v", round.Status)
	}
}
