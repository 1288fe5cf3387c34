// Package gamesvc is the persistence and concurrency shell around
// internal/game: one mutex per room id, so that two different rooms never
// block each other, unlike the single process-wide lock the in-memory store
// this was adapted from uses for its entire game map. Every exported method
// runs its room's critical section, applies a game package operation, then
// checkpoints the result to the KV store before returning.
package gamesvc

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"promptguessr/internal/codegen"
	"promptguessr/internal/game"
	"promptguessr/internal/gameerr"
	"promptguessr/internal/kv"
)

const (
	roomKeyPrefix = "room:"
	codeKeyPrefix = "code:"
)

// Manager owns one mutex per room id and the KV store every mutation is
// checkpointed to.
type Manager struct {
	store kv.Store
	now   func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager wires a Manager to its KV store. now defaults to time.Now and
// is overridable for deterministic tests.
func NewManager(store kv.Store) *Manager {
	return &Manager{
		store: store,
		now:   time.Now,
		locks: make(map[string]*sync.Mutex),
	}
}

func (m *Manager) roomLock(roomID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[roomID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[roomID] = lock
	}
	return lock
}

func roomKey(roomID string) string { return roomKeyPrefix + roomID }
func codeKey(code string) string   { return codeKeyPrefix + code }

// load fetches and decodes a room by id. Callers must already hold its lock.
func (m *Manager) load(ctx context.Context, roomID string) (*game.Room, error) {
	raw, ok, err := m.store.Get(ctx, roomKey(roomID))
	if err != nil {
		return nil, gameerr.Wrap("load", gameerr.KindStoreUnavailable, err)
	}
	if !ok {
		return nil, gameerr.New("load", gameerr.KindRoomNotFound, "room does not exist")
	}
	var room game.Room
	if err := json.Unmarshal(raw, &room); err != nil {
		return nil, gameerr.Wrap("load", gameerr.KindStoreUnavailable, err)
	}
	return &room, nil
}

// save checkpoints room and refreshes its TTL. Callers must already hold its
// lock.
func (m *Manager) save(ctx context.Context, room *game.Room) error {
	raw, err := json.Marshal(room)
	if err != nil {
		return gameerr.Wrap("save", gameerr.KindStoreUnavailable, err)
	}
	if err := m.store.Set(ctx, roomKey(room.ID), raw, game.RoomTTL); err != nil {
		return gameerr.Wrap("save", gameerr.KindStoreUnavailable, err)
	}
	return nil
}

// evict removes a room and its join-code index entirely, used once the room
// empties.
func (m *Manager) evict(ctx context.Context, room *game.Room) error {
	_ = m.store.Delete(ctx, codeKey(room.Code))
	return m.store.Delete(ctx, roomKey(room.ID))
}

// withRoom runs fn against the current state of roomID under its lock,
// persisting any mutation fn makes before returning.
func (m *Manager) withRoom(ctx context.Context, roomID string, fn func(*game.Room) error) (*game.Room, error) {
	lock := m.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	room, err := m.load(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if err := fn(room); err != nil {
		return nil, err
	}
	if err := m.save(ctx, room); err != nil {
		return nil, err
	}
	return room, nil
}

// CreateRoom generates a unique join code and seeds a new room.
func (m *Manager) CreateRoom(ctx context.Context, displayName string, settings game.Settings) (*game.Room, string, error) {
	code, err := codegen.GenerateUnique(ctx, game.RoomCodeLength, func(ctx context.Context, code string) (bool, error) {
		_, ok, err := m.store.Get(ctx, codeKey(code))
		return ok, err
	})
	if err != nil {
		return nil, "", err
	}
	roomID := uuid.NewString()
	playerID := uuid.NewString()
	room := game.NewRoom(roomID, code, playerID, displayName, settings, m.now())

	lock := m.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()
	if err := m.save(ctx, room); err != nil {
		return nil, "", err
	}
	if err := m.store.Set(ctx, codeKey(code), []byte(roomID), game.RoomTTL); err != nil {
		return nil, "", gameerr.Wrap("createRoom", gameerr.KindStoreUnavailable, err)
	}
	return room, playerID, nil
}

// RoomIDForCode resolves a join code to a room id.
func (m *Manager) RoomIDForCode(ctx context.Context, code string) (string, error) {
	raw, ok, err := m.store.Get(ctx, codeKey(code))
	if err != nil {
		return "", gameerr.Wrap("joinRoom", gameerr.KindStoreUnavailable, err)
	}
	if !ok {
		return "", gameerr.New("joinRoom", gameerr.KindRoomNotFound, "no room with that code")
	}
	return string(raw), nil
}

// JoinRoom seats a new player in the room identified by code.
func (m *Manager) JoinRoom(ctx context.Context, code, displayName string) (*game.Room, string, error) {
	roomID, err := m.RoomIDForCode(ctx, code)
	if err != nil {
		return nil, "", err
	}
	playerID := uuid.NewString()
	room, err := m.withRoom(ctx, roomID, func(r *game.Room) error {
		return game.JoinRoom(r, playerID, displayName, m.now())
	})
	if err != nil {
		return nil, "", err
	}
	return room, playerID, nil
}

// SetReady updates a player's ready flag.
func (m *Manager) SetReady(ctx context.Context, roomID, playerID string, isReady bool) (*game.Room, error) {
	return m.withRoom(ctx, roomID, func(r *game.Room) error {
		return game.SetReady(r, playerID, isReady)
	})
}

// RemovePlayer removes a player, evicting the room entirely if it empties.
func (m *Manager) RemovePlayer(ctx context.Context, roomID, playerID string) (room *game.Room, emptied bool, newHostID string, err error) {
	lock := m.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	r, err := m.load(ctx, roomID)
	if err != nil {
		return nil, false, "", err
	}
	emptied, newHostID, err = game.RemovePlayer(r, playerID)
	if err != nil {
		return nil, false, "", err
	}
	if emptied {
		if err := m.evict(ctx, r); err != nil {
			return nil, false, "", err
		}
		return r, true, "", nil
	}
	if err := m.save(ctx, r); err != nil {
		return nil, false, "", err
	}
	return r, false, newHostID, nil
}

// UpdateConnection records a connect/disconnect transition.
func (m *Manager) UpdateConnection(ctx context.Context, roomID, playerID string, isConnected bool) (*game.Room, error) {
	return m.withRoom(ctx, roomID, func(r *game.Room) error {
		return game.UpdateConnection(r, playerID, isConnected, m.now())
	})
}

// StartGame moves a room from its lobby into round 1.
func (m *Manager) StartGame(ctx context.Context, roomID string) (*game.Room, error) {
	return m.withRoom(ctx, roomID, func(r *game.Room) error {
		return game.StartGame(r, uuid.NewString(), uuid.NewString(), m.now())
	})
}

// SubmitPrompt stores a player's prompt and reports whether the round is
// now ready for the orchestrator to start image generation.
func (m *Manager) SubmitPrompt(ctx context.Context, roomID, playerID, text string) (room *game.Room, allSubmitted bool, err error) {
	room, err = m.withRoom(ctx, roomID, func(r *game.Room) error {
		var innerErr error
		allSubmitted, innerErr = game.SubmitPrompt(r, playerID, text, m.now())
		return innerErr
	})
	return room, allSubmitted, err
}

// ForceMissingPrompts fills in an empty submission for every player who
// hasn't submitted by the prompt time limit, used by the gateway's phase
// timer.
func (m *Manager) ForceMissingPrompts(ctx context.Context, roomID string) (room *game.Room, filled []string, allSubmitted bool, err error) {
	room, err = m.withRoom(ctx, roomID, func(r *game.Room) error {
		var innerErr error
		filled, allSubmitted, innerErr = game.ForceMissingPrompts(r, m.now())
		return innerErr
	})
	return room, filled, allSubmitted, err
}

// BeginResubmitPrompt marks a rejected prompt generating again. The caller
// must invoke image generation and then ApplyGenerationResult to close the
// loop.
func (m *Manager) BeginResubmitPrompt(ctx context.Context, roomID, playerID, text string) (*game.Room, error) {
	return m.withRoom(ctx, roomID, func(r *game.Room) error {
		return game.BeginResubmitPrompt(r, playerID, text, m.now())
	})
}

// ApplyGenerationResult records one player's generation outcome and, if
// every submission in the round has now settled with no rejections, advances
// the round to image_select.
func (m *Manager) ApplyGenerationResult(ctx context.Context, roomID, playerID string, outcome game.PromptOutcome) (room *game.Room, done bool, rejected []string, applyErr error) {
	room, err := m.withRoom(ctx, roomID, func(r *game.Room) error {
		err := game.ApplyPromptGenerationResult(r, playerID, outcome, m.now())
		if err != nil && gameerr.KindOf(err) != gameerr.KindContentPolicy && gameerr.KindOf(err) != gameerr.KindGenerationFailure {
			return err
		}
		applyErr = err
		round := r.Game.CurrentRoundPtr()
		done, rejected = game.GenerationOutcome(round)
		if done && len(rejected) == 0 {
			return game.FinishImageGeneration(r)
		}
		return nil
	})
	if err != nil {
		return nil, false, nil, err
	}
	return room, done, rejected, applyErr
}

// SelectImage stores a player's pick and reports whether the round is now
// ready to move to reveal_guess.
func (m *Manager) SelectImage(ctx context.Context, roomID, playerID, imageID string) (room *game.Room, allSelected bool, err error) {
	room, err = m.withRoom(ctx, roomID, func(r *game.Room) error {
		var innerErr error
		allSelected, innerErr = game.SelectImage(r, playerID, imageID, m.now())
		return innerErr
	})
	return room, allSelected, err
}

// ForceMissingSelections fills in one of their own completed images for every
// player who hasn't picked by the selection time limit, used by the gateway's
// phase timer.
func (m *Manager) ForceMissingSelections(ctx context.Context, roomID string) (room *game.Room, allSelected bool, err error) {
	room, err = m.withRoom(ctx, roomID, func(r *game.Room) error {
		var innerErr error
		allSelected, innerErr = game.ForceMissingSelections(r, m.now())
		return innerErr
	})
	return room, allSelected, err
}

// SubmitGuess stores a guess and reports whether it closed out the image's
// guessing window (and, if so, whether that ended the round).
func (m *Manager) SubmitGuess(ctx context.Context, roomID, playerID, imageID, guessText string) (room *game.Room, allGuessed, transitionedToScoring bool, err error) {
	room, err = m.withRoom(ctx, roomID, func(r *game.Room) error {
		var innerErr error
		allGuessed, transitionedToScoring, innerErr = game.SubmitGuess(r, uuid.NewString(), playerID, imageID, guessText, m.now())
		return innerErr
	})
	return room, allGuessed, transitionedToScoring, err
}

// ForceMissingGuesses fills in an empty guess for every player who hasn't
// guessed on the currently revealed image by the guessing time limit, used
// by the gateway's phase timer.
func (m *Manager) ForceMissingGuesses(ctx context.Context, roomID string) (room *game.Room, allGuessed, transitionedToScoring bool, err error) {
	room, err = m.withRoom(ctx, roomID, func(r *game.Room) error {
		var innerErr error
		allGuessed, transitionedToScoring, innerErr = game.ForceMissingGuesses(r, uuid.NewString, m.now())
		return innerErr
	})
	return room, allGuessed, transitionedToScoring, err
}

// ScoreRound scores the current round's guesses.
func (m *Manager) ScoreRound(ctx context.Context, roomID string, score func(prompt, guess string) int) (*game.Room, error) {
	return m.withRoom(ctx, roomID, func(r *game.Room) error {
		return game.ScoreRound(r, score)
	})
}

// NavigateResult moves the shared results cursor.
func (m *Manager) NavigateResult(ctx context.Context, roomID, direction string) (*game.Room, error) {
	return m.withRoom(ctx, roomID, func(r *game.Room) error {
		return game.NavigateResult(r, direction)
	})
}

// CompleteReveal closes out the current round.
func (m *Manager) CompleteReveal(ctx context.Context, roomID string) (room *game.Room, transitioned bool, err error) {
	room, err = m.withRoom(ctx, roomID, func(r *game.Room) error {
		var innerErr error
		transitioned, innerErr = game.CompleteReveal(r, m.now())
		return innerErr
	})
	return room, transitioned, err
}

// StartNextRound opens the next round.
func (m *Manager) StartNextRound(ctx context.Context, roomID string) (*game.Room, error) {
	return m.withRoom(ctx, roomID, func(r *game.Room) error {
		return game.StartNextRound(r, uuid.NewString(), m.now())
	})
}

// GetRoom returns the current persisted state of a room without mutating it.
func (m *Manager) GetRoom(ctx context.Context, roomID string) (*game.Room, error) {
	lock := m.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()
	return m.load(ctx, roomID)
}
