package gateway

import (
	"encoding/json"

	"promptguessr/internal/game"
)

// Envelope is the wire shape of every message exchanged over the persistent
// channel in both directions: a type tag plus an opaque payload.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client to server message type names.
const (
	MsgRoomJoin       = "room:join"
	MsgPlayerReady    = "player:ready"
	MsgGameStart      = "game:start"
	MsgSubmitPrompt   = "game:submit_prompt"
	MsgResubmitPrompt = "game:resubmit_prompt"
	MsgSelectImage    = "game:select_image"
	MsgSubmitGuess    = "game:submit_guess"
	MsgNavigateResult = "game:navigate_result"
	MsgCompleteReveal = "game:complete_reveal"
	MsgNextRound      = "game:next_round"
)

// Server to client message type names.
const (
	EventRoomUpdate         = "room:update"
	EventPlayerJoined       = "player:joined"
	EventPlayerLeft         = "player:left"
	EventPlayerReadyChanged = "player:ready_changed"
	EventGameStarted        = "game:started"
	EventPromptSubmitted    = "game:prompt_submitted"
	EventPromptRejected     = "game:prompt_rejected"
	EventPhaseTransition    = "game:phase_transition"
	EventImageProgress      = "game:image_progress"
	EventError              = "error"
)

func encode(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}

type roomJoinPayload struct {
	RoomID   string `json:"roomId"`
	PlayerID string `json:"playerId"`
}

type playerReadyPayload struct {
	IsReady bool `json:"isReady"`
}

type submitPromptPayload struct {
	Text string `json:"text"`
}

type selectImagePayload struct {
	ImageID string `json:"imageId"`
}

type submitGuessPayload struct {
	ImageID   string `json:"imageId"`
	GuessText string `json:"guessText"`
}

type navigateResultPayload struct {
	Direction string `json:"direction"`
}

type playerLeftPayload struct {
	PlayerID  string `json:"playerId"`
	Reason    string `json:"reason"`
	NewHostID string `json:"newHostId,omitempty"`
}

type playerReadyChangedPayload struct {
	PlayerID string `json:"playerId"`
	IsReady  bool   `json:"isReady"`
}

type promptSubmittedPayload struct {
	PlayerID string `json:"playerId"`
}

type promptRejectedPayload struct {
	PlayerID string `json:"playerId"`
	Reason   string `json:"reason"`
}

type phaseTransitionPayload struct {
	Game  *game.Game `json:"game"`
	Phase string     `json:"phase"`
}

type imageProgressPayload struct {
	Game *game.Game `json:"game"`
}

type roomUpdatePayload struct {
	Room *game.Room `json:"room"`
}

type gameStartedPayload struct {
	Game *game.Game `json:"game"`
}

type playerJoinedPayload struct {
	Player *game.Player `json:"player"`
}

type errorPayload struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
}
