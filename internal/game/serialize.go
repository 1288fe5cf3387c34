package game

import (
	"encoding/json"
	"time"
)

// guessPair is the wire shape of one entry in Round.guesses: [imageId,
// {playerId: Guess, ...}].
type guessPair struct {
	ImageID string             `json:"-"`
	ByGuess map[string]*Guess  `json:"-"`
}

func (p guessPair) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{p.ImageID, p.ByGuess})
}

func (p *guessPair) UnmarshalJSON(data []byte) error {
	var raw [2]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if err := json.Unmarshal(raw[0], &p.ImageID); err != nil {
		return err
	}
	p.ByGuess = make(map[string]*Guess)
	return json.Unmarshal(raw[1], &p.ByGuess)
}

// roundWire mirrors Round but replaces the Guesses map with the ordered pair
// sequence the wire format requires, and is reused for both directions.
type roundWire struct {
	ID                 string                       `json:"id"`
	RoundNumber        int                          `json:"roundNumber"`
	Status             Phase                        `json:"status"`
	StartedAt          time.Time                    `json:"startedAt"`
	FinishedAt         *time.Time                   `json:"finishedAt,omitempty"`
	CurrentRevealIndex int                          `json:"currentRevealIndex"`
	CurrentResultIndex int                          `json:"currentResultIndex"`
	Prompts            map[string]*PromptSubmission `json:"prompts"`
	Selections         map[string]*ImageSelection   `json:"selections"`
	SelectionOrder     []string                     `json:"selectionOrder"`
	Guesses            []guessPair                  `json:"guesses"`
	BonusPoints        map[string]int               `json:"bonusPoints"`
	Scores             map[string]int               `json:"scores"`
}

// MarshalJSON emits Guesses as the [imageId, {playerId: Guess}] pair
// sequence, ordered the way the current reveal walks images: by
// SelectionOrder, with any bucket not (yet) present in SelectionOrder
// appended afterward so nothing is silently dropped.
func (r *Round) MarshalJSON() ([]byte, error) {
	wire := roundWire{
		ID:                 r.ID,
		RoundNumber:        r.RoundNumber,
		Status:             r.Status,
		StartedAt:          r.StartedAt,
		FinishedAt:         r.FinishedAt,
		CurrentRevealIndex: r.CurrentRevealIndex,
		CurrentResultIndex: r.CurrentResultIndex,
		Prompts:            r.Prompts,
		Selections:         r.Selections,
		SelectionOrder:     r.SelectionOrder,
		BonusPoints:        r.BonusPoints,
		Scores:             r.Scores,
	}
	seen := make(map[string]bool, len(r.Guesses))
	for _, imageID := range r.SelectionOrder {
		bucket, ok := r.Guesses[imageID]
		if !ok {
			continue
		}
		seen[imageID] = true
		wire.Guesses = append(wire.Guesses, guessPair{ImageID: imageID, ByGuess: bucket.ByGuess})
	}
	for imageID, bucket := range r.Guesses {
		if seen[imageID] {
			continue
		}
		wire.Guesses = append(wire.Guesses, guessPair{ImageID: imageID, ByGuess: bucket.ByGuess})
	}
	if wire.Guesses == nil {
		wire.Guesses = []guessPair{}
	}
	return json.Marshal(wire)
}

// UnmarshalJSON reverses MarshalJSON exactly, rebuilding the Guesses map
// from the pair sequence.
func (r *Round) UnmarshalJSON(data []byte) error {
	var wire roundWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	r.ID = wire.ID
	r.RoundNumber = wire.RoundNumber
	r.Status = wire.Status
	r.StartedAt = wire.StartedAt
	r.FinishedAt = wire.FinishedAt
	r.CurrentRevealIndex = wire.CurrentRevealIndex
	r.CurrentResultIndex = wire.CurrentResultIndex
	r.Prompts = wire.Prompts
	if r.Prompts == nil {
		r.Prompts = make(map[string]*PromptSubmission)
	}
	r.Selections = wire.Selections
	if r.Selections == nil {
		r.Selections = make(map[string]*ImageSelection)
	}
	r.SelectionOrder = wire.SelectionOrder
	r.Guesses = make(map[string]*GuessBucket, len(wire.Guesses))
	for _, pair := range wire.Guesses {
		r.Guesses[pair.ImageID] = &GuessBucket{ImageID: pair.ImageID, ByGuess: pair.ByGuess}
	}
	r.BonusPoints = wire.BonusPoints
	if r.BonusPoints == nil {
		r.BonusPoints = make(map[string]int)
	}
	r.Scores = wire.Scores
	if r.Scores == nil {
		r.Scores = make(map[string]int)
	}
	return nil
}
