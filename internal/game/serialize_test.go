package game

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"
)

func TestRoundMarshalUnmarshalRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	round := &Round{
		ID:             "round-1",
		RoundNumber:    1,
		Status:         PhaseRevealGuess,
		StartedAt:      now,
		SelectionOrder: []string{"img-2", "img-1"},
		Prompts:        map[string]*PromptSubmission{},
		Selections:     map[string]*ImageSelection{},
		Guesses: map[string]*GuessBucket{
			"img-1": {ImageID: "img-1", ByGuess: map[string]*Guess{"p1": {ID: "g1", ImageID: "img-1", PlayerID: "p1", GuessText: "a cat"}}},
			"img-2": {ImageID: "img-2", ByGuess: map[string]*Guess{"p2": {ID: "g2", ImageID: "img-2", PlayerID: "p2", GuessText: "a dog"}}},
		},
		BonusPoints: map[string]int{"img-2": StumperBonusPoints},
		Scores:      map[string]int{"p1": 10, "p2": 20},
	}

	data, err := json.Marshal(round)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var raw struct {
		Guesses []json.RawMessage `json:"guesses"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal wire shape: %v", err)
	}
	if len(raw.Guesses) != 2 {
		t.Fatalf("expected 2 guess pairs, got %d", len(raw.Guesses))
	}
	var firstPair [2]json.RawMessage
	if err := json.Unmarshal(raw.Guesses[0], &firstPair); err != nil {
		t.Fatalf("unmarshal first pair: %v", err)
	}
	var firstImageID string
	if err := json.Unmarshal(firstPair[0], &firstImageID); err != nil {
		t.Fatalf("unmarshal first image id: %v", err)
	}
	if firstImageID != "img-2" {
		t.Fatalf("expected guesses ordered by SelectionOrder (img-2 first), got %s", firstImageID)
	}

	var got Round
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(got.Guesses, round.Guesses) {
		t.Fatalf("guesses did not survive round trip: got %#v, want %#v", got.Guesses, round.Guesses)
	}
	if !reflect.DeepEqual(got.SelectionOrder, round.SelectionOrder) {
		t.Fatalf("selection order did not survive round trip: got %v, want %v", got.SelectionOrder, round.SelectionOrder)
	}
	if !reflect.DeepEqual(got.BonusPoints, round.BonusPoints) || !reflect.DeepEqual(got.Scores, round.Scores) {
		t.Fatalf("bonus points or scores did not survive round trip")
	}
}
