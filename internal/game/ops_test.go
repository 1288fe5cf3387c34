package game

import (
	"strconv"
	"testing"
	"time"

	"promptguessr/internal/gameerr"
)

func TestCreateRoomSeedsHost(t *testing.T) {
	now := time.Now()
	room := NewRoom("room-1", "ABCD", "p1", "Ada", DefaultSettings(), now)
	if room.Status != PhaseLobby {
		t.Fatalf("expected lobby status, got %v", room.Status)
	}
	if room.HostID != "p1" {
		t.Fatalf("expected p1 as host, got %v", room.HostID)
	}
	p, ok := room.Players.Get("p1")
	if !ok || !p.IsHost || p.IsReady {
		t.Fatalf("expected host seated and not ready, got %#v", p)
	}
}

func TestJoinRoomRejectsFullRoom(t *testing.T) {
	now := time.Now()
	room := NewRoom("room-1", "ABCD", "p1", "Ada", DefaultSettings(), now)
	room.MaxPlayers = 1
	if err := JoinRoom(room, "p2", "Bob", now); gameerr.KindOf(err) != gameerr.KindRoomFull {
		t.Fatalf("expected RoomFull, got %v", err)
	}
}

func TestJoinRoomRejectsInProgressGame(t *testing.T) {
	now := time.Now()
	room := NewRoom("room-1", "ABCD", "p1", "Ada", DefaultSettings(), now)
	room.Status = PhasePlaying
	if err := JoinRoom(room, "p2", "Bob", now); gameerr.KindOf(err) != gameerr.KindGameInProgress {
		t.Fatalf("expected GameInProgress, got %v", err)
	}
}

func TestRemovePlayerPromotesEarliestJoiner(t *testing.T) {
	now := time.Now()
	room := NewRoom("room-1", "ABCD", "p1", "Ada", DefaultSettings(), now)
	_ = JoinRoom(room, "p2", "Bob", now.Add(time.Minute))
	_ = JoinRoom(room, "p3", "Cleo", now.Add(2*time.Minute))

	emptied, newHost, err := RemovePlayer(room, "p1")
	if err != nil || emptied {
		t.Fatalf("unexpected result: emptied=%v err=%v", emptied, err)
	}
	if newHost != "p2" {
		t.Fatalf("expected p2 promoted, got %v", newHost)
	}
	p2, _ := room.Players.Get("p2")
	if !p2.IsHost {
		t.Fatalf("expected p2 flagged as host")
	}
}

func TestRemovePlayerEmptiesRoom(t *testing.T) {
	now := time.Now()
	room := NewRoom("room-1", "ABCD", "p1", "Ada", DefaultSettings(), now)
	emptied, _, err := RemovePlayer(room, "p1")
	if err != nil || !emptied {
		t.Fatalf("expected room emptied, got emptied=%v err=%v", emptied, err)
	}
}

func twoPlayerReadyRoom(now time.Time) *Room {
	room := NewRoom("room-1", "ABCD", "p1", "Ada", DefaultSettings(), now)
	_ = JoinRoom(room, "p2", "Bob", now)
	p1, _ := room.Players.Get("p1")
	p2, _ := room.Players.Get("p2")
	p1.IsReady = true
	p2.IsReady = true
	return room
}

func TestStartGameRequiresAllReady(t *testing.T) {
	now := time.Now()
	room := NewRoom("room-1", "ABCD", "p1", "Ada", DefaultSettings(), now)
	_ = JoinRoom(room, "p2", "Bob", now)
	if err := StartGame(room, "g1", "r1", now); gameerr.KindOf(err) != gameerr.KindPlayersNotReady {
		t.Fatalf("expected PlayersNotReady, got %v", err)
	}
}

func TestStartGameInitializesRoundOne(t *testing.T) {
	now := time.Now()
	room := twoPlayerReadyRoom(now)
	if err := StartGame(room, "g1", "r1", now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if room.Status != PhasePlaying {
		t.Fatalf("expected playing status, got %v", room.Status)
	}
	if room.Game.Status != PhasePromptSubmit {
		t.Fatalf("expected prompt_submit, got %v", room.Game.Status)
	}
	if len(room.Game.Leaderboard.Scores) != 2 {
		t.Fatalf("expected 2 leaderboard entries, got %d", len(room.Game.Leaderboard.Scores))
	}
}

func startedGame(now time.Time) *Room {
	room := twoPlayerReadyRoom(now)
	_ = StartGame(room, "g1", "r1", now)
	return room
}

func TestSubmitPromptTransitionsWhenAllSubmitted(t *testing.T) {
	now := time.Now()
	room := startedGame(now)
	allSubmitted, err := SubmitPrompt(room, "p1", "a cat wearing a hat", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allSubmitted {
		t.Fatalf("did not expect transition after first prompt")
	}
	allSubmitted, err = SubmitPrompt(room, "p2", "a dog in a boat", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allSubmitted {
		t.Fatalf("expected transition after second prompt")
	}
	round := room.Game.CurrentRoundPtr()
	if round.Status != PhaseImageGenerate {
		t.Fatalf("expected image_generate, got %v", round.Status)
	}
}

func TestSubmitPromptRejectsDuplicate(t *testing.T) {
	now := time.Now()
	room := startedGame(now)
	if _, err := SubmitPrompt(room, "p1", "a cat wearing a hat", now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := SubmitPrompt(room, "p1", "a different prompt", now); gameerr.KindOf(err) != gameerr.KindInvalidPhase {
		t.Fatalf("expected InvalidPhase on duplicate submit, got %v", err)
	}
}

func roomAtImageSelect(now time.Time) *Room {
	room := startedGame(now)
	_, _ = SubmitPrompt(room, "p1", "a cat wearing a hat", now)
	_, _ = SubmitPrompt(room, "p2", "a dog in a boat", now)
	round := room.Game.CurrentRoundPtr()
	for _, playerID := range []string{"p1", "p2"} {
		_ = ApplyPromptGenerationResult(room, playerID, PromptOutcome{
			Images: []*GeneratedImage{{ID: playerID + "-img-1", Status: ImageComplete}, {ID: playerID + "-img-2", Status: ImageComplete}},
		}, now)
	}
	done, rejected := GenerationOutcome(round)
	if !done || len(rejected) != 0 {
		panic("test fixture: expected generation done with no rejections")
	}
	if err := FinishImageGeneration(room); err != nil {
		panic(err)
	}
	return room
}

func TestSelectImageTransitionsToRevealGuess(t *testing.T) {
	now := time.Now()
	room := roomAtImageSelect(now)
	allSelected, err := SelectImage(room, "p1", "p1-img-1", now)
	if err != nil || allSelected {
		t.Fatalf("unexpected result: allSelected=%v err=%v", allSelected, err)
	}
	allSelected, err = SelectImage(room, "p2", "p2-img-2", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allSelected {
		t.Fatalf("expected transition once everyone has picked")
	}
	round := room.Game.CurrentRoundPtr()
	if round.Status != PhaseRevealGuess {
		t.Fatalf("expected reveal_guess, got %v", round.Status)
	}
}

func TestSelectImageRejectsForeignImage(t *testing.T) {
	now := time.Now()
	room := roomAtImageSelect(now)
	if _, err := SelectImage(room, "p1", "p2-img-1", now); gameerr.KindOf(err) != gameerr.KindValidation {
		t.Fatalf("expected Validation, got %v", err)
	}
}

func roomAtRevealGuess(now time.Time) *Room {
	room := roomAtImageSelect(now)
	_, _ = SelectImage(room, "p1", "p1-img-1", now)
	_, _ = SelectImage(room, "p2", "p2-img-2", now)
	return room
}

func TestSubmitGuessRejectsOwnImage(t *testing.T) {
	now := time.Now()
	room := roomAtRevealGuess(now)
	round := room.Game.CurrentRoundPtr()
	imageID := round.SelectionOrder[round.CurrentRevealIndex]
	owner, _ := imageOwner(round, imageID)
	if _, _, err := SubmitGuess(room, "guess-1", owner, imageID, "a cat", now); gameerr.KindOf(err) != gameerr.KindValidation {
		t.Fatalf("expected Validation for self-guess, got %v", err)
	}
}

func TestSubmitGuessAdvancesRevealIndex(t *testing.T) {
	now := time.Now()
	room := roomAtRevealGuess(now)
	round := room.Game.CurrentRoundPtr()
	firstImage := round.SelectionOrder[0]
	owner, _ := imageOwner(round, firstImage)
	guesser := "p1"
	if owner == "p1" {
		guesser = "p2"
	}
	allGuessed, transitioned, err := SubmitGuess(room, "guess-1", guesser, firstImage, "a cat wearing a hat", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allGuessed {
		t.Fatalf("expected allGuessed with a single other player")
	}
	if transitioned {
		t.Fatalf("did not expect scoring transition with a second image left")
	}
	if round.CurrentRevealIndex != 1 {
		t.Fatalf("expected reveal index to advance to 1, got %d", round.CurrentRevealIndex)
	}
}

func TestSubmitGuessRejectsDuplicate(t *testing.T) {
	now := time.Now()
	room := roomAtRevealGuess(now)
	round := room.Game.CurrentRoundPtr()
	firstImage := round.SelectionOrder[0]
	owner, _ := imageOwner(round, firstImage)
	guesser := "p1"
	if owner == "p1" {
		guesser = "p2"
	}
	if _, _, err := SubmitGuess(room, "guess-1", guesser, firstImage, "a cat", now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := SubmitGuess(room, "guess-2", guesser, firstImage, "a cat again", now); gameerr.KindOf(err) != gameerr.KindInvalidPhase {
		t.Fatalf("expected InvalidPhase on duplicate guess, got %v", err)
	}
}

func roomAtScoring(now time.Time) *Room {
	room := roomAtRevealGuess(now)
	round := room.Game.CurrentRoundPtr()
	for i := 0; i < 2; i++ {
		imageID := round.SelectionOrder[round.CurrentRevealIndex]
		owner, _ := imageOwner(round, imageID)
		guesser := "p1"
		if owner == "p1" {
			guesser = "p2"
		}
		_, _, _ = SubmitGuess(room, "guess-"+imageID, guesser, imageID, "a cat wearing a hat", now)
	}
	return room
}

func TestScoreRoundAwardsPointsAndRanks(t *testing.T) {
	now := time.Now()
	room := roomAtScoring(now)
	exactMatch := func(prompt, guess string) int {
		if prompt == guess {
			return 100
		}
		return 0
	}
	if err := ScoreRound(room, exactMatch); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	round := room.Game.CurrentRoundPtr()
	if round.Status != PhaseRevealResults {
		t.Fatalf("expected reveal_results, got %v", round.Status)
	}
	if len(room.Game.Leaderboard.Rankings) != 2 {
		t.Fatalf("expected 2 ranked players, got %d", len(room.Game.Leaderboard.Rankings))
	}
}

func TestScoreRoundAwardsStumperBonusToLowScoringImageOwner(t *testing.T) {
	now := time.Now()
	room := roomAtScoring(now)
	round := room.Game.CurrentRoundPtr()
	imageID := round.SelectionOrder[0]
	owner, _ := imageOwner(round, imageID)

	lowScore := func(string, string) int { return 0 }
	if err := ScoreRound(room, lowScore); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	round = room.Game.CurrentRoundPtr()
	if round.BonusPoints[imageID] != StumperBonusPoints {
		t.Fatalf("expected stumper bonus on %s, got %v", imageID, round.BonusPoints)
	}
	if round.Scores[owner] < StumperBonusPoints {
		t.Fatalf("expected owner %s to receive the stumper bonus, got %d", owner, round.Scores[owner])
	}
}

func TestCompleteRevealIsIdempotent(t *testing.T) {
	now := time.Now()
	room := roomAtScoring(now)
	_ = ScoreRound(room, func(string, string) int { return 0 })
	transitioned, err := CompleteReveal(room, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !transitioned {
		t.Fatalf("expected the first completeReveal to transition")
	}
	statusAfterFirst := room.Game.Status
	transitioned, err = CompleteReveal(room, now.Add(time.Second))
	if err != nil {
		t.Fatalf("unexpected error on second call: %v", err)
	}
	if transitioned {
		t.Fatalf("expected the second completeReveal to report no transition")
	}
	if room.Game.Status != statusAfterFirst {
		t.Fatalf("expected no-op on repeated completeReveal, got %v then %v", statusAfterFirst, room.Game.Status)
	}
}

func TestNavigateResultClampsAtBoundaries(t *testing.T) {
	now := time.Now()
	room := roomAtScoring(now)
	_ = ScoreRound(room, func(string, string) int { return 0 })
	round := room.Game.CurrentRoundPtr()
	if err := NavigateResult(room, "previous"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if round.CurrentResultIndex != 0 {
		t.Fatalf("expected clamp at 0, got %d", round.CurrentResultIndex)
	}
	for i := 0; i < 5; i++ {
		_ = NavigateResult(room, "next")
	}
	if round.CurrentResultIndex != len(round.SelectionOrder)-1 {
		t.Fatalf("expected clamp at last index, got %d", round.CurrentResultIndex)
	}
}

func TestStartNextRoundRequiresRoundEnd(t *testing.T) {
	now := time.Now()
	room := startedGame(now)
	if err := StartNextRound(room, "r2", now); gameerr.KindOf(err) != gameerr.KindInvalidPhase {
		t.Fatalf("expected InvalidPhase, got %v", err)
	}
}

func TestForceMissingPromptsFillsAbsentPlayerAndTransitions(t *testing.T) {
	now := time.Now()
	room := startedGame(now)
	if _, err := SubmitPrompt(room, "p1", "a cat wearing a hat", now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	filled, allSubmitted, err := ForceMissingPrompts(room, now.Add(90*time.Second))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(filled) != 1 || filled[0] != "p2" {
		t.Fatalf("expected p2 force-filled, got %v", filled)
	}
	if !allSubmitted {
		t.Fatalf("expected transition once every player has a submission")
	}
	round := room.Game.CurrentRoundPtr()
	if round.Status != PhaseImageGenerate {
		t.Fatalf("expected image_generate, got %v", round.Status)
	}
	p2Submission := round.Prompts["p2"]
	if p2Submission.Status != SubmissionFailed {
		t.Fatalf("expected p2's forced submission marked failed, got %v", p2Submission.Status)
	}
}

func TestForceMissingPromptsIsNoopOutsidePromptSubmit(t *testing.T) {
	now := time.Now()
	room := roomAtImageSelect(now)
	filled, allSubmitted, err := ForceMissingPrompts(room, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filled != nil || allSubmitted {
		t.Fatalf("expected no-op once prompt_submit has already ended, got filled=%v allSubmitted=%v", filled, allSubmitted)
	}
}

func TestForceMissingSelectionsFillsAbsentPlayerAndTransitions(t *testing.T) {
	now := time.Now()
	room := roomAtImageSelect(now)
	if _, err := SelectImage(room, "p1", "p1-img-1", now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	allSelected, err := ForceMissingSelections(room, now.Add(45*time.Second))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allSelected {
		t.Fatalf("expected transition once every player has a selection")
	}
	round := room.Game.CurrentRoundPtr()
	if round.Status != PhaseRevealGuess {
		t.Fatalf("expected reveal_guess, got %v", round.Status)
	}
	p2Selection, ok := round.Selections["p2"]
	if !ok {
		t.Fatalf("expected p2 force-filled with a selection")
	}
	if p2Selection.ImageID == "p1-img-1" {
		t.Fatalf("expected p2's forced selection to avoid the already-claimed image")
	}
}

func TestForceMissingSelectionsIsNoopOutsideImageSelect(t *testing.T) {
	now := time.Now()
	room := roomAtRevealGuess(now)
	allSelected, err := ForceMissingSelections(room, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allSelected {
		t.Fatalf("expected no-op once image_select has already ended")
	}
}

func TestForceMissingGuessesFillsAbsentPlayerAndAdvancesIndex(t *testing.T) {
	now := time.Now()
	room := roomAtRevealGuess(now)
	round := room.Game.CurrentRoundPtr()
	nextID := 0
	idFunc := func() string {
		nextID++
		return "forced-guess-" + strconv.Itoa(nextID)
	}
	allGuessed, transitioned, err := ForceMissingGuesses(room, idFunc, now.Add(60*time.Second))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allGuessed {
		t.Fatalf("expected allGuessed once the only other player is force-filled")
	}
	if transitioned {
		t.Fatalf("did not expect scoring transition with a second image left")
	}
	if round.CurrentRevealIndex != 1 {
		t.Fatalf("expected reveal index to advance to 1, got %d", round.CurrentRevealIndex)
	}
	firstImage := round.SelectionOrder[0]
	owner, _ := imageOwner(round, firstImage)
	guesser := "p1"
	if owner == "p1" {
		guesser = "p2"
	}
	forced := round.Guesses[firstImage].ByGuess[guesser]
	if forced == nil || forced.GuessText != "" {
		t.Fatalf("expected an empty forced guess for %v, got %#v", guesser, forced)
	}
}

func TestForceMissingGuessesSkipsOwnerAndExistingGuesses(t *testing.T) {
	now := time.Now()
	room := roomAtRevealGuess(now)
	round := room.Game.CurrentRoundPtr()
	firstImage := round.SelectionOrder[0]
	owner, _ := imageOwner(round, firstImage)
	guesser := "p1"
	if owner == "p1" {
		guesser = "p2"
	}
	if _, _, err := SubmitGuess(room, "guess-1", guesser, firstImage, "a cat wearing a hat", now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	allGuessed, _, err := ForceMissingGuesses(room, func() string { return "forced" }, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allGuessed {
		t.Fatalf("expected allGuessed to already hold once the only other player had guessed")
	}
	if _, ok := round.Guesses[firstImage].ByGuess[owner]; ok {
		t.Fatalf("did not expect a forced guess for the image's own owner")
	}
}

func TestForceMissingGuessesIsNoopOutsideRevealGuess(t *testing.T) {
	now := time.Now()
	room := roomAtImageSelect(now)
	allGuessed, transitioned, err := ForceMissingGuesses(room, func() string { return "forced" }, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allGuessed || transitioned {
		t.Fatalf("expected no-op outside reveal_guess, got allGuessed=%v transitioned=%v", allGuessed, transitioned)
	}
}
