package game

import (
	"sort"
	"time"

	"promptguessr/internal/gameerr"
)

// NewRoom constructs a freshly created room with its creator seated as the
// sole, not-ready, connected host. roomID, code and the creator's playerID
// are generated by the caller (internal/gamesvc) so this package stays
// deterministic and easy to test.
func NewRoom(roomID, code, creatorPlayerID, displayName string, settings Settings, now time.Time) *Room {
	players := NewOrderedMap[*Player]()
	players.Set(creatorPlayerID, &Player{
		ID:          creatorPlayerID,
		DisplayName: displayName,
		IsHost:      true,
		IsReady:     false,
		IsConnected: true,
		JoinedAt:    now,
		LastSeenAt:  now,
	})
	return &Room{
		ID:         roomID,
		Code:       code,
		CreatedAt:  now,
		CreatedBy:  creatorPlayerID,
		Status:     PhaseLobby,
		HostID:     creatorPlayerID,
		Players:    players,
		MaxPlayers: DefaultMaxPlayers,
		Settings:   settings.WithDefaults(),
	}
}

// JoinRoom seats a new, not-ready, connected, non-host player.
func JoinRoom(room *Room, playerID, displayName string, now time.Time) error {
	if room.Status != PhaseLobby {
		return gameerr.New("joinRoom", gameerr.KindGameInProgress, "room is no longer in its lobby")
	}
	if room.Players.Len() >= room.MaxPlayers {
		return gameerr.New("joinRoom", gameerr.KindRoomFull, "room is full")
	}
	room.Players.Set(playerID, &Player{
		ID:          playerID,
		DisplayName: displayName,
		IsHost:      false,
		IsReady:     false,
		IsConnected: true,
		JoinedAt:    now,
		LastSeenAt:  now,
	})
	return nil
}

// SetReady flips a player's ready flag. The lobby-only restriction is a UI
// convention, not a precondition enforced here.
func SetReady(room *Room, playerID string, isReady bool) error {
	player, ok := room.Players.Get(playerID)
	if !ok {
		return gameerr.New("setReady", gameerr.KindPlayerNotInRoom, "player is not seated in this room")
	}
	player.IsReady = isReady
	return nil
}

// RemovePlayer deletes playerID from the room. If the room becomes empty the
// caller (gamesvc) is told via emptied so it can evict the room from the KV
// store. Otherwise, if the removed player was host, the seat passes to
// whoever joined earliest among the remaining players.
func RemovePlayer(room *Room, playerID string) (emptied bool, newHostID string, err error) {
	player, ok := room.Players.Get(playerID)
	if !ok {
		return false, "", gameerr.New("removePlayer", gameerr.KindPlayerNotInRoom, "player is not seated in this room")
	}
	wasHost := player.IsHost
	room.Players.Delete(playerID)
	if room.Players.Len() == 0 {
		return true, "", nil
	}
	if !wasHost {
		return false, "", nil
	}
	var earliest *Player
	for _, p := range room.Players.Values() {
		if earliest == nil || p.JoinedAt.Before(earliest.JoinedAt) {
			earliest = p
		}
	}
	earliest.IsHost = true
	room.HostID = earliest.ID
	return false, earliest.ID, nil
}

// UpdateConnection records a connect/disconnect transition. It never removes
// the player; disconnected players stay seated until removed explicitly.
func UpdateConnection(room *Room, playerID string, isConnected bool, now time.Time) error {
	player, ok := room.Players.Get(playerID)
	if !ok {
		return gameerr.New("updateConnection", gameerr.KindPlayerNotInRoom, "player is not seated in this room")
	}
	player.IsConnected = isConnected
	player.LastSeenAt = now
	return nil
}

// StartGame moves the room out of the lobby, seeding the leaderboard and the
// first round. gameID and the round's ID are generated by the caller.
func StartGame(room *Room, gameID, roundID string, now time.Time) error {
	if room.Status != PhaseLobby {
		return gameerr.New("startGame", gameerr.KindInvalidPhase, "room is not in its lobby")
	}
	if room.Players.Len() < 2 {
		return gameerr.New("startGame", gameerr.KindNotEnoughPlayers, "at least two players are required")
	}
	for _, p := range room.Players.Values() {
		if !p.IsReady {
			return gameerr.New("startGame", gameerr.KindPlayersNotReady, "every player must be ready")
		}
	}
	leaderboard := Leaderboard{Scores: make(map[string]*LeaderboardEntry, room.Players.Len())}
	for _, id := range room.Players.Keys() {
		p, _ := room.Players.Get(id)
		leaderboard.Scores[id] = &LeaderboardEntry{PlayerID: id, DisplayName: p.DisplayName}
		leaderboard.Rankings = append(leaderboard.Rankings, id)
	}
	round := newRound(roundID, 1, now)
	game := &Game{
		ID:           gameID,
		RoomID:       room.ID,
		Status:       PhasePromptSubmit,
		CurrentRound: 1,
		Rounds:       []*Round{round},
		Leaderboard:  leaderboard,
		CreatedAt:    now,
		StartedAt:    &now,
	}
	room.Status = PhasePlaying
	room.Game = game
	return nil
}

func newRound(id string, number int, now time.Time) *Round {
	return &Round{
		ID:             id,
		RoundNumber:    number,
		Status:         PhasePromptSubmit,
		StartedAt:      now,
		Prompts:        make(map[string]*PromptSubmission),
		Selections:     make(map[string]*ImageSelection),
		SelectionOrder: nil,
		Guesses:        make(map[string]*GuessBucket),
		BonusPoints:    make(map[string]int),
		Scores:         make(map[string]int),
	}
}

// currentRound returns the room's active round, or a structured error if the
// game hasn't started.
func currentRound(room *Room, op string) (*Round, error) {
	if room.Game == nil {
		return nil, gameerr.New(op, gameerr.KindInvalidPhase, "game has not started")
	}
	round := room.Game.CurrentRoundPtr()
	if round == nil {
		return nil, gameerr.New(op, gameerr.KindInvalidPhase, "no active round")
	}
	return round, nil
}

// SubmitPrompt stores a player's prompt for the current round. When every
// seated player has submitted, the round and game move to image_generate;
// actually invoking image generation is the orchestrator's job, not this
// package's.
func SubmitPrompt(room *Room, playerID, text string, now time.Time) (allSubmitted bool, err error) {
	round, err := currentRound(room, "submitPrompt")
	if err != nil {
		return false, err
	}
	if round.Status != PhasePromptSubmit {
		return false, gameerr.New("submitPrompt", gameerr.KindInvalidPhase, "round is not accepting prompts")
	}
	if _, exists := round.Prompts[playerID]; exists {
		return false, gameerr.New("submitPrompt", gameerr.KindInvalidPhase, "player already submitted a prompt this round")
	}
	round.Prompts[playerID] = &PromptSubmission{
		PlayerID:    playerID,
		Prompt:      text,
		SubmittedAt: now,
		Status:      SubmissionPending,
	}
	allSubmitted = len(round.Prompts) == room.Players.Len()
	if allSubmitted {
		round.Status = PhaseImageGenerate
		room.Game.Status = PhaseImageGenerate
	}
	return allSubmitted, nil
}

// ForceMissingPrompts is the prompt time limit's fallback: every player who
// hasn't submitted gets a failed, empty submission so the round can still
// advance instead of stalling on an absent player.
func ForceMissingPrompts(room *Room, now time.Time) (filled []string, allSubmitted bool, err error) {
	round, err := currentRound(room, "forceMissingPrompts")
	if err != nil {
		return nil, false, err
	}
	if round.Status != PhasePromptSubmit {
		return nil, false, nil
	}
	for _, playerID := range room.Players.Keys() {
		if _, ok := round.Prompts[playerID]; ok {
			continue
		}
		round.Prompts[playerID] = &PromptSubmission{PlayerID: playerID, SubmittedAt: now, Status: SubmissionFailed}
		filled = append(filled, playerID)
	}
	allSubmitted = len(round.Prompts) == room.Players.Len()
	if allSubmitted {
		round.Status = PhaseImageGenerate
		room.Game.Status = PhaseImageGenerate
	}
	return filled, allSubmitted, nil
}

// BeginResubmitPrompt validates and marks a rejected prompt as generating
// again. The caller invokes image generation between this call and
// ApplyPromptGenerationResult.
func BeginResubmitPrompt(room *Room, playerID, text string, now time.Time) error {
	round, err := currentRound(room, "resubmitPrompt")
	if err != nil {
		return err
	}
	if round.Status != PhaseImageGenerate {
		return gameerr.New("resubmitPrompt", gameerr.KindInvalidPhase, "round is not awaiting image generation")
	}
	submission, ok := round.Prompts[playerID]
	if !ok || submission.Status != SubmissionRejected {
		return gameerr.New("resubmitPrompt", gameerr.KindInvalidPhase, "player has no rejected prompt to resubmit")
	}
	submission.Prompt = text
	submission.SubmittedAt = now
	submission.Images = nil
	submission.Status = SubmissionGenerating
	return nil
}

// PromptOutcome is what the orchestrator learned from a single generate
// call, fed back in through ApplyPromptGenerationResult.
type PromptOutcome struct {
	Images        []*GeneratedImage
	ContentPolicy bool
	Transient     bool
}

// ApplyPromptGenerationResult records one player's generation outcome. It
// does not transition the round by itself; GenerationOutcome and
// FinishImageGeneration decide that once every submission has settled.
func ApplyPromptGenerationResult(room *Room, playerID string, outcome PromptOutcome, now time.Time) error {
	round, err := currentRound(room, "applyPromptGenerationResult")
	if err != nil {
		return err
	}
	submission, ok := round.Prompts[playerID]
	if !ok {
		return gameerr.New("applyPromptGenerationResult", gameerr.KindPlayerNotInRoom, "no prompt submission for player")
	}
	switch {
	case outcome.ContentPolicy:
		submission.Status = SubmissionRejected
		return gameerr.New("applyPromptGenerationResult", gameerr.KindContentPolicy, "prompt was rejected by content policy").
			WithContext("playerId", playerID)
	case outcome.Transient:
		submission.Status = SubmissionFailed
		return gameerr.New("applyPromptGenerationResult", gameerr.KindGenerationFailure, "image generation failed").
			WithContext("playerId", playerID)
	default:
		for _, img := range outcome.Images {
			img.PromptID = playerID
			img.PlayerID = playerID
		}
		submission.Images = outcome.Images
		submission.Status = SubmissionReady
		submission.SubmittedAt = now
		return nil
	}
}

// GenerationOutcome inspects the current round's prompts and reports whether
// every one has settled (ready/rejected/failed, none still pending/generating),
// and if so whether any were rejected.
func GenerationOutcome(round *Round) (done bool, rejectedPlayerIDs []string) {
	for playerID, p := range round.Prompts {
		switch p.Status {
		case SubmissionPending, SubmissionGenerating:
			return false, nil
		case SubmissionRejected:
			rejectedPlayerIDs = append(rejectedPlayerIDs, playerID)
		}
	}
	sort.Strings(rejectedPlayerIDs)
	return true, rejectedPlayerIDs
}

// FinishImageGeneration transitions the round out of image_generate once
// GenerationOutcome reports done with no rejections. Calling it while
// rejections remain outstanding is a caller error (they must wait on a
// resubmit instead).
func FinishImageGeneration(room *Room) error {
	round, err := currentRound(room, "finishImageGeneration")
	if err != nil {
		return err
	}
	if round.Status != PhaseImageGenerate {
		return gameerr.New("finishImageGeneration", gameerr.KindInvalidPhase, "round is not in image_generate")
	}
	round.Status = PhaseImageSelect
	room.Game.Status = PhaseImageSelect
	return nil
}

// SelectImage stores a player's pick of one of their own generated images.
// When every seated player has picked, the round moves to reveal_guess.
func SelectImage(room *Room, playerID, imageID string, now time.Time) (allSelected bool, err error) {
	round, err := currentRound(room, "selectImage")
	if err != nil {
		return false, err
	}
	if round.Status != PhaseImageSelect {
		return false, gameerr.New("selectImage", gameerr.KindInvalidPhase, "round is not accepting selections")
	}
	submission, ok := round.Prompts[playerID]
	if !ok {
		return false, gameerr.New("selectImage", gameerr.KindPlayerNotInRoom, "player has no prompt this round")
	}
	found := false
	for _, img := range submission.Images {
		if img.ID == imageID {
			found = true
			break
		}
	}
	if !found {
		return false, gameerr.New("selectImage", gameerr.KindValidation, "image does not belong to this player's submission")
	}
	round.Selections[playerID] = &ImageSelection{PlayerID: playerID, ImageID: imageID, SelectedAt: now}
	round.SelectionOrder = append(round.SelectionOrder, imageID)
	allSelected = len(round.Selections) == room.Players.Len()
	if allSelected {
		round.Status = PhaseRevealGuess
		room.Game.Status = PhaseRevealGuess
	}
	return allSelected, nil
}

// ForceMissingSelections is the selection time limit's fallback: every
// player who hasn't picked gets the first completed image of their own
// submission. A player with no completed image to pick (a failed or missing
// submission) does not hold the round back, so the round isn't stuck
// waiting on an absent player.
func ForceMissingSelections(room *Room, now time.Time) (allSelected bool, err error) {
	round, err := currentRound(room, "forceMissingSelections")
	if err != nil {
		return false, err
	}
	if round.Status != PhaseImageSelect {
		return false, nil
	}
	taken := make(map[string]bool, len(round.SelectionOrder))
	for _, id := range round.SelectionOrder {
		taken[id] = true
	}
	unselectable := 0
	for _, playerID := range room.Players.Keys() {
		if _, ok := round.Selections[playerID]; ok {
			continue
		}
		imageID := firstUnclaimedImage(round, playerID, taken)
		if imageID == "" {
			unselectable++
			continue
		}
		taken[imageID] = true
		round.Selections[playerID] = &ImageSelection{PlayerID: playerID, ImageID: imageID, SelectedAt: now}
		round.SelectionOrder = append(round.SelectionOrder, imageID)
	}
	allSelected = len(round.Selections)+unselectable == room.Players.Len()
	if allSelected {
		round.Status = PhaseRevealGuess
		room.Game.Status = PhaseRevealGuess
	}
	return allSelected, nil
}

func firstUnclaimedImage(round *Round, playerID string, taken map[string]bool) string {
	submission, ok := round.Prompts[playerID]
	if !ok {
		return ""
	}
	for _, img := range submission.Images {
		if img.Status == ImageComplete && !taken[img.ID] {
			return img.ID
		}
	}
	return ""
}

func sortedKeys(prompts map[string]*PromptSubmission) []string {
	keys := make([]string, 0, len(prompts))
	for k := range prompts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// imageOwner finds the playerId that submitted imageID, scanning this
// round's prompt submissions.
func imageOwner(round *Round, imageID string) (string, bool) {
	for playerID, submission := range round.Prompts {
		for _, img := range submission.Images {
			if img.ID == imageID {
				return playerID, true
			}
		}
	}
	return "", false
}

// SubmitGuess records one guess at the image currently under reveal. When
// enough guesses have accumulated on that image it advances currentRevealIndex
// or, on the last image, transitions to scoring.
func SubmitGuess(room *Room, guessID, playerID, imageID, guessText string, now time.Time) (allGuessed, transitionedToScoring bool, err error) {
	round, err := currentRound(room, "submitGuess")
	if err != nil {
		return false, false, err
	}
	if round.Status != PhaseRevealGuess {
		return false, false, gameerr.New("submitGuess", gameerr.KindInvalidPhase, "round is not accepting guesses")
	}
	if round.CurrentRevealIndex >= len(round.SelectionOrder) {
		return false, false, gameerr.New("submitGuess", gameerr.KindInvalidPhase, "no image is under reveal")
	}
	if imageID != round.SelectionOrder[round.CurrentRevealIndex] {
		return false, false, gameerr.New("submitGuess", gameerr.KindInvalidPhase, "image is not the one currently under reveal")
	}
	owner, hasOwner := imageOwner(round, imageID)
	if hasOwner && owner == playerID {
		return false, false, gameerr.New("submitGuess", gameerr.KindValidation, "a player cannot guess their own image")
	}
	bucket, ok := round.Guesses[imageID]
	if !ok {
		bucket = &GuessBucket{ImageID: imageID, ByGuess: make(map[string]*Guess)}
		round.Guesses[imageID] = bucket
	}
	if _, already := bucket.ByGuess[playerID]; already {
		return false, false, gameerr.New("submitGuess", gameerr.KindInvalidPhase, "player already guessed this image")
	}
	bucket.ByGuess[playerID] = &Guess{
		ID:          guessID,
		ImageID:     imageID,
		PlayerID:    playerID,
		GuessText:   guessText,
		SubmittedAt: now,
	}
	expected := room.Players.Len()
	if _, ownerStillSeated := room.Players.Get(owner); hasOwner && ownerStillSeated {
		expected--
	}
	allGuessed = len(bucket.ByGuess) >= expected
	if allGuessed {
		if round.CurrentRevealIndex < len(round.SelectionOrder)-1 {
			round.CurrentRevealIndex++
		} else {
			round.Status = PhaseScoring
			room.Game.Status = PhaseScoring
			transitionedToScoring = true
		}
	}
	return allGuessed, transitionedToScoring, nil
}

// ForceMissingGuesses is the guessing time limit's fallback: every player
// other than the image's owner who hasn't yet guessed on the currently
// revealed image gets an empty, unscored guess so the reveal can advance
// instead of stalling on an absent player. idFunc mints the synthesized
// guesses' IDs since this package never generates them itself.
func ForceMissingGuesses(room *Room, idFunc func() string, now time.Time) (allGuessed, transitionedToScoring bool, err error) {
	round, err := currentRound(room, "forceMissingGuesses")
	if err != nil {
		return false, false, err
	}
	if round.Status != PhaseRevealGuess || round.CurrentRevealIndex >= len(round.SelectionOrder) {
		return false, false, nil
	}
	imageID := round.SelectionOrder[round.CurrentRevealIndex]
	owner, hasOwner := imageOwner(round, imageID)
	bucket, ok := round.Guesses[imageID]
	if !ok {
		bucket = &GuessBucket{ImageID: imageID, ByGuess: make(map[string]*Guess)}
		round.Guesses[imageID] = bucket
	}
	for _, playerID := range room.Players.Keys() {
		if hasOwner && playerID == owner {
			continue
		}
		if _, already := bucket.ByGuess[playerID]; already {
			continue
		}
		bucket.ByGuess[playerID] = &Guess{
			ID:          idFunc(),
			ImageID:     imageID,
			PlayerID:    playerID,
			GuessText:   "",
			SubmittedAt: now,
		}
	}
	expected := room.Players.Len()
	if _, ownerStillSeated := room.Players.Get(owner); hasOwner && ownerStillSeated {
		expected--
	}
	allGuessed = len(bucket.ByGuess) >= expected
	if allGuessed {
		if round.CurrentRevealIndex < len(round.SelectionOrder)-1 {
			round.CurrentRevealIndex++
		} else {
			round.Status = PhaseScoring
			room.Game.Status = PhaseScoring
			transitionedToScoring = true
		}
	}
	return allGuessed, transitionedToScoring, nil
}

// ScoreRound scores every guessed image (the scorer is injected so this
// package stays free of the similarity algorithm's own dependencies) and
// folds the result into round.scores, round.bonusPoints, and the leaderboard.
func ScoreRound(room *Room, score func(prompt, guess string) int) error {
	round, err := currentRound(room, "scoreRound")
	if err != nil {
		return err
	}
	if round.Status != PhaseScoring {
		return gameerr.New("scoreRound", gameerr.KindInvalidPhase, "round is not in scoring")
	}
	for imageID, bucket := range round.Guesses {
		ownerID, ok := imageOwner(round, imageID)
		if !ok {
			continue
		}
		prompt := round.Prompts[ownerID].Prompt
		var scores []int
		guesserIDs := make([]string, 0, len(bucket.ByGuess))
		for guesserID := range bucket.ByGuess {
			guesserIDs = append(guesserIDs, guesserID)
		}
		sort.Strings(guesserIDs)
		for _, guesserID := range guesserIDs {
			g := bucket.ByGuess[guesserID]
			s := score(prompt, g.GuessText)
			g.Score = &s
			scores = append(scores, s)
			if _, ok := round.Scores[guesserID]; !ok {
				round.Scores[guesserID] = 0
			}
			round.Scores[guesserID] += s
		}
		if len(scores) > 0 && mean(scores) < StumperMeanThreshold {
			round.BonusPoints[imageID] = StumperBonusPoints
			if _, ok := round.Scores[ownerID]; !ok {
				round.Scores[ownerID] = 0
			}
			round.Scores[ownerID] += StumperBonusPoints
		}
	}
	for _, playerID := range room.Players.Keys() {
		entry := room.Game.Leaderboard.Scores[playerID]
		if entry == nil {
			p, _ := room.Players.Get(playerID)
			entry = &LeaderboardEntry{PlayerID: playerID, DisplayName: p.DisplayName}
			room.Game.Leaderboard.Scores[playerID] = entry
		}
		roundScore := round.Scores[playerID]
		entry.TotalScore += roundScore
		entry.RoundScores = append(entry.RoundScores, roundScore)
	}
	rankings := append([]string(nil), room.Players.Keys()...)
	sort.SliceStable(rankings, func(i, j int) bool {
		si, sj := room.Game.Leaderboard.Scores[rankings[i]], room.Game.Leaderboard.Scores[rankings[j]]
		if si.TotalScore != sj.TotalScore {
			return si.TotalScore > sj.TotalScore
		}
		pi, _ := room.Players.Get(rankings[i])
		pj, _ := room.Players.Get(rankings[j])
		return pi.JoinedAt.Before(pj.JoinedAt)
	})
	room.Game.Leaderboard.Rankings = rankings
	round.Status = PhaseRevealResults
	room.Game.Status = PhaseRevealResults
	return nil
}

func mean(values []int) float64 {
	sum := 0
	for _, v := range values {
		sum += v
	}
	return float64(sum) / float64(len(values))
}

// NavigateResult moves the shared results cursor by one position in
// direction, clamped to the valid range.
func NavigateResult(room *Room, direction string) error {
	round, err := currentRound(room, "navigateResult")
	if err != nil {
		return err
	}
	if room.Game.Status != PhaseRevealResults {
		return gameerr.New("navigateResult", gameerr.KindInvalidPhase, "game is not displaying results")
	}
	total := len(round.SelectionOrder)
	switch direction {
	case "next":
		if round.CurrentResultIndex < total-1 {
			round.CurrentResultIndex++
		}
	case "previous":
		if round.CurrentResultIndex > 0 {
			round.CurrentResultIndex--
		}
	default:
		return gameerr.New("navigateResult", gameerr.KindValidation, "direction must be next or previous")
	}
	return nil
}

// CompleteReveal closes out the current round. Called a second time while
// already past reveal_results, it is a deliberate no-op; transitioned
// reports false in that case so the caller can skip re-announcing a phase
// change that never happened.
func CompleteReveal(room *Room, now time.Time) (transitioned bool, err error) {
	round, err := currentRound(room, "completeReveal")
	if err != nil {
		return false, err
	}
	if room.Game.Status != PhaseRevealResults {
		return false, nil
	}
	round.Status = PhaseCompleted
	round.FinishedAt = &now
	if room.Game.CurrentRound >= room.Settings.RoundCount {
		room.Game.Status = PhaseGameEnd
		room.Game.FinishedAt = &now
		room.Status = PhaseFinished
	} else {
		room.Game.Status = PhaseRoundEnd
	}
	return true, nil
}

// StartNextRound appends and opens a fresh round.
func StartNextRound(room *Room, roundID string, now time.Time) error {
	if room.Game == nil || room.Game.Status != PhaseRoundEnd {
		return gameerr.New("startNextRound", gameerr.KindInvalidPhase, "game is not between rounds")
	}
	if room.Game.CurrentRound >= room.Settings.RoundCount {
		return gameerr.New("startNextRound", gameerr.KindInvalidPhase, "no rounds remain")
	}
	room.Game.CurrentRound++
	round := newRound(roundID, room.Game.CurrentRound, now)
	room.Game.Rounds = append(room.Game.Rounds, round)
	room.Game.Status = PhasePromptSubmit
	return nil
}
