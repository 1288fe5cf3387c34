// Package game holds the pure, lock-free data model and transitions of the
// room-authoritative game engine: Room, Game, Round and their children, and
// the operations that drive them (createRoom, joinRoom, submitPrompt, ...).
// Every exported function here takes an already-locked *Room (the caller,
// internal/gamesvc, owns the per-room critical section) and returns a
// structured *gameerr.Error on precondition failure, leaving state untouched.
package game

import "time"

// Phase is a Round/Game status value. It mirrors Game.status while the round
// is current (data model invariant).
type Phase string

const (
	PhaseLobby        Phase = "lobby"
	PhasePlaying       Phase = "playing"
	PhaseFinished      Phase = "finished"
	PhasePromptSubmit  Phase = "prompt_submit"
	PhaseImageGenerate Phase = "image_generate"
	PhaseImageSelect   Phase = "image_select"
	PhaseRevealGuess   Phase = "reveal_guess"
	PhaseScoring       Phase = "scoring"
	PhaseRevealResults Phase = "reveal_results"
	PhaseRoundEnd      Phase = "round_end"
	PhaseGameEnd       Phase = "game_end"
	PhaseCompleted     Phase = "completed"
)

// SubmissionStatus is a PromptSubmission's lifecycle state.
type SubmissionStatus string

const (
	SubmissionPending    SubmissionStatus = "pending"
	SubmissionGenerating SubmissionStatus = "generating"
	SubmissionReady      SubmissionStatus = "ready"
	SubmissionFailed     SubmissionStatus = "failed"
	SubmissionRejected   SubmissionStatus = "rejected"
)

// ImageStatus is a GeneratedImage's lifecycle state.
type ImageStatus string

const (
	ImageQueued     ImageStatus = "queued"
	ImageGenerating ImageStatus = "generating"
	ImageComplete   ImageStatus = "complete"
	ImageFailed     ImageStatus = "failed"
)

const (
	DefaultMaxPlayers           = 8
	DefaultRoundCount           = 3
	DefaultPromptTimeLimit      = 90 * time.Second
	DefaultSelectionTimeLimit   = 45 * time.Second
	DefaultGuessingTimeLimit    = 60 * time.Second
	DefaultResultsTimeLimit     = 15 * time.Second
	DefaultImageCount           = 4
	RoomCodeAlphabet            = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	RoomCodeLength              = 4
	RoomTTL                     = 24 * time.Hour
	MinPromptLength             = 10
	MaxPromptLength             = 200
	MinGuessLength              = 3
	MaxGuessLength              = 200
	StumperBonusPoints          = 50
	StumperMeanThreshold        = 40.0
)

// Settings holds the per-room configuration, each field defaulted below.
type Settings struct {
	RoundCount          int           `json:"roundCount"`
	PromptTimeLimit     time.Duration `json:"promptTimeLimit"`
	SelectionTimeLimit  time.Duration `json:"selectionTimeLimit"`
	GuessingTimeLimit   time.Duration `json:"guessingTimeLimit"`
	ResultsTimeLimit    time.Duration `json:"resultsTimeLimit"`
	ImageCount          int           `json:"imageCount"`
}

// DefaultSettings returns the default room settings.
func DefaultSettings() Settings {
	return Settings{
		RoundCount:         DefaultRoundCount,
		PromptTimeLimit:    DefaultPromptTimeLimit,
		SelectionTimeLimit: DefaultSelectionTimeLimit,
		GuessingTimeLimit:  DefaultGuessingTimeLimit,
		ResultsTimeLimit:   DefaultResultsTimeLimit,
		ImageCount:         DefaultImageCount,
	}
}

// WithDefaults fills any zero-valued field of s with its default.
func (s Settings) WithDefaults() Settings {
	d := DefaultSettings()
	if s.RoundCount <= 0 {
		s.RoundCount = d.RoundCount
	}
	if s.PromptTimeLimit <= 0 {
		s.PromptTimeLimit = d.PromptTimeLimit
	}
	if s.SelectionTimeLimit <= 0 {
		s.SelectionTimeLimit = d.SelectionTimeLimit
	}
	if s.GuessingTimeLimit <= 0 {
		s.GuessingTimeLimit = d.GuessingTimeLimit
	}
	if s.ResultsTimeLimit <= 0 {
		s.ResultsTimeLimit = d.ResultsTimeLimit
	}
	if s.ImageCount <= 0 {
		s.ImageCount = d.ImageCount
	}
	return s
}

// Player is identity within a room. Mutated only by the operations in this
// package.
type Player struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	IsHost      bool      `json:"isHost"`
	IsReady     bool      `json:"isReady"`
	IsConnected bool      `json:"isConnected"`
	JoinedAt    time.Time `json:"joinedAt"`
	LastSeenAt  time.Time `json:"lastSeenAt"`
}

// Room is the container and lobby. It owns Players, Game, and (through Game)
// every Round and the structures within it.
type Room struct {
	ID          string                  `json:"id"`
	Code        string                  `json:"code"`
	CreatedAt   time.Time               `json:"createdAt"`
	CreatedBy   string                  `json:"createdBy"`
	Status      Phase                   `json:"status"`
	HostID      string                  `json:"hostId"`
	Players     *OrderedMap[*Player]    `json:"players"`
	MaxPlayers  int                     `json:"maxPlayers"`
	Settings    Settings                `json:"settings"`
	Game        *Game                   `json:"game,omitempty"`
}

// Game is present once the room leaves the lobby.
type Game struct {
	ID           string     `json:"id"`
	RoomID       string     `json:"roomId"`
	Status       Phase      `json:"status"`
	CurrentRound int        `json:"currentRound"`
	Rounds       []*Round   `json:"rounds"`
	Leaderboard  Leaderboard `json:"leaderboard"`
	CreatedAt    time.Time  `json:"createdAt"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	FinishedAt   *time.Time `json:"finishedAt,omitempty"`
}

// Round is a single play cycle. Guesses uses GuessBucket so that the outer
// sequence (selection/reveal order) and the inner playerId→Guess lookup both
// survive a JSON round trip.
type Round struct {
	ID                 string                            `json:"id"`
	RoundNumber        int                               `json:"roundNumber"`
	Status             Phase                             `json:"status"`
	StartedAt          time.Time                         `json:"startedAt"`
	FinishedAt         *time.Time                        `json:"finishedAt,omitempty"`
	CurrentRevealIndex int                                `json:"currentRevealIndex"`
	CurrentResultIndex int                                `json:"currentResultIndex"`
	Prompts            map[string]*PromptSubmission      `json:"prompts"`
	Selections         map[string]*ImageSelection        `json:"selections"`
	SelectionOrder     []string                          `json:"selectionOrder"`
	Guesses            map[string]*GuessBucket           `json:"guesses"`
	BonusPoints        map[string]int                    `json:"bonusPoints"`
	Scores             map[string]int                    `json:"scores"`
}

// GuessBucket is the per-image set of guesses, keyed by guesser playerId.
type GuessBucket struct {
	ImageID string             `json:"imageId"`
	ByGuess map[string]*Guess `json:"byGuess"`
}

// PromptSubmission is one player's prompt for one round.
type PromptSubmission struct {
	PlayerID    string            `json:"playerId"`
	Prompt      string            `json:"prompt"`
	SubmittedAt time.Time         `json:"submittedAt"`
	Images      []*GeneratedImage `json:"images"`
	Status      SubmissionStatus  `json:"status"`
}

// GeneratedImage is one candidate image returned by the image generator.
type GeneratedImage struct {
	ID              string      `json:"id"`
	PromptID        string      `json:"promptId"`
	PlayerID        string      `json:"playerId"`
	ImageURL        string      `json:"imageUrl"`
	ThumbnailURL    string      `json:"thumbnailUrl"`
	Provider        string      `json:"provider"`
	ProviderImageID string      `json:"providerImageId"`
	Status          ImageStatus `json:"status"`
	GeneratedAt     time.Time   `json:"generatedAt"`
	Metadata        ImageMetadata `json:"metadata"`
}

// ImageMetadata carries provider-reported detail about how an image was made.
type ImageMetadata struct {
	Model          string `json:"model"`
	RevisedPrompt  string `json:"revisedPrompt,omitempty"`
	GenerationTime float64 `json:"generationTime"`
}

// ImageSelection is a player's chosen image for the reveal-and-guess phase.
type ImageSelection struct {
	PlayerID   string    `json:"playerId"`
	ImageID    string    `json:"imageId"`
	SelectedAt time.Time `json:"selectedAt"`
}

// Guess is one guess at one image.
type Guess struct {
	ID          string    `json:"id"`
	ImageID     string    `json:"imageId"`
	PlayerID    string    `json:"playerId"`
	GuessText   string    `json:"guessText"`
	SubmittedAt time.Time `json:"submittedAt"`
	Score       *int      `json:"score,omitempty"`
}

// Leaderboard aggregates per-player totals across rounds.
type Leaderboard struct {
	Scores   map[string]*LeaderboardEntry `json:"scores"`
	Rankings []string                     `json:"rankings"`
}

// LeaderboardEntry is one player's running total. GuessWins and PromptPicks
// are reserved for future scoring breakdowns; no operation populates them
// yet, so they always marshal as 0.
type LeaderboardEntry struct {
	PlayerID     string `json:"playerId"`
	DisplayName  string `json:"displayName"`
	TotalScore   int    `json:"totalScore"`
	RoundScores  []int  `json:"roundScores"`
	GuessWins    int    `json:"guessWins"`
	PromptPicks  int    `json:"promptPicks"`
}

// CurrentRoundPtr returns the round in progress, or nil if the game hasn't
// started or has no rounds yet.
func (g *Game) CurrentRoundPtr() *Round {
	if g == nil || g.CurrentRound <= 0 || g.CurrentRound > len(g.Rounds) {
		return nil
	}
	return g.Rounds[g.CurrentRound-1]
}

// PlayerIDs returns player ids in room join order.
func (r *Room) PlayerIDs() []string {
	return r.Players.Keys()
}

// PlayerCount returns the number of seated players.
func (r *Room) PlayerCount() int {
	return r.Players.Len()
}
