package domain

import (
	"github.com/shopspring/decimal"
)

// Track is an immutable catalog entry referenced by id from rounds.
type Track struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	Artist string `json:"artist"`
	URL    string `json:"url"`
}

// Quiz is a curated set of tracks playable as a game.
type Quiz struct {
	ID          int64
	Title       string
	Description string
	RoundCount  int
}

// Account roles. Catalog curation requires RoleAdmin.
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// User is an account in the user directory. Score is the permanent
// account score, credited once per completed game.
type User struct {
	ID       int64
	Username string
	Email    string
	Role     string
	Score    decimal.Decimal
}

// TrackOption is one selectable candidate shown for a round. It carries
// display info only, never the audio URL of the correct track.
type TrackOption struct {
	ID     int64  `json:"id" mapstructure:"id"`
	Title  string `json:"title" mapstructure:"title"`
	Artist string `json:"artist" mapstructure:"artist"`
}

// Round is one guess-the-track question. Created at session start,
// mutated exactly once (Checked false->true on the first valid answer).
type Round struct {
	RoundNumber    int           `json:"roundNumber" mapstructure:"roundNumber"`
	URL            string        `json:"url" mapstructure:"url"`
	Options        []TrackOption `json:"options" mapstructure:"options"`
	CorrectTrackID int64         `json:"correctTrackId" mapstructure:"correctTrackId"`
	Checked        bool          `json:"checked" mapstructure:"checked"`
}

// UserAnswer records the single permitted answer for a round.
type UserAnswer struct {
	RoundNumber      int   `json:"roundNumber" mapstructure:"roundNumber"`
	SelectedOptionID int64 `json:"selectedOptionId" mapstructure:"selectedOptionId"`
	Correct          bool  `json:"correct" mapstructure:"correct"`
}

// GameSession is one player's playthrough of one quiz.
//
// While active it lives in the short-TTL session namespace; the moment the
// last round is answered it is moved (not copied) into the long-TTL
// completed namespace with CompletedAt stamped. CurrentRound is
// monotonically non-decreasing and always within [0, len(Rounds)-1] while
// the session is active. Score equals 10 points per correctly answered
// round.
//
// Version is reserved for an optimistic write-back check; it is written
// but not yet compared, see the race note on game.Service.SubmitAnswer.
type GameSession struct {
	SessionID    string       `json:"sessionId" mapstructure:"sessionId"`
	QuizID       int64        `json:"quizId" mapstructure:"quizId"`
	UserID       int64        `json:"userId" mapstructure:"userId"`
	Rounds       []Round      `json:"rounds" mapstructure:"rounds"`
	CurrentRound int          `json:"currentRound" mapstructure:"currentRound"`
	Score        int          `json:"score" mapstructure:"score"`
	Completed    bool         `json:"completed" mapstructure:"completed"`
	WonRounds    []int        `json:"wonRounds" mapstructure:"wonRounds"`
	UserAnswers  []UserAnswer `json:"userAnswers" mapstructure:"userAnswers"`
	CompletedAt  int64        `json:"completedAt" mapstructure:"completedAt"`
	Version      int64        `json:"version" mapstructure:"version"`
}

// TotalRounds returns the fixed round count of the session.
func (s *GameSession) TotalRounds() int {
	return len(s.Rounds)
}

// Finished reports whether every round has been answered, regardless of
// whether the completion transition already happened.
func (s *GameSession) Finished() bool {
	for _, r := range s.Rounds {
		if !r.Checked {
			return false
		}
	}
	return true
}
