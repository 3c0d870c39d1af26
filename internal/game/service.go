package game

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/grooveguess/backend/internal/domain"
	"github.com/grooveguess/backend/internal/errors"
	"github.com/grooveguess/backend/internal/event"
)

const pointsPerRound = 10

// Catalog is the track catalog collaborator.
type Catalog interface {
	FindQuizByID(ctx context.Context, quizID int64) (*domain.Quiz, error)
	// FindRandomTracksByQuizID may return fewer than limit tracks; the
	// engine detects and rejects an insufficient pool.
	FindRandomTracksByQuizID(ctx context.Context, quizID int64, limit int) ([]domain.Track, error)
}

// Users is the user directory collaborator, used to credit the permanent
// account score when a game completes.
type Users interface {
	AddScore(ctx context.Context, userID int64, amount int) error
}

type Config struct {
	EventBus        *event.Bus
	Catalog         Catalog
	Users           Users
	Store           *Store
	OptionsPerRound int
	Rand            *rand.Rand
	NowFunc         func() time.Time
}

// Service is the game session engine. Each operation is a full
// load -> transform -> write-back cycle against the session store; the
// in-memory session is a value local to the call, never shared between
// requests.
type Service struct {
	eb      *event.Bus
	catalog Catalog
	users   Users
	store   *Store

	optionsPerRound int
	rng             *rand.Rand
	now             func() time.Time
}

func NewService(c Config) *Service {
	if c.OptionsPerRound == 0 {
		c.OptionsPerRound = 2
	}
	if c.Rand == nil {
		c.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if c.NowFunc == nil {
		c.NowFunc = time.Now
	}

	return &Service{
		eb:              c.EventBus,
		catalog:         c.Catalog,
		users:           c.Users,
		store:           c.Store,
		optionsPerRound: c.OptionsPerRound,
		rng:             c.Rand,
		now:             c.NowFunc,
	}
}

type StartGameRequest struct {
	QuizID int64
	UserID int64
}

type StartGameResponse struct {
	SessionID          string
	TotalRounds        int
	CurrentRoundNumber int
	Score              int
	Completed          bool
	CurrentRound       RoundView
}

// RoundView is the player-facing projection of a round: audio URL and
// shuffled options, never the correct track id.
type RoundView struct {
	CurrentRound int
	URL          string
	Options      []domain.TrackOption
}

// StartGame creates a fresh session for the quiz: samples the track pool,
// builds the round structure, and writes the session to the active
// namespace with the sliding TTL.
func (s *Service) StartGame(ctx context.Context, req StartGameRequest) (*StartGameResponse, error) {
	quiz, err := s.catalog.FindQuizByID(ctx, req.QuizID)
	if err != nil {
		return nil, err
	}

	limit := quiz.RoundCount * s.optionsPerRound
	tracks, err := s.catalog.FindRandomTracksByQuizID(ctx, req.QuizID, limit)
	if err != nil {
		return nil, err
	}

	rounds, err := BuildRounds(s.rng, tracks, quiz.RoundCount, s.optionsPerRound)
	if err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate session ID: %w", err)
	}

	ss := &domain.GameSession{
		SessionID:    id.String(),
		QuizID:       req.QuizID,
		UserID:       req.UserID,
		Rounds:       rounds,
		CurrentRound: 0,
		Score:        0,
		Completed:    false,
	}

	if err := s.store.PutActive(ctx, ss); err != nil {
		return nil, err
	}

	slog.DebugContext(ctx, "game: session started",
		"session", ss.SessionID, "quiz", req.QuizID, "user", req.UserID)

	s.eb.Publish(ctx, domain.EventGameStarted{
		SessionID: ss.SessionID,
		QuizID:    req.QuizID,
		UserID:    req.UserID,
	})

	return &StartGameResponse{
		SessionID:          ss.SessionID,
		TotalRounds:        len(rounds),
		CurrentRoundNumber: 0,
		Score:              0,
		Completed:          false,
		CurrentRound:       roundView(0, rounds[0]),
	}, nil
}

type GetCurrentRoundRequest struct {
	SessionID string
	UserID    int64
}

type GetCurrentRoundResponse struct {
	SessionID          string
	TotalRounds        int
	CurrentRoundNumber int
	Score              int
	Completed          bool
	CurrentRound       RoundView
}

// GetCurrentRound returns the round the player is positioned on without
// mutating the session. Safe to repeat, e.g. on client reconnect.
func (s *Service) GetCurrentRound(ctx context.Context, req GetCurrentRoundRequest) (*GetCurrentRoundResponse, error) {
	ss, err := s.loadSession(ctx, req.SessionID, req.UserID)
	if err != nil {
		return nil, err
	}

	if ss.Completed {
		return nil, errAlreadyCompleted(req.SessionID)
	}

	if ss.CurrentRound < 0 || ss.CurrentRound >= len(ss.Rounds) {
		return nil, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("invalid current round number %d", ss.CurrentRound))
	}

	return &GetCurrentRoundResponse{
		SessionID:          ss.SessionID,
		TotalRounds:        len(ss.Rounds),
		CurrentRoundNumber: ss.CurrentRound,
		Score:              ss.Score,
		Completed:          false,
		CurrentRound:       roundView(ss.CurrentRound, ss.Rounds[ss.CurrentRound]),
	}, nil
}

type GetNextRoundRequest struct {
	SessionID string
	UserID    int64
}

// GetNextRound advances the session to the next round and returns it.
// Fails with FailedPrecondition when the session is completed or already
// positioned on the last round.
func (s *Service) GetNextRound(ctx context.Context, req GetNextRoundRequest) (*RoundView, error) {
	ss, err := s.loadSession(ctx, req.SessionID, req.UserID)
	if err != nil {
		return nil, err
	}

	if ss.Completed {
		return nil, errAlreadyCompleted(req.SessionID)
	}

	if ss.CurrentRound >= len(ss.Rounds)-1 {
		return nil, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("no more rounds available"))
	}

	ss.CurrentRound++

	// Unreachable given the check above; roll back the in-memory bump so a
	// failed operation never leaves the value inconsistent.
	if ss.CurrentRound < 0 || ss.CurrentRound >= len(ss.Rounds) {
		ss.CurrentRound--
		return nil, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("invalid round number after increment"))
	}

	next := ss.Rounds[ss.CurrentRound]

	if err := s.store.PutActive(ctx, ss); err != nil {
		return nil, err
	}

	v := roundView(ss.CurrentRound, next)
	return &v, nil
}

type SubmitAnswerRequest struct {
	SessionID   string
	UserID      int64
	RoundNumber int
	OptionID    int64
}

type SubmitAnswerResponse struct {
	Correct     bool
	Points      int
	IsLastRound bool
	FinalScore  int
}

// SubmitAnswer scores the single permitted answer for the round the
// player is currently positioned on. On the last round it transitions the
// session to the completed namespace and credits the player's permanent
// account score exactly once.
//
// Two concurrent submissions for the same session can both observe the
// round unchecked and race on the write-back; the last writer wins. The
// session carries a Version field so a compare-on-write can close this
// window, but no comparison is performed yet.
func (s *Service) SubmitAnswer(ctx context.Context, req SubmitAnswerRequest) (*SubmitAnswerResponse, error) {
	ss, err := s.loadSession(ctx, req.SessionID, req.UserID)
	if err != nil {
		return nil, err
	}

	if ss.Completed {
		return nil, errAlreadyCompleted(req.SessionID)
	}

	if req.RoundNumber < 0 || req.RoundNumber >= len(ss.Rounds) {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("invalid round number %d", req.RoundNumber))
	}

	if req.RoundNumber != ss.CurrentRound {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("illegal round number %d, current round is %d", req.RoundNumber, ss.CurrentRound))
	}

	round := &ss.Rounds[req.RoundNumber]
	if round.Checked {
		return nil, errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("round %d was already answered", req.RoundNumber))
	}

	// An option id matching neither option is simply incorrect.
	correct := req.OptionID == round.CorrectTrackID

	points := 0
	if correct {
		points = pointsPerRound
		ss.Score += points
		ss.WonRounds = append(ss.WonRounds, req.RoundNumber)
	}

	round.Checked = true
	ss.UserAnswers = append(ss.UserAnswers, domain.UserAnswer{
		RoundNumber:      req.RoundNumber,
		SelectedOptionID: req.OptionID,
		Correct:          correct,
	})

	isLast := ss.CurrentRound >= len(ss.Rounds)-1

	if isLast {
		if err := s.completeGame(ctx, ss); err != nil {
			return nil, err
		}
		if err := s.users.AddScore(ctx, ss.UserID, ss.Score); err != nil {
			// The session is already completed; a failed credit must not
			// roll the game back.
			slog.ErrorContext(ctx, "game: credit account score failed",
				"session", ss.SessionID, "user", ss.UserID, "error", err)
		}
	} else {
		if err := s.store.PutActive(ctx, ss); err != nil {
			return nil, err
		}
	}

	resp := &SubmitAnswerResponse{
		Correct:     correct,
		Points:      points,
		IsLastRound: isLast,
	}
	if isLast {
		resp.FinalScore = ss.Score
	}

	return resp, nil
}

// completeGame moves the session from the active to the completed
// namespace. The completed copy is written before the active record is
// deleted so the session id never resolves to nothing.
func (s *Service) completeGame(ctx context.Context, ss *domain.GameSession) error {
	ss.Completed = true
	ss.CompletedAt = s.now().UTC().Unix()

	if err := s.store.PutCompleted(ctx, ss); err != nil {
		return err
	}

	if err := s.store.DeleteActive(ctx, ss.SessionID); err != nil {
		return err
	}

	slog.DebugContext(ctx, "game: session completed",
		"session", ss.SessionID, "score", ss.Score)

	s.eb.Publish(ctx, domain.EventGameCompleted{Session: *ss})

	return nil
}

type GetGameResultsRequest struct {
	SessionID string
	UserID    int64
}

type GetGameResultsResponse struct {
	QuizID      int64
	QuizTitle   string
	TotalRounds int
	Score       int
	Tracks      []TrackResult
}

type TrackResult struct {
	RoundNumber int
	TrackID     int64
	Title       string
	Artist      string
	URL         string
	WasGuessed  bool
	Options     []domain.TrackOption
	UserAnswer  *domain.UserAnswer
}

// GetGameResults assembles the per-round outcome of a finished game. A
// still-active session whose rounds are all answered is completed here as
// a recovery path for a missed transition; the account score credit never
// happens on this path, only on SubmitAnswer.
func (s *Service) GetGameResults(ctx context.Context, req GetGameResultsRequest) (*GetGameResultsResponse, error) {
	ss, err := s.store.GetCompleted(ctx, req.SessionID)
	if errors.Convert(err).Code == errors.CodeNotFound {
		ss, err = s.store.GetActive(ctx, req.SessionID)
	}
	if err != nil {
		return nil, err
	}

	if ss.UserID != req.UserID {
		return nil, errAccessDenied(req.SessionID)
	}

	if !ss.Completed {
		if !ss.Finished() {
			return nil, errors.New(errors.CodeFailedPrecondition,
				errors.WithMessagef("session is not completed"))
		}
		if err := s.completeGame(ctx, ss); err != nil {
			return nil, err
		}
	}

	answers := make(map[int]domain.UserAnswer, len(ss.UserAnswers))
	for _, a := range ss.UserAnswers {
		answers[a.RoundNumber] = a
	}

	won := make(map[int]bool, len(ss.WonRounds))
	for _, n := range ss.WonRounds {
		won[n] = true
	}

	tracks := make([]TrackResult, 0, len(ss.Rounds))
	for _, r := range ss.Rounds {
		tr := TrackResult{
			RoundNumber: r.RoundNumber,
			TrackID:     r.CorrectTrackID,
			Title:       "Unknown",
			Artist:      "Unknown",
			URL:         r.URL,
			WasGuessed:  won[r.RoundNumber],
			Options:     r.Options,
		}
		for _, o := range r.Options {
			if o.ID == r.CorrectTrackID {
				tr.Title = o.Title
				tr.Artist = o.Artist
				break
			}
		}
		if a, ok := answers[r.RoundNumber]; ok {
			a := a
			tr.UserAnswer = &a
		}
		tracks = append(tracks, tr)
	}

	quizTitle := ""
	if quiz, err := s.catalog.FindQuizByID(ctx, ss.QuizID); err == nil {
		quizTitle = quiz.Title
	}

	return &GetGameResultsResponse{
		QuizID:      ss.QuizID,
		QuizTitle:   quizTitle,
		TotalRounds: len(ss.Rounds),
		Score:       ss.Score,
		Tracks:      tracks,
	}, nil
}

// loadSession reads the session for the caller, active namespace first
// with a completed-namespace fallback, and enforces ownership in both.
func (s *Service) loadSession(ctx context.Context, sessionID string, userID int64) (*domain.GameSession, error) {
	ss, err := s.store.GetActive(ctx, sessionID)
	if errors.Convert(err).Code == errors.CodeNotFound {
		ss, err = s.store.GetCompleted(ctx, sessionID)
	}
	if err != nil {
		return nil, err
	}

	if ss.UserID != userID {
		return nil, errAccessDenied(sessionID)
	}

	return ss, nil
}

func roundView(number int, r domain.Round) RoundView {
	return RoundView{
		CurrentRound: number,
		URL:          r.URL,
		Options:      r.Options,
	}
}

func errAlreadyCompleted(sessionID string) error {
	return errors.New(errors.CodeFailedPrecondition,
		errors.WithMessagef("game is already completed: session=%s", sessionID))
}

func errAccessDenied(sessionID string) error {
	return errors.New(errors.CodePermissionDenied,
		errors.WithMessagef("you don't have access to this session: session=%s", sessionID))
}
