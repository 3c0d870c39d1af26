package game_test

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/grooveguess/backend/internal/domain"
	"github.com/grooveguess/backend/internal/errors"
	"github.com/grooveguess/backend/internal/event"
	"github.com/grooveguess/backend/internal/game"
)

const (
	quizID = int64(1)
	player = int64(7)
)

func TestService_StartGame(t *testing.T) {
	h := makeHarness(t)

	resp, err := h.svc.StartGame(context.Background(), game.StartGameRequest{QuizID: quizID, UserID: player})
	require.NoError(t, err)

	require.NotEmpty(t, resp.SessionID)
	require.Equal(t, 3, resp.TotalRounds)
	require.Equal(t, 0, resp.CurrentRoundNumber)
	require.Equal(t, 0, resp.Score)
	require.False(t, resp.Completed)
	require.Equal(t, 0, resp.CurrentRound.CurrentRound)
	require.Len(t, resp.CurrentRound.Options, 2)
	require.NotEmpty(t, resp.CurrentRound.URL)

	ss, err := h.store.GetActive(context.Background(), resp.SessionID)
	require.NoError(t, err)
	require.Len(t, ss.Rounds, 3)
	require.Equal(t, player, ss.UserID)
}

func TestService_StartGame_Failures(t *testing.T) {
	tests := map[string]struct {
		arrange func(h *harness)
		quizID  int64
		want    errors.Code
	}{
		"unknown quiz": {
			arrange: func(h *harness) {},
			quizID:  99,
			want:    errors.CodeNotFound,
		},
		"insufficient track pool": {
			arrange: func(h *harness) { h.cat.tracks = makeTracks(4) }, // needs 6
			quizID:  quizID,
			want:    errors.CodeInvalidArgument,
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			h := makeHarness(t)
			tt.arrange(h)

			_, err := h.svc.StartGame(context.Background(), game.StartGameRequest{QuizID: tt.quizID, UserID: player})
			require.Equal(t, tt.want, errors.Convert(err).Code)
		})
	}
}

func TestService_GetCurrentRound_Idempotent(t *testing.T) {
	h := makeHarness(t)
	id := h.startGame(t)

	first, err := h.svc.GetCurrentRound(context.Background(), game.GetCurrentRoundRequest{SessionID: id, UserID: player})
	require.NoError(t, err)
	second, err := h.svc.GetCurrentRound(context.Background(), game.GetCurrentRoundRequest{SessionID: id, UserID: player})
	require.NoError(t, err)

	require.Equal(t, first, second)

	// No state change: the stored session is untouched by reads.
	ss, err := h.store.GetActive(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, 0, ss.CurrentRound)
}

func TestService_SubmitAnswer_CorrectThenDuplicate(t *testing.T) {
	h := makeHarness(t)
	id := h.startGame(t)

	resp, err := h.svc.SubmitAnswer(context.Background(), game.SubmitAnswerRequest{
		SessionID:   id,
		UserID:      player,
		RoundNumber: 0,
		OptionID:    h.correctOption(t, id, 0),
	})
	require.NoError(t, err)
	require.True(t, resp.Correct)
	require.Equal(t, 10, resp.Points)
	require.False(t, resp.IsLastRound)

	// Same round again: rejected, never re-scored.
	_, err = h.svc.SubmitAnswer(context.Background(), game.SubmitAnswerRequest{
		SessionID:   id,
		UserID:      player,
		RoundNumber: 0,
		OptionID:    h.correctOption(t, id, 0),
	})
	require.Equal(t, errors.CodeAlreadyExists, errors.Convert(err).Code)

	ss, err := h.store.GetActive(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, 10, ss.Score)
	require.Equal(t, []int{0}, ss.WonRounds)
	require.Len(t, ss.UserAnswers, 1)
}

func TestService_SubmitAnswer_WrongOption(t *testing.T) {
	h := makeHarness(t)
	id := h.startGame(t)

	// An option id matching neither option is simply incorrect.
	resp, err := h.svc.SubmitAnswer(context.Background(), game.SubmitAnswerRequest{
		SessionID:   id,
		UserID:      player,
		RoundNumber: 0,
		OptionID:    99999,
	})
	require.NoError(t, err)
	require.False(t, resp.Correct)
	require.Equal(t, 0, resp.Points)

	ss, err := h.store.GetActive(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, 0, ss.Score)
	require.True(t, ss.Rounds[0].Checked)
	require.Empty(t, ss.WonRounds)
}

func TestService_SubmitAnswer_RoundChecks(t *testing.T) {
	tests := map[string]struct {
		roundNumber int
		want        errors.Code
	}{
		"out of range":              {roundNumber: 5, want: errors.CodeInvalidArgument},
		"negative":                  {roundNumber: -1, want: errors.CodeInvalidArgument},
		"future round, not current": {roundNumber: 1, want: errors.CodeInvalidArgument},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			h := makeHarness(t)
			id := h.startGame(t)

			_, err := h.svc.SubmitAnswer(context.Background(), game.SubmitAnswerRequest{
				SessionID:   id,
				UserID:      player,
				RoundNumber: tt.roundNumber,
				OptionID:    1,
			})
			require.Equal(t, tt.want, errors.Convert(err).Code)
		})
	}
}

func TestService_FullGame(t *testing.T) {
	h := makeHarness(t)

	var completed []domain.EventGameCompleted
	var mu sync.Mutex
	h.eb.Subscribe(domain.EventNameGameCompleted, func(ctx context.Context, e event.Event) error {
		mu.Lock()
		completed = append(completed, e.(domain.EventGameCompleted))
		mu.Unlock()
		return nil
	})

	id := h.startGame(t)

	// Round 0: correct.
	resp, err := h.svc.SubmitAnswer(context.Background(), game.SubmitAnswerRequest{
		SessionID: id, UserID: player, RoundNumber: 0, OptionID: h.correctOption(t, id, 0),
	})
	require.NoError(t, err)
	require.True(t, resp.Correct)

	// Round 1: wrong on purpose.
	next, err := h.svc.GetNextRound(context.Background(), game.GetNextRoundRequest{SessionID: id, UserID: player})
	require.NoError(t, err)
	require.Equal(t, 1, next.CurrentRound)

	resp, err = h.svc.SubmitAnswer(context.Background(), game.SubmitAnswerRequest{
		SessionID: id, UserID: player, RoundNumber: 1, OptionID: h.wrongOption(t, id, 1),
	})
	require.NoError(t, err)
	require.False(t, resp.Correct)
	require.False(t, resp.IsLastRound)

	// Round 2: correct, last round completes the game.
	_, err = h.svc.GetNextRound(context.Background(), game.GetNextRoundRequest{SessionID: id, UserID: player})
	require.NoError(t, err)

	resp, err = h.svc.SubmitAnswer(context.Background(), game.SubmitAnswerRequest{
		SessionID: id, UserID: player, RoundNumber: 2, OptionID: h.correctOption(t, id, 2),
	})
	require.NoError(t, err)
	require.True(t, resp.Correct)
	require.True(t, resp.IsLastRound)
	require.Equal(t, 20, resp.FinalScore, "final score is the running score plus the last round's points")

	// Moved, not copied: only the completed namespace resolves now.
	_, err = h.store.GetActive(context.Background(), id)
	require.Equal(t, errors.CodeNotFound, errors.Convert(err).Code)

	ss, err := h.store.GetCompleted(context.Background(), id)
	require.NoError(t, err)
	require.True(t, ss.Completed)
	require.Equal(t, h.now.Unix(), ss.CompletedAt)
	require.Equal(t, 20, ss.Score)

	// Permanent account credit, exactly once, with the final score.
	require.Equal(t, map[int64]int{player: 20}, h.users.credited)

	h.eb.Stop()
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, completed, 1)
	require.Equal(t, id, completed[0].Session.SessionID)
}

func TestService_GetNextRound_Limits(t *testing.T) {
	h := makeHarness(t)
	id := h.startGame(t)

	// Advance to the last round.
	for i := 0; i < 2; i++ {
		_, err := h.svc.GetNextRound(context.Background(), game.GetNextRoundRequest{SessionID: id, UserID: player})
		require.NoError(t, err)
	}

	// Positioned on the last round: no more rounds.
	_, err := h.svc.GetNextRound(context.Background(), game.GetNextRoundRequest{SessionID: id, UserID: player})
	require.Equal(t, errors.CodeFailedPrecondition, errors.Convert(err).Code)
}

func TestService_CompletedSessionOperations(t *testing.T) {
	h := makeHarness(t)
	id := h.playThrough(t)

	// Mutating operations against a completed session fail already-completed,
	// not not-found.
	_, err := h.svc.GetNextRound(context.Background(), game.GetNextRoundRequest{SessionID: id, UserID: player})
	require.Equal(t, errors.CodeFailedPrecondition, errors.Convert(err).Code)

	_, err = h.svc.SubmitAnswer(context.Background(), game.SubmitAnswerRequest{
		SessionID: id, UserID: player, RoundNumber: 2, OptionID: 1,
	})
	require.Equal(t, errors.CodeFailedPrecondition, errors.Convert(err).Code)

	_, err = h.svc.GetCurrentRound(context.Background(), game.GetCurrentRoundRequest{SessionID: id, UserID: player})
	require.Equal(t, errors.CodeFailedPrecondition, errors.Convert(err).Code)
}

func TestService_Ownership(t *testing.T) {
	h := makeHarness(t)
	id := h.startGame(t)

	stranger := int64(9)

	_, err := h.svc.GetCurrentRound(context.Background(), game.GetCurrentRoundRequest{SessionID: id, UserID: stranger})
	require.Equal(t, errors.CodePermissionDenied, errors.Convert(err).Code)

	_, err = h.svc.GetNextRound(context.Background(), game.GetNextRoundRequest{SessionID: id, UserID: stranger})
	require.Equal(t, errors.CodePermissionDenied, errors.Convert(err).Code)

	_, err = h.svc.SubmitAnswer(context.Background(), game.SubmitAnswerRequest{
		SessionID: id, UserID: stranger, RoundNumber: 0, OptionID: 1,
	})
	require.Equal(t, errors.CodePermissionDenied, errors.Convert(err).Code)

	_, err = h.svc.GetGameResults(context.Background(), game.GetGameResultsRequest{SessionID: id, UserID: stranger})
	require.Equal(t, errors.CodePermissionDenied, errors.Convert(err).Code)

	// Forbidden regardless of lifecycle state.
	completedID := h.playThrough(t)
	_, err = h.svc.GetGameResults(context.Background(), game.GetGameResultsRequest{SessionID: completedID, UserID: stranger})
	require.Equal(t, errors.CodePermissionDenied, errors.Convert(err).Code)
}

func TestService_GetGameResults(t *testing.T) {
	h := makeHarness(t)
	id := h.playThrough(t)

	resp, err := h.svc.GetGameResults(context.Background(), game.GetGameResultsRequest{SessionID: id, UserID: player})
	require.NoError(t, err)

	require.Equal(t, quizID, resp.QuizID)
	require.Equal(t, "Indie Anthems", resp.QuizTitle)
	require.Equal(t, 3, resp.TotalRounds)
	require.Equal(t, 30, resp.Score)
	require.Len(t, resp.Tracks, 3)

	for i, tr := range resp.Tracks {
		require.Equal(t, i, tr.RoundNumber)
		require.True(t, tr.WasGuessed)
		require.NotNil(t, tr.UserAnswer)
		require.True(t, tr.UserAnswer.Correct)
		require.Equal(t, tr.TrackID, tr.UserAnswer.SelectedOptionID)
		require.NotEqual(t, "Unknown", tr.Title, "display info comes from the correct option")
	}
}

func TestService_GetGameResults_Failures(t *testing.T) {
	h := makeHarness(t)

	_, err := h.svc.GetGameResults(context.Background(), game.GetGameResultsRequest{SessionID: "missing", UserID: player})
	require.Equal(t, errors.CodeNotFound, errors.Convert(err).Code)

	id := h.startGame(t)
	_, err = h.svc.GetGameResults(context.Background(), game.GetGameResultsRequest{SessionID: id, UserID: player})
	require.Equal(t, errors.CodeFailedPrecondition, errors.Convert(err).Code,
		"an active session with unanswered rounds has no results")
}

func TestService_GetGameResults_RecoversMissedCompletion(t *testing.T) {
	h := makeHarness(t)
	id := h.startGame(t)

	// Simulate a functionally finished session that never transitioned:
	// all rounds checked but still in the active namespace.
	ss, err := h.store.GetActive(context.Background(), id)
	require.NoError(t, err)
	for i := range ss.Rounds {
		ss.Rounds[i].Checked = true
	}
	require.NoError(t, h.store.PutActive(context.Background(), ss))

	resp, err := h.svc.GetGameResults(context.Background(), game.GetGameResultsRequest{SessionID: id, UserID: player})
	require.NoError(t, err)
	require.Equal(t, 3, resp.TotalRounds)

	// The recovery path performed the completion transition.
	_, err = h.store.GetActive(context.Background(), id)
	require.Equal(t, errors.CodeNotFound, errors.Convert(err).Code)
	got, err := h.store.GetCompleted(context.Background(), id)
	require.NoError(t, err)
	require.True(t, got.Completed)

	// But never the account credit: that belongs to SubmitAnswer alone.
	require.Empty(t, h.users.credited)
}

func TestService_SessionExpiry(t *testing.T) {
	h := makeHarness(t)
	id := h.startGame(t)

	h.mr.FastForward(31 * time.Minute)

	// An abandoned game is simply not found.
	_, err := h.svc.GetCurrentRound(context.Background(), game.GetCurrentRoundRequest{SessionID: id, UserID: player})
	require.Equal(t, errors.CodeNotFound, errors.Convert(err).Code)
}

// --- harness ---

type harness struct {
	svc   *game.Service
	store *game.Store
	eb    *event.Bus
	cat   *stubCatalog
	users *stubUsers
	mr    *miniredis.Miniredis
	now   time.Time
}

func makeHarness(t *testing.T) *harness {
	t.Helper()

	mr := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, rc.Ping(ctx).Err(), "should be able to ping redis")

	store := game.NewStore(game.StoreConfig{
		Redis:        rc,
		Prefix:       "gg",
		ActiveTTL:    30 * time.Minute,
		CompletedTTL: 24 * time.Hour,
	})

	h := &harness{
		store: store,
		eb:    event.NewBus(),
		cat: &stubCatalog{
			quiz:   &domain.Quiz{ID: quizID, Title: "Indie Anthems", RoundCount: 3},
			tracks: makeTracks(6),
		},
		users: &stubUsers{credited: map[int64]int{}},
		mr:    mr,
		now:   time.Date(2025, 5, 17, 12, 0, 0, 0, time.UTC),
	}

	h.svc = game.NewService(game.Config{
		EventBus:        h.eb,
		Catalog:         h.cat,
		Users:           h.users,
		Store:           store,
		OptionsPerRound: 2,
		Rand:            rand.New(rand.NewSource(1)),
		NowFunc:         func() time.Time { return h.now },
	})

	return h
}

func (h *harness) startGame(t *testing.T) string {
	t.Helper()

	resp, err := h.svc.StartGame(context.Background(), game.StartGameRequest{QuizID: quizID, UserID: player})
	require.NoError(t, err)
	return resp.SessionID
}

// playThrough answers every round correctly and returns the completed
// session id.
func (h *harness) playThrough(t *testing.T) string {
	t.Helper()

	id := h.startGame(t)
	for i := 0; i < 3; i++ {
		if i > 0 {
			_, err := h.svc.GetNextRound(context.Background(), game.GetNextRoundRequest{SessionID: id, UserID: player})
			require.NoError(t, err)
		}
		_, err := h.svc.SubmitAnswer(context.Background(), game.SubmitAnswerRequest{
			SessionID: id, UserID: player, RoundNumber: i, OptionID: h.correctOption(t, id, i),
		})
		require.NoError(t, err)
	}
	return id
}

func (h *harness) correctOption(t *testing.T, sessionID string, round int) int64 {
	t.Helper()

	ss, err := h.store.GetActive(context.Background(), sessionID)
	require.NoError(t, err)
	return ss.Rounds[round].CorrectTrackID
}

func (h *harness) wrongOption(t *testing.T, sessionID string, round int) int64 {
	t.Helper()

	ss, err := h.store.GetActive(context.Background(), sessionID)
	require.NoError(t, err)
	for _, o := range ss.Rounds[round].Options {
		if o.ID != ss.Rounds[round].CorrectTrackID {
			return o.ID
		}
	}
	t.Fatal("round has no wrong option")
	return 0
}

type stubCatalog struct {
	quiz   *domain.Quiz
	tracks []domain.Track
}

func (c *stubCatalog) FindQuizByID(_ context.Context, quizID int64) (*domain.Quiz, error) {
	if c.quiz == nil || c.quiz.ID != quizID {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("quiz not found: id=%d", quizID))
	}
	return c.quiz, nil
}

func (c *stubCatalog) FindRandomTracksByQuizID(_ context.Context, _ int64, limit int) ([]domain.Track, error) {
	if limit > len(c.tracks) {
		limit = len(c.tracks)
	}
	return c.tracks[:limit], nil
}

type stubUsers struct {
	mu       sync.Mutex
	credited map[int64]int
}

func (u *stubUsers) AddScore(_ context.Context, userID int64, amount int) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.credited[userID] += amount
	return nil
}
