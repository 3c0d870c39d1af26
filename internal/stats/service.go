package stats

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/grooveguess/backend/internal/domain"
	"github.com/grooveguess/backend/internal/game"
)

// maxConcurrentLoads bounds the parallel value fetches during a
// completed-namespace scan.
const maxConcurrentLoads = 20

// statsSampleSize caps how many recent games feed a user's aggregate
// statistics.
const statsSampleSize = 100

// Catalog provides quiz titles for game summaries.
type Catalog interface {
	FindQuizByID(ctx context.Context, quizID int64) (*domain.Quiz, error)
}

// Users provides display names for game summaries.
type Users interface {
	FindByID(ctx context.Context, userID int64) (*domain.User, error)
}

type Config struct {
	Store   *game.Store
	Catalog Catalog
	Users   Users
}

// Service is a read-only view over the completed-session namespace the
// game engine writes. It never mutates storage.
type Service struct {
	store   *game.Store
	catalog Catalog
	users   Users
}

func NewService(c Config) *Service {
	return &Service{
		store:   c.Store,
		catalog: c.Catalog,
		users:   c.Users,
	}
}

// RecentGame is a one-line summary of a completed session.
type RecentGame struct {
	SessionID      string
	UserID         int64
	Username       string
	QuizID         int64
	QuizTitle      string
	Score          int
	TotalRounds    int
	CorrectAnswers int
	Timestamp      int64
}

type ListRecentGamesRequest struct {
	Page int
	Size int
	// UserID filters to a single player when non-nil.
	UserID *int64
}

type ListRecentGamesResponse struct {
	Games       []RecentGame
	TotalCount  int
	TotalPages  int
	CurrentPage int
}

// ListRecentGames scans the completed namespace, sorts by completion time
// descending and returns one page. A record that fails to deserialize is
// logged and skipped rather than failing the whole listing.
func (s *Service) ListRecentGames(ctx context.Context, req ListRecentGamesRequest) (*ListRecentGamesResponse, error) {
	if req.Size < 1 {
		req.Size = 10
	}
	if req.Page < 0 {
		req.Page = 0
	}

	sessions, err := s.loadCompleted(ctx)
	if err != nil {
		return nil, err
	}

	if req.UserID != nil {
		filtered := sessions[:0]
		for _, ss := range sessions {
			if ss.UserID == *req.UserID {
				filtered = append(filtered, ss)
			}
		}
		sessions = filtered
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CompletedAt > sessions[j].CompletedAt
	})

	total := len(sessions)
	totalPages := (total + req.Size - 1) / req.Size

	start := req.Page * req.Size
	if start > total {
		start = total
	}
	end := start + req.Size
	if end > total {
		end = total
	}

	games := make([]RecentGame, 0, end-start)
	for _, ss := range sessions[start:end] {
		games = append(games, s.summarize(ctx, ss))
	}

	return &ListRecentGamesResponse{
		Games:       games,
		TotalCount:  total,
		TotalPages:  totalPages,
		CurrentPage: req.Page,
	}, nil
}

type UserStats struct {
	TotalGames   int
	TotalScore   int
	AverageScore int
	HighestScore int
	// Accuracy is correct answers over total questions, as an integer
	// percentage.
	Accuracy int
}

// GetUserStats aggregates up to the user's 100 most recent completed
// games. Averages use integer division; an empty history yields zeros.
func (s *Service) GetUserStats(ctx context.Context, userID int64) (*UserStats, error) {
	resp, err := s.ListRecentGames(ctx, ListRecentGamesRequest{
		Page:   0,
		Size:   statsSampleSize,
		UserID: &userID,
	})
	if err != nil {
		return nil, err
	}

	st := &UserStats{TotalGames: len(resp.Games)}

	totalQuestions := 0
	correctAnswers := 0
	for _, g := range resp.Games {
		st.TotalScore += g.Score
		if g.Score > st.HighestScore {
			st.HighestScore = g.Score
		}
		totalQuestions += g.TotalRounds
		correctAnswers += g.CorrectAnswers
	}

	if st.TotalGames > 0 {
		st.AverageScore = st.TotalScore / st.TotalGames
	}
	if totalQuestions > 0 {
		st.Accuracy = correctAnswers * 100 / totalQuestions
	}

	return st, nil
}

func (s *Service) loadCompleted(ctx context.Context) ([]*domain.GameSession, error) {
	keys, err := s.store.ScanCompleted(ctx)
	if err != nil {
		return nil, err
	}

	var (
		mu       sync.Mutex
		sessions = make([]*domain.GameSession, 0, len(keys))
	)

	var eg errgroup.Group
	eg.SetLimit(maxConcurrentLoads)

	for _, key := range keys {
		key := key
		eg.Go(func() error {
			ss, err := s.store.GetByKey(ctx, key)
			if err != nil {
				// Evicted between scan and load, or an unreadable record;
				// either way the listing goes on without it.
				slog.WarnContext(ctx, "stats: skipping completed session",
					"key", key, "error", err)
				return nil
			}

			mu.Lock()
			sessions = append(sessions, ss)
			mu.Unlock()
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return sessions, nil
}

func (s *Service) summarize(ctx context.Context, ss *domain.GameSession) RecentGame {
	g := RecentGame{
		SessionID:      ss.SessionID,
		UserID:         ss.UserID,
		Username:       "Unknown User",
		QuizID:         ss.QuizID,
		Score:          ss.Score,
		TotalRounds:    len(ss.Rounds),
		CorrectAnswers: len(ss.WonRounds),
		Timestamp:      ss.CompletedAt,
	}

	if u, err := s.users.FindByID(ctx, ss.UserID); err == nil {
		g.Username = u.Username
	}
	if q, err := s.catalog.FindQuizByID(ctx, ss.QuizID); err == nil {
		g.QuizTitle = q.Title
	}

	return g
}
