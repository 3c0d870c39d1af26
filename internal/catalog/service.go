package catalog

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/grooveguess/backend/internal/domain"
	"github.com/grooveguess/backend/internal/errors"
)

type Config struct {
	DB *pgxpool.Pool
}

// Service serves quiz and track lookups for the game engine and the
// stats views. It only reads; the write side is Curation.
type Service struct {
	db *pgxpool.Pool
}

func NewService(c Config) *Service {
	return &Service{db: c.DB}
}

func (s *Service) FindQuizByID(ctx context.Context, quizID int64) (*domain.Quiz, error) {
	const stmt = `
SELECT id, title, COALESCE(description, ''), round_count
FROM quizzes
WHERE id = $1;`

	var q domain.Quiz
	err := s.db.QueryRow(ctx, stmt, quizID).Scan(&q.ID, &q.Title, &q.Description, &q.RoundCount)
	if err == pgx.ErrNoRows {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("quiz not found: id=%d", quizID))
	}
	if err != nil {
		return nil, err
	}

	return &q, nil
}

// FindRandomTracksByQuizID samples up to limit tracks from the quiz's
// pool. It may return fewer than limit; callers must decide whether a
// short sample is acceptable.
func (s *Service) FindRandomTracksByQuizID(ctx context.Context, quizID int64, limit int) ([]domain.Track, error) {
	const stmt = `
SELECT t.id, t.title, t.artist, t.url
FROM tracks t
JOIN quiz_tracks qt ON qt.track_id = t.id
WHERE qt.quiz_id = $1
ORDER BY random()
LIMIT $2;`

	rows, err := s.db.Query(ctx, stmt, quizID, limit)
	if err != nil {
		return nil, err
	}

	tracks, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Track, error) {
		var t domain.Track
		if err := r.Scan(&t.ID, &t.Title, &t.Artist, &t.URL); err != nil {
			return domain.Track{}, err
		}
		return t, nil
	})
	if err != nil {
		return nil, err
	}

	return tracks, nil
}
