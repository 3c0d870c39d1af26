package catalog

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/grooveguess/backend/internal/domain"
	"github.com/grooveguess/backend/internal/errors"
)

// Directory resolves accounts for the admin check.
type Directory interface {
	FindByID(ctx context.Context, userID int64) (*domain.User, error)
}

type CurationConfig struct {
	DB    *pgxpool.Pool
	Users Directory

	// VerifyTrackURL overrides the playable-audio check. Left nil, tracks
	// are verified with a HEAD request against the real URL.
	VerifyTrackURL func(ctx context.Context, url string) error
}

// Curation is the admin-only write side of the catalog: creating and
// maintaining tracks and quizzes. Every operation checks the caller's
// role before touching the database.
type Curation struct {
	db        *pgxpool.Pool
	users     Directory
	verifyURL func(ctx context.Context, url string) error
}

func NewCuration(c CurationConfig) *Curation {
	if c.VerifyTrackURL == nil {
		c.VerifyTrackURL = VerifyAudioURL
	}

	return &Curation{
		db:        c.DB,
		users:     c.Users,
		verifyURL: c.VerifyTrackURL,
	}
}

type CreateTrackRequest struct {
	UserID int64

	Title  string
	Artist string
	URL    string
}

func (s *Curation) CreateTrack(ctx context.Context, req CreateTrackRequest) (*domain.Track, error) {
	if err := s.requireAdmin(ctx, req.UserID); err != nil {
		return nil, err
	}
	if err := s.verifyURL(ctx, req.URL); err != nil {
		return nil, err
	}

	const stmt = `
INSERT INTO tracks (title, artist, url)
VALUES ($1, $2, $3)
RETURNING id;`

	t := domain.Track{Title: req.Title, Artist: req.Artist, URL: req.URL}
	if err := s.db.QueryRow(ctx, stmt, req.Title, req.Artist, req.URL).Scan(&t.ID); err != nil {
		return nil, err
	}

	return &t, nil
}

type UpdateTrackRequest struct {
	UserID  int64
	TrackID int64

	Title  string
	Artist string
	URL    string
}

func (s *Curation) UpdateTrack(ctx context.Context, req UpdateTrackRequest) (*domain.Track, error) {
	if err := s.requireAdmin(ctx, req.UserID); err != nil {
		return nil, err
	}
	if err := s.verifyURL(ctx, req.URL); err != nil {
		return nil, err
	}

	const stmt = `
UPDATE tracks
SET title = $2, artist = $3, url = $4
WHERE id = $1
RETURNING id;`

	t := domain.Track{ID: req.TrackID, Title: req.Title, Artist: req.Artist, URL: req.URL}
	err := s.db.QueryRow(ctx, stmt, req.TrackID, req.Title, req.Artist, req.URL).Scan(&t.ID)
	if err == pgx.ErrNoRows {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("track not found: id=%d", req.TrackID))
	}
	if err != nil {
		return nil, err
	}

	return &t, nil
}

func (s *Curation) DeleteTrack(ctx context.Context, userID, trackID int64) error {
	if err := s.requireAdmin(ctx, userID); err != nil {
		return err
	}

	_, err := s.db.Exec(ctx, `DELETE FROM tracks WHERE id = $1;`, trackID)
	return err
}

type CreateQuizRequest struct {
	UserID int64

	Title       string
	Description string
	RoundCount  int
	TrackIDs    []int64
}

func (s *Curation) CreateQuiz(ctx context.Context, req CreateQuizRequest) (*domain.Quiz, error) {
	if err := s.requireAdmin(ctx, req.UserID); err != nil {
		return nil, err
	}
	if req.RoundCount < 2 {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("a quiz must have at least 2 rounds"))
	}

	q := domain.Quiz{
		Title:       req.Title,
		Description: req.Description,
		RoundCount:  req.RoundCount,
	}

	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		const stmt = `
INSERT INTO quizzes (title, description, round_count)
VALUES ($1, $2, $3)
RETURNING id;`

		if err := tx.QueryRow(ctx, stmt, req.Title, req.Description, req.RoundCount).Scan(&q.ID); err != nil {
			return err
		}

		return attachTracks(ctx, tx, q.ID, req.TrackIDs)
	})
	if err != nil {
		return nil, err
	}

	return &q, nil
}

type AddTracksToQuizRequest struct {
	UserID int64
	QuizID int64

	TrackIDs []int64
}

func (s *Curation) AddTracksToQuiz(ctx context.Context, req AddTracksToQuizRequest) error {
	if err := s.requireAdmin(ctx, req.UserID); err != nil {
		return err
	}
	if len(req.TrackIDs) == 0 {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("no track ids given"))
	}

	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM quizzes WHERE id = $1);`, req.QuizID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return errors.New(errors.CodeNotFound,
				errors.WithMessagef("quiz not found: id=%d", req.QuizID))
		}

		return attachTracks(ctx, tx, req.QuizID, req.TrackIDs)
	})
}

func (s *Curation) DeleteQuiz(ctx context.Context, userID, quizID int64) error {
	if err := s.requireAdmin(ctx, userID); err != nil {
		return err
	}

	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM quiz_tracks WHERE quiz_id = $1;`, quizID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM quizzes WHERE id = $1;`, quizID)
		return err
	})
}

// attachTracks links the given tracks to the quiz. Every id must resolve
// to an existing track; a partial attach is never committed.
func attachTracks(ctx context.Context, tx pgx.Tx, quizID int64, trackIDs []int64) error {
	if len(trackIDs) == 0 {
		return nil
	}

	var found int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM tracks WHERE id = ANY($1);`, trackIDs).Scan(&found); err != nil {
		return err
	}
	if found != len(trackIDs) {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("some tracks not found"))
	}

	const stmt = `
INSERT INTO quiz_tracks (quiz_id, track_id)
SELECT $1, unnest($2::bigint[])
ON CONFLICT DO NOTHING;`

	_, err := tx.Exec(ctx, stmt, quizID, trackIDs)
	return err
}

func (s *Curation) requireAdmin(ctx context.Context, userID int64) error {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if u.Role != domain.RoleAdmin {
		return errors.New(errors.CodePermissionDenied,
			errors.WithMessagef("admin role required"))
	}
	return nil
}

var playableAudioTypes = map[string]struct{}{
	"audio/mpeg": {},
	"audio/wav":  {},
	"audio/ogg":  {},
	"audio/aac":  {},
	"audio/flac": {},
	"audio/webm": {},
}

// VerifyAudioURL checks that the URL answers a HEAD request with an audio
// content type, so a quiz round never points at a dead or unplayable link.
func VerifyAudioURL(ctx context.Context, url string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("invalid track url"),
			errors.WithCause(err))
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("track url is unreachable"),
			errors.WithCause(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("track url answered status %d", resp.StatusCode))
	}

	mediaType := resp.Header.Get("Content-Type")
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = mediaType[:i]
	}
	if _, ok := playableAudioTypes[strings.TrimSpace(mediaType)]; !ok {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("track url is not playable audio: content type %q", mediaType))
	}

	return nil
}
