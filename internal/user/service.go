package user

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/grooveguess/backend/internal/domain"
	"github.com/grooveguess/backend/internal/errors"
)

type Config struct {
	DB *pgxpool.Pool
}

// Service is the user directory: account lookup for display-name
// enrichment and the permanent score credit applied when a game
// completes.
type Service struct {
	db *pgxpool.Pool
}

func NewService(c Config) *Service {
	return &Service{db: c.DB}
}

func (s *Service) FindByID(ctx context.Context, userID int64) (*domain.User, error) {
	const stmt = `
SELECT id, username, email, role, score
FROM users
WHERE id = $1;`

	var u domain.User
	err := s.db.QueryRow(ctx, stmt, userID).Scan(&u.ID, &u.Username, &u.Email, &u.Role, &u.Score)
	if err == pgx.ErrNoRows {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("user not found: id=%d", userID))
	}
	if err != nil {
		return nil, err
	}

	return &u, nil
}

// AddScore atomically credits the permanent account score and returns the
// new total. The score column is numeric; callers needing a display value
// should take the integer part.
func (s *Service) AddScore(ctx context.Context, userID int64, amount int) error {
	const stmt = `
UPDATE users
SET score = score + $2
WHERE id = $1
RETURNING score;`

	var total decimal.Decimal
	err := s.db.QueryRow(ctx, stmt, userID, amount).Scan(&total)
	if err == pgx.ErrNoRows {
		return errors.New(errors.CodeNotFound,
			errors.WithMessagef("user not found: id=%d", userID))
	}

	return err
}
