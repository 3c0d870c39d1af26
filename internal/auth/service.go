package auth

import (
	"context"
	stderrors "errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/grooveguess/backend/internal/domain"
	"github.com/grooveguess/backend/internal/errors"
)

const issuer = "grooveguess"

type Config struct {
	DB       *pgxpool.Pool
	Secret   string
	TokenTTL time.Duration
	NowFunc  func() time.Time
}

// Service handles registration, login and token verification. Beyond this
// package an identity is just the int64 user id carried by the token
// subject; nothing downstream inspects the token itself.
type Service struct {
	db     *pgxpool.Pool
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewService(c Config) *Service {
	if c.TokenTTL == 0 {
		c.TokenTTL = 24 * time.Hour
	}
	if c.NowFunc == nil {
		c.NowFunc = time.Now
	}

	return &Service{
		db:     c.DB,
		secret: []byte(c.Secret),
		ttl:    c.TokenTTL,
		now:    c.NowFunc,
	}
}

type RegisterRequest struct {
	Username string
	Email    string
	Password string
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (*domain.User, error) {
	if req.Username == "" || req.Email == "" || req.Password == "" {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("username, email and password are required"))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	const stmt = `
INSERT INTO users (username, email, password, role, score)
VALUES ($1, $2, $3, 'USER', 0)
RETURNING id;`

	u := &domain.User{
		Username: req.Username,
		Email:    req.Email,
		Role:     "USER",
	}

	err = s.db.QueryRow(ctx, stmt, req.Username, req.Email, string(hash)).Scan(&u.ID)

	var pgErr *pgconn.PgError
	const codeUniqueViolation = "23505"
	if stderrors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return nil, errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("email is already registered"),
			errors.WithCause(err))
	}
	if err != nil {
		return nil, err
	}

	return u, nil
}

type LoginRequest struct {
	Email    string
	Password string
}

type LoginResponse struct {
	User  domain.User
	Token string
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	const stmt = `
SELECT id, username, email, role, score, password
FROM users
WHERE email = $1;`

	var (
		u    domain.User
		hash string
	)
	err := s.db.QueryRow(ctx, stmt, req.Email).Scan(&u.ID, &u.Username, &u.Email, &u.Role, &u.Score, &hash)
	if err == pgx.ErrNoRows {
		return nil, errUnauthenticated()
	}
	if err != nil {
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)) != nil {
		return nil, errUnauthenticated()
	}

	token, err := s.IssueToken(u.ID)
	if err != nil {
		return nil, err
	}

	return &LoginResponse{User: u, Token: token}, nil
}

// IssueToken signs an HS256 token whose subject is the user id.
func (s *Service) IssueToken(userID int64) (string, error) {
	now := s.now()

	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// VerifyToken validates the token and returns the user id it was issued
// for. Every failure mode collapses to Unauthenticated: callers must not
// be able to distinguish a forged token from an expired one.
func (s *Service) VerifyToken(token string) (int64, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, stderrors.New("unexpected signing method")
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid {
		return 0, errUnauthenticated()
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return 0, errUnauthenticated()
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, errUnauthenticated()
	}

	return id, nil
}

func errUnauthenticated() error {
	return errors.New(errors.CodeUnauthenticated,
		errors.WithMessagef("invalid credentials"))
}
