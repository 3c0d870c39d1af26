package game

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/redis/go-redis/v9"

	"github.com/grooveguess/backend/internal/domain"
	"github.com/grooveguess/backend/internal/errors"
)

// Store keeps game sessions in two logically distinct namespaces over one
// Redis client:
//
//   - {prefix}:session:{id}            active sessions, sliding TTL
//   - {prefix}:completed-session:{id}  completed sessions, fixed long TTL
//
// Reads never extend a session's life; only explicit writes refresh the
// active TTL. Values are stored as JSON and decoded back through a
// weakly-typed map, so a record that no longer matches the session shape
// surfaces as a data-integrity error instead of a zero value.
type Store struct {
	redis        redis.UniversalClient
	prefix       string
	activeTTL    time.Duration
	completedTTL time.Duration
}

type StoreConfig struct {
	Redis        redis.UniversalClient
	Prefix       string
	ActiveTTL    time.Duration
	CompletedTTL time.Duration
}

const (
	defaultActiveTTL    = 30 * time.Minute
	defaultCompletedTTL = 24 * time.Hour
)

// NewStore applies the default TTLs when the config leaves them unset.
// A zero TTL would make redis.Set persist the key forever, so it is
// never passed through.
func NewStore(c StoreConfig) *Store {
	if c.ActiveTTL <= 0 {
		c.ActiveTTL = defaultActiveTTL
	}
	if c.CompletedTTL <= 0 {
		c.CompletedTTL = defaultCompletedTTL
	}

	return &Store{
		redis:        c.Redis,
		prefix:       c.Prefix,
		activeTTL:    c.ActiveTTL,
		completedTTL: c.CompletedTTL,
	}
}

// A miss in either namespace reports the same not-found error; callers
// decide whether to fall back to the other namespace.
var errSessionNotFound = errors.New(errors.CodeNotFound, errors.WithMessagef("session not found"))

func (s *Store) GetActive(ctx context.Context, sessionID string) (*domain.GameSession, error) {
	return s.get(ctx, s.activeKey(sessionID))
}

// PutActive writes the session and resets the sliding active TTL.
func (s *Store) PutActive(ctx context.Context, ss *domain.GameSession) error {
	return s.put(ctx, s.activeKey(ss.SessionID), ss, s.activeTTL)
}

func (s *Store) DeleteActive(ctx context.Context, sessionID string) error {
	if err := s.redis.Del(ctx, s.activeKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("delete active session: %w", err)
	}
	return nil
}

func (s *Store) GetCompleted(ctx context.Context, sessionID string) (*domain.GameSession, error) {
	return s.get(ctx, s.completedKey(sessionID))
}

// PutCompleted writes the completed snapshot with the long retention TTL.
// The TTL is set once here and never refreshed afterwards.
func (s *Store) PutCompleted(ctx context.Context, ss *domain.GameSession) error {
	return s.put(ctx, s.completedKey(ss.SessionID), ss, s.completedTTL)
}

// ScanCompleted enumerates every key in the completed namespace. The
// result is a key list, not values; see Get-by-key in the stats service
// for value loading.
func (s *Store) ScanCompleted(ctx context.Context) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)

	pattern := s.completedKey("*")
	for {
		batch, next, err := s.redis.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scan completed sessions: %w", err)
		}
		keys = append(keys, batch...)
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

// GetByKey loads a session by raw store key, as returned by ScanCompleted.
func (s *Store) GetByKey(ctx context.Context, key string) (*domain.GameSession, error) {
	return s.get(ctx, key)
}

func (s *Store) get(ctx context.Context, key string) (*domain.GameSession, error) {
	b, err := s.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, errSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", key, err)
	}

	return decodeSession(b)
}

func (s *Store) put(ctx context.Context, key string, ss *domain.GameSession, ttl time.Duration) error {
	ss.Version++

	b, err := json.Marshal(ss)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", ss.SessionID, err)
	}

	if err := s.redis.Set(ctx, key, b, ttl).Err(); err != nil {
		return fmt.Errorf("set session %s: %w", key, err)
	}

	return nil
}

// decodeSession goes through map[string]any on purpose: the store's value
// shape is not trusted, and a record that cannot be decoded into the
// session type is a data-integrity failure, never a silent zero value.
func decodeSession(b []byte) (*domain.GameSession, error) {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, errors.New(errors.CodeDataLoss,
			errors.WithMessagef("session record is not valid JSON"),
			errors.WithCause(err))
	}

	var ss domain.GameSession
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &ss,
		WeaklyTypedInput: true,
		ErrorUnused:      false,
	})
	if err != nil {
		return nil, errors.Internal(err)
	}

	if err := dec.Decode(raw); err != nil {
		return nil, errors.New(errors.CodeDataLoss,
			errors.WithMessagef("session record does not match the session shape"),
			errors.WithCause(err))
	}

	return &ss, nil
}

func (s *Store) activeKey(sessionID string) string {
	return fmt.Sprintf("%s:session:%s", s.prefix, sessionID)
}

func (s *Store) completedKey(sessionID string) string {
	return fmt.Sprintf("%s:completed-session:%s", s.prefix, sessionID)
}
