package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/grooveguess/backend/internal/auth"
	"github.com/grooveguess/backend/internal/errors"
)

func TestService_TokenRoundTrip(t *testing.T) {
	s := auth.NewService(auth.Config{Secret: "test-secret"})

	token, err := s.IssueToken(7)
	require.NoError(t, err)

	id, err := s.VerifyToken(token)
	require.NoError(t, err)
	require.Equal(t, int64(7), id)
}

func TestService_VerifyToken_Failures(t *testing.T) {
	s := auth.NewService(auth.Config{Secret: "test-secret"})

	t.Run("garbage", func(t *testing.T) {
		_, err := s.VerifyToken("not-a-token")
		require.Equal(t, errors.CodeUnauthenticated, errors.Convert(err).Code)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := auth.NewService(auth.Config{Secret: "other-secret"})
		token, err := other.IssueToken(7)
		require.NoError(t, err)

		_, err = s.VerifyToken(token)
		require.Equal(t, errors.CodeUnauthenticated, errors.Convert(err).Code)
	})

	t.Run("expired", func(t *testing.T) {
		now := time.Now()
		issuer := auth.NewService(auth.Config{
			Secret:   "test-secret",
			TokenTTL: time.Minute,
			NowFunc:  func() time.Time { return now.Add(-2 * time.Minute) },
		})
		token, err := issuer.IssueToken(7)
		require.NoError(t, err)

		_, err = s.VerifyToken(token)
		require.Equal(t, errors.CodeUnauthenticated, errors.Convert(err).Code)
	})
}
