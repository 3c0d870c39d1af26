package catalog_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grooveguess/backend/internal/catalog"
	"github.com/grooveguess/backend/internal/domain"
	"github.com/grooveguess/backend/internal/errors"
)

const (
	adminID  = int64(1)
	playerID = int64(2)
)

func TestCuration_RequiresAdminRole(t *testing.T) {
	s := makeCuration(t)

	tests := map[string]func() error{
		"create track": func() error {
			_, err := s.CreateTrack(context.Background(), catalog.CreateTrackRequest{UserID: playerID})
			return err
		},
		"update track": func() error {
			_, err := s.UpdateTrack(context.Background(), catalog.UpdateTrackRequest{UserID: playerID, TrackID: 1})
			return err
		},
		"delete track": func() error {
			return s.DeleteTrack(context.Background(), playerID, 1)
		},
		"create quiz": func() error {
			_, err := s.CreateQuiz(context.Background(), catalog.CreateQuizRequest{UserID: playerID, RoundCount: 3})
			return err
		},
		"add tracks to quiz": func() error {
			return s.AddTracksToQuiz(context.Background(), catalog.AddTracksToQuizRequest{UserID: playerID, QuizID: 1, TrackIDs: []int64{1}})
		},
		"delete quiz": func() error {
			return s.DeleteQuiz(context.Background(), playerID, 1)
		},
	}

	for name, call := range tests {
		t.Run(name, func(t *testing.T) {
			err := call()
			require.Equal(t, errors.CodePermissionDenied, errors.Convert(err).Code)
		})
	}
}

func TestCuration_UnknownCallerIsNotFound(t *testing.T) {
	s := makeCuration(t)

	_, err := s.CreateTrack(context.Background(), catalog.CreateTrackRequest{UserID: 99})
	require.Equal(t, errors.CodeNotFound, errors.Convert(err).Code)
}

func TestCuration_CreateQuizValidation(t *testing.T) {
	s := makeCuration(t)

	for _, roundCount := range []int{0, 1} {
		_, err := s.CreateQuiz(context.Background(), catalog.CreateQuizRequest{
			UserID:     adminID,
			Title:      "Too Short",
			RoundCount: roundCount,
		})
		require.Equal(t, errors.CodeInvalidArgument, errors.Convert(err).Code)
	}
}

func TestCuration_AddTracksToQuizRejectsEmptyList(t *testing.T) {
	s := makeCuration(t)

	err := s.AddTracksToQuiz(context.Background(), catalog.AddTracksToQuizRequest{UserID: adminID, QuizID: 1})
	require.Equal(t, errors.CodeInvalidArgument, errors.Convert(err).Code)
}

func TestCuration_CreateTrackRejectsBadURL(t *testing.T) {
	s := catalog.NewCuration(catalog.CurationConfig{Users: stubDirectory{}})

	_, err := s.CreateTrack(context.Background(), catalog.CreateTrackRequest{
		UserID: adminID,
		Title:  "Broken",
		URL:    "://not-a-url",
	})
	require.Equal(t, errors.CodeInvalidArgument, errors.Convert(err).Code)
}

func TestVerifyAudioURL(t *testing.T) {
	tests := map[string]struct {
		status      int
		contentType string
		wantErr     bool
	}{
		"playable mp3":            {status: http.StatusOK, contentType: "audio/mpeg"},
		"playable ogg":            {status: http.StatusOK, contentType: "audio/ogg"},
		"content type parameters": {status: http.StatusOK, contentType: "audio/mpeg; charset=binary"},
		"dead link":               {status: http.StatusNotFound, contentType: "audio/mpeg", wantErr: true},
		"html page":               {status: http.StatusOK, contentType: "text/html", wantErr: true},
		"no content type":         {status: http.StatusOK, wantErr: true},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.contentType != "" {
					w.Header().Set("Content-Type", tt.contentType)
				}
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			err := catalog.VerifyAudioURL(context.Background(), srv.URL+"/track.mp3")
			if tt.wantErr {
				require.Equal(t, errors.CodeInvalidArgument, errors.Convert(err).Code)
				return
			}
			require.NoError(t, err)
		})
	}
}

// makeCuration builds a curation service whose URL check always passes.
// The database is left unset: the tests here exercise the gate in front
// of it, and must fail before any query runs.
func makeCuration(t *testing.T) *catalog.Curation {
	t.Helper()

	return catalog.NewCuration(catalog.CurationConfig{
		Users:          stubDirectory{},
		VerifyTrackURL: func(ctx context.Context, url string) error { return nil },
	})
}

type stubDirectory struct{}

func (stubDirectory) FindByID(_ context.Context, userID int64) (*domain.User, error) {
	switch userID {
	case adminID:
		return &domain.User{ID: adminID, Username: "admin", Role: domain.RoleAdmin}, nil
	case playerID:
		return &domain.User{ID: playerID, Username: "player", Role: domain.RoleUser}, nil
	default:
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("user not found: id=%d", userID))
	}
}
