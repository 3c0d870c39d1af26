package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/grooveguess/backend/internal/domain"
)

type (
	Notification struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}

	GameStarted struct {
		SessionID string `json:"session_id"`
		QuizID    int64  `json:"quiz_id"`
	}

	GameCompleted struct {
		SessionID   string `json:"session_id"`
		QuizID      int64  `json:"quiz_id"`
		Score       int    `json:"score"`
		TotalRounds int    `json:"total_rounds"`
	}
)

// PublishGameStarted tells the player's channel that a new session opened,
// so a client with several tabs can pick up the game from any of them.
func (a *API) PublishGameStarted(ctx context.Context, e domain.EventGameStarted) error {
	data := GameStarted{
		SessionID: e.SessionID,
		QuizID:    e.QuizID,
	}

	return a.publishNotification(ctx, e.UserID, e.Name(), data)
}

// PublishGameCompleted notifies the player's channel that their game
// finished, so a connected client can refresh results without polling.
func (a *API) PublishGameCompleted(ctx context.Context, e domain.EventGameCompleted) error {
	ss := e.Session

	data := GameCompleted{
		SessionID:   ss.SessionID,
		QuizID:      ss.QuizID,
		Score:       ss.Score,
		TotalRounds: len(ss.Rounds),
	}

	return a.publishNotification(ctx, ss.UserID, e.Name(), data)
}

func (a *API) publishNotification(ctx context.Context, userID int64, event string, data any) error {
	n := Notification{
		Event: event,
		Data:  data,
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	return a.redis.Publish(ctx, fmt.Sprintf("%s:user:%d", a.prefix, userID), b).Err()
}
