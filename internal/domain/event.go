package domain

const (
	EventNameGameStarted   = "game.started"
	EventNameGameCompleted = "game.completed"
)

type EventGameStarted struct {
	SessionID string
	QuizID    int64
	UserID    int64
}

func (EventGameStarted) Name() string { return EventNameGameStarted }

type EventGameCompleted struct {
	Session GameSession
}

func (EventGameCompleted) Name() string { return EventNameGameCompleted }
