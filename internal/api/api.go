package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/grooveguess/backend/internal/auth"
	"github.com/grooveguess/backend/internal/catalog"
	"github.com/grooveguess/backend/internal/domain"
	"github.com/grooveguess/backend/internal/errors"
	"github.com/grooveguess/backend/internal/event"
	"github.com/grooveguess/backend/internal/game"
	"github.com/grooveguess/backend/internal/stats"
)

type Config struct {
	Router       *gin.Engine
	EventBus     *event.Bus
	Auth         *auth.Service
	Game         *game.Service
	Stats        *stats.Service
	Curation     *catalog.Curation
	Redis        Redis
	PubsubPrefix string
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type API struct {
	auth     *auth.Service
	game     *game.Service
	stats    *stats.Service
	curation *catalog.Curation

	redis  Redis
	prefix string
}

func New(c Config) *API {
	a := &API{
		auth:     c.Auth,
		game:     c.Game,
		stats:    c.Stats,
		curation: c.Curation,
		redis:    c.Redis,
		prefix:   c.PubsubPrefix,
	}

	v1 := c.Router.Group("/api/v1")
	v1.POST("/auth/register", a.Register)
	v1.POST("/auth/login", a.Login)

	authed := v1.Group("", a.RequireAuth())
	authed.POST("/games", a.StartGame)
	authed.GET("/games/:sessionID/round", a.GetCurrentRound)
	authed.POST("/games/:sessionID/next", a.GetNextRound)
	authed.POST("/games/:sessionID/answers", a.SubmitAnswer)
	authed.GET("/games/:sessionID/results", a.GetGameResults)
	authed.GET("/stats/recent", a.ListRecentGames)
	authed.GET("/stats/me", a.GetUserStats)

	// Role enforcement lives in the curation service, not here; the
	// routes only require a signed-in caller.
	admin := authed.Group("/admin")
	admin.POST("/tracks", a.CreateTrack)
	admin.PUT("/tracks/:trackID", a.UpdateTrack)
	admin.DELETE("/tracks/:trackID", a.DeleteTrack)
	admin.POST("/quizzes", a.CreateQuiz)
	admin.POST("/quizzes/:quizID/tracks", a.AddTracksToQuiz)
	admin.DELETE("/quizzes/:quizID", a.DeleteQuiz)

	// Register event handlers
	c.EventBus.Subscribe(domain.EventNameGameStarted, func(ctx context.Context, e event.Event) error {
		return a.PublishGameStarted(ctx, e.(domain.EventGameStarted))
	})
	c.EventBus.Subscribe(domain.EventNameGameCompleted, func(ctx context.Context, e event.Event) error {
		return a.PublishGameCompleted(ctx, e.(domain.EventGameCompleted))
	})

	return a
}

type registerRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (a *API) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	u, err := a.auth.Register(c.Request.Context(), auth.RegisterRequest{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		abortError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":       u.ID,
		"username": u.Username,
		"email":    u.Email,
	})
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (a *API) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	resp, err := a.auth.Login(c.Request.Context(), auth.LoginRequest{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		abortError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":    resp.Token,
		"id":       resp.User.ID,
		"username": resp.User.Username,
	})
}

type startGameRequest struct {
	QuizID int64 `json:"quizId" binding:"required"`
}

func (a *API) StartGame(c *gin.Context) {
	var req startGameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	resp, err := a.game.StartGame(c.Request.Context(), game.StartGameRequest{
		QuizID: req.QuizID,
		UserID: userID(c),
	})
	if err != nil {
		abortError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"sessionId":          resp.SessionID,
		"totalRounds":        resp.TotalRounds,
		"currentRoundNumber": resp.CurrentRoundNumber,
		"score":              resp.Score,
		"completed":          resp.Completed,
		"currentRound":       roundJSON(resp.CurrentRound),
	})
}

func (a *API) GetCurrentRound(c *gin.Context) {
	resp, err := a.game.GetCurrentRound(c.Request.Context(), game.GetCurrentRoundRequest{
		SessionID: c.Param("sessionID"),
		UserID:    userID(c),
	})
	if err != nil {
		abortError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessionId":          resp.SessionID,
		"totalRounds":        resp.TotalRounds,
		"currentRoundNumber": resp.CurrentRoundNumber,
		"score":              resp.Score,
		"completed":          resp.Completed,
		"currentRound":       roundJSON(resp.CurrentRound),
	})
}

func (a *API) GetNextRound(c *gin.Context) {
	resp, err := a.game.GetNextRound(c.Request.Context(), game.GetNextRoundRequest{
		SessionID: c.Param("sessionID"),
		UserID:    userID(c),
	})
	if err != nil {
		abortError(c, err)
		return
	}

	c.JSON(http.StatusOK, roundJSON(*resp))
}

// Both fields are pointers so the zero values pass the required check:
// round 0 is the first round, and whether option id 0 matches anything is
// the engine's call, not the binding layer's.
type submitAnswerRequest struct {
	RoundNumber *int   `json:"roundNumber" binding:"required"`
	OptionID    *int64 `json:"optionId" binding:"required"`
}

func (a *API) SubmitAnswer(c *gin.Context) {
	var req submitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	resp, err := a.game.SubmitAnswer(c.Request.Context(), game.SubmitAnswerRequest{
		SessionID:   c.Param("sessionID"),
		UserID:      userID(c),
		RoundNumber: *req.RoundNumber,
		OptionID:    *req.OptionID,
	})
	if err != nil {
		abortError(c, err)
		return
	}

	body := gin.H{
		"correct":     resp.Correct,
		"points":      resp.Points,
		"isLastRound": resp.IsLastRound,
	}
	if resp.IsLastRound {
		body["finalScore"] = resp.FinalScore
	}

	c.JSON(http.StatusOK, body)
}

func (a *API) GetGameResults(c *gin.Context) {
	resp, err := a.game.GetGameResults(c.Request.Context(), game.GetGameResultsRequest{
		SessionID: c.Param("sessionID"),
		UserID:    userID(c),
	})
	if err != nil {
		abortError(c, err)
		return
	}

	tracks := make([]gin.H, 0, len(resp.Tracks))
	for _, t := range resp.Tracks {
		tr := gin.H{
			"roundNumber": t.RoundNumber,
			"trackId":     t.TrackID,
			"title":       t.Title,
			"artist":      t.Artist,
			"url":         t.URL,
			"wasGuessed":  t.WasGuessed,
			"options":     t.Options,
		}
		if t.UserAnswer != nil {
			tr["userAnswer"] = t.UserAnswer
		}
		tracks = append(tracks, tr)
	}

	c.JSON(http.StatusOK, gin.H{
		"quizId":      resp.QuizID,
		"quizTitle":   resp.QuizTitle,
		"totalRounds": resp.TotalRounds,
		"score":       resp.Score,
		"tracks":      tracks,
	})
}

func (a *API) ListRecentGames(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "0"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "10"))

	req := stats.ListRecentGamesRequest{Page: page, Size: size}
	if raw := c.Query("userId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			abortError(c, errors.New(errors.CodeInvalidArgument,
				errors.WithMessagef("userId must be an integer")))
			return
		}
		req.UserID = &id
	}

	resp, err := a.stats.ListRecentGames(c.Request.Context(), req)
	if err != nil {
		abortError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"games":       resp.Games,
		"totalGames":  resp.TotalCount,
		"totalPages":  resp.TotalPages,
		"currentPage": resp.CurrentPage,
	})
}

func (a *API) GetUserStats(c *gin.Context) {
	resp, err := a.stats.GetUserStats(c.Request.Context(), userID(c))
	if err != nil {
		abortError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"totalGames":   resp.TotalGames,
		"totalScore":   resp.TotalScore,
		"averageScore": resp.AverageScore,
		"highestScore": resp.HighestScore,
		"accuracy":     resp.Accuracy,
	})
}

func roundJSON(r game.RoundView) gin.H {
	return gin.H{
		"currentRound": r.CurrentRound,
		"url":          r.URL,
		"options":      r.Options,
	}
}

func abortError(c *gin.Context, err error) {
	e := errors.Convert(err)
	c.AbortWithStatusJSON(e.HTTPStatusCode(), gin.H{
		"code":    e.Code,
		"message": e.Message,
	})
}
