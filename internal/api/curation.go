package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/grooveguess/backend/internal/catalog"
	"github.com/grooveguess/backend/internal/errors"
)

type trackRequest struct {
	Title  string `json:"title" binding:"required"`
	Artist string `json:"artist" binding:"required"`
	URL    string `json:"url" binding:"required"`
}

func (a *API) CreateTrack(c *gin.Context) {
	var req trackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	track, err := a.curation.CreateTrack(c.Request.Context(), catalog.CreateTrackRequest{
		UserID: userID(c),
		Title:  req.Title,
		Artist: req.Artist,
		URL:    req.URL,
	})
	if err != nil {
		abortError(c, err)
		return
	}

	c.JSON(http.StatusCreated, track)
}

func (a *API) UpdateTrack(c *gin.Context) {
	trackID, ok := pathID(c, "trackID")
	if !ok {
		return
	}

	var req trackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	track, err := a.curation.UpdateTrack(c.Request.Context(), catalog.UpdateTrackRequest{
		UserID:  userID(c),
		TrackID: trackID,
		Title:   req.Title,
		Artist:  req.Artist,
		URL:     req.URL,
	})
	if err != nil {
		abortError(c, err)
		return
	}

	c.JSON(http.StatusOK, track)
}

func (a *API) DeleteTrack(c *gin.Context) {
	trackID, ok := pathID(c, "trackID")
	if !ok {
		return
	}

	if err := a.curation.DeleteTrack(c.Request.Context(), userID(c), trackID); err != nil {
		abortError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

type createQuizRequest struct {
	Title       string  `json:"title" binding:"required"`
	Description string  `json:"description"`
	RoundCount  int     `json:"roundCount" binding:"required"`
	TrackIDs    []int64 `json:"trackIds"`
}

func (a *API) CreateQuiz(c *gin.Context) {
	var req createQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	quiz, err := a.curation.CreateQuiz(c.Request.Context(), catalog.CreateQuizRequest{
		UserID:      userID(c),
		Title:       req.Title,
		Description: req.Description,
		RoundCount:  req.RoundCount,
		TrackIDs:    req.TrackIDs,
	})
	if err != nil {
		abortError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":          quiz.ID,
		"title":       quiz.Title,
		"description": quiz.Description,
		"roundCount":  quiz.RoundCount,
	})
}

type addTracksRequest struct {
	TrackIDs []int64 `json:"trackIds" binding:"required"`
}

func (a *API) AddTracksToQuiz(c *gin.Context) {
	quizID, ok := pathID(c, "quizID")
	if !ok {
		return
	}

	var req addTracksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	err := a.curation.AddTracksToQuiz(c.Request.Context(), catalog.AddTracksToQuizRequest{
		UserID:   userID(c),
		QuizID:   quizID,
		TrackIDs: req.TrackIDs,
	})
	if err != nil {
		abortError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (a *API) DeleteQuiz(c *gin.Context) {
	quizID, ok := pathID(c, "quizID")
	if !ok {
		return
	}

	if err := a.curation.DeleteQuiz(c.Request.Context(), userID(c), quizID); err != nil {
		abortError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		abortError(c, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("%s must be an integer", name)))
		return 0, false
	}
	return id, true
}
