package api

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/grooveguess/backend/internal/errors"
)

const userIDKey = "userID"

// RequireAuth validates the bearer token and stores the authenticated
// user id on the request context. Handlers past this middleware can rely
// on userID being set.
func (a *API) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			abortError(c, errors.New(errors.CodeUnauthenticated,
				errors.WithMessagef("missing bearer token")))
			return
		}

		id, err := a.auth.VerifyToken(token)
		if err != nil {
			abortError(c, err)
			return
		}

		c.Set(userIDKey, id)
		c.Next()
	}
}

func userID(c *gin.Context) int64 {
	return c.GetInt64(userIDKey)
}
