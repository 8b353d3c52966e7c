package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorCase pairs a sentinel error with the status and message clients see.
type ErrorCase struct {
	Err     error
	Status  int
	Message string
}

// RespondWithMappedError writes the first matching case for err, or the
// fallback when no sentinel matches. Wrapped errors match through errors.Is,
// so service layers are free to annotate their sentinels.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase, fallbackStatus int, fallbackMessage string) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	for _, candidate := range cases {
		if candidate.Err != nil && errors.Is(err, candidate.Err) {
			c.JSON(candidate.Status, NewErrorResponse(c, candidate.Message))
			return
		}
	}

	c.JSON(fallbackStatus, NewErrorResponse(c, fallbackMessage))
}
