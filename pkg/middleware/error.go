package middleware

import (
	"errors"
	"net/http"

	"refhire-rewards/pkg/errutil"

	"github.com/gin-gonic/gin"
)

// Error renders the last handler error as the canonical error envelope.
// Handlers attach errors with c.Error and return; domain errors keep their
// mapped status, anything else becomes a 500.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil || c.Writer.Written() {
			return
		}

		var be errutil.BaseError
		if errors.As(last.Err, &be) {
			c.JSON(be.Code.HTTPStatus(), be.JSON())
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    errutil.StatusInternal,
				"message": "internal error",
			},
		})
	}
}
