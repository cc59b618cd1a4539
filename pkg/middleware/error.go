package middleware

import (
	"errors"
	"net/http"

	"contaminer/pkg/errutil"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Error renders the last error attached to the context. Coded errors keep
// their code and map to its HTTP status, anything else is an internal error.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil || c.Writer.Written() {
			return
		}

		var be errutil.BaseError
		if errors.As(last.Err, &be) {
			if be.Code.HTTPCode() >= http.StatusInternalServerError {
				zap.L().Error("[HTTP] request failed",
					zap.String("path", c.FullPath()),
					zap.String("code", string(be.Code)),
					zap.Error(last.Err),
				)
			}
			be.Err = nil
			c.JSON(be.Code.HTTPCode(), be.JSON())
			return
		}

		zap.L().Error("[HTTP] unhandled error", zap.String("path", c.FullPath()), zap.Error(last.Err))
		c.JSON(http.StatusInternalServerError, errutil.BaseError{
			Code:    errutil.StatusInternal,
			Message: "internal server error",
		}.JSON())
	}
}
