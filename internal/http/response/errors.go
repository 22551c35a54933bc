package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/lumen-backend/internal/platform/apierr"
)

// RespondErr maps an apierr.Error to its status and code. Anything else is a
// 500 under fallbackCode.
func RespondErr(c *gin.Context, fallbackCode string, err error) {
	var ae *apierr.Error
	if errors.As(err, &ae) && ae.Status != 0 {
		code := ae.Code
		if code == "" {
			code = string(ae.Kind)
		}
		RespondError(c, ae.Status, code, ae)
		return
	}
	RespondError(c, http.StatusInternalServerError, fallbackCode, err)
}

// Abort writes the error and stops the handler chain.
func Abort(c *gin.Context, status int, code string, err error) {
	RespondError(c, status, code, err)
	c.Abort()
}
