package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// envelope is the wire shape shared by every non-download endpoint (auth,
// stats, middleware rejections). The download endpoints speak their own
// flat contract and bypass it.
type envelope struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Respond writes the envelope with an explicit HTTP status and app code.
func Respond(ctx *gin.Context, status int, code int, message string, data interface{}) {
	ctx.JSON(status, envelope{Code: code, Message: message, Data: data})
}

// Success writes a 200 envelope with code 0.
func Success(ctx *gin.Context, data interface{}) {
	Respond(ctx, http.StatusOK, 0, "success", data)
}

// Error writes an error envelope; the app code disambiguates causes sharing
// one HTTP status (40101..40105 are all 401).
func Error(ctx *gin.Context, status int, code int, message string) {
	Respond(ctx, status, code, message, nil)
}
