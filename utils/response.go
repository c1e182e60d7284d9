package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// JSONResponse is the envelope every API handler answers with. Code 0 means success;
// failures carry a five digit code whose first three digits mirror the HTTP status.
type JSONResponse struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Data      any    `json:"data,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// Respond writes the envelope, echoing the request id set by Ginzap.
func Respond(ctx *gin.Context, status, code int, message string, data any) {
	ctx.JSON(status, JSONResponse{
		Code:      code,
		Message:   message,
		Data:      data,
		RequestID: ctx.GetString("request_id"),
	})
}

func Success(ctx *gin.Context, data any) {
	Respond(ctx, http.StatusOK, 0, "success", data)
}

func Error(ctx *gin.Context, status, code int, message string) {
	Respond(ctx, status, code, message, nil)
}

// ErrorWithData is Error with a payload, e.g. the existing streak on a duplicate check-in.
func ErrorWithData(ctx *gin.Context, status, code int, message string, data any) {
	Respond(ctx, status, code, message, data)
}
