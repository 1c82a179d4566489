package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/YorickdeJong/energy-contracts/internal/common"
)

const ctxErrorCode = "error_code"

var statusByCode = map[string]int{
	common.CodeNotFound:          http.StatusNotFound,
	common.CodeForbidden:         http.StatusForbidden,
	common.CodeUnauthorized:      http.StatusUnauthorized,
	common.CodeInvalidInput:      http.StatusBadRequest,
	common.CodeValidation:        http.StatusBadRequest,
	common.CodeUnsupportedFormat: http.StatusUnsupportedMediaType,
	common.CodeConflict:          http.StatusConflict,
	common.CodePrecondition:      http.StatusConflict,
	common.CodeConversion:        http.StatusUnprocessableEntity,
	common.CodeExtraction:        http.StatusBadGateway,
	common.CodeParse:             http.StatusBadGateway,
	common.CodeConfiguration:     http.StatusServiceUnavailable,
	common.CodeInternal:          http.StatusInternalServerError,
}

type errorBody struct {
	Code    string                   `json:"code"`
	Message string                   `json:"message"`
	Fields  []common.ValidationError `json:"fields,omitempty"`
}

type errorResponse struct {
	Error     errorBody `json:"error"`
	RequestID string    `json:"request_id,omitempty"`
}

// StatusFor maps an error code to its HTTP status. Unknown codes are 500.
func StatusFor(code string) int {
	if s, ok := statusByCode[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// writeError renders err. Errors without an AppError in the chain are
// reported as INTERNAL without leaking their text.
func writeError(c *gin.Context, err error) {
	var ae *common.AppError
	body := errorBody{Code: common.CodeInternal, Message: "internal server error"}
	if errors.As(err, &ae) {
		body = errorBody{Code: ae.Code, Message: ae.Message, Fields: ae.Fields}
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		body = errorBody{Code: common.CodeInvalidInput, Message: "request body too large"}
	}
	c.Set(ctxErrorCode, body.Code)
	if body.Code == common.CodeInternal {
		_ = c.Error(err)
	}
	c.JSON(StatusFor(body.Code), errorResponse{
		Error:     body,
		RequestID: common.RequestIDFromContext(c.Request.Context()),
	})
}
