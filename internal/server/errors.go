package server

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"corporatepay-reconciliation/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

type errorPayload struct {
	Category   errors.ErrorCategory `json:"category"`
	Code       errors.ErrorCode     `json:"code"`
	Message    string               `json:"message"`
	Suggestion string               `json:"suggestion,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

// ErrorHandlingMiddleware renders the last error a handler attached with
// AbortWithError, unless the handler already wrote a response
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

// AbortWithError records err for ErrorHandlingMiddleware and stops the chain
func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	rerr, ok := errors.AsReconcilerError(err)
	if !ok {
		rerr = errors.InternalError(errors.CodeUnexpectedError, "http request", err)
	}

	message := rerr.Message
	if rerr.Category == errors.CategoryInternal {
		message = "internal server error"
	}

	return rerr.HTTPStatus(), errorPayload{
		Category:   rerr.Category,
		Code:       rerr.Code,
		Message:    message,
		Suggestion: rerr.Suggestion,
	}
}

// bindError turns a gin binding failure into a request error. Validation
// failures are 422, malformed bodies 400.
func bindError(err error) error {
	var verrs validator.ValidationErrors
	if stderrors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := strings.ToLower(fe.Field()[:1]) + fe.Field()[1:]
		code := errors.CodeInvalidData
		if fe.Tag() == "required" {
			code = errors.CodeMissingField
		}
		return errors.ValidationError(code, field, fe.Value(), fmt.Errorf("failed on '%s' rule", fe.Tag())).
			WithSuggestion(fmt.Sprintf("check the '%s' field of the request body", field))
	}

	return errors.Wrap(err, errors.CategoryParse, errors.CodeInvalidFormat, "malformed request body").
		WithSuggestion("send a JSON object matching the endpoint's request shape")
}

func notFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, errorResponse{Error: errorPayload{
		Category: errors.CategoryValidation,
		Code:     errors.CodeNotFound,
		Message:  fmt.Sprintf("route not found: %s %s", c.Request.Method, c.Request.URL.Path),
	}})
}
