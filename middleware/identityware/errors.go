package identityware

import (
	"errors"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	guardian "github.com/goliatone/go-guardian"
	"github.com/goliatone/go-print"
)

// ErrorBody is the JSON envelope for failed requests
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries only the public message; causes stay in the logs
type ErrorDetail struct {
	Code     int            `json:"code"`
	TextCode string         `json:"text_code"`
	Message  string         `json:"message"`
	Fields   map[string]any `json:"fields,omitempty"`
}

// RenderError maps err onto a status code and a response body
func RenderError(err error) (int, ErrorBody) {
	status := guardian.StatusCode(err)
	kind := guardian.KindOf(err)
	if kind == "" {
		kind = guardian.KindInternal
	}
	return status, ErrorBody{Error: ErrorDetail{
		Code:     status,
		TextCode: string(kind),
		Message:  guardian.PublicMessage(err),
		Fields:   guardian.ValidationFields(err),
	}}
}

func logError(logger guardian.Logger, err error, path string) {
	var richErr *goerrors.Error
	if !errors.As(err, &richErr) {
		logger.Error("request failed", "error", err, "path", path)
		return
	}

	status := guardian.StatusCode(err)
	args := []any{
		"error", richErr.Message,
		"text_code", richErr.TextCode,
		"category", richErr.Category,
		"path", path,
	}
	if len(richErr.Metadata) > 0 {
		args = append(args, "details", print.MaybePrettyJSON(richErr.Metadata))
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", args...)
		return
	}
	logger.Info("request rejected", args...)
}
