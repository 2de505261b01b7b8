// Package httpserver exposes the gateway over a small JSON REST API and
// keeps HTTP concerns (validation, status mapping, middleware) out of the
// usecase layer.
package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/careerforge/ai-gateway/internal/domain"
)

type errorEnvelope struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, _ *http.Request, err error, details any) {
	code := http.StatusInternalServerError
	codeStr := "INTERNAL"
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		code = http.StatusBadRequest
		codeStr = "INVALID_ARGUMENT"
	case errors.Is(err, domain.ErrNotFound):
		code = http.StatusNotFound
		codeStr = "NOT_FOUND"
	}
	writeJSON(w, code, errorEnvelope{Error: apiError{Code: codeStr, Message: err.Error(), Details: details}})
}

// writeAIError maps the gateway's error kinds onto HTTP statuses: a
// feature gate is an upgrade prompt, quota is 429, a broken provider is a
// bad gateway, and an unusable model answer is unprocessable.
func writeAIError(w http.ResponseWriter, e *domain.AIError) {
	code := http.StatusInternalServerError
	codeStr := "INTERNAL"
	switch e.Kind {
	case domain.ErrorKindConfig:
		code = http.StatusInternalServerError
		codeStr = "CONFIGURATION"
	case domain.ErrorKindFeature:
		code = http.StatusForbidden
		codeStr = "UPGRADE_REQUIRED"
	case domain.ErrorKindQuota:
		code = http.StatusTooManyRequests
		codeStr = "QUOTA_EXCEEDED"
	case domain.ErrorKindUpstream:
		code = http.StatusBadGateway
		codeStr = "UPSTREAM_MODEL"
	case domain.ErrorKindParse:
		code = http.StatusUnprocessableEntity
		codeStr = "RESPONSE_PARSE"
	case domain.ErrorKindValidation:
		code = http.StatusUnprocessableEntity
		codeStr = "RESPONSE_VALIDATION"
	}
	writeJSON(w, code, errorEnvelope{Error: apiError{Code: codeStr, Message: e.Message, Details: e.RawSnippet}})
}
