// Package respond writes the uniform JSON envelopes and translates errors to responses.
package respond

import (
	"encoding/json"
	"log/slog"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/finboard/server/internal/apperr"
)

// Envelope is the body of every API response.
type Envelope struct {
	Success bool                `json:"success"`
	Data    any                 `json:"data,omitempty"`
	Message string              `json:"message,omitempty"`
	Errors  []apperr.FieldError `json:"errors,omitempty"`
	Debug   string              `json:"debug,omitempty"`
}

// Translator converts errors into error envelopes. Debug details are only exposed outside production.
type Translator struct {
	logger     *slog.Logger
	production bool
}

// NewTranslator creates a new Translator
func NewTranslator(logger *slog.Logger, production bool) *Translator {
	return &Translator{logger: logger, production: production}
}

// JSON writes v with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// OK writes a success envelope.
func OK(w http.ResponseWriter, status int, data any, message string) {
	JSON(w, status, Envelope{Success: true, Data: data, Message: message})
}

// Fail writes an error envelope with a fixed message.
func Fail(w http.ResponseWriter, status int, message string) {
	JSON(w, status, Envelope{Success: false, Message: message})
}

// Error classifies err and writes the matching error envelope.
func (t *Translator) Error(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := apperr.As(err)
	if !ok {
		appErr = apperr.Internal(err)
	}

	status := appErr.Kind.HTTPStatus()
	env := Envelope{Success: false, Message: appErr.Message, Errors: appErr.Fields}

	switch appErr.Kind {
	case apperr.KindInternal, apperr.KindUnavailable:
		t.logger.Error("request failed",
			"request_id", chimw.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"kind", appErr.Kind.String(),
			"error", err,
		)
		if !t.production {
			env.Debug = err.Error()
		}
	default:
		t.logger.Debug("request rejected",
			"request_id", chimw.GetReqID(r.Context()),
			"path", r.URL.Path,
			"kind", appErr.Kind.String(),
			"message", appErr.Message,
		)
	}

	JSON(w, status, env)
}
