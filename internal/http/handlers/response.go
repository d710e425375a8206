package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/finboard/server/internal/apperr"
	"github.com/finboard/server/internal/middleware"
	"github.com/finboard/server/internal/model"
	"github.com/finboard/server/internal/respond"
)

// userResponse is the safe projection of a user in API responses
type userResponse struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Role      string     `json:"role"`
	Status    string     `json:"status"`
	LastLogin *time.Time `json:"lastLogin"`
	CreatedAt time.Time  `json:"createdAt"`
}

func newUserResponse(u model.User) userResponse {
	return userResponse{
		ID:        u.ID.String(),
		Name:      u.Name,
		Email:     u.Email,
		Role:      string(u.Role),
		Status:    string(u.Status),
		LastLogin: u.LastLoginAt,
		CreatedAt: u.CreatedAt,
	}
}

// userData wraps a user for the data field of the envelope
type userData struct {
	User userResponse `json:"user"`
}

// decodeBody decodes a JSON request body into dst. An empty body leaves dst untouched;
// any other body must be declared application/json.
func decodeBody(r *http.Request, dst any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return apperr.Validation("Invalid request body")
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if !middleware.IsJSON(r) {
		return apperr.Validation("Content-Type must be application/json")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return apperr.Validation("Invalid request body")
	}
	return nil
}

// NotFound answers unknown routes
func NotFound(w http.ResponseWriter, r *http.Request) {
	respond.Fail(w, http.StatusNotFound, "Route not found")
}

// MethodNotAllowed answers known routes called with an unsupported method
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	respond.Fail(w, http.StatusMethodNotAllowed, "Method not allowed")
}
