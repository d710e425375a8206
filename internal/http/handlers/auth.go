package handlers

import (
	"net/http"

	"github.com/finboard/server/internal/apperr"
	"github.com/finboard/server/internal/auth"
	"github.com/finboard/server/internal/middleware"
	"github.com/finboard/server/internal/model"
	"github.com/finboard/server/internal/respond"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	service    *auth.Service
	translator *respond.Translator
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(service *auth.Service, translator *respond.Translator) *AuthHandler {
	return &AuthHandler{service: service, translator: translator}
}

// registerRequest is the request body for POST /auth/register
type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// loginRequest is the request body for POST /auth/login
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// loginResponse is the data of a successful login
type loginResponse struct {
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	User         userResponse `json:"user"`
}

// refreshRequest is the request body for POST /auth/refresh and /auth/logout
type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// refreshResponse is the data of a successful refresh
type refreshResponse struct {
	AccessToken string       `json:"accessToken"`
	User        userResponse `json:"user"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type verifyResponse struct {
	User  userResponse `json:"user"`
	Valid bool         `json:"valid"`
}

// HandleRegister handles POST /auth/register
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeBody(r, &req); err != nil {
		h.translator.Error(w, r, err)
		return
	}

	user, err := h.service.Register(r.Context(), auth.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     model.Role(req.Role),
	})
	if err != nil {
		h.translator.Error(w, r, err)
		return
	}

	respond.OK(w, http.StatusCreated, userData{User: newUserResponse(user)}, "User registered successfully")
}

// HandleLogin handles POST /auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		h.translator.Error(w, r, err)
		return
	}

	result, err := h.service.Login(r.Context(), auth.LoginInput{
		Email:     req.Email,
		Password:  req.Password,
		ClientKey: middleware.ClientIP(r),
	})
	if err != nil {
		h.translator.Error(w, r, err)
		return
	}

	respond.OK(w, http.StatusOK, loginResponse{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		User:         newUserResponse(result.User),
	}, "Login successful")
}

// HandleRefresh handles POST /auth/refresh
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeBody(r, &req); err != nil {
		h.translator.Error(w, r, err)
		return
	}

	result, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.translator.Error(w, r, err)
		return
	}

	respond.OK(w, http.StatusOK, refreshResponse{
		AccessToken: result.AccessToken,
		User:        newUserResponse(result.User),
	}, "")
}

// HandleLogout handles POST /auth/logout (protected)
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeBody(r, &req); err != nil {
		h.translator.Error(w, r, err)
		return
	}

	if err := h.service.Logout(r.Context(), req.RefreshToken); err != nil {
		h.translator.Error(w, r, err)
		return
	}

	respond.OK(w, http.StatusOK, nil, "Logged out successfully")
}

// HandleForgotPassword handles POST /auth/forgot-password. The response does not
// reveal whether the email belongs to an account.
func (h *AuthHandler) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decodeBody(r, &req); err != nil {
		h.translator.Error(w, r, err)
		return
	}

	if err := h.service.ForgotPassword(r.Context(), req.Email); err != nil {
		h.translator.Error(w, r, err)
		return
	}

	respond.OK(w, http.StatusOK, nil, auth.ForgotPasswordMessage)
}

// HandleResetPassword handles POST /auth/reset-password
func (h *AuthHandler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeBody(r, &req); err != nil {
		h.translator.Error(w, r, err)
		return
	}

	if err := h.service.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		h.translator.Error(w, r, err)
		return
	}

	respond.OK(w, http.StatusOK, nil, "Password reset successfully")
}

// HandleVerify handles GET /auth/verify (protected)
func (h *AuthHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		h.translator.Error(w, r, apperr.Authentication("Authentication required"))
		return
	}
	respond.OK(w, http.StatusOK, verifyResponse{User: newUserResponse(*user), Valid: true}, "")
}

// HandleProfile handles GET /auth/profile (protected)
func (h *AuthHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	current, ok := middleware.GetUser(r.Context())
	if !ok {
		h.translator.Error(w, r, apperr.Authentication("Authentication required"))
		return
	}

	user, err := h.service.Profile(r.Context(), current.ID)
	if err != nil {
		h.translator.Error(w, r, err)
		return
	}
	respond.OK(w, http.StatusOK, userData{User: newUserResponse(user)}, "")
}

// HandleChangePassword handles PUT /auth/change-password (protected)
func (h *AuthHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	current, ok := middleware.GetUser(r.Context())
	if !ok {
		h.translator.Error(w, r, apperr.Authentication("Authentication required"))
		return
	}

	var req changePasswordRequest
	if err := decodeBody(r, &req); err != nil {
		h.translator.Error(w, r, err)
		return
	}

	if err := h.service.ChangePassword(r.Context(), current.ID, req.CurrentPassword, req.NewPassword); err != nil {
		h.translator.Error(w, r, err)
		return
	}
	respond.OK(w, http.StatusOK, nil, "Password changed successfully")
}
