// Package http provides the HTTP handlers for the storage cluster API.
package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/filecluster/filecluster/internal/auth"
	"github.com/filecluster/filecluster/internal/cluster"
	"github.com/filecluster/filecluster/internal/middleware"
)

// AuthService defines the interface for authentication operations
// required by the HTTP handlers.
type AuthService interface {
	// Login authenticates the user identified by name or email and
	// returns the public user view with a fresh session token.
	Login(nameOrEmail, password, ip string) (cluster.LoginResult, error)
	// Logout closes the session; unknown tokens are ignored.
	Logout(token string)
}

// AuthHandler handles HTTP requests for login and logout.
type AuthHandler struct {
	AuthService AuthService
}

// LoginRequest represents the JSON payload for login.
type LoginRequest struct {
	// Login is the user name or email.
	Login string `json:"login"`
	// Password is the plaintext password to verify.
	Password string `json:"password"`
}

// Login handles POST /api/login requests.
// It expects a JSON body with non-empty "login" and "password" fields
// and returns the user view and session token on success. Unknown users
// and wrong passwords are both reported as invalid credentials.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Login == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	result, err := h.AuthService.Login(req.Login, req.Password, clientIP(r))
	if err != nil {
		if errors.Is(err, cluster.ErrUserNotFound) || errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, statusForError(err), err.Error())
		return
	}

	writeData(w, http.StatusOK, result)
}

// Logout handles POST /api/logout requests.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.AuthService.Logout(middleware.GetTokenFromContext(r.Context()))
	writeData(w, http.StatusOK, nil)
}
