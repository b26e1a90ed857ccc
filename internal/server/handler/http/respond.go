package http

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"github.com/filecluster/filecluster/internal/auth"
	"github.com/filecluster/filecluster/internal/balancer"
	"github.com/filecluster/filecluster/internal/cluster"
	"github.com/filecluster/filecluster/internal/registry"
	"github.com/filecluster/filecluster/internal/store"
)

// response is the JSON envelope shared by every endpoint.
type response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(response{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(response{Success: false, Error: msg})
}

// statusForError maps domain errors onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrSessionExpired),
		errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrIPBlocked),
		errors.Is(err, cluster.ErrUnauthorized),
		errors.Is(err, store.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, auth.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, cluster.ErrUserNotFound),
		errors.Is(err, store.ErrFileNotFound),
		errors.Is(err, registry.ErrNodeNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrLockConflict):
		return http.StatusConflict
	case errors.Is(err, balancer.ErrNoNodesAvailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

// clientIP extracts the caller's address without the port.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
