package http

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/filecluster/filecluster/internal/middleware"
)

// NewRouter constructs and returns an HTTP handler that serves the
// storage cluster API. It applies JSON content-type enforcement and
// request logging, and mounts the endpoints under /api.
//
// Routes:
//
//	POST /api/login               → authHandler.Login
//	GET  /api/status              → statusHandler.Status
//	POST /api/logout              → authHandler.Logout      (bearer token)
//	POST /api/files               → fileHandler.Create      (bearer token)
//	PUT  /api/files/{id}          → fileHandler.Update      (bearer token)
//	GET  /api/logs                → statusHandler.Logs      (bearer token)
//	POST /api/nodes               → nodeHandler.Add         (bearer token, admin)
//	POST /api/nodes/{id}/fail     → nodeHandler.Fail        (bearer token, admin)
//	POST /api/nodes/{id}/recover  → nodeHandler.Recover     (bearer token, admin)
//	PUT  /api/balancer/policy     → nodeHandler.SetPolicy   (bearer token, admin)
func NewRouter(
	authHandler *AuthHandler,
	fileHandler *FileHandler,
	nodeHandler *NodeHandler,
	statusHandler *StatusHandler,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RealIP)
	// Only allow requests with Content-Type: application/json
	r.Use(chiMiddleware.AllowContentType("application/json"))
	// Log each request and its metadata
	r.Use(middleware.WithRequestLogging(logger))

	r.Route("/api", func(r chi.Router) {
		// Public endpoints
		r.Post("/login", authHandler.Login)
		r.Get("/status", statusHandler.Status)

		// Protected group: requires a bearer token
		r.Group(func(r chi.Router) {
			r.Use(middleware.TokenAuth)

			r.Post("/logout", authHandler.Logout)
			r.Post("/files", fileHandler.Create)
			r.Put("/files/{id}", fileHandler.Update)
			r.Get("/logs", statusHandler.Logs)
			r.Post("/nodes", nodeHandler.Add)
			r.Post("/nodes/{id}/fail", nodeHandler.Fail)
			r.Post("/nodes/{id}/recover", nodeHandler.Recover)
			r.Put("/balancer/policy", nodeHandler.SetPolicy)
		})
	})

	return r
}
