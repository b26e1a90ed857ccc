package http

import (
	"net/http"

	"github.com/filecluster/filecluster/internal/audit"
	"github.com/filecluster/filecluster/internal/cluster"
	"github.com/filecluster/filecluster/internal/models"
)

// StatusService defines the interface for read-only cluster views
// required by the StatusHandler.
type StatusService interface {
	// SystemStatus assembles the full cluster snapshot.
	SystemStatus() cluster.Status
	// QueryLogs returns the audit entries matching the filter.
	QueryLogs(f audit.Filter) []models.AuditEntry
}

// StatusHandler handles HTTP requests for cluster status and audit logs.
type StatusHandler struct {
	StatusService StatusService
}

// Status handles GET /api/status requests.
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, h.StatusService.SystemStatus())
}

// Logs handles GET /api/logs requests. The query parameters "userId",
// "nodeId" and "event" narrow the result.
func (h *StatusHandler) Logs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entries := h.StatusService.QueryLogs(audit.Filter{
		UserID: q.Get("userId"),
		NodeID: q.Get("nodeId"),
		Event:  models.EventKind(q.Get("event")),
	})
	writeData(w, http.StatusOK, entries)
}
