package http_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/filecluster/filecluster/internal/audit"
	"github.com/filecluster/filecluster/internal/cluster"
	"github.com/filecluster/filecluster/internal/models"
	handler "github.com/filecluster/filecluster/internal/server/handler/http"
)

// fakeStatusService records calls and returns preconfigured results.
type fakeStatusService struct {
	receivedFilter audit.Filter

	status  cluster.Status
	entries []models.AuditEntry
}

func (f *fakeStatusService) SystemStatus() cluster.Status {
	return f.status
}

func (f *fakeStatusService) QueryLogs(filter audit.Filter) []models.AuditEntry {
	f.receivedFilter = filter
	return f.entries
}

func TestStatusHandler_Status(t *testing.T) {
	fake := &fakeStatusService{
		status: cluster.Status{
			Stats: cluster.Stats{TotalNodes: 5, ActiveNodes: 4, TotalFiles: 1},
		},
	}
	h := &handler.StatusHandler{StatusService: fake}

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	w := httptest.NewRecorder()

	h.Status(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want %d", w.Code, http.StatusOK)
	}

	e := decodeEnvelope(t, w)
	var status cluster.Status
	if err := json.Unmarshal(e.Data, &status); err != nil {
		t.Fatalf("failed to decode data: %v", err)
	}
	if status.Stats.TotalNodes != 5 || status.Stats.ActiveNodes != 4 {
		t.Errorf("stats = %+v; want 5 total, 4 active", status.Stats)
	}
}

func TestStatusHandler_LogsFilter(t *testing.T) {
	fake := &fakeStatusService{
		entries: []models.AuditEntry{{ID: "e1", Event: models.EventNodeFailed, NodeID: "node1"}},
	}
	h := &handler.StatusHandler{StatusService: fake}

	req := httptest.NewRequest(http.MethodGet, "/api/logs?userId=user1&nodeId=node1&event=NODE_FAILED", nil)
	w := httptest.NewRecorder()

	h.Logs(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want %d", w.Code, http.StatusOK)
	}

	want := audit.Filter{UserID: "user1", NodeID: "node1", Event: models.EventNodeFailed}
	if fake.receivedFilter != want {
		t.Errorf("filter = %+v; want %+v", fake.receivedFilter, want)
	}

	e := decodeEnvelope(t, w)
	var entries []models.AuditEntry
	if err := json.Unmarshal(e.Data, &entries); err != nil {
		t.Fatalf("failed to decode data: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "e1" {
		t.Errorf("entries = %+v; want the single seeded entry", entries)
	}
}
