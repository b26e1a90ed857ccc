package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/filecluster/filecluster/internal/middleware"
	"github.com/filecluster/filecluster/internal/models"
)

// NodeService defines the interface for node management operations
// required by the NodeHandler.
type NodeService interface {
	// ValidateSession resolves a session token into its user.
	ValidateSession(token string) (models.User, error)
	// AddNode registers a new storage node.
	AddNode(name string, capacity int) (models.Node, error)
	// FailNode marks a node INACTIVE and reroutes its primaries.
	FailNode(nodeID string) (models.Node, error)
	// RecoverNode marks a node ACTIVE again.
	RecoverNode(nodeID string) (models.Node, error)
	// SetBalancerPolicy switches the node selection policy.
	SetBalancerPolicy(policy string) error
}

// NodeHandler handles HTTP requests for node management. All node
// operations require an admin session.
type NodeHandler struct {
	NodeService NodeService
}

// AddNodeRequest represents the JSON payload for node registration.
type AddNodeRequest struct {
	Name     string `json:"name"`
	Capacity int    `json:"capacity"`
}

// SetPolicyRequest represents the JSON payload for a policy switch.
type SetPolicyRequest struct {
	Policy string `json:"policy"`
}

// requireAdmin resolves the caller and rejects non-admin sessions.
func (h *NodeHandler) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	user, err := h.NodeService.ValidateSession(middleware.GetTokenFromContext(r.Context()))
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return false
	}
	if user.Role != models.RoleAdmin {
		writeError(w, http.StatusForbidden, "admin role required")
		return false
	}
	return true
}

// Add handles POST /api/nodes requests.
func (h *NodeHandler) Add(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	var req AddNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" || req.Capacity <= 0 {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	node, err := h.NodeService.AddNode(req.Name, req.Capacity)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	writeData(w, http.StatusCreated, node)
}

// Fail handles POST /api/nodes/{id}/fail requests.
func (h *NodeHandler) Fail(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	node, err := h.NodeService.FailNode(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	writeData(w, http.StatusOK, node)
}

// Recover handles POST /api/nodes/{id}/recover requests.
func (h *NodeHandler) Recover(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	node, err := h.NodeService.RecoverNode(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	writeData(w, http.StatusOK, node)
}

// SetPolicy handles PUT /api/balancer/policy requests.
func (h *NodeHandler) SetPolicy(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	var req SetPolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Policy == "" {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	if err := h.NodeService.SetBalancerPolicy(req.Policy); err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	writeData(w, http.StatusOK, nil)
}
