package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/filecluster/filecluster/internal/middleware"
	"github.com/filecluster/filecluster/internal/models"
)

// FileService defines the interface for file operations required by the
// FileHandler.
type FileService interface {
	// CreateFile places a new file on a balancer-selected node.
	CreateFile(name, content, ownerID, token string) (models.File, error)
	// UpdateFile rewrites the file content under its edit lock.
	UpdateFile(fileID, content, userID, token string) (models.File, error)
}

// FileHandler handles HTTP requests for file creation and updates.
type FileHandler struct {
	FileService FileService
}

// CreateFileRequest represents the JSON payload for file creation.
type CreateFileRequest struct {
	Name    string `json:"name"`
	Content string `json:"content"`
	OwnerID string `json:"ownerId"`
}

// UpdateFileRequest represents the JSON payload for a file update.
type UpdateFileRequest struct {
	Content string `json:"content"`
	UserID  string `json:"userId"`
}

// Create handles POST /api/files requests.
func (h *FileHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" || req.OwnerID == "" {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	token := middleware.GetTokenFromContext(r.Context())
	file, err := h.FileService.CreateFile(req.Name, req.Content, req.OwnerID, token)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	writeData(w, http.StatusCreated, file)
}

// Update handles PUT /api/files/{id} requests.
func (h *FileHandler) Update(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "id")

	var req UpdateFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	token := middleware.GetTokenFromContext(r.Context())
	file, err := h.FileService.UpdateFile(fileID, req.Content, req.UserID, token)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	writeData(w, http.StatusOK, file)
}
