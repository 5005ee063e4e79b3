// backend/src/handlers/project_handler.go
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/username/capsim/backend/src/config"
	"github.com/username/capsim/backend/src/logger"
	"github.com/username/capsim/backend/src/security/validation"
	"github.com/username/capsim/backend/src/services"
)

type ProjectHandler struct {
	projectService services.ProjectService
}

func NewProjectHandler(projectService services.ProjectService) *ProjectHandler {
	return &ProjectHandler{projectService: projectService}
}

// serviceErrorStatus maps the service layer's sentinel errors onto HTTP
// status codes. Unknown errors stay 500 so internals never leak.
func serviceErrorStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrProjectNotFound),
		errors.Is(err, services.ErrStakeholderNotFound),
		errors.Is(err, services.ErrTransactionNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrProjectNameTaken):
		return http.StatusConflict
	case errors.Is(err, services.ErrProjectLimitReached),
		errors.Is(err, services.ErrTransactionLimitReached):
		return http.StatusForbidden
	case errors.Is(err, services.ErrValidationFailed),
		errors.Is(err, services.ErrParsingFailed):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func sendServiceError(w http.ResponseWriter, err error) {
	status := serviceErrorStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "Internal server error"
	}
	sendJSONError(w, message, status)
}

func projectIDFromURL(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "projectID"), 10, 64)
}

type projectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *ProjectHandler) HandleCreateProject(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	var req projectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	project, err := h.projectService.CreateProject(userID, req.Name, req.Description)
	if err != nil {
		sendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(project)
}

func (h *ProjectHandler) HandleListProjects(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	projects, err := h.projectService.ListProjects(userID)
	if err != nil {
		logger.InfoFromContext(r.Context(), "Failed to list projects", "error", err)
		sendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(projects)
}

func (h *ProjectHandler) HandleGetProject(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}
	projectID, err := projectIDFromURL(r)
	if err != nil {
		sendJSONError(w, "Invalid project ID", http.StatusBadRequest)
		return
	}

	project, err := h.projectService.GetProject(userID, projectID)
	if err != nil {
		sendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(project)
}

func (h *ProjectHandler) HandleUpdateProject(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}
	projectID, err := projectIDFromURL(r)
	if err != nil {
		sendJSONError(w, "Invalid project ID", http.StatusBadRequest)
		return
	}

	var req projectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	project, err := h.projectService.UpdateProject(userID, projectID, req.Name, req.Description)
	if err != nil {
		sendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(project)
}

func (h *ProjectHandler) HandleDeleteProject(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}
	projectID, err := projectIDFromURL(r)
	if err != nil {
		sendJSONError(w, "Invalid project ID", http.StatusBadRequest)
		return
	}

	if err := h.projectService.DeleteProject(userID, projectID); err != nil {
		sendServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Stakeholders ---

func (h *ProjectHandler) HandleListStakeholders(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}
	projectID, err := projectIDFromURL(r)
	if err != nil {
		sendJSONError(w, "Invalid project ID", http.StatusBadRequest)
		return
	}

	stakeholders, err := h.projectService.ListStakeholders(userID, projectID)
	if err != nil {
		sendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stakeholders)
}

func (h *ProjectHandler) HandleCreateStakeholder(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}
	projectID, err := projectIDFromURL(r)
	if err != nil {
		sendJSONError(w, "Invalid project ID", http.StatusBadRequest)
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	stakeholder, err := h.projectService.CreateStakeholder(userID, projectID, req.Name)
	if err != nil {
		sendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(stakeholder)
}

func (h *ProjectHandler) HandleRenameStakeholder(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}
	projectID, err := projectIDFromURL(r)
	if err != nil {
		sendJSONError(w, "Invalid project ID", http.StatusBadRequest)
		return
	}
	stakeholderID := chi.URLParam(r, "stakeholderID")

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.projectService.RenameStakeholder(userID, projectID, stakeholderID, req.Name); err != nil {
		sendServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Import / Export ---

func (h *ProjectHandler) HandleImportProject(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, config.Cfg.MaxImportSizeBytes)
	if err := r.ParseMultipartForm(config.Cfg.MaxImportSizeBytes); err != nil {
		sendJSONError(w, "File too large or malformed multipart request", http.StatusRequestEntityTooLarge)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		sendJSONError(w, "Missing 'file' form field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if err := validation.ValidateClientContentType(header.Header.Get("Content-Type")); err != nil {
		sendJSONError(w, err.Error(), http.StatusUnsupportedMediaType)
		return
	}
	if _, err := validation.ValidateFileContentByMagicBytes(file); err != nil {
		sendJSONError(w, err.Error(), http.StatusUnsupportedMediaType)
		return
	}

	projectName := r.FormValue("name")
	if projectName == "" {
		projectName = strings.TrimSuffix(header.Filename, filepath.Ext(header.Filename))
	}
	format := r.FormValue("format")

	project, err := h.projectService.ImportProject(userID, file, format, projectName)
	if err != nil {
		logger.ErrorFromContext(r.Context(), "Project import failed", "filename", header.Filename, "error", err)
		sendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(project)
}

func (h *ProjectHandler) HandleExportProject(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "Authentication required", http.StatusUnauthorized)
		return
	}
	projectID, err := projectIDFromURL(r)
	if err != nil {
		sendJSONError(w, "Invalid project ID", http.StatusBadRequest)
		return
	}

	project, err := h.projectService.GetProject(userID, projectID)
	if err != nil {
		sendServiceError(w, err)
		return
	}

	filename := fmt.Sprintf("captable-template-%s.csv", strings.ReplaceAll(project.Name, " ", "_"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	if err := h.projectService.ExportProject(userID, projectID, w); err != nil {
		// Headers are already sent; all we can do is log.
		logger.ErrorFromContext(r.Context(), "Project export failed mid-stream", "projectID", projectID, "error", err)
	}
}
