// backend/src/handlers/transaction_handler.go
package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/username/capsim/backend/src/logger"
	"github.com/username/capsim/backend/src/services"
)

type TransactionHandler struct {
	projectService services.ProjectService
}

func NewTransactionHandler(projectService services.ProjectService) *TransactionHandler {
	return &TransactionHandler{projectService: projectService}
}

func (h *TransactionHandler) HandleListTransactions(w http.ResponseWriter, r *http.Request) {
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

	txs, err := h.projectService.ListTransactions(userID, projectID)
	if err != nil {
		sendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(txs)
}

func (h *TransactionHandler) HandleAddTransaction(w http.ResponseWriter, r *http.Request) {
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

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		sendJSONError(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	tx, err := h.projectService.AddTransaction(userID, projectID, payload)
	if err != nil {
		logger.InfoFromContext(r.Context(), "Transaction rejected", "projectID", projectID, "error", err)
		sendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(tx)
}

func (h *TransactionHandler) HandleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
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
	transactionID := chi.URLParam(r, "transactionID")

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		sendJSONError(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	tx, err := h.projectService.UpdateTransaction(userID, projectID, transactionID, payload)
	if err != nil {
		sendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tx)
}

func (h *TransactionHandler) HandleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
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
	transactionID := chi.URLParam(r, "transactionID")

	if err := h.projectService.DeleteTransaction(userID, projectID, transactionID); err != nil {
		sendServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
