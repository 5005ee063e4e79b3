// backend/src/handlers/simulation_handler.go
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/username/capsim/backend/src/services"
)

type SimulationHandler struct {
	simulationService services.SimulationService
}

func NewSimulationHandler(simulationService services.SimulationService) *SimulationHandler {
	return &SimulationHandler{simulationService: simulationService}
}

// parseFloatParam reads an optional float query parameter, returning its
// default when absent and an ok=false when present but unparseable.
func parseFloatParam(r *http.Request, name string, def float64) (float64, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// HandleGetCapTable computes the cap table as of an optional date. The
// "exclude" parameter leaves one transaction out, which the UI uses for
// before/after comparisons of a financing round.
func (h *SimulationHandler) HandleGetCapTable(w http.ResponseWriter, r *http.Request) {
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

	asOfDate := r.URL.Query().Get("asOf")
	exclude := r.URL.Query().Get("exclude")

	result, err := h.simulationService.GetCapTable(userID, projectID, asOfDate, exclude)
	if err != nil {
		sendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// HandleGetWaterfall simulates an exit: exitProceeds and transactionCosts
// come from query parameters, lang selects the calculation log language.
func (h *SimulationHandler) HandleGetWaterfall(w http.ResponseWriter, r *http.Request) {
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

	exitProceeds, ok := parseFloatParam(r, "exitProceeds", 0)
	if !ok {
		sendJSONError(w, "Invalid exitProceeds value", http.StatusBadRequest)
		return
	}
	transactionCosts, ok := parseFloatParam(r, "transactionCosts", 0)
	if !ok {
		sendJSONError(w, "Invalid transactionCosts value", http.StatusBadRequest)
		return
	}
	if exitProceeds < 0 || transactionCosts < 0 {
		sendJSONError(w, "exitProceeds and transactionCosts cannot be negative", http.StatusBadRequest)
		return
	}

	asOfDate := r.URL.Query().Get("asOf")
	lang := r.URL.Query().Get("lang")

	result, err := h.simulationService.GetWaterfall(userID, projectID, asOfDate, exitProceeds, transactionCosts, lang)
	if err != nil {
		sendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

func (h *SimulationHandler) HandleGetVoting(w http.ResponseWriter, r *http.Request) {
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

	asOfDate := r.URL.Query().Get("asOf")

	result, err := h.simulationService.GetVoting(userID, projectID, asOfDate)
	if err != nil {
		sendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

func (h *SimulationHandler) HandleGetTotalCapitalization(w http.ResponseWriter, r *http.Request) {
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

	asOfDate := r.URL.Query().Get("asOf")
	lang := r.URL.Query().Get("lang")

	result, err := h.simulationService.GetTotalCapitalization(userID, projectID, asOfDate, lang)
	if err != nil {
		sendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
