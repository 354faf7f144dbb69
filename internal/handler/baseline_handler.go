package handler

import (
	"net/http"

	"FinMonitorAPI/internal/engine"
	"FinMonitorAPI/internal/logger"

	"github.com/gorilla/mux"
)

type BaselineHandler struct {
	engine *engine.Engine
	log    *logger.Logger
}

func NewBaselineHandler(eng *engine.Engine, log *logger.Logger) *BaselineHandler {
	return &BaselineHandler{
		engine: eng,
		log:    log,
	}
}

func (h *BaselineHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/baselines", h.GetBaselines).Methods("GET")
	r.HandleFunc("/baselines/{metric}", h.GetBaseline).Methods("GET")
}

// GetBaselines serves a snapshot of every tracked metric baseline.
func (h *BaselineHandler) GetBaselines(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.engine.BaselineSummaries())
}

func (h *BaselineHandler) GetBaseline(w http.ResponseWriter, r *http.Request) {
	metric := mux.Vars(r)["metric"]

	summary, ok := h.engine.BaselineSummary(metric)
	if !ok {
		respondError(w, http.StatusNotFound, "No baseline tracked for metric: "+metric)
		return
	}

	respondJSON(w, http.StatusOK, summary)
}
