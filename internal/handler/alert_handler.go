package handler

import (
	"net/http"
	"strconv"

	"FinMonitorAPI/internal/engine"
	"FinMonitorAPI/internal/logger"
	"FinMonitorAPI/internal/repository"

	"github.com/gorilla/mux"
)

type AlertHandler struct {
	engine    *engine.Engine
	alertRepo repository.IAlertRepository
	dlqRepo   repository.IDeadLetterRepository
	log       *logger.Logger
}

func NewAlertHandler(eng *engine.Engine, alertRepo repository.IAlertRepository, dlqRepo repository.IDeadLetterRepository, log *logger.Logger) *AlertHandler {
	return &AlertHandler{
		engine:    eng,
		alertRepo: alertRepo,
		dlqRepo:   dlqRepo,
		log:       log,
	}
}

func (h *AlertHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/alerts/active", h.GetActiveAlerts).Methods("GET")
	r.HandleFunc("/alerts/history", h.GetAlertHistory).Methods("GET")
	r.HandleFunc("/alerts/statistics", h.GetStatistics).Methods("GET")
	r.HandleFunc("/alerts/deadletters", h.GetDeadLetters).Methods("GET")
	r.HandleFunc("/alerts/acknowledge/{id}", h.Acknowledge).Methods("PUT")
	r.HandleFunc("/alerts/resolve/{id}", h.Resolve).Methods("PUT")
}

// GetActiveAlerts serves the in-memory active set, the live source of truth.
func (h *AlertHandler) GetActiveAlerts(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.engine.ActiveAlerts())
}

// GetAlertHistory serves the durable audit trail with pagination.
func (h *AlertHandler) GetAlertHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	offset := 0

	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil {
			limit = parsed
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil {
			offset = parsed
		}
	}

	alerts, err := h.alertRepo.GetHistory(r.Context(), limit, offset)
	if err != nil {
		h.log.Error("Failed to get alert history: %v", err)
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, alerts)
}

func (h *AlertHandler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.alertRepo.GetStatistics(r.Context())
	if err != nil {
		h.log.Error("Failed to get alert statistics: %v", err)
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, stats)
}

func (h *AlertHandler) GetDeadLetters(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil {
			limit = parsed
		}
	}

	msgs, err := h.dlqRepo.GetRecent(r.Context(), limit)
	if err != nil {
		h.log.Error("Failed to get dead letters: %v", err)
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, msgs)
}

func (h *AlertHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.engine.Acknowledge(r.Context(), id); err != nil {
		h.log.Error("Failed to acknowledge alert %s: %v", id, err)
		respondError(w, http.StatusNotFound, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "alert acknowledged"})
}

func (h *AlertHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.engine.Resolve(r.Context(), id); err != nil {
		h.log.Error("Failed to resolve alert %s: %v", id, err)
		respondError(w, http.StatusNotFound, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "alert resolved"})
}
