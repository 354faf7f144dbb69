package handler

import (
	"net/http"
	"time"

	"FinMonitorAPI/internal/database"
	"FinMonitorAPI/internal/engine"
	"FinMonitorAPI/internal/logger"
	"FinMonitorAPI/internal/models"
	"FinMonitorAPI/internal/mqtt"

	"github.com/gorilla/mux"
)

type HealthHandler struct {
	engine *engine.Engine
	db     *database.Database
	mqtt   *mqtt.Client
	log    *logger.Logger
}

func NewHealthHandler(eng *engine.Engine, db *database.Database, mqttClient *mqtt.Client, log *logger.Logger) *HealthHandler {
	return &HealthHandler{
		engine: eng,
		db:     db,
		mqtt:   mqttClient,
		log:    log,
	}
}

func (h *HealthHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/system/health", h.GetSystemHealth).Methods("GET")
	r.HandleFunc("/engine/stats", h.GetEngineStats).Methods("GET")
}

// RegisterLiveness mounts /healthz on the root router so it bypasses auth.
func (h *HealthHandler) RegisterLiveness(r *mux.Router) {
	r.HandleFunc("/healthz", h.Healthz).Methods("GET")
}

func (h *HealthHandler) GetSystemHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.engine.SystemHealth())
}

func (h *HealthHandler) GetEngineStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.engine.Stats())
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	resp := models.HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
	}

	if err := h.db.Health(r.Context()); err != nil {
		h.log.Warn("Health check: database unreachable: %v", err)
	} else {
		resp.Services.Database = true
	}
	resp.Services.MQTT = h.mqtt.IsConnected()

	status := http.StatusOK
	if !resp.Services.Database || !resp.Services.MQTT {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}

	respondJSON(w, status, resp)
}
