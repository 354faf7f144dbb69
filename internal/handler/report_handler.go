package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"FinMonitorAPI/internal/engine"
	"FinMonitorAPI/internal/logger"
	"FinMonitorAPI/internal/models"
	"FinMonitorAPI/internal/repository"

	"github.com/gorilla/mux"
	"github.com/jung-kurt/gofpdf"
)

const reportDefaultLimit = 200

type ReportHandler struct {
	engine    *engine.Engine
	alertRepo repository.IAlertRepository
	log       *logger.Logger
}

func NewReportHandler(eng *engine.Engine, alertRepo repository.IAlertRepository, log *logger.Logger) *ReportHandler {
	return &ReportHandler{
		engine:    eng,
		alertRepo: alertRepo,
		log:       log,
	}
}

func (h *ReportHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/reports/alerts", h.GetAlertReport).Methods("GET")
}

// GetAlertReport renders the recent alert history plus the current health
// snapshot as a downloadable PDF.
func (h *ReportHandler) GetAlertReport(w http.ResponseWriter, r *http.Request) {
	limit := reportDefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 1000 {
			respondError(w, http.StatusBadRequest, "Invalid limit parameter")
			return
		}
		limit = parsed
	}

	alerts, err := h.alertRepo.GetHistory(r.Context(), limit, 0)
	if err != nil {
		h.log.Error("Failed to load alert history for report: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to load alert history")
		return
	}

	stats, err := h.alertRepo.GetStatistics(r.Context())
	if err != nil {
		h.log.Error("Failed to load alert statistics for report: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to load alert statistics")
		return
	}

	pdf := h.buildReport(alerts, stats, h.engine.SystemHealth())

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=alert-report-%s.pdf", time.Now().UTC().Format("2006-01-02")))
	if err := pdf.Output(w); err != nil {
		h.log.Error("Failed to write PDF report: %v", err)
	}
}

func (h *ReportHandler) buildReport(alerts []models.Alert, stats map[string]int, health models.SystemHealth) *gofpdf.Fpdf {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, "Alert Report")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", time.Now().UTC().Format(time.RFC1123)))
	pdf.Ln(6)
	pdf.Cell(0, 6, fmt.Sprintf("System health score: %.1f (healthy: %d, degraded: %d, unhealthy: %d)",
		health.Score, health.HealthyCount, health.DegradedCount, health.UnhealthyCount))
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Open Alerts by Severity")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 10)
	for _, sev := range []string{models.SeverityCritical, models.SeverityHigh, models.SeverityMedium, models.SeverityLow} {
		pdf.Cell(0, 6, fmt.Sprintf("%s: %d", sev, stats[sev]))
		pdf.Ln(6)
	}
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, fmt.Sprintf("Recent Alerts (%d)", len(alerts)))
	pdf.Ln(8)

	headers := []string{"Created", "Severity", "Type", "Status", "Metric / Service"}
	widths := []float64{32, 22, 32, 28, 76}

	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	for i, head := range headers {
		pdf.CellFormat(widths[i], 7, head, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 8)
	for _, alert := range alerts {
		subject := alert.Metric
		if subject == "" {
			subject = alert.Service
		} else if alert.Service != "" {
			subject = subject + " / " + alert.Service
		}

		row := []string{
			alert.CreatedAt.UTC().Format("01-02 15:04:05"),
			alert.Severity,
			alert.Type,
			alert.Status,
			subject,
		}
		for i, cell := range row {
			pdf.CellFormat(widths[i], 6, cell, "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	return pdf
}
