package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"optropic-code-service/internal/usecase"
	"optropic-code-service/pkg/httputil"
)

// SecurityHandler は異常検知エンドポイントのHTTPハンドラを提供する。
type SecurityHandler struct {
	service *usecase.AnomalyService
}

// NewSecurityHandler は新しいSecurityHandlerを生成する。
func NewSecurityHandler(service *usecase.AnomalyService) *SecurityHandler {
	return &SecurityHandler{service: service}
}

// SuspiciousSourceResponse は不審送信元のレスポンス形式。
type SuspiciousSourceResponse struct {
	IPAddress string `json:"ipAddress"`
	ScanCount int64  `json:"scanCount"`
}

// SuspiciousActivityResponse は不審アクティビティ一覧のレスポンス形式。
type SuspiciousActivityResponse struct {
	WindowHours int                        `json:"windowHours"`
	Sources     []SuspiciousSourceResponse `json:"sources"`
}

// AnomalyResponse は異常検知のレスポンス形式。
type AnomalyResponse struct {
	CurrentRate int64   `json:"currentRate"`
	AverageRate float64 `json:"averageRate"`
	Deviation   float64 `json:"deviation"`
	Threshold   float64 `json:"threshold"`
	HasAnomaly  bool    `json:"hasAnomaly"`
}

// SuspiciousActivity は不審送信元IPを検索する。
func (h *SecurityHandler) SuspiciousActivity(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project_id")
	if err := validateProjectID(projectID); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_PROJECT_ID", "invalid project ID format")
		return
	}

	windowHours := 0
	if raw := r.URL.Query().Get("window_hours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			httputil.Error(w, http.StatusBadRequest, "INVALID_WINDOW", "window_hours must be a positive integer")
			return
		}
		windowHours = parsed
	}

	sources, err := h.service.DetectSuspiciousActivity(r.Context(), projectID, windowHours)
	if err != nil {
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	if windowHours == 0 {
		windowHours = 24
	}
	response := SuspiciousActivityResponse{
		WindowHours: windowHours,
		Sources:     make([]SuspiciousSourceResponse, len(sources)),
	}
	for i, src := range sources {
		response.Sources[i] = SuspiciousSourceResponse{
			IPAddress: src.IPAddress,
			ScanCount: src.ScanCount,
		}
	}
	httputil.JSON(w, http.StatusOK, response)
}

// Anomalies はスキャンレートの異常を検知する。
func (h *SecurityHandler) Anomalies(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project_id")
	if err := validateProjectID(projectID); err != nil {
		httputil.Error(w, http.StatusBadRequest, "INVALID_PROJECT_ID", "invalid project ID format")
		return
	}

	threshold := 0.0
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed <= 0 {
			httputil.Error(w, http.StatusBadRequest, "INVALID_THRESHOLD", "threshold must be a positive number")
			return
		}
		threshold = parsed
	}

	report, err := h.service.DetectAnomalies(r.Context(), projectID, threshold)
	if err != nil {
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	httputil.JSON(w, http.StatusOK, AnomalyResponse{
		CurrentRate: report.CurrentRate,
		AverageRate: report.AverageRate,
		Deviation:   report.Deviation,
		Threshold:   report.Threshold,
		HasAnomaly:  report.HasAnomaly,
	})
}
