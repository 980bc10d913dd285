package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"optropic-code-service/internal/domain"
	"optropic-code-service/internal/usecase"
)

func setupSecurityHandler(scanRepo *mockScanRepository) *SecurityHandler {
	service := usecase.NewAnomalyService(scanRepo, &mockNotifier{})
	return NewSecurityHandler(service)
}

func TestSuspiciousActivity_Success(t *testing.T) {
	scanRepo := &mockScanRepository{
		suspiciousResult: []*domain.SuspiciousSource{
			{IPAddress: "203.0.113.7", ScanCount: 42},
		},
	}
	h := setupSecurityHandler(scanRepo)

	req := httptest.NewRequest(http.MethodGet, "/v1/projects/proj-001/security/suspicious", nil)
	req = withURLParams(req, map[string]string{"project_id": "proj-001"})

	rec := httptest.NewRecorder()
	h.SuspiciousActivity(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("want status 200, got %d", rec.Code)
	}

	var resp SuspiciousActivityResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.WindowHours != 24 {
		t.Errorf("want default window 24h, got %d", resp.WindowHours)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].IPAddress != "203.0.113.7" {
		t.Errorf("want suspicious source, got %+v", resp.Sources)
	}
}

func TestSuspiciousActivity_InvalidWindow(t *testing.T) {
	h := setupSecurityHandler(&mockScanRepository{})

	req := httptest.NewRequest(http.MethodGet, "/v1/projects/proj-001/security/suspicious?window_hours=-1", nil)
	req = withURLParams(req, map[string]string{"project_id": "proj-001"})

	rec := httptest.NewRecorder()
	h.SuspiciousActivity(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("want status 400, got %d", rec.Code)
	}
}

func TestAnomalies_Detected(t *testing.T) {
	// 現行ウィンドウ18件、直近7日間36件でベースライン6件/日
	scanRepo := &mockScanRepository{countResults: []int64{18, 36}}
	h := setupSecurityHandler(scanRepo)

	req := httptest.NewRequest(http.MethodGet, "/v1/projects/proj-001/security/anomalies", nil)
	req = withURLParams(req, map[string]string{"project_id": "proj-001"})

	rec := httptest.NewRecorder()
	h.Anomalies(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("want status 200, got %d", rec.Code)
	}

	var resp AnomalyResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if !resp.HasAnomaly {
		t.Error("want anomaly detected")
	}
	if resp.CurrentRate != 18 {
		t.Errorf("want current rate 18, got %d", resp.CurrentRate)
	}
	if resp.Deviation != 3.0 {
		t.Errorf("want deviation 3.0, got %f", resp.Deviation)
	}
}

func TestAnomalies_InvalidThreshold(t *testing.T) {
	h := setupSecurityHandler(&mockScanRepository{})

	req := httptest.NewRequest(http.MethodGet, "/v1/projects/proj-001/security/anomalies?threshold=abc", nil)
	req = withURLParams(req, map[string]string{"project_id": "proj-001"})

	rec := httptest.NewRecorder()
	h.Anomalies(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("want status 400, got %d", rec.Code)
	}
}
