package usecase

import (
	"context"
	"testing"

	"optropic-code-service/internal/domain"
)

func TestAnomalyService_DetectSuspiciousActivity_FiltersByThreshold(t *testing.T) {
	scanRepo := &mockScanRepository{
		suspiciousResult: []*domain.SuspiciousSource{
			{IPAddress: "203.0.113.7", ScanCount: 15},
			{IPAddress: "203.0.113.8", ScanCount: 10},
			{IPAddress: "203.0.113.9", ScanCount: 3},
		},
	}
	svc := NewAnomalyService(scanRepo, &mockNotifier{})

	sources, err := svc.DetectSuspiciousActivity(context.Background(), "proj-001", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 閾値ちょうど（10件）は報告されない
	if len(sources) != 1 {
		t.Fatalf("want 1 suspicious source, got %d", len(sources))
	}
	if sources[0].IPAddress != "203.0.113.7" {
		t.Errorf("want 203.0.113.7, got %s", sources[0].IPAddress)
	}
}

func TestAnomalyService_DetectSuspiciousActivity_Empty(t *testing.T) {
	svc := NewAnomalyService(&mockScanRepository{}, &mockNotifier{})

	sources, err := svc.DetectSuspiciousActivity(context.Background(), "proj-001", 48)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sources) != 0 {
		t.Errorf("want no suspicious sources, got %d", len(sources))
	}
}

func TestAnomalyService_DetectAnomalies_DeviationAboveThreshold(t *testing.T) {
	// 直近24時間: 18件、過去6日分: 36件 → 日次平均6、偏差3.0
	scanRepo := &mockScanRepository{countResults: []int64{18, 36}}
	notifier := &mockNotifier{}
	svc := NewAnomalyService(scanRepo, notifier)

	report, err := svc.DetectAnomalies(context.Background(), "proj-001", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.CurrentRate != 18 {
		t.Errorf("want current rate 18, got %d", report.CurrentRate)
	}
	if report.AverageRate != 6 {
		t.Errorf("want average rate 6, got %f", report.AverageRate)
	}
	if report.Deviation != 3 {
		t.Errorf("want deviation 3.0, got %f", report.Deviation)
	}
	if !report.HasAnomaly {
		t.Error("want anomaly above default threshold 2.0")
	}

	if len(notifier.events) != 1 {
		t.Fatalf("want 1 notification, got %d", len(notifier.events))
	}
	if notifier.events[0].Event != domain.EventScanAnomaly {
		t.Errorf("want event %s, got %s", domain.EventScanAnomaly, notifier.events[0].Event)
	}
}

func TestAnomalyService_DetectAnomalies_BelowThreshold(t *testing.T) {
	// 偏差 10/6 ≒ 1.67 は既定閾値2.0を超えない
	scanRepo := &mockScanRepository{countResults: []int64{10, 36}}
	notifier := &mockNotifier{}
	svc := NewAnomalyService(scanRepo, notifier)

	report, err := svc.DetectAnomalies(context.Background(), "proj-001", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.HasAnomaly {
		t.Error("want no anomaly below threshold")
	}
	if len(notifier.events) != 0 {
		t.Errorf("want no notifications, got %d", len(notifier.events))
	}
}

func TestAnomalyService_DetectAnomalies_NoBaseline(t *testing.T) {
	// 過去データなしは偏差0として異常なし
	scanRepo := &mockScanRepository{countResults: []int64{50, 0}}
	svc := NewAnomalyService(scanRepo, &mockNotifier{})

	report, err := svc.DetectAnomalies(context.Background(), "proj-001", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.Deviation != 0 {
		t.Errorf("want deviation 0 with no baseline, got %f", report.Deviation)
	}
	if report.HasAnomaly {
		t.Error("want no anomaly with no baseline")
	}
}

func TestAnomalyService_DetectAnomalies_CustomThreshold(t *testing.T) {
	scanRepo := &mockScanRepository{countResults: []int64{18, 36}}
	svc := NewAnomalyService(scanRepo, &mockNotifier{})

	// 閾値4.0では偏差3.0を異常としない
	report, err := svc.DetectAnomalies(context.Background(), "proj-001", 4.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.HasAnomaly {
		t.Error("want no anomaly with raised threshold")
	}
	if report.Threshold != 4.0 {
		t.Errorf("want threshold 4.0, got %f", report.Threshold)
	}
}

func TestAnomalyService_DetectAnomalies_NotifierFailureIsNotFatal(t *testing.T) {
	scanRepo := &mockScanRepository{countResults: []int64{18, 36}}
	notifier := &mockNotifier{notifyErr: context.DeadlineExceeded}
	svc := NewAnomalyService(scanRepo, notifier)

	report, err := svc.DetectAnomalies(context.Background(), "proj-001", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.HasAnomaly {
		t.Error("want anomaly report despite notify failure")
	}
}
