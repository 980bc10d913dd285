package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"optropic-code-service/internal/domain"
)

const (
	// defaultSuspiciousWindowHours は不審アクティビティ検索の既定ウィンドウ。
	defaultSuspiciousWindowHours = 24
	// suspiciousSourceThreshold を超えるスキャンを行ったIPは不審送信元として報告される。
	suspiciousSourceThreshold = 10
	// defaultAnomalyThreshold は異常判定の既定の偏差閾値。
	defaultAnomalyThreshold = 2.0
)

// AnomalyService はスキャン監査ログに対する異常検知を提供する。
// 検知はすべて追記専用ログへの時間指定クエリで行い、プロセス内に可変状態を持たない。
type AnomalyService struct {
	scans    ScanRepository
	notifier Notifier
}

// NewAnomalyService は新しいAnomalyServiceを生成する。
func NewAnomalyService(scans ScanRepository, notifier Notifier) *AnomalyService {
	return &AnomalyService{
		scans:    scans,
		notifier: notifier,
	}
}

// DetectSuspiciousActivity はウィンドウ内の不審・失敗・低トラストスコアの
// スキャンを送信元IPごとに集計し、閾値を超えた送信元を報告する。
func (s *AnomalyService) DetectSuspiciousActivity(ctx context.Context, projectID string, windowHours int) ([]*domain.SuspiciousSource, error) {
	if windowHours <= 0 {
		windowHours = defaultSuspiciousWindowHours
	}
	since := time.Now().Add(-time.Duration(windowHours) * time.Hour)

	counts, err := s.scans.SuspiciousCountsByIP(ctx, projectID, since)
	if err != nil {
		return nil, fmt.Errorf("aggregating suspicious scans: %w", err)
	}

	sources := make([]*domain.SuspiciousSource, 0, len(counts))
	for _, c := range counts {
		if c.ScanCount > suspiciousSourceThreshold {
			sources = append(sources, c)
		}
	}
	return sources, nil
}

// DetectAnomalies は直近24時間のスキャンレートを過去7日間
// （直近24時間を除く）の日次平均と比較する。
func (s *AnomalyService) DetectAnomalies(ctx context.Context, projectID string, threshold float64) (*domain.AnomalyReport, error) {
	if threshold <= 0 {
		threshold = defaultAnomalyThreshold
	}
	now := time.Now()

	current, err := s.scans.CountInWindow(ctx, projectID, now.Add(-24*time.Hour), now)
	if err != nil {
		return nil, fmt.Errorf("counting current window: %w", err)
	}

	// 直近24時間を除いた過去7日間 = 丸6日分
	prior, err := s.scans.CountInWindow(ctx, projectID, now.Add(-7*24*time.Hour), now.Add(-24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("counting prior window: %w", err)
	}
	average := float64(prior) / 6

	deviation := 0.0
	if average > 0 {
		deviation = float64(current) / average
	}

	report := &domain.AnomalyReport{
		ProjectID:   projectID,
		CurrentRate: current,
		AverageRate: average,
		Deviation:   deviation,
		Threshold:   threshold,
		HasAnomaly:  deviation > threshold,
	}

	if report.HasAnomaly && s.notifier != nil {
		event := &domain.SecurityEvent{
			Event:     domain.EventScanAnomaly,
			ProjectID: projectID,
			Detail: map[string]any{
				"currentRate": current,
				"averageRate": average,
				"deviation":   deviation,
				"threshold":   threshold,
			},
		}
		if err := s.notifier.Notify(ctx, event); err != nil {
			slog.ErrorContext(ctx, "failed to send anomaly notification",
				"operation", "detect_anomalies",
				"project_id", projectID,
				"error", err,
			)
		}
	}

	return report, nil
}
