package repository

import (
	"context"
	"testing"
	"time"

	"optropic-code-service/internal/domain"
)

func strPtr(s string) *string {
	return &s
}

func newTestScan(projectID string, success bool, trust int, ip *string) *domain.Scan {
	return &domain.Scan{
		ProjectID:           &projectID,
		VerificationSuccess: success,
		TrustScore:          trust,
		IsSuspicious:        !success,
		RiskScore:           100 - trust,
		IPAddress:           ip,
	}
}

func TestScanRepository_Create(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewScanRepository(db)

	scan := newTestScan("proj-001", true, 100, strPtr("203.0.113.7"))
	if err := repo.Create(ctx, scan); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if scan.ID == "" {
		t.Error("expected ID to be generated, got empty")
	}
	if scan.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set, got zero value")
	}
}

func TestScanRepository_Create_WithoutCode(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewScanRepository(db)

	// 解決不能なトークンの監査レコードはコードIDなしで保存される
	reason := "Invalid code format"
	scan := &domain.Scan{
		VerificationSuccess: false,
		TrustScore:          0,
		IsSuspicious:        true,
		RiskScore:           100,
		FailureReason:       &reason,
	}
	if err := repo.Create(ctx, scan); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	var model ScanModel
	if err := db.Where("id = ?", scan.ID).First(&model).Error; err != nil {
		t.Fatalf("failed to fetch record: %v", err)
	}
	if model.CodeID != nil {
		t.Error("expected nil code_id")
	}
	if model.FailureReason == nil || *model.FailureReason != reason {
		t.Error("expected failure reason to be persisted")
	}
}

func TestScanRepository_CountInWindow(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewScanRepository(db)

	now := time.Now()
	for i := 0; i < 3; i++ {
		if err := repo.Create(ctx, newTestScan("proj-001", true, 100, nil)); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}
	// ウィンドウ外の古いレコード
	old := newTestScan("proj-001", true, 100, nil)
	if err := repo.Create(ctx, old); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := db.Model(&ScanModel{}).Where("id = ?", old.ID).
		Update("created_at", now.Add(-48*time.Hour)).Error; err != nil {
		t.Fatalf("failed to backdate record: %v", err)
	}

	count, err := repo.CountInWindow(ctx, "proj-001", now.Add(-24*time.Hour), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("CountInWindow failed: %v", err)
	}
	if count != 3 {
		t.Errorf("expected count=3, got %d", count)
	}
}

func TestScanRepository_SuspiciousCountsByIP(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewScanRepository(db)

	// 失敗スキャン: IPごとに集計される
	for i := 0; i < 4; i++ {
		if err := repo.Create(ctx, newTestScan("proj-001", false, 0, strPtr("203.0.113.7"))); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}
	// 低トラストスコアの成功スキャンも対象
	if err := repo.Create(ctx, newTestScan("proj-001", true, 40, strPtr("203.0.113.8"))); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	// 健全な成功スキャンは対象外
	if err := repo.Create(ctx, newTestScan("proj-001", true, 100, strPtr("203.0.113.9"))); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	// IPなしのレコードは集計に含まれない
	if err := repo.Create(ctx, newTestScan("proj-001", false, 0, nil)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	sources, err := repo.SuspiciousCountsByIP(ctx, "proj-001", time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("SuspiciousCountsByIP failed: %v", err)
	}
	if len(sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(sources))
	}
	// 件数降順
	if sources[0].IPAddress != "203.0.113.7" || sources[0].ScanCount != 4 {
		t.Errorf("expected 203.0.113.7 with 4 scans first, got %s/%d", sources[0].IPAddress, sources[0].ScanCount)
	}
}

func TestScanRepository_CountAndAverageTrust(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewScanRepository(db)

	for _, trust := range []int{100, 80, 60} {
		if err := repo.Create(ctx, newTestScan("proj-001", true, trust, nil)); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	count, avg, err := repo.CountAndAverageTrust(ctx, "proj-001")
	if err != nil {
		t.Fatalf("CountAndAverageTrust failed: %v", err)
	}
	if count != 3 {
		t.Errorf("expected count=3, got %d", count)
	}
	if avg != 80 {
		t.Errorf("expected avg=80, got %f", avg)
	}

	// スキャンがない場合は平均0
	count, avg, err = repo.CountAndAverageTrust(ctx, "proj-404")
	if err != nil {
		t.Fatalf("CountAndAverageTrust failed: %v", err)
	}
	if count != 0 || avg != 0 {
		t.Errorf("expected 0/0, got %d/%f", count, avg)
	}
}
