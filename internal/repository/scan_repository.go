package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"optropic-code-service/internal/domain"
)

// ScanModel はgorm用のモデル定義。スキャンは追記専用で更新されない。
type ScanModel struct {
	ID                  string    `gorm:"type:char(36);primaryKey"`
	CodeID              *string   `gorm:"type:char(36);index:idx_scans_code"`
	ProjectID           *string   `gorm:"type:varchar(64);index:idx_scans_project_created;index:idx_scans_project_ip"`
	VerificationSuccess bool      `gorm:"not null"`
	TrustScore          int       `gorm:"not null"`
	IsSuspicious        bool      `gorm:"not null"`
	RiskScore           int       `gorm:"not null"`
	FailureReason       *string   `gorm:"type:varchar(255)"`
	IPAddress           *string   `gorm:"type:varchar(45);index:idx_scans_project_ip"`
	UserAgent           *string   `gorm:"type:varchar(255)"`
	DeviceType          *string   `gorm:"type:varchar(64)"`
	GeoHash             *string   `gorm:"type:varchar(16)"`
	Country             *string   `gorm:"type:varchar(64)"`
	City                *string   `gorm:"type:varchar(64)"`
	Region              *string   `gorm:"type:varchar(64)"`
	CreatedAt           time.Time `gorm:"type:datetime(6);not null;autoCreateTime;index:idx_scans_project_created"`
}

// TableName はテーブル名を返す。
func (ScanModel) TableName() string {
	return "scans"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (s *ScanModel) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}

// toDomain はモデルをドメインエンティティに変換する。
func (s *ScanModel) toDomain() *domain.Scan {
	return &domain.Scan{
		ID:                  s.ID,
		CodeID:              s.CodeID,
		ProjectID:           s.ProjectID,
		VerificationSuccess: s.VerificationSuccess,
		TrustScore:          s.TrustScore,
		IsSuspicious:        s.IsSuspicious,
		RiskScore:           s.RiskScore,
		FailureReason:       s.FailureReason,
		IPAddress:           s.IPAddress,
		UserAgent:           s.UserAgent,
		DeviceType:          s.DeviceType,
		GeoHash:             s.GeoHash,
		Country:             s.Country,
		City:                s.City,
		Region:              s.Region,
		CreatedAt:           s.CreatedAt,
	}
}

// ScanRepository はスキャン監査ログのデータアクセスを提供する。
type ScanRepository struct {
	db *gorm.DB
}

// NewScanRepository は新しいScanRepositoryを生成する。
func NewScanRepository(db *gorm.DB) *ScanRepository {
	return &ScanRepository{db: db}
}

// Create は新しいスキャンレコードを保存する。
func (r *ScanRepository) Create(ctx context.Context, scan *domain.Scan) error {
	model := &ScanModel{
		ID:                  scan.ID,
		CodeID:              scan.CodeID,
		ProjectID:           scan.ProjectID,
		VerificationSuccess: scan.VerificationSuccess,
		TrustScore:          scan.TrustScore,
		IsSuspicious:        scan.IsSuspicious,
		RiskScore:           scan.RiskScore,
		FailureReason:       scan.FailureReason,
		IPAddress:           scan.IPAddress,
		UserAgent:           scan.UserAgent,
		DeviceType:          scan.DeviceType,
		GeoHash:             scan.GeoHash,
		Country:             scan.Country,
		City:                scan.City,
		Region:              scan.Region,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to create scan",
			"operation", "create",
			"code_id", scan.CodeID,
			"error", err,
		)
		return err
	}
	scan.ID = model.ID
	scan.CreatedAt = model.CreatedAt
	return nil
}

// CountInWindow は指定期間内のスキャン数を返す。
func (r *ScanRepository) CountInWindow(ctx context.Context, projectID string, from, to time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&ScanModel{}).
		Where("project_id = ? AND created_at >= ? AND created_at < ?", projectID, from, to).
		Count(&count).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to count scans in window",
			"operation", "count_in_window",
			"project_id", projectID,
			"error", err,
		)
		return 0, err
	}
	return count, nil
}

// SuspiciousCountsByIP は不審・失敗・低トラストスコアのスキャンを送信元IPごとに集計する。
func (r *ScanRepository) SuspiciousCountsByIP(ctx context.Context, projectID string, since time.Time) ([]*domain.SuspiciousSource, error) {
	var results []struct {
		IPAddress string
		ScanCount int64
	}
	err := r.db.WithContext(ctx).
		Model(&ScanModel{}).
		Select("ip_address, COUNT(*) AS scan_count").
		Where("project_id = ? AND created_at >= ?", projectID, since).
		Where("is_suspicious = ? OR verification_success = ? OR trust_score < ?", true, false, 50).
		Where("ip_address IS NOT NULL").
		Group("ip_address").
		Order("scan_count DESC").
		Scan(&results).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to aggregate suspicious scans by ip",
			"operation", "suspicious_counts_by_ip",
			"project_id", projectID,
			"error", err,
		)
		return nil, err
	}

	sources := make([]*domain.SuspiciousSource, len(results))
	for i, res := range results {
		sources[i] = &domain.SuspiciousSource{
			IPAddress: res.IPAddress,
			ScanCount: res.ScanCount,
		}
	}
	return sources, nil
}

// CountAndAverageTrust は指定されたプロジェクトのスキャン総数と平均トラストスコアを返す。
func (r *ScanRepository) CountAndAverageTrust(ctx context.Context, projectID string) (int64, float64, error) {
	var result struct {
		ScanCount int64
		AvgTrust  *float64
	}
	err := r.db.WithContext(ctx).
		Model(&ScanModel{}).
		Select("COUNT(*) AS scan_count, AVG(trust_score) AS avg_trust").
		Where("project_id = ?", projectID).
		Scan(&result).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to aggregate scan stats",
			"operation", "count_and_average_trust",
			"project_id", projectID,
			"error", err,
		)
		return 0, 0, err
	}
	avg := 0.0
	if result.AvgTrust != nil {
		avg = *result.AvgTrust
	}
	return result.ScanCount, avg, nil
}
