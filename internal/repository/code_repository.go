package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"optropic-code-service/internal/domain"
)

// CodeModel はgorm用のモデル定義。
type CodeModel struct {
	ID              string    `gorm:"type:char(36);primaryKey"`
	CodeValue       string    `gorm:"type:text;not null"`
	CodeType        string    `gorm:"type:varchar(16);not null"`
	EncryptionLevel string    `gorm:"type:varchar(16);not null"`
	EntropySeed     string    `gorm:"type:varchar(128);not null;uniqueIndex:uk_codes_entropy_seed"`
	Signature       []byte    `gorm:"type:blob;not null"`
	Payload         []byte    `gorm:"type:blob;not null"`
	IsActive        bool      `gorm:"not null"`
	ProjectID       string    `gorm:"type:varchar(64);not null;index:idx_codes_project"`
	KeyID           string    `gorm:"type:char(36);not null;index:idx_codes_key"`
	AssetID         *string   `gorm:"type:varchar(64)"`
	CreatedAt       time.Time `gorm:"type:datetime(6);not null;autoCreateTime"`
}

// TableName はテーブル名を返す。
func (CodeModel) TableName() string {
	return "codes"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (c *CodeModel) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

// toDomain はモデルをドメインエンティティに変換する。
func (c *CodeModel) toDomain() *domain.Code {
	return &domain.Code{
		ID:              c.ID,
		CodeValue:       c.CodeValue,
		CodeType:        domain.CodeType(c.CodeType),
		EncryptionLevel: domain.EncryptionLevel(c.EncryptionLevel),
		EntropySeed:     c.EntropySeed,
		Signature:       c.Signature,
		Payload:         c.Payload,
		IsActive:        c.IsActive,
		ProjectID:       c.ProjectID,
		KeyID:           c.KeyID,
		AssetID:         c.AssetID,
		CreatedAt:       c.CreatedAt,
	}
}

// CodeRepository はコードのデータアクセスを提供する。
type CodeRepository struct {
	db *gorm.DB
}

// NewCodeRepository は新しいCodeRepositoryを生成する。
func NewCodeRepository(db *gorm.DB) *CodeRepository {
	return &CodeRepository{db: db}
}

// Create は新しいコードを保存する。
func (r *CodeRepository) Create(ctx context.Context, code *domain.Code) error {
	model := &CodeModel{
		ID:              code.ID,
		CodeValue:       code.CodeValue,
		CodeType:        string(code.CodeType),
		EncryptionLevel: string(code.EncryptionLevel),
		EntropySeed:     code.EntropySeed,
		Signature:       code.Signature,
		Payload:         code.Payload,
		IsActive:        code.IsActive,
		ProjectID:       code.ProjectID,
		KeyID:           code.KeyID,
		AssetID:         code.AssetID,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to create code",
			"operation", "create",
			"project_id", code.ProjectID,
			"key_id", code.KeyID,
			"error", err,
		)
		return err
	}
	code.ID = model.ID
	code.CreatedAt = model.CreatedAt
	return nil
}

// FindByID は指定されたIDのコードを取得する。存在しない場合はnilを返す。
func (r *CodeRepository) FindByID(ctx context.Context, id string) (*domain.Code, error) {
	var model CodeModel
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find code",
			"operation", "find_by_id",
			"id", id,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}

// FindByEntropySeed はエントロピーシードでコードを取得する。存在しない場合はnilを返す。
func (r *CodeRepository) FindByEntropySeed(ctx context.Context, seed string) (*domain.Code, error) {
	var model CodeModel
	err := r.db.WithContext(ctx).
		Where("entropy_seed = ?", seed).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find code by entropy seed",
			"operation", "find_by_entropy_seed",
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}

// FindAllByProjectID は指定されたプロジェクトの全コードを取得する。
func (r *CodeRepository) FindAllByProjectID(ctx context.Context, projectID string) ([]*domain.Code, error) {
	var models []CodeModel
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at DESC").
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find all codes by project_id",
			"operation", "find_all_by_project_id",
			"project_id", projectID,
			"error", err,
		)
		return nil, err
	}

	codes := make([]*domain.Code, len(models))
	for i, m := range models {
		codes[i] = m.toDomain()
	}
	return codes, nil
}

// Deactivate はコードを無効化する。終端遷移で、復帰手段はない。
func (r *CodeRepository) Deactivate(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).
		Model(&CodeModel{}).
		Where("id = ?", id).
		Update("is_active", false).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to deactivate code",
			"operation", "deactivate",
			"id", id,
			"error", err,
		)
		return err
	}
	return nil
}

// CountByProjectID は指定されたプロジェクトのコード総数と有効数を返す。
func (r *CodeRepository) CountByProjectID(ctx context.Context, projectID string) (total int64, active int64, err error) {
	err = r.db.WithContext(ctx).
		Model(&CodeModel{}).
		Where("project_id = ?", projectID).
		Count(&total).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to count codes",
			"operation", "count_by_project_id",
			"project_id", projectID,
			"error", err,
		)
		return 0, 0, err
	}
	err = r.db.WithContext(ctx).
		Model(&CodeModel{}).
		Where("project_id = ? AND is_active = ?", projectID, true).
		Count(&active).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to count active codes",
			"operation", "count_by_project_id",
			"project_id", projectID,
			"error", err,
		)
		return 0, 0, err
	}
	return total, active, nil
}
