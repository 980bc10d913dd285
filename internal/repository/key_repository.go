// Package repository はデータアクセス層の実装を提供する。
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

// KeyModel はgorm用のモデル定義。
type KeyModel struct {
	ID           string     `gorm:"type:char(36);primaryKey"`
	ProjectID    string     `gorm:"type:varchar(64);not null;index:idx_keys_project;index:idx_keys_project_active"`
	Name         string     `gorm:"type:varchar(128);not null"`
	Type         string     `gorm:"type:varchar(16);not null"`
	Algorithm    string     `gorm:"type:varchar(32);not null"`
	PublicKey    []byte     `gorm:"type:blob;not null"`
	EncryptedKey []byte     `gorm:"type:blob;not null"`
	KeyNonce     []byte     `gorm:"type:blob"`
	KeyTag       []byte     `gorm:"type:blob"`
	IsActive     bool       `gorm:"not null;index:idx_keys_project_active"`
	Version      uint       `gorm:"not null;default:1"`
	ExpiresAt    *time.Time `gorm:"type:datetime(6)"`
	PairedKeyID  *string    `gorm:"type:char(36)"`
	CreatedAt    time.Time  `gorm:"type:datetime(6);not null;autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"type:datetime(6);not null;autoUpdateTime"`
}

// TableName はテーブル名を返す。
func (KeyModel) TableName() string {
	return "keys"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (k *KeyModel) BeforeCreate(tx *gorm.DB) error {
	if k.ID == "" {
		k.ID = uuid.New().String()
	}
	return nil
}

// toDomain はモデルをドメインエンティティに変換する。
func (k *KeyModel) toDomain() *domain.Key {
	return &domain.Key{
		ID:           k.ID,
		ProjectID:    k.ProjectID,
		Name:         k.Name,
		Type:         domain.KeyType(k.Type),
		Algorithm:    k.Algorithm,
		PublicKey:    k.PublicKey,
		EncryptedKey: k.EncryptedKey,
		KeyNonce:     k.KeyNonce,
		KeyTag:       k.KeyTag,
		IsActive:     k.IsActive,
		Version:      k.Version,
		ExpiresAt:    k.ExpiresAt,
		PairedKeyID:  k.PairedKeyID,
		CreatedAt:    k.CreatedAt,
		UpdatedAt:    k.UpdatedAt,
	}
}

// KeyRepository は鍵のデータアクセスを提供する。
type KeyRepository struct {
	db *gorm.DB
}

// NewKeyRepository は新しいKeyRepositoryを生成する。
func NewKeyRepository(db *gorm.DB) *KeyRepository {
	return &KeyRepository{db: db}
}

// Create は新しい鍵を保存する。
func (r *KeyRepository) Create(ctx context.Context, key *domain.Key) error {
	model := &KeyModel{
		ID:           key.ID,
		ProjectID:    key.ProjectID,
		Name:         key.Name,
		Type:         string(key.Type),
		Algorithm:    key.Algorithm,
		PublicKey:    key.PublicKey,
		EncryptedKey: key.EncryptedKey,
		KeyNonce:     key.KeyNonce,
		KeyTag:       key.KeyTag,
		IsActive:     key.IsActive,
		Version:      key.Version,
		ExpiresAt:    key.ExpiresAt,
		PairedKeyID:  key.PairedKeyID,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to create key",
			"operation", "create",
			"project_id", key.ProjectID,
			"error", err,
		)
		return err
	}
	// gormで設定された値をドメインエンティティに反映
	key.ID = model.ID
	key.CreatedAt = model.CreatedAt
	key.UpdatedAt = model.UpdatedAt
	return nil
}

// FindByID は指定されたIDの鍵を取得する。存在しない場合はnilを返す。
func (r *KeyRepository) FindByID(ctx context.Context, id string) (*domain.Key, error) {
	var model KeyModel
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find key",
			"operation", "find_by_id",
			"id", id,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}

// FindAllByProjectID は指定されたプロジェクトの全鍵を取得する。
func (r *KeyRepository) FindAllByProjectID(ctx context.Context, projectID string) ([]*domain.Key, error) {
	var models []KeyModel
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find all keys by project_id",
			"operation", "find_all_by_project_id",
			"project_id", projectID,
			"error", err,
		)
		return nil, err
	}

	keys := make([]*domain.Key, len(models))
	for i, m := range models {
		keys[i] = m.toDomain()
	}
	return keys, nil
}

// FindActiveByProjectID は有効かつ未失効の鍵を取得する。
func (r *KeyRepository) FindActiveByProjectID(ctx context.Context, projectID string, now time.Time) ([]*domain.Key, error) {
	var models []KeyModel
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND is_active = ?", projectID, true).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find active keys",
			"operation", "find_active_by_project_id",
			"project_id", projectID,
			"error", err,
		)
		return nil, err
	}

	keys := make([]*domain.Key, len(models))
	for i, m := range models {
		keys[i] = m.toDomain()
	}
	return keys, nil
}

// DeactivateCAS はバージョン一致を条件に鍵を無効化する。
// 競合して他の更新が先行した場合はfalseを返す。
func (r *KeyRepository) DeactivateCAS(ctx context.Context, id string, version uint) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&KeyModel{}).
		Where("id = ? AND is_active = ? AND version = ?", id, true, version).
		Updates(map[string]interface{}{
			"is_active": false,
			"version":   version + 1,
		})
	if result.Error != nil {
		slog.ErrorContext(ctx, "failed to deactivate key",
			"operation", "deactivate_cas",
			"id", id,
			"version", version,
			"error", result.Error,
		)
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// Deactivate は鍵を無条件に無効化する。失効（revoke）用で、復帰手段はない。
func (r *KeyRepository) Deactivate(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).
		Model(&KeyModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_active": false,
			"version":   gorm.Expr("version + 1"),
		}).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to deactivate key",
			"operation", "deactivate",
			"id", id,
			"error", err,
		)
		return err
	}
	return nil
}
