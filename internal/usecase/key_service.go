// Package usecase はアプリケーションのユースケースを実装する。
package usecase

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"time"

	"optropic-code-service/internal/cryptox"
	"optropic-code-service/internal/domain"
)

// KeyRepository は鍵データアクセスのインターフェース。
type KeyRepository interface {
	Create(ctx context.Context, key *domain.Key) error
	FindByID(ctx context.Context, id string) (*domain.Key, error)
	FindAllByProjectID(ctx context.Context, projectID string) ([]*domain.Key, error)
	FindActiveByProjectID(ctx context.Context, projectID string, now time.Time) ([]*domain.Key, error)
	DeactivateCAS(ctx context.Context, id string, version uint) (bool, error)
	Deactivate(ctx context.Context, id string) error
}

// KeyCipher は秘密鍵材料のラップ/アンラップのインターフェース。
type KeyCipher interface {
	Encrypt(ctx context.Context, plaintext []byte) (ciphertext, nonce, tag []byte, err error)
	Decrypt(ctx context.Context, ciphertext, nonce, tag []byte) ([]byte, error)
}

// KeyService は鍵ライフサイクルのビジネスロジックを提供する。
type KeyService struct {
	repo   KeyRepository
	cipher KeyCipher
}

// NewKeyService は新しいKeyServiceを生成する。
func NewKeyService(repo KeyRepository, cipher KeyCipher) *KeyService {
	return &KeyService{
		repo:   repo,
		cipher: cipher,
	}
}

// GenerateKey は新しいP-256鍵ペアを生成し、秘密鍵を暗号化して保存する。
// 戻り値に秘密材料は含まれない。
func (s *KeyService) GenerateKey(ctx context.Context, projectID, name string, keyType domain.KeyType, expiresAt *time.Time) (*domain.KeyMetadata, error) {
	if !keyType.Valid() {
		return nil, fmt.Errorf("%w: unknown key type %q", domain.ErrInvalidInput, keyType)
	}

	priv, err := cryptox.GenerateKeyPair()
	if err != nil {
		return nil, err
	}

	pubDER, err := cryptox.MarshalPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, err
	}
	privDER, err := cryptox.MarshalPrivateKey(priv)
	if err != nil {
		return nil, err
	}

	// 秘密鍵をラップ
	encryptedKey, nonce, tag, err := s.cipher.Encrypt(ctx, privDER)
	if err != nil {
		return nil, fmt.Errorf("encrypting private key: %w", err)
	}

	key := &domain.Key{
		ProjectID:    projectID,
		Name:         name,
		Type:         keyType,
		Algorithm:    domain.KeyAlgorithmECDSAP256,
		PublicKey:    pubDER,
		EncryptedKey: encryptedKey,
		KeyNonce:     nonce,
		KeyTag:       tag,
		IsActive:     true,
		Version:      1,
		ExpiresAt:    expiresAt,
	}
	if err := s.repo.Create(ctx, key); err != nil {
		return nil, fmt.Errorf("creating key: %w", err)
	}

	return key.Metadata(), nil
}

// RotateKey は鍵を無効化し、同じプロジェクト・ペアリング関係の新しい鍵を発行する。
// 無効化はバージョン一致のCAS更新で行い、同時ローテーションのどちらか一方だけが
// 後継鍵を発行できる。旧鍵に紐付くコードは移行されない。
func (s *KeyService) RotateKey(ctx context.Context, keyID string) (*domain.KeyMetadata, error) {
	key, err := s.repo.FindByID(ctx, keyID)
	if err != nil {
		return nil, fmt.Errorf("finding key: %w", err)
	}
	if key == nil {
		return nil, domain.ErrKeyNotFound
	}
	if !key.IsActive {
		return nil, domain.ErrKeyInactive
	}

	ok, err := s.repo.DeactivateCAS(ctx, key.ID, key.Version)
	if err != nil {
		return nil, fmt.Errorf("deactivating key: %w", err)
	}
	if !ok {
		return nil, domain.ErrKeyConflict
	}

	priv, err := cryptox.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	pubDER, err := cryptox.MarshalPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, err
	}
	privDER, err := cryptox.MarshalPrivateKey(priv)
	if err != nil {
		return nil, err
	}
	encryptedKey, nonce, tag, err := s.cipher.Encrypt(ctx, privDER)
	if err != nil {
		return nil, fmt.Errorf("encrypting private key: %w", err)
	}

	successor := &domain.Key{
		ProjectID:    key.ProjectID,
		Name:         fmt.Sprintf("%s (rotated)", key.Name),
		Type:         key.Type,
		Algorithm:    domain.KeyAlgorithmECDSAP256,
		PublicKey:    pubDER,
		EncryptedKey: encryptedKey,
		KeyNonce:     nonce,
		KeyTag:       tag,
		IsActive:     true,
		Version:      1,
		ExpiresAt:    key.ExpiresAt,
		PairedKeyID:  key.PairedKeyID,
	}
	if err := s.repo.Create(ctx, successor); err != nil {
		return nil, fmt.Errorf("creating successor key: %w", err)
	}

	return successor.Metadata(), nil
}

// RevokeKey は鍵を恒久的に無効化する。後継鍵は発行されず、取り消す手段もない。
func (s *KeyService) RevokeKey(ctx context.Context, keyID string) (*domain.KeyMetadata, error) {
	key, err := s.repo.FindByID(ctx, keyID)
	if err != nil {
		return nil, fmt.Errorf("finding key: %w", err)
	}
	if key == nil {
		return nil, domain.ErrKeyNotFound
	}
	if !key.IsActive {
		return nil, domain.ErrKeyInactive
	}

	if err := s.repo.Deactivate(ctx, key.ID); err != nil {
		return nil, fmt.Errorf("deactivating key: %w", err)
	}

	key.IsActive = false
	return key.Metadata(), nil
}

// ListKeys は指定されたプロジェクトの全鍵メタデータを取得する。
func (s *KeyService) ListKeys(ctx context.Context, projectID string) ([]*domain.KeyMetadata, error) {
	keys, err := s.repo.FindAllByProjectID(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("finding keys: %w", err)
	}

	metadata := make([]*domain.KeyMetadata, len(keys))
	for i, k := range keys {
		metadata[i] = k.Metadata()
	}
	return metadata, nil
}

// GetActiveKeys は有効かつ未失効の鍵メタデータを取得する。
func (s *KeyService) GetActiveKeys(ctx context.Context, projectID string) ([]*domain.KeyMetadata, error) {
	keys, err := s.repo.FindActiveByProjectID(ctx, projectID, time.Now())
	if err != nil {
		return nil, fmt.Errorf("finding active keys: %w", err)
	}

	metadata := make([]*domain.KeyMetadata, len(keys))
	for i, k := range keys {
		metadata[i] = k.Metadata()
	}
	return metadata, nil
}

// signingKey は署名用に秘密鍵を復号する。発行パス専用で、
// パッケージ外からは到達できない。認証タグの不一致はエラーとなる。
func (s *KeyService) signingKey(ctx context.Context, keyID string) (*ecdsa.PrivateKey, error) {
	key, err := s.repo.FindByID(ctx, keyID)
	if err != nil {
		return nil, fmt.Errorf("finding key: %w", err)
	}
	if key == nil {
		return nil, domain.ErrKeyNotFound
	}

	privDER, err := s.cipher.Decrypt(ctx, key.EncryptedKey, key.KeyNonce, key.KeyTag)
	if err != nil {
		return nil, fmt.Errorf("%w: unwrapping private key: %v", domain.ErrDecryptFailed, err)
	}

	priv, err := cryptox.ParsePrivateKey(privDER)
	if err != nil {
		return nil, err
	}
	return priv, nil
}
