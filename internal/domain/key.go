// Package domain はドメインモデルとビジネスルールを定義する。
package domain

import "time"

// KeyType は鍵の用途を表す。
type KeyType string

const (
	// KeyTypeEncryption は暗号化用の鍵を表す。
	KeyTypeEncryption KeyType = "ENCRYPTION"
	// KeyTypeSigning は署名用の鍵を表す。
	KeyTypeSigning KeyType = "SIGNING"
	// KeyTypeNFCPairing はNFCペアリング用の鍵を表す。
	KeyTypeNFCPairing KeyType = "NFC_PAIRING"
	// KeyTypeRFIDPairing はRFIDペアリング用の鍵を表す。
	KeyTypeRFIDPairing KeyType = "RFID_PAIRING"
)

// Valid は既知の鍵種別かどうかを返す。
func (t KeyType) Valid() bool {
	switch t {
	case KeyTypeEncryption, KeyTypeSigning, KeyTypeNFCPairing, KeyTypeRFIDPairing:
		return true
	}
	return false
}

// KeyAlgorithmECDSAP256 は鍵アルゴリズム識別子。
const KeyAlgorithmECDSAP256 = "ECDSA_P256_SHA256"

// Key は非対称鍵エンティティを表す。秘密鍵は暗号化された状態でのみ保持する。
type Key struct {
	ID           string
	ProjectID    string
	Name         string
	Type         KeyType
	Algorithm    string
	PublicKey    []byte // PKIX形式
	EncryptedKey []byte // 暗号化済み秘密鍵（SEC1形式の暗号文）
	KeyNonce     []byte
	KeyTag       []byte
	IsActive     bool
	Version      uint // ローテーションのCAS用バージョン
	ExpiresAt    *time.Time
	PairedKeyID  *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsExpired は有効期限が設定されており、かつ過去かどうかを返す。
func (k *Key) IsExpired(now time.Time) bool {
	return k.ExpiresAt != nil && k.ExpiresAt.Before(now)
}

// KeyMetadata は鍵の公開メタデータを表す（秘密材料を含まない）。
type KeyMetadata struct {
	ID          string
	ProjectID   string
	Name        string
	Type        KeyType
	Algorithm   string
	PublicKey   []byte
	IsActive    bool
	ExpiresAt   *time.Time
	PairedKeyID *string
	CreatedAt   time.Time
}

// Metadata は秘密材料を除いたメタデータを返す。
func (k *Key) Metadata() *KeyMetadata {
	return &KeyMetadata{
		ID:          k.ID,
		ProjectID:   k.ProjectID,
		Name:        k.Name,
		Type:        k.Type,
		Algorithm:   k.Algorithm,
		PublicKey:   k.PublicKey,
		IsActive:    k.IsActive,
		ExpiresAt:   k.ExpiresAt,
		PairedKeyID: k.PairedKeyID,
		CreatedAt:   k.CreatedAt,
	}
}
