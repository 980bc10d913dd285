package domain

import "time"

// CodeType はコードの種別を表す。
type CodeType string

const (
	// CodeTypeOptropic はOptropicコードを表す。
	CodeTypeOptropic CodeType = "OPTROPIC"
	// CodeTypeQRSSL はQRSSLコードを表す。
	CodeTypeQRSSL CodeType = "QRSSL"
	// CodeTypeGS1Compliant はGS1準拠コードを表す。
	CodeTypeGS1Compliant CodeType = "GS1_COMPLIANT"
)

// Valid は既知のコード種別かどうかを返す。
func (t CodeType) Valid() bool {
	switch t {
	case CodeTypeOptropic, CodeTypeQRSSL, CodeTypeGS1Compliant:
		return true
	}
	return false
}

// EncryptionLevel はコードの暗号強度を表す。
type EncryptionLevel string

const (
	EncryptionLevelAES128  EncryptionLevel = "AES_128"
	EncryptionLevelAES256  EncryptionLevel = "AES_256"
	EncryptionLevelRSA2048 EncryptionLevel = "RSA_2048"
	EncryptionLevelRSA4096 EncryptionLevel = "RSA_4096"
)

// Valid は既知の暗号強度かどうかを返す。
func (l EncryptionLevel) Valid() bool {
	switch l {
	case EncryptionLevelAES128, EncryptionLevelAES256, EncryptionLevelRSA2048, EncryptionLevelRSA4096:
		return true
	}
	return false
}

// IsWeak はトラストスコア上の弱強度かどうかを返す。
func (l EncryptionLevel) IsWeak() bool {
	return l == EncryptionLevelAES128 || l == EncryptionLevelRSA2048
}

// Code は発行済み識別コードを表す。
type Code struct {
	ID              string
	CodeValue       string // エンコード済みワイヤトークン
	CodeType        CodeType
	EncryptionLevel EncryptionLevel
	EntropySeed     string // 全コード間で一意
	Signature       []byte
	Payload         []byte // 発行時に確定した正準ペイロード（常に平文で保持）
	IsActive        bool
	ProjectID       string
	KeyID           string
	AssetID         *string
	CreatedAt       time.Time
}

// CodePayload は署名対象となる正準ペイロードを表す。
// フィールド順はJSONシリアライズの安定性のため変更しない。
type CodePayload struct {
	ProjectID       string            `json:"projectId"`
	KeyID           string            `json:"keyId"`
	EntropySeed     string            `json:"entropySeed"`
	Timestamp       int64             `json:"timestamp"` // UNIXミリ秒
	CodeType        CodeType          `json:"codeType"`
	EncryptionLevel EncryptionLevel   `json:"encryptionLevel"`
	ContentID       *string           `json:"contentId,omitempty"`
	Role            *string           `json:"role,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// CodeStats はコードと検証の統計を表す。
type CodeStats struct {
	TotalCodes        int64
	ActiveCodes       int64
	InactiveCodes     int64
	TotalScans        int64
	AverageTrustScore float64
}
