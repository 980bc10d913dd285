package usecase

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"optropic-code-service/internal/cryptox"
	"optropic-code-service/internal/domain"
	"optropic-code-service/pkg/patternutil"
)

// CodeRepository はコードデータアクセスのインターフェース。
type CodeRepository interface {
	Create(ctx context.Context, code *domain.Code) error
	FindByID(ctx context.Context, id string) (*domain.Code, error)
	FindByEntropySeed(ctx context.Context, seed string) (*domain.Code, error)
	FindAllByProjectID(ctx context.Context, projectID string) ([]*domain.Code, error)
	Deactivate(ctx context.Context, id string) error
	CountByProjectID(ctx context.Context, projectID string) (total int64, active int64, err error)
}

// ScanRepository はスキャン監査ログのデータアクセスのインターフェース。
type ScanRepository interface {
	Create(ctx context.Context, scan *domain.Scan) error
	CountInWindow(ctx context.Context, projectID string, from, to time.Time) (int64, error)
	SuspiciousCountsByIP(ctx context.Context, projectID string, since time.Time) ([]*domain.SuspiciousSource, error)
	CountAndAverageTrust(ctx context.Context, projectID string) (int64, float64, error)
}

// IssueCodeInput はコード発行の入力を表す。
type IssueCodeInput struct {
	ProjectID       string
	KeyID           string
	CodeType        domain.CodeType
	EncryptionLevel domain.EncryptionLevel
	ContentID       *string
	AssetID         *string
	Role            *string
	Metadata        map[string]string
	EncryptPayload  bool
}

// EncryptedPayload はトークンに埋め込まれた暗号化ペイロードの各要素を表す。
type EncryptedPayload struct {
	Ciphertext string
	Nonce      string
	Tag        string
}

// IssuedCode はコード発行の結果を表す。
type IssuedCode struct {
	Code             *domain.Code
	PatternURL       string
	EncryptedPayload *EncryptedPayload
}

// CodeService はコード発行・失効・照会のビジネスロジックを提供する。
type CodeService struct {
	codes      CodeRepository
	keys       KeyRepository
	scans      ScanRepository
	keySvc     *KeyService
	payloadKey []byte
}

// NewCodeService は新しいCodeServiceを生成する。
func NewCodeService(codes CodeRepository, keys KeyRepository, scans ScanRepository, keySvc *KeyService, secret string) *CodeService {
	return &CodeService{
		codes:      codes,
		keys:       keys,
		scans:      scans,
		keySvc:     keySvc,
		payloadKey: cryptox.DeriveKey(secret, "optropic/payload"),
	}
}

// newEntropySeed は高エントロピーの一意なシードを生成する。
// UUID・タイムスタンプ・乱数の組み合わせで、想定発行量に対して衝突確率は無視できる。
func newEntropySeed(now time.Time) (string, error) {
	random := make([]byte, 8)
	if _, err := rand.Read(random); err != nil {
		return "", fmt.Errorf("generating entropy: %w", err)
	}
	return fmt.Sprintf("%s-%x-%s", uuid.New().String(), now.UnixMilli(), hex.EncodeToString(random)), nil
}

// IssueCode は鍵に束縛された署名付きコードを発行する。
// 署名に失敗した場合、コード行は一切保存されない。
func (s *CodeService) IssueCode(ctx context.Context, input *IssueCodeInput) (*IssuedCode, error) {
	if !input.CodeType.Valid() {
		return nil, fmt.Errorf("%w: unknown code type %q", domain.ErrInvalidInput, input.CodeType)
	}
	if !input.EncryptionLevel.Valid() {
		return nil, fmt.Errorf("%w: unknown encryption level %q", domain.ErrInvalidInput, input.EncryptionLevel)
	}

	now := time.Now()

	// 鍵は有効かつ未失効でなければならない
	key, err := s.keys.FindByID(ctx, input.KeyID)
	if err != nil {
		return nil, fmt.Errorf("finding key: %w", err)
	}
	if key == nil {
		return nil, domain.ErrKeyNotFound
	}
	if !key.IsActive {
		return nil, domain.ErrKeyInactive
	}
	if key.IsExpired(now) {
		return nil, domain.ErrKeyExpired
	}

	seed, err := newEntropySeed(now)
	if err != nil {
		return nil, err
	}

	// 発行時に確定する正準ペイロード
	payload := &domain.CodePayload{
		ProjectID:       input.ProjectID,
		KeyID:           input.KeyID,
		EntropySeed:     seed,
		Timestamp:       now.UnixMilli(),
		CodeType:        input.CodeType,
		EncryptionLevel: input.EncryptionLevel,
		ContentID:       input.ContentID,
		Role:            input.Role,
		Metadata:        input.Metadata,
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling payload: %w", err)
	}

	// トークン埋め込み用の暗号化コピー。サーバー側の正準ペイロードは常に平文で保持する
	var ciphertext, nonce, tag []byte
	if input.EncryptPayload {
		ciphertext, nonce, tag, err = cryptox.Encrypt(s.payloadKey, payloadJSON)
		if err != nil {
			return nil, fmt.Errorf("encrypting payload: %w", err)
		}
	}

	// 署名はトークンに実際に埋め込まれる表現に束縛する
	digest := cryptox.Digest(signingInput(payloadJSON, ciphertext, nonce, tag, input.EncryptPayload))

	priv, err := s.keySvc.signingKey(ctx, input.KeyID)
	if err != nil {
		return nil, err
	}
	signature, err := cryptox.Sign(priv, digest)
	if err != nil {
		return nil, err
	}

	token := &wireToken{
		EntropySeed: seed,
		Signature:   base64.RawURLEncoding.EncodeToString(signature),
		KeyID:       input.KeyID,
	}
	if input.EncryptPayload {
		token.Encrypted = base64.RawURLEncoding.EncodeToString(ciphertext)
		token.IV = base64.RawURLEncoding.EncodeToString(nonce)
		token.Tag = base64.RawURLEncoding.EncodeToString(tag)
	}
	codeValue, err := encodeToken(token)
	if err != nil {
		return nil, err
	}

	code := &domain.Code{
		CodeValue:       codeValue,
		CodeType:        input.CodeType,
		EncryptionLevel: input.EncryptionLevel,
		EntropySeed:     seed,
		Signature:       signature,
		Payload:         payloadJSON,
		IsActive:        true,
		ProjectID:       input.ProjectID,
		KeyID:           input.KeyID,
		AssetID:         input.AssetID,
	}
	if err := s.codes.Create(ctx, code); err != nil {
		return nil, fmt.Errorf("creating code: %w", err)
	}

	issued := &IssuedCode{
		Code:       code,
		PatternURL: patternutil.Render(codeValue),
	}
	if input.EncryptPayload {
		issued.EncryptedPayload = &EncryptedPayload{
			Ciphertext: token.Encrypted,
			Nonce:      token.IV,
			Tag:        token.Tag,
		}
	}
	return issued, nil
}

// RevokeCode はコードを無効化する。終端遷移で、取り消す手段はない。
func (s *CodeService) RevokeCode(ctx context.Context, codeID string) (*domain.Code, error) {
	code, err := s.codes.FindByID(ctx, codeID)
	if err != nil {
		return nil, fmt.Errorf("finding code: %w", err)
	}
	if code == nil {
		return nil, domain.ErrCodeNotFound
	}
	if !code.IsActive {
		return nil, domain.ErrCodeRevoked
	}

	if err := s.codes.Deactivate(ctx, code.ID); err != nil {
		return nil, fmt.Errorf("deactivating code: %w", err)
	}

	code.IsActive = false
	return code, nil
}

// ListCodes は指定されたプロジェクトの全コードを取得する。副作用はない。
func (s *CodeService) ListCodes(ctx context.Context, projectID string) ([]*domain.Code, error) {
	codes, err := s.codes.FindAllByProjectID(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("finding codes: %w", err)
	}
	return codes, nil
}

// GetCodeByValue はエンコード済みトークンからコードを解決する。副作用はない。
func (s *CodeService) GetCodeByValue(ctx context.Context, codeValue string) (*domain.Code, error) {
	token, err := decodeToken(codeValue)
	if err != nil {
		return nil, err
	}

	code, err := s.codes.FindByEntropySeed(ctx, token.EntropySeed)
	if err != nil {
		return nil, fmt.Errorf("finding code: %w", err)
	}
	if code == nil {
		return nil, domain.ErrCodeNotFound
	}
	return code, nil
}

// GetStats はコードとスキャンの統計を取得する。副作用はない。
func (s *CodeService) GetStats(ctx context.Context, projectID string) (*domain.CodeStats, error) {
	total, active, err := s.codes.CountByProjectID(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("counting codes: %w", err)
	}

	scans, avgTrust, err := s.scans.CountAndAverageTrust(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("aggregating scans: %w", err)
	}

	return &domain.CodeStats{
		TotalCodes:        total,
		ActiveCodes:       active,
		InactiveCodes:     total - active,
		TotalScans:        scans,
		AverageTrustScore: avgTrust,
	}, nil
}
