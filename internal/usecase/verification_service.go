package usecase

import (
	"context"
	"crypto/ecdsa"
	"log/slog"
	"time"

	"optropic-code-service/internal/cryptox"
	"optropic-code-service/internal/domain"
)

// 検証失敗時のメッセージ。公開エンドポイントへ返すため詳細は漏らさない。
const (
	msgInvalidFormat    = "Invalid code format"
	msgCodeNotFound     = "Code not found"
	msgCodeRevoked      = "Code has been revoked"
	msgKeyInactive      = "Key is inactive or revoked"
	msgInvalidSignature = "Invalid signature"
	msgDecryptFailed    = "Failed to decrypt payload"
	msgVerified         = "Code verified successfully"
)

// failureRiskScore は失敗ブランチに記録する固定リスクスコア。
const failureRiskScore = 100

// suspiciousTrustThreshold を下回る成功スキャンは不審としてマークされる。
const suspiciousTrustThreshold = 50

// Notifier はセキュリティイベントの通知シンクのインターフェース。
type Notifier interface {
	Notify(ctx context.Context, event *domain.SecurityEvent) error
}

// VerifiedCode は検証成功時に返すコード概要。
type VerifiedCode struct {
	ID              string
	CodeType        domain.CodeType
	EncryptionLevel domain.EncryptionLevel
	EntropySeed     string
	CreatedAt       time.Time
}

// VerifyResult は検証試行の結果を表す。ドメイン上の失敗は
// エラーではなくRejected結果として返し、インフラ障害のみエラーになる。
type VerifyResult struct {
	Success      bool
	TrustScore   int
	Message      string
	IsSuspicious bool
	Code         *VerifiedCode
	ProjectID    *string
}

// VerificationService はスキャンされたトークンの検証プロトコルを実装する。
type VerificationService struct {
	codes      CodeRepository
	keys       KeyRepository
	scans      ScanRepository
	notifier   Notifier
	payloadKey []byte
}

// NewVerificationService は新しいVerificationServiceを生成する。
func NewVerificationService(codes CodeRepository, keys KeyRepository, scans ScanRepository, notifier Notifier, secret string) *VerificationService {
	return &VerificationService{
		codes:      codes,
		keys:       keys,
		scans:      scans,
		notifier:   notifier,
		payloadKey: cryptox.DeriveKey(secret, "optropic/payload"),
	}
}

// Verify はスキャンされたトークンを検証し、監査レコードを必ず1行書き込む。
// 署名は保存済みの正準ペイロード（暗号化ペイロード付きトークンの場合は
// 埋め込み表現）に対して検証され、トークンが主張する内容は信用しない。
func (s *VerificationService) Verify(ctx context.Context, codeValue string, meta *domain.ScanMetadata) (*VerifyResult, error) {
	now := time.Now()

	// 1. トークン構造の解読
	token, err := decodeToken(codeValue)
	if err != nil {
		s.recordRejection(ctx, nil, nil, msgInvalidFormat, meta)
		return rejected(msgInvalidFormat, nil), nil
	}
	sig, err := token.signatureBytes()
	if err != nil {
		s.recordRejection(ctx, nil, nil, msgInvalidFormat, meta)
		return rejected(msgInvalidFormat, nil), nil
	}

	// 2. エントロピーシードでコードを解決
	code, err := s.codes.FindByEntropySeed(ctx, token.EntropySeed)
	if err != nil {
		return nil, err
	}
	if code == nil {
		s.recordRejection(ctx, nil, nil, msgCodeNotFound, meta)
		return rejected(msgCodeNotFound, nil), nil
	}

	// 3. 失効済みコードの再利用はセキュリティシグナルとして扱う
	if !code.IsActive {
		s.recordRejection(ctx, &code.ID, &code.ProjectID, msgCodeRevoked, meta)
		s.notify(ctx, &domain.SecurityEvent{
			Event:     domain.EventRevokedCodeReuse,
			ProjectID: code.ProjectID,
			CodeID:    &code.ID,
		})
		return rejected(msgCodeRevoked, &code.ProjectID), nil
	}

	// 4. 束縛された鍵の解決
	key, err := s.keys.FindByID(ctx, code.KeyID)
	if err != nil {
		return nil, err
	}
	if key == nil || !key.IsActive {
		s.recordRejection(ctx, &code.ID, &code.ProjectID, msgKeyInactive, meta)
		return rejected(msgKeyInactive, &code.ProjectID), nil
	}

	pub, err := cryptox.ParsePublicKey(key.PublicKey)
	if err != nil {
		return nil, err
	}

	if token.hasEncryptedPayload() {
		return s.verifyEncrypted(ctx, token, sig, code, pub, meta)
	}

	// 5. ダイジェストは保存済み正準ペイロードから再計算する。
	//    トークン側のペイロード差し替えによる署名再利用を防ぐ
	digest := cryptox.Digest(code.Payload)

	// 6. 署名検証
	if !cryptox.VerifySignature(pub, digest, sig) {
		s.recordRejection(ctx, &code.ID, &code.ProjectID, msgInvalidSignature, meta)
		return rejected(msgInvalidSignature, &code.ProjectID), nil
	}

	// 7. トラストスコア算出と監査記録
	score := ComputeTrustScore(code, key, now)
	suspicious := score < suspiciousTrustThreshold
	s.record(ctx, &domain.Scan{
		CodeID:              &code.ID,
		ProjectID:           &code.ProjectID,
		VerificationSuccess: true,
		TrustScore:          score,
		IsSuspicious:        suspicious,
		RiskScore:           100 - score,
		IPAddress:           meta.IPAddress,
		UserAgent:           meta.UserAgent,
		DeviceType:          meta.DeviceType,
		GeoHash:             meta.GeoHash,
		Country:             meta.Country,
		City:                meta.City,
		Region:              meta.Region,
	})

	return accepted(code, score, suspicious), nil
}

// verifyEncrypted は暗号化ペイロード付きトークンの検証バリアント。
// 正準ペイロードは埋め込み暗号文の復号で再構成され、スコアは100/0に縮退する。
func (s *VerificationService) verifyEncrypted(ctx context.Context, token *wireToken, sig []byte, code *domain.Code, pub *ecdsa.PublicKey, meta *domain.ScanMetadata) (*VerifyResult, error) {
	ciphertext, nonce, tag, err := token.encryptedPayloadBytes()
	if err != nil {
		s.recordRejection(ctx, &code.ID, &code.ProjectID, msgInvalidFormat, meta)
		return rejected(msgInvalidFormat, &code.ProjectID), nil
	}

	// 正準ペイロードを埋め込み暗号文の復号で再構成する
	if _, err := cryptox.Decrypt(s.payloadKey, ciphertext, nonce, tag); err != nil {
		s.recordRejection(ctx, &code.ID, &code.ProjectID, msgDecryptFailed, meta)
		return rejected(msgDecryptFailed, &code.ProjectID), nil
	}

	// 署名はトークンに埋め込まれた表現に束縛されている
	digest := cryptox.Digest(signingInput(nil, ciphertext, nonce, tag, true))
	if !cryptox.VerifySignature(pub, digest, sig) {
		s.recordRejection(ctx, &code.ID, &code.ProjectID, msgInvalidSignature, meta)
		return rejected(msgInvalidSignature, &code.ProjectID), nil
	}

	// このバリアントのスコアは段階評価ではなく100/0に縮退する
	const score = 100
	s.record(ctx, &domain.Scan{
		CodeID:              &code.ID,
		ProjectID:           &code.ProjectID,
		VerificationSuccess: true,
		TrustScore:          score,
		IsSuspicious:        false,
		RiskScore:           100 - score,
		IPAddress:           meta.IPAddress,
		UserAgent:           meta.UserAgent,
		DeviceType:          meta.DeviceType,
		GeoHash:             meta.GeoHash,
		Country:             meta.Country,
		City:                meta.City,
		Region:              meta.Region,
	})

	return accepted(code, score, false), nil
}

// rejected はRejected結果を生成する。
func rejected(message string, projectID *string) *VerifyResult {
	return &VerifyResult{
		Success:      false,
		TrustScore:   0,
		Message:      message,
		IsSuspicious: true,
		ProjectID:    projectID,
	}
}

// accepted はAccepted結果を生成する。
func accepted(code *domain.Code, score int, suspicious bool) *VerifyResult {
	return &VerifyResult{
		Success:      true,
		TrustScore:   score,
		Message:      msgVerified,
		IsSuspicious: suspicious,
		Code: &VerifiedCode{
			ID:              code.ID,
			CodeType:        code.CodeType,
			EncryptionLevel: code.EncryptionLevel,
			EntropySeed:     code.EntropySeed,
			CreatedAt:       code.CreatedAt,
		},
		ProjectID: &code.ProjectID,
	}
}

// recordRejection は失敗ブランチの監査レコードを書き込む。
func (s *VerificationService) recordRejection(ctx context.Context, codeID, projectID *string, reason string, meta *domain.ScanMetadata) {
	s.record(ctx, &domain.Scan{
		CodeID:              codeID,
		ProjectID:           projectID,
		VerificationSuccess: false,
		TrustScore:          0,
		IsSuspicious:        true,
		RiskScore:           failureRiskScore,
		FailureReason:       &reason,
		IPAddress:           meta.IPAddress,
		UserAgent:           meta.UserAgent,
		DeviceType:          meta.DeviceType,
		GeoHash:             meta.GeoHash,
		Country:             meta.Country,
		City:                meta.City,
		Region:              meta.Region,
	})
}

// record は監査レコードを書き込む。書き込み失敗はログに残すのみで、
// 呼び出し側へ返す検証結果には影響させない。
func (s *VerificationService) record(ctx context.Context, scan *domain.Scan) {
	if err := s.scans.Create(ctx, scan); err != nil {
		slog.ErrorContext(ctx, "failed to write scan audit record",
			"operation", "record_scan",
			"code_id", scan.CodeID,
			"error", err,
		)
	}
}

// notify はセキュリティイベントを通知する。送信失敗はログに残すのみ。
func (s *VerificationService) notify(ctx context.Context, event *domain.SecurityEvent) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, event); err != nil {
		slog.ErrorContext(ctx, "failed to send security notification",
			"operation", "notify",
			"event", event.Event,
			"project_id", event.ProjectID,
			"error", err,
		)
	}
}
