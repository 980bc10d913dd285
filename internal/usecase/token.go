package usecase

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"optropic-code-service/internal/domain"
)

// wireToken はスキャン対象に埋め込まれるコンパクトなワイヤトークン。
// フィールド名は相互運用性のための固定契約で変更できない。
type wireToken struct {
	EntropySeed string `json:"e"`
	Signature   string `json:"s"`
	KeyID       string `json:"k"`
	Encrypted   string `json:"enc,omitempty"`
	IV          string `json:"iv,omitempty"`
	Tag         string `json:"tag,omitempty"`
}

// hasEncryptedPayload は暗号化ペイロードが埋め込まれているかを返す。
func (t *wireToken) hasEncryptedPayload() bool {
	return t.Encrypted != ""
}

// signatureBytes は署名をデコードして返す。
func (t *wireToken) signatureBytes() ([]byte, error) {
	sig, err := base64.RawURLEncoding.DecodeString(t.Signature)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed signature encoding", domain.ErrInvalidToken)
	}
	return sig, nil
}

// encryptedPayloadBytes は埋め込み暗号文・ノンス・認証タグをデコードして返す。
func (t *wireToken) encryptedPayloadBytes() (ciphertext, nonce, tag []byte, err error) {
	ciphertext, err = base64.RawURLEncoding.DecodeString(t.Encrypted)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: malformed ciphertext encoding", domain.ErrInvalidToken)
	}
	nonce, err = base64.RawURLEncoding.DecodeString(t.IV)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: malformed nonce encoding", domain.ErrInvalidToken)
	}
	tag, err = base64.RawURLEncoding.DecodeString(t.Tag)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: malformed tag encoding", domain.ErrInvalidToken)
	}
	return ciphertext, nonce, tag, nil
}

// encodeToken はトークンをURLセーフなテキストにエンコードする。
func encodeToken(t *wireToken) (string, error) {
	raw, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("marshaling token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// decodeToken はエンコード済みトークンを解読する。構造が不正な場合はErrInvalidToken。
func decodeToken(codeValue string) (*wireToken, error) {
	raw, err := base64.RawURLEncoding.DecodeString(codeValue)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed encoding", domain.ErrInvalidToken)
	}

	var t wireToken
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("%w: malformed structure", domain.ErrInvalidToken)
	}
	if t.EntropySeed == "" || t.Signature == "" || t.KeyID == "" {
		return nil, fmt.Errorf("%w: missing required fields", domain.ErrInvalidToken)
	}
	// 暗号化ペイロードは3フィールド揃っていなければならない
	if t.hasEncryptedPayload() && (t.IV == "" || t.Tag == "") {
		return nil, fmt.Errorf("%w: incomplete encrypted payload", domain.ErrInvalidToken)
	}
	return &t, nil
}

// signingInput は署名対象となるバイト列を返す。
// 暗号化ペイロード付きの場合はトークンに実際に埋め込まれる表現
// （暗号文・ノンス・認証タグの連結）に署名が束縛される。
func signingInput(payload, ciphertext, nonce, tag []byte, encrypted bool) []byte {
	if !encrypted {
		return payload
	}
	input := make([]byte, 0, len(ciphertext)+len(nonce)+len(tag))
	input = append(input, ciphertext...)
	input = append(input, nonce...)
	input = append(input, tag...)
	return input
}
