package infra

import (
	"context"

	"optropic-code-service/internal/cryptox"
)

// LocalKeyCipher はプロセス共通シークレットから導出した鍵で
// 秘密鍵材料をAES-GCMラップする。KMSが設定されていない環境で使う。
type LocalKeyCipher struct {
	key []byte
}

// NewLocalKeyCipher はシークレットからHKDFで鍵を導出してLocalKeyCipherを生成する。
func NewLocalKeyCipher(secret string) *LocalKeyCipher {
	return &LocalKeyCipher{
		key: cryptox.DeriveKey(secret, "optropic/key-wrap"),
	}
}

// Encrypt は平文を暗号化し、暗号文・ノンス・認証タグを返す。
func (c *LocalKeyCipher) Encrypt(ctx context.Context, plaintext []byte) (ciphertext, nonce, tag []byte, err error) {
	return cryptox.Encrypt(c.key, plaintext)
}

// Decrypt は暗号文を復号する。認証タグの不一致はエラーとなる。
func (c *LocalKeyCipher) Decrypt(ctx context.Context, ciphertext, nonce, tag []byte) ([]byte, error) {
	return cryptox.Decrypt(c.key, ciphertext, nonce, tag)
}
