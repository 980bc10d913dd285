package infra

import (
	"context"
	"fmt"

	kms "cloud.google.com/go/kms/apiv1"
	kmspb "cloud.google.com/go/kms/apiv1/kmspb"
)

// KMSKeyCipher はCloud KMSで秘密鍵材料をラップする。
// ノンスと認証タグはKMS側の暗号文に内包されるため、分離フィールドは常に空になる。
type KMSKeyCipher struct {
	client  *kms.KeyManagementClient
	keyName string
}

// NewKMSKeyCipher は指定されたキー名でKMSKeyCipherを生成する。
func NewKMSKeyCipher(ctx context.Context, keyName string) (*KMSKeyCipher, error) {
	if keyName == "" {
		return nil, fmt.Errorf("KMS key name is required")
	}

	client, err := kms.NewKeyManagementClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating KMS client: %w", err)
	}

	return &KMSKeyCipher{
		client:  client,
		keyName: keyName,
	}, nil
}

// Encrypt は平文をCloud KMSで暗号化する。
func (c *KMSKeyCipher) Encrypt(ctx context.Context, plaintext []byte) (ciphertext, nonce, tag []byte, err error) {
	req := &kmspb.EncryptRequest{
		Name:      c.keyName,
		Plaintext: plaintext,
	}
	resp, err := c.client.Encrypt(ctx, req)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("encrypting: %w", err)
	}
	return resp.Ciphertext, nil, nil, nil
}

// Decrypt は暗号文をCloud KMSで復号する。
func (c *KMSKeyCipher) Decrypt(ctx context.Context, ciphertext, nonce, tag []byte) ([]byte, error) {
	req := &kmspb.DecryptRequest{
		Name:       c.keyName,
		Ciphertext: ciphertext,
	}
	resp, err := c.client.Decrypt(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}
	return resp.Plaintext, nil
}

// Close はKMSクライアントを閉じる。
func (c *KMSKeyCipher) Close() error {
	return c.client.Close()
}
