// Package cryptox は署名・ダイジェスト・認証付き暗号のプリミティブを提供する。
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	keySize    = 32 // AES-256
	gcmTagSize = 16
)

// DeriveKey は設定済みシークレットからHKDF-SHA256でAES-256鍵を導出する。
// infoで鍵の用途（秘密鍵ラップ／ペイロード暗号化）を分離する。
func DeriveKey(secret string, info string) []byte {
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte(info))
	key := make([]byte, keySize)
	// hkdf.Readerは要求長が上限内であれば失敗しない
	if _, err := io.ReadFull(r, key); err != nil {
		panic(fmt.Sprintf("cryptox: hkdf read: %v", err))
	}
	return key
}

// GenerateKeyPair はP-256のECDSA鍵ペアを生成する。
func GenerateKeyPair() (*ecdsa.PrivateKey, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating keypair: %w", err)
	}
	return priv, nil
}

// MarshalPublicKey は公開鍵をPKIX形式にシリアライズする。
func MarshalPublicKey(pub *ecdsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("marshaling public key: %w", err)
	}
	return der, nil
}

// ParsePublicKey はPKIX形式の公開鍵を復元する。
func ParsePublicKey(der []byte) (*ecdsa.PublicKey, error) {
	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("parsing public key: %w", err)
	}
	pub, ok := key.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("parsing public key: not an ECDSA key")
	}
	return pub, nil
}

// MarshalPrivateKey は秘密鍵をSEC1形式にシリアライズする。
func MarshalPrivateKey(priv *ecdsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("marshaling private key: %w", err)
	}
	return der, nil
}

// ParsePrivateKey はSEC1形式の秘密鍵を復元する。
func ParsePrivateKey(der []byte) (*ecdsa.PrivateKey, error) {
	priv, err := x509.ParseECPrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	return priv, nil
}

// Encrypt は平文をAES-GCMで暗号化し、暗号文・ノンス・認証タグを分離して返す。
// ノンスは毎回ランダムに生成する。
func Encrypt(key, plaintext []byte) (ciphertext, nonce, tag []byte, err error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("creating cipher: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("creating GCM: %w", err)
	}

	nonce = make([]byte, aesgcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, nil, fmt.Errorf("generating nonce: %w", err)
	}

	sealed := aesgcm.Seal(nil, nonce, plaintext, nil)
	// Sealの出力末尾16バイトが認証タグ
	ciphertext = sealed[:len(sealed)-gcmTagSize]
	tag = sealed[len(sealed)-gcmTagSize:]
	return ciphertext, nonce, tag, nil
}

// Decrypt はAES-GCMで復号する。認証タグの不一致はエラーとなり、
// 破損した平文を返すことはない。
func Decrypt(key, ciphertext, nonce, tag []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	// Openは不正長のノンスでpanicするため、外部入力はここで弾く
	if len(nonce) != aesgcm.NonceSize() {
		return nil, fmt.Errorf("authenticated decryption: invalid nonce length %d", len(nonce))
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := aesgcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("authenticated decryption: %w", err)
	}
	return plaintext, nil
}

// Digest はSHA-256ダイジェストを計算する。
func Digest(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// Sign はダイジェストにECDSA署名（ASN.1形式）を付与する。
func Sign(priv *ecdsa.PrivateKey, digest []byte) ([]byte, error) {
	sig, err := ecdsa.SignASN1(rand.Reader, priv, digest)
	if err != nil {
		return nil, fmt.Errorf("signing digest: %w", err)
	}
	return sig, nil
}

// VerifySignature はダイジェストに対する署名を検証する。
func VerifySignature(pub *ecdsa.PublicKey, digest, sig []byte) bool {
	return ecdsa.VerifyASN1(pub, digest, sig)
}
