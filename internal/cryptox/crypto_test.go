package cryptox

import (
	"bytes"
	"testing"
)

func TestDeriveKey_DeterministicAndDomainSeparated(t *testing.T) {
	k1 := DeriveKey("secret", "key-wrap")
	k2 := DeriveKey("secret", "key-wrap")
	k3 := DeriveKey("secret", "payload")

	if len(k1) != 32 {
		t.Fatalf("want 32 byte key, got %d", len(k1))
	}
	if !bytes.Equal(k1, k2) {
		t.Error("same secret and info must derive the same key")
	}
	if bytes.Equal(k1, k3) {
		t.Error("different info must derive a different key")
	}
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	key := DeriveKey("secret", "test")
	plaintext := []byte("private key material")

	ct, nonce, tag, err := Encrypt(key, plaintext)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(nonce) != 12 {
		t.Errorf("want 12 byte nonce, got %d", len(nonce))
	}
	if len(tag) != 16 {
		t.Errorf("want 16 byte tag, got %d", len(tag))
	}

	got, err := Decrypt(key, ct, nonce, tag)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("want %q, got %q", plaintext, got)
	}
}

func TestDecrypt_TamperedTagFails(t *testing.T) {
	key := DeriveKey("secret", "test")
	ct, nonce, tag, err := Encrypt(key, []byte("data"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tag[0] ^= 0xff
	if _, err := Decrypt(key, ct, nonce, tag); err == nil {
		t.Error("want error for tampered tag, got nil")
	}
}

func TestDecrypt_WrongNonceLengthFails(t *testing.T) {
	key := DeriveKey("secret", "test")
	ct, _, tag, err := Encrypt(key, []byte("data"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// ノンスは外部入力になりうるため、不正長はpanicではなくエラーで返す
	for _, n := range [][]byte{nil, {0x01, 0x02}, make([]byte, 16)} {
		if _, err := Decrypt(key, ct, n, tag); err == nil {
			t.Errorf("want error for %d byte nonce, got nil", len(n))
		}
	}
}

func TestDecrypt_WrongKeyFails(t *testing.T) {
	ct, nonce, tag, err := Encrypt(DeriveKey("secret", "test"), []byte("data"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := Decrypt(DeriveKey("other", "test"), ct, nonce, tag); err == nil {
		t.Error("want error for wrong key, got nil")
	}
}

func TestSignVerify(t *testing.T) {
	priv, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	digest := Digest([]byte("payload"))
	sig, err := Sign(priv, digest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !VerifySignature(&priv.PublicKey, digest, sig) {
		t.Error("want valid signature")
	}

	tampered := append([]byte(nil), sig...)
	tampered[len(tampered)/2] ^= 0x01
	if VerifySignature(&priv.PublicKey, digest, tampered) {
		t.Error("want tampered signature to fail")
	}
}

func TestMarshalKeys_RoundTrip(t *testing.T) {
	priv, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	privDER, err := MarshalPrivateKey(priv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	gotPriv, err := ParsePrivateKey(privDER)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !gotPriv.Equal(priv) {
		t.Error("private key round trip mismatch")
	}

	pubDER, err := MarshalPublicKey(&priv.PublicKey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	gotPub, err := ParsePublicKey(pubDER)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !gotPub.Equal(&priv.PublicKey) {
		t.Error("public key round trip mismatch")
	}
}
