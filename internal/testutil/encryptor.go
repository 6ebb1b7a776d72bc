package testutil

import (
	"bytes"
	"io"
	"testing"

	"filippo.io/age"

	"photobox/internal/box"
	"photobox/internal/encryption"
)

// TestKeys is an in-memory age key pair.
type TestKeys struct {
	identity *age.X25519Identity
}

// NewTestKeys generates a fresh key pair.
func NewTestKeys(t *testing.T) *TestKeys {
	t.Helper()
	id, err := age.GenerateX25519Identity()
	if err != nil {
		t.Fatalf("generating test identity: %v", err)
	}
	return &TestKeys{identity: id}
}

// Encryptor seals to the pair's public key the way a configured transport does.
func (k *TestKeys) Encryptor() box.Encryptor {
	return encryption.NewSealer(k.identity.Recipient())
}

// Open decrypts data sealed to the pair.
func (k *TestKeys) Open(t *testing.T, data []byte) []byte {
	t.Helper()
	r, err := age.Decrypt(bytes.NewReader(data), k.identity)
	if err != nil {
		t.Fatalf("opening sealed data: %v", err)
	}
	plain, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("reading sealed data: %v", err)
	}
	return plain
}
