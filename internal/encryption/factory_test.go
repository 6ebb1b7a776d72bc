package encryption_test

import (
	"errors"
	"testing"

	"photobox/internal/config"
	"photobox/internal/encryption"
)

func TestNewEncryptorFromConfig(t *testing.T) {
	t.Run("none returns nil encryptor", func(t *testing.T) {
		for _, typ := range []string{"none", ""} {
			enc, err := encryption.NewEncryptorFromConfig(config.EncryptionConfig{Type: typ})
			if err != nil {
				t.Fatalf("NewEncryptorFromConfig(%q) error = %v", typ, err)
			}
			if enc != nil {
				t.Errorf("NewEncryptorFromConfig(%q) = %T, want nil", typ, enc)
			}
		}
	})

	t.Run("age without keys fails at startup", func(t *testing.T) {
		_, err := encryption.NewEncryptorFromConfig(keyConfig(t))
		if !errors.Is(err, encryption.ErrNoKeys) {
			t.Fatalf("NewEncryptorFromConfig() error = %v, want ErrNoKeys", err)
		}
	})

	t.Run("age with keys", func(t *testing.T) {
		cfg := keyConfig(t)
		if _, err := encryption.NewKeyring(cfg).Generate("pw"); err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		enc, err := encryption.NewEncryptorFromConfig(cfg)
		if err != nil {
			t.Fatalf("NewEncryptorFromConfig() error = %v", err)
		}
		if _, ok := enc.(*encryption.Sealer); !ok {
			t.Errorf("NewEncryptorFromConfig() = %T, want *encryption.Sealer", enc)
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		if _, err := encryption.NewEncryptorFromConfig(config.EncryptionConfig{Type: "rot13"}); err == nil {
			t.Fatal("NewEncryptorFromConfig() expected error for unknown type")
		}
	})
}
