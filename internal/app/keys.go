package app

import (
	"fmt"
	"io"

	"photobox/internal/config"
	"photobox/internal/encryption"
)

// InitKeys generates the archive key pair at the paths in cfg, protecting the
// private key with passphrase, and returns the public recipient. Existing
// keys are left alone.
func InitKeys(cfg config.EncryptionConfig, passphrase string) (string, error) {
	recipient, err := encryption.NewKeyring(cfg).Generate(passphrase)
	if err != nil {
		return "", fmt.Errorf("initializing keys: %w", err)
	}
	return recipient, nil
}

// DecryptArchive unlocks the private key in cfg and decrypts an archive that
// an encrypting transport delivered.
func DecryptArchive(cfg config.EncryptionConfig, passphrase string, in io.Reader, out io.Writer) error {
	opener, err := encryption.NewKeyring(cfg).Unlock(passphrase)
	if err != nil {
		return err
	}
	if err := opener.Decrypt(in, out); err != nil {
		return fmt.Errorf("decrypting archive: %w", err)
	}
	return nil
}
