package encryption

import (
	"fmt"

	"photobox/internal/box"
	"photobox/internal/config"
)

// NewEncryptorFromConfig creates an Encryptor based on the configuration type.
// Type "none" (the default) returns a nil Encryptor: archives are stored as is.
// Type "age" reads the public key now, so a missing key fails at startup
// instead of at the first delivery.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (box.Encryptor, error) {
	switch cfg.Type {
	case "none", "":
		return nil, nil
	case "age":
		r, err := NewKeyring(cfg).Recipient()
		if err != nil {
			return nil, err
		}
		return NewSealer(r), nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
