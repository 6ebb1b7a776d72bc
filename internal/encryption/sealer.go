package encryption

import (
	"fmt"
	"io"

	"filippo.io/age"

	"photobox/internal/box"
)

// Sealer encrypts archives to a fixed set of age recipients. Safe for
// concurrent use.
type Sealer struct {
	recipients []age.Recipient
}

var _ box.Encryptor = (*Sealer)(nil)

// NewSealer creates a Sealer for recipients.
func NewSealer(recipients ...age.Recipient) *Sealer {
	return &Sealer{recipients: recipients}
}

// Encrypt writes the age ciphertext of r to w.
func (s *Sealer) Encrypt(r io.Reader, w io.Writer) error {
	ew, err := age.Encrypt(w, s.recipients...)
	if err != nil {
		return fmt.Errorf("sealing archive: %w", err)
	}
	if _, err := io.Copy(ew, r); err != nil {
		return fmt.Errorf("sealing archive: %w", err)
	}
	if err := ew.Close(); err != nil {
		return fmt.Errorf("sealing archive: %w", err)
	}
	return nil
}

// Opener decrypts archives sealed to an unlocked identity.
type Opener struct {
	identity age.Identity
}

// Decrypt writes the plaintext of the sealed archive r to w.
func (o *Opener) Decrypt(r io.Reader, w io.Writer) error {
	plain, err := age.Decrypt(r, o.identity)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	if _, err := io.Copy(w, plain); err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	return nil
}
