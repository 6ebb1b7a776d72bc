package box

import "io"

// Encryptor seals archives that a transport keeps at rest. Opening them again
// is an operator task and needs the passphrase-protected private key.
type Encryptor interface {
	Encrypt(r io.Reader, w io.Writer) error
}
