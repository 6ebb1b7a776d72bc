package box

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint returns the SHA-256 hex digest of address, nickname and comment
// concatenated in that order. Only submission metadata is hashed; the uploaded
// file's bytes never contribute.
func Fingerprint(address, nickname, comment string) string {
	h := sha256.New()
	h.Write([]byte(address))
	h.Write([]byte(nickname))
	h.Write([]byte(comment))
	return hex.EncodeToString(h.Sum(nil))
}
