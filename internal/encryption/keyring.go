// Package encryption seals delivered archives with age and manages the key
// pair an operator uses to open them again.
package encryption

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"
	"filippo.io/age/armor"

	"photobox/internal/config"
)

// ErrNoKeys is returned when the key pair has not been generated yet.
var ErrNoKeys = errors.New("archive keys not initialized (run `photobox keys init`)")

// Keyring is the archive key pair on disk. The public key is an age X25519
// recipient in plain text. The private key is the matching identity,
// encrypted to the operator's passphrase and ASCII-armored.
type Keyring struct {
	publicKeyPath  string
	privateKeyPath string
}

// NewKeyring returns the key pair at the paths in cfg.
func NewKeyring(cfg config.EncryptionConfig) *Keyring {
	return &Keyring{publicKeyPath: cfg.PublicKeyPath, privateKeyPath: cfg.PrivateKeyPath}
}

// Exists reports whether both key files are present.
func (k *Keyring) Exists() bool {
	for _, p := range []string{k.publicKeyPath, k.privateKeyPath} {
		if _, err := os.Stat(p); err != nil {
			return false
		}
	}
	return true
}

// Generate creates a new key pair and returns the public recipient string.
// Neither file is ever replaced: archives sealed to an earlier key would
// become unreadable.
func (k *Keyring) Generate(passphrase string) (string, error) {
	if passphrase == "" {
		return "", errors.New("passphrase must not be empty")
	}
	if k.publicKeyPath == "" || k.privateKeyPath == "" {
		return "", errors.New("public and private key paths are required")
	}

	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return "", fmt.Errorf("generating key pair: %w", err)
	}

	var private bytes.Buffer
	if err := lockIdentity(&private, identity, passphrase); err != nil {
		return "", err
	}

	// Private first: a public key on disk implies its identity is there too.
	if err := createExclusive(k.privateKeyPath, private.Bytes(), 0600); err != nil {
		return "", fmt.Errorf("writing private key: %w", err)
	}
	recipient := identity.Recipient().String()
	if err := createExclusive(k.publicKeyPath, []byte(recipient+"\n"), 0644); err != nil {
		os.Remove(k.privateKeyPath)
		return "", fmt.Errorf("writing public key: %w", err)
	}
	return recipient, nil
}

// Recipient reads the public key.
func (k *Keyring) Recipient() (age.Recipient, error) {
	data, err := os.ReadFile(k.publicKeyPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNoKeys
		}
		return nil, fmt.Errorf("reading public key: %w", err)
	}
	r, err := age.ParseX25519Recipient(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("parsing public key %s: %w", k.publicKeyPath, err)
	}
	return r, nil
}

// Unlock decrypts the private key with passphrase and returns an Opener for
// sealed archives.
func (k *Keyring) Unlock(passphrase string) (*Opener, error) {
	f, err := os.Open(k.privateKeyPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNoKeys
		}
		return nil, fmt.Errorf("opening private key: %w", err)
	}
	defer f.Close()

	scrypt, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("preparing passphrase: %w", err)
	}
	plain, err := age.Decrypt(armor.NewReader(f), scrypt)
	if err != nil {
		return nil, fmt.Errorf("unlocking private key: %w", err)
	}
	text, err := io.ReadAll(plain)
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}
	identity, err := age.ParseX25519Identity(strings.TrimSpace(string(text)))
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	return &Opener{identity: identity}, nil
}

func lockIdentity(w io.Writer, identity *age.X25519Identity, passphrase string) error {
	scrypt, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return fmt.Errorf("preparing passphrase: %w", err)
	}
	aw := armor.NewWriter(w)
	ew, err := age.Encrypt(aw, scrypt)
	if err != nil {
		return fmt.Errorf("locking private key: %w", err)
	}
	if _, err := io.WriteString(ew, identity.String()+"\n"); err != nil {
		return fmt.Errorf("locking private key: %w", err)
	}
	if err := ew.Close(); err != nil {
		return fmt.Errorf("locking private key: %w", err)
	}
	return aw.Close()
}

// createExclusive writes data to a temp file next to path and links it into
// place. The link fails if path already exists.
func createExclusive(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-key-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Link(tmp.Name(), path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%s already exists", path)
		}
		return err
	}
	return nil
}
