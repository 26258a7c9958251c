// Package fieldcrypto encrypts individual column values (shareholder PII)
// with Fernet tokens. Encrypted values carry a prefix so plaintext rows
// written before encryption was enabled can still be read.
package fieldcrypto

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fernet/fernet-go"
	"golang.org/x/crypto/hkdf"
)

const (
	prefix  = "enc:"
	keyInfo = "coopledger field encryption v1"
)

var (
	ErrEmptySecret = errors.New("fieldcrypto: secret must not be empty")
	ErrDecrypt     = errors.New("fieldcrypto: value cannot be decrypted with the configured key")
)

// Cipher is the collaborator contract used by the shareholder registry.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(value string) (string, error)
	IsEncrypted(value string) bool
}

// FernetCipher implements Cipher. Older keys may be supplied for rotation;
// Encrypt always uses the first key.
type FernetCipher struct {
	keys []*fernet.Key
}

// New derives a Fernet key from each secret with HKDF-SHA256.
func New(secret string, previous ...string) (*FernetCipher, error) {
	secrets := append([]string{secret}, previous...)
	keys := make([]*fernet.Key, 0, len(secrets))
	for _, s := range secrets {
		if s == "" {
			return nil, ErrEmptySecret
		}
		k, err := deriveKey(s)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return &FernetCipher{keys: keys}, nil
}

func deriveKey(secret string) (*fernet.Key, error) {
	var k fernet.Key
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte(keyInfo))
	if _, err := io.ReadFull(r, k[:]); err != nil {
		return nil, fmt.Errorf("fieldcrypto: derive key: %w", err)
	}
	return &k, nil
}

// Encrypt returns "enc:" followed by a Fernet token. Empty input stays empty.
func (c *FernetCipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	tok, err := fernet.EncryptAndSign([]byte(plaintext), c.keys[0])
	if err != nil {
		return "", fmt.Errorf("fieldcrypto: encrypt: %w", err)
	}
	return prefix + string(tok), nil
}

// Decrypt reverses Encrypt. Values without the prefix are returned as is.
func (c *FernetCipher) Decrypt(value string) (string, error) {
	if !c.IsEncrypted(value) {
		return value, nil
	}
	// Negative TTL: stored values never expire.
	msg := fernet.VerifyAndDecrypt([]byte(strings.TrimPrefix(value, prefix)), -1, c.keys)
	if msg == nil {
		return "", ErrDecrypt
	}
	return string(msg), nil
}

// IsEncrypted reports whether value was produced by Encrypt.
func (c *FernetCipher) IsEncrypted(value string) bool {
	return strings.HasPrefix(value, prefix)
}
