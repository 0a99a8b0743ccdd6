// Package vault encrypts third-party access and refresh tokens before they are
// persisted, using AES-256-GCM with a process-wide key.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/switchboardhq/switchboard/internal/errs"
)

// KeyEnv is the environment variable holding the 64 hex character key.
const KeyEnv = "TOKEN_ENCRYPTION_KEY"

const (
	keySize   = 32
	nonceSize = 16
	tagSize   = 16
)

var (
	// ErrKeyMissing is returned when no key has been configured.
	ErrKeyMissing = fmt.Errorf("%w: %s is not set", errs.ErrConfiguration, KeyEnv)
	// ErrKeyInvalid is returned when the configured key is not 32 bytes of hex.
	ErrKeyInvalid = fmt.Errorf("%w: %s must be %d hex characters", errs.ErrConfiguration, KeyEnv, keySize*2)
	// ErrDecrypt is returned for any ciphertext that fails to authenticate.
	ErrDecrypt = fmt.Errorf("%w: token decryption failed", errs.ErrAuthentication)
)

// EncryptedToken is the persisted form of a token. All fields are hex encoded.
type EncryptedToken struct {
	Ciphertext string `json:"ciphertext"`
	IV         string `json:"iv"`
	AuthTag    string `json:"auth_tag"`
}

// Vault wraps and unwraps tokens. The key is resolved on first use so a
// misconfigured process fails at the first token operation rather than at
// startup. Safe for concurrent use.
type Vault struct {
	keySource func() string

	once sync.Once
	aead cipher.AEAD
	err  error
}

// New returns a Vault using the given hex key.
func New(keyHex string) *Vault {
	return &Vault{keySource: func() string { return keyHex }}
}

// FromEnv returns a Vault that reads its key from TOKEN_ENCRYPTION_KEY on first use.
func FromEnv() *Vault {
	return &Vault{keySource: func() string { return os.Getenv(KeyEnv) }}
}

// GenerateKey returns a random key in the format expected by New.
func GenerateKey() (string, error) {
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	return hex.EncodeToString(key), nil
}

func (v *Vault) cipher() (cipher.AEAD, error) {
	v.once.Do(func() {
		keyHex := v.keySource()
		if keyHex == "" {
			v.err = ErrKeyMissing
			return
		}
		key, err := hex.DecodeString(keyHex)
		if err != nil || len(key) != keySize {
			v.err = ErrKeyInvalid
			return
		}
		block, err := aes.NewCipher(key)
		if err != nil {
			v.err = fmt.Errorf("%w: %v", errs.ErrConfiguration, err)
			return
		}
		v.aead, v.err = cipher.NewGCMWithNonceSize(block, nonceSize)
	})
	return v.aead, v.err
}

// Encrypt seals plaintext under a fresh random nonce.
func (v *Vault) Encrypt(plaintext string) (EncryptedToken, error) {
	aead, err := v.cipher()
	if err != nil {
		return EncryptedToken{}, err
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return EncryptedToken{}, fmt.Errorf("vault: generate nonce: %w", err)
	}

	sealed := aead.Seal(nil, nonce, []byte(plaintext), nil)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	return EncryptedToken{
		Ciphertext: hex.EncodeToString(ct),
		IV:         hex.EncodeToString(nonce),
		AuthTag:    hex.EncodeToString(tag),
	}, nil
}

// Decrypt opens a token produced by Encrypt. Any tampering, or a different
// key, yields ErrDecrypt and no plaintext.
func (v *Vault) Decrypt(tok EncryptedToken) (string, error) {
	aead, err := v.cipher()
	if err != nil {
		return "", err
	}

	ct, err := hex.DecodeString(tok.Ciphertext)
	if err != nil {
		return "", ErrDecrypt
	}
	nonce, err := hex.DecodeString(tok.IV)
	if err != nil || len(nonce) != nonceSize {
		return "", ErrDecrypt
	}
	tag, err := hex.DecodeString(tok.AuthTag)
	if err != nil || len(tag) != tagSize {
		return "", ErrDecrypt
	}

	sealed := make([]byte, 0, len(ct)+len(tag))
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrDecrypt
	}
	return string(plaintext), nil
}
