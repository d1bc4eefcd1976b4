// Package vault encrypts and decrypts credential secret material with
// AES-256-GCM under versioned key epochs. The current epoch encrypts new
// envelopes; retired epochs remain decrypt-only until purged, which lets key
// rotation happen without re-encrypting every stored credential at once.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ericfisherdev/accountpilot/internal/domain/model"
)

var (
	// ErrDecryptFailed is returned when the authentication tag does not verify.
	ErrDecryptFailed = errors.New("vault: decryption failed")
	// ErrUnknownEpoch is returned when an envelope references an epoch the
	// keyring does not hold.
	ErrUnknownEpoch = errors.New("vault: unknown key epoch")
	// ErrEpochExists is returned when adding or rotating to an epoch id that
	// is already held.
	ErrEpochExists = errors.New("vault: key epoch already exists")
)

const keySize = 32

// Keyring holds the process-wide key-epoch state: exactly one current
// encryption key plus a set of retired decrypt-only keys. Decrypts take a
// read lock; rotation and purging are exclusive. Rotation is always triggered
// by the caller, never by the keyring itself.
type Keyring struct {
	mu      sync.RWMutex
	current int
	aeads   map[int]cipher.AEAD
}

// NewKeyring creates a keyring with a single current epoch. key must be 32
// bytes (AES-256).
func NewKeyring(epoch int, key []byte) (*Keyring, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	return &Keyring{
		current: epoch,
		aeads:   map[int]cipher.AEAD{epoch: aead},
	}, nil
}

// ParseKey decodes base64 key material and checks its length.
func ParseKey(encoded string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("vault: decode key: %w", err)
	}
	if len(key) != keySize {
		return nil, fmt.Errorf("vault: key must be %d bytes, got %d", keySize, len(key))
	}
	return key, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("vault: key must be %d bytes, got %d", keySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("vault: init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault: init gcm: %w", err)
	}
	return aead, nil
}

// AddRetired registers a decrypt-only key under a retired epoch.
func (k *Keyring) AddRetired(epoch int, key []byte) error {
	aead, err := newAEAD(key)
	if err != nil {
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.aeads[epoch]; ok {
		return fmt.Errorf("add retired epoch %d: %w", epoch, ErrEpochExists)
	}
	k.aeads[epoch] = aead
	return nil
}

// Rotate promotes a new current encryption key. The previous current epoch
// stays in the ring as decrypt-only.
func (k *Keyring) Rotate(epoch int, key []byte) error {
	aead, err := newAEAD(key)
	if err != nil {
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.aeads[epoch]; ok {
		return fmt.Errorf("rotate to epoch %d: %w", epoch, ErrEpochExists)
	}
	k.aeads[epoch] = aead
	k.current = epoch
	return nil
}

// Purge drops a retired epoch. Envelopes sealed under it become permanently
// undecryptable. Purging the current epoch is refused.
func (k *Keyring) Purge(epoch int) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if epoch == k.current {
		return fmt.Errorf("vault: cannot purge current epoch %d", epoch)
	}
	if _, ok := k.aeads[epoch]; !ok {
		return fmt.Errorf("purge epoch %d: %w", epoch, ErrUnknownEpoch)
	}
	delete(k.aeads, epoch)
	return nil
}

// CurrentEpoch returns the epoch new envelopes are sealed under.
func (k *Keyring) CurrentEpoch() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.current
}

// Epochs returns all epochs currently held, in no particular order.
func (k *Keyring) Epochs() []int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	epochs := make([]int, 0, len(k.aeads))
	for e := range k.aeads {
		epochs = append(epochs, e)
	}
	return epochs
}

// Encrypt seals plaintext under the current epoch with a fresh random nonce.
// The GCM output is split so the authentication tag travels in its own field.
func (k *Keyring) Encrypt(plaintext []byte) (model.Envelope, error) {
	k.mu.RLock()
	epoch := k.current
	aead := k.aeads[epoch]
	k.mu.RUnlock()

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return model.Envelope{}, fmt.Errorf("vault: generate nonce: %w", err)
	}

	sealed := aead.Seal(nil, nonce, plaintext, nil)
	tagStart := len(sealed) - aead.Overhead()

	env := model.Envelope{
		KeyEpoch:   epoch,
		Nonce:      nonce,
		Ciphertext: append([]byte(nil), sealed[:tagStart]...),
		Tag:        append([]byte(nil), sealed[tagStart:]...),
	}
	return env, nil
}

// Decrypt opens an envelope under whichever held epoch sealed it. It fails
// with ErrUnknownEpoch for epochs not in the ring and ErrDecryptFailed when
// the tag does not verify.
func (k *Keyring) Decrypt(env model.Envelope) ([]byte, error) {
	k.mu.RLock()
	aead, ok := k.aeads[env.KeyEpoch]
	k.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("decrypt envelope under epoch %d: %w", env.KeyEpoch, ErrUnknownEpoch)
	}

	sealed := make([]byte, 0, len(env.Ciphertext)+len(env.Tag))
	sealed = append(sealed, env.Ciphertext...)
	sealed = append(sealed, env.Tag...)

	plaintext, err := aead.Open(nil, env.Nonce, sealed, nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}

// IsValid reports whether the credential is still usable at the given time,
// checked against the unencrypted expiry stamp only. No decrypt is required.
func IsValid(cred model.Credential, now time.Time) bool {
	if cred.ExpiresAt.IsZero() {
		return true
	}
	return now.Before(cred.ExpiresAt)
}

// GenerateKey returns fresh base64-encoded AES-256 key material.
func GenerateKey() (string, error) {
	key := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("vault: generate key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}
