package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/crypto/argon2"
)

const (
	keySize  = 32 // AES-256
	saltSize = 16

	// argon2id parameters for deriving the sealing key
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// ConfigSealer encrypts provider instance configs with AES-256-GCM. Each
// ciphertext is bound to its resource id so configs cannot be swapped
// between resources.
type ConfigSealer struct {
	aead cipher.AEAD
}

// NewConfigSealer creates a sealer from a 32-byte key
func NewConfigSealer(key []byte) (*ConfigSealer, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("sealing key must be %d bytes for AES-256, got %d", keySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &ConfigSealer{aead: gcm}, nil
}

// NewConfigSealerFromPassphrase derives the key from passphrase and salt with argon2id
func NewConfigSealerFromPassphrase(passphrase string, salt []byte) (*ConfigSealer, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("passphrase cannot be empty")
	}
	if len(salt) < saltSize {
		return nil, fmt.Errorf("salt must be at least %d bytes, got %d", saltSize, len(salt))
	}
	return NewConfigSealer(DeriveKey(passphrase, salt))
}

// DeriveKey stretches passphrase into a 32-byte key
func DeriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemory, argonThreads, keySize)
}

// Seal encodes config as JSON and encrypts it for resourceID.
// The nonce is prepended to the ciphertext.
func (s *ConfigSealer) Seal(resourceID uint64, config map[string]any) ([]byte, error) {
	plaintext, err := json.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return s.aead.Seal(nonce, nonce, plaintext, additionalData(resourceID)), nil
}

// Open decrypts a config sealed for resourceID
func (s *ConfigSealer) Open(resourceID uint64, sealed []byte) (map[string]any, error) {
	nonceSize := s.aead.NonceSize()
	if len(sealed) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, additionalData(resourceID))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}

	var config map[string]any
	if err := json.Unmarshal(plaintext, &config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return config, nil
}

func additionalData(resourceID uint64) []byte {
	return binary.BigEndian.AppendUint64([]byte("burrow/config/"), resourceID)
}

// LoadOrCreateSalt returns the install's key-derivation salt, creating
// dataDir/sealing.salt on first use.
func LoadOrCreateSalt(dataDir string) ([]byte, error) {
	path := filepath.Join(dataDir, "sealing.salt")

	salt, err := os.ReadFile(path)
	if err == nil {
		if len(salt) < saltSize {
			return nil, fmt.Errorf("salt file %s is truncated", path)
		}
		return salt, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read salt: %w", err)
	}

	salt = make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := os.WriteFile(path, salt, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write salt: %w", err)
	}
	return salt, nil
}
