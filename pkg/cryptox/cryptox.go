// Package cryptox encrypts caller credentials for storage at rest.
//
// The scheme is deliberately boring: a key derived from the server-side
// secret via scrypt with a per-ciphertext random salt, sealed with AES-GCM.
// The blob layout is salt(16) | nonce(12) | ciphertext+tag, so every
// ciphertext carries its own salt and nonce and any tampering fails the GCM
// tag check instead of yielding corrupted plaintext.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/scrypt"
)

const (
	saltLen = 16
	keyLen  = 32

	// scrypt parameters; interactive-latency work factor.
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

// ErrDecrypt is returned for any undecryptable blob, including tampered
// ciphertexts and wrong secrets. The cause is deliberately not
// distinguished.
var ErrDecrypt = errors.New("cannot decrypt credential")

func deriveKey(secret string, salt []byte) ([]byte, error) {
	return scrypt.Key([]byte(secret), salt, scryptN, scryptR, scryptP, keyLen)
}

// Encrypt seals plaintext under a key derived from secret.
func Encrypt(secret, plaintext string) ([]byte, error) {
	if secret == "" {
		return nil, fmt.Errorf("op=cryptox.encrypt: empty secret")
	}
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("op=cryptox.encrypt: %w", err)
	}
	key, err := deriveKey(secret, salt)
	if err != nil {
		return nil, fmt.Errorf("op=cryptox.encrypt: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("op=cryptox.encrypt: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("op=cryptox.encrypt: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("op=cryptox.encrypt: %w", err)
	}
	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	blob := make([]byte, 0, saltLen+len(nonce)+len(sealed))
	blob = append(blob, salt...)
	blob = append(blob, nonce...)
	blob = append(blob, sealed...)
	return blob, nil
}

// Decrypt opens a blob produced by Encrypt.
func Decrypt(secret string, blob []byte) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("op=cryptox.decrypt: empty secret")
	}
	if len(blob) < saltLen+12+16 {
		return "", fmt.Errorf("op=cryptox.decrypt: %w", ErrDecrypt)
	}
	salt := blob[:saltLen]
	key, err := deriveKey(secret, salt)
	if err != nil {
		return "", fmt.Errorf("op=cryptox.decrypt: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("op=cryptox.decrypt: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("op=cryptox.decrypt: %w", err)
	}
	rest := blob[saltLen:]
	nonce, sealed := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("op=cryptox.decrypt: %w", ErrDecrypt)
	}
	return string(plain), nil
}
