// Package crypto seals small secrets kept at rest.
package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha512"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

// ErrDecrypt is returned when a sealed blob fails authentication.
var ErrDecrypt = errors.New("decryption failed")

// DeriveKey derives a 32-byte key for usage from a master secret using
// HMAC-SHA512.
func DeriveKey(master []byte, usage string) (*[32]byte, error) {
	if len(master) == 0 {
		return nil, fmt.Errorf("master secret is empty")
	}
	h := hmac.New(sha512.New, []byte(usage+" Master Seed"))
	if _, err := h.Write(master); err != nil {
		return nil, err
	}
	sum := h.Sum(nil)
	var key [32]byte
	copy(key[:], sum[:32])
	return &key, nil
}

// Seal encrypts plaintext with XSalsa20-Poly1305.
// Format: [nonce (24 bytes)][ciphertext + auth tag]
func Seal(plaintext []byte, key *[32]byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, key), nil
}

// Open decrypts a blob produced by Seal.
func Open(sealed []byte, key *[32]byte) ([]byte, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, fmt.Errorf("encrypted data too short")
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])

	plaintext, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, key)
	if !ok {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}
