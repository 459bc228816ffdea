// Package vaultcrypto implements the encryption-at-rest codecs for the vault.
package vaultcrypto

import "crypto/rand"

// Key sizes.
const (
	KeyLen = 32
	ivLen  = 16
)

// Codec encrypts and decrypts text payloads. Blobs are hex strings with a
// random per-call prefix, so encrypting the same plaintext twice yields
// different blobs while decrypt(encrypt(x)) == x always holds.
type Codec interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(blob string) (string, error)
}

// Rand returns n cryptographically secure random bytes.
func Rand(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}
