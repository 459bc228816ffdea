package vaultcrypto

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/medvault/medvault/internal/errs"
)

// AEADCodec is the production codec: XChaCha20-Poly1305 with a random
// nonce per call, hex-encoded as nonce || ciphertext+tag. Unlike
// LegacyCodec the nonce is required for inversion and tampering is
// detected by the tag.
type AEADCodec struct {
	key []byte
}

// NewAEADCodec returns a codec over a 32-byte key.
func NewAEADCodec(key []byte) (*AEADCodec, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("vaultcrypto: key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return &AEADCodec{key: append([]byte(nil), key...)}, nil
}

// Encrypt seals plaintext under a fresh random nonce.
func (c *AEADCodec) Encrypt(plaintext string) (string, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", err
	}
	nonce, err := Rand(chacha20poly1305.NonceSizeX)
	if err != nil {
		return "", err
	}
	out := make([]byte, 0, len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, nonce...)
	out = append(out, aead.Seal(nil, nonce, []byte(plaintext), nil)...)
	return hex.EncodeToString(out), nil
}

// Decrypt opens a hex blob produced by Encrypt.
func (c *AEADCodec) Decrypt(blob string) (string, error) {
	raw, err := hex.DecodeString(blob)
	if err != nil {
		return "", fmt.Errorf("%w: bad hex: %v", errs.ErrDecryption, err)
	}
	if len(raw) < chacha20poly1305.NonceSizeX {
		return "", fmt.Errorf("%w: blob too short", errs.ErrDecryption)
	}
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", err
	}
	nonce := raw[:chacha20poly1305.NonceSizeX]
	ct := raw[chacha20poly1305.NonceSizeX:]
	pt, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errs.ErrDecryption, err)
	}
	return string(pt), nil
}
