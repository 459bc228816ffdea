package vaultcrypto

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/medvault/medvault/internal/errs"
)

// LegacyCodec reproduces the original blob format for installations with
// pre-existing data: iv(32 hex chars) || ciphertext(hex), where the
// ciphertext is a repeating-key XOR of the plaintext.
//
// Known weakness, kept only for blob compatibility: the keystream depends
// on the key alone, the stored IV is never mixed in, and there is no
// integrity tag. New installs should use AEADCodec.
type LegacyCodec struct {
	key []byte
}

// NewLegacyCodec returns a codec over the given key material.
func NewLegacyCodec(key []byte) (*LegacyCodec, error) {
	if len(key) == 0 {
		return nil, errors.New("vaultcrypto: empty key")
	}
	return &LegacyCodec{key: append([]byte(nil), key...)}, nil
}

// Encrypt produces a fresh random IV prefix and the XOR ciphertext.
func (c *LegacyCodec) Encrypt(plaintext string) (string, error) {
	iv, err := Rand(ivLen)
	if err != nil {
		return "", err
	}
	pt := []byte(plaintext)
	ct := make([]byte, len(pt))
	for i := range pt {
		ct[i] = pt[i] ^ c.key[i%len(c.key)]
	}
	return hex.EncodeToString(iv) + hex.EncodeToString(ct), nil
}

// Decrypt splits off the IV prefix and inverts the XOR transform.
// The IV is validated as hex but not otherwise used; inversion needs
// only the key.
func (c *LegacyCodec) Decrypt(blob string) (string, error) {
	if len(blob) < ivLen*2 {
		return "", fmt.Errorf("%w: blob too short", errs.ErrDecryption)
	}
	if _, err := hex.DecodeString(blob[:ivLen*2]); err != nil {
		return "", fmt.Errorf("%w: bad iv: %v", errs.ErrDecryption, err)
	}
	ct, err := hex.DecodeString(blob[ivLen*2:])
	if err != nil {
		return "", fmt.Errorf("%w: bad ciphertext: %v", errs.ErrDecryption, err)
	}
	pt := make([]byte, len(ct))
	for i := range ct {
		pt[i] = ct[i] ^ c.key[i%len(c.key)]
	}
	return string(pt), nil
}
