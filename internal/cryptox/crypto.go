// Package cryptox implements the encryption primitives of the offline backup
// subsystem: session-bound key derivation and AES-256-GCM sealing of draft
// payloads.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/dmitrijs2005/draftkeeper/internal/common"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// KDFIterations is the fixed PBKDF2 work factor.
	KDFIterations = 100_000
	// KeySize is the derived AES-256 key length in bytes.
	KeySize = 32
	// NonceSize is the GCM nonce length in bytes (96 bits).
	NonceSize = 12
	// CredentialPrefixLen bounds how much of the session credential feeds the KDF.
	CredentialPrefixLen = 128
)

// kdfSalt is not secret. It separates these keys from any other PBKDF2 use of
// the same credential.
var kdfSalt = []byte("draftkeeper/offline-backup/v1")

var keyIDTag = []byte("draftkeeper/key-id/v1")

func credentialPrefix(credential string) string {
	if len(credential) > CredentialPrefixLen {
		return credential[:CredentialPrefixLen]
	}
	return credential
}

// DeriveKey derives the 256-bit backup key from a session credential using
// PBKDF2-HMAC-SHA256 over the first CredentialPrefixLen bytes of the
// credential.
//
// The result is deterministic for a given credential prefix, so envelopes
// written earlier in the same session stay decryptable. The call is
// deliberately slow; use KeyCache instead of calling it per operation.
//
// An empty credential yields common.ErrNoCredential.
func DeriveKey(credential string) ([]byte, error) {
	if credential == "" {
		return nil, common.ErrNoCredential
	}
	return pbkdf2.Key([]byte(credentialPrefix(credential)), kdfSalt, KDFIterations, KeySize, sha256.New), nil
}

// KeyID returns a short, non-secret fingerprint of key. It is stored next to
// envelopes so that decrypt failures can be attributed to credential rotation
// rather than tampering in metrics.
func KeyID(key []byte) string {
	h := sha256.New()
	h.Write(keyIDTag)
	h.Write(key)
	return hex.EncodeToString(h.Sum(nil)[:8])
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

var newNonce = common.GenerateRandByteArray

// Encrypt seals plaintext with AES-256-GCM under key.
//
// A fresh random 12-byte nonce is generated on every call and returned next
// to the ciphertext; the 16-byte authentication tag is appended to the
// ciphertext. No additional authenticated data is used.
//
// Any library failure is wrapped in common.ErrCryptoFailure.
func Encrypt(key, plaintext []byte) (ciphertext, nonce []byte, err error) {
	if len(key) != KeySize {
		return nil, nil, fmt.Errorf("%w: key must be %d bytes, got %d", common.ErrCryptoFailure, KeySize, len(key))
	}

	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", common.ErrCryptoFailure, err)
	}

	nonce, err = newNonce(NonceSize)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: nonce: %v", common.ErrCryptoFailure, err)
	}
	ciphertext = aesgcm.Seal(nil, nonce, plaintext, nil)

	return ciphertext, nonce, nil
}

// Decrypt opens ciphertext sealed by Encrypt.
//
// The GCM tag check makes a wrong key, a modified ciphertext and a modified
// nonce indistinguishable: all of them return common.ErrDecryptFailure and
// never partial plaintext.
func Decrypt(key, ciphertext, nonce []byte) ([]byte, error) {
	if len(key) != KeySize || len(nonce) != NonceSize {
		return nil, common.ErrDecryptFailure
	}

	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDecryptFailure, err)
	}

	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDecryptFailure, err)
	}
	return plaintext, nil
}
