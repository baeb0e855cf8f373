// Package models defines the client-side data shapes of the backup subsystem:
// the persisted encrypted envelope and the plaintext draft payload.
package models

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/dmitrijs2005/draftkeeper/internal/common"
)

// EnvelopeSchemaVersion is the only envelope format this build understands.
// Stored records with any other schemaVersion are discarded on read.
const EnvelopeSchemaVersion = 1

const nonceSize = 12

// Envelope is the only representation of a draft ever written to local
// storage. It never contains plaintext.
type Envelope struct {
	// Ciphertext is base64 AES-GCM output with the tag appended.
	Ciphertext string `json:"ciphertext"`
	// IV is the base64 per-write random nonce.
	IV string `json:"iv"`
	// CreatedAtMs is the wall clock (UTC epoch ms) at encryption time; it is
	// the only ordering signal used against the server copy.
	CreatedAtMs int64 `json:"createdAtMs"`
	// SchemaVersion tags the record format.
	SchemaVersion int `json:"schemaVersion"`
	// KeyID fingerprints the key that sealed the envelope. Optional and only
	// used to attribute decrypt failures.
	KeyID string `json:"keyId,omitempty"`
}

// NewEnvelope encodes raw AEAD output into an Envelope stamped with createdAt.
func NewEnvelope(ciphertext, nonce []byte, createdAt time.Time, keyID string) *Envelope {
	return &Envelope{
		Ciphertext:    base64.StdEncoding.EncodeToString(ciphertext),
		IV:            base64.StdEncoding.EncodeToString(nonce),
		CreatedAtMs:   createdAt.UnixMilli(),
		SchemaVersion: EnvelopeSchemaVersion,
		KeyID:         keyID,
	}
}

// CreatedAt returns CreatedAtMs as a time.Time.
func (e *Envelope) CreatedAt() time.Time {
	return time.UnixMilli(e.CreatedAtMs)
}

// Decode returns the raw ciphertext and nonce.
func (e *Envelope) Decode() (ciphertext, nonce []byte, err error) {
	ciphertext, err = base64.StdEncoding.DecodeString(e.Ciphertext)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: ciphertext: %v", common.ErrMalformedEnvelope, err)
	}
	nonce, err = base64.StdEncoding.DecodeString(e.IV)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: iv: %v", common.ErrMalformedEnvelope, err)
	}
	return ciphertext, nonce, nil
}

// Validate checks the structure of an envelope read back from storage.
// It does not check age; TTL is a storage concern.
func (e *Envelope) Validate() error {
	if e.SchemaVersion != EnvelopeSchemaVersion {
		return fmt.Errorf("%w: %d", common.ErrUnknownSchema, e.SchemaVersion)
	}
	if e.Ciphertext == "" || e.IV == "" {
		return fmt.Errorf("%w: missing ciphertext or iv", common.ErrMalformedEnvelope)
	}
	if e.CreatedAtMs <= 0 {
		return fmt.Errorf("%w: missing createdAtMs", common.ErrMalformedEnvelope)
	}
	_, nonce, err := e.Decode()
	if err != nil {
		return err
	}
	if len(nonce) != nonceSize {
		return fmt.Errorf("%w: iv must be %d bytes, got %d", common.ErrMalformedEnvelope, nonceSize, len(nonce))
	}
	return nil
}
