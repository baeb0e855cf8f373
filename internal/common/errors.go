// Package common defines shared constants and sentinel errors used across
// the backup subsystem layers. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// ErrVersionConflict is returned by a server save whose base version is
	// behind the stored document.
	ErrVersionConflict = errors.New("version conflict")

	// Credential errors. ErrNoCredential means there is no live session,
	// which is distinct from an empty-string key.
	ErrNoCredential = errors.New("no session credential")
	ErrInvalidToken = errors.New("invalid token")

	// Crypto errors. ErrCryptoFailure is unexpected and fatal for the call;
	// ErrDecryptFailure is expected and means the envelope is unusable.
	ErrCryptoFailure  = errors.New("crypto failure")
	ErrDecryptFailure = errors.New("decrypt failure")

	// Envelope structural errors.
	ErrMalformedEnvelope = errors.New("malformed envelope")
	ErrUnknownSchema     = errors.New("unknown envelope schema")

	// Storage and transport errors.
	ErrStorageUnavailable = errors.New("local storage unavailable")
	ErrRemoteSave         = errors.New("remote save failed")
)
