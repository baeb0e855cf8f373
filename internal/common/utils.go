package common

import "crypto/rand"

var randRead = rand.Read

// GenerateRandByteArray returns size bytes from crypto/rand, or the error of
// the randomness source.
func GenerateRandByteArray(size int) ([]byte, error) {
	b := make([]byte, size)
	if _, err := randRead(b); err != nil {
		return nil, err
	}
	return b, nil
}

// WipeByteArray overwrites the contents of the provided byte slice with zeros.
// Used to drop derived keys from memory on logout or credential rotation.
//
// If the slice is nil, the function does nothing.
func WipeByteArray(b []byte) {
	if b == nil {
		return
	}
	for i := range b {
		b[i] = 0
	}
}
