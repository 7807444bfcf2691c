// Package auth implements the optional password protection of the glove to
// dongle link: an HMAC challenge/response handshake followed by
// ChaCha20-Poly1305 sealed records.
package auth

import (
	"crypto/pbkdf2"
	"crypto/sha256"
	"errors"
)

const (
	PBKDF2Iterations = 100000
	PBKDF2Salt       = "MotionGlove-Key-v1"
	sessionContext   = "MotionGlove-Session-v1"
)

// ErrEmptyPassword is returned by DeriveKey for an empty password.
var ErrEmptyPassword = errors.New("password cannot be empty")

// DeriveKey uses PBKDF2 to stretch a password to 32 bytes.
func DeriveKey(password string) ([]byte, error) {
	if password == "" {
		return nil, ErrEmptyPassword
	}
	return pbkdf2.Key(sha256.New, password, []byte(PBKDF2Salt), PBKDF2Iterations, 32)
}

// DeriveSessionKey mixes the long-term key with both handshake nonces.
func DeriveSessionKey(key, serverNonce, clientNonce []byte) []byte {
	h := sha256.New()
	h.Write(key)
	h.Write(serverNonce)
	h.Write(clientNonce)
	h.Write([]byte(sessionContext))
	return h.Sum(nil)
}
