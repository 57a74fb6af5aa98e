// Package envelope provides the authenticated encryption primitives used to
// protect page content.
//
// Three constructions are exposed, all built on NaCl:
//
//	1. Encrypt/Decrypt seal page text under a 256 bit symmetric Key with
//	   secretbox. The random nonce is prefixed to the ciphertext, so a
//	   ciphertext can be opened with nothing but the key.
//	2. ProtectedKey wraps a Key under a password using argon2id, so that a
//	   user's master key, or a one-time access code key, can be stored at rest.
//	3. SealFor/OpenFrom seal content for a single recipient with box, using the
//	   sender's private key and the recipient's public key.
//
// Every failure to authenticate, whether it comes from a wrong key, a wrong
// password or a modified ciphertext, is reported as ErrAuthenticationFailed.
// Callers can't tell the cases apart, and neither can an attacker.
package envelope

import (
	"crypto/rand"
	"encoding/base64"
	"io"

	"github.com/pkg/errors"
)

// KeySize is the size in bytes of a symmetric Key.
const KeySize = 32

// version is the leading byte of every encoded ciphertext and protected key.
const version byte = 1

// ErrAuthenticationFailed is returned when a ciphertext can't be opened.
var ErrAuthenticationFailed = errors.New("envelope: wrong key or modified ciphertext")

// Rand is the source of randomness for keys and nonces.
var Rand io.Reader = rand.Reader

// encoding is used for everything this package stores as text.
var encoding = base64.RawURLEncoding

// Key is a 256 bit symmetric key.
type Key [KeySize]byte

// GenerateRandomKey generates a secure 256 bit random key.
func GenerateRandomKey() (Key, error) {
	var key Key
	if _, err := io.ReadFull(Rand, key[:]); err != nil {
		return key, errors.Wrap(err, "envelope: generating key")
	}
	return key, nil
}

// Encode returns an ASCII safe representation of the key, suitable for a
// cookie value.
func (k Key) Encode() string {
	return encoding.EncodeToString(append([]byte{version}, k[:]...))
}

// String hides the key material from fmt and loggers.
func (k Key) String() string {
	return "envelope.Key{...}"
}

// DecodeKey parses a key produced by Key.Encode.
func DecodeKey(s string) (Key, error) {
	var key Key
	raw, err := encoding.DecodeString(s)
	if err != nil || len(raw) != KeySize+1 || raw[0] != version {
		return key, ErrAuthenticationFailed
	}
	copy(key[:], raw[1:])
	return key, nil
}
