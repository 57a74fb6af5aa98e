package envelope

import (
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

// Encrypt seals plaintext under key and returns the encoded ciphertext.
//
// The layout before encoding is version || nonce || secretbox(plaintext).
func Encrypt(plaintext []byte, key Key) (string, error) {
	box, err := seal(plaintext, key)
	if err != nil {
		return "", err
	}
	return encoding.EncodeToString(append([]byte{version}, box...)), nil
}

// Decrypt opens a ciphertext produced by Encrypt.
func Decrypt(ciphertext string, key Key) ([]byte, error) {
	raw, err := encoding.DecodeString(ciphertext)
	if err != nil || len(raw) < 1 || raw[0] != version {
		return nil, ErrAuthenticationFailed
	}
	return open(raw[1:], key)
}

// Simple helper around calling secretbox.Seal, handling nonce generation
// automatically.
func seal(m []byte, key Key) ([]byte, error) {
	// Since the nonce here is 192 bits long, a random value provides a
	// sufficiently small probability of repeats.
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(Rand, nonce[:]); err != nil {
		return nil, errors.Wrap(err, "envelope: generating nonce")
	}
	k := [KeySize]byte(key)
	return secretbox.Seal(nonce[:], m, &nonce, &k), nil
}

// Simple helper around calling secretbox.Open with something sealed with seal.
// The nonce is stored in the first 24 bytes of the box.
func open(box []byte, key Key) ([]byte, error) {
	if len(box) < nonceSize+secretbox.Overhead {
		return nil, ErrAuthenticationFailed
	}
	var nonce [nonceSize]byte
	copy(nonce[:], box[:nonceSize])
	k := [KeySize]byte(key)
	decrypted, ok := secretbox.Open(nil, box[nonceSize:], &nonce, &k)
	if !ok {
		return nil, ErrAuthenticationFailed
	}
	return decrypted, nil
}
