package envelope

import (
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/nacl/box"
)

// Nonce is the 192 bit nonce used by box.
type Nonce [nonceSize]byte

// KeyPair is a curve25519 key pair used to share content with a single
// recipient.
type KeyPair struct {
	Public  *[KeySize]byte
	Private *[KeySize]byte
}

// GenerateKeyPair generates a new random key pair.
func GenerateKeyPair() (*KeyPair, error) {
	pub, priv, err := box.GenerateKey(Rand)
	if err != nil {
		return nil, errors.Wrap(err, "envelope: generating key pair")
	}
	return &KeyPair{Public: pub, Private: priv}, nil
}

// SealFor seals plaintext so that only the holder of the private key matching
// recipient can open it, and only knowing the sender's public key. A fresh
// nonce is generated and returned; it has to be stored with the box.
func SealFor(plaintext []byte, recipient, sender *[KeySize]byte) (Nonce, []byte, error) {
	var nonce Nonce
	if _, err := io.ReadFull(Rand, nonce[:]); err != nil {
		return nonce, nil, errors.Wrap(err, "envelope: generating nonce")
	}
	n := [nonceSize]byte(nonce)
	return nonce, box.Seal(nil, plaintext, &n, recipient, sender), nil
}

// OpenFrom opens a box sealed by SealFor.
func OpenFrom(sealed []byte, nonce Nonce, sender, recipient *[KeySize]byte) ([]byte, error) {
	n := [nonceSize]byte(nonce)
	plaintext, ok := box.Open(nil, sealed, &n, sender, recipient)
	if !ok {
		return nil, ErrAuthenticationFailed
	}
	return plaintext, nil
}

// Encode returns an ASCII safe representation of the nonce.
func (n Nonce) Encode() string {
	return encoding.EncodeToString(n[:])
}

// DecodeNonce parses a nonce produced by Nonce.Encode.
func DecodeNonce(s string) (Nonce, error) {
	var n Nonce
	raw, err := encoding.DecodeString(s)
	if err != nil || len(raw) != nonceSize {
		return n, ErrAuthenticationFailed
	}
	copy(n[:], raw)
	return n, nil
}

// EncodeBytes returns an ASCII safe representation of b. It's used for public
// keys and boxes stored as text.
func EncodeBytes(b []byte) string {
	return encoding.EncodeToString(b)
}

// DecodeBytes reverses EncodeBytes.
func DecodeBytes(s string) ([]byte, error) {
	b, err := encoding.DecodeString(s)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return b, nil
}

// DecodePublicKey parses a public key encoded with EncodeBytes.
func DecodePublicKey(s string) (*[KeySize]byte, error) {
	b, err := DecodeBytes(s)
	if err != nil || len(b) != KeySize {
		return nil, errors.New("envelope: malformed public key")
	}
	var k [KeySize]byte
	copy(k[:], b)
	return &k, nil
}
