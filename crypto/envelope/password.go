package envelope

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
	"github.com/remind101/pagecrypt/metrics"
	"golang.org/x/crypto/argon2"
)

const saltSize = 16

// KDFParams are the argon2id cost parameters used to derive a key encryption
// key from a password. They are stored alongside every ProtectedKey, so
// changing them only affects keys protected afterwards.
type KDFParams struct {
	Time    uint32
	Memory  uint32 // in KiB
	Threads uint8
}

// DefaultKDFParams are the parameters used in production.
var DefaultKDFParams = KDFParams{
	Time:    3,
	Memory:  64 * 1024,
	Threads: 4,
}

// MaxKDFParams bound the parameters accepted from a stored ProtectedKey, so
// a modified record can't force an arbitrarily expensive derivation.
var MaxKDFParams = KDFParams{
	Time:    4 * DefaultKDFParams.Time,
	Memory:  4 * DefaultKDFParams.Memory,
	Threads: 4 * DefaultKDFParams.Threads,
}

// ErrKDFParams is returned for argon2id parameters that are zero or above
// MaxKDFParams.
var ErrKDFParams = errors.New("envelope: kdf parameters out of range")

func (p KDFParams) valid() bool {
	return p.Time > 0 && p.Memory > 0 && p.Threads > 0 &&
		p.Time <= MaxKDFParams.Time && p.Memory <= MaxKDFParams.Memory && p.Threads <= MaxKDFParams.Threads
}

// ProtectedKey is a Key wrapped under a password.
type ProtectedKey struct {
	Params KDFParams
	Salt   [saltSize]byte

	// sealed is secretbox(key) under the password derived key.
	sealed []byte
}

// NewPasswordProtectedKey generates a fresh random key and protects it with
// password. The plaintext key is returned along with its protected form.
func NewPasswordProtectedKey(password string, params KDFParams) (*ProtectedKey, Key, error) {
	key, err := GenerateRandomKey()
	if err != nil {
		return nil, key, err
	}
	p, err := ProtectKey(key, password, params)
	if err != nil {
		return nil, key, err
	}
	return p, key, nil
}

// ProtectKey wraps key under password.
func ProtectKey(key Key, password string, params KDFParams) (*ProtectedKey, error) {
	if !params.valid() {
		return nil, ErrKDFParams
	}
	p := &ProtectedKey{Params: params}
	if _, err := io.ReadFull(Rand, p.Salt[:]); err != nil {
		return nil, errors.Wrap(err, "envelope: generating salt")
	}

	sealed, err := seal(key[:], p.derive(password))
	if err != nil {
		return nil, err
	}
	p.sealed = sealed
	return p, nil
}

// Unlock unwraps the key with password. A wrong password returns
// ErrAuthenticationFailed.
func (p *ProtectedKey) Unlock(password string) (Key, error) {
	var key Key
	raw, err := open(p.sealed, p.derive(password))
	if err != nil {
		return key, err
	}
	if len(raw) != KeySize {
		return key, ErrAuthenticationFailed
	}
	copy(key[:], raw)
	return key, nil
}

// derive runs argon2id over the password. This is intentionally slow.
func (p *ProtectedKey) derive(password string) Key {
	t := metrics.Time("pagecrypt.kdf", nil, 1.0)
	defer t.Done()

	var kek Key
	copy(kek[:], argon2.IDKey([]byte(password), p.Salt[:], p.Params.Time, p.Params.Memory, p.Params.Threads, KeySize))
	return kek
}

// String encodes the protected key as an ASCII safe string.
//
// The layout before encoding is:
//
//	version || time (4) || memory (4) || threads (1) || salt (16) || sealed key
func (p *ProtectedKey) String() string {
	b := make([]byte, 0, 1+4+4+1+saltSize+len(p.sealed))
	b = append(b, version)
	b = binary.BigEndian.AppendUint32(b, p.Params.Time)
	b = binary.BigEndian.AppendUint32(b, p.Params.Memory)
	b = append(b, p.Params.Threads)
	b = append(b, p.Salt[:]...)
	b = append(b, p.sealed...)
	return encoding.EncodeToString(b)
}

var errMalformedProtectedKey = errors.New("envelope: malformed protected key")

// ParseProtectedKey parses the output of ProtectedKey.String.
func ParseProtectedKey(s string) (*ProtectedKey, error) {
	raw, err := encoding.DecodeString(s)
	if err != nil {
		return nil, errors.Wrap(err, "envelope: malformed protected key")
	}

	const header = 1 + 4 + 4 + 1 + saltSize
	if len(raw) < header || raw[0] != version {
		return nil, errMalformedProtectedKey
	}

	p := &ProtectedKey{
		Params: KDFParams{
			Time:    binary.BigEndian.Uint32(raw[1:5]),
			Memory:  binary.BigEndian.Uint32(raw[5:9]),
			Threads: raw[9],
		},
		sealed: raw[header:],
	}
	copy(p.Salt[:], raw[10:header])

	if !p.Params.valid() {
		return nil, ErrKDFParams
	}
	return p, nil
}

// UnlockString parses a protected key and unlocks it with password. Parse
// failures are reported as ErrAuthenticationFailed as well.
func UnlockString(protected, password string) (Key, error) {
	p, err := ParseProtectedKey(protected)
	if err != nil {
		return Key{}, ErrAuthenticationFailed
	}
	return p.Unlock(password)
}
