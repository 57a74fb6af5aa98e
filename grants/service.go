package grants

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/remind101/pagecrypt/crypto/envelope"
	"github.com/remind101/pagecrypt/keys"
	"github.com/remind101/pagecrypt/store"
)

const (
	// DefaultCodeLength is the length of generated access codes.
	DefaultCodeLength = 5

	// DefaultGraceWindow is how long a redeemed access code stays
	// readable through its cookie.
	DefaultGraceWindow = 24 * time.Hour

	codeAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

	maxCodeAttempts = 16
)

// KeyRing looks up the key pairs used by public key grants. *keys.Registry
// implements it.
type KeyRing interface {
	// PublicKey returns nil when the user has no key pair.
	PublicKey(ctx context.Context, userID int64) (*[envelope.KeySize]byte, error)
	PrivateKey(ctx context.Context, userID int64, sessionKey envelope.Key) (*[envelope.KeySize]byte, error)
}

// Service creates, redeems and administers grants.
type Service struct {
	store Store
	keys  KeyRing

	// CodeLength is the length of generated access codes.
	CodeLength int

	// GraceWindow bounds re-reads of a redeemed access code.
	GraceWindow time.Duration

	// BindIP refuses re-reads from an IP other than the one recorded on
	// redemption. Off by default: the address is client controlled and
	// changes on mobile networks.
	BindIP bool

	// Params are the KDF parameters access codes are protected with.
	Params envelope.KDFParams

	Now func() time.Time
}

// NewService returns a Service with default settings.
func NewService(s Store, k KeyRing) *Service {
	return &Service{
		store:       s,
		keys:        k,
		CodeLength:  DefaultCodeLength,
		GraceWindow: DefaultGraceWindow,
		Params:      envelope.DefaultKDFParams,
		Now:         time.Now,
	}
}

// generateCode returns a random code of n characters from codeAlphabet.
func generateCode(n int) (string, error) {
	const limit = 256 - 256%len(codeAlphabet)

	code := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(code) < n {
		if _, err := io.ReadFull(envelope.Rand, buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			code = append(code, codeAlphabet[int(b)%len(codeAlphabet)])
			if len(code) == n {
				break
			}
		}
	}
	return string(code), nil
}

// privateKey maps registry errors onto the grant taxonomy.
func (s *Service) privateKey(ctx context.Context, userID int64, sessionKey envelope.Key) (*[envelope.KeySize]byte, error) {
	priv, err := s.keys.PrivateKey(ctx, userID, sessionKey)
	if errors.Is(err, keys.ErrUserKeyNotSet) {
		return nil, ErrKeyMaterialMissing
	}
	return priv, err
}

func isConsumed(err error) bool {
	return errors.Is(err, store.ErrAlreadyConsumed)
}
