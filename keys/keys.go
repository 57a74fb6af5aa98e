// Package keys is the registry of users' encryption keys.
//
// Each user has at most one enabled Record. It holds a random master key
// wrapped under the user's password, and a curve25519 key pair whose private
// half is sealed under that same master key. Unlocking the master key with
// the password therefore unlocks everything the user can decrypt.
//
// The unlocked master key is the user's session key. It is handed back to
// the caller for transport in a cookie and never persisted.
package keys

import (
	"context"
	"fmt"
	"time"

	"github.com/pborman/uuid"
	"github.com/pkg/errors"
	"github.com/remind101/pagecrypt/crypto/envelope"
	"github.com/remind101/pagecrypt/logger"
	"github.com/remind101/pagecrypt/store"
)

var (
	// ErrWrongPassword is returned when a password does not unlock a
	// protected master key.
	ErrWrongPassword = errors.New("keys: wrong password")

	// ErrUserKeyNotSet is returned when a user has no enabled key record.
	ErrUserKeyNotSet = errors.New("keys: user key not set")

	// ErrKeyExists is returned by CreateKey when the user still has an
	// enabled record. Disable it first.
	ErrKeyExists = errors.New("keys: an enabled key already exists")
)

// KeyCreationError is returned when a key can't be generated or persisted.
type KeyCreationError struct {
	UserID int64
	Err    error
}

func (e *KeyCreationError) Error() string {
	return fmt.Sprintf("keys: creating key for user %d: %v", e.UserID, e.Err)
}

func (e *KeyCreationError) Cause() error  { return e.Err }
func (e *KeyCreationError) Unwrap() error { return e.Err }

// Record is a user's key record as stored.
type Record struct {
	ID     string
	UserID int64

	// ProtectedKey is the encoded envelope.ProtectedKey holding the
	// master key.
	ProtectedKey string

	// PublicKey is the encoded curve25519 public key.
	PublicKey string

	// EncryptedPrivateKey is the private key sealed under the master key.
	EncryptedPrivateKey string

	Enabled   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store persists key records.
type Store interface {
	// InsertKey stores a new record. It returns store.ErrDuplicate if the
	// user already has an enabled record.
	InsertKey(ctx context.Context, r *Record) error

	// ActiveKey returns the user's enabled record, or store.ErrNotFound.
	ActiveKey(ctx context.Context, userID int64) (*Record, error)

	// DisableKey marks the user's enabled record disabled. It returns
	// store.ErrNotFound when there is none.
	DisableKey(ctx context.Context, userID int64, at time.Time) error
}

// Registry creates, unlocks and looks up key records.
type Registry struct {
	store Store

	// Params are the KDF parameters for newly protected keys.
	Params envelope.KDFParams

	// Now returns the current time.
	Now func() time.Time
}

// NewRegistry returns a Registry backed by s.
func NewRegistry(s Store) *Registry {
	return &Registry{
		store:  s,
		Params: envelope.DefaultKDFParams,
		Now:    time.Now,
	}
}

// KeyMaterial is the result of creating a key: the stored record and the
// unlocked master key.
type KeyMaterial struct {
	Record    *Record
	MasterKey envelope.Key
}

// CreateKey generates a master key protected by password and a key pair for
// the user, and stores them as the user's enabled record.
func (r *Registry) CreateKey(ctx context.Context, userID int64, password string) (*KeyMaterial, error) {
	protected, master, err := envelope.NewPasswordProtectedKey(password, r.Params)
	if err != nil {
		return nil, &KeyCreationError{UserID: userID, Err: err}
	}

	pair, err := envelope.GenerateKeyPair()
	if err != nil {
		return nil, &KeyCreationError{UserID: userID, Err: err}
	}

	sealedPrivate, err := envelope.Encrypt(pair.Private[:], master)
	if err != nil {
		return nil, &KeyCreationError{UserID: userID, Err: err}
	}

	now := r.Now()
	rec := &Record{
		ID:                  uuid.New(),
		UserID:              userID,
		ProtectedKey:        protected.String(),
		PublicKey:           envelope.EncodeBytes(pair.Public[:]),
		EncryptedPrivateKey: sealedPrivate,
		Enabled:             true,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if err := r.store.InsertKey(ctx, rec); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrKeyExists
		}
		return nil, &KeyCreationError{UserID: userID, Err: err}
	}

	logger.Info(ctx, "key.created", "user_id", userID, "record_id", rec.ID)
	return &KeyMaterial{Record: rec, MasterKey: master}, nil
}

// UnlockMasterKey unwraps an encoded protected key with password.
func UnlockMasterKey(protected, password string) (envelope.Key, error) {
	key, err := envelope.UnlockString(protected, password)
	if err != nil {
		return key, ErrWrongPassword
	}
	return key, nil
}

// Unlock unwraps the user's enabled master key with password.
func (r *Registry) Unlock(ctx context.Context, userID int64, password string) (envelope.Key, error) {
	rec, err := r.active(ctx, userID)
	if err != nil {
		return envelope.Key{}, err
	}
	return UnlockMasterKey(rec.ProtectedKey, password)
}

// Disable marks the user's enabled record disabled. Content encrypted under
// the old master key can no longer be decrypted once a new key is created.
func (r *Registry) Disable(ctx context.Context, userID int64) error {
	err := r.store.DisableKey(ctx, userID, r.Now())
	if errors.Is(err, store.ErrNotFound) {
		return ErrUserKeyNotSet
	}
	if err != nil {
		return err
	}
	logger.Info(ctx, "key.disabled", "user_id", userID)
	return nil
}

// ActiveRecord returns the user's enabled record, or nil if there is none.
func (r *Registry) ActiveRecord(ctx context.Context, userID int64) (*Record, error) {
	rec, err := r.store.ActiveKey(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return rec, err
}

// PublicKey returns the user's public key, or nil if the user has no
// enabled record.
func (r *Registry) PublicKey(ctx context.Context, userID int64) (*[envelope.KeySize]byte, error) {
	rec, err := r.ActiveRecord(ctx, userID)
	if err != nil || rec == nil {
		return nil, err
	}
	return envelope.DecodePublicKey(rec.PublicKey)
}

// PrivateKey unseals the user's private key with their session key.
func (r *Registry) PrivateKey(ctx context.Context, userID int64, sessionKey envelope.Key) (*[envelope.KeySize]byte, error) {
	rec, err := r.active(ctx, userID)
	if err != nil {
		return nil, err
	}
	raw, err := envelope.Decrypt(rec.EncryptedPrivateKey, sessionKey)
	if err != nil {
		return nil, err
	}
	if len(raw) != envelope.KeySize {
		return nil, envelope.ErrAuthenticationFailed
	}
	var priv [envelope.KeySize]byte
	copy(priv[:], raw)
	return &priv, nil
}

func (r *Registry) active(ctx context.Context, userID int64) (*Record, error) {
	rec, err := r.ActiveRecord(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrUserKeyNotSet
	}
	return rec, nil
}
