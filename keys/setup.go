package keys

import (
	"context"

	"github.com/remind101/pagecrypt/crypto/envelope"
)

// Action tells a client what a key setup request did.
type Action string

const (
	// ActionEnterPassword means an existing key was unlocked.
	ActionEnterPassword Action = "enter-password"

	// ActionNewRecord means a new key record was created.
	ActionNewRecord Action = "new-record"
)

// Setup is the result of SetupKey.
type Setup struct {
	Action Action

	// Reset is set when an enabled record was disabled to make room for
	// the new one.
	Reset bool

	// SessionKey is the unlocked master key.
	SessionKey envelope.Key

	// ProtectedKey is the encoded protected master key of a new record,
	// returned for backup. Empty when an existing key was unlocked.
	ProtectedKey string
}

// SetupKey either unlocks the user's existing key, or creates one. With
// reset, an existing record is disabled and replaced.
func (r *Registry) SetupKey(ctx context.Context, userID int64, password string, reset bool) (*Setup, error) {
	rec, err := r.ActiveRecord(ctx, userID)
	if err != nil {
		return nil, err
	}

	setup := &Setup{}
	if rec != nil {
		if !reset {
			key, err := UnlockMasterKey(rec.ProtectedKey, password)
			if err != nil {
				return nil, err
			}
			setup.Action = ActionEnterPassword
			setup.SessionKey = key
			return setup, nil
		}

		if err := r.Disable(ctx, userID); err != nil {
			return nil, err
		}
		setup.Reset = true
	}

	km, err := r.CreateKey(ctx, userID, password)
	if err != nil {
		return nil, err
	}
	setup.Action = ActionNewRecord
	setup.SessionKey = km.MasterKey
	setup.ProtectedKey = km.Record.ProtectedKey
	return setup, nil
}
