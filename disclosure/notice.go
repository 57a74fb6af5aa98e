package disclosure

import (
	"fmt"

	"github.com/pkg/errors"
)

// Notice tells the reader of a page how its content was disclosed.
type Notice int

const (
	// NoNotice is used for unencrypted content, for the author reading
	// their own page, and for content that isn't the page being viewed.
	NoNotice Notice = iota
	EncryptedPage
	DecryptionFailed
	DecryptionFromAccessCode
	DecryptionFromPublicKey
)

var noticeNames = map[Notice]string{
	NoNotice:                 "none",
	EncryptedPage:            "encrypted-page",
	DecryptionFailed:         "decryption-failed",
	DecryptionFromAccessCode: "decryption-from-access-code",
	DecryptionFromPublicKey:  "decryption-from-public-key",
}

var noticeMessages = map[Notice]string{
	EncryptedPage:            "This page is encrypted. Enter an access code or ask its author to share it with you.",
	DecryptionFailed:         "This page could not be decrypted. The key or access code you provided does not match.",
	DecryptionFromAccessCode: "You are reading this page through a one-time access code. It stays readable in this browser for 24 hours.",
	DecryptionFromPublicKey:  "This page was shared with you by its author.",
}

func (n Notice) String() string {
	if s, ok := noticeNames[n]; ok {
		return s
	}
	return fmt.Sprintf("Notice(%d)", int(n))
}

// Message is the text shown to the reader. It is empty for NoNotice.
func (n Notice) Message() string {
	return noticeMessages[n]
}

// MarshalText implements encoding.TextMarshaler.
func (n Notice) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (n *Notice) UnmarshalText(text []byte) error {
	for k, v := range noticeNames {
		if v == string(text) {
			*n = k
			return nil
		}
	}
	return errors.Errorf("disclosure: unknown notice %q", text)
}

// Path is the disclosure channel a resolution ended on.
type Path int

const (
	NotEncrypted Path = iota
	OwnerPath
	AccessCodeSessionPath
	AccessCodeQueryPath
	PublicKeyPath

	// Failed is terminal for the author: their own key did not open the
	// content.
	Failed

	// Encrypted means no channel applied or succeeded. The ciphertext is
	// returned unchanged.
	Encrypted
)

var pathNames = map[Path]string{
	NotEncrypted:          "not-encrypted",
	OwnerPath:             "owner",
	AccessCodeSessionPath: "access-code-session",
	AccessCodeQueryPath:   "access-code-query",
	PublicKeyPath:         "public-key",
	Failed:                "failed",
	Encrypted:             "encrypted",
}

func (p Path) String() string {
	if s, ok := pathNames[p]; ok {
		return s
	}
	return fmt.Sprintf("Path(%d)", int(p))
}

// MarshalText implements encoding.TextMarshaler.
func (p Path) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Path) UnmarshalText(text []byte) error {
	for k, v := range pathNames {
		if v == string(text) {
			*p = k
			return nil
		}
	}
	return errors.Errorf("disclosure: unknown path %q", text)
}
