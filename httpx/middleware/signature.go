package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	httpsignatures "github.com/99designs/httpsignatures-go"
	"github.com/pkg/errors"
	"github.com/remind101/pagecrypt/httpx"
	"github.com/remind101/pagecrypt/logger"
	"github.com/remind101/pagecrypt/metrics"
)

// SignatureError is returned when a request signature cannot be verified.
type SignatureError struct {
	KeyID string
	msg   string
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("request signature error: keyID=%s: %s", e.KeyID, e.msg)
}

// StatusCode implements the status coder checked by httpx.ErrorStatusCode.
func (e *SignatureError) StatusCode() int { return http.StatusForbidden }

// SigningKeys looks up the HMAC secret of a key id.
type SigningKeys interface {
	GetKey(keyID string) (string, error)
}

// StaticSigningKeys is an in-memory SigningKeys.
type StaticSigningKeys map[string]string

// ParseSigningKeys builds StaticSigningKeys from "id:secret" pairs.
func ParseSigningKeys(pairs []string) (StaticSigningKeys, error) {
	keys := make(StaticSigningKeys, len(pairs))
	for _, pair := range pairs {
		i := strings.Index(pair, ":")
		if i <= 0 || i == len(pair)-1 {
			return nil, errors.Errorf("signing key %q is not id:secret", pair)
		}
		keys[pair[:i]] = pair[i+1:]
	}
	return keys, nil
}

// GetKey implements SigningKeys.
func (k StaticSigningKeys) GetKey(keyID string) (string, error) {
	key, ok := k[keyID]
	if !ok {
		return "", &SignatureError{KeyID: keyID, msg: "key not found"}
	}
	return key, nil
}

// SignatureConfig configures VerifySignature.
type SignatureConfig struct {
	Keys SigningKeys

	// Force rejects requests with an absent or malformed signature, or one
	// made with an unknown key. Invalid signatures are always rejected.
	Force bool
}

// VerifySignature checks the HTTP signature of every request before passing
// it to h. The identity headers of a request are only trustworthy when the
// fronting host signs them.
func VerifySignature(h httpx.Handler, cfg SignatureConfig) httpx.Handler {
	return httpx.HandlerFunc(func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		// net/http moves the Host header into r.Host.
		if r.Header.Get("Host") == "" {
			r.Header.Set("Host", r.Host)
		}

		sig, err := httpsignatures.FromRequest(r)
		if err != nil {
			if cfg.Force {
				return reject("", err.Error())
			}
			logger.Debug(ctx, "signature.skipped", "reason", err.Error())
			return h.ServeHTTPContext(ctx, w, r)
		}

		key, err := cfg.Keys.GetKey(sig.KeyID)
		if err != nil {
			if cfg.Force {
				metrics.Count("signature.rejected", 1, map[string]string{"keyid": sig.KeyID}, 1.0)
				return errors.WithStack(err)
			}
			logger.Debug(ctx, "signature.skipped", "keyid", sig.KeyID, "reason", "unknown key")
			return h.ServeHTTPContext(ctx, w, r)
		}

		if !sig.IsValid(key, r) {
			return reject(sig.KeyID, "bad request signature")
		}
		return h.ServeHTTPContext(ctx, w, r)
	})
}

func reject(keyID, msg string) error {
	metrics.Count("signature.rejected", 1, map[string]string{"keyid": keyID}, 1.0)
	return &SignatureError{KeyID: keyID, msg: msg}
}
