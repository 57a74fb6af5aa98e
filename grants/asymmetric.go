package grants

import (
	"context"
	"time"

	"github.com/pborman/uuid"
	"github.com/remind101/pagecrypt/crypto/envelope"
	"github.com/remind101/pagecrypt/logger"
	"github.com/remind101/pagecrypt/metrics"
)

// AsymmetricRequest describes a public key grant to create.
type AsymmetricRequest struct {
	PageID      int64
	CreatedBy   int64
	RecipientID int64

	// OwnerKey is the author's session key. It unseals the author's
	// private key.
	OwnerKey envelope.Key

	// RecipientPublicKey is looked up in the key ring when nil.
	RecipientPublicKey *[envelope.KeySize]byte

	Plaintext      []byte
	ExpirationDate *time.Time
}

// CreateAsymmetric seals the page text for a single recipient.
func (s *Service) CreateAsymmetric(ctx context.Context, req AsymmetricRequest) (*Grant, error) {
	sender, err := s.privateKey(ctx, req.CreatedBy, req.OwnerKey)
	if err != nil {
		return nil, err
	}

	recipient := req.RecipientPublicKey
	if recipient == nil {
		if recipient, err = s.keys.PublicKey(ctx, req.RecipientID); err != nil {
			return nil, err
		}
		if recipient == nil {
			return nil, ErrKeyMaterialMissing
		}
	}

	nonce, sealed, err := envelope.SealFor(req.Plaintext, recipient, sender)
	if err != nil {
		return nil, err
	}

	now := s.Now()
	g := &Grant{
		Kind:           Asymmetric,
		ID:             uuid.New(),
		PageID:         req.PageID,
		CreatedBy:      req.CreatedBy,
		ExpirationDate: req.ExpirationDate,
		CreatedAt:      now,
		UpdatedAt:      now,
		Asymmetric: &AsymmetricPayload{
			RecipientID:      req.RecipientID,
			Nonce:            nonce.Encode(),
			EncryptedContent: envelope.EncodeBytes(sealed),
		},
	}
	if err := s.store.InsertGrant(ctx, g); err != nil {
		return nil, err
	}

	metrics.Count("pagecrypt.grants.created", 1, map[string]string{"kind": Asymmetric.String()}, 1.0)
	logger.Info(ctx, "grant.created", "kind", Asymmetric, "grant_id", g.ID, "page_id", g.PageID, "recipient_id", req.RecipientID)
	return g, nil
}

// RedeemAsymmetric opens the page for a recipient holding their session key.
// Every grant naming the recipient on the page is tried against its sender's
// public key until one authenticates. The first successful open is recorded
// as viewed; later opens are allowed.
func (s *Service) RedeemAsymmetric(ctx context.Context, pageID, recipientID int64, sessionKey envelope.Key) ([]byte, error) {
	candidates, err := s.store.Grants(ctx, Asymmetric, Query{PageID: pageID, RecipientID: recipientID})
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, ErrNoMatchingGrant
	}

	private, err := s.privateKey(ctx, recipientID, sessionKey)
	if err != nil {
		return nil, err
	}

	now := s.Now()
	result := ErrNoMatchingGrant
	for _, g := range candidates {
		if g.Expired(now) {
			if result == ErrNoMatchingGrant {
				result = ErrGrantExpired
			}
			continue
		}
		sender, err := s.keys.PublicKey(ctx, g.CreatedBy)
		if err != nil {
			return nil, err
		}
		if sender == nil {
			continue
		}

		plaintext, err := openGrant(g.Asymmetric, sender, private)
		if err != nil {
			result = err
			continue
		}

		if g.Viewed == nil {
			err := s.store.MarkViewed(ctx, Asymmetric, g.ID, now, nil)
			if err != nil && !isConsumed(err) {
				return nil, err
			}
		}

		metrics.Count("pagecrypt.grants.redeemed", 1, map[string]string{"kind": Asymmetric.String()}, 1.0)
		logger.Info(ctx, "grant.redeemed", "kind", Asymmetric, "grant_id", g.ID, "page_id", pageID)
		return plaintext, nil
	}
	return nil, result
}

func openGrant(p *AsymmetricPayload, sender, recipient *[envelope.KeySize]byte) ([]byte, error) {
	nonce, err := envelope.DecodeNonce(p.Nonce)
	if err != nil {
		return nil, err
	}
	sealed, err := envelope.DecodeBytes(p.EncryptedContent)
	if err != nil {
		return nil, err
	}
	return envelope.OpenFrom(sealed, nonce, sender, recipient)
}
