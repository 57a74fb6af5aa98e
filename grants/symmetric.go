package grants

import (
	"context"
	"time"

	"github.com/pborman/uuid"
	"github.com/remind101/pagecrypt/crypto/envelope"
	"github.com/remind101/pagecrypt/logger"
	"github.com/remind101/pagecrypt/metrics"
)

// SymmetricRequest describes an access code to create.
type SymmetricRequest struct {
	PageID     int64
	RevisionID int64
	CreatedBy  int64

	// OwnerKey is the author's session key. The generated code is stored
	// under it.
	OwnerKey envelope.Key

	Plaintext      []byte
	ExpirationDate *time.Time
}

// Created is a newly created access code grant and its code. The code is
// only ever available in clear here.
type Created struct {
	Grant *Grant
	Code  string
}

// CreateSymmetric creates an access code for a page. The code is unique among
// the author's unconsumed codes for the page.
func (s *Service) CreateSymmetric(ctx context.Context, req SymmetricRequest) (*Created, error) {
	code, err := s.uniqueCode(ctx, req.PageID, req.CreatedBy, req.OwnerKey)
	if err != nil {
		return nil, err
	}

	protected, oneTime, err := envelope.NewPasswordProtectedKey(code, s.Params)
	if err != nil {
		return nil, err
	}
	content, err := envelope.Encrypt(req.Plaintext, oneTime)
	if err != nil {
		return nil, err
	}
	encryptedCode, err := envelope.Encrypt([]byte(code), req.OwnerKey)
	if err != nil {
		return nil, err
	}

	now := s.Now()
	g := &Grant{
		Kind:           Symmetric,
		ID:             uuid.New(),
		PageID:         req.PageID,
		CreatedBy:      req.CreatedBy,
		ExpirationDate: req.ExpirationDate,
		CreatedAt:      now,
		UpdatedAt:      now,
		Symmetric: &SymmetricPayload{
			RevisionID:        req.RevisionID,
			ProtectedKey:      protected.String(),
			EncryptedContent:  content,
			EncryptedPassword: encryptedCode,
		},
	}
	if err := s.store.InsertGrant(ctx, g); err != nil {
		return nil, err
	}

	metrics.Count("pagecrypt.grants.created", 1, map[string]string{"kind": Symmetric.String()}, 1.0)
	logger.Info(ctx, "grant.created", "kind", Symmetric, "grant_id", g.ID, "page_id", g.PageID)
	return &Created{Grant: g, Code: code}, nil
}

// uniqueCode generates codes until one differs from every unconsumed code the
// author already issued for the page.
func (s *Service) uniqueCode(ctx context.Context, pageID, createdBy int64, ownerKey envelope.Key) (string, error) {
	existing, err := s.store.Grants(ctx, Symmetric, Query{PageID: pageID, CreatedBy: createdBy, Viewed: OnlyUnviewed})
	if err != nil {
		return "", err
	}
	taken := make(map[string]bool, len(existing))
	for _, g := range existing {
		if code, err := envelope.Decrypt(g.Symmetric.EncryptedPassword, ownerKey); err == nil {
			taken[string(code)] = true
		}
	}

	for i := 0; i < maxCodeAttempts; i++ {
		code, err := generateCode(s.CodeLength)
		if err != nil {
			return "", err
		}
		if !taken[code] {
			return code, nil
		}
	}
	return "", ErrCodeSpaceExhausted
}

// Visitor describes who is redeeming an access code.
type Visitor struct {
	IP        string
	UserAgent string

	// NoTrack suppresses recording IP and user agent.
	NoTrack bool
}

func (v Visitor) metadata() *ViewedMetadata {
	if v.NoTrack {
		return nil
	}
	return &ViewedMetadata{IP: v.IP, UserAgent: v.UserAgent}
}

// Redemption is a successful access code redemption.
type Redemption struct {
	Grant     *Grant
	Plaintext []byte

	// Key is the one-time key, for the cookie that allows re-reads within
	// the grace window.
	Key envelope.Key
}

// RedeemSymmetric tries code against every unconsumed access code of the
// page. The first one it unlocks is marked viewed with a conditional write;
// if another request won that race, redemption carries on with the next
// candidate.
func (s *Service) RedeemSymmetric(ctx context.Context, pageID int64, code string, v Visitor) (*Redemption, error) {
	candidates, err := s.store.Grants(ctx, Symmetric, Query{PageID: pageID, Viewed: OnlyUnviewed})
	if err != nil {
		return nil, err
	}

	now := s.Now()
	result := ErrNoMatchingGrant
	for _, g := range candidates {
		key, err := envelope.UnlockString(g.Symmetric.ProtectedKey, code)
		if err != nil {
			continue
		}
		if g.Expired(now) {
			result = ErrGrantExpired
			continue
		}
		plaintext, err := envelope.Decrypt(g.Symmetric.EncryptedContent, key)
		if err != nil {
			result = err
			continue
		}

		meta := v.metadata()
		if err := s.store.MarkViewed(ctx, Symmetric, g.ID, now, meta); err != nil {
			if isConsumed(err) {
				continue
			}
			return nil, err
		}
		g.Viewed = &now
		g.Symmetric.ViewedMetadata = meta

		metrics.Count("pagecrypt.grants.redeemed", 1, map[string]string{"kind": Symmetric.String()}, 1.0)
		logger.Info(ctx, "grant.redeemed", "kind", Symmetric, "grant_id", g.ID, "page_id", pageID)
		return &Redemption{Grant: g, Plaintext: plaintext, Key: key}, nil
	}
	return nil, result
}

// RedeemSymmetricBySession re-reads an already redeemed access code with the
// one-time key from its cookie. The grant must have been viewed less than
// GraceWindow ago and must not be expired.
func (s *Service) RedeemSymmetricBySession(ctx context.Context, pageID int64, key envelope.Key, clientIP string) ([]byte, error) {
	candidates, err := s.store.Grants(ctx, Symmetric, Query{PageID: pageID, Viewed: OnlyViewed})
	if err != nil {
		return nil, err
	}

	now := s.Now()
	result := ErrNoMatchingGrant
	for _, g := range candidates {
		plaintext, err := envelope.Decrypt(g.Symmetric.EncryptedContent, key)
		if err != nil {
			continue
		}
		if g.Expired(now) || now.Sub(*g.Viewed) >= s.GraceWindow {
			result = ErrGrantExpired
			continue
		}
		if s.BindIP && !sameIP(g.Symmetric.ViewedMetadata, clientIP) {
			logger.Warn(ctx, "grant.ip_mismatch", "grant_id", g.ID, "page_id", pageID)
			continue
		}
		return plaintext, nil
	}
	return nil, result
}

// sameIP only compares when an address was recorded. Redemptions with no
// tracking can't be bound.
func sameIP(m *ViewedMetadata, ip string) bool {
	if m == nil || m.IP == "" {
		return true
	}
	return m.IP == ip
}

// AccessCode decrypts the code of a symmetric grant with its author's
// session key.
func (s *Service) AccessCode(ctx context.Context, id string, ownerKey envelope.Key) (string, error) {
	g, err := s.Get(ctx, Symmetric, id)
	if err != nil {
		return "", err
	}
	code, err := envelope.Decrypt(g.Symmetric.EncryptedPassword, ownerKey)
	if err != nil {
		return "", err
	}
	return string(code), nil
}
