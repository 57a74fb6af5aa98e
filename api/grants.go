package api

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/remind101/pagecrypt/crypto/envelope"
	"github.com/remind101/pagecrypt/disclosure"
	"github.com/remind101/pagecrypt/grants"
	"github.com/remind101/pagecrypt/httpx"
	"github.com/remind101/pagecrypt/keys"
	"github.com/remind101/pagecrypt/logger"
)

// Grant describes a symmetric or asymmetric grant.
type Grant struct {
	ID             string                 `json:"id"`
	Kind           grants.Kind            `json:"kind"`
	PageID         int64                  `json:"page_id"`
	CreatedBy      int64                  `json:"created_by"`
	RevisionID     int64                  `json:"revision_id,omitempty"`
	RecipientID    int64                  `json:"recipient_id,omitempty"`
	ExpirationDate *time.Time             `json:"expiration_date"`
	Viewed         *time.Time             `json:"viewed"`
	ViewedMetadata *grants.ViewedMetadata `json:"viewed_metadata,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`

	// AccessCode is only filled in for the grant's author.
	AccessCode string `json:"acode,omitempty"`
}

func newGrant(g *grants.Grant) *Grant {
	resp := &Grant{
		ID:             g.ID,
		Kind:           g.Kind,
		PageID:         g.PageID,
		CreatedBy:      g.CreatedBy,
		ExpirationDate: g.ExpirationDate,
		Viewed:         g.Viewed,
		CreatedAt:      g.CreatedAt,
	}
	if p := g.Symmetric; p != nil {
		resp.RevisionID = p.RevisionID
		resp.ViewedMetadata = p.ViewedMetadata
	}
	if p := g.Asymmetric; p != nil {
		resp.RecipientID = p.RecipientID
	}
	return resp
}

// pageAuthor returns the user who created a page.
func (s *Server) pageAuthor(ctx context.Context, pageID int64) (int64, error) {
	first, err := s.Content.Revisions.FirstRevision(ctx, pageID)
	if err != nil {
		return 0, classify(err)
	}
	return first.AuthorID, nil
}

// ListGrants lists the grants of a page for its author or an admin. The
// author's own access codes are decrypted when their session key is set.
func (s *Server) ListGrants(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	id, err := pageID(ctx)
	if err != nil {
		return err
	}
	a, err := s.signedIn(r)
	if err != nil {
		return err
	}
	author, err := s.pageAuthor(ctx, id)
	if err != nil {
		return err
	}
	if a.ID != author && !s.Admins.Authorized(a) {
		return errForbidden
	}

	gs, err := s.Grants.List(ctx, grants.Query{PageID: id})
	if err != nil {
		return classify(err)
	}

	sessionKey, hasKey := s.request(w, r, a, id).SessionKey()
	resp := make([]*Grant, 0, len(gs))
	for _, g := range gs {
		gr := newGrant(g)
		if hasKey && g.Kind == grants.Symmetric && g.CreatedBy == a.ID {
			code, err := s.Grants.AccessCode(ctx, g.ID, sessionKey)
			if err != nil {
				logger.Warn(ctx, "api.access_code_unavailable", "grant_id", g.ID, "error", err)
			} else {
				gr.AccessCode = code
			}
		}
		resp = append(resp, gr)
	}
	return encode(w, http.StatusOK, resp)
}

type CreateGrantRequest struct {
	Type           grants.Kind `json:"type"`
	Recipient      int64       `json:"recipient"`
	ExpirationDate *time.Time  `json:"expiration_date"`
}

// CreateGrant shares the latest revision of a page, either as an access code
// or sealed for a recipient. Only the page author can share, with their
// session key set.
func (s *Server) CreateGrant(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	id, err := pageID(ctx)
	if err != nil {
		return err
	}
	a, err := s.signedIn(r)
	if err != nil {
		return err
	}

	var body CreateGrantRequest
	if err := decode(r, &body); err != nil {
		return err
	}
	if body.Type == grants.Asymmetric && body.Recipient <= 0 {
		return badRequest(errors.New("api: recipient is required"))
	}
	if body.Type != grants.Symmetric && body.Type != grants.Asymmetric {
		return badRequest(errors.New("api: type must be symmetric or asymmetric"))
	}

	author, err := s.pageAuthor(ctx, id)
	if err != nil {
		return err
	}
	if author != a.ID {
		return errNotOwner
	}

	req := s.request(w, r, a, id)
	ownerKey, ok := req.SessionKey()
	if !ok {
		return classify(keys.ErrUserKeyNotSet)
	}
	view, err := s.Content.Read(ctx, req, id)
	if err != nil {
		return classify(err)
	}
	if !view.Encrypted {
		return badRequest(errors.New("api: page is not encrypted"))
	}
	if view.Path != disclosure.OwnerPath {
		return classify(envelope.ErrAuthenticationFailed)
	}

	switch body.Type {
	case grants.Symmetric:
		created, err := s.Grants.CreateSymmetric(ctx, grants.SymmetricRequest{
			PageID:         id,
			RevisionID:     view.Revision.ID,
			CreatedBy:      a.ID,
			OwnerKey:       ownerKey,
			Plaintext:      []byte(view.Text),
			ExpirationDate: body.ExpirationDate,
		})
		if err != nil {
			return classify(err)
		}
		gr := newGrant(created.Grant)
		gr.AccessCode = created.Code
		return encode(w, http.StatusCreated, gr)
	default:
		g, err := s.Grants.CreateAsymmetric(ctx, grants.AsymmetricRequest{
			PageID:         id,
			CreatedBy:      a.ID,
			RecipientID:    body.Recipient,
			OwnerKey:       ownerKey,
			Plaintext:      []byte(view.Text),
			ExpirationDate: body.ExpirationDate,
		})
		if err != nil {
			return classify(err)
		}
		return encode(w, http.StatusCreated, newGrant(g))
	}
}

// grant loads the grant named by the route and checks the actor may manage
// it.
func (s *Server) grant(ctx context.Context, r *http.Request) (*grants.Grant, error) {
	vars := httpx.Vars(ctx)
	kind, err := grants.ParseKind(vars["kind"])
	if err != nil {
		return nil, httpx.NewError(http.StatusNotFound, err)
	}
	a, err := s.signedIn(r)
	if err != nil {
		return nil, err
	}
	g, err := s.Grants.Get(ctx, kind, vars["id"])
	if err != nil {
		return nil, classify(err)
	}
	if g.CreatedBy != a.ID && !s.Admins.Authorized(a) {
		return nil, errForbidden
	}
	return g, nil
}

type UpdateGrantRequest struct {
	ExpirationDate *time.Time `json:"expiration_date"`
}

// UpdateGrant sets or clears a grant's expiration date.
func (s *Server) UpdateGrant(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	g, err := s.grant(ctx, r)
	if err != nil {
		return err
	}

	var body UpdateGrantRequest
	if err := decode(r, &body); err != nil {
		return err
	}
	if err := s.Grants.SetExpiration(ctx, g.Kind, g.ID, body.ExpirationDate); err != nil {
		return classify(err)
	}
	g.ExpirationDate = body.ExpirationDate
	return encode(w, http.StatusOK, newGrant(g))
}

// DeleteGrant deletes a grant.
func (s *Server) DeleteGrant(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	g, err := s.grant(ctx, r)
	if err != nil {
		return err
	}
	if _, err := s.Grants.Delete(ctx, g.Kind, grants.Query{ID: g.ID}); err != nil {
		return classify(err)
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// PurgeResult is the number of grants PurgeGrants deleted.
type PurgeResult struct {
	Deleted int64 `json:"deleted"`
}

// PurgeGrants deletes every expired grant. Admins only.
func (s *Server) PurgeGrants(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	a, err := s.signedIn(r)
	if err != nil {
		return err
	}
	if !s.Admins.Authorized(a) {
		return errForbidden
	}

	n, err := s.Grants.PurgeExpired(ctx)
	if err != nil {
		return classify(err)
	}
	return encode(w, http.StatusOK, PurgeResult{Deleted: n})
}
