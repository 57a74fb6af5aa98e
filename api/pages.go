package api

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
	"github.com/remind101/pagecrypt/content"
	"github.com/remind101/pagecrypt/disclosure"
)

// Page is a page as its reader may see it.
type Page struct {
	PageID     int64             `json:"page_id"`
	RevisionID int64             `json:"revision_id"`
	Namespace  int               `json:"namespace"`
	Text       string            `json:"text"`
	Encrypted  bool              `json:"encrypted"`
	Disclosed  bool              `json:"disclosed"`
	Path       disclosure.Path   `json:"path"`
	Notice     disclosure.Notice `json:"notice"`
	Message    string            `json:"message,omitempty"`
}

// ReadPage returns the latest revision of a page as the actor may see it.
// Undisclosed encrypted content is returned as stored, with a notice.
func (s *Server) ReadPage(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	id, err := pageID(ctx)
	if err != nil {
		return err
	}
	a, err := s.actor(r)
	if err != nil {
		return err
	}

	req := s.request(w, r, a, id)
	view, err := s.Content.Read(ctx, req, id)
	if err != nil {
		return classify(err)
	}

	notice := req.Notice()
	return encode(w, http.StatusOK, Page{
		PageID:     id,
		RevisionID: view.Revision.ID,
		Namespace:  view.Revision.Namespace,
		Text:       view.Text,
		Encrypted:  view.Encrypted,
		Disclosed:  view.Disclosed,
		Path:       view.Path,
		Notice:     notice,
		Message:    notice.Message(),
	})
}

// SavePageRequest is the body of PUT /pages/{page}. Namespace defaults
// to the main namespace.
type SavePageRequest struct {
	Text      string `json:"text"`
	Namespace *int   `json:"namespace"`
}

type SavedPage struct {
	PageID     int64 `json:"page_id"`
	RevisionID int64 `json:"revision_id"`
	Namespace  int   `json:"namespace"`
	Encrypted  bool  `json:"encrypted"`
}

// SavePage stores a new revision. Pages in an encrypted namespace are
// encrypted under the actor's session key.
func (s *Server) SavePage(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	id, err := pageID(ctx)
	if err != nil {
		return err
	}
	a, err := s.signedIn(r)
	if err != nil {
		return err
	}

	var body SavePageRequest
	if err := decode(r, &body); err != nil {
		return err
	}
	ns := content.DefaultNamespace
	if body.Namespace != nil {
		ns = *body.Namespace
	}

	rev, err := s.Content.Save(ctx, s.request(w, r, a, id), id, ns, body.Text, a.Can(RightCreateEncrypted))
	if err != nil {
		return classify(err)
	}

	return encode(w, http.StatusCreated, SavedPage{
		PageID:     rev.PageID,
		RevisionID: rev.ID,
		Namespace:  rev.Namespace,
		Encrypted:  s.Content.Policy.Encrypted(rev.Namespace),
	})
}

type RedeemRequest struct {
	AccessCode string `json:"acode"`
}

// Redemption is the content unlocked by an access code.
type Redemption struct {
	PageID  int64             `json:"page_id"`
	Text    string            `json:"text"`
	Notice  disclosure.Notice `json:"notice"`
	Message string            `json:"message"`
}

// RedeemAccessCode redeems an access code and sets the page cookie that
// allows re-reads within the grace window.
func (s *Server) RedeemAccessCode(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	id, err := pageID(ctx)
	if err != nil {
		return err
	}
	a, err := s.actor(r)
	if err != nil {
		return err
	}

	var body RedeemRequest
	if err := decode(r, &body); err != nil {
		return err
	}
	if body.AccessCode == "" {
		return badRequest(errors.New("api: acode is required"))
	}

	red, err := s.Resolver.RedeemAccessCode(ctx, s.request(w, r, a, id), id, body.AccessCode)
	if err != nil {
		return classify(err)
	}

	return encode(w, http.StatusOK, Redemption{
		PageID:  id,
		Text:    string(red.Plaintext),
		Notice:  disclosure.DecryptionFromAccessCode,
		Message: disclosure.DecryptionFromAccessCode.Message(),
	})
}
