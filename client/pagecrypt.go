package client

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/remind101/pagecrypt/api"
	"github.com/remind101/pagecrypt/client/request"
	"github.com/remind101/pagecrypt/grants"
)

// StatusCode returns the HTTP status of a failed call, or 0 when err is not
// a response error.
func StatusCode(err error) int {
	var respErr *request.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode
	}
	return 0
}

func (c *Client) send(ctx context.Context, method, path string, params, data interface{}) error {
	return c.NewRequest(ctx, method, path, params, data).Send()
}

// SetupKey unlocks or creates the user's key. With reset, the key is
// replaced and everything encrypted under the old one becomes unreadable.
func (c *Client) SetupKey(ctx context.Context, password string, reset bool) (*api.KeySetup, error) {
	var out api.KeySetup
	err := c.send(ctx, "POST", "/keys", api.SetupKeyRequest{Password: password, Reset: reset}, &out)
	return &out, err
}

// Logout forgets the unlocked key.
func (c *Client) Logout(ctx context.Context) error {
	return c.send(ctx, "DELETE", "/session", nil, nil)
}

// ReadPage reads a page. acode, when not empty, is tried as an access code.
func (c *Client) ReadPage(ctx context.Context, pageID int64, acode string) (*api.Page, error) {
	path := fmt.Sprintf("/pages/%d", pageID)
	if acode != "" {
		path += "?" + url.Values{"acode": {acode}}.Encode()
	}

	var out api.Page
	err := c.send(ctx, "GET", path, nil, &out)
	return &out, err
}

// SavePage stores a new revision of a page in namespace ns.
func (c *Client) SavePage(ctx context.Context, pageID int64, ns int, text string) (*api.SavedPage, error) {
	var out api.SavedPage
	err := c.send(ctx, "PUT", fmt.Sprintf("/pages/%d", pageID), api.SavePageRequest{Text: text, Namespace: &ns}, &out)
	return &out, err
}

// RedeemAccessCode spends an access code. Later reads of the page by this
// client succeed until the grace window closes.
func (c *Client) RedeemAccessCode(ctx context.Context, pageID int64, code string) (*api.Redemption, error) {
	var out api.Redemption
	err := c.send(ctx, "POST", fmt.Sprintf("/pages/%d/access-code", pageID), api.RedeemRequest{AccessCode: code}, &out)
	return &out, err
}

func (c *Client) ListGrants(ctx context.Context, pageID int64) ([]*api.Grant, error) {
	var out []*api.Grant
	err := c.send(ctx, "GET", fmt.Sprintf("/pages/%d/grants", pageID), nil, &out)
	return out, err
}

// CreateAccessCode shares the latest revision of a page behind a new access
// code. The code is in the AccessCode field of the result.
func (c *Client) CreateAccessCode(ctx context.Context, pageID int64, expires *time.Time) (*api.Grant, error) {
	return c.createGrant(ctx, pageID, api.CreateGrantRequest{Type: grants.Symmetric, ExpirationDate: expires})
}

// SharePage seals the latest revision of a page for recipient.
func (c *Client) SharePage(ctx context.Context, pageID, recipient int64, expires *time.Time) (*api.Grant, error) {
	return c.createGrant(ctx, pageID, api.CreateGrantRequest{Type: grants.Asymmetric, Recipient: recipient, ExpirationDate: expires})
}

func (c *Client) createGrant(ctx context.Context, pageID int64, req api.CreateGrantRequest) (*api.Grant, error) {
	var out api.Grant
	err := c.send(ctx, "POST", fmt.Sprintf("/pages/%d/grants", pageID), req, &out)
	return &out, err
}

// SetExpiration sets or, with nil, clears a grant's expiration date.
func (c *Client) SetExpiration(ctx context.Context, kind grants.Kind, id string, expires *time.Time) (*api.Grant, error) {
	var out api.Grant
	err := c.send(ctx, "PATCH", grantPath(kind, id), api.UpdateGrantRequest{ExpirationDate: expires}, &out)
	return &out, err
}

func (c *Client) DeleteGrant(ctx context.Context, kind grants.Kind, id string) error {
	return c.send(ctx, "DELETE", grantPath(kind, id), nil, nil)
}

// PurgeGrants deletes every expired grant and returns how many there were.
func (c *Client) PurgeGrants(ctx context.Context) (int64, error) {
	var out api.PurgeResult
	err := c.send(ctx, "POST", "/grants/purge", nil, &out)
	return out.Deleted, err
}

func grantPath(kind grants.Kind, id string) string {
	return fmt.Sprintf("/grants/%s/%s", kind, url.PathEscape(id))
}
