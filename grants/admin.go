package grants

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/remind101/pagecrypt/logger"
	"github.com/remind101/pagecrypt/store"
)

var errEmptyConds = errors.New("grants: refusing to delete without conditions")

// List returns the grants of both kinds matching q, symmetric first.
func (s *Service) List(ctx context.Context, q Query) ([]*Grant, error) {
	var all []*Grant
	for _, kind := range []Kind{Symmetric, Asymmetric} {
		if kind == Symmetric && q.RecipientID != 0 {
			continue
		}
		gs, err := s.store.Grants(ctx, kind, q)
		if err != nil {
			return nil, err
		}
		all = append(all, gs...)
	}
	return all, nil
}

// SetExpiration sets or clears the expiration date of a grant.
func (s *Service) SetExpiration(ctx context.Context, kind Kind, id string, exp *time.Time) error {
	if err := s.store.UpdateExpiration(ctx, kind, id, exp, s.Now()); err != nil {
		return err
	}
	logger.Info(ctx, "grant.expiration_set", "kind", kind, "grant_id", id)
	return nil
}

// Delete removes the grants of kind matching q.
func (s *Service) Delete(ctx context.Context, kind Kind, q Query) (int64, error) {
	if q.Empty() {
		return 0, errEmptyConds
	}
	n, err := s.store.DeleteGrants(ctx, kind, q)
	if err != nil {
		return 0, err
	}
	logger.Info(ctx, "grant.deleted", "kind", kind, "count", n)
	return n, nil
}

// PurgeExpired removes grants of both kinds whose expiration date passed.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	now := s.Now()
	var total int64
	for _, kind := range []Kind{Symmetric, Asymmetric} {
		n, err := s.store.PurgeExpired(ctx, kind, now)
		if err != nil {
			return total, err
		}
		total += n
	}
	logger.Info(ctx, "grant.purged", "count", total)
	return total, nil
}

// Get returns a single grant.
func (s *Service) Get(ctx context.Context, kind Kind, id string) (*Grant, error) {
	gs, err := s.store.Grants(ctx, kind, Query{ID: id})
	if err != nil {
		return nil, err
	}
	if len(gs) == 0 {
		return nil, store.ErrNotFound
	}
	return gs[0], nil
}
