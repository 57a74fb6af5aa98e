package dynamostore

import (
	"context"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/expression"
	"github.com/pkg/errors"
	"github.com/remind101/pagecrypt/grants"
	"github.com/remind101/pagecrypt/store"
)

func grantTableName(kind grants.Kind) (string, error) {
	switch kind {
	case grants.Symmetric:
		return symmetricTable, nil
	case grants.Asymmetric:
		return asymmetricTable, nil
	}
	return "", errors.Errorf("dynamostore: unknown grant kind %v", kind)
}

func (s *Store) InsertGrant(ctx context.Context, g *grants.Grant) error {
	tbl, err := grantTableName(g.Kind)
	if err != nil {
		return err
	}
	item, err := dynamodbattribute.MarshalMap(newGrantItem(g))
	if err != nil {
		return store.Wrap("insert grant", err)
	}
	return s.write(ctx, "insert grant", func(ctx context.Context) error {
		_, err := s.db.PutItemWithContext(ctx, &dynamodb.PutItemInput{
			TableName:           s.table(tbl),
			Item:                item,
			ConditionExpression: aws.String("attribute_not_exists(id)"),
		})
		if conditionFailed(err) {
			return store.ErrDuplicate
		}
		return store.Wrap("insert grant", err)
	})
}

// Grants reads by id, by the page index, or with a scan, in that order of
// preference. Index reads are eventually consistent; MarkViewed re-checks
// viewed on write.
func (s *Store) Grants(ctx context.Context, kind grants.Kind, q grants.Query) ([]*grants.Grant, error) {
	tbl, err := grantTableName(kind)
	if err != nil {
		return nil, err
	}

	var items []map[string]*dynamodb.AttributeValue
	switch {
	case q.ID != "":
		var gi grantItem
		found, err := s.getItem(ctx, "grants", tbl, grantKey(q.ID), &gi)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, nil
		}
		g, err := gi.grant(kind)
		if err != nil {
			return nil, store.Wrap("grants", err)
		}
		if !matches(g, q) {
			return nil, nil
		}
		return []*grants.Grant{g}, nil
	case q.PageID != 0:
		items, err = s.queryPage(ctx, tbl, q)
	default:
		cond, ok := filter(q, false)
		items, err = s.scan(ctx, "grants", tbl, cond, ok)
	}
	if err != nil {
		return nil, err
	}

	out := make([]*grants.Grant, 0, len(items))
	for _, item := range items {
		var gi grantItem
		if err := dynamodbattribute.UnmarshalMap(item, &gi); err != nil {
			return nil, store.Wrap("grants", err)
		}
		g, err := gi.grant(kind)
		if err != nil {
			return nil, store.Wrap("grants", err)
		}
		out = append(out, g)
	}
	return out, nil
}

func (s *Store) queryPage(ctx context.Context, tbl string, q grants.Query) ([]map[string]*dynamodb.AttributeValue, error) {
	b := expression.NewBuilder().WithKeyCondition(expression.Key("page_id").Equal(expression.Value(q.PageID)))
	if cond, ok := filter(q, true); ok {
		b = b.WithFilter(cond)
	}
	expr, err := b.Build()
	if err != nil {
		return nil, store.Wrap("grants", err)
	}

	var items []map[string]*dynamodb.AttributeValue
	err = s.read(ctx, "grants", func(ctx context.Context) error {
		items = nil
		return s.db.QueryPagesWithContext(ctx, &dynamodb.QueryInput{
			TableName:                 s.table(tbl),
			IndexName:                 aws.String(pageIndex),
			KeyConditionExpression:    expr.KeyCondition(),
			FilterExpression:          expr.Filter(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		}, func(page *dynamodb.QueryOutput, last bool) bool {
			items = append(items, page.Items...)
			return true
		})
	})
	return items, err
}

func (s *Store) scan(ctx context.Context, op, tbl string, cond expression.ConditionBuilder, hasCond bool) ([]map[string]*dynamodb.AttributeValue, error) {
	input := &dynamodb.ScanInput{TableName: s.table(tbl), ConsistentRead: aws.Bool(true)}
	if hasCond {
		expr, err := expression.NewBuilder().WithFilter(cond).Build()
		if err != nil {
			return nil, store.Wrap(op, err)
		}
		input.FilterExpression = expr.Filter()
		input.ExpressionAttributeNames = expr.Names()
		input.ExpressionAttributeValues = expr.Values()
	}

	var items []map[string]*dynamodb.AttributeValue
	err := s.read(ctx, op, func(ctx context.Context) error {
		items = nil
		return s.db.ScanPagesWithContext(ctx, input, func(page *dynamodb.ScanOutput, last bool) bool {
			items = append(items, page.Items...)
			return true
		})
	})
	return items, err
}

// filter builds the conditions of q other than the id, and other than the
// page when it is the key condition.
func filter(q grants.Query, pageIsKey bool) (expression.ConditionBuilder, bool) {
	var conds []expression.ConditionBuilder
	if q.PageID != 0 && !pageIsKey {
		conds = append(conds, expression.Name("page_id").Equal(expression.Value(q.PageID)))
	}
	if q.CreatedBy != 0 {
		conds = append(conds, expression.Name("created_by").Equal(expression.Value(q.CreatedBy)))
	}
	if q.RecipientID != 0 {
		conds = append(conds, expression.Name("recipient_id").Equal(expression.Value(q.RecipientID)))
	}
	switch q.Viewed {
	case grants.OnlyViewed:
		conds = append(conds, expression.AttributeExists(expression.Name("viewed")))
	case grants.OnlyUnviewed:
		conds = append(conds, expression.AttributeNotExists(expression.Name("viewed")))
	}

	switch len(conds) {
	case 0:
		return expression.ConditionBuilder{}, false
	case 1:
		return conds[0], true
	}
	return expression.And(conds[0], conds[1], conds[2:]...), true
}

func matches(g *grants.Grant, q grants.Query) bool {
	if q.PageID != 0 && g.PageID != q.PageID {
		return false
	}
	if q.CreatedBy != 0 && g.CreatedBy != q.CreatedBy {
		return false
	}
	if q.RecipientID != 0 && (g.Asymmetric == nil || g.Asymmetric.RecipientID != q.RecipientID) {
		return false
	}
	switch q.Viewed {
	case grants.OnlyViewed:
		return g.Viewed != nil
	case grants.OnlyUnviewed:
		return g.Viewed == nil
	}
	return true
}

// MarkViewed is the one-time compare-and-mark: an UpdateItem that only
// applies while viewed is absent.
func (s *Store) MarkViewed(ctx context.Context, kind grants.Kind, id string, at time.Time, meta *grants.ViewedMetadata) error {
	tbl, err := grantTableName(kind)
	if err != nil {
		return err
	}

	update := expression.
		Set(expression.Name("viewed"), expression.Value(nanos(at))).
		Set(expression.Name("updated_at"), expression.Value(nanos(at)))
	if kind == grants.Symmetric && meta != nil {
		update = update.Set(expression.Name("viewed_metadata"), expression.Value(meta.String()))
	}
	expr, err := expression.NewBuilder().
		WithCondition(expression.And(
			expression.AttributeExists(expression.Name("id")),
			expression.AttributeNotExists(expression.Name("viewed")))).
		WithUpdate(update).
		Build()
	if err != nil {
		return store.Wrap("mark viewed", err)
	}

	err = s.write(ctx, "mark viewed", func(ctx context.Context) error {
		_, err := s.db.UpdateItemWithContext(ctx, &dynamodb.UpdateItemInput{
			TableName:                 s.table(tbl),
			Key:                       grantKey(id),
			ConditionExpression:       expr.Condition(),
			UpdateExpression:          expr.Update(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		})
		return err
	})
	if err == nil {
		return nil
	}
	if !conditionFailed(err) {
		return store.Wrap("mark viewed", err)
	}

	var gi grantItem
	found, err := s.getItem(ctx, "mark viewed", tbl, grantKey(id), &gi)
	if err != nil {
		return err
	}
	if !found {
		return store.ErrNotFound
	}
	return store.ErrAlreadyConsumed
}

func (s *Store) UpdateExpiration(ctx context.Context, kind grants.Kind, id string, exp *time.Time, at time.Time) error {
	tbl, err := grantTableName(kind)
	if err != nil {
		return err
	}

	update := expression.Set(expression.Name("updated_at"), expression.Value(nanos(at)))
	if exp != nil {
		update = update.Set(expression.Name("expiration_date"), expression.Value(nanos(*exp)))
	} else {
		update = update.Remove(expression.Name("expiration_date"))
	}
	expr, err := expression.NewBuilder().
		WithCondition(expression.AttributeExists(expression.Name("id"))).
		WithUpdate(update).
		Build()
	if err != nil {
		return store.Wrap("update expiration", err)
	}

	return s.write(ctx, "update expiration", func(ctx context.Context) error {
		_, err := s.db.UpdateItemWithContext(ctx, &dynamodb.UpdateItemInput{
			TableName:                 s.table(tbl),
			Key:                       grantKey(id),
			ConditionExpression:       expr.Condition(),
			UpdateExpression:          expr.Update(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
		})
		if conditionFailed(err) {
			return store.ErrNotFound
		}
		return store.Wrap("update expiration", err)
	})
}

func (s *Store) DeleteGrants(ctx context.Context, kind grants.Kind, q grants.Query) (int64, error) {
	if q.Empty() {
		return 0, errors.Errorf("dynamostore: refusing to delete every %v grant", kind)
	}
	matched, err := s.Grants(ctx, kind, q)
	if err != nil {
		return 0, err
	}
	return s.deleteGrants(ctx, kind, matched)
}

func (s *Store) PurgeExpired(ctx context.Context, kind grants.Kind, before time.Time) (int64, error) {
	tbl, err := grantTableName(kind)
	if err != nil {
		return 0, err
	}
	items, err := s.scan(ctx, "purge expired", tbl,
		expression.Name("expiration_date").LessThan(expression.Value(nanos(before))), true)
	if err != nil {
		return 0, err
	}

	expired := make([]*grants.Grant, 0, len(items))
	for _, item := range items {
		var gi grantItem
		if err := dynamodbattribute.UnmarshalMap(item, &gi); err != nil {
			return 0, store.Wrap("purge expired", err)
		}
		expired = append(expired, &grants.Grant{ID: gi.ID})
	}
	return s.deleteGrants(ctx, kind, expired)
}

func (s *Store) deleteGrants(ctx context.Context, kind grants.Kind, gs []*grants.Grant) (int64, error) {
	tbl, err := grantTableName(kind)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, g := range gs {
		err := s.write(ctx, "delete grants", func(ctx context.Context) error {
			_, err := s.db.DeleteItemWithContext(ctx, &dynamodb.DeleteItemInput{
				TableName: s.table(tbl),
				Key:       grantKey(g.ID),
			})
			return store.Wrap("delete grants", err)
		})
		if err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// getItem reads an item with a consistent read into v. It reports whether
// the item exists.
func (s *Store) getItem(ctx context.Context, op, tbl string, key map[string]*dynamodb.AttributeValue, v interface{}) (bool, error) {
	var out *dynamodb.GetItemOutput
	err := s.read(ctx, op, func(ctx context.Context) error {
		var err error
		out, err = s.db.GetItemWithContext(ctx, &dynamodb.GetItemInput{
			TableName:      s.table(tbl),
			Key:            key,
			ConsistentRead: aws.Bool(true),
		})
		return err
	})
	if err != nil {
		return false, err
	}
	if out.Item == nil {
		return false, nil
	}
	if err := dynamodbattribute.UnmarshalMap(out.Item, v); err != nil {
		return false, store.Wrap(op, err)
	}
	return true, nil
}

func grantKey(id string) map[string]*dynamodb.AttributeValue {
	return map[string]*dynamodb.AttributeValue{"id": {S: aws.String(id)}}
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
