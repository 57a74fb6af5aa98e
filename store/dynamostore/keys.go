package dynamostore

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/expression"
	"github.com/remind101/pagecrypt/keys"
	"github.com/remind101/pagecrypt/store"
)

func (s *Store) InsertKey(ctx context.Context, r *keys.Record) error {
	item, err := dynamodbattribute.MarshalMap(newKeyItem(r))
	if err != nil {
		return store.Wrap("insert key", err)
	}
	put := &dynamodb.Put{
		TableName:           s.table(keysTable),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	}
	if !r.Enabled {
		return s.write(ctx, "insert key", func(ctx context.Context) error {
			_, err := s.db.PutItemWithContext(ctx, &dynamodb.PutItemInput{
				TableName:           put.TableName,
				Item:                put.Item,
				ConditionExpression: put.ConditionExpression,
			})
			return keyWriteErr("insert key", err)
		})
	}

	active, err := dynamodbattribute.MarshalMap(activeItem{UserID: r.UserID, ID: activeID, KeyID: r.ID})
	if err != nil {
		return store.Wrap("insert key", err)
	}
	return s.write(ctx, "insert key", func(ctx context.Context) error {
		_, err := s.db.TransactWriteItemsWithContext(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems: []*dynamodb.TransactWriteItem{
				{Put: &dynamodb.Put{
					TableName:           s.table(keysTable),
					Item:                active,
					ConditionExpression: aws.String("attribute_not_exists(user_id)"),
				}},
				{Put: put},
			},
		})
		return keyWriteErr("insert key", err)
	})
}

func keyWriteErr(op string, err error) error {
	if conditionFailed(err) {
		return store.ErrDuplicate
	}
	return store.Wrap(op, err)
}

func (s *Store) ActiveKey(ctx context.Context, userID int64) (*keys.Record, error) {
	var active activeItem
	found, err := s.getItem(ctx, "active key", keysTable, keyKey(userID, activeID), &active)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, store.ErrNotFound
	}

	var item keyItem
	found, err = s.getItem(ctx, "active key", keysTable, keyKey(userID, active.KeyID), &item)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, store.ErrNotFound
	}
	return item.record(), nil
}

// DisableKey removes the sentinel and flags the record in one transaction.
// The sentinel must still point at the record that was read.
func (s *Store) DisableKey(ctx context.Context, userID int64, at time.Time) error {
	var active activeItem
	found, err := s.getItem(ctx, "disable key", keysTable, keyKey(userID, activeID), &active)
	if err != nil {
		return err
	}
	if !found {
		return store.ErrNotFound
	}

	cond, err := expression.NewBuilder().
		WithCondition(expression.Name("key_id").Equal(expression.Value(active.KeyID))).
		Build()
	if err != nil {
		return store.Wrap("disable key", err)
	}
	update, err := expression.NewBuilder().
		WithCondition(expression.AttributeExists(expression.Name("id"))).
		WithUpdate(expression.
			Set(expression.Name("enabled"), expression.Value(false)).
			Set(expression.Name("updated_at"), expression.Value(nanos(at)))).
		Build()
	if err != nil {
		return store.Wrap("disable key", err)
	}

	return s.write(ctx, "disable key", func(ctx context.Context) error {
		_, err := s.db.TransactWriteItemsWithContext(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems: []*dynamodb.TransactWriteItem{
				{Delete: &dynamodb.Delete{
					TableName:                 s.table(keysTable),
					Key:                       keyKey(userID, activeID),
					ConditionExpression:       cond.Condition(),
					ExpressionAttributeNames:  cond.Names(),
					ExpressionAttributeValues: cond.Values(),
				}},
				{Update: &dynamodb.Update{
					TableName:                 s.table(keysTable),
					Key:                       keyKey(userID, active.KeyID),
					ConditionExpression:       update.Condition(),
					UpdateExpression:          update.Update(),
					ExpressionAttributeNames:  update.Names(),
					ExpressionAttributeValues: update.Values(),
				}},
			},
		})
		if conditionFailed(err) {
			return store.ErrNotFound
		}
		return store.Wrap("disable key", err)
	})
}

func keyKey(userID int64, id string) map[string]*dynamodb.AttributeValue {
	return map[string]*dynamodb.AttributeValue{
		"user_id": {N: aws.String(itoa(userID))},
		"id":      {S: aws.String(id)},
	}
}
