package dynamostore

import (
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/remind101/pagecrypt/content"
	"github.com/remind101/pagecrypt/store"
)

// The revision id sequence lives in the revisions table under page zero.
var sequenceKey = map[string]*dynamodb.AttributeValue{
	"page_id": {N: aws.String("0")},
	"id":      {N: aws.String("0")},
}

func (s *Store) InsertRevision(ctx context.Context, r *content.Revision) error {
	var out *dynamodb.UpdateItemOutput
	err := s.write(ctx, "insert revision", func(ctx context.Context) error {
		var err error
		out, err = s.db.UpdateItemWithContext(ctx, &dynamodb.UpdateItemInput{
			TableName:                 s.table(revisionsTable),
			Key:                       sequenceKey,
			UpdateExpression:          aws.String("ADD seq :one"),
			ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{":one": {N: aws.String("1")}},
			ReturnValues:              aws.String(dynamodb.ReturnValueUpdatedNew),
		})
		return err
	})
	if err != nil {
		return store.Wrap("insert revision", err)
	}
	var seq struct {
		Seq int64 `dynamodbav:"seq"`
	}
	if err := dynamodbattribute.UnmarshalMap(out.Attributes, &seq); err != nil {
		return store.Wrap("insert revision", err)
	}

	item, err := dynamodbattribute.MarshalMap(revisionItem{
		PageID:    r.PageID,
		ID:        seq.Seq,
		Namespace: r.Namespace,
		AuthorID:  r.AuthorID,
		Text:      r.Text,
		CreatedAt: nanos(r.CreatedAt),
	})
	if err != nil {
		return store.Wrap("insert revision", err)
	}
	err = s.write(ctx, "insert revision", func(ctx context.Context) error {
		_, err := s.db.PutItemWithContext(ctx, &dynamodb.PutItemInput{
			TableName: s.table(revisionsTable),
			Item:      item,
		})
		return store.Wrap("insert revision", err)
	})
	if err != nil {
		return err
	}
	r.ID = seq.Seq
	return nil
}

func (s *Store) LatestRevision(ctx context.Context, pageID int64) (*content.Revision, error) {
	return s.revision(ctx, "latest revision", pageID, false)
}

func (s *Store) FirstRevision(ctx context.Context, pageID int64) (*content.Revision, error) {
	return s.revision(ctx, "first revision", pageID, true)
}

func (s *Store) revision(ctx context.Context, op string, pageID int64, forward bool) (*content.Revision, error) {
	var out *dynamodb.QueryOutput
	err := s.read(ctx, op, func(ctx context.Context) error {
		var err error
		out, err = s.db.QueryWithContext(ctx, &dynamodb.QueryInput{
			TableName:              s.table(revisionsTable),
			KeyConditionExpression: aws.String("page_id = :page"),
			ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
				":page": {N: aws.String(itoa(pageID))},
			},
			ScanIndexForward: aws.Bool(forward),
			ConsistentRead:   aws.Bool(true),
			Limit:            aws.Int64(1),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(out.Items) == 0 {
		return nil, store.ErrNotFound
	}
	var item revisionItem
	if err := dynamodbattribute.UnmarshalMap(out.Items[0], &item); err != nil {
		return nil, store.Wrap(op, err)
	}
	return item.revision(), nil
}
