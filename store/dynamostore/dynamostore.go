// Package dynamostore persists key records, grants and revisions in DynamoDB.
//
// Grant tables are keyed by grant id with a global secondary index on
// page_id. The one-time compare-and-mark is an UpdateItem conditioned on
// attribute_not_exists(viewed). Each user's enabled key is pointed to by a
// sentinel item that is written in the same transaction as the record, so a
// second enabled record fails its condition.
package dynamostore

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/client"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/remind101/pagecrypt/logger"
	"github.com/remind101/pagecrypt/metrics"
	"github.com/remind101/pagecrypt/retry"
	"github.com/remind101/pagecrypt/store"
)

const (
	keysTable       = "user_keys"
	symmetricTable  = "page_grants_symmetric"
	asymmetricTable = "page_grants_asymmetric"
	revisionsTable  = "revisions"

	pageIndex = "page_id-index"
)

// Tables describes every table the store uses, unscoped.
var Tables = map[string]*dynamodb.TableDescription{
	keysTable: {
		TableName: aws.String(keysTable),
		AttributeDefinitions: []*dynamodb.AttributeDefinition{
			{AttributeName: aws.String("user_id"), AttributeType: aws.String(dynamodb.ScalarAttributeTypeN)},
			{AttributeName: aws.String("id"), AttributeType: aws.String(dynamodb.ScalarAttributeTypeS)},
		},
		KeySchema: []*dynamodb.KeySchemaElement{
			{AttributeName: aws.String("user_id"), KeyType: aws.String(dynamodb.KeyTypeHash)},
			{AttributeName: aws.String("id"), KeyType: aws.String(dynamodb.KeyTypeRange)},
		},
		ProvisionedThroughput: throughput(),
	},
	symmetricTable:  grantTable(symmetricTable),
	asymmetricTable: grantTable(asymmetricTable),
	revisionsTable: {
		TableName: aws.String(revisionsTable),
		AttributeDefinitions: []*dynamodb.AttributeDefinition{
			{AttributeName: aws.String("page_id"), AttributeType: aws.String(dynamodb.ScalarAttributeTypeN)},
			{AttributeName: aws.String("id"), AttributeType: aws.String(dynamodb.ScalarAttributeTypeN)},
		},
		KeySchema: []*dynamodb.KeySchemaElement{
			{AttributeName: aws.String("page_id"), KeyType: aws.String(dynamodb.KeyTypeHash)},
			{AttributeName: aws.String("id"), KeyType: aws.String(dynamodb.KeyTypeRange)},
		},
		ProvisionedThroughput: throughput(),
	},
}

func grantTable(name string) *dynamodb.TableDescription {
	return &dynamodb.TableDescription{
		TableName: aws.String(name),
		AttributeDefinitions: []*dynamodb.AttributeDefinition{
			{AttributeName: aws.String("id"), AttributeType: aws.String(dynamodb.ScalarAttributeTypeS)},
			{AttributeName: aws.String("page_id"), AttributeType: aws.String(dynamodb.ScalarAttributeTypeN)},
		},
		KeySchema: []*dynamodb.KeySchemaElement{
			{AttributeName: aws.String("id"), KeyType: aws.String(dynamodb.KeyTypeHash)},
		},
		GlobalSecondaryIndexes: []*dynamodb.GlobalSecondaryIndexDescription{
			{
				IndexName: aws.String(pageIndex),
				KeySchema: []*dynamodb.KeySchemaElement{
					{AttributeName: aws.String("page_id"), KeyType: aws.String(dynamodb.KeyTypeHash)},
				},
				Projection:            &dynamodb.Projection{ProjectionType: aws.String(dynamodb.ProjectionTypeAll)},
				ProvisionedThroughput: throughput(),
			},
		},
		ProvisionedThroughput: throughput(),
	}
}

func throughput() *dynamodb.ProvisionedThroughputDescription {
	return &dynamodb.ProvisionedThroughputDescription{
		ReadCapacityUnits:  aws.Int64(5),
		WriteCapacityUnits: aws.Int64(5),
	}
}

// Params configure the connection.
type Params struct {
	Region string

	// Endpoint points at a local DynamoDB when set.
	Endpoint string

	// Scope prefixes every table name, one scope per environment.
	Scope string
}

// Store implements keys.Store, grants.Store and content.RevisionStore.
type Store struct {
	db      dynamodbiface.DynamoDBAPI
	tables  map[string]*dynamodb.TableDescription
	retrier *retry.Retrier
}

// New returns a Store. Tracing is configured on the session, see package
// tracing/aws.
func New(c client.ConfigProvider, params Params) *Store {
	if params.Region == "" {
		params.Region = "us-east-1"
	}
	config := &aws.Config{Region: aws.String(params.Region)}
	if params.Endpoint != "" {
		config.Endpoint = aws.String(params.Endpoint)
	}
	return NewWithClient(dynamodb.New(c, config), params.Scope)
}

// NewWithClient returns a Store over an existing client.
func NewWithClient(db dynamodbiface.DynamoDBAPI, scope string) *Store {
	return &Store{
		db:      db,
		tables:  scoped(Tables, scope),
		retrier: store.NewRetrier("dynamostore", Transient),
	}
}

func scoped(tables map[string]*dynamodb.TableDescription, scope string) map[string]*dynamodb.TableDescription {
	out := make(map[string]*dynamodb.TableDescription, len(tables))
	for name, td := range tables {
		t := *td
		if scope != "" {
			t.TableName = aws.String(fmt.Sprintf("%s-%s", scope, name))
		}
		out[name] = &t
	}
	return out
}

func (s *Store) table(name string) *string {
	return s.tables[name].TableName
}

// Migrate creates missing tables.
func (s *Store) Migrate(ctx context.Context) error {
	for name, td := range s.tables {
		_, err := s.db.CreateTableWithContext(ctx, createTableInput(td))
		if isCode(err, dynamodb.ErrCodeResourceInUseException) {
			logger.Debug(ctx, "dynamostore.table_exists", "table", aws.StringValue(td.TableName))
			continue
		}
		if err != nil {
			return store.Wrap("create table "+name, err)
		}
		logger.Info(ctx, "dynamostore.table_created", "table", aws.StringValue(td.TableName))
	}
	return nil
}

// DropTables deletes every table. It is meant for tests.
func (s *Store) DropTables(ctx context.Context) error {
	for name, td := range s.tables {
		_, err := s.db.DeleteTableWithContext(ctx, &dynamodb.DeleteTableInput{TableName: td.TableName})
		if err != nil && !isCode(err, dynamodb.ErrCodeResourceNotFoundException) {
			return store.Wrap("delete table "+name, err)
		}
	}
	return nil
}

func createTableInput(td *dynamodb.TableDescription) *dynamodb.CreateTableInput {
	var gsis []*dynamodb.GlobalSecondaryIndex
	for _, d := range td.GlobalSecondaryIndexes {
		gsis = append(gsis, &dynamodb.GlobalSecondaryIndex{
			IndexName:  d.IndexName,
			KeySchema:  d.KeySchema,
			Projection: d.Projection,
			ProvisionedThroughput: &dynamodb.ProvisionedThroughput{
				ReadCapacityUnits:  d.ProvisionedThroughput.ReadCapacityUnits,
				WriteCapacityUnits: d.ProvisionedThroughput.WriteCapacityUnits,
			},
		})
	}
	return &dynamodb.CreateTableInput{
		TableName:            td.TableName,
		AttributeDefinitions: td.AttributeDefinitions,
		KeySchema:            td.KeySchema,
		ProvisionedThroughput: &dynamodb.ProvisionedThroughput{
			ReadCapacityUnits:  td.ProvisionedThroughput.ReadCapacityUnits,
			WriteCapacityUnits: td.ProvisionedThroughput.WriteCapacityUnits,
		},
		GlobalSecondaryIndexes: gsis,
	}
}

// read runs an idempotent request with retries and a timer.
func (s *Store) read(ctx context.Context, op string, f func(ctx context.Context) error) error {
	t := metrics.Time("dynamodb.request", map[string]string{"op": op}, 1.0)
	defer t.Done()
	_, err := s.retrier.RetryContext(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, f(ctx)
	})
	return store.Wrap(op, err)
}

// write runs a request once with a timer. Conditional writes are never
// retried.
func (s *Store) write(ctx context.Context, op string, f func(ctx context.Context) error) error {
	t := metrics.Time("dynamodb.request", map[string]string{"op": op}, 1.0)
	defer t.Done()
	return f(ctx)
}

// Transient reports whether err is a throttling error worth retrying.
func Transient(err error) bool {
	return isCode(err,
		dynamodb.ErrCodeProvisionedThroughputExceededException,
		dynamodb.ErrCodeRequestLimitExceeded,
		"ThrottlingException",
	) || store.Transient(err)
}

func isCode(err error, codes ...string) bool {
	aerr, ok := err.(awserr.Error)
	if !ok {
		return false
	}
	for _, c := range codes {
		if aerr.Code() == c {
			return true
		}
	}
	return false
}

// conditionFailed reports whether err is a failed condition, on a single
// write or inside a transaction.
func conditionFailed(err error) bool {
	if isCode(err, dynamodb.ErrCodeConditionalCheckFailedException) {
		return true
	}
	tce, ok := err.(*dynamodb.TransactionCanceledException)
	if !ok {
		return isCode(err, dynamodb.ErrCodeTransactionCanceledException)
	}
	for _, r := range tce.CancellationReasons {
		if aws.StringValue(r.Code) == "ConditionalCheckFailed" {
			return true
		}
	}
	return false
}
