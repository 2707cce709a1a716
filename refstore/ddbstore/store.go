// Package ddbstore persists reference tables in Amazon DynamoDB, one item
// per table keyed by name.
//
// A table's rows live inside its item, so a table is bounded by DynamoDB's
// item size limit. That is plenty for reference data, which is small by
// nature.
package ddbstore

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/philippfrenzel/msfabric-mapping-etk-sub000/errs"
	"github.com/philippfrenzel/msfabric-mapping-etk-sub000/refstore"
	"github.com/philippfrenzel/msfabric-mapping-etk-sub000/table"
	"github.com/rs/zerolog"
)

// Client is the subset of the AWS SDK v2 *dynamodb.Client the store uses.
type Client interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

var _ Client = (*dynamodb.Client)(nil)

// Store is a refstore.Storage on a DynamoDB table whose partition key is
// the string attribute "name".
type Store struct {
	refstore.Locks

	client    Client
	tableName string
	now       refstore.Clock
	log       zerolog.Logger
}

var (
	_ refstore.Storage     = (*Store)(nil)
	_ refstore.TableLocker = (*Store)(nil)
	_ refstore.Creator     = (*Store)(nil)
)

type Option func(*Store)

func WithClock(now refstore.Clock) Option {
	return func(s *Store) { s.now = now }
}

func WithLogger(log zerolog.Logger) Option {
	return func(s *Store) { s.log = log }
}

func New(client Client, tableName string, opts ...Option) (*Store, error) {
	if client == nil {
		return nil, errs.InvalidArgument("dynamodb store", "client", "is nil")
	}
	if tableName == "" {
		return nil, errs.InvalidArgument("dynamodb store", "table name", "is empty")
	}
	s := &Store{
		client:    client,
		tableName: tableName,
		now:       refstore.UTCNow,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func keyOf(name string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		KeyAttribute: &types.AttributeValueMemberS{Value: name},
	}
}

func (s *Store) GetReferenceTable(ctx context.Context, name string) (*table.ReferenceTable, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &s.tableName,
		Key:            keyOf(name),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb store: get reference table %q: %w", name, err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var it item
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, fmt.Errorf("dynamodb store: unmarshal reference table %q: %w", name, err)
	}
	return it.table(), nil
}

func (s *Store) SaveReferenceTable(ctx context.Context, t *table.ReferenceTable) error {
	return s.put(ctx, "dynamodb store: save reference table", t, nil)
}

// CreateReferenceTable writes t only if no table with its name exists.
func (s *Store) CreateReferenceTable(ctx context.Context, t *table.ReferenceTable) error {
	cond := expression.AttributeNotExists(expression.Name(KeyAttribute))
	return s.put(ctx, "dynamodb store: create reference table", t, &cond)
}

func (s *Store) put(ctx context.Context, op string, t *table.ReferenceTable, cond *expression.ConditionBuilder) error {
	if err := refstore.CheckSave(op, t); err != nil {
		return err
	}
	t.UpdatedAt = s.now()

	av, err := attributevalue.MarshalMap(itemOf(t))
	if err != nil {
		return fmt.Errorf("%s %q: marshal: %w", op, t.Name, err)
	}
	in := &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      av,
	}
	if cond != nil {
		expr, err := expression.NewBuilder().WithCondition(*cond).Build()
		if err != nil {
			return fmt.Errorf("%s: build condition: %w", op, err)
		}
		in.ConditionExpression = expr.Condition()
		in.ExpressionAttributeNames = expr.Names()
		in.ExpressionAttributeValues = expr.Values()
	}

	if _, err := s.client.PutItem(ctx, in); err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return errs.TableExists(op, t.Name)
		}
		return fmt.Errorf("%s %q: %w", op, t.Name, err)
	}
	s.log.Debug().Str("table", t.Name).Int("rows", len(t.Rows)).Msg("put reference table item")
	return nil
}

func (s *Store) DeleteReferenceTable(ctx context.Context, name string) (bool, error) {
	out, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:    &s.tableName,
		Key:          keyOf(name),
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return false, fmt.Errorf("dynamodb store: delete reference table %q: %w", name, err)
	}
	return len(out.Attributes) > 0, nil
}

// GetAllTableNames scans the table projecting only the key attribute.
func (s *Store) GetAllTableNames(ctx context.Context) ([]string, error) {
	expr, err := expression.NewBuilder().
		WithProjection(expression.NamesList(expression.Name(KeyAttribute))).
		Build()
	if err != nil {
		return nil, fmt.Errorf("dynamodb store: build projection: %w", err)
	}

	names := []string{}
	p := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName:                &s.tableName,
		ProjectionExpression:     expr.Projection(),
		ExpressionAttributeNames: expr.Names(),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("dynamodb store: list tables: %w", err)
		}
		for _, av := range page.Items {
			var key struct {
				Name string `dynamodbav:"name"`
			}
			if err := attributevalue.UnmarshalMap(av, &key); err != nil {
				return nil, fmt.Errorf("dynamodb store: list tables: %w", err)
			}
			names = append(names, key.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) TableExists(ctx context.Context, name string) (bool, error) {
	expr, err := expression.NewBuilder().
		WithProjection(expression.NamesList(expression.Name(KeyAttribute))).
		Build()
	if err != nil {
		return false, fmt.Errorf("dynamodb store: build projection: %w", err)
	}
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:                &s.tableName,
		Key:                      keyOf(name),
		ProjectionExpression:     expr.Projection(),
		ExpressionAttributeNames: expr.Names(),
		ConsistentRead:           aws.Bool(true),
	})
	if err != nil {
		return false, fmt.Errorf("dynamodb store: table exists %q: %w", name, err)
	}
	return len(out.Item) > 0, nil
}
