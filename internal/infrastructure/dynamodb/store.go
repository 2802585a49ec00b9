package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

var ErrInvalidConfig = errors.New("invalid dynamodb store config")

// API is the subset of the DynamoDB client used by the store
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// item is the table layout. expires_at doubles as the table's TTL attribute;
// DynamoDB deletes expired items lazily so reads still check it.
type item struct {
	Key       string `dynamodbav:"key"`
	Content   []byte `dynamodbav:"content,omitempty"`
	Count     *int64 `dynamodbav:"count,omitempty"`
	ExpiresAt int64  `dynamodbav:"expires_at,omitempty"`
}

// Store implements the key-value store on a single DynamoDB table keyed by "key"
type Store struct {
	client API
	table  string
	now    func() time.Time
}

// New validates the client and table name and returns a store
func New(client API, table string) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: nil client", ErrInvalidConfig)
	}
	if table == "" {
		return nil, fmt.Errorf("%w: empty table name", ErrInvalidConfig)
	}

	return &Store{
		client: client,
		table:  table,
		now:    time.Now,
	}, nil
}

func (s *Store) keyAttr(k string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"key": &types.AttributeValueMemberS{Value: k},
	}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	output, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		Key:            s.keyAttr(key),
		ConsistentRead: aws.Bool(true),
		TableName:      aws.String(s.table),
	})
	if err != nil {
		return nil, false, fmt.Errorf("dynamodb get failed: %w", err)
	}

	if output.Item == nil {
		return nil, false, nil
	}

	var it item
	if err := attributevalue.UnmarshalMap(output.Item, &it); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal item: %w", err)
	}

	if it.ExpiresAt != 0 && s.now().Unix() >= it.ExpiresAt {
		return nil, false, nil
	}

	if it.Content == nil && it.Count != nil {
		return []byte(strconv.FormatInt(*it.Count, 10)), true, nil
	}

	return it.Content, true, nil
}

func (s *Store) SetWithExpiry(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	av, err := attributevalue.MarshalMap(item{
		Key:       key,
		Content:   value,
		ExpiresAt: s.now().Add(ttl).Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}

	// omitempty drops a zero-length page; store it explicitly
	if len(value) == 0 {
		av["content"] = &types.AttributeValueMemberB{Value: []byte{}}
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("dynamodb put failed: %w", err)
	}

	return nil
}

func (s *Store) Incr(ctx context.Context, key string) (int64, error) {
	output, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(s.table),
		Key:              s.keyAttr(key),
		UpdateExpression: aws.String("ADD #count :one"),
		ExpressionAttributeNames: map[string]string{
			"#count": "count",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, fmt.Errorf("dynamodb update failed: %w", err)
	}

	var n int64
	if err := attributevalue.Unmarshal(output.Attributes["count"], &n); err != nil {
		return 0, fmt.Errorf("failed to unmarshal counter: %w", err)
	}

	return n, nil
}

func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.table),
	})
	if err != nil {
		return fmt.Errorf("dynamodb describe table failed: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return nil
}
