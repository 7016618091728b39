// Package store wires the shared DynamoDB client used by every durable
// component (opportunity cache, notification tasks, runs/steps, group and
// system config). It generalizes the teacher's internal/store/dynamo.go,
// which opened one client bound to one fixed table; here every table shares
// one client and callers supply their own table name and item shape.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Client wraps a DynamoDB client along with the endpoint/region resolution
// the teacher's store package performed inline in NewDynamoStore.
type Client struct {
	DB *dynamodb.Client
}

// NewClient loads AWS config from the environment (region defaults to
// us-east-2, same as the teacher) and honors DYNAMO_ENDPOINT for pointing at
// a local DynamoDB for tests/dev, exactly like the teacher did.
func NewClient(ctx context.Context) (*Client, error) {
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "us-east-2"
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := os.Getenv("DYNAMO_ENDPOINT")
	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	return &Client{DB: client}, nil
}

// ErrConditionFailed is returned by ConditionalPut/UpdateItem when the
// DynamoDB condition expression rejects the write — the caller's signal that
// somebody else already holds the row (a Pending task, an in-progress claim).
var ErrConditionFailed = errors.New("store: condition check failed")

// Put marshals v and writes it unconditionally to table.
func (c *Client) Put(ctx context.Context, table string, v any) error {
	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		return fmt.Errorf("marshal item: %w", err)
	}
	_, err = c.DB.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(table),
		Item:      item,
	})
	return err
}

// ConditionalPut writes v only if condition holds; ErrConditionFailed is
// returned when the condition is not met.
func (c *Client) ConditionalPut(ctx context.Context, table string, v any, condition string, values map[string]types.AttributeValue) error {
	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		return fmt.Errorf("marshal item: %w", err)
	}
	_, err = c.DB.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(table),
		Item:                      item,
		ConditionExpression:       aws.String(condition),
		ExpressionAttributeValues: values,
	})
	if err != nil {
		var cfe *types.ConditionalCheckFailedException
		if errors.As(err, &cfe) {
			return ErrConditionFailed
		}
		return err
	}
	return nil
}

// GetByKey fetches a single item by primary key and unmarshals into out
// (a pointer). Returns (false, nil) if no item exists.
func (c *Client) GetByKey(ctx context.Context, table string, key map[string]types.AttributeValue, out any) (bool, error) {
	res, err := c.DB.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(table),
		Key:       key,
	})
	if err != nil {
		return false, err
	}
	if res.Item == nil {
		return false, nil
	}
	if err := attributevalue.UnmarshalMap(res.Item, out); err != nil {
		return false, fmt.Errorf("unmarshal item: %w", err)
	}
	return true, nil
}

// GetByKeyAttr is GetByKey's convenience form for the common case of a
// single string partition key.
func (c *Client) GetByKeyAttr(ctx context.Context, table, keyAttr, keyVal string, out any) (bool, error) {
	return c.GetByKey(ctx, table, map[string]types.AttributeValue{
		keyAttr: &types.AttributeValueMemberS{Value: keyVal},
	}, out)
}

// UpdateItem is a thin passthrough to the SDK's UpdateItem, translating a
// conditional-check failure into ErrConditionFailed like ConditionalPut.
func (c *Client) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput) error {
	_, err := c.DB.UpdateItem(ctx, in)
	if err != nil {
		var cfe *types.ConditionalCheckFailedException
		if errors.As(err, &cfe) {
			return ErrConditionFailed
		}
		return err
	}
	return nil
}

// ScanAll pages through the entire table (used by full-refresh caches and
// admin listing, both small tables by design) and unmarshals into outSlice,
// a pointer to a slice of the item type.
func (c *Client) ScanAll(ctx context.Context, table string, outSlice any) error {
	var items []map[string]types.AttributeValue
	var startKey map[string]types.AttributeValue

	for {
		res, err := c.DB.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(table),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return err
		}
		items = append(items, res.Items...)
		if res.LastEvaluatedKey == nil {
			break
		}
		startKey = res.LastEvaluatedKey
	}

	return attributevalue.UnmarshalListOfMaps(items, outSlice)
}


func (c *Client) scanKeysOnly(ctx context.Context, table, keyAttr string, out *[]map[string]types.AttributeValue) error {
	var startKey map[string]types.AttributeValue
	for {
		res, err := c.DB.Scan(ctx, &dynamodb.ScanInput{
			TableName:            aws.String(table),
			ProjectionExpression: aws.String(keyAttr),
			ExclusiveStartKey:    startKey,
		})
		if err != nil {
			return err
		}
		*out = append(*out, res.Items...)
		if res.LastEvaluatedKey == nil {
			break
		}
		startKey = res.LastEvaluatedKey
	}
	return nil
}

// ScanKeys returns every value of keyAttr currently in table, for callers
// that need to build delete actions without paying for a full item scan.
func (c *Client) ScanKeys(ctx context.Context, table, keyAttr string) ([]map[string]types.AttributeValue, error) {
	var items []map[string]types.AttributeValue
	if err := c.scanKeysOnly(ctx, table, keyAttr, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// transactWriteCap is DynamoDB's hard limit on actions per TransactWriteItems
// call.
const transactWriteCap = 100

// TransactWriteChunked executes items as a sequence of DynamoDB transactions,
// each up to transactWriteCap actions. Every chunk commits atomically, but a
// caller writing more than transactWriteCap items only gets atomicity within
// each chunk, not across the whole call — callers at that scale should keep
// this in mind (see internal/datasync/cache.go's fullRefresh).
func (c *Client) TransactWriteChunked(ctx context.Context, items []types.TransactWriteItem) error {
	for start := 0; start < len(items); start += transactWriteCap {
		end := start + transactWriteCap
		if end > len(items) {
			end = len(items)
		}
		if _, err := c.DB.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems: items[start:end],
		}); err != nil {
			return fmt.Errorf("transact write items[%d:%d]: %w", start, end, err)
		}
	}
	return nil
}
