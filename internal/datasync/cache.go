package datasync

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/franksunye/FSOpsAssistant/internal/opportunity"
	"github.com/franksunye/FSOpsAssistant/internal/store"
)

// cacheRow is the opportunity_cache table's logical schema from spec.md
// §6.3, trimmed to the fields the cache actually needs to reload an
// Opportunity on fallback.
type cacheRow struct {
	OrderNum       string    `dynamodbav:"order_num"`
	CustomerName   string    `dynamodbav:"customer_name"`
	Address        string    `dynamodbav:"address"`
	SupervisorName string    `dynamodbav:"supervisor_name"`
	OrgName        string    `dynamodbav:"org_name"`
	CreateTime     time.Time `dynamodbav:"create_time"`
	Status         string    `dynamodbav:"status"`
	SourceHash     string    `dynamodbav:"source_hash"`
	LastUpdated    time.Time `dynamodbav:"last_updated"`
	CacheVersion   int       `dynamodbav:"cache_version"`
}

func toCacheRow(o opportunity.Opportunity, version int) cacheRow {
	return cacheRow{
		OrderNum:       o.OrderNum,
		CustomerName:   o.CustomerName,
		Address:        o.Address,
		SupervisorName: o.SupervisorName,
		OrgName:        o.OrgName,
		CreateTime:     o.CreateTime,
		Status:         string(o.OrderStatus),
		SourceHash:     o.SourceHash(),
		LastUpdated:    time.Now(),
		CacheVersion:   version,
	}
}

func fromCacheRow(r cacheRow) opportunity.Opportunity {
	return opportunity.Opportunity{
		OrderNum:       r.OrderNum,
		CustomerName:   r.CustomerName,
		Address:        r.Address,
		SupervisorName: r.SupervisorName,
		OrgName:        r.OrgName,
		CreateTime:     r.CreateTime,
		OrderStatus:    opportunity.Status(r.Status),
	}
}

// cache is the disposable opportunity_cache table: a full-refresh cache
// whose authority ends at the next successful fetch, per spec.md §4.3.
type cache struct {
	client  *store.Client
	table   string
	version int
}

func newCache(client *store.Client, table string) *cache {
	return &cache{client: client, table: table}
}

// fullRefresh replaces every cached row with the monitored subset of opps in
// one DynamoDB transaction (chunked at the API's 100-action cap — see
// store.TransactWriteChunked), so a reader hitting all() mid-refresh never
// observes a partially-emptied or partially-repopulated table: within a
// chunk the delete and put actions either all land or none do.
func (c *cache) fullRefresh(ctx context.Context, opps []opportunity.Opportunity) (deleted, inserted int, err error) {
	existingKeys, err := c.client.ScanKeys(ctx, c.table, "order_num")
	if err != nil {
		return 0, 0, err
	}

	c.version++

	items := make([]types.TransactWriteItem, 0, len(existingKeys)+len(opps))
	for _, key := range existingKeys {
		items = append(items, types.TransactWriteItem{
			Delete: &types.Delete{
				TableName: aws.String(c.table),
				Key:       map[string]types.AttributeValue{"order_num": key["order_num"]},
			},
		})
	}
	deleted = len(existingKeys)

	for _, o := range opps {
		if !o.OrderStatus.Monitored() || o.CreateTime.IsZero() {
			continue
		}
		item, err := attributevalue.MarshalMap(toCacheRow(o, c.version))
		if err != nil {
			return deleted, inserted, fmt.Errorf("marshal cache row: %w", err)
		}
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName: aws.String(c.table),
				Item:      item,
			},
		})
		inserted++
	}

	if err := c.client.TransactWriteChunked(ctx, items); err != nil {
		return deleted, inserted, err
	}
	return deleted, inserted, nil
}

func (c *cache) all(ctx context.Context) ([]opportunity.Opportunity, error) {
	var rows []cacheRow
	if err := c.client.ScanAll(ctx, c.table, &rows); err != nil {
		return nil, err
	}
	out := make([]opportunity.Opportunity, 0, len(rows))
	for _, r := range rows {
		out = append(out, fromCacheRow(r))
	}
	return out, nil
}

func (c *cache) count(ctx context.Context) (int, error) {
	rows, err := c.all(ctx)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}
