package datasync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/franksunye/FSOpsAssistant/internal/agenterr"
	"github.com/franksunye/FSOpsAssistant/internal/opportunity"
	"github.com/franksunye/FSOpsAssistant/internal/store"
)

type fakeFetcher struct {
	opps []RawOpportunity
	err  error
}

func (f *fakeFetcher) Fetch(ctx context.Context) ([]RawOpportunity, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.opps, nil
}

// fakeCache is an in-memory stand-in for *cache, letting strategy tests
// exercise the fetch-fails/cache-fallback branches without a real DynamoDB
// table behind them.
type fakeCache struct {
	rows        []opportunity.Opportunity
	allErr      error
	refreshErr  error
	refreshCall int
}

func (f *fakeCache) all(ctx context.Context) ([]opportunity.Opportunity, error) {
	if f.allErr != nil {
		return nil, f.allErr
	}
	return f.rows, nil
}

func (f *fakeCache) fullRefresh(ctx context.Context, opps []opportunity.Opportunity) (int, int, error) {
	f.refreshCall++
	if f.refreshErr != nil {
		return 0, 0, f.refreshErr
	}
	deleted := len(f.rows)
	f.rows = opps
	return deleted, len(opps), nil
}

func (f *fakeCache) count(ctx context.Context) (int, error) {
	return len(f.rows), nil
}

func newTestStrategy(f Fetcher) *Strategy {
	return NewStrategy(f, &store.Client{}, "opportunity_cache", zap.NewNop())
}

func sampleRaw(orderNum, status string) RawOpportunity {
	ct := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	return RawOpportunity{
		OrderNum:    orderNum,
		Name:        "customer",
		OrgName:     "org-a",
		CreateTime:  &ct,
		OrderStatus: status,
	}
}

func TestMapRawSkipsMissingCreateTime(t *testing.T) {
	log := zap.NewNop()
	_, ok := mapRaw(RawOpportunity{OrderNum: "1"}, log)
	assert.False(t, ok)
}

func TestMapRawSkipsEmptyOrderNum(t *testing.T) {
	log := zap.NewNop()
	ct := time.Now()
	_, ok := mapRaw(RawOpportunity{OrderNum: "", CreateTime: &ct}, log)
	assert.False(t, ok)
}

func TestMapRawMapsFields(t *testing.T) {
	log := zap.NewNop()
	o, ok := mapRaw(sampleRaw("ORD-1", "1"), log)
	require.True(t, ok)
	assert.Equal(t, "ORD-1", o.OrderNum)
	assert.Equal(t, "org-a", o.OrgName)
}

func TestNewStrategyWrapsFetcherAndCache(t *testing.T) {
	f := &fakeFetcher{opps: []RawOpportunity{sampleRaw("ORD-1", "1")}}
	s := newTestStrategy(f)
	require.NotNil(t, s)
	assert.Equal(t, f, s.fetcher)
	assert.NotNil(t, s.cache)
}

func TestGetOpportunitiesFallsBackToCacheAndRecordsFetchError(t *testing.T) {
	cached := []opportunity.Opportunity{{OrderNum: "ORD-CACHED"}}
	s := &Strategy{
		fetcher: &fakeFetcher{err: assert.AnError},
		cache:   &fakeCache{rows: cached},
		log:     zap.NewNop(),
	}

	got, err := s.GetOpportunities(context.Background(), false)

	require.Error(t, err)
	var agentErr *agenterr.Error
	require.ErrorAs(t, err, &agentErr)
	assert.Equal(t, agenterr.KindFetch, agentErr.Kind)
	assert.Equal(t, cached, got)
}

func TestGetOpportunitiesReturnsErrorWhenFetchFailsAndCacheEmpty(t *testing.T) {
	s := &Strategy{
		fetcher: &fakeFetcher{err: assert.AnError},
		cache:   &fakeCache{},
		log:     zap.NewNop(),
	}

	got, err := s.GetOpportunities(context.Background(), false)

	require.Error(t, err)
	assert.Empty(t, got)
}

func TestGetOpportunitiesRefreshesCacheOnSuccessfulFetch(t *testing.T) {
	fc := &fakeCache{}
	s := &Strategy{
		fetcher: &fakeFetcher{opps: []RawOpportunity{sampleRaw("ORD-1", "PendingAppointment")}},
		cache:   fc,
		log:     zap.NewNop(),
	}

	got, err := s.GetOpportunities(context.Background(), false)

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1, fc.refreshCall)
}
