package datasync

import (
	"context"
	"time"
)

// RawOpportunity is the shape returned by the external analytics source,
// per spec.md §6.1.
type RawOpportunity struct {
	OrderNum       string
	Name           string
	Address        string
	SupervisorName string
	OrgName        string
	CreateTime     *time.Time // nil means the source omitted it
	OrderStatus    string
}

// Fetcher is the read-only external collaborator spec.md §6.1 names
// OpportunityFetcher: everything upstream of it is out of this module's
// scope, treated purely as an interface.
type Fetcher interface {
	Fetch(ctx context.Context) ([]RawOpportunity, error)
}
