package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/franksunye/FSOpsAssistant/internal/store"
)

// ErrDuplicatePending is returned by Save when a Pending task already exists
// for the same (logicalOrderId, type) pair, per spec.md §4.5's invariant.
// Callers are expected to check hasPending-style predicates first; this is
// the store's backstop, not the primary dedup mechanism.
var ErrDuplicatePending = errors.New("tasks: a pending task already exists for this logical id and type")

const logicalTypeIndex = "logical_type_index"

// Store persists NotificationTask rows keyed by a surrogate id, with a GSI
// on (logical_order_id, type) used for the dedup and cooldown lookups
// spec.md §4.5 and §4.7.3 require.
type Store struct {
	client *store.Client
	table  string
}

func NewStore(client *store.Client, table string) *Store {
	return &Store{client: client, table: table}
}

// Save inserts a new task. If it is Pending and an open Pending task already
// exists for (LogicalOrderID, Type), Save rejects it with ErrDuplicatePending.
func (s *Store) Save(ctx context.Context, t Task) (Task, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	if t.Status == StatusPending {
		existing, err := s.FindByLogicalIDAndType(ctx, t.LogicalOrderID, t.Type)
		if err != nil {
			return Task{}, fmt.Errorf("check existing pending: %w", err)
		}
		for _, e := range existing {
			if e.Status == StatusPending {
				return Task{}, ErrDuplicatePending
			}
		}
	}

	if err := s.client.ConditionalPut(ctx, s.table, t,
		"attribute_not_exists(id)", nil); err != nil {
		if errors.Is(err, store.ErrConditionFailed) {
			return Task{}, fmt.Errorf("task id collision: %w", err)
		}
		return Task{}, err
	}
	return t, nil
}

// UpdateStatus transitions a task's status. A Pending -> Failed transition
// increments RetryCount, per spec.md §4.5.
func (s *Store) UpdateStatus(ctx context.Context, id string, from, to Status, sentRunID string) error {
	setExpr := "SET #st = :to, updated_at = :ua"
	names := map[string]string{"#st": "status"}
	values := map[string]types.AttributeValue{
		":to": &types.AttributeValueMemberS{Value: string(to)},
		":ua": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		":from": &types.AttributeValueMemberS{Value: string(from)},
	}

	if from == StatusPending && to == StatusFailed {
		setExpr += " ADD retry_count :one"
		values[":one"] = &types.AttributeValueMemberN{Value: "1"}
	}
	if sentRunID != "" {
		setExpr += ", sent_run_id = :srid"
		values[":srid"] = &types.AttributeValueMemberS{Value: sentRunID}
	}

	return s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: id}},
		ConditionExpression:       aws.String("#st = :from"),
		UpdateExpression:          aws.String(setExpr),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
}

// UpdateMessage sets RenderedMessage the first time it's rendered; per
// spec.md §3 the field is never overwritten once non-null, so this only
// applies the write when the row's message is still empty.
func (s *Store) UpdateMessage(ctx context.Context, id, rendered string) error {
	return s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.table),
		Key:       map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: id}},
		ConditionExpression: aws.String(
			"attribute_not_exists(rendered_message) OR rendered_message = :empty"),
		UpdateExpression: aws.String("SET rendered_message = :msg, updated_at = :ua"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":msg":   &types.AttributeValueMemberS{Value: rendered},
			":empty": &types.AttributeValueMemberS{Value: ""},
			":ua":    &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
	})
}

// UpdateLastSent records the most recent successful send time.
func (s *Store) UpdateLastSent(ctx context.Context, id string, at time.Time) error {
	return s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.table),
		Key:       map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: id}},
		UpdateExpression: aws.String("SET last_sent_at = :lsa, updated_at = :ua"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":lsa": &types.AttributeValueMemberS{Value: at.UTC().Format(time.RFC3339Nano)},
			":ua":  &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
	})
}

// FindPending returns every task with status Pending.
func (s *Store) FindPending(ctx context.Context) ([]Task, error) {
	all, err := s.scanAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []Task
	for _, t := range all {
		if t.Status == StatusPending {
			out = append(out, t)
		}
	}
	return out, nil
}

// FindByLogicalIDAndType returns every row (any status) for the given key,
// most-recent first, via the logical_type_index GSI. Used for both dedup
// checks and the "latest row" cooldown check in spec.md §4.7.3.
func (s *Store) FindByLogicalIDAndType(ctx context.Context, logicalOrderID string, typ Type) ([]Task, error) {
	res, err := s.client.DB.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		IndexName:              aws.String(logicalTypeIndex),
		KeyConditionExpression: aws.String("logical_order_id = :loid AND #tp = :tp"),
		ExpressionAttributeNames: map[string]string{
			"#tp": "type",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":loid": &types.AttributeValueMemberS{Value: logicalOrderID},
			":tp":   &types.AttributeValueMemberS{Value: string(typ)},
		},
	})
	if err != nil {
		return nil, err
	}

	var out []Task
	if err := attributevalue.UnmarshalListOfMaps(res.Items, &out); err != nil {
		return nil, err
	}
	migrateLegacyTypes(out)
	sortByUpdatedAtDesc(out)
	return out, nil
}

// FindOpenTasksForOrgAndType returns every non-terminal (Pending or Failed)
// task for an organization and type — the general form behind
// FindOpenReminderTasksForOrg and the escalation-cleanup query in §4.7.1.
func (s *Store) FindOpenTasksForOrgAndType(ctx context.Context, orgName string, typ Type) ([]Task, error) {
	all, err := s.scanAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []Task
	for _, t := range all {
		if t.OrgName == orgName && t.Type == typ && (t.Status == StatusPending || t.Status == StatusFailed) {
			out = append(out, t)
		}
	}
	return out, nil
}

// FindOpenReminderTasksForOrg matches spec.md §4.5's named operation.
func (s *Store) FindOpenReminderTasksForOrg(ctx context.Context, orgName string) ([]Task, error) {
	return s.FindOpenTasksForOrgAndType(ctx, orgName, TypeReminder)
}

// FindOpenEscalationTasksForOrg supports the §4.7.1 step 5 cleanup: it
// returns open escalation tasks for the org whose logical id is NOT the
// canonical per-org escalation id (i.e. legacy per-order rows).
func (s *Store) FindOpenEscalationTasksForOrg(ctx context.Context, orgName string) ([]Task, error) {
	all, err := s.FindOpenTasksForOrgAndType(ctx, orgName, TypeEscalation)
	if err != nil {
		return nil, err
	}
	canonical := EscalationLogicalID(orgName)
	var stale []Task
	for _, t := range all {
		if t.LogicalOrderID != canonical {
			stale = append(stale, t)
		}
	}
	return stale, nil
}

// FindAll returns every task row, for the read-only admin surface.
func (s *Store) FindAll(ctx context.Context) ([]Task, error) {
	return s.scanAll(ctx)
}

func (s *Store) scanAll(ctx context.Context) ([]Task, error) {
	var out []Task
	if err := s.client.ScanAll(ctx, s.table, &out); err != nil {
		return nil, err
	}
	migrateLegacyTypes(out)
	return out, nil
}

func sortByUpdatedAtDesc(tasks []Task) {
	for i := 1; i < len(tasks); i++ {
		for j := i; j > 0 && tasks[j].UpdatedAt.After(tasks[j-1].UpdatedAt); j-- {
			tasks[j], tasks[j-1] = tasks[j-1], tasks[j]
		}
	}
}

// migrateLegacyTypes rewrites the pre-rename "violation"/"standard" type
// strings the original Python codebase used, in place, at read time — a
// one-way migration per spec.md §9 that never persists the alias back.
func migrateLegacyTypes(tasks []Task) {
	for i := range tasks {
		switch tasks[i].Type {
		case "violation":
			tasks[i].Type = TypeEscalation
		case "standard":
			tasks[i].Type = TypeReminder
		}
	}
}
