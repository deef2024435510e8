package mapping

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/syncline/ordersync/internal/awsx"
	"github.com/syncline/ordersync/internal/events"
)

// Store encapsulates order mapping operations against DynamoDB.
// It is the single source of truth for "does a sink order already exist for
// this source order" and is consulted before any create call.
type Store struct {
	client    awsx.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore returns a configured Store.
func NewStore(client awsx.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

// Get retrieves the mapping for a source order. If none exists, returns (nil, nil).
func (s *Store) Get(ctx context.Context, sourceOrderID string) (*Record, error) {
	input := &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"source_order_id": &types.AttributeValueMemberS{Value: sourceOrderID},
		},
	}
	out, err := s.client.GetItem(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec Record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	return &rec, nil
}

// Put upserts the mapping row, recording the sink id and the last applied
// sync state. The sink id of an existing row is overwritten only with the
// same or a newly learned value; callers guarantee one sink order per source
// order via the per-order lock.
func (s *Store) Put(ctx context.Context, sourceOrderID, sinkOrderID string, state events.SyncState) error {
	now := s.nowFunc()
	input := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"source_order_id": &types.AttributeValueMemberS{Value: sourceOrderID},
		},
		UpdateExpression: awsString("SET sink_order_id = :sid, last_sync_state = :st, updated_at = :ua"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":sid": &types.AttributeValueMemberS{Value: sinkOrderID},
			":st":  &types.AttributeValueMemberS{Value: string(state)},
			":ua":  &types.AttributeValueMemberS{Value: now.UTC().Format(time.RFC3339)},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	}
	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		return fmt.Errorf("update item (put mapping): %w", err)
	}
	return nil
}

func awsString(s string) *string { return &s }
