package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"github.com/syncline/ordersync/internal/awsx"
	"github.com/syncline/ordersync/internal/events"
)

// stateIndex is the GSI over queue_state (partition) and created_at (sort).
const stateIndex = "queue-state-index"

// Store encapsulates retry queue operations against DynamoDB.
type Store struct {
	client      awsx.DynamoDBAPI
	tableName   string
	maxAttempts int
	nowFunc     func() time.Time
	idFunc      func() string
}

// NewStore returns a configured Store. maxAttempts is the retry ceiling:
// a row whose attempts reach it moves to the FAILED partition and is never
// fetched for processing again.
func NewStore(client awsx.DynamoDBAPI, tableName string, maxAttempts int) *Store {
	return &Store{
		client:      client,
		tableName:   tableName,
		maxAttempts: maxAttempts,
		nowFunc:     time.Now,
		idFunc:      uuid.NewString,
	}
}

// Enqueue durably records a new synchronization request and returns its id.
func (s *Store) Enqueue(ctx context.Context, sourceOrderID, eventType string, cls events.Classification, payload []byte) (string, error) {
	row := Row{
		ID:             s.idFunc(),
		SourceOrderID:  sourceOrderID,
		EventType:      eventType,
		SyncState:      cls.Sync,
		FinancialState: cls.Financial,
		Payload:        string(payload),
		CreatedAt:      s.nowFunc().UTC(),
		Attempts:       0,
		QueueState:     StatePending,
	}

	item, err := attributevalue.MarshalMap(row)
	if err != nil {
		return "", fmt.Errorf("marshal row: %w", err)
	}

	input := &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(id)"),
	}
	if _, err := s.client.PutItem(ctx, input); err != nil {
		return "", fmt.Errorf("put item: %w", err)
	}
	return row.ID, nil
}

// FetchPending returns up to limit unprocessed rows, oldest first.
func (s *Store) FetchPending(ctx context.Context, limit int) ([]Row, error) {
	lim := int32(limit)
	input := &dyn.QueryInput{
		TableName:              &s.tableName,
		IndexName:              awsString(stateIndex),
		KeyConditionExpression: awsString("queue_state = :st"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":st": &types.AttributeValueMemberS{Value: StatePending},
		},
		Limit: &lim,
	}
	out, err := s.client.Query(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("query pending: %w", err)
	}

	rows := make([]Row, 0, len(out.Items))
	for _, item := range out.Items {
		var r Row
		if err := attributevalue.UnmarshalMap(item, &r); err != nil {
			return nil, fmt.Errorf("unmarshal row: %w", err)
		}
		rows = append(rows, r)
	}
	return rows, nil
}

// ListFailed returns up to limit permanently failed rows for operator inspection.
func (s *Store) ListFailed(ctx context.Context, limit int) ([]Row, error) {
	lim := int32(limit)
	forward := false
	input := &dyn.QueryInput{
		TableName:              &s.tableName,
		IndexName:              awsString(stateIndex),
		KeyConditionExpression: awsString("queue_state = :st"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":st": &types.AttributeValueMemberS{Value: StateFailed},
		},
		Limit:            &lim,
		ScanIndexForward: &forward,
	}
	out, err := s.client.Query(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("query failed rows: %w", err)
	}

	rows := make([]Row, 0, len(out.Items))
	for _, item := range out.Items {
		var r Row
		if err := attributevalue.UnmarshalMap(item, &r); err != nil {
			return nil, fmt.Errorf("unmarshal row: %w", err)
		}
		rows = append(rows, r)
	}
	return rows, nil
}

// MarkProcessed records a successful outcome: processed_at is set, any
// previous error is cleared, and the row leaves the pending index.
func (s *Store) MarkProcessed(ctx context.Context, id string) error {
	now := s.nowFunc()
	input := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
		UpdateExpression: awsString("SET processed_at = :pa REMOVE queue_state, last_error"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pa": &types.AttributeValueMemberS{Value: now.UTC().Format(time.RFC3339)},
		},
		ConditionExpression: awsString("attribute_exists(id)"),
	}
	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		return fmt.Errorf("update item (mark processed): %w", err)
	}
	return nil
}

// RecordFailure increments the attempt counter in place and stores the error.
// When the counter reaches the ceiling the row moves to the FAILED partition.
// Returns whether the row is now permanently failed.
func (s *Store) RecordFailure(ctx context.Context, id, errMsg string) (bool, error) {
	input := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
		UpdateExpression: awsString("SET attempts = if_not_exists(attempts, :zero) + :inc, last_error = :le"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":zero": &types.AttributeValueMemberN{Value: "0"},
			":inc":  &types.AttributeValueMemberN{Value: "1"},
			":le":   &types.AttributeValueMemberS{Value: errMsg},
		},
		ConditionExpression: awsString("attribute_exists(id)"),
		ReturnValues:        types.ReturnValueAllNew,
	}
	out, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		return false, fmt.Errorf("update item (record failure): %w", err)
	}

	var updated Row
	if err := attributevalue.UnmarshalMap(out.Attributes, &updated); err != nil {
		return false, fmt.Errorf("unmarshal updated row: %w", err)
	}
	if updated.Attempts < s.maxAttempts {
		return false, nil
	}

	// Ceiling reached: retire the row from the pending index.
	retire := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
		UpdateExpression: awsString("SET queue_state = :st"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":st": &types.AttributeValueMemberS{Value: StateFailed},
		},
	}
	if _, err := s.client.UpdateItem(ctx, retire); err != nil {
		return true, fmt.Errorf("update item (retire row): %w", err)
	}
	return true, nil
}

// IsConditionalFailure reports whether err is a DynamoDB conditional check failure.
func IsConditionalFailure(err error) bool {
	var cf *types.ConditionalCheckFailedException
	if errors.As(err, &cf) {
		return true
	}
	var sc smithy.APIError
	return errors.As(err, &sc) && sc.ErrorCode() == "ConditionalCheckFailedException"
}

func awsString(s string) *string { return &s }
