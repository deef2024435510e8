package queue

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// simpleMock is a small in-memory stand-in for the DynamoDB calls the queue
// store issues. It interprets only the exact expressions the store builds.
type simpleMock struct {
	mu    sync.Mutex
	table map[string]map[string]types.AttributeValue
}

func newSimpleMock() *simpleMock {
	return &simpleMock{
		table: map[string]map[string]types.AttributeValue{},
	}
}

func (m *simpleMock) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := params.Key["id"].(*types.AttributeValueMemberS).Value
	item, ok := m.table[k]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (m *simpleMock) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keyAttr := params.Item["id"]
	if keyAttr == nil {
		return nil, errors.New("missing id")
	}
	k := keyAttr.(*types.AttributeValueMemberS).Value
	if params.ConditionExpression != nil && *params.ConditionExpression == "attribute_not_exists(id)" {
		if _, exists := m.table[k]; exists {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	m.table[k] = params.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *simpleMock) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := params.Key["id"].(*types.AttributeValueMemberS).Value
	item, exists := m.table[k]
	if !exists {
		if params.ConditionExpression != nil && *params.ConditionExpression == "attribute_exists(id)" {
			return nil, &types.ConditionalCheckFailedException{}
		}
		item = map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: k},
		}
	}

	expr := ""
	if params.UpdateExpression != nil {
		expr = *params.UpdateExpression
	}

	if strings.Contains(expr, "attempts = if_not_exists(attempts, :zero) + :inc") {
		current := 0
		if v, ok := item["attempts"].(*types.AttributeValueMemberN); ok {
			current, _ = strconv.Atoi(v.Value)
		}
		item["attempts"] = &types.AttributeValueMemberN{Value: strconv.Itoa(current + 1)}
	}
	if v, ok := params.ExpressionAttributeValues[":le"]; ok {
		item["last_error"] = v
	}
	if v, ok := params.ExpressionAttributeValues[":pa"]; ok {
		item["processed_at"] = v
	}
	if v, ok := params.ExpressionAttributeValues[":st"]; ok {
		item["queue_state"] = v
	}
	if strings.Contains(expr, "REMOVE queue_state") {
		delete(item, "queue_state")
		delete(item, "last_error")
	}

	m.table[k] = item
	return &dyn.UpdateItemOutput{Attributes: item}, nil
}

func (m *simpleMock) Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := params.ExpressionAttributeValues[":st"].(*types.AttributeValueMemberS).Value

	var matches []map[string]types.AttributeValue
	for _, item := range m.table {
		if st, ok := item["queue_state"].(*types.AttributeValueMemberS); ok && st.Value == want {
			matches = append(matches, item)
		}
	}

	createdAt := func(item map[string]types.AttributeValue) string {
		if v, ok := item["created_at"].(*types.AttributeValueMemberS); ok {
			return v.Value
		}
		return ""
	}
	ascending := params.ScanIndexForward == nil || *params.ScanIndexForward
	sort.Slice(matches, func(i, j int) bool {
		if ascending {
			return createdAt(matches[i]) < createdAt(matches[j])
		}
		return createdAt(matches[i]) > createdAt(matches[j])
	})

	if params.Limit != nil && len(matches) > int(*params.Limit) {
		matches = matches[:int(*params.Limit)]
	}
	return &dyn.QueryOutput{Items: matches}, nil
}
