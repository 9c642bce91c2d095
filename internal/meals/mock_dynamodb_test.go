package meals

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// mockDynamo is an in-memory meals table supporting the expressions Store issues.
// pageSize > 0 makes Query paginate.
type mockDynamo struct {
	mu          sync.Mutex
	items       map[string]map[string]types.AttributeValue
	pageSize    int
	putCalls    int
	updateCalls int
	failWrites  error
}

func newMockDynamo() *mockDynamo {
	return &mockDynamo{items: map[string]map[string]types.AttributeValue{}}
}

func str(av types.AttributeValue) string {
	if s, ok := av.(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func num(av types.AttributeValue) int64 {
	if n, ok := av.(*types.AttributeValueMemberN); ok {
		v, _ := strconv.ParseInt(n.Value, 10, 64)
		return v
	}
	return 0
}

func (m *mockDynamo) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putCalls++
	if m.failWrites != nil {
		return nil, m.failWrites
	}
	pk := str(params.Item["meal_id"])
	if pk == "" {
		return nil, errors.New("no primary key in put item")
	}
	if params.ConditionExpression != nil && *params.ConditionExpression == "attribute_not_exists(meal_id)" {
		if _, exists := m.items[pk]; exists {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	m.items[pk] = params.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *mockDynamo) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[str(params.Key["meal_id"])]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

// updateTargets maps the placeholders used by Store.Update to attribute names.
var updateTargets = map[string]string{
	":status": "status",
	":name":   "name",
	":icon":   "icon",
	":foods":  "foods",
	":ua":     "updated_at",
	":next":   "version",
}

func (m *mockDynamo) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	if m.failWrites != nil {
		return nil, m.failWrites
	}
	pk := str(params.Key["meal_id"])
	item, exists := m.items[pk]
	if !exists {
		return nil, &types.ConditionalCheckFailedException{}
	}
	if num(item["version"]) != num(params.ExpressionAttributeValues[":expected"]) {
		return nil, &types.ConditionalCheckFailedException{}
	}
	updated := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		updated[k] = v
	}
	for placeholder, attr := range updateTargets {
		if v, ok := params.ExpressionAttributeValues[placeholder]; ok {
			updated[attr] = v
		}
	}
	m.items[pk] = updated
	return &dyn.UpdateItemOutput{Attributes: updated}, nil
}

func (m *mockDynamo) DeleteItem(ctx context.Context, params *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pk := str(params.Key["meal_id"])
	item, exists := m.items[pk]
	if !exists || str(item["user_id"]) != str(params.ExpressionAttributeValues[":u"]) {
		return nil, &types.ConditionalCheckFailedException{}
	}
	delete(m.items, pk)
	return &dyn.DeleteItemOutput{}, nil
}

func (m *mockDynamo) Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	vals := params.ExpressionAttributeValues

	var matched []map[string]types.AttributeValue
	for _, item := range m.items {
		switch *params.IndexName {
		case FileKeyIndex:
			if str(item["input_file_key"]) == str(vals[":k"]) {
				matched = append(matched, item)
			}
		case UserCreatedIndex:
			ms := num(item["created_at_ms"])
			if str(item["user_id"]) == str(vals[":u"]) &&
				ms >= num(vals[":start"]) && ms <= num(vals[":end"]) {
				matched = append(matched, item)
			}
		default:
			return nil, errors.New("unknown index")
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		a, b := num(matched[i]["created_at_ms"]), num(matched[j]["created_at_ms"])
		if a != b {
			return a < b
		}
		return str(matched[i]["meal_id"]) < str(matched[j]["meal_id"])
	})

	if start := params.ExclusiveStartKey; start != nil {
		after := str(start["meal_id"])
		for i, it := range matched {
			if str(it["meal_id"]) == after {
				matched = matched[i+1:]
				break
			}
		}
	}

	out := &dyn.QueryOutput{}
	page := matched
	if m.pageSize > 0 && len(matched) > m.pageSize {
		page = matched[:m.pageSize]
		out.LastEvaluatedKey = map[string]types.AttributeValue{"meal_id": page[len(page)-1]["meal_id"]}
	}
	// filter runs after the page is read, as in DynamoDB
	for _, it := range page {
		if params.FilterExpression != nil && str(it["status"]) != str(vals[":status"]) {
			continue
		}
		out.Items = append(out.Items, it)
	}
	return out, nil
}
