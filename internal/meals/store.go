package meals

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/imrishuroy/go-meal-pipeline/internal/aws"
)

// Secondary indexes on the meals table.
const (
	FileKeyIndex     = "input_file_key-index"
	UserCreatedIndex = "user_id-created_at_ms-index"
)

// mealItem is the shape persisted in the meals DynamoDB table.
type mealItem struct {
	MealID       string    `dynamodbav:"meal_id"` // PK
	UserID       string    `dynamodbav:"user_id"`
	Status       string    `dynamodbav:"status"` // uploading | processing | success | failed
	InputType    string    `dynamodbav:"input_type"`
	InputFileKey string    `dynamodbav:"input_file_key"`
	Name         *string   `dynamodbav:"name"`
	Icon         *string   `dynamodbav:"icon"`
	Foods        []Food    `dynamodbav:"foods"`
	CreatedAt    time.Time `dynamodbav:"created_at"`
	CreatedAtMs  int64     `dynamodbav:"created_at_ms"` // GSI range key, sortable
	UpdatedAt    time.Time `dynamodbav:"updated_at"`
	Version      int64     `dynamodbav:"version"`
}

func toItem(m Meal) mealItem {
	foods := m.Foods
	if foods == nil {
		foods = []Food{}
	}
	return mealItem{
		MealID:       m.ID,
		UserID:       m.UserID,
		Status:       string(m.Status),
		InputType:    string(m.InputType),
		InputFileKey: m.InputFileKey,
		Name:         m.Name,
		Icon:         m.Icon,
		Foods:        foods,
		CreatedAt:    m.CreatedAt.UTC(),
		CreatedAtMs:  m.CreatedAt.UnixMilli(),
		UpdatedAt:    m.UpdatedAt.UTC(),
		Version:      m.Version,
	}
}

func (it mealItem) toDomain() Meal {
	foods := it.Foods
	if foods == nil {
		foods = []Food{}
	}
	return Meal{
		ID:           it.MealID,
		UserID:       it.UserID,
		Status:       Status(it.Status),
		InputType:    InputType(it.InputType),
		InputFileKey: it.InputFileKey,
		Name:         it.Name,
		Icon:         it.Icon,
		Foods:        foods,
		CreatedAt:    it.CreatedAt,
		UpdatedAt:    it.UpdatedAt,
		Version:      it.Version,
	}
}

// Store encapsulates operations on the meals table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
}

// NewStore creates a new meals Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
	}
}

// Create inserts a new meal. The stored version starts at 1.
func (s *Store) Create(ctx context.Context, m Meal) (Meal, error) {
	m.Version = 1
	item, err := attributevalue.MarshalMap(toItem(m))
	if err != nil {
		return Meal{}, fmt.Errorf("%w: marshal meal: %w", ErrPersistence, err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(meal_id)"),
	})
	if err != nil {
		if isConditionalFailure(err) {
			return Meal{}, fmt.Errorf("%w: meal %s already exists", ErrPersistence, m.ID)
		}
		return Meal{}, fmt.Errorf("%w: put item: %w", ErrPersistence, err)
	}
	return m, nil
}

// GetByID fetches a meal with a strongly consistent read.
func (s *Store) GetByID(ctx context.Context, id string) (Meal, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"meal_id": &types.AttributeValueMemberS{Value: id},
		},
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return Meal{}, fmt.Errorf("%w: get item: %w", ErrPersistence, err)
	}
	if len(out.Item) == 0 {
		return Meal{}, ErrNotFound
	}
	var it mealItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return Meal{}, fmt.Errorf("%w: unmarshal meal: %w", ErrPersistence, err)
	}
	return it.toDomain(), nil
}

// GetByIDAndUser fetches a meal only if it belongs to userID.
func (s *Store) GetByIDAndUser(ctx context.Context, id, userID string) (Meal, error) {
	m, err := s.GetByID(ctx, id)
	if err != nil {
		return Meal{}, err
	}
	if m.UserID != userID {
		return Meal{}, ErrNotFound
	}
	return m, nil
}

// GetByFileKey resolves the meal owning an input file key. The GSI read is
// eventually consistent, so the row is re-read by id before returning.
func (s *Store) GetByFileKey(ctx context.Context, fileKey string) (Meal, error) {
	out, err := s.client.Query(ctx, &dyn.QueryInput{
		TableName:              &s.tableName,
		IndexName:              awsString(FileKeyIndex),
		KeyConditionExpression: awsString("input_file_key = :k"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":k": &types.AttributeValueMemberS{Value: fileKey},
		},
		Limit: awsInt32(2),
	})
	if err != nil {
		return Meal{}, fmt.Errorf("%w: query file key: %w", ErrPersistence, err)
	}
	switch len(out.Items) {
	case 0:
		return Meal{}, ErrNotFound
	case 1:
	default:
		return Meal{}, fmt.Errorf("%w: file key %s maps to more than one meal", ErrPersistence, fileKey)
	}

	idAttr, ok := out.Items[0]["meal_id"].(*types.AttributeValueMemberS)
	if !ok {
		return Meal{}, fmt.Errorf("%w: index item without meal_id", ErrPersistence)
	}
	return s.GetByID(ctx, idAttr.Value)
}

// ListByUserAndDay returns the user's meals created within the UTC calendar day
// (inclusive bounds) that are in the given status, oldest first.
func (s *Store) ListByUserAndDay(ctx context.Context, userID, date string, status Status) ([]Meal, error) {
	start, end, err := DayWindow(date)
	if err != nil {
		return nil, err
	}

	input := &dyn.QueryInput{
		TableName:              &s.tableName,
		IndexName:              awsString(UserCreatedIndex),
		KeyConditionExpression: awsString("user_id = :u AND created_at_ms BETWEEN :start AND :end"),
		FilterExpression:       awsString("#s = :status"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":u":      &types.AttributeValueMemberS{Value: userID},
			":start":  &types.AttributeValueMemberN{Value: strconv.FormatInt(start.UnixMilli(), 10)},
			":end":    &types.AttributeValueMemberN{Value: strconv.FormatInt(end.UnixMilli(), 10)},
			":status": &types.AttributeValueMemberS{Value: string(status)},
		},
	}

	result := []Meal{}
	for {
		out, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("%w: query user meals: %w", ErrPersistence, err)
		}
		var items []mealItem
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
			return nil, fmt.Errorf("%w: unmarshal meals: %w", ErrPersistence, err)
		}
		for _, it := range items {
			// the index is keyed by user; the check keeps ownership explicit
			if it.UserID == userID {
				result = append(result, it.toDomain())
			}
		}
		if len(out.LastEvaluatedKey) == 0 {
			return result, nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// Update persists m if the stored version still equals m.Version and returns the
// snapshot with the bumped version. ErrVersionConflict means another writer won.
func (s *Store) Update(ctx context.Context, m Meal) (Meal, error) {
	expected := m.Version
	next := m
	next.Version = expected + 1
	it := toItem(next)

	values, err := attributevalue.MarshalMap(map[string]any{
		":status":   it.Status,
		":name":     it.Name,
		":icon":     it.Icon,
		":foods":    it.Foods,
		":ua":       it.UpdatedAt,
		":next":     it.Version,
		":expected": expected,
	})
	if err != nil {
		return Meal{}, fmt.Errorf("%w: marshal update: %w", ErrPersistence, err)
	}

	_, err = s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"meal_id": &types.AttributeValueMemberS{Value: m.ID},
		},
		UpdateExpression: awsString("SET #s = :status, #n = :name, icon = :icon, foods = :foods, updated_at = :ua, #v = :next"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
			"#n": "name",
			"#v": "version",
		},
		ExpressionAttributeValues: values,
		ConditionExpression:       awsString("attribute_exists(meal_id) AND #v = :expected"),
	})
	if err != nil {
		if isConditionalFailure(err) {
			return Meal{}, fmt.Errorf("%w: meal %s at version %d", ErrVersionConflict, m.ID, expected)
		}
		return Meal{}, fmt.Errorf("%w: update item: %w", ErrPersistence, err)
	}
	return next, nil
}

// Delete removes a meal owned by userID. Meals of other users report ErrNotFound.
func (s *Store) Delete(ctx context.Context, id, userID string) error {
	_, err := s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"meal_id": &types.AttributeValueMemberS{Value: id},
		},
		ConditionExpression: awsString("user_id = :u"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":u": &types.AttributeValueMemberS{Value: userID},
		},
	})
	if err != nil {
		if isConditionalFailure(err) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: delete item: %w", ErrPersistence, err)
	}
	return nil
}

func isConditionalFailure(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "ConditionalCheckFailedException"
}

func awsString(s string) *string { return &s }
func awsBool(b bool) *bool       { return &b }
func awsInt32(i int32) *int32    { return &i }
