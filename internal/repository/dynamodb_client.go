package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"usecase-deployments/internal/domain"
)

const (
	pkUseCaseID = "UseCaseId"

	defaultScanLimit = 500
	defaultTTL       = 89 * 24 * time.Hour // stays inside the 90-day window CloudFormation keeps deleted stacks
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// Client wraps the use-cases table.
type Client struct {
	api       dynamodbAPI
	tableName string
	scanLimit int
	ttl       time.Duration
	now       func() time.Time
}

type Option func(*Client)

// WithScanLimit caps the number of items a single list page may scan.
func WithScanLimit(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.scanLimit = n
		}
	}
}

// WithRecordTTL sets how long a soft-deleted record is kept before expiry.
func WithRecordTTL(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string, opts ...Option) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	c := &Client{
		api:       api,
		tableName: tableName,
		scanLimit: defaultScanLimit,
		ttl:       defaultTTL,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func useCaseKey(useCaseID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		pkUseCaseID: &types.AttributeValueMemberS{Value: useCaseID},
	}
}

func (c *Client) timestamp() string {
	return c.now().UTC().Format(time.RFC3339)
}

// CreateUseCaseRecord inserts the metadata row for a newly created stack.
func (c *Client) CreateUseCaseRecord(ctx context.Context, uc domain.UseCase) error {
	if uc.UseCaseID == "" {
		return errors.New("repository: CreateUseCaseRecord: use case id is required")
	}
	item, err := attributevalue.MarshalMap(domain.UseCaseRecord{
		UseCaseID:       uc.UseCaseID,
		StackID:         uc.StackID,
		Name:            uc.Name,
		Description:     uc.Description,
		SSMParameterKey: uc.ConfigParameterName(),
		CreatedBy:       uc.UserID,
		CreatedDate:     c.timestamp(),
	})
	if err != nil {
		return fmt.Errorf("repository: CreateUseCaseRecord marshal: %w", err)
	}

	_, err = c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(UseCaseId)"),
	})
	if err != nil {
		return fmt.Errorf("repository: CreateUseCaseRecord: %w", err)
	}
	return nil
}

// UpdateUseCaseRecord points an existing row at the new config parameter.
func (c *Client) UpdateUseCaseRecord(ctx context.Context, uc domain.UseCase) error {
	if uc.UseCaseID == "" {
		return errors.New("repository: UpdateUseCaseRecord: use case id is required")
	}

	expr := "SET UpdatedDate = :date, UpdatedBy = :user, SSMParameterKey = :key"
	values := map[string]types.AttributeValue{
		":date": &types.AttributeValueMemberS{Value: c.timestamp()},
		":user": &types.AttributeValueMemberS{Value: uc.UserID},
		":key":  &types.AttributeValueMemberS{Value: uc.ConfigParameterName()},
	}
	if uc.Description != "" {
		expr += ", Description = :desc"
		values[":desc"] = &types.AttributeValueMemberS{Value: uc.Description}
	}

	_, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(c.tableName),
		Key:                       useCaseKey(uc.UseCaseID),
		UpdateExpression:          aws.String(expr),
		ConditionExpression:       aws.String("attribute_exists(UseCaseId)"),
		ExpressionAttributeValues: values,
	})
	if err != nil {
		return fmt.Errorf("repository: UpdateUseCaseRecord: %w", err)
	}
	return nil
}

// MarkUseCaseRecordForDeletion soft-deletes the row by setting its TTL. A row
// that does not exist is left absent.
func (c *Client) MarkUseCaseRecordForDeletion(ctx context.Context, uc domain.UseCase) error {
	if uc.UseCaseID == "" {
		return errors.New("repository: MarkUseCaseRecordForDeletion: use case id is required")
	}

	now := c.now()
	_, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(c.tableName),
		Key:                 useCaseKey(uc.UseCaseID),
		UpdateExpression:    aws.String("SET #TTL = :ttl, DeletedBy = :user, DeletedDate = :date"),
		ConditionExpression: aws.String("attribute_exists(UseCaseId)"),
		// TTL is a DynamoDB reserved word.
		ExpressionAttributeNames: map[string]string{"#TTL": "TTL"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ttl":  &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Add(c.ttl).Unix(), 10)},
			":user": &types.AttributeValueMemberS{Value: uc.UserID},
			":date": &types.AttributeValueMemberS{Value: now.UTC().Format(time.RFC3339)},
		},
	})
	if err != nil {
		var missing *types.ConditionalCheckFailedException
		if errors.As(err, &missing) {
			// Already hard-deleted; nothing left to expire.
			return nil
		}
		return fmt.Errorf("repository: MarkUseCaseRecordForDeletion: %w", err)
	}
	return nil
}

// DeleteUseCaseRecord removes the row outright and returns what was removed,
// or nil when no row existed.
func (c *Client) DeleteUseCaseRecord(ctx context.Context, uc domain.UseCase) (*domain.UseCaseRecord, error) {
	if uc.UseCaseID == "" {
		return nil, errors.New("repository: DeleteUseCaseRecord: use case id is required")
	}

	out, err := c.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:    aws.String(c.tableName),
		Key:          useCaseKey(uc.UseCaseID),
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return nil, fmt.Errorf("repository: DeleteUseCaseRecord: %w", err)
	}
	if out == nil || len(out.Attributes) == 0 {
		return nil, nil
	}

	var rec domain.UseCaseRecord
	if err := attributevalue.UnmarshalMap(out.Attributes, &rec); err != nil {
		return nil, fmt.Errorf("repository: DeleteUseCaseRecord unmarshal: %w", err)
	}
	return &rec, nil
}

// GetUseCaseRecord reads the row for a use case.
func (c *Client) GetUseCaseRecord(ctx context.Context, uc domain.UseCase) (domain.UseCaseRecord, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            useCaseKey(uc.UseCaseID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.UseCaseRecord{}, fmt.Errorf("repository: GetUseCaseRecord get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.UseCaseRecord{}, fmt.Errorf("repository: GetUseCaseRecord %q: %w", uc.UseCaseID, domain.ErrUseCaseNotFound)
	}

	var rec domain.UseCaseRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return domain.UseCaseRecord{}, fmt.Errorf("repository: GetUseCaseRecord unmarshal: %w", err)
	}
	return rec, nil
}

// GetAllCaseRecords scans one page of the table. The limit bounds how many
// items DynamoDB evaluates; continuing from the returned cursor is up to the caller.
func (c *Client) GetAllCaseRecords(ctx context.Context, in domain.ListUseCasesInput) (domain.ScanResult, error) {
	limit := c.scanLimit
	if in.PageSize > 0 && in.PageSize < limit {
		limit = in.PageSize
	}

	scan := &dynamodb.ScanInput{
		TableName: aws.String(c.tableName),
		Limit:     aws.Int32(int32(limit)),
	}
	if in.ExclusiveStartKey != "" {
		startKey, err := DecodeCursor(in.ExclusiveStartKey)
		if err != nil {
			return domain.ScanResult{}, fmt.Errorf("repository: GetAllCaseRecords: %w", err)
		}
		scan.ExclusiveStartKey = startKey
	}

	out, err := c.api.Scan(ctx, scan)
	if err != nil {
		return domain.ScanResult{}, fmt.Errorf("repository: GetAllCaseRecords scan: %w", err)
	}

	var records []domain.UseCaseRecord
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &records); err != nil {
		return domain.ScanResult{}, fmt.Errorf("repository: GetAllCaseRecords unmarshal: %w", err)
	}
	cursor, err := EncodeCursor(out.LastEvaluatedKey)
	if err != nil {
		return domain.ScanResult{}, fmt.Errorf("repository: GetAllCaseRecords: %w", err)
	}
	return domain.ScanResult{
		Records:          records,
		ScannedCount:     int(out.ScannedCount),
		LastEvaluatedKey: cursor,
	}, nil
}

// EncodeCursor serializes a LastEvaluatedKey as a JSON object of string attributes.
func EncodeCursor(key map[string]types.AttributeValue) (string, error) {
	if len(key) == 0 {
		return "", nil
	}
	var plain map[string]string
	if err := attributevalue.UnmarshalMap(key, &plain); err != nil {
		return "", fmt.Errorf("encode cursor: %w", err)
	}
	b, err := json.Marshal(plain)
	if err != nil {
		return "", fmt.Errorf("encode cursor: %w", err)
	}
	return string(b), nil
}

// DecodeCursor is the inverse of EncodeCursor.
func DecodeCursor(cursor string) (map[string]types.AttributeValue, error) {
	var plain map[string]string
	if err := json.Unmarshal([]byte(cursor), &plain); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidCursor, err)
	}
	if strings.TrimSpace(plain[pkUseCaseID]) == "" {
		return nil, fmt.Errorf("%w: missing %s", domain.ErrInvalidCursor, pkUseCaseID)
	}
	key, err := attributevalue.MarshalMap(plain)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	return key, nil
}
