package records

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/dmitrijs2005/catalogadmin/internal/common"
	"github.com/dmitrijs2005/catalogadmin/internal/server/models"
)

// DynamoAPI is the subset of *dynamodb.Client used by DynamoRepository.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoRepository keeps one table per collection, named
// tablePrefix+collection, with a string partition key "id" and the field
// map stored in the "fields" map attribute.
type DynamoRepository struct {
	client      DynamoAPI
	tablePrefix string
	now         func() time.Time
}

func NewDynamoRepository(client DynamoAPI, tablePrefix string) *DynamoRepository {
	return &DynamoRepository{client: client, tablePrefix: tablePrefix, now: time.Now}
}

func (r *DynamoRepository) table(collection string) *string {
	return aws.String(r.tablePrefix + collection)
}

func keyOf(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"id": &types.AttributeValueMemberS{Value: id},
	}
}

func (r *DynamoRepository) Create(ctx context.Context, collection string, fields map[string]any) (string, error) {
	if fields == nil {
		fields = map[string]any{}
	}
	now := r.now().UTC()
	rec := models.Record{
		ID:        newID(),
		Fields:    fields,
		CreatedAt: now,
		UpdatedAt: now,
	}

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return "", fmt.Errorf("encode record: %w", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: r.table(collection),
		Item:      item,
	})
	if err != nil {
		return "", dynamoError("put", collection, err)
	}
	return rec.ID, nil
}

// Update sets each given field inside the "fields" map; fields not named
// keep their stored value.
func (r *DynamoRepository) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	names := map[string]string{"#f": "fields", "#u": "updated_at"}
	values := map[string]types.AttributeValue{}

	updatedAt, err := attributevalue.Marshal(r.now().UTC())
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	values[":u"] = updatedAt
	expr := "SET #u = :u"

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for i, k := range keys {
		av, err := attributevalue.Marshal(fields[k])
		if err != nil {
			return fmt.Errorf("encode field %s: %w", k, err)
		}
		n, v := "#k"+strconv.Itoa(i), ":v"+strconv.Itoa(i)
		names[n] = k
		values[v] = av
		expr += ", #f." + n + " = " + v
	}

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 r.table(collection),
		Key:                       keyOf(id),
		UpdateExpression:          aws.String(expr),
		ConditionExpression:       aws.String("attribute_exists(id)"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if err != nil {
		return dynamoError("update", collection, err)
	}
	return nil
}

func (r *DynamoRepository) Get(ctx context.Context, collection, id string) (*models.Record, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      r.table(collection),
		Key:            keyOf(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, dynamoError("get", collection, err)
	}
	if out.Item == nil {
		return nil, common.ErrNotFound
	}

	rec := &models.Record{}
	if err := attributevalue.UnmarshalMap(out.Item, rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	rec.Collection = collection
	if rec.Fields == nil {
		rec.Fields = map[string]any{}
	}
	return rec, nil
}

func (r *DynamoRepository) Delete(ctx context.Context, collection, id string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           r.table(collection),
		Key:                 keyOf(id),
		ConditionExpression: aws.String("attribute_exists(id)"),
	})
	if err != nil {
		return dynamoError("delete", collection, err)
	}
	return nil
}

// List scans the whole table, following LastEvaluatedKey, and orders the
// result by creation time.
func (r *DynamoRepository) List(ctx context.Context, collection string) ([]*models.Record, error) {
	p := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{
		TableName:      r.table(collection),
		ConsistentRead: aws.Bool(true),
	})

	result := make([]*models.Record, 0)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, dynamoError("scan", collection, err)
		}

		var batch []*models.Record
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("decode records: %w", err)
		}
		for _, rec := range batch {
			rec.Collection = collection
			if rec.Fields == nil {
				rec.Fields = map[string]any{}
			}
		}
		result = append(result, batch...)
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// dynamoError maps a failed conditional write to common.ErrNotFound and
// annotates other service errors with their API error code.
func dynamoError(op, collection string, err error) error {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return common.ErrNotFound
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("dynamodb %s %s (%s): %w", op, collection, apiErr.ErrorCode(), err)
	}
	return fmt.Errorf("dynamodb %s %s: %w", op, collection, err)
}
