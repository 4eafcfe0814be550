package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/johnsosoka/jscom-newsletter-services/internal/model"
)

// DynamoDB secondary index names.
const (
	EmailIndex  = "email-index"
	StatusIndex = "status-index"
)

// DynamoDBAPI is the subset of *dynamodb.Client used by the repository.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// DynamoSubscriberRepository implements SubscriberRepository on a DynamoDB table keyed by id
// with email-index and status-index global secondary indexes.
type DynamoSubscriberRepository struct {
	client    DynamoDBAPI
	tableName string
}

// NewDynamoSubscriberRepository creates a DynamoDB-backed repository.
func NewDynamoSubscriberRepository(client DynamoDBAPI, tableName string) SubscriberRepository {
	return &DynamoSubscriberRepository{client: client, tableName: tableName}
}

func idKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: id}}
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func unmarshalSubscriber(item map[string]types.AttributeValue) (*model.Subscriber, error) {
	var s model.Subscriber
	if err := attributevalue.UnmarshalMap(item, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal subscriber: %w", err)
	}
	if s.Status == "" {
		s.Status = model.StatusInactive
	}
	return &s, nil
}

// FindByEmail queries the email-index GSI.
func (r *DynamoSubscriberRepository) FindByEmail(ctx context.Context, email string) (*model.Subscriber, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(EmailIndex),
		KeyConditionExpression: aws.String("email = :email"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":email": &types.AttributeValueMemberS{Value: email},
		},
		Limit: aws.Int32(2),
	})
	if err != nil {
		return nil, unavailable("query email-index", err)
	}

	switch len(out.Items) {
	case 0:
		return nil, nil
	case 1:
		return unmarshalSubscriber(out.Items[0])
	default:
		return nil, fmt.Errorf("%w: %s", model.ErrAmbiguousEmail, email)
	}
}

// FindByID reads one item by primary key.
func (r *DynamoSubscriberRepository) FindByID(ctx context.Context, id string) (*model.Subscriber, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       idKey(id),
	})
	if err != nil {
		return nil, unavailable("get subscriber", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	return unmarshalSubscriber(out.Item)
}

// Create puts a new item, refusing to overwrite an existing id.
func (r *DynamoSubscriberRepository) Create(ctx context.Context, s *model.Subscriber) error {
	item, err := attributevalue.MarshalMap(s)
	if err != nil {
		return fmt.Errorf("failed to marshal subscriber: %w", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if isConditionFailed(err) {
		return fmt.Errorf("%w: %s", model.ErrConflict, s.ID)
	}
	if err != nil {
		return unavailable("put subscriber", err)
	}
	return nil
}

// UpdateStatusAndTimestamp sets status and updated_at on an existing item.
func (r *DynamoSubscriberRepository) UpdateStatusAndTimestamp(
	ctx context.Context, id string, status model.Status, updatedAt int64,
) error {
	return r.update(ctx, id, "SET #status = :status, updated_at = :ts",
		map[string]string{"#status": "status"},
		map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: string(status)},
			":ts":     &types.AttributeValueMemberN{Value: strconv.FormatInt(updatedAt, 10)},
		})
}

// TouchUpdatedAt sets updated_at on an existing item.
func (r *DynamoSubscriberRepository) TouchUpdatedAt(ctx context.Context, id string, updatedAt int64) error {
	return r.update(ctx, id, "SET updated_at = :ts", nil,
		map[string]types.AttributeValue{
			":ts": &types.AttributeValueMemberN{Value: strconv.FormatInt(updatedAt, 10)},
		})
}

func (r *DynamoSubscriberRepository) update(
	ctx context.Context,
	id, expr string,
	names map[string]string,
	values map[string]types.AttributeValue,
) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       idKey(id),
		UpdateExpression:          aws.String(expr),
		ConditionExpression:       aws.String("attribute_exists(id)"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if isConditionFailed(err) {
		return fmt.Errorf("%w: %s", model.ErrNotFound, id)
	}
	if err != nil {
		return unavailable("update subscriber", err)
	}
	return nil
}

// dynamoKeyAttr is the JSON form of one LastEvaluatedKey attribute.
type dynamoKeyAttr struct {
	S *string `json:"S,omitempty"`
	N *string `json:"N,omitempty"`
}

func encodeDynamoKey(key map[string]types.AttributeValue) (*string, error) {
	if len(key) == 0 {
		return nil, nil
	}
	raw := make(map[string]dynamoKeyAttr, len(key))
	for name, av := range key {
		switch v := av.(type) {
		case *types.AttributeValueMemberS:
			raw[name] = dynamoKeyAttr{S: aws.String(v.Value)}
		case *types.AttributeValueMemberN:
			raw[name] = dynamoKeyAttr{N: aws.String(v.Value)}
		default:
			return nil, fmt.Errorf("unsupported key attribute %q", name)
		}
	}
	return encodeCursor(raw)
}

func decodeDynamoKey(token string) (map[string]types.AttributeValue, error) {
	if token == "" {
		return nil, nil
	}
	var raw map[string]dynamoKeyAttr
	if err := decodeCursor(token, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, model.ErrInvalidCursor
	}
	key := make(map[string]types.AttributeValue, len(raw))
	for name, attr := range raw {
		switch {
		case attr.S != nil:
			key[name] = &types.AttributeValueMemberS{Value: *attr.S}
		case attr.N != nil:
			key[name] = &types.AttributeValueMemberN{Value: *attr.N}
		default:
			return nil, model.ErrInvalidCursor
		}
	}
	return key, nil
}

// List pages through the table, or through status-index when a status filter is set.
// Items within a page are sorted by subscribed_at descending.
func (r *DynamoSubscriberRepository) List(ctx context.Context, params model.ListParams) (*model.SubscriberPage, error) {
	startKey, err := decodeDynamoKey(params.NextToken)
	if err != nil {
		return nil, err
	}

	var (
		items   []map[string]types.AttributeValue
		lastKey map[string]types.AttributeValue
	)
	if params.Status != "" {
		out, err := r.client.Query(ctx, &dynamodb.QueryInput{
			TableName:                aws.String(r.tableName),
			IndexName:                aws.String(StatusIndex),
			KeyConditionExpression:   aws.String("#status = :status"),
			ExpressionAttributeNames: map[string]string{"#status": "status"},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":status": &types.AttributeValueMemberS{Value: string(params.Status)},
			},
			Limit:             aws.Int32(int32(params.Limit)),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, unavailable("query status-index", err)
		}
		items, lastKey = out.Items, out.LastEvaluatedKey
	} else {
		out, err := r.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(r.tableName),
			Limit:             aws.Int32(int32(params.Limit)),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, unavailable("scan subscribers", err)
		}
		items, lastKey = out.Items, out.LastEvaluatedKey
	}

	subscribers := make([]*model.Subscriber, 0, len(items))
	for _, item := range items {
		s, err := unmarshalSubscriber(item)
		if err != nil {
			return nil, err
		}
		subscribers = append(subscribers, s)
	}
	sort.SliceStable(subscribers, func(i, j int) bool {
		return subscribers[i].SubscribedAt > subscribers[j].SubscribedAt
	})

	next, err := encodeDynamoKey(lastKey)
	if err != nil {
		return nil, err
	}

	return &model.SubscriberPage{
		Subscribers: subscribers,
		NextToken:   next,
		Count:       len(subscribers),
	}, nil
}

// UpdateEmail changes a subscriber's email and returns the updated item.
func (r *DynamoSubscriberRepository) UpdateEmail(
	ctx context.Context, id, email string, updatedAt int64,
) (*model.Subscriber, error) {
	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 idKey(id),
		UpdateExpression:    aws.String("SET email = :email, updated_at = :ts"),
		ConditionExpression: aws.String("attribute_exists(id)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":email": &types.AttributeValueMemberS{Value: email},
			":ts":    &types.AttributeValueMemberN{Value: strconv.FormatInt(updatedAt, 10)},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if isConditionFailed(err) {
		return nil, fmt.Errorf("%w: %s", model.ErrNotFound, id)
	}
	if err != nil {
		return nil, unavailable("update subscriber email", err)
	}
	return unmarshalSubscriber(out.Attributes)
}

// Delete removes an item, reporting ErrNotFound when it did not exist.
func (r *DynamoSubscriberRepository) Delete(ctx context.Context, id string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 idKey(id),
		ConditionExpression: aws.String("attribute_exists(id)"),
	})
	if isConditionFailed(err) {
		return fmt.Errorf("%w: %s", model.ErrNotFound, id)
	}
	if err != nil {
		return unavailable("delete subscriber", err)
	}
	return nil
}

// Stats scans the whole table.
func (r *DynamoSubscriberRepository) Stats(ctx context.Context, recentSince int64) (*model.Stats, error) {
	paginator := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{
		TableName:                aws.String(r.tableName),
		ProjectionExpression:     aws.String("#status, subscribed_at"),
		ExpressionAttributeNames: map[string]string{"#status": "status"},
	})

	stats := &model.Stats{}
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, unavailable("scan subscribers", err)
		}
		for _, item := range page.Items {
			var row struct {
				Status       model.Status `dynamodbav:"status"`
				SubscribedAt int64        `dynamodbav:"subscribed_at"`
			}
			if err := attributevalue.UnmarshalMap(item, &row); err != nil {
				return nil, fmt.Errorf("failed to unmarshal stats row: %w", err)
			}
			stats.TotalSubscribers++
			if row.Status == model.StatusActive {
				stats.ActiveCount++
			}
			if row.SubscribedAt >= recentSince {
				stats.Recent24h++
			}
		}
	}
	stats.InactiveCount = stats.TotalSubscribers - stats.ActiveCount
	return stats, nil
}

// Ping describes the table.
func (r *DynamoSubscriberRepository) Ping(ctx context.Context) error {
	_, err := r.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(r.tableName)})
	return err
}
