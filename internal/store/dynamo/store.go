// Package dynamo stores personal links in a DynamoDB table keyed by
// (account_survey_id, url).
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/THIS-Institute/thiscovery-surveys/internal/personallinks"
	"github.com/THIS-Institute/thiscovery-surveys/internal/retry"
)

const (
	// maxBatchWriteItems is the BatchWriteItem request limit.
	maxBatchWriteItems = 25
	// maxUnprocessedRetries bounds resubmission of throttled batch items.
	maxUnprocessedRetries = 5

	unprocessedInitialDelay = 50 * time.Millisecond
	unprocessedMaxDelay     = time.Second
)

// ErrUnprocessedItems is returned when DynamoDB keeps rejecting part of a batch.
var ErrUnprocessedItems = errors.New("dynamodb left items unprocessed")

// API is the subset of the DynamoDB client the store uses.
type API interface {
	BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, opts ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// Tables names the link table and its secondary indexes.
type Tables struct {
	Name            string
	UnassignedIndex string
	AssignedIndex   string
}

// Store implements personallinks.Store on DynamoDB.
type Store struct {
	api    API
	tables Tables
	now    func() time.Time
}

// New creates a Store.
func New(api API, tables Tables) *Store {
	return &Store{api: api, tables: tables, now: time.Now}
}

var _ personallinks.Store = (*Store)(nil)

// item is the DynamoDB shape of a link. participant_id is omitted while the
// link is unassigned so the assigned-links index stays sparse.
type item struct {
	AccountSurveyID string         `dynamodbav:"account_survey_id"`
	URL             string         `dynamodbav:"url"`
	Status          string         `dynamodbav:"status"`
	Expires         time.Time      `dynamodbav:"expires"`
	ParticipantID   string         `dynamodbav:"participant_id,omitempty"`
	Details         map[string]any `dynamodbav:"details,omitempty"`
	CreatedAt       time.Time      `dynamodbav:"created_at"`
	AssignedAt      *time.Time     `dynamodbav:"assigned_at,omitempty"`
}

func newItem(pool personallinks.PoolID, l personallinks.Link) item {
	return item{
		AccountSurveyID: pool.String(),
		URL:             l.URL,
		Status:          string(personallinks.StatusNew),
		Expires:         l.Expires.UTC(),
		Details:         l.Details,
		CreatedAt:       l.CreatedAt.UTC(),
	}
}

func (it item) toLink() personallinks.Link {
	return personallinks.Link{
		PoolID:        personallinks.PoolID(it.AccountSurveyID),
		URL:           it.URL,
		Status:        personallinks.Status(it.Status),
		Expires:       it.Expires,
		ParticipantID: it.ParticipantID,
		Details:       it.Details,
		CreatedAt:     it.CreatedAt,
		AssignedAt:    it.AssignedAt,
	}
}

// PutBatch writes links with BatchWriteItem in chunks of 25, resubmitting
// unprocessed items with backoff. Links of a fresh distribution never share
// a URL with stored links, so the unconditional put is safe.
func (s *Store) PutBatch(ctx context.Context, pool personallinks.PoolID, links []personallinks.Link) error {
	requests := make([]types.WriteRequest, 0, len(links))
	for _, l := range links {
		av, err := attributevalue.MarshalMap(newItem(pool, l))
		if err != nil {
			return fmt.Errorf("marshal link %s: %w", l.URL, err)
		}
		requests = append(requests, types.WriteRequest{PutRequest: &types.PutRequest{Item: av}})
	}

	for start := 0; start < len(requests); start += maxBatchWriteItems {
		end := min(start+maxBatchWriteItems, len(requests))
		if err := s.writeChunk(ctx, requests[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) writeChunk(ctx context.Context, chunk []types.WriteRequest) error {
	pending := map[string][]types.WriteRequest{s.tables.Name: chunk}
	backoff := retry.Config{
		InitialDelay: unprocessedInitialDelay,
		MaxDelay:     unprocessedMaxDelay,
	}

	for attempt := 1; ; attempt++ {
		out, err := s.api.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
		if err != nil {
			return fmt.Errorf("batch write links: %w", err)
		}
		if len(out.UnprocessedItems) == 0 {
			return nil
		}
		if attempt > maxUnprocessedRetries {
			return fmt.Errorf("%w: %d left", ErrUnprocessedItems, len(out.UnprocessedItems[s.tables.Name]))
		}
		pending = out.UnprocessedItems

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff.Backoff(attempt)):
		}
	}
}

// QueryUnassigned reads the unassigned-links index.
func (s *Store) QueryUnassigned(ctx context.Context, pool personallinks.PoolID) ([]personallinks.Link, error) {
	return s.query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tables.Name),
		IndexName:              aws.String(s.tables.UnassignedIndex),
		KeyConditionExpression: aws.String("account_survey_id = :account_survey_id AND #status = :status"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":account_survey_id": &types.AttributeValueMemberS{Value: pool.String()},
			":status":            &types.AttributeValueMemberS{Value: string(personallinks.StatusNew)},
		},
	})
}

// QueryAssignedForParticipant reads the assigned-links index.
func (s *Store) QueryAssignedForParticipant(
	ctx context.Context,
	pool personallinks.PoolID,
	participantID string,
) ([]personallinks.Link, error) {
	return s.query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tables.Name),
		IndexName:              aws.String(s.tables.AssignedIndex),
		KeyConditionExpression: aws.String("participant_id = :participant_id AND account_survey_id = :account_survey_id"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":participant_id":    &types.AttributeValueMemberS{Value: participantID},
			":account_survey_id": &types.AttributeValueMemberS{Value: pool.String()},
		},
	})
}

// TryAssign sets participant_id on the link with a condition that it exists
// and has no participant yet. A failed condition is a lost race.
func (s *Store) TryAssign(ctx context.Context, pool personallinks.PoolID, url, participantID string) (bool, error) {
	assignedAt, err := attributevalue.Marshal(s.now().UTC())
	if err != nil {
		return false, fmt.Errorf("marshal assigned_at: %w", err)
	}

	_, err = s.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tables.Name),
		Key: map[string]types.AttributeValue{
			"account_survey_id": &types.AttributeValueMemberS{Value: pool.String()},
			"url":               &types.AttributeValueMemberS{Value: url},
		},
		UpdateExpression:    aws.String("SET #status = :assigned, participant_id = :participant_id, assigned_at = :assigned_at"),
		ConditionExpression: aws.String("attribute_exists(#url) AND attribute_not_exists(participant_id)"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
			"#url":    "url",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":assigned":       &types.AttributeValueMemberS{Value: string(personallinks.StatusAssigned)},
			":participant_id": &types.AttributeValueMemberS{Value: participantID},
			":assigned_at":    assignedAt,
		},
	})

	var conditionFailed *types.ConditionalCheckFailedException
	if errors.As(err, &conditionFailed) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("assign link: %w", err)
	}
	return true, nil
}

// Ping checks the table is reachable.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.tables.Name)})
	if err != nil {
		return fmt.Errorf("describe table %s: %w", s.tables.Name, err)
	}
	return nil
}

func (s *Store) query(ctx context.Context, in *dynamodb.QueryInput) ([]personallinks.Link, error) {
	var links []personallinks.Link

	paginator := dynamodb.NewQueryPaginator(s.api, in)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", aws.ToString(in.IndexName), err)
		}

		var items []item
		if err = attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("unmarshal links: %w", err)
		}
		for _, it := range items {
			links = append(links, it.toLink())
		}
	}
	return links, nil
}
