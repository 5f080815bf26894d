package dynamo_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/THIS-Institute/thiscovery-surveys/internal/personallinks"
	"github.com/THIS-Institute/thiscovery-surveys/internal/store/dynamo"
)

const testPool = personallinks.PoolID("cambridge_SV_abc123")

var testTables = dynamo.Tables{
	Name:            "PersonalLinks",
	UnassignedIndex: "unassigned-links",
	AssignedIndex:   "assigned-links",
}

// fakeTable emulates the parts of DynamoDB the store relies on.
type fakeTable struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue

	pageSize       int
	unprocessOnce  bool
	batchSizes     []int
	queries        []*dynamodb.QueryInput
	describeCalled bool
}

func newFakeTable() *fakeTable {
	return &fakeTable{items: make(map[string]map[string]types.AttributeValue)}
}

func str(av types.AttributeValue) string {
	if s, ok := av.(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func itemKey(pool, url string) string { return pool + "|" + url }

func (f *fakeTable) BatchWriteItem(
	_ context.Context,
	in *dynamodb.BatchWriteItemInput,
	_ ...func(*dynamodb.Options),
) (*dynamodb.BatchWriteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	reqs := in.RequestItems[testTables.Name]
	f.batchSizes = append(f.batchSizes, len(reqs))

	out := &dynamodb.BatchWriteItemOutput{}
	if f.unprocessOnce && len(reqs) > 1 {
		f.unprocessOnce = false
		out.UnprocessedItems = map[string][]types.WriteRequest{testTables.Name: reqs[len(reqs)-1:]}
		reqs = reqs[:len(reqs)-1]
	}
	for _, r := range reqs {
		it := r.PutRequest.Item
		f.items[itemKey(str(it["account_survey_id"]), str(it["url"]))] = it
	}
	return out, nil
}

func (f *fakeTable) Query(
	_ context.Context,
	in *dynamodb.QueryInput,
	_ ...func(*dynamodb.Options),
) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.queries = append(f.queries, in)
	pool := str(in.ExpressionAttributeValues[":account_survey_id"])

	var matched []map[string]types.AttributeValue
	for _, it := range f.items {
		if str(it["account_survey_id"]) != pool {
			continue
		}
		switch aws.ToString(in.IndexName) {
		case testTables.UnassignedIndex:
			if str(it["status"]) != str(in.ExpressionAttributeValues[":status"]) {
				continue
			}
		case testTables.AssignedIndex:
			if str(it["participant_id"]) != str(in.ExpressionAttributeValues[":participant_id"]) {
				continue
			}
		}
		matched = append(matched, it)
	}
	sort.Slice(matched, func(i, j int) bool { return str(matched[i]["url"]) < str(matched[j]["url"]) })

	if start := in.ExclusiveStartKey; start != nil {
		after := str(start["url"])
		idx := sort.Search(len(matched), func(i int) bool { return str(matched[i]["url"]) > after })
		matched = matched[idx:]
	}

	out := &dynamodb.QueryOutput{}
	if f.pageSize > 0 && len(matched) > f.pageSize {
		matched = matched[:f.pageSize]
		last := matched[len(matched)-1]
		out.LastEvaluatedKey = map[string]types.AttributeValue{
			"account_survey_id": last["account_survey_id"],
			"url":               last["url"],
		}
	}
	out.Items = matched
	out.Count = int32(len(matched))
	return out, nil
}

func (f *fakeTable) UpdateItem(
	_ context.Context,
	in *dynamodb.UpdateItemInput,
	_ ...func(*dynamodb.Options),
) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := itemKey(str(in.Key["account_survey_id"]), str(in.Key["url"]))
	it, ok := f.items[key]
	if !ok {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("attribute_exists failed")}
	}
	if _, held := it["participant_id"]; held {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("attribute_not_exists failed")}
	}

	it["status"] = in.ExpressionAttributeValues[":assigned"]
	it["participant_id"] = in.ExpressionAttributeValues[":participant_id"]
	it["assigned_at"] = in.ExpressionAttributeValues[":assigned_at"]
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeTable) DescribeTable(
	_ context.Context,
	in *dynamodb.DescribeTableInput,
	_ ...func(*dynamodb.Options),
) (*dynamodb.DescribeTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.describeCalled = true
	if aws.ToString(in.TableName) != testTables.Name {
		return nil, &types.ResourceNotFoundException{Message: aws.String("no such table")}
	}
	return &dynamodb.DescribeTableOutput{}, nil
}

func makeLinks(n int) []personallinks.Link {
	base := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	links := make([]personallinks.Link, n)
	for i := range n {
		links[i] = personallinks.Link{
			URL:       fmt.Sprintf("https://survey.example.com/%03d", i),
			Expires:   base.Add(time.Duration(n-i) * time.Hour),
			CreatedAt: base.Add(-24 * time.Hour),
			Details:   map[string]any{"contactId": fmt.Sprintf("CID_%d", i)},
		}
	}
	return links
}

func TestStore_PutBatch_ChunksAndResubmitsUnprocessed(t *testing.T) {
	table := newFakeTable()
	table.unprocessOnce = true
	store := dynamo.New(table, testTables)

	require.NoError(t, store.PutBatch(context.Background(), testPool, makeLinks(60)))

	assert.Equal(t, []int{25, 1, 25, 10}, table.batchSizes)
	assert.Len(t, table.items, 60)
}

func TestStore_PutBatch_AttributeNames(t *testing.T) {
	table := newFakeTable()
	store := dynamo.New(table, testTables)
	links := makeLinks(1)

	require.NoError(t, store.PutBatch(context.Background(), testPool, links))

	it := table.items[itemKey(testPool.String(), links[0].URL)]
	require.NotNil(t, it)
	assert.Contains(t, it, "created_at")
	assert.NotContains(t, it, "created")
	assert.NotContains(t, it, "participant_id", "unassigned links stay out of the assigned-links index")
	assert.Equal(t, "new", str(it["status"]))
}

func TestStore_QueryUnassigned_FollowsPages(t *testing.T) {
	table := newFakeTable()
	table.pageSize = 4
	store := dynamo.New(table, testTables)
	ctx := context.Background()

	links := makeLinks(10)
	require.NoError(t, store.PutBatch(ctx, testPool, links))

	got, err := store.QueryUnassigned(ctx, testPool)
	require.NoError(t, err)
	require.Len(t, got, 10)

	assert.Equal(t, testPool, got[0].PoolID)
	assert.Equal(t, personallinks.StatusNew, got[0].Status)
	assert.True(t, got[0].Expires.Equal(links[0].Expires))
	assert.Equal(t, "CID_0", got[0].Details["contactId"])
	assert.False(t, got[0].Assigned())

	require.NotEmpty(t, table.queries)
	assert.Equal(t, "unassigned-links", aws.ToString(table.queries[0].IndexName))
	assert.Equal(t, "status", table.queries[0].ExpressionAttributeNames["#status"])
}

func TestStore_TryAssign(t *testing.T) {
	table := newFakeTable()
	store := dynamo.New(table, testTables)
	ctx := context.Background()

	links := makeLinks(2)
	require.NoError(t, store.PutBatch(ctx, testPool, links))

	ok, err := store.TryAssign(ctx, testPool, links[0].URL, "p-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.TryAssign(ctx, testPool, links[0].URL, "p-2")
	require.NoError(t, err)
	assert.False(t, ok, "second participant must lose the race")

	ok, err = store.TryAssign(ctx, testPool, "https://survey.example.com/missing", "p-2")
	require.NoError(t, err)
	assert.False(t, ok, "missing link must not be created")

	held, err := store.QueryAssignedForParticipant(ctx, testPool, "p-1")
	require.NoError(t, err)
	require.Len(t, held, 1)
	assert.Equal(t, links[0].URL, held[0].URL)
	assert.Equal(t, personallinks.StatusAssigned, held[0].Status)
	assert.NotNil(t, held[0].AssignedAt)

	unassigned, err := store.QueryUnassigned(ctx, testPool)
	require.NoError(t, err)
	require.Len(t, unassigned, 1)
	assert.Equal(t, links[1].URL, unassigned[0].URL)
}

func TestStore_TryAssign_ConcurrentRacersHaveOneWinner(t *testing.T) {
	table := newFakeTable()
	store := dynamo.New(table, testTables)
	ctx := context.Background()

	links := makeLinks(1)
	require.NoError(t, store.PutBatch(ctx, testPool, links))

	const racers = 32
	var (
		wg      sync.WaitGroup
		winners atomic.Int32
	)
	for i := range racers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.TryAssign(ctx, testPool, links[0].URL, fmt.Sprintf("p-%d", i))
			assert.NoError(t, err)
			if ok {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
}

func TestStore_Ping(t *testing.T) {
	table := newFakeTable()

	require.NoError(t, dynamo.New(table, testTables).Ping(context.Background()))
	assert.True(t, table.describeCalled)

	missing := dynamo.New(table, dynamo.Tables{Name: "Missing"})
	assert.Error(t, missing.Ping(context.Background()))
}
