package personallinks_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/THIS-Institute/thiscovery-surveys/internal/logger"
	"github.com/THIS-Institute/thiscovery-surveys/internal/personallinks"
	"github.com/THIS-Institute/thiscovery-surveys/internal/personallinks/mocks"
)

// temporaryError is a source failure the platform client marks as retryable.
type temporaryError struct{ msg string }

func (e *temporaryError) Error() string   { return e.msg }
func (e *temporaryError) Retryable() bool { return true }

func newTestReplenisher(store personallinks.Store, source personallinks.LinkSource, attempts int) *personallinks.Replenisher {
	return personallinks.NewReplenisher(
		store,
		personallinks.LinkSources{testAccount: source},
		personallinks.ReplenisherConfig{Buffer: 3, Attempts: attempts, InitialDelay: time.Millisecond},
		logger.NewNop(),
		nil,
	)
}

func TestReplenish_MapsPlatformRowsToNewLinks(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	source := mocks.NewMockLinkSource(ctrl)
	rows := []personallinks.DistributionLink{
		{URL: "https://survey.example.com/1", Expires: baseTime.Add(time.Hour), Details: map[string]any{"contactId": "CID_1"}},
		{URL: "", Expires: baseTime},
		{URL: "https://survey.example.com/2", Expires: baseTime.Add(2 * time.Hour)},
	}

	var stored []personallinks.Link
	gomock.InOrder(
		source.EXPECT().CreateIndividualLinks(gomock.Any(), testSurvey, testContactList).Return("EMD_1", nil),
		source.EXPECT().ListDistributionLinks(gomock.Any(), "EMD_1", testSurvey).Return(rows, nil),
		store.EXPECT().PutBatch(gomock.Any(), testPool, gomock.Len(2)).
			DoAndReturn(func(_ context.Context, _ personallinks.PoolID, links []personallinks.Link) error {
				stored = links
				return nil
			}),
	)

	links, err := newTestReplenisher(store, source, 1).Replenish(context.Background(), testAccount, testSurvey, testContactList)
	require.NoError(t, err)

	require.Len(t, links, 2)
	assert.Equal(t, stored, links)
	assert.Equal(t, testPool, links[0].PoolID)
	assert.Equal(t, "https://survey.example.com/1", links[0].URL)
	assert.Equal(t, personallinks.StatusNew, links[0].Status)
	assert.Equal(t, baseTime.Add(time.Hour), links[0].Expires)
	assert.Equal(t, "CID_1", links[0].Details["contactId"])
	assert.Empty(t, links[0].ParticipantID)
	assert.False(t, links[0].CreatedAt.IsZero())
}

func TestReplenish_SourceFailureWritesNothing(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	source := mocks.NewMockLinkSource(ctrl)
	source.EXPECT().CreateIndividualLinks(gomock.Any(), testSurvey, testContactList).Return("EMD_1", nil)
	source.EXPECT().ListDistributionLinks(gomock.Any(), "EMD_1", testSurvey).Return(nil, errors.New("bad request"))

	_, err := newTestReplenisher(store, source, 3).Replenish(context.Background(), testAccount, testSurvey, testContactList)

	require.ErrorIs(t, err, personallinks.ErrUpstreamUnavailable)
}

func TestReplenish_RetriesWholeMintAfterPartialWrite(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	source := mocks.NewMockLinkSource(ctrl)
	rows := []personallinks.DistributionLink{{URL: "https://survey.example.com/1", Expires: baseTime}}

	source.EXPECT().CreateIndividualLinks(gomock.Any(), testSurvey, testContactList).Return("EMD_1", nil)
	source.EXPECT().ListDistributionLinks(gomock.Any(), "EMD_1", testSurvey).Return(rows, nil)
	store.EXPECT().PutBatch(gomock.Any(), testPool, gomock.Any()).Return(errors.New("unprocessed items"))

	source.EXPECT().CreateIndividualLinks(gomock.Any(), testSurvey, testContactList).Return("EMD_2", nil)
	source.EXPECT().ListDistributionLinks(gomock.Any(), "EMD_2", testSurvey).Return(rows, nil)
	store.EXPECT().PutBatch(gomock.Any(), testPool, gomock.Any()).Return(nil)

	links, err := newTestReplenisher(store, source, 3).Replenish(context.Background(), testAccount, testSurvey, testContactList)
	require.NoError(t, err)
	assert.Len(t, links, 1)
}

func TestReplenish_RetriesRetryableSourceErrors(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	source := mocks.NewMockLinkSource(ctrl)

	source.EXPECT().CreateIndividualLinks(gomock.Any(), testSurvey, testContactList).
		Return("", &temporaryError{msg: "429 too many requests"}).Times(2)

	_, err := newTestReplenisher(store, source, 2).Replenish(context.Background(), testAccount, testSurvey, testContactList)

	require.ErrorIs(t, err, personallinks.ErrUpstreamUnavailable)
	var tmp *temporaryError
	assert.ErrorAs(t, err, &tmp)
}

func TestReplenish_UnknownAccount(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	replenisher := newTestReplenisher(mocks.NewMockStore(ctrl), mocks.NewMockLinkSource(ctrl), 1)

	_, err := replenisher.Replenish(context.Background(), "oxford", testSurvey, testContactList)
	require.ErrorIs(t, err, personallinks.ErrInvalidInput)
}

func TestBufferLow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		links int
		low   bool
	}{
		{"empty", 0, true},
		{"one below buffer", 2, true},
		{"at buffer", 3, false},
		{"above buffer", 5, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			store := mocks.NewMockStore(ctrl)
			store.EXPECT().QueryUnassigned(gomock.Any(), testPool).Return(make([]personallinks.Link, tt.links), nil)

			low, count, err := newTestReplenisher(store, mocks.NewMockLinkSource(ctrl), 1).BufferLow(context.Background(), testPool)
			require.NoError(t, err)
			assert.Equal(t, tt.low, low)
			assert.Equal(t, tt.links, count)
		})
	}
}
