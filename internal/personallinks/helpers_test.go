package personallinks_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/THIS-Institute/thiscovery-surveys/internal/logger"
	"github.com/THIS-Institute/thiscovery-surveys/internal/personallinks"
	"github.com/THIS-Institute/thiscovery-surveys/internal/store/memory"
)

const (
	testAccount     = "cambridge"
	testSurvey      = "SV_X"
	testContactList = "ML_cambridge"
)

var (
	testPool = personallinks.NewPoolID(testAccount, testSurvey)
	baseTime = time.Date(2030, 6, 1, 12, 0, 0, 0, time.UTC)
)

func testAccounts() personallinks.Accounts {
	return personallinks.Accounts{
		"cambridge":     testContactList,
		"thisinstitute": "ML_this",
	}
}

// fakeSource mints batchSize links per distribution. Expiry of the i-th link
// in a batch is baseTime plus batchSize-i hours, so the last link expires first.
type fakeSource struct {
	mu         sync.Mutex
	batchSize  int
	createErr  error
	calls      int
	contactIDs []string
}

func (f *fakeSource) CreateIndividualLinks(_ context.Context, surveyID, contactListID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.calls++
	f.contactIDs = append(f.contactIDs, contactListID)
	return fmt.Sprintf("EMD_%s_%d", surveyID, f.calls), nil
}

func (f *fakeSource) ListDistributionLinks(_ context.Context, distributionID, _ string) ([]personallinks.DistributionLink, error) {
	rows := make([]personallinks.DistributionLink, 0, f.batchSize)
	for i := range f.batchSize {
		rows = append(rows, personallinks.DistributionLink{
			URL:     fmt.Sprintf("https://survey.example.com/%s/%02d", distributionID, i),
			Expires: baseTime.Add(time.Duration(f.batchSize-i) * time.Hour),
			Details: map[string]any{"contactId": fmt.Sprintf("CID_%d", i)},
		})
	}
	return rows, nil
}

func (f *fakeSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// recordingTrigger collects replenish requests.
type recordingTrigger struct {
	mu       sync.Mutex
	requests []personallinks.ReplenishRequest
}

func (r *recordingTrigger) TriggerReplenish(_ context.Context, req personallinks.ReplenishRequest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
}

func (r *recordingTrigger) Requests() []personallinks.ReplenishRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]personallinks.ReplenishRequest(nil), r.requests...)
}

// stealingStore lets rival participants take links before the caller's
// assignment attempts run.
type stealingStore struct {
	*memory.Store
	mu          sync.Mutex
	stealQuery  bool
	stealMinted bool
	rivals      int
}

// QueryUnassigned returns the links, then hands every one of them to a rival.
func (s *stealingStore) QueryUnassigned(ctx context.Context, pool personallinks.PoolID) ([]personallinks.Link, error) {
	links, err := s.Store.QueryUnassigned(ctx, pool)
	if err != nil || !s.stealQuery {
		return links, err
	}
	s.mu.Lock()
	s.stealQuery = false
	s.mu.Unlock()
	s.stealAll(ctx, pool, links)
	return links, nil
}

// PutBatch stores the links, then hands every one of them to a rival.
func (s *stealingStore) PutBatch(ctx context.Context, pool personallinks.PoolID, links []personallinks.Link) error {
	if err := s.Store.PutBatch(ctx, pool, links); err != nil {
		return err
	}
	if s.stealMinted {
		s.stealAll(ctx, pool, links)
	}
	return nil
}

func (s *stealingStore) stealAll(ctx context.Context, pool personallinks.PoolID, links []personallinks.Link) {
	for _, l := range links {
		s.mu.Lock()
		s.rivals++
		rival := fmt.Sprintf("rival-%d", s.rivals)
		s.mu.Unlock()
		_, _ = s.Store.TryAssign(ctx, pool, l.URL, rival)
	}
}

func seedLinks(expiries ...time.Duration) []personallinks.Link {
	links := make([]personallinks.Link, 0, len(expiries))
	for i, d := range expiries {
		links = append(links, personallinks.Link{
			URL:     fmt.Sprintf("https://survey.example.com/seed/%02d", i),
			Status:  personallinks.StatusNew,
			Expires: baseTime.Add(d),
		})
	}
	return links
}

type allocatorFixture struct {
	store       personallinks.Store
	source      *fakeSource
	trigger     *recordingTrigger
	replenisher *personallinks.Replenisher
	allocator   *personallinks.Allocator
}

func newAllocatorFixture(store personallinks.Store, batchSize, buffer, maxRounds int) *allocatorFixture {
	return newAllocatorFixtureWithConfig(store, batchSize, personallinks.AllocatorConfig{
		Buffer:        buffer,
		MaxMintRounds: maxRounds,
		Timeout:       time.Minute,
	})
}

func newAllocatorFixtureWithConfig(store personallinks.Store, batchSize int, cfg personallinks.AllocatorConfig) *allocatorFixture {
	source := &fakeSource{batchSize: batchSize}
	trigger := &recordingTrigger{}
	log := logger.NewNop()
	replenisher := personallinks.NewReplenisher(
		store,
		personallinks.LinkSources{testAccount: source, "thisinstitute": source},
		personallinks.ReplenisherConfig{Buffer: cfg.Buffer, Attempts: 1, InitialDelay: time.Millisecond},
		log,
		nil,
	)
	allocator := personallinks.NewAllocator(
		store,
		replenisher,
		trigger,
		personallinks.NewValidator(testAccounts(), false),
		testAccounts(),
		cfg,
		log,
		nil,
	)
	return &allocatorFixture{
		store:       store,
		source:      source,
		trigger:     trigger,
		replenisher: replenisher,
		allocator:   allocator,
	}
}

func participantRequest(participant string) personallinks.Request {
	return personallinks.Request{Account: testAccount, SurveyID: testSurvey, ParticipantID: participant}
}
