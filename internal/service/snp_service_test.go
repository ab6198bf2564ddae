package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/snp-search-service/internal/domain"
	"github.com/snp-search-service/internal/state"
)

type MockSearchEngine struct {
	mock.Mock
}

func (m *MockSearchEngine) Search(ctx context.Context, req domain.SearchRequest) (*domain.ResultEnvelope, error) {
	args := m.Called(ctx, req)
	env, _ := args.Get(0).(*domain.ResultEnvelope)
	return env, args.Error(1)
}

func (m *MockSearchEngine) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type MockDownloadFetcher struct {
	mock.Mock
}

func (m *MockDownloadFetcher) FetchDownload(ctx context.Context, downloadID string) (*domain.DownloadState, error) {
	args := m.Called(ctx, downloadID)
	st, _ := args.Get(0).(*domain.DownloadState)
	return st, args.Error(1)
}

func newTestService(t *testing.T, engine domain.SearchEngine, opts ...Option) (*SnpService, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	opts = append([]Option{WithLogger(logger)}, opts...)
	svc, err := NewSnpService(engine, opts...)
	require.NoError(t, err)
	return svc, hook
}

var sampleFilter = domain.AnnotationQuery{Source: []string{"id", "pos"}, Chrom: "1", Start: 100, End: 200}

func TestNewSnpService_Defaults(t *testing.T) {
	svc, _ := newTestService(t, &MockSearchEngine{})

	assert.Equal(t, DefaultPageSize, svc.PageSize())
	assert.Equal(t, domain.ByChromosome, svc.SelectedInputMode())
	assert.Nil(t, svc.CurrentPage())
	assert.Nil(t, svc.CurrentDownload())
	assert.Nil(t, svc.LastOutcome())
	assert.False(t, svc.IsLoading())
	assert.Empty(t, svc.DownloadID())
}

func TestNewSnpService_Errors(t *testing.T) {
	_, err := NewSnpService(nil)
	assert.Error(t, err)

	_, err = NewSnpService(&MockSearchEngine{}, WithPageSize(0))
	assert.Error(t, err)

	_, err = NewSnpService(&MockSearchEngine{}, WithPingTimeout(-time.Second))
	assert.Error(t, err)
}

func TestSnpService_SelectInputMode(t *testing.T) {
	svc, _ := newTestService(t, &MockSearchEngine{})

	svc.SelectInputMode(domain.ByRsID)
	assert.Equal(t, domain.ByRsID, svc.SelectedInputMode())

	// no validation against the known set
	svc.SelectInputMode(domain.InputMode(42))
	assert.Equal(t, domain.InputMode(42), svc.SelectedInputMode())
}

func TestSnpService_SearchScenario(t *testing.T) {
	engine := &MockSearchEngine{}
	svc, _ := newTestService(t, engine, WithPageSize(10))

	expectedReq := domain.SearchRequest{
		From: 10,
		Size: 10,
		Body: domain.EngineQuery{
			Source: []string{"id", "pos"},
			Query: domain.BoolQuery{Bool: domain.BoolClause{Filter: []domain.FilterClause{
				{Term: map[string]string{"chr": "1"}},
				{Range: map[string]domain.RangeBounds{"pos": {GTE: 100, LTE: 200}}},
			}}},
		},
	}
	engine.On("Search", mock.Anything, expectedReq).
		Return(envelopeOf(12, `{"id":"rs11","pos":150}`, `{"id":"rs12","pos":190}`), nil).Once()

	svc.SelectInputMode(domain.ByGeneProduct)
	outcome := svc.Search(context.Background(), sampleFilter, 2)

	engine.AssertExpectations(t)
	require.Equal(t, domain.OutcomePublished, outcome.Status)
	page := svc.CurrentPage()
	require.NotNil(t, page)
	assert.Same(t, page, outcome.Page)
	assert.Equal(t, int64(12), page.Total)
	assert.Equal(t, 10, page.Size)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, []string{"id", "pos"}, page.Source)
	assert.Len(t, page.Snps, 2)
	assert.Equal(t, outcome.RequestID, page.RequestID)
	assert.Same(t, outcome, svc.LastOutcome())
	assert.False(t, svc.IsLoading())
}

func TestSnpService_SearchOffsets(t *testing.T) {
	tests := []struct {
		page, pageSize, from int
	}{
		{1, 10, 0},
		{2, 10, 10},
		{5, 25, 100},
		{0, 10, 0},
		{-3, 10, 0},
	}

	for _, tt := range tests {
		engine := &MockSearchEngine{}
		svc, _ := newTestService(t, engine, WithPageSize(tt.pageSize))

		engine.On("Search", mock.Anything, mock.MatchedBy(func(req domain.SearchRequest) bool {
			return req.From == tt.from && req.Size == tt.pageSize
		})).Return(envelopeOf(0), nil).Once()

		svc.Search(context.Background(), sampleFilter, tt.page)
		engine.AssertExpectations(t)
	}
}

func TestSnpService_EmptyClearsPage(t *testing.T) {
	engine := &MockSearchEngine{}
	svc, _ := newTestService(t, engine)

	engine.On("Search", mock.Anything, mock.Anything).Return(envelopeOf(1, `{"id":"rs1"}`), nil).Once()
	engine.On("Search", mock.Anything, mock.Anything).Return(envelopeOf(0), nil).Once()

	first := svc.Search(context.Background(), sampleFilter, 1)
	require.Equal(t, domain.OutcomePublished, first.Status)
	require.NotNil(t, svc.CurrentPage())

	second := svc.Search(context.Background(), sampleFilter, 1)
	assert.Equal(t, domain.OutcomeEmpty, second.Status)
	assert.Nil(t, second.Page)
	assert.Nil(t, svc.CurrentPage())
}

func TestSnpService_FailureLeavesPage(t *testing.T) {
	engine := &MockSearchEngine{}
	svc, hook := newTestService(t, engine)

	engine.On("Search", mock.Anything, mock.Anything).Return(envelopeOf(1, `{"id":"rs1"}`), nil).Once()
	engine.On("Search", mock.Anything, mock.Anything).Return(nil, errors.New("connection reset")).Once()

	svc.Search(context.Background(), sampleFilter, 1)
	previous := svc.CurrentPage()
	require.NotNil(t, previous)

	outcome := svc.Search(context.Background(), sampleFilter, 2)

	assert.Equal(t, domain.OutcomeFailed, outcome.Status)
	assert.EqualError(t, outcome.Err, "connection reset")
	assert.Equal(t, "connection reset", outcome.Error)
	assert.Same(t, previous, svc.CurrentPage())
	assert.False(t, svc.IsLoading())

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, "SNP search failed", entry.Message)
}

func TestSnpService_LoadingFlag(t *testing.T) {
	engine := &MockSearchEngine{}
	svc, _ := newTestService(t, engine)

	var seenDuringSearch bool
	engine.On("Search", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		seenDuringSearch = svc.IsLoading()
	}).Return(envelopeOf(0), nil).Once()
	engine.On("Search", mock.Anything, mock.Anything).Return(nil, errors.New("boom")).Once()

	var transitions []bool
	var mu sync.Mutex
	svc.Loading().Subscribe(state.SubscriberFunc[bool](func(v bool) {
		mu.Lock()
		transitions = append(transitions, v)
		mu.Unlock()
	}))

	assert.False(t, svc.IsLoading())
	svc.Search(context.Background(), sampleFilter, 1)
	assert.True(t, seenDuringSearch)
	assert.False(t, svc.IsLoading())

	svc.Search(context.Background(), sampleFilter, 1)
	assert.False(t, svc.IsLoading())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{false, true, false, true, false}, transitions)
}

func TestSnpService_LoadingClearedOnPanic(t *testing.T) {
	engine := &MockSearchEngine{}
	svc, _ := newTestService(t, engine)

	engine.On("Search", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		panic("engine exploded")
	}).Return(nil, nil).Once()

	assert.Panics(t, func() {
		svc.Search(context.Background(), sampleFilter, 1)
	})
	assert.False(t, svc.IsLoading())
}

// blockingEngine releases each search only when told to
type blockingEngine struct {
	mu      sync.Mutex
	started chan int
	release map[int]chan *domain.ResultEnvelope
}

func newBlockingEngine() *blockingEngine {
	return &blockingEngine{
		started: make(chan int, 10),
		release: make(map[int]chan *domain.ResultEnvelope),
	}
}

func (b *blockingEngine) gate(from int) chan *domain.ResultEnvelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.release[from]
	if !ok {
		ch = make(chan *domain.ResultEnvelope, 1)
		b.release[from] = ch
	}
	return ch
}

func (b *blockingEngine) Search(ctx context.Context, req domain.SearchRequest) (*domain.ResultEnvelope, error) {
	ch := b.gate(req.From)
	b.started <- req.From
	select {
	case env := <-ch:
		return env, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *blockingEngine) Ping(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestSnpService_StaleResponseDiscarded(t *testing.T) {
	engine := newBlockingEngine()
	svc, _ := newTestService(t, engine, WithPageSize(10))

	olderDone := make(chan *domain.SearchOutcome, 1)
	go func() {
		olderDone <- svc.Search(context.Background(), sampleFilter, 1)
	}()
	require.Equal(t, 0, <-engine.started)

	newerDone := make(chan *domain.SearchOutcome, 1)
	go func() {
		newerDone <- svc.Search(context.Background(), sampleFilter, 2)
	}()
	require.Equal(t, 10, <-engine.started)
	assert.True(t, svc.IsLoading())

	engine.gate(10) <- envelopeOf(20, `{"id":"newer"}`)
	newer := <-newerDone
	require.Equal(t, domain.OutcomePublished, newer.Status)
	assert.True(t, svc.IsLoading(), "older search still in flight")

	engine.gate(0) <- envelopeOf(20, `{"id":"older"}`)
	older := <-olderDone

	assert.Equal(t, domain.OutcomeStale, older.Status)
	assert.Less(t, older.RequestID, newer.RequestID)
	page := svc.CurrentPage()
	require.NotNil(t, page)
	assert.Equal(t, 2, page.Page)
	assert.JSONEq(t, `{"id":"newer"}`, string(page.Snps[0]))
	assert.False(t, svc.IsLoading())
	assert.Same(t, newer, svc.LastOutcome())
}

func TestSnpService_OlderFailureKeepsNewerOutcome(t *testing.T) {
	engine := newBlockingEngine()
	svc, _ := newTestService(t, engine, WithPageSize(10))

	olderCtx, cancelOlder := context.WithCancel(context.Background())
	defer cancelOlder()
	olderDone := make(chan *domain.SearchOutcome, 1)
	go func() {
		olderDone <- svc.Search(olderCtx, sampleFilter, 1)
	}()
	require.Equal(t, 0, <-engine.started)

	newerDone := make(chan *domain.SearchOutcome, 1)
	go func() {
		newerDone <- svc.Search(context.Background(), sampleFilter, 2)
	}()
	require.Equal(t, 10, <-engine.started)

	engine.gate(10) <- envelopeOf(20, `{"id":"newer"}`)
	newer := <-newerDone

	cancelOlder()
	older := <-olderDone

	assert.Equal(t, domain.OutcomeFailed, older.Status)
	assert.Same(t, newer, svc.LastOutcome())
}

func TestSnpService_PageSubscribers(t *testing.T) {
	engine := &MockSearchEngine{}
	svc, _ := newTestService(t, engine)
	engine.On("Search", mock.Anything, mock.Anything).Return(envelopeOf(1, `{"id":"rs1"}`), nil).Once()
	engine.On("Search", mock.Anything, mock.Anything).Return(envelopeOf(0), nil).Once()

	var received []*domain.ResultPage
	svc.Pages().Subscribe(state.SubscriberFunc[*domain.ResultPage](func(p *domain.ResultPage) {
		received = append(received, p)
	}))

	svc.Search(context.Background(), sampleFilter, 1)
	svc.Search(context.Background(), sampleFilter, 1)

	require.Len(t, received, 3)
	assert.Nil(t, received[0])
	assert.NotNil(t, received[1])
	assert.Nil(t, received[2])
}

func TestSnpService_DownloadSnpWithoutID(t *testing.T) {
	fetcher := &MockDownloadFetcher{}
	svc, _ := newTestService(t, &MockSearchEngine{}, WithDownloadFetcher(fetcher))

	require.NoError(t, svc.DownloadSnp(context.Background()))
	require.NoError(t, svc.DownloadSnp(context.Background()))

	fetcher.AssertNotCalled(t, "FetchDownload", mock.Anything, mock.Anything)
	assert.Nil(t, svc.CurrentDownload())
}

func TestSnpService_DownloadSnpPublishes(t *testing.T) {
	fetcher := &MockDownloadFetcher{}
	svc, _ := newTestService(t, &MockSearchEngine{}, WithDownloadFetcher(fetcher))

	ready := &domain.DownloadState{DownloadID: "job-1", Payload: json.RawMessage(`{"ready":true}`)}
	fetcher.On("FetchDownload", mock.Anything, "job-1").Return(ready, nil).Once()

	svc.SetDownloadID("job-1")
	require.NoError(t, svc.DownloadSnp(context.Background()))

	assert.Same(t, ready, svc.CurrentDownload())
	fetcher.AssertExpectations(t)
}

func TestSnpService_DownloadSnpFailureKeepsState(t *testing.T) {
	fetcher := &MockDownloadFetcher{}
	svc, _ := newTestService(t, &MockSearchEngine{}, WithDownloadFetcher(fetcher))

	ready := &domain.DownloadState{DownloadID: "job-1", Payload: json.RawMessage(`{}`)}
	fetcher.On("FetchDownload", mock.Anything, "job-1").Return(ready, nil).Once()
	fetcher.On("FetchDownload", mock.Anything, "job-2").Return(nil, errors.New("gateway timeout")).Once()

	svc.SetDownloadID("job-1")
	require.NoError(t, svc.DownloadSnp(context.Background()))

	svc.SetDownloadID("job-2")
	err := svc.DownloadSnp(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job-2")
	assert.Same(t, ready, svc.CurrentDownload())
}

func TestSnpService_DownloadSnpWithoutFetcher(t *testing.T) {
	svc, _ := newTestService(t, &MockSearchEngine{})

	svc.SetDownloadID("job-1")
	assert.Error(t, svc.DownloadSnp(context.Background()))
}

func TestSnpService_IsAvailable(t *testing.T) {
	engine := &MockSearchEngine{}
	svc, _ := newTestService(t, engine)

	engine.On("Ping", mock.Anything).Return(nil).Once()
	engine.On("Ping", mock.Anything).Return(domain.ErrEngineUnavailable).Once()

	assert.True(t, svc.IsAvailable(context.Background()))
	assert.False(t, svc.IsAvailable(context.Background()))
}

func TestSnpService_IsAvailablePingTimeout(t *testing.T) {
	svc, hook := newTestService(t, newBlockingEngine(), WithPingTimeout(20*time.Millisecond))

	start := time.Now()
	assert.False(t, svc.IsAvailable(context.Background()))
	assert.Less(t, time.Since(start), time.Second)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, true, entry.Data["timed_out"])
}
