package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/snp-search-service/internal/domain"
	"github.com/snp-search-service/internal/state"
)

// DefaultPageSize is used when no page size is configured
const DefaultPageSize = 50

// SnpService runs paged SNP searches and publishes result, download and
// loading state to subscribers
type SnpService struct {
	engine      domain.SearchEngine
	fetcher     domain.DownloadFetcher
	pageSize    int
	pingTimeout time.Duration
	logger      *logrus.Logger

	modeMu   sync.RWMutex
	selected domain.InputMode

	downloadMu sync.RWMutex
	downloadID string

	loadingMu sync.Mutex
	inFlight  int

	sequence  atomic.Uint64
	applyMu   sync.Mutex
	appliedID uint64

	outcomeMu sync.Mutex
	outcomeID uint64

	pages     *state.Slot[*domain.ResultPage]
	downloads *state.Slot[*domain.DownloadState]
	loading   *state.Slot[bool]
	outcomes  *state.Slot[*domain.SearchOutcome]
}

// Option is a functional option for SnpService
type Option func(*SnpService) error

// WithPageSize sets the number of results requested per page
func WithPageSize(size int) Option {
	return func(s *SnpService) error {
		if size <= 0 {
			return fmt.Errorf("invalid page size: %d", size)
		}
		s.pageSize = size
		return nil
	}
}

// WithPingTimeout bounds the availability check; zero leaves it unbounded
func WithPingTimeout(timeout time.Duration) Option {
	return func(s *SnpService) error {
		if timeout < 0 {
			return fmt.Errorf("invalid ping timeout: %v", timeout)
		}
		s.pingTimeout = timeout
		return nil
	}
}

// WithDownloadFetcher sets the export status fetcher
func WithDownloadFetcher(fetcher domain.DownloadFetcher) Option {
	return func(s *SnpService) error {
		s.fetcher = fetcher
		return nil
	}
}

// WithLogger sets a custom logger
func WithLogger(logger *logrus.Logger) Option {
	return func(s *SnpService) error {
		s.logger = logger
		return nil
	}
}

// NewSnpService creates a service bound to a search engine
func NewSnpService(engine domain.SearchEngine, opts ...Option) (*SnpService, error) {
	if engine == nil {
		return nil, fmt.Errorf("search engine is required")
	}

	s := &SnpService{
		engine:    engine,
		pageSize:  DefaultPageSize,
		logger:    logrus.New(),
		selected:  domain.DefaultInputMode,
		pages:     state.NewSlot[*domain.ResultPage](nil),
		downloads: state.NewSlot[*domain.DownloadState](nil),
		loading:   state.NewSlot(false),
		outcomes:  state.NewSlot[*domain.SearchOutcome](nil),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	return s, nil
}

// PageSize returns the configured page size
func (s *SnpService) PageSize() int {
	return s.pageSize
}

// SelectInputMode overwrites the selected input mode. The mode is not
// validated; consumer surfaces resolve it with domain.ParseInputMode.
func (s *SnpService) SelectInputMode(mode domain.InputMode) {
	s.modeMu.Lock()
	s.selected = mode
	s.modeMu.Unlock()

	s.logger.WithField("input_mode", mode.String()).Debug("Input mode selected")
}

// SelectedInputMode returns the currently selected input mode
func (s *SnpService) SelectedInputMode() domain.InputMode {
	s.modeMu.RLock()
	defer s.modeMu.RUnlock()
	return s.selected
}

// Search builds the query for the selected mode and runs it for the given
// page. Engine failures are absorbed: the published page is left unchanged
// and the outcome reports the failure. Stale outcomes are returned to the
// caller but never replace the last published outcome.
func (s *SnpService) Search(ctx context.Context, filter domain.AnnotationQuery, page int) *domain.SearchOutcome {
	outcome := s.execute(ctx, filter, page)
	s.publishOutcome(outcome)
	return outcome
}

// publishOutcome keeps LastOutcome on the newest request
func (s *SnpService) publishOutcome(outcome *domain.SearchOutcome) {
	if outcome.Status == domain.OutcomeStale {
		return
	}

	s.outcomeMu.Lock()
	defer s.outcomeMu.Unlock()

	if outcome.RequestID < s.outcomeID {
		return
	}
	s.outcomeID = outcome.RequestID
	s.outcomes.Publish(outcome)
}

func (s *SnpService) execute(ctx context.Context, filter domain.AnnotationQuery, page int) *domain.SearchOutcome {
	start := time.Now()
	if page < 1 {
		page = 1
	}

	requestID := s.sequence.Add(1)
	mode := s.SelectedInputMode()
	query := BuildQuery(mode, filter)
	req := domain.SearchRequest{
		From: (page - 1) * s.pageSize,
		Size: s.pageSize,
		Body: query,
	}

	log := s.logger.WithFields(logrus.Fields{
		"request_id": requestID,
		"input_mode": mode.String(),
		"chrom":      filter.Chrom,
		"page":       page,
		"from":       req.From,
		"size":       req.Size,
	})

	s.beginLoading()
	defer s.endLoading()

	envelope, err := s.engine.Search(ctx, req)
	outcome := &domain.SearchOutcome{RequestID: requestID}

	if err != nil {
		outcome.Status = domain.OutcomeFailed
		outcome.Err = err
		outcome.Error = err.Error()
		s.finish(outcome, start)
		log.WithError(err).Error("SNP search failed")
		return outcome
	}

	resultPage := Normalize(envelope, query, s.pageSize)
	if resultPage != nil {
		resultPage.Page = page
		resultPage.RequestID = requestID
	}

	if !s.apply(requestID, resultPage) {
		outcome.Status = domain.OutcomeStale
		s.finish(outcome, start)
		log.Warn("Discarded stale SNP search response")
		return outcome
	}

	if resultPage == nil {
		outcome.Status = domain.OutcomeEmpty
	} else {
		outcome.Status = domain.OutcomePublished
		outcome.Page = resultPage
	}
	s.finish(outcome, start)

	returned := 0
	if envelope != nil {
		returned = len(envelope.Hits.Hits)
	}
	log.WithFields(logrus.Fields{
		"total":    envelope.TotalMatches(),
		"returned": returned,
		"status":   outcome.Status,
		"duration": outcome.Duration,
	}).Info("SNP search completed")

	return outcome
}

// apply publishes page unless a newer request has already been applied
func (s *SnpService) apply(requestID uint64, page *domain.ResultPage) bool {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	if requestID < s.appliedID {
		return false
	}
	s.appliedID = requestID
	s.pages.Publish(page)
	return true
}

func (s *SnpService) finish(outcome *domain.SearchOutcome, start time.Time) {
	outcome.Duration = time.Since(start)
	outcome.ResolvedAt = time.Now().UTC()
}

func (s *SnpService) beginLoading() {
	s.loadingMu.Lock()
	defer s.loadingMu.Unlock()
	s.inFlight++
	if s.inFlight == 1 {
		s.loading.Publish(true)
	}
}

func (s *SnpService) endLoading() {
	s.loadingMu.Lock()
	defer s.loadingMu.Unlock()
	s.inFlight--
	if s.inFlight == 0 {
		s.loading.Publish(false)
	}
}

// IsLoading reports whether a search is in flight
func (s *SnpService) IsLoading() bool {
	return s.loading.Get()
}

// SetDownloadID stores the export job token used by DownloadSnp
func (s *SnpService) SetDownloadID(id string) {
	s.downloadMu.Lock()
	defer s.downloadMu.Unlock()
	s.downloadID = id
}

// DownloadID returns the stored export job token
func (s *SnpService) DownloadID() string {
	s.downloadMu.RLock()
	defer s.downloadMu.RUnlock()
	return s.downloadID
}

// DownloadSnp fetches the readiness of the stored export job and publishes
// it. Without a download id it does nothing.
func (s *SnpService) DownloadSnp(ctx context.Context) error {
	id := s.DownloadID()
	if id == "" {
		s.logger.Debug("No download id set, skipping download check")
		return nil
	}
	if s.fetcher == nil {
		return fmt.Errorf("download fetcher not configured")
	}

	log := s.logger.WithField("download_id", id)

	downloadState, err := s.fetcher.FetchDownload(ctx, id)
	if err != nil {
		log.WithError(err).Error("Failed to fetch download status")
		return fmt.Errorf("failed to fetch download %s: %w", id, err)
	}

	s.downloads.Publish(downloadState)
	log.Info("Download status published")
	return nil
}

// IsAvailable pings the search engine
func (s *SnpService) IsAvailable(ctx context.Context) bool {
	if s.pingTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.pingTimeout)
		defer cancel()
	}

	if err := s.engine.Ping(ctx); err != nil {
		fields := logrus.Fields{"ping_timeout": s.pingTimeout}
		if errors.Is(err, context.DeadlineExceeded) {
			fields["timed_out"] = true
		}
		s.logger.WithFields(fields).WithError(err).Warn("Search engine is not available")
		return false
	}
	return true
}

// CurrentPage returns the published page, nil when none
func (s *SnpService) CurrentPage() *domain.ResultPage {
	return s.pages.Get()
}

// CurrentDownload returns the published download state, nil when none
func (s *SnpService) CurrentDownload() *domain.DownloadState {
	return s.downloads.Get()
}

// LastOutcome returns the outcome of the most recently resolved search
func (s *SnpService) LastOutcome() *domain.SearchOutcome {
	return s.outcomes.Get()
}

// Pages returns the result page slot
func (s *SnpService) Pages() *state.Slot[*domain.ResultPage] {
	return s.pages
}

// Downloads returns the download state slot
func (s *SnpService) Downloads() *state.Slot[*domain.DownloadState] {
	return s.downloads
}

// Loading returns the loading flag slot
func (s *SnpService) Loading() *state.Slot[bool] {
	return s.loading
}

// Outcomes returns the search outcome slot
func (s *SnpService) Outcomes() *state.Slot[*domain.SearchOutcome] {
	return s.outcomes
}
