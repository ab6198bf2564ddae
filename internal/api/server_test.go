package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snp-search-service/internal/domain"
	"github.com/snp-search-service/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeEngine struct {
	envelope *domain.ResultEnvelope
	err      error
	pingErr  error
	requests []domain.SearchRequest
}

func (f *fakeEngine) Search(ctx context.Context, req domain.SearchRequest) (*domain.ResultEnvelope, error) {
	f.requests = append(f.requests, req)
	return f.envelope, f.err
}

func (f *fakeEngine) Ping(ctx context.Context) error {
	return f.pingErr
}

type fakeFetcher struct {
	state *domain.DownloadState
	err   error
}

func (f *fakeFetcher) FetchDownload(ctx context.Context, id string) (*domain.DownloadState, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.state, nil
}

func twoHits() *domain.ResultEnvelope {
	return &domain.ResultEnvelope{Hits: domain.EnvelopeHits{
		Total: domain.HitsTotal{Value: 2},
		Hits: []domain.Hit{
			{ID: "1", Source: json.RawMessage(`{"id":"rs1","pos":120}`)},
			{ID: "2", Source: json.RawMessage(`{"id":"rs2","pos":180}`)},
		},
	}}
}

func setupTestServer(t *testing.T, engine *fakeEngine, fetcher *fakeFetcher) (*Server, *service.SnpService) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	svc, err := service.NewSnpService(engine,
		service.WithPageSize(10),
		service.WithDownloadFetcher(fetcher),
		service.WithLogger(logger),
	)
	require.NoError(t, err)

	cfg := domain.ServerConfig{Host: "127.0.0.1", Port: 0, RequestTimeout: 5 * time.Second}
	return NewServer(cfg, svc, logger), svc
}

func doJSON(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	engine := &fakeEngine{}
	srv, _ := setupTestServer(t, engine, &fakeFetcher{})

	w := doJSON(t, srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
	assert.NotEmpty(t, w.Header().Get("X-Correlation-ID"))

	engine.pingErr = domain.ErrEngineUnavailable
	w = doJSON(t, srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body domain.ServiceError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, domain.ErrEngineUnreachable, body.Code)
	assert.Equal(t, w.Header().Get("X-Correlation-ID"), body.RequestID)
}

func TestInputModes(t *testing.T) {
	srv, svc := setupTestServer(t, &fakeEngine{}, &fakeFetcher{})

	w := doJSON(t, srv, http.MethodGet, "/api/v1/input-modes", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Options  []domain.InputModeInfo `json:"options"`
		Selected domain.InputModeInfo   `json:"selected"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Options, 4)
	assert.Equal(t, domain.InputModeInfo{ID: 1, Label: "Chromosome"}, body.Options[0])
	assert.Equal(t, domain.InputModeInfo{ID: 4, Label: "rsID or variant id"}, body.Options[3])
	assert.Equal(t, 1, body.Selected.ID)

	w = doJSON(t, srv, http.MethodPut, "/api/v1/input-modes/selected", `{"id":3}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.ByGeneProduct, svc.SelectedInputMode())

	w = doJSON(t, srv, http.MethodPut, "/api/v1/input-modes/selected", `{"id":9}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), domain.ErrValidation)
	assert.Equal(t, domain.ByGeneProduct, svc.SelectedInputMode())
}

func TestSearch(t *testing.T) {
	engine := &fakeEngine{envelope: twoHits()}
	srv, svc := setupTestServer(t, engine, &fakeFetcher{})

	w := doJSON(t, srv, http.MethodPost, "/api/v1/snps/search",
		`{"source":["id","pos"],"chrom":"1","start":100,"end":200,"page":2}`)
	require.Equal(t, http.StatusOK, w.Code)

	var outcome domain.SearchOutcome
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &outcome))
	assert.Equal(t, domain.OutcomePublished, outcome.Status)
	require.NotNil(t, outcome.Page)
	assert.Len(t, outcome.Page.Snps, 2)

	require.Len(t, engine.requests, 1)
	assert.Equal(t, 10, engine.requests[0].From)
	assert.Equal(t, 10, engine.requests[0].Size)
	assert.NotNil(t, svc.CurrentPage())

	w = doJSON(t, srv, http.MethodGet, "/api/v1/snps/page", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "rs2")
}

func TestSearch_BadRequests(t *testing.T) {
	engine := &fakeEngine{envelope: twoHits()}
	srv, _ := setupTestServer(t, engine, &fakeFetcher{})

	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"chrom":`},
		{"empty chrom", `{"chrom":"","start":1,"end":2}`},
		{"wrong type", `{"chrom":"1","start":"one"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, srv, http.MethodPost, "/api/v1/snps/search", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
	assert.Empty(t, engine.requests)
}

func TestSearch_FailureReportedInOutcome(t *testing.T) {
	engine := &fakeEngine{err: errors.New("engine down")}
	srv, _ := setupTestServer(t, engine, &fakeFetcher{})

	w := doJSON(t, srv, http.MethodPost, "/api/v1/snps/search", `{"chrom":"1","start":1,"end":2}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"failed"`)
	assert.Contains(t, w.Body.String(), "engine down")

	w = doJSON(t, srv, http.MethodGet, "/api/v1/snps/page", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, srv, http.MethodGet, "/api/v1/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	var status struct {
		Loading     bool                  `json:"loading"`
		LastOutcome *domain.SearchOutcome `json:"last_outcome"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.False(t, status.Loading)
	require.NotNil(t, status.LastOutcome)
	assert.Equal(t, domain.OutcomeFailed, status.LastOutcome.Status)
}

func TestDownloads(t *testing.T) {
	fetcher := &fakeFetcher{state: &domain.DownloadState{DownloadID: "job-7", Payload: json.RawMessage(`{"status":"ready"}`)}}
	srv, svc := setupTestServer(t, &fakeEngine{}, fetcher)

	w := doJSON(t, srv, http.MethodPost, "/api/v1/downloads/fetch", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, srv, http.MethodGet, "/api/v1/downloads/current", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, srv, http.MethodPut, "/api/v1/downloads/id", `{"download_id":"job-7"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "job-7", svc.DownloadID())

	w = doJSON(t, srv, http.MethodPost, "/api/v1/downloads/fetch", "")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), "ready")

	w = doJSON(t, srv, http.MethodGet, "/api/v1/downloads/current", "")
	assert.Equal(t, http.StatusOK, w.Code)

	fetcher.err = errors.New("upstream 500")
	w = doJSON(t, srv, http.MethodPost, "/api/v1/downloads/fetch", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), domain.ErrDownloadFailure)
}

func readEvent(t *testing.T, conn *websocket.Conn) StreamEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&event))
	return StreamEvent{Type: event.Type, Data: event.Data}
}

func TestStream(t *testing.T) {
	engine := &fakeEngine{envelope: twoHits()}
	srv, _ := setupTestServer(t, engine, &fakeFetcher{})

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	initial := map[string]bool{}
	for i := 0; i < 3; i++ {
		initial[readEvent(t, conn).Type] = true
	}
	assert.Equal(t, map[string]bool{EventPage: true, EventDownload: true, EventLoading: true}, initial)

	searchResp, err := http.Post(ts.URL+"/api/v1/snps/search", "application/json",
		strings.NewReader(`{"chrom":"1","start":100,"end":200}`))
	require.NoError(t, err)
	searchResp.Body.Close()

	for {
		event := readEvent(t, conn)
		if event.Type != EventPage {
			continue
		}
		raw, ok := event.Data.(json.RawMessage)
		require.True(t, ok)
		if string(raw) == "null" {
			continue
		}
		assert.Contains(t, string(raw), "rs1")
		break
	}
}
