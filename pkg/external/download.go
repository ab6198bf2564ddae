package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/snp-search-service/internal/domain"
)

// DownloadClient fetches export readiness from the annotation API
type DownloadClient struct {
	baseURL    string
	httpClient *http.Client
	rateLimit  *rate.Limiter
}

// NewDownloadClient creates a new download status client. A zero timeout
// leaves the fetch bounded only by the caller's context.
func NewDownloadClient(config domain.DownloadConfig) *DownloadClient {
	var limiter *rate.Limiter
	if config.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), 1)
	}

	return &DownloadClient{
		baseURL: strings.TrimSuffix(config.AnnotationAPI, "/"),
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimit: limiter,
	}
}

// FetchDownload issues a single GET for <base>/total_res/<downloadID>
func (d *DownloadClient) FetchDownload(ctx context.Context, downloadID string) (*domain.DownloadState, error) {
	if downloadID == "" {
		return nil, domain.ErrNoDownloadID
	}

	if d.rateLimit != nil {
		if err := d.rateLimit.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	statusURL := fmt.Sprintf("%s/total_res/%s", d.baseURL, url.PathEscape(downloadID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch download status: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read download response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("annotation API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: download payload is not JSON", domain.ErrUnexpectedResponse)
	}

	return &domain.DownloadState{
		DownloadID: downloadID,
		Payload:    json.RawMessage(body),
		ReceivedAt: time.Now().UTC(),
	}, nil
}
