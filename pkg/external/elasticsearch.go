package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/snp-search-service/internal/domain"
)

// ElasticsearchClient handles search and ping calls against the SNP index
type ElasticsearchClient struct {
	es      *elasticsearch.Client
	index   string
	timeout time.Duration
}

// ElasticsearchConfig represents configuration for the Elasticsearch client
type ElasticsearchConfig struct {
	Addresses []string
	Index     string
	Username  string
	Password  string
	APIKey    string
	Timeout   time.Duration
	Transport http.RoundTripper
}

// engineErrorResponse is the error body returned by the engine
type engineErrorResponse struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
	Status int `json:"status"`
}

// NewElasticsearchClient creates a new Elasticsearch client
func NewElasticsearchClient(config ElasticsearchConfig) (*ElasticsearchClient, error) {
	if len(config.Addresses) == 0 {
		return nil, fmt.Errorf("at least one Elasticsearch address is required")
	}
	if config.Index == "" {
		config.Index = "snps"
	}

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: config.Addresses,
		Username:  config.Username,
		Password:  config.Password,
		APIKey:    config.APIKey,
		Transport: config.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	return &ElasticsearchClient{
		es:      es,
		index:   config.Index,
		timeout: config.Timeout,
	}, nil
}

// NewElasticsearchClientFromConfig creates a client from the search configuration
func NewElasticsearchClientFromConfig(cfg domain.SearchConfig) (*ElasticsearchClient, error) {
	return NewElasticsearchClient(ElasticsearchConfig{
		Addresses: cfg.Addresses,
		Index:     cfg.Index,
		Username:  cfg.Username,
		Password:  cfg.Password,
		APIKey:    cfg.APIKey,
		Timeout:   cfg.Timeout,
	})
}

// Index returns the index searched by this client
func (c *ElasticsearchClient) Index() string {
	return c.index
}

// Search runs one paged query and decodes the result envelope
func (c *ElasticsearchClient) Search(ctx context.Context, req domain.SearchRequest) (*domain.ResultEnvelope, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	body, err := json.Marshal(req.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search body: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithFrom(req.From),
		c.es.Search.WithSize(req.Size),
		c.es.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to execute search request: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, decodeEngineError(res)
	}

	var envelope domain.ResultEnvelope
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}

	return &envelope, nil
}

// Ping checks that the engine is reachable. The caller's context bounds the wait.
func (c *ElasticsearchClient) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrEngineUnavailable, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("%w: ping returned status %d", domain.ErrEngineUnavailable, res.StatusCode)
	}
	return nil
}

func decodeEngineError(res *esapi.Response) error {
	body, _ := io.ReadAll(res.Body)

	var engineErr engineErrorResponse
	if err := json.Unmarshal(body, &engineErr); err == nil && engineErr.Error.Type != "" {
		return fmt.Errorf("search engine returned status %d: %s: %s",
			res.StatusCode, engineErr.Error.Type, engineErr.Error.Reason)
	}

	return fmt.Errorf("search engine returned status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
}
