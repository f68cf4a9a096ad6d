package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/promptflow/llm/embedding"
	"github.com/BaSui01/promptflow/types"
)

// ElasticConfig configures the Elasticsearch-backed Store implementation.
type ElasticConfig struct {
	// Connection settings
	Host    string `yaml:"host" json:"host"`         // Elasticsearch host (default: localhost)
	Port    int    `yaml:"port" json:"port"`         // Elasticsearch port (default: 9200)
	Scheme  string `yaml:"scheme" json:"scheme"`     // http or https (default: http)
	BaseURL string `yaml:"base_url" json:"base_url"` // Full base URL (overrides host/port/scheme)

	// Authentication
	APIKey string `yaml:"api_key" json:"api_key"` // ApiKey authorization header value

	// Index settings
	Index           string `yaml:"index" json:"index"`                         // Index name (default: prompts-v1)
	AutoCreateIndex bool   `yaml:"auto_create_index" json:"auto_create_index"` // Create index with mapping if missing

	// Vector settings
	VectorDims int `yaml:"vector_dims" json:"vector_dims"` // dense_vector dims (default: 1536)

	// Timeout settings
	Timeout time.Duration `yaml:"timeout" json:"timeout"` // Request timeout (default: 30s)
}

// ElasticStore implements Store using Elasticsearch's REST API.
//
// Searches blend two signals so either can surface a result:
//   - lexical: multi_match over detected_topics^3, lazy_prompt^2, refined_prompt
//     (topic matches outrank body matches)
//   - semantic: cosineSimilarity(query_vector, embedding_vector) + 1.0 via
//     script_score (the +1.0 keeps the score non-negative and the blend monotonic)
type ElasticStore struct {
	cfg      ElasticConfig
	baseURL  string
	client   *http.Client
	embedder embedding.Service
	logger   *zap.Logger

	ensureMu   sync.Mutex
	ensureDone bool
}

// NewElasticStore creates an Elasticsearch-backed Store.
func NewElasticStore(cfg ElasticConfig, embedder embedding.Service, logger *zap.Logger) *ElasticStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 9200
	}
	if cfg.Scheme == "" {
		cfg.Scheme = "http"
	}
	if cfg.Index == "" {
		cfg.Index = "prompts-v1"
	}
	if cfg.VectorDims == 0 {
		cfg.VectorDims = 1536
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = fmt.Sprintf("%s://%s:%d", cfg.Scheme, cfg.Host, cfg.Port)
	}

	return &ElasticStore{
		cfg:      cfg,
		baseURL:  baseURL,
		client:   &http.Client{Timeout: cfg.Timeout},
		embedder: embedder,
		logger:   logger.With(zap.String("component", "elastic_store")),
	}
}

// promptDocument is the indexed document shape. Searchable fields are
// flattened; the full bundle rides along for lossless reconstruction.
type promptDocument struct {
	LazyPrompt     string             `json:"lazy_prompt"`
	RefinedPrompt  string             `json:"refined_prompt"`
	Domain         string             `json:"domain,omitempty"`
	ExpertiseLevel string             `json:"expertise_level,omitempty"`
	DetectedTopics []string           `json:"detected_topics"`
	Embedding      []float64          `json:"embedding_vector"`
	CreatedAt      time.Time          `json:"created_at"`
	Bundle         types.StoredPrompt `json:"bundle"`
}

// indexMapping is applied when AutoCreateIndex is enabled.
func (s *ElasticStore) indexMapping() map[string]any {
	return map[string]any{
		"mappings": map[string]any{
			"properties": map[string]any{
				"lazy_prompt":     map[string]any{"type": "text", "analyzer": "english"},
				"refined_prompt":  map[string]any{"type": "text", "analyzer": "english"},
				"domain":          map[string]any{"type": "keyword"},
				"expertise_level": map[string]any{"type": "keyword"},
				"detected_topics": map[string]any{
					"type": "text",
					"fields": map[string]any{
						"keyword": map[string]any{"type": "keyword"},
					},
				},
				"embedding_vector": map[string]any{"type": "dense_vector", "dims": s.cfg.VectorDims},
				"created_at":       map[string]any{"type": "date"},
				"bundle":           map[string]any{"type": "object", "enabled": false},
			},
		},
	}
}

// doRequest performs a JSON request against Elasticsearch and decodes the
// response into out (when non-nil). Non-2xx statuses become errors unless
// listed in okStatuses.
func (s *ElasticStore) doRequest(ctx context.Context, method, path string, body any, out any, okStatuses ...int) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("elastic marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("elastic create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "ApiKey "+s.cfg.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("elastic request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		for _, ok := range okStatuses {
			if resp.StatusCode == ok {
				return nil
			}
		}
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("elastic request failed: method=%s path=%s status=%d body=%s",
			method, path, resp.StatusCode, string(raw))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("elastic decode response: %w", err)
		}
	}
	return nil
}

// ensureIndex creates the index with mapping if missing. Clear resets the
// flag so the index is recreated on the next write.
func (s *ElasticStore) ensureIndex(ctx context.Context) error {
	if !s.cfg.AutoCreateIndex {
		return nil
	}

	s.ensureMu.Lock()
	defer s.ensureMu.Unlock()
	if s.ensureDone {
		return nil
	}

	// 400 resource_already_exists is fine
	err := s.doRequest(ctx, http.MethodPut, "/"+url.PathEscape(s.cfg.Index), s.indexMapping(), nil, http.StatusBadRequest)
	if err != nil {
		return fmt.Errorf("elastic create index: %w", err)
	}
	s.ensureDone = true
	s.logger.Debug("elastic index ensured", zap.String("index", s.cfg.Index))
	return nil
}

// Store indexes the bundle under a fresh UUID. Embedding failures degrade to
// a zero vector; the write itself still succeeds.
func (s *ElasticStore) Store(ctx context.Context, resp types.PromptResponse, req types.PromptRequest) (string, error) {
	return s.StoreWithID(ctx, uuid.NewString(), resp, req)
}

// StoreWithID indexes the bundle under the caller-supplied id. The hybrid
// router uses this so shadow writes share the authoritative Redis id.
func (s *ElasticStore) StoreWithID(ctx context.Context, id string, resp types.PromptResponse, req types.PromptRequest) (string, error) {
	if err := s.ensureIndex(ctx); err != nil {
		return "", types.NewError(types.ErrStorageError, "failed to ensure index").WithCause(err)
	}

	resp.Cached = false
	norm := req.Normalize()

	doc := promptDocument{
		LazyPrompt:     req.LazyPrompt,
		RefinedPrompt:  resp.RefinedPrompt,
		Domain:         string(norm.Domain),
		ExpertiseLevel: string(norm.ExpertiseLevel),
		DetectedTopics: resp.DetectedTopics,
		Embedding:      s.embedder.EmbedOrZero(ctx, resp.RefinedPrompt),
		CreatedAt:      time.Now().UTC(),
		Bundle: types.StoredPrompt{
			ID:        id,
			Response:  resp,
			Request:   req,
			CreatedAt: time.Now().UTC(),
		},
	}

	path := fmt.Sprintf("/%s/_doc/%s?refresh=wait_for", url.PathEscape(s.cfg.Index), url.PathEscape(id))
	if err := s.doRequest(ctx, http.MethodPut, path, doc, nil); err != nil {
		return "", types.NewError(types.ErrStorageError, "failed to index prompt").WithCause(err)
	}

	s.logger.Debug("prompt indexed", zap.String("id", id))
	return id, nil
}

type elasticGetResponse struct {
	Found  bool           `json:"found"`
	Source promptDocument `json:"_source"`
}

// GetByID retrieves a bundle by id. A 404 maps to (nil, nil).
func (s *ElasticStore) GetByID(ctx context.Context, id string) (*types.StoredPrompt, error) {
	var getResp elasticGetResponse
	path := fmt.Sprintf("/%s/_doc/%s", url.PathEscape(s.cfg.Index), url.PathEscape(id))

	err := s.doRequest(ctx, http.MethodGet, path, nil, &getResp, http.StatusNotFound)
	if err != nil {
		return nil, types.NewError(types.ErrStorageError, "failed to get prompt").WithCause(err)
	}
	if !getResp.Found {
		return nil, nil
	}

	bundle := getResp.Source.Bundle
	return &bundle, nil
}

type elasticSearchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string         `json:"_id"`
			Source promptDocument `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// SearchByTopic combines a fuzzy lexical match with a semantic similarity
// score. Best-effort: backend failures are logged and yield empty results.
func (s *ElasticStore) SearchByTopic(ctx context.Context, topic string, limit int) ([]types.StoredPrompt, error) {
	queryVector := s.embedder.EmbedOrZero(ctx, topic)

	query := map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"should": []any{
					map[string]any{
						"multi_match": map[string]any{
							"query":     topic,
							"fields":    []string{"detected_topics^3", "lazy_prompt^2", "refined_prompt"},
							"fuzziness": "AUTO",
						},
					},
					map[string]any{
						"script_score": map[string]any{
							"query": map[string]any{"match_all": map[string]any{}},
							"script": map[string]any{
								"source": "cosineSimilarity(params.query_vector, 'embedding_vector') + 1.0",
								"params": map[string]any{"query_vector": queryVector},
							},
						},
					},
				},
			},
		},
		"size": limit,
	}

	return s.runSearch(ctx, query, "topic")
}

// SearchRelated runs a cross_fields match over the joined topics with an
// optional domain term filter. Best-effort like SearchByTopic.
func (s *ElasticStore) SearchRelated(ctx context.Context, topics []string, domain types.Domain, limit int) ([]types.StoredPrompt, error) {
	boolQuery := map[string]any{
		"must": []any{
			map[string]any{
				"multi_match": map[string]any{
					"query":    strings.Join(topics, " "),
					"fields":   []string{"detected_topics^3", "lazy_prompt^2", "refined_prompt"},
					"type":     "cross_fields",
					"operator": "or",
				},
			},
		},
	}
	if domain != "" {
		boolQuery["filter"] = []any{
			map[string]any{"term": map[string]any{"domain": string(domain)}},
		}
	}

	query := map[string]any{
		"query": map[string]any{"bool": boolQuery},
		"size":  limit,
	}

	return s.runSearch(ctx, query, "related")
}

func (s *ElasticStore) runSearch(ctx context.Context, query map[string]any, kind string) ([]types.StoredPrompt, error) {
	var searchResp elasticSearchResponse
	path := fmt.Sprintf("/%s/_search", url.PathEscape(s.cfg.Index))

	if err := s.doRequest(ctx, http.MethodPost, path, query, &searchResp); err != nil {
		s.logger.Warn("elastic search failed, returning empty",
			zap.String("kind", kind), zap.Error(err))
		return nil, nil
	}

	results := make([]types.StoredPrompt, 0, len(searchResp.Hits.Hits))
	for _, hit := range searchResp.Hits.Hits {
		bundle := hit.Source.Bundle
		if bundle.ID == "" {
			bundle.ID = hit.ID
		}
		results = append(results, bundle)
	}
	return results, nil
}

// Clear deletes the index and arms recreation on the next write.
func (s *ElasticStore) Clear(ctx context.Context) error {
	err := s.doRequest(ctx, http.MethodDelete, "/"+url.PathEscape(s.cfg.Index), nil, nil, http.StatusNotFound)
	if err != nil {
		return types.NewError(types.ErrStorageError, "failed to delete index").WithCause(err)
	}

	s.ensureMu.Lock()
	s.ensureDone = false
	s.ensureMu.Unlock()

	s.logger.Info("elastic index cleared", zap.String("index", s.cfg.Index))
	return s.ensureIndex(ctx)
}

// Ping checks cluster reachability.
func (s *ElasticStore) Ping(ctx context.Context) error {
	return s.doRequest(ctx, http.MethodGet, "/", nil, nil)
}
