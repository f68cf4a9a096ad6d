package storage

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/promptflow/types"
)

// fakeEmbedder returns a fixed vector so query shapes are deterministic.
type fakeEmbedder struct {
	dims int
	fail bool
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if f.fail {
		return nil, types.NewError(types.ErrConnectionError, "embedding service down")
	}
	vec := make([]float64, f.dims)
	for i := range vec {
		vec[i] = 0.5
	}
	return vec, nil
}

func (f *fakeEmbedder) EmbedOrZero(ctx context.Context, text string) []float64 {
	vec, err := f.Embed(ctx, text)
	if err != nil {
		return make([]float64, f.dims)
	}
	return vec
}

func (f *fakeEmbedder) Dimensions() int { return f.dims }

// fakeElastic is a minimal in-memory Elasticsearch double. It records the
// last search body for query-shape assertions.
type fakeElastic struct {
	mu           sync.Mutex
	docs         map[string]promptDocument
	indexCreated bool
	lastSearch   map[string]any
	searchHits   []string // doc ids to return, in order
	failSearch   bool
}

func newFakeElastic() *fakeElastic {
	return &fakeElastic{docs: make(map[string]promptDocument)}
}

func (f *fakeElastic) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		switch {
		case r.URL.Path == "/":
			w.WriteHeader(http.StatusOK)

		// PUT /{index} — create index
		case r.Method == http.MethodPut && len(parts) == 1:
			if f.indexCreated {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"error":{"type":"resource_already_exists_exception"}}`))
				return
			}
			f.indexCreated = true
			w.WriteHeader(http.StatusOK)

		// DELETE /{index}
		case r.Method == http.MethodDelete && len(parts) == 1:
			if !f.indexCreated {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			f.indexCreated = false
			f.docs = make(map[string]promptDocument)
			w.WriteHeader(http.StatusOK)

		// PUT /{index}/_doc/{id}
		case r.Method == http.MethodPut && len(parts) == 3 && parts[1] == "_doc":
			var doc promptDocument
			if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			f.docs[parts[2]] = doc
			w.WriteHeader(http.StatusCreated)

		// GET /{index}/_doc/{id}
		case r.Method == http.MethodGet && len(parts) == 3 && parts[1] == "_doc":
			doc, ok := f.docs[parts[2]]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				json.NewEncoder(w).Encode(map[string]any{"found": false})
				return
			}
			json.NewEncoder(w).Encode(map[string]any{"found": true, "_source": doc})

		// POST /{index}/_search
		case r.Method == http.MethodPost && len(parts) == 2 && parts[1] == "_search":
			if f.failSearch {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			f.lastSearch = body

			hits := make([]map[string]any, 0, len(f.searchHits))
			for _, id := range f.searchHits {
				if doc, ok := f.docs[id]; ok {
					hits = append(hits, map[string]any{"_id": id, "_source": doc})
				}
			}
			json.NewEncoder(w).Encode(map[string]any{
				"hits": map[string]any{"hits": hits},
			})

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func setupElasticStore(t *testing.T) (*fakeElastic, *ElasticStore) {
	t.Helper()
	fake := newFakeElastic()
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	store := NewElasticStore(ElasticConfig{
		BaseURL:         srv.URL,
		AutoCreateIndex: true,
		VectorDims:      8,
		Timeout:         5 * time.Second,
	}, &fakeEmbedder{dims: 8}, zap.NewNop())
	return fake, store
}

func TestElasticStore_StoreAndGet(t *testing.T) {
	fake, store := setupElasticStore(t)
	ctx := context.Background()

	req := types.PromptRequest{LazyPrompt: "explain terraform state", Domain: types.DomainInfrastructure}
	resp := sampleResponse("Terraform")
	resp.Cached = true

	id, err := store.Store(ctx, resp, req)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	assert.True(t, fake.indexCreated)

	doc := fake.docs[id]
	assert.Equal(t, "explain terraform state", doc.LazyPrompt)
	assert.Equal(t, "infrastructure", doc.Domain)
	assert.Equal(t, "intermediate", doc.ExpertiseLevel) // normalized default
	assert.Len(t, doc.Embedding, 8)
	assert.False(t, doc.Bundle.Response.Cached)

	bundle, err := store.GetByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, bundle)
	assert.Equal(t, id, bundle.ID)
	assert.Equal(t, "refined prompt text", bundle.Response.RefinedPrompt)
}

func TestElasticStore_StoreWithIDReusesID(t *testing.T) {
	fake, store := setupElasticStore(t)

	id, err := store.StoreWithID(context.Background(), "kv-id-42", sampleResponse("go"), types.PromptRequest{LazyPrompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "kv-id-42", id)
	assert.Contains(t, fake.docs, "kv-id-42")
}

func TestElasticStore_GetByIDNotFound(t *testing.T) {
	_, store := setupElasticStore(t)

	bundle, err := store.GetByID(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, bundle)
}

func TestElasticStore_EmbeddingFailureDegradesToZeroVector(t *testing.T) {
	fake := newFakeElastic()
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	store := NewElasticStore(ElasticConfig{
		BaseURL:         srv.URL,
		AutoCreateIndex: true,
		VectorDims:      8,
	}, &fakeEmbedder{dims: 8, fail: true}, zap.NewNop())

	id, err := store.Store(context.Background(), sampleResponse("go"), types.PromptRequest{LazyPrompt: "x"})
	require.NoError(t, err)

	doc := fake.docs[id]
	require.Len(t, doc.Embedding, 8)
	for _, v := range doc.Embedding {
		assert.Zero(t, v)
	}
}

func TestElasticStore_SearchByTopicQueryShape(t *testing.T) {
	fake, store := setupElasticStore(t)
	ctx := context.Background()

	id, err := store.Store(ctx, sampleResponse("Terraform"), types.PromptRequest{LazyPrompt: "x"})
	require.NoError(t, err)
	fake.searchHits = []string{id}

	results, err := store.SearchByTopic(ctx, "terraform", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, id, results[0].ID)

	// lexical + semantic should clauses
	raw, err := json.Marshal(fake.lastSearch)
	require.NoError(t, err)
	body := string(raw)
	assert.Contains(t, body, `"detected_topics^3"`)
	assert.Contains(t, body, `"fuzziness":"AUTO"`)
	assert.Contains(t, body, "cosineSimilarity(params.query_vector, 'embedding_vector') + 1.0")
	assert.Equal(t, float64(5), fake.lastSearch["size"])
}

func TestElasticStore_SearchRelatedDomainFilter(t *testing.T) {
	fake, store := setupElasticStore(t)
	ctx := context.Background()

	_, err := store.Store(ctx, sampleResponse("Terraform"), types.PromptRequest{LazyPrompt: "x"})
	require.NoError(t, err)

	_, err = store.SearchRelated(ctx, []string{"terraform", "aws"}, types.DomainInfrastructure, 3)
	require.NoError(t, err)

	raw, err := json.Marshal(fake.lastSearch)
	require.NoError(t, err)
	body := string(raw)
	assert.Contains(t, body, `"query":"terraform aws"`)
	assert.Contains(t, body, `"type":"cross_fields"`)
	assert.Contains(t, body, `"term":{"domain":"infrastructure"}`)

	// 无领域时不应携带 filter
	_, err = store.SearchRelated(ctx, []string{"terraform"}, "", 3)
	require.NoError(t, err)
	raw, err = json.Marshal(fake.lastSearch)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), `"filter"`)
}

func TestElasticStore_SearchFailureReturnsEmpty(t *testing.T) {
	fake, store := setupElasticStore(t)
	fake.failSearch = true

	results, err := store.SearchByTopic(context.Background(), "terraform", 5)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = store.SearchRelated(context.Background(), []string{"terraform"}, "", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestElasticStore_Clear(t *testing.T) {
	fake, store := setupElasticStore(t)
	ctx := context.Background()

	id, err := store.Store(ctx, sampleResponse("go"), types.PromptRequest{LazyPrompt: "x"})
	require.NoError(t, err)

	require.NoError(t, store.Clear(ctx))
	assert.Empty(t, fake.docs)
	// 清空后索引按需重建，后续写入正常
	assert.True(t, fake.indexCreated)

	bundle, err := store.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, bundle)

	_, err = store.Store(ctx, sampleResponse("go"), types.PromptRequest{LazyPrompt: "y"})
	require.NoError(t, err)
}

func TestElasticStore_ClearMissingIndexOK(t *testing.T) {
	_, store := setupElasticStore(t)
	assert.NoError(t, store.Clear(context.Background()))
}

func TestElasticStore_Ping(t *testing.T) {
	fake := newFakeElastic()
	srv := httptest.NewServer(fake.handler())
	store := NewElasticStore(ElasticConfig{BaseURL: srv.URL}, &fakeEmbedder{dims: 4}, zap.NewNop())

	assert.NoError(t, store.Ping(context.Background()))
	srv.Close()
	assert.Error(t, store.Ping(context.Background()))
}
