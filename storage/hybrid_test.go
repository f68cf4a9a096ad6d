package storage

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/BaSui01/promptflow/internal/metrics"
	"github.com/BaSui01/promptflow/types"
)

// fakeStore 内存假后端，记录调用次数并支持注入故障
type fakeStore struct {
	mu        sync.Mutex
	name      string
	bundles   map[string]types.StoredPrompt
	nextID    int
	getCalls  int
	failAll   bool
	failClear bool
}

func newFakeStore(name string) *fakeStore {
	return &fakeStore{name: name, bundles: make(map[string]types.StoredPrompt)}
}

func (f *fakeStore) Store(ctx context.Context, resp types.PromptResponse, req types.PromptRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return "", errors.New(f.name + " store down")
	}
	f.nextID++
	id := fmt.Sprintf("%s-%d", f.name, f.nextID)
	f.bundles[id] = types.StoredPrompt{ID: id, Response: resp, Request: req, CreatedAt: time.Now()}
	return id, nil
}

func (f *fakeStore) GetByID(ctx context.Context, id string) (*types.StoredPrompt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.failAll {
		return nil, errors.New(f.name + " store down")
	}
	if b, ok := f.bundles[id]; ok {
		return &b, nil
	}
	return nil, nil
}

func (f *fakeStore) SearchByTopic(ctx context.Context, topic string, limit int) ([]types.StoredPrompt, error) {
	return f.all()
}

func (f *fakeStore) SearchRelated(ctx context.Context, topics []string, domain types.Domain, limit int) ([]types.StoredPrompt, error) {
	return f.all()
}

func (f *fakeStore) all() ([]types.StoredPrompt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return nil, errors.New(f.name + " store down")
	}
	out := make([]types.StoredPrompt, 0, len(f.bundles))
	for _, b := range f.bundles {
		out = append(out, b)
	}
	return out, nil
}

func (f *fakeStore) Clear(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failClear {
		return errors.New(f.name + " clear failed")
	}
	f.bundles = make(map[string]types.StoredPrompt)
	return nil
}

func (f *fakeStore) Ping(ctx context.Context) error { return nil }

func (f *fakeStore) gets() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getCalls
}

func (f *fakeStore) put(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bundles[id] = types.StoredPrompt{ID: id, CreatedAt: time.Now()}
}

func (f *fakeStore) putPrompt(id, refined string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bundles[id] = types.StoredPrompt{
		ID:        id,
		Response:  types.PromptResponse{RefinedPrompt: refined},
		CreatedAt: time.Now(),
	}
}

// fakeShadowStore 在 fakeStore 之上支持复用权威 id 的影子写
type fakeShadowStore struct {
	*fakeStore
	shadowCalls int
	mismatchID  string // 非空时返回它而不是入参 id
}

func newFakeShadowStore(name string) *fakeShadowStore {
	return &fakeShadowStore{fakeStore: newFakeStore(name)}
}

func (f *fakeShadowStore) StoreWithID(ctx context.Context, id string, resp types.PromptResponse, req types.PromptRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shadowCalls++
	if f.failAll {
		return "", errors.New(f.name + " store down")
	}
	stored := id
	if f.mismatchID != "" {
		stored = f.mismatchID
	}
	f.bundles[stored] = types.StoredPrompt{ID: stored, Response: resp, Request: req, CreatedAt: time.Now()}
	return stored, nil
}

func observedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.WarnLevel)
	return zap.New(core), logs
}

func TestHybridStore_ReadPercentageZeroAllPrimary(t *testing.T) {
	primary := newFakeStore("kv")
	indexed := newFakeStore("es")
	h := NewHybridStore(primary, indexed, DefaultHybridConfig(), zap.NewNop(),
		WithRandSource(rand.New(rand.NewSource(1))))

	primary.put("x")
	for i := 0; i < 1000; i++ {
		_, err := h.GetByID(context.Background(), "x")
		require.NoError(t, err)
	}
	assert.Equal(t, 1000, primary.gets())
	assert.Equal(t, 0, indexed.gets())
}

func TestHybridStore_ReadPercentageFullAllIndexed(t *testing.T) {
	primary := newFakeStore("kv")
	indexed := newFakeStore("es")
	cfg := DefaultHybridConfig()
	cfg.ReadPercentage = 100
	cfg.CompareResults = false
	h := NewHybridStore(primary, indexed, cfg, zap.NewNop(),
		WithRandSource(rand.New(rand.NewSource(1))))

	indexed.put("x")
	for i := 0; i < 1000; i++ {
		_, err := h.GetByID(context.Background(), "x")
		require.NoError(t, err)
	}
	assert.Equal(t, 1000, indexed.gets())
	assert.Equal(t, 0, primary.gets())
}

func TestHybridStore_PartialPercentageSplitsReads(t *testing.T) {
	primary := newFakeStore("kv")
	indexed := newFakeStore("es")
	cfg := DefaultHybridConfig()
	cfg.ReadPercentage = 50
	cfg.CompareResults = false
	h := NewHybridStore(primary, indexed, cfg, zap.NewNop(),
		WithRandSource(rand.New(rand.NewSource(42))))

	primary.put("x")
	indexed.put("x")
	for i := 0; i < 1000; i++ {
		_, err := h.GetByID(context.Background(), "x")
		require.NoError(t, err)
	}

	// 固定种子下应大致对半分；宽松断言避免与具体序列耦合
	assert.InDelta(t, 500, indexed.gets(), 100)
	assert.Equal(t, 1000, primary.gets()+indexed.gets())
}

func TestHybridStore_IndexedFailureFallsBack(t *testing.T) {
	primary := newFakeStore("kv")
	indexed := newFakeStore("es")
	indexed.failAll = true
	cfg := DefaultHybridConfig()
	cfg.ReadPercentage = 100
	logger, logs := observedLogger()
	h := NewHybridStore(primary, indexed, cfg, logger)

	primary.put("x")
	bundle, err := h.GetByID(context.Background(), "x")
	require.NoError(t, err)
	require.NotNil(t, bundle)
	assert.Equal(t, "x", bundle.ID)
	assert.Equal(t, 1, logs.FilterMessage("indexed get failed, falling back").Len())
}

func TestHybridStore_IndexedMissFallsBack(t *testing.T) {
	primary := newFakeStore("kv")
	indexed := newFakeStore("es")
	cfg := DefaultHybridConfig()
	cfg.ReadPercentage = 100
	h := NewHybridStore(primary, indexed, cfg, zap.NewNop())

	// 索引端尚未有该条目（迁移窗口内的常态），回落键值端
	primary.put("x")
	bundle, err := h.GetByID(context.Background(), "x")
	require.NoError(t, err)
	require.NotNil(t, bundle)
	assert.Equal(t, 1, indexed.gets())
	assert.Equal(t, 1, primary.gets())
}

func TestHybridStore_ShadowWriteSharesAuthoritativeID(t *testing.T) {
	primary := newFakeStore("kv")
	indexed := newFakeShadowStore("es")
	h := NewHybridStore(primary, indexed, DefaultHybridConfig(), zap.NewNop())

	id, err := h.Store(context.Background(), types.PromptResponse{RefinedPrompt: "r"}, types.PromptRequest{LazyPrompt: "l"})
	require.NoError(t, err)
	assert.Equal(t, 1, indexed.shadowCalls)

	// 索引端以权威 id 可查
	bundle, err := indexed.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, bundle)
}

func TestHybridStore_ShadowWriteFailureIsNonFatal(t *testing.T) {
	primary := newFakeStore("kv")
	indexed := newFakeStore("es")
	indexed.failAll = true
	logger, logs := observedLogger()
	h := NewHybridStore(primary, indexed, DefaultHybridConfig(), logger)

	id, err := h.Store(context.Background(), types.PromptResponse{}, types.PromptRequest{LazyPrompt: "l"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, 1, logs.FilterMessage("shadow write failed").Len())
}

func TestHybridStore_ShadowWriteIDMismatchWarns(t *testing.T) {
	primary := newFakeStore("kv")
	indexed := newFakeShadowStore("es")
	indexed.mismatchID = "divergent-id"
	logger, logs := observedLogger()
	h := NewHybridStore(primary, indexed, DefaultHybridConfig(), logger)

	_, err := h.Store(context.Background(), types.PromptResponse{}, types.PromptRequest{LazyPrompt: "l"})
	require.NoError(t, err)
	assert.Equal(t, 1, logs.FilterMessage("shadow write id mismatch").Len())
}

func TestHybridStore_ShadowWriteDisabled(t *testing.T) {
	primary := newFakeStore("kv")
	indexed := newFakeShadowStore("es")
	cfg := DefaultHybridConfig()
	cfg.ShadowWrite = false
	h := NewHybridStore(primary, indexed, cfg, zap.NewNop())

	_, err := h.Store(context.Background(), types.PromptResponse{}, types.PromptRequest{LazyPrompt: "l"})
	require.NoError(t, err)
	assert.Equal(t, 0, indexed.shadowCalls)
}

func TestHybridStore_PrimaryStoreFailurePropagates(t *testing.T) {
	primary := newFakeStore("kv")
	primary.failAll = true
	indexed := newFakeShadowStore("es")
	h := NewHybridStore(primary, indexed, DefaultHybridConfig(), zap.NewNop())

	_, err := h.Store(context.Background(), types.PromptResponse{}, types.PromptRequest{LazyPrompt: "l"})
	require.Error(t, err)
	assert.Equal(t, 0, indexed.shadowCalls)
}

func TestHybridStore_SearchDivergenceWarns(t *testing.T) {
	primary := newFakeStore("kv")
	indexed := newFakeStore("es")
	cfg := DefaultHybridConfig()
	cfg.ReadPercentage = 100
	logger, logs := observedLogger()
	h := NewHybridStore(primary, indexed, cfg, logger)

	primary.put("only-in-kv")
	indexed.put("only-in-es")

	results, err := h.SearchByTopic(context.Background(), "terraform", 10)
	require.NoError(t, err)
	// 索引端有数据即胜出，分歧仅告警
	assert.Equal(t, "only-in-es", results[0].ID)
	require.Equal(t, 1, logs.FilterMessage("search result divergence").Len())

	entry := logs.FilterMessage("search result divergence").All()[0]
	fields := entry.ContextMap()
	assert.ElementsMatch(t, []string{"only-in-kv"}, fields["only_primary"])
	assert.ElementsMatch(t, []string{"only-in-es"}, fields["only_indexed"])
}

func TestHybridStore_IdenticalResultsNoWarning(t *testing.T) {
	primary := newFakeStore("kv")
	indexed := newFakeStore("es")
	cfg := DefaultHybridConfig()
	cfg.ReadPercentage = 100
	logger, logs := observedLogger()
	h := NewHybridStore(primary, indexed, cfg, logger)

	primary.put("same")
	indexed.put("same")

	_, err := h.SearchRelated(context.Background(), []string{"terraform"}, "", 10)
	require.NoError(t, err)
	assert.Equal(t, 0, logs.FilterMessage("search result divergence").Len())
}

func TestHybridStore_ClearIndexedFailureNonFatal(t *testing.T) {
	primary := newFakeStore("kv")
	indexed := newFakeStore("es")
	indexed.failClear = true
	logger, logs := observedLogger()
	h := NewHybridStore(primary, indexed, DefaultHybridConfig(), logger)

	primary.put("x")
	require.NoError(t, h.Clear(context.Background()))
	assert.Empty(t, primary.bundles)
	assert.Equal(t, 1, logs.FilterMessage("indexed clear failed").Len())
}

func TestHybridStore_ClearPrimaryFailureFatal(t *testing.T) {
	primary := newFakeStore("kv")
	primary.failClear = true
	indexed := newFakeStore("es")
	h := NewHybridStore(primary, indexed, DefaultHybridConfig(), zap.NewNop())

	assert.Error(t, h.Clear(context.Background()))
}

func TestHybridStore_AdvanceReadPercentage(t *testing.T) {
	h := NewHybridStore(newFakeStore("kv"), newFakeStore("es"), DefaultHybridConfig(), zap.NewNop())

	assert.Equal(t, 0, h.ReadPercentage())
	for want := 10; want <= 100; want += 10 {
		assert.Equal(t, want, h.AdvanceReadPercentage())
	}
	// 封顶 100
	assert.Equal(t, 100, h.AdvanceReadPercentage())
	assert.Equal(t, 100, h.ReadPercentage())
}

func TestHybridStore_Toggles(t *testing.T) {
	h := NewHybridStore(newFakeStore("kv"), newFakeStore("es"), DefaultHybridConfig(), zap.NewNop())

	assert.True(t, h.ShadowWriteEnabled())
	h.SetShadowWrite(false)
	assert.False(t, h.ShadowWriteEnabled())

	assert.True(t, h.CompareEnabled())
	h.SetCompareResults(false)
	assert.False(t, h.CompareEnabled())
}

func TestHybridStore_GetContentMismatchWarns(t *testing.T) {
	primary := newFakeStore("kv")
	indexed := newFakeStore("es")
	cfg := DefaultHybridConfig()
	cfg.ReadPercentage = 100
	logger, logs := observedLogger()
	h := NewHybridStore(primary, indexed, cfg, logger)

	// 同一 id 两端内容不一致
	primary.putPrompt("x", "primary says A")
	indexed.putPrompt("x", "indexed says B")

	bundle, err := h.GetByID(context.Background(), "x")
	require.NoError(t, err)
	require.NotNil(t, bundle)
	// 索引端胜出；对比读发生且内容分歧被上报
	assert.Equal(t, "indexed says B", bundle.Response.RefinedPrompt)
	assert.Equal(t, 1, primary.gets())
	assert.Equal(t, 1, logs.FilterMessage("get result mismatch").Len())
}

func TestHybridStore_GetMatchingContentNoWarning(t *testing.T) {
	primary := newFakeStore("kv")
	indexed := newFakeStore("es")
	cfg := DefaultHybridConfig()
	cfg.ReadPercentage = 100
	logger, logs := observedLogger()
	h := NewHybridStore(primary, indexed, cfg, logger)

	primary.putPrompt("x", "same content")
	indexed.putPrompt("x", "same content")

	_, err := h.GetByID(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, 1, primary.gets())
	assert.Equal(t, 0, logs.FilterMessage("get result mismatch").Len())
}

func TestHybridStore_GetPrimaryMissingWarns(t *testing.T) {
	primary := newFakeStore("kv")
	indexed := newFakeStore("es")
	cfg := DefaultHybridConfig()
	cfg.ReadPercentage = 100
	logger, logs := observedLogger()
	h := NewHybridStore(primary, indexed, cfg, logger)

	// 权威端缺失索引端持有的 id：典型的回填异常，必须可观测
	indexed.putPrompt("x", "orphan")

	bundle, err := h.GetByID(context.Background(), "x")
	require.NoError(t, err)
	require.NotNil(t, bundle)

	warns := logs.FilterMessage("get result mismatch")
	require.Equal(t, 1, warns.Len())
	assert.Equal(t, "primary", warns.All()[0].ContextMap()["missing_in"])
}

func TestHybridStore_MigrationMetricsRecorded(t *testing.T) {
	collector := metrics.NewCollector("hybrid_metrics_test", zap.NewNop())

	// get 分歧
	primary := newFakeStore("kv")
	indexed := newFakeStore("es")
	cfg := DefaultHybridConfig()
	cfg.ReadPercentage = 100
	h := NewHybridStore(primary, indexed, cfg, zap.NewNop(), WithMetrics(collector))
	indexed.putPrompt("x", "orphan")
	_, err := h.GetByID(context.Background(), "x")
	require.NoError(t, err)

	// 影子写失败
	shadowDown := newFakeStore("es")
	shadowDown.failAll = true
	h2 := NewHybridStore(newFakeStore("kv"), shadowDown, DefaultHybridConfig(), zap.NewNop(),
		WithMetrics(collector))
	_, err = h2.Store(context.Background(), types.PromptResponse{}, types.PromptRequest{LazyPrompt: "l"})
	require.NoError(t, err)

	n, err := testutil.GatherAndCount(prometheus.DefaultGatherer,
		"hybrid_metrics_test_migration_divergences_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = testutil.GatherAndCount(prometheus.DefaultGatherer,
		"hybrid_metrics_test_migration_shadow_write_failures_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
