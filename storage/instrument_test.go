package storage

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/promptflow/internal/metrics"
	"github.com/BaSui01/promptflow/types"
)

func TestInstrumentedStore_RecordsOperations(t *testing.T) {
	collector := metrics.NewCollector("instrument_test", zap.NewNop())
	inner := newFakeStore("kv")
	s := NewInstrumentedStore(inner, "redis", collector)

	id, err := s.Store(context.Background(), types.PromptResponse{RefinedPrompt: "r"}, types.PromptRequest{LazyPrompt: "l"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	inner.failAll = true
	_, err = s.GetByID(context.Background(), id)
	require.Error(t, err)

	// store/success 与 get/error 各一条序列
	n, err := testutil.GatherAndCount(prometheus.DefaultGatherer,
		"instrument_test_storage_operations_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestInstrumentedStore_PreservesShadowWrite(t *testing.T) {
	collector := metrics.NewCollector("instrument_shadow_test", zap.NewNop())
	indexed := newFakeShadowStore("es")
	wrapped := NewInstrumentedStore(indexed, "elastic", collector)

	// 包装后影子写能力不丢失：两端仍共享权威 id
	primary := newFakeStore("kv")
	h := NewHybridStore(primary, wrapped, DefaultHybridConfig(), zap.NewNop())

	id, err := h.Store(context.Background(), types.PromptResponse{RefinedPrompt: "r"}, types.PromptRequest{LazyPrompt: "l"})
	require.NoError(t, err)
	assert.Equal(t, 1, indexed.shadowCalls)

	bundle, err := indexed.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, bundle)
}

func TestInstrumentedStore_NilCollectorPassthrough(t *testing.T) {
	inner := newFakeStore("kv")
	assert.Same(t, inner, NewInstrumentedStore(inner, "redis", nil))
}
