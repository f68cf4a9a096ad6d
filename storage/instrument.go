package storage

import (
	"context"
	"time"

	"github.com/BaSui01/promptflow/internal/metrics"
	"github.com/BaSui01/promptflow/types"
)

// InstrumentedStore 包装底层 Store，按 backend/operation/status
// 记录操作计数与耗时。包装不改变任何存储语义。
type InstrumentedStore struct {
	inner   Store
	backend string
	metrics *metrics.Collector
}

// instrumentedShadowStore 底层支持影子写时保留该能力，
// 否则迁移路由会退化为独立写入并告警 id 不一致。
type instrumentedShadowStore struct {
	*InstrumentedStore
	sw shadowWriter
}

// NewInstrumentedStore 创建带指标的存储包装。
// collector 为 nil 时直接返回底层 Store。
func NewInstrumentedStore(inner Store, backend string, c *metrics.Collector) Store {
	if c == nil {
		return inner
	}
	is := &InstrumentedStore{inner: inner, backend: backend, metrics: c}
	if sw, ok := inner.(shadowWriter); ok {
		return &instrumentedShadowStore{InstrumentedStore: is, sw: sw}
	}
	return is
}

func (s *InstrumentedStore) Store(ctx context.Context, resp types.PromptResponse, req types.PromptRequest) (string, error) {
	start := time.Now()
	id, err := s.inner.Store(ctx, resp, req)
	s.record("store", start, err)
	return id, err
}

func (s *InstrumentedStore) GetByID(ctx context.Context, id string) (*types.StoredPrompt, error) {
	start := time.Now()
	bundle, err := s.inner.GetByID(ctx, id)
	s.record("get", start, err)
	return bundle, err
}

func (s *InstrumentedStore) SearchByTopic(ctx context.Context, topic string, limit int) ([]types.StoredPrompt, error) {
	start := time.Now()
	out, err := s.inner.SearchByTopic(ctx, topic, limit)
	s.record("search_topic", start, err)
	return out, err
}

func (s *InstrumentedStore) SearchRelated(ctx context.Context, topics []string, domain types.Domain, limit int) ([]types.StoredPrompt, error) {
	start := time.Now()
	out, err := s.inner.SearchRelated(ctx, topics, domain, limit)
	s.record("search_related", start, err)
	return out, err
}

func (s *InstrumentedStore) Clear(ctx context.Context) error {
	start := time.Now()
	err := s.inner.Clear(ctx)
	s.record("clear", start, err)
	return err
}

func (s *InstrumentedStore) Ping(ctx context.Context) error {
	return s.inner.Ping(ctx)
}

func (s *instrumentedShadowStore) StoreWithID(ctx context.Context, id string, resp types.PromptResponse, req types.PromptRequest) (string, error) {
	start := time.Now()
	storedID, err := s.sw.StoreWithID(ctx, id, resp, req)
	s.record("store_with_id", start, err)
	return storedID, err
}

func (s *InstrumentedStore) record(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.RecordStorageOperation(s.backend, operation, status, time.Since(start))
}
