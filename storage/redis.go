package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/promptflow/types"
)

// Redis 键前缀。clear 以这些前缀做 SCAN+DEL。
const (
	contentPrefix = "prompt:content:"
	topicsPrefix  = "prompt:topics:"
	domainPrefix  = "prompt:index:domain:"
)

// maxIDAttempts id 冲突重试上限。UUID 冲突概率可忽略，上限只是防御死循环。
const maxIDAttempts = 5

// RedisStore 键值存储变体。
// 内容整包存于 prompt:content:<id>；每个检出主题与领域各维护一个 id 集合。
type RedisStore struct {
	redis  *redis.Client
	logger *zap.Logger
}

// NewRedisStore 创建键值存储变体
func NewRedisStore(rdb *redis.Client, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{
		redis:  rdb,
		logger: logger.With(zap.String("component", "redis_store")),
	}
}

// Store 持久化结果并建立主题/领域索引。
// id 为随机 UUID，EXISTS 碰撞检查后重试。
func (s *RedisStore) Store(ctx context.Context, resp types.PromptResponse, req types.PromptRequest) (string, error) {
	id, err := s.generateUniqueID(ctx)
	if err != nil {
		return "", err
	}

	// 持久化条目从不自述为缓存命中
	resp.Cached = false

	bundle := types.StoredPrompt{
		ID:        id,
		Response:  resp,
		Request:   req,
		CreatedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(bundle)
	if err != nil {
		return "", fmt.Errorf("marshal stored prompt: %w", err)
	}

	if err := s.redis.Set(ctx, contentPrefix+id, data, 0).Err(); err != nil {
		return "", types.NewError(types.ErrStorageError, "failed to store prompt").WithCause(err)
	}

	for _, topic := range resp.DetectedTopics {
		key := topicsPrefix + strings.ToLower(topic)
		if err := s.redis.SAdd(ctx, key, id).Err(); err != nil {
			return "", types.NewError(types.ErrStorageError, "failed to index topic").WithCause(err)
		}
	}

	if req.Domain != "" {
		if err := s.redis.SAdd(ctx, domainPrefix+string(req.Domain), id).Err(); err != nil {
			return "", types.NewError(types.ErrStorageError, "failed to index domain").WithCause(err)
		}
	}

	s.logger.Debug("prompt stored",
		zap.String("id", id),
		zap.Int("topics", len(resp.DetectedTopics)),
	)
	return id, nil
}

// GetByID 点查。redis.Nil 映射为 (nil, nil)。
func (s *RedisStore) GetByID(ctx context.Context, id string) (*types.StoredPrompt, error) {
	data, err := s.redis.Get(ctx, contentPrefix+id).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewError(types.ErrStorageError, "failed to get prompt").WithCause(err)
	}

	var bundle types.StoredPrompt
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("unmarshal stored prompt: %w", err)
	}
	return &bundle, nil
}

// SearchByTopic 读取主题集合并解析内容。
// 集合枚举序即返回序——无相关性排序，是本变体的已知局限。
func (s *RedisStore) SearchByTopic(ctx context.Context, topic string, limit int) ([]types.StoredPrompt, error) {
	ids, err := s.redis.SMembers(ctx, topicsPrefix+strings.ToLower(topic)).Result()
	if err != nil {
		s.logger.Warn("topic search failed, returning empty", zap.String("topic", topic), zap.Error(err))
		return nil, nil
	}

	results := make([]types.StoredPrompt, 0, min(limit, len(ids)))
	for _, id := range ids {
		if len(results) >= limit {
			break
		}
		bundle, err := s.GetByID(ctx, id)
		if err != nil {
			s.logger.Warn("failed to resolve indexed prompt", zap.String("id", id), zap.Error(err))
			continue
		}
		if bundle != nil {
			results = append(results, *bundle)
		}
	}
	return results, nil
}

// SearchRelated 按调用方给定的主题顺序迭代；提供领域时与领域集合求交；
// 已返回的 id 去重；集齐 limit 即停。
func (s *RedisStore) SearchRelated(ctx context.Context, topics []string, domain types.Domain, limit int) ([]types.StoredPrompt, error) {
	var domainIDs map[string]bool
	if domain != "" {
		ids, err := s.redis.SMembers(ctx, domainPrefix+string(domain)).Result()
		if err != nil {
			s.logger.Warn("domain index read failed, returning empty", zap.Error(err))
			return nil, nil
		}
		domainIDs = make(map[string]bool, len(ids))
		for _, id := range ids {
			domainIDs[id] = true
		}
	}

	results := make([]types.StoredPrompt, 0, limit)
	seen := make(map[string]bool)

	for _, topic := range topics {
		if len(results) >= limit {
			break
		}

		ids, err := s.redis.SMembers(ctx, topicsPrefix+strings.ToLower(topic)).Result()
		if err != nil {
			s.logger.Warn("related search failed, returning partial", zap.String("topic", topic), zap.Error(err))
			continue
		}

		for _, id := range ids {
			if len(results) >= limit {
				break
			}
			if seen[id] {
				continue
			}
			if domainIDs != nil && !domainIDs[id] {
				continue
			}

			bundle, err := s.GetByID(ctx, id)
			if err != nil {
				s.logger.Warn("failed to resolve indexed prompt", zap.String("id", id), zap.Error(err))
				continue
			}
			if bundle != nil {
				results = append(results, *bundle)
				seen[id] = true
			}
		}
	}
	return results, nil
}

// Clear 枚举三个保留前缀下的所有键并删除。
// 底层是多步 SCAN+DEL，但调用方视角下内容与索引同时消失。
func (s *RedisStore) Clear(ctx context.Context) error {
	var keys []string
	for _, prefix := range []string{contentPrefix, topicsPrefix, domainPrefix} {
		iter := s.redis.Scan(ctx, 0, prefix+"*", 0).Iterator()
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			return types.NewError(types.ErrStorageError, "failed to scan storage keys").WithCause(err)
		}
	}

	if len(keys) == 0 {
		return nil
	}
	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		return types.NewError(types.ErrStorageError, "failed to delete storage keys").WithCause(err)
	}

	s.logger.Info("storage cleared", zap.Int("keys_deleted", len(keys)))
	return nil
}

// Ping 检查 Redis 连通性
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.redis.Ping(ctx).Err()
}

// generateUniqueID 生成防碰撞 id：随机 UUID + EXISTS 检查重试
func (s *RedisStore) generateUniqueID(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id := uuid.NewString()
		exists, err := s.redis.Exists(ctx, contentPrefix+id).Result()
		if err != nil {
			return "", types.NewError(types.ErrStorageError, "failed to check id uniqueness").WithCause(err)
		}
		if exists == 0 {
			return id, nil
		}
	}
	return "", types.NewError(types.ErrStorageError, "exhausted unique id attempts")
}
