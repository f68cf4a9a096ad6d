package handlers

import (
	"net/http"
	"strings"

	"github.com/BaSui01/promptflow/api"
	"github.com/BaSui01/promptflow/storage"
	"github.com/BaSui01/promptflow/types"
	"go.uber.org/zap"
)

// 检索条数缺省与上限
const (
	defaultTopicLimit   = 10
	defaultRelatedLimit = 5
	maxSearchLimit      = 50
)

// =============================================================================
// 🔍 历史提示词检索 Handler
// =============================================================================

// SearchHandler 历史提示词检索处理器
type SearchHandler struct {
	store  storage.Store
	logger *zap.Logger
}

// NewSearchHandler 创建检索处理器
func NewSearchHandler(store storage.Store, logger *zap.Logger) *SearchHandler {
	return &SearchHandler{
		store:  store,
		logger: logger,
	}
}

// HandleSearchByTopic 处理按主题检索请求
// @Summary 按主题检索
// @Description 检索包含指定主题的历史精炼记录（大小写不敏感）
// @Tags 检索
// @Accept json
// @Produce json
// @Param request body api.SearchByTopicRequest true "检索请求"
// @Success 200 {object} api.SearchResponse "检索结果"
// @Failure 400 {object} Response "无效请求"
// @Router /search/by-topic [post]
func (h *SearchHandler) HandleSearchByTopic(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.SearchByTopicRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	if strings.TrimSpace(req.Topic) == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "topic cannot be empty", h.logger)
		return
	}

	limit := clampLimit(req.Limit, defaultTopicLimit)

	results, err := h.store.SearchByTopic(r.Context(), req.Topic, limit)
	if err != nil {
		WriteFromError(w, err, h.logger)
		return
	}

	WriteSuccess(w, api.NewSearchResponse(results))
}

// HandleSearchRelated 处理相关性检索请求
// @Summary 相关性检索
// @Description 按主题集合与可选领域检索相关的历史精炼记录
// @Tags 检索
// @Accept json
// @Produce json
// @Param request body api.SearchRelatedRequest true "检索请求"
// @Success 200 {object} api.SearchResponse "检索结果"
// @Failure 400 {object} Response "无效请求"
// @Router /search/related [post]
func (h *SearchHandler) HandleSearchRelated(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.SearchRelatedRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	topics := make([]string, 0, len(req.Topics))
	for _, t := range req.Topics {
		if strings.TrimSpace(t) != "" {
			topics = append(topics, t)
		}
	}
	if len(topics) == 0 {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "topics cannot be empty", h.logger)
		return
	}

	domain := types.Domain(req.Domain)
	if req.Domain != "" && !types.ValidDomain(domain) {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "invalid domain: "+req.Domain, h.logger)
		return
	}

	limit := clampLimit(req.Limit, defaultRelatedLimit)

	results, err := h.store.SearchRelated(r.Context(), topics, domain, limit)
	if err != nil {
		WriteFromError(w, err, h.logger)
		return
	}

	WriteSuccess(w, api.NewSearchResponse(results))
}

// clampLimit 归一化分页参数
func clampLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > maxSearchLimit {
		return maxSearchLimit
	}
	return limit
}
