package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/BaSui01/promptflow/api"
	"github.com/BaSui01/promptflow/types"
	"go.uber.org/zap"
)

// =============================================================================
// ✨ 提示词精炼 Handler
// =============================================================================

// Refiner 精炼编排器接口（refine.Service 实现）
type Refiner interface {
	Refine(ctx context.Context, req types.PromptRequest) (*types.PromptResponse, error)
}

// RefineHandler 提示词精炼处理器
type RefineHandler struct {
	service Refiner
	logger  *zap.Logger
}

// NewRefineHandler 创建精炼处理器
func NewRefineHandler(service Refiner, logger *zap.Logger) *RefineHandler {
	return &RefineHandler{
		service: service,
		logger:  logger,
	}
}

// HandleRefine 处理提示词精炼请求
// @Summary 精炼提示词
// @Description 将懒惰提示词精炼为结构化提示词，附带主题检测与参考资料
// @Tags 精炼
// @Accept json
// @Produce json
// @Param request body api.RefinePromptRequest true "精炼请求"
// @Success 200 {object} api.RefinePromptResponse "精炼响应"
// @Failure 400 {object} Response "无效请求"
// @Failure 429 {object} Response "限流"
// @Failure 503 {object} Response "上游不可用"
// @Router /refine-prompt [post]
func (h *RefineHandler) HandleRefine(w http.ResponseWriter, r *http.Request) {
	// 验证 Content-Type
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	// 解码请求
	var req api.RefinePromptRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	start := time.Now()
	resp, err := h.service.Refine(r.Context(), req.ToPromptRequest())
	duration := time.Since(start)

	if err != nil {
		WriteFromError(w, err, h.logger)
		return
	}

	// 记录日志
	h.logger.Info("prompt refined",
		zap.Int("topics", len(resp.DetectedTopics)),
		zap.Bool("cached", resp.Cached),
		zap.Duration("duration", duration),
	)

	WriteSuccess(w, api.FromPromptResponse(resp))
}
