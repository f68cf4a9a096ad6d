package handlers

import (
	"net/http"

	"github.com/BaSui01/promptflow/api"
	"github.com/BaSui01/promptflow/internal/metrics"
	"github.com/BaSui01/promptflow/storage"
	"github.com/BaSui01/promptflow/types"
	"go.uber.org/zap"
)

// =============================================================================
// 🔧 迁移管理 Handler
// =============================================================================

// AdminHandler 存储迁移管理处理器。
// 所有端点均要求 JWT 认证（由路由层的认证中间件保证）。
type AdminHandler struct {
	hybrid  *storage.HybridStore
	metrics *metrics.Collector
	logger  *zap.Logger
}

// NewAdminHandler 创建迁移管理处理器
func NewAdminHandler(hybrid *storage.HybridStore, collector *metrics.Collector, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		hybrid:  hybrid,
		metrics: collector,
		logger:  logger,
	}
}

// HandleMigrationStatus 处理迁移状态查询
// @Summary 迁移状态
// @Description 返回当前读切换百分比与开关状态
// @Tags 管理
// @Produce json
// @Success 200 {object} api.MigrationStatus "迁移状态"
// @Security BearerAuth
// @Router /admin/migration [get]
func (h *AdminHandler) HandleMigrationStatus(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, h.status())
}

// HandleAdvance 处理读切换推进请求
// @Summary 推进读切换
// @Description 以配置的固定增量推进索引后端的读流量百分比（封顶 100）
// @Tags 管理
// @Produce json
// @Success 200 {object} api.MigrationStatus "推进后的迁移状态"
// @Security BearerAuth
// @Router /admin/migration/advance [post]
func (h *AdminHandler) HandleAdvance(w http.ResponseWriter, r *http.Request) {
	pct := h.hybrid.AdvanceReadPercentage()
	if h.metrics != nil {
		h.metrics.SetMigrationReadPercentage(pct)
	}

	h.logger.Info("migration read percentage advanced", zap.Int("read_percentage", pct))
	WriteSuccess(w, h.status())
}

// HandleShadowWrite 处理影子写开关请求
// @Summary 影子写开关
// @Description 开启或关闭写入索引后端的影子副本
// @Tags 管理
// @Accept json
// @Produce json
// @Param request body api.ToggleRequest true "开关请求"
// @Success 200 {object} api.MigrationStatus "更新后的迁移状态"
// @Failure 400 {object} Response "无效请求"
// @Security BearerAuth
// @Router /admin/migration/shadow-write [post]
func (h *AdminHandler) HandleShadowWrite(w http.ResponseWriter, r *http.Request) {
	enabled, ok := h.decodeToggle(w, r)
	if !ok {
		return
	}

	h.hybrid.SetShadowWrite(enabled)
	WriteSuccess(w, h.status())
}

// HandleCompareResults 处理结果对比开关请求
// @Summary 结果对比开关
// @Description 开启或关闭双后端检索结果的差异对比
// @Tags 管理
// @Accept json
// @Produce json
// @Param request body api.ToggleRequest true "开关请求"
// @Success 200 {object} api.MigrationStatus "更新后的迁移状态"
// @Failure 400 {object} Response "无效请求"
// @Security BearerAuth
// @Router /admin/migration/compare [post]
func (h *AdminHandler) HandleCompareResults(w http.ResponseWriter, r *http.Request) {
	enabled, ok := h.decodeToggle(w, r)
	if !ok {
		return
	}

	h.hybrid.SetCompareResults(enabled)
	WriteSuccess(w, h.status())
}

// HandleClearStorage 处理存储清空请求
// @Summary 清空存储
// @Description 删除两个后端中的全部持久化提示词（不可恢复）
// @Tags 管理
// @Produce json
// @Success 200 {object} api.ClearStorageResponse "清空结果"
// @Failure 500 {object} Response "主存储清空失败"
// @Security BearerAuth
// @Router /admin/storage/clear [post]
func (h *AdminHandler) HandleClearStorage(w http.ResponseWriter, r *http.Request) {
	if err := h.hybrid.Clear(r.Context()); err != nil {
		WriteFromError(w, err, h.logger)
		return
	}

	h.logger.Warn("prompt storage cleared")
	WriteSuccess(w, api.ClearStorageResponse{Cleared: true})
}

// status 汇总当前迁移状态
func (h *AdminHandler) status() api.MigrationStatus {
	return api.MigrationStatus{
		ReadPercentage: h.hybrid.ReadPercentage(),
		ShadowWrite:    h.hybrid.ShadowWriteEnabled(),
		CompareResults: h.hybrid.CompareEnabled(),
	}
}

// decodeToggle 解码开关请求并校验必填字段
func (h *AdminHandler) decodeToggle(w http.ResponseWriter, r *http.Request) (bool, bool) {
	if !ValidateContentType(w, r, h.logger) {
		return false, false
	}

	var req api.ToggleRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return false, false
	}
	if req.Enabled == nil {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "enabled is required", h.logger)
		return false, false
	}
	return *req.Enabled, true
}
