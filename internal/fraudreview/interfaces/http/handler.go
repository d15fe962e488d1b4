package http

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/wyfcoding/fraudreview/internal/fraudreview/application"
	"github.com/wyfcoding/fraudreview/internal/fraudreview/domain"
	"github.com/wyfcoding/fraudreview/pkg/middleware"
	"github.com/wyfcoding/fraudreview/pkg/response"
	"github.com/wyfcoding/fraudreview/pkg/utils"
)

// HeaderDeviceFingerprint 客户端设备指纹
const HeaderDeviceFingerprint = "X-Device-Fingerprint"

// Handler 反欺诈审核 HTTP 处理器
type Handler struct {
	app    *application.FraudReviewService
	logger *slog.Logger
}

// NewHandler 创建 HTTP 处理器实例
func NewHandler(app *application.FraudReviewService, logger *slog.Logger) *Handler {
	return &Handler{app: app, logger: logger}
}

// RegisterRoutes 注册路由，auth 之后的中间件按顺序作用于转账提交
func (h *Handler) RegisterRoutes(router gin.IRouter, auth gin.HandlerFunc, submitGuards ...gin.HandlerFunc) {
	api := router.Group("/api/v1", auth)
	{
		api.POST("/transfers", append(submitGuards, h.SubmitTransfer)...) // 提交转账
		api.GET("/transactions", h.ListTransactions)                      // 本人交易
		api.GET("/transactions/export", h.ExportTransactions)             // 导出本人交易
	}

	admin := api.Group("/admin", middleware.RequireRole(string(domain.RoleAdmin)))
	{
		admin.GET("/transactions/flagged", h.ListFlagged)          // 待审核队列
		admin.POST("/transactions/:id/action", h.ApplyAction)      // 审核动作
		admin.GET("/transactions/:id/audit", h.AuditTrail)         // 审核记录
		admin.GET("/transactions/export", h.ExportAll)             // 导出全部
		admin.GET("/reports/kpi", h.Report)                        // 汇总指标
		admin.POST("/reports/reconcile", h.Reconcile)              // 重新对账
	}
}

// ViewerFromContext 由令牌身份构造查看者
func ViewerFromContext(c *gin.Context) (domain.Viewer, bool) {
	claims, ok := middleware.ClaimsFromContext(c)
	if !ok {
		return domain.Viewer{}, false
	}
	return domain.Viewer{
		UserID:      claims.Subject,
		AccountID:   claims.AccountID,
		DisplayName: claims.DisplayName,
		Role:        domain.Role(claims.Role),
	}, true
}

func (h *Handler) viewer(c *gin.Context) (domain.Viewer, bool) {
	v, ok := ViewerFromContext(c)
	if !ok {
		response.ErrorWithStatus(c, http.StatusUnauthorized, "unauthorized", "")
	}
	return v, ok
}

// SubmitTransfer 提交转账
func (h *Handler) SubmitTransfer(c *gin.Context) {
	viewer, ok := h.viewer(c)
	if !ok {
		return
	}

	var cmd application.SubmitTransferCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	cmd.IPAddress = c.ClientIP()
	if fp := c.GetHeader(HeaderDeviceFingerprint); fp != "" {
		cmd.DeviceFingerprint = fp
	}
	if cmd.DeviceFingerprint == "" {
		cmd.DeviceFingerprint = uuid.NewString()
	}

	result, err := h.app.SubmitTransfer(c.Request.Context(), viewer, cmd)
	if err != nil {
		h.fail(c, "submit transfer failed", err)
		return
	}
	response.Success(c, result)
}

// ListTransactions 本人交易，按时间倒序
func (h *Handler) ListTransactions(c *gin.Context) {
	viewer, ok := h.viewer(c)
	if !ok {
		return
	}
	var raw domain.RawFilter
	_ = c.ShouldBindQuery(&raw)

	items, err := h.app.ListTransactions(c.Request.Context(), viewer, raw)
	if err != nil {
		h.fail(c, "list transactions failed", err)
		return
	}
	h.respondList(c, items)
}

// ListFlagged 待审核交易
func (h *Handler) ListFlagged(c *gin.Context) {
	viewer, ok := h.viewer(c)
	if !ok {
		return
	}
	var raw domain.RawFilter
	_ = c.ShouldBindQuery(&raw)

	items, err := h.app.ListFlagged(c.Request.Context(), viewer, raw)
	if err != nil {
		h.fail(c, "list flagged transactions failed", err)
		return
	}
	h.respondList(c, items)
}

// respondList page_size 出现时分页，否则返回全部
func (h *Handler) respondList(c *gin.Context, items []application.TransactionDTO) {
	p, ok := utils.ParsePagination(c.Query("page"), c.Query("page_size"), int64(len(items)))
	if !ok {
		response.Success(c, items)
		return
	}
	response.SuccessWithPagination(c, utils.Paginate(items, p), p)
}

type actionRequest struct {
	Action string `json:"action" binding:"required"`
}

// ApplyAction 审核动作
func (h *Handler) ApplyAction(c *gin.Context) {
	viewer, ok := h.viewer(c)
	if !ok {
		return
	}
	var req actionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	dto, err := h.app.ApplyAction(c.Request.Context(), application.ApplyActionCommand{
		TransactionID: c.Param("id"),
		Action:        req.Action,
		ActorID:       viewer.UserID,
	})
	if err != nil {
		h.fail(c, "apply review action failed", err)
		return
	}
	response.Success(c, dto)
}

// AuditTrail 审核记录
func (h *Handler) AuditTrail(c *gin.Context) {
	actions, err := h.app.AuditTrail(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "load audit trail failed", err)
		return
	}
	response.Success(c, actions)
}

// ExportTransactions 导出本人交易
func (h *Handler) ExportTransactions(c *gin.Context) {
	h.export(c, false)
}

// ExportAll 导出全部交易
func (h *Handler) ExportAll(c *gin.Context) {
	h.export(c, true)
}

func (h *Handler) export(c *gin.Context, all bool) {
	viewer, ok := h.viewer(c)
	if !ok {
		return
	}
	format, err := application.ParseExportFormat(c.Query("format"))
	if err != nil {
		h.fail(c, "export failed", err)
		return
	}
	var raw domain.RawFilter
	_ = c.ShouldBindQuery(&raw)

	w := &exportWriter{c: c, format: format, filename: exportFilename(all, format, time.Now().UTC())}
	if all {
		_, err = h.app.ExportAll(c.Request.Context(), viewer, raw, format, w)
	} else {
		_, err = h.app.ExportTransactions(c.Request.Context(), viewer, raw, format, w)
	}
	if err == nil {
		if !w.started {
			w.begin()
		}
		return
	}
	if !w.started {
		h.fail(c, "export failed", err)
		return
	}
	// 响应头已发出，只能截断输出
	h.logger.WarnContext(c.Request.Context(), "export aborted mid-stream", "error", err)
}

func exportFilename(all bool, format application.ExportFormat, now time.Time) string {
	scope := "transactions"
	if all {
		scope = "all_transactions"
	}
	return fmt.Sprintf("%s_%s.%s", scope, now.Format("20060102_150405"), format)
}

// exportWriter 首次写入时才发送响应头，导出前的错误仍可返回 JSON
type exportWriter struct {
	c        *gin.Context
	format   application.ExportFormat
	filename string
	started  bool
}

func (w *exportWriter) begin() {
	w.started = true
	w.c.Header("Content-Type", w.format.ContentType())
	w.c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", w.filename))
	w.c.Status(http.StatusOK)
	w.c.Writer.WriteHeaderNow()
}

func (w *exportWriter) Write(p []byte) (int, error) {
	if !w.started {
		w.begin()
	}
	return w.c.Writer.Write(p)
}

// Report 汇总指标
func (h *Handler) Report(c *gin.Context) {
	dto, err := h.app.Report(c.Request.Context())
	if err != nil {
		h.fail(c, "load report failed", err)
		return
	}
	response.Success(c, dto)
}

// Reconcile 以存储全量重算并覆盖计数
func (h *Handler) Reconcile(c *gin.Context) {
	dto, err := h.app.Reconcile(c.Request.Context())
	if err != nil {
		h.fail(c, "reconcile failed", err)
		return
	}
	response.Success(c, dto)
}

// StatusFor 领域错误到 HTTP 状态码
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrConcurrencyConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrAssessorUnavailable), errors.Is(err, domain.ErrCounterBusy):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(c *gin.Context, msg string, err error) {
	status := StatusFor(err)
	ctx := c.Request.Context()
	switch {
	case status == http.StatusInternalServerError:
		h.logger.ErrorContext(ctx, msg, "error", err)
		response.ErrorWithStatus(c, status, "internal server error", "")
		return
	case status == http.StatusConflict:
		h.logger.InfoContext(ctx, msg, "error", err)
	default:
		h.logger.WarnContext(ctx, msg, "error", err)
	}
	details := ""
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		details = ve.Field
	}
	response.ErrorWithStatus(c, status, err.Error(), details)
}
