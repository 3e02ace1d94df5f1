package audit

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	auditpkg "clinicore/internal/audit"
	"clinicore/internal/common"
	"clinicore/internal/logger"
	"clinicore/internal/notification"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// AuditHandler 审计账本查询处理器
type AuditHandler struct {
	queryService *auditpkg.QueryService
	exporter     *auditpkg.Exporter
	hub          *notification.StreamHub
	upgrader     websocket.Upgrader
}

// NewAuditHandler 创建审计账本查询处理器
func NewAuditHandler(queryService *auditpkg.QueryService, hub *notification.StreamHub) *AuditHandler {
	return &AuditHandler{
		queryService: queryService,
		exporter:     auditpkg.NewExporter(queryService),
		hub:          hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// 审计流走 JWT 鉴权，Origin 校验交给网关
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// parsePage 从查询参数解析分页
func parsePage(c *gin.Context) common.PageRequest {
	skip, _ := strconv.Atoi(c.DefaultQuery("skip", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	return common.PageRequest{Skip: skip, Limit: limit}
}

// parseFilter 从查询参数解析过滤条件，非法参数直接写入错误响应
func (h *AuditHandler) parseFilter(c *gin.Context) (auditpkg.Filter, bool) {
	filter := auditpkg.Filter{
		ActorID:            c.Query("actorId"),
		AffectedEntityID:   c.Query("entityId"),
		AffectedEntityType: c.Query("entityType"),
	}

	if raw := c.Query("eventType"); raw != "" {
		et, err := auditpkg.ParseEventType(raw)
		if err != nil {
			common.ResponseError(c, common.CodeAuditInvalidEvent, "未知的事件类型: "+raw)
			return filter, false
		}
		filter.EventType = string(et)
	}

	var fromTime, toTime *time.Time
	if raw := c.Query("from"); raw != "" {
		t, err := h.queryService.ParseTimestamp(raw)
		if err != nil {
			common.ResponseError(c, common.CodeAuditInvalidRange, "无法解析起始时间: "+raw)
			return filter, false
		}
		fromTime = &t
	}
	if raw := c.Query("to"); raw != "" {
		t, err := h.queryService.ParseTimestamp(raw)
		if err != nil {
			common.ResponseError(c, common.CodeAuditInvalidRange, "无法解析截止时间: "+raw)
			return filter, false
		}
		toTime = &t
	}
	if fromTime != nil && toTime != nil && !fromTime.Before(*toTime) {
		common.ResponseError(c, common.CodeAuditInvalidRange, "起始时间必须早于截止时间")
		return filter, false
	}
	filter.FromTime = fromTime
	filter.ToTime = toTime
	return filter, true
}

// ListEvents 查询审计事件列表
// @Summary 查询审计事件
// @Description 支持按操作者、事件类型、受影响实体和时间范围过滤，按时间倒序分页返回
// @Tags Audit
// @Security BearerAuth
// @Produce json
// @Param actorId query string false "操作者 ID"
// @Param eventType query string false "事件类型"
// @Param entityId query string false "受影响实体 ID"
// @Param entityType query string false "受影响实体类型"
// @Param from query string false "起始时间（RFC3339 或本地时间）"
// @Param to query string false "截止时间（RFC3339 或本地时间）"
// @Param skip query int false "偏移量"
// @Param limit query int false "返回条数（上限 1000）"
// @Success 200 {object} common.APIResponse
// @Failure 400 {object} common.APIResponse
// @Router /api/audit [get]
func (h *AuditHandler) ListEvents(c *gin.Context) {
	filter, ok := h.parseFilter(c)
	if !ok {
		return
	}

	page := parsePage(c)
	events, total, err := h.queryService.ListEvents(c.Request.Context(), filter, page)
	if err != nil {
		logger.WithContext(c.Request.Context()).Error("查询审计事件失败", zap.Error(err))
		common.ResponseServerError(c, "查询审计事件失败")
		return
	}

	common.ResponseList(c, events, total, page)
}

// GetEvent 获取单条审计事件
// @Summary 获取审计事件详情
// @Tags Audit
// @Security BearerAuth
// @Produce json
// @Param id path string true "事件 ID"
// @Success 200 {object} common.APIResponse
// @Failure 404 {object} common.APIResponse
// @Router /api/audit/{id} [get]
func (h *AuditHandler) GetEvent(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		common.ResponseBadRequest(c, "缺少事件 ID")
		return
	}

	event, err := h.queryService.GetEvent(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, auditpkg.ErrEventNotFound) {
			common.ResponseError(c, common.CodeAuditEventNotFound, "审计事件不存在")
			return
		}
		logger.WithContext(c.Request.Context()).Error("查询审计事件失败",
			zap.String("event_id", id), zap.Error(err))
		common.ResponseServerError(c, "查询审计事件失败")
		return
	}

	common.ResponseSuccess(c, event)
}

// ListByActor 查询指定操作者的审计事件
// @Summary 查询指定操作者的审计事件
// @Tags Audit
// @Security BearerAuth
// @Produce json
// @Param actorId path string true "操作者 ID"
// @Success 200 {object} common.APIResponse
// @Router /api/audit/actor/{actorId} [get]
func (h *AuditHandler) ListByActor(c *gin.Context) {
	actorID := c.Param("actorId")
	if actorID == "" {
		common.ResponseBadRequest(c, "缺少操作者 ID")
		return
	}

	page := parsePage(c)
	events, total, err := h.queryService.ListEventsForActor(c.Request.Context(), actorID, page)
	if err != nil {
		logger.WithContext(c.Request.Context()).Error("按操作者查询审计事件失败",
			zap.String("actor_id", actorID), zap.Error(err))
		common.ResponseServerError(c, "查询审计事件失败")
		return
	}

	common.ResponseList(c, events, total, page)
}

// ListByEntity 查询指定实体的审计事件
// @Summary 查询指定受影响实体的审计事件
// @Tags Audit
// @Security BearerAuth
// @Produce json
// @Param entityId path string true "实体 ID"
// @Success 200 {object} common.APIResponse
// @Router /api/audit/entity/{entityId} [get]
func (h *AuditHandler) ListByEntity(c *gin.Context) {
	entityID := c.Param("entityId")
	if entityID == "" {
		common.ResponseBadRequest(c, "缺少实体 ID")
		return
	}

	page := parsePage(c)
	events, total, err := h.queryService.ListEventsForEntity(c.Request.Context(), entityID, page)
	if err != nil {
		logger.WithContext(c.Request.Context()).Error("按实体查询审计事件失败",
			zap.String("entity_id", entityID), zap.Error(err))
		common.ResponseServerError(c, "查询审计事件失败")
		return
	}

	common.ResponseList(c, events, total, page)
}

// ListEventTypes 返回账本中出现过的事件类型（去重）
// @Summary 查询事件类型枚举
// @Tags Audit
// @Security BearerAuth
// @Produce json
// @Success 200 {object} common.APIResponse
// @Router /api/audit/event-types [get]
func (h *AuditHandler) ListEventTypes(c *gin.Context) {
	values, err := h.queryService.DistinctEventTypes(c.Request.Context())
	if err != nil {
		logger.WithContext(c.Request.Context()).Error("查询事件类型枚举失败", zap.Error(err))
		common.ResponseServerError(c, "查询事件类型失败")
		return
	}
	common.ResponseSuccess(c, values)
}

// ListEntityTypes 返回账本中出现过的受影响实体类型（去重）
// @Summary 查询实体类型枚举
// @Tags Audit
// @Security BearerAuth
// @Produce json
// @Success 200 {object} common.APIResponse
// @Router /api/audit/entity-types [get]
func (h *AuditHandler) ListEntityTypes(c *gin.Context) {
	values, err := h.queryService.DistinctAffectedEntityTypes(c.Request.Context())
	if err != nil {
		logger.WithContext(c.Request.Context()).Error("查询实体类型枚举失败", zap.Error(err))
		common.ResponseServerError(c, "查询实体类型失败")
		return
	}
	common.ResponseSuccess(c, values)
}

// VerifyEvent 校验审计事件完整性
// 当前哈希为单事件指纹，不支持事后逐条校验，始终返回 501。
// @Summary 校验审计事件完整性
// @Tags Audit
// @Security BearerAuth
// @Produce json
// @Param id path string true "事件 ID"
// @Failure 501 {object} common.APIResponse
// @Router /api/audit/{id}/verify [get]
func (h *AuditHandler) VerifyEvent(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.queryService.GetEvent(c.Request.Context(), id); err != nil {
		if errors.Is(err, auditpkg.ErrEventNotFound) {
			common.ResponseError(c, common.CodeAuditEventNotFound, "审计事件不存在")
			return
		}
		common.ResponseServerError(c, "查询审计事件失败")
		return
	}

	if err := auditpkg.VerifyIntegrity(id); err != nil {
		common.ResponseError(c, common.CodeIntegrityUnsupported, err.Error())
		return
	}
	common.ResponseSuccess(c, gin.H{"verified": true})
}

// Export 导出审计事件（CSV / JSON）
// @Summary 导出审计事件
// @Description 按与列表查询相同的过滤条件导出，供审计员离线归档，单次上限 10000 条
// @Tags Audit
// @Security BearerAuth
// @Produce octet-stream
// @Param format query string false "导出格式 csv 或 json（缺省 json）"
// @Success 200 {file} binary
// @Router /api/audit/export [get]
func (h *AuditHandler) Export(c *gin.Context) {
	filter, ok := h.parseFilter(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	result, err := h.exporter.Export(c.Request.Context(), auditpkg.ExportRequest{
		Format: auditpkg.ExportFormat(c.Query("format")),
		Filter: filter,
		Limit:  limit,
	})
	if err != nil {
		logger.WithContext(c.Request.Context()).Error("导出审计事件失败", zap.Error(err))
		common.ResponseServerError(c, "导出审计事件失败")
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+result.Filename+`"`)
	c.Data(http.StatusOK, result.ContentType, result.Data)
}

// Stream 审计事件实时推送（WebSocket）
// 连接建立后服务端单向推送新写入的审计事件，客户端消息仅用于保活。
// @Summary 审计事件实时流
// @Tags Audit
// @Security BearerAuth
// @Router /api/audit/stream [get]
func (h *AuditHandler) Stream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.WithContext(c.Request.Context()).Warn("WebSocket 升级失败", zap.Error(err))
		return
	}

	h.hub.Register(conn)
	defer h.hub.Unregister(conn)

	// 阻塞读直到对端关闭，服务端不消费客户端消息
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
