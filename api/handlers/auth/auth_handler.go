package auth

import (
	"net/http"

	auditpkg "clinicore/internal/audit"
	"clinicore/internal/auth"
	"clinicore/internal/logger"
	"clinicore/internal/security"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AuthHandler 认证与账户安全处理器
// 凭证校验委托外部身份服务，本服务负责锁定策略与审计留痕。
type AuthHandler struct {
	jwtService *auth.JWTService
	provider   auth.IdentityProvider
	guard      *security.LoginGuard
	ledger     *auditpkg.Ledger
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(
	jwtService *auth.JWTService,
	provider auth.IdentityProvider,
	guard *security.LoginGuard,
	ledger *auditpkg.Ledger,
) *AuthHandler {
	return &AuthHandler{
		jwtService: jwtService,
		provider:   provider,
		guard:      guard,
		ledger:     ledger,
	}
}

// LoginRequest 登录请求
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// LoginEventRequest 登录结果上报请求
// 凭证校验在外部完成时，由调用方上报结果以维护锁定计数与审计账本。
type LoginEventRequest struct {
	Email        string `json:"email" binding:"required,email"`
	Success      bool   `json:"success"`
	ErrorMessage string `json:"errorMessage"`
	SubjectID    string `json:"subjectId"`
}

// LogoutEventRequest 登出留痕请求
type LogoutEventRequest struct {
	Email     string `json:"email" binding:"required,email"`
	SubjectID string `json:"subjectId"`
}

// Login 用户登录
// @Summary 用户登录
// @Description 校验锁定状态后委托身份服务验证凭证，成功签发访问令牌，失败维护锁定计数
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "登录请求参数"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string "参数错误"
// @Failure 401 {object} map[string]interface{} "凭证错误"
// @Failure 403 {object} map[string]interface{} "账户锁定或停用"
// @Router /api/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "参数错误: " + err.Error()})
		return
	}

	sourceIP := auditpkg.ClientIP(c)
	ctx := c.Request.Context()

	// 锁定窗口内或账户已停用时直接拒绝，不触达身份服务
	pre, err := h.guard.Evaluate(ctx, req.Email)
	if err != nil {
		logger.WithContext(ctx).Error("登录前评估失败", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
		return
	}
	if pre.Kind == security.OutcomeBlocked {
		respondOutcome(c, pre)
		return
	}
	if pre.Kind == security.OutcomeAccountDisabled {
		// 停用账户的尝试同样留痕
		out, err := h.guard.RecordFailure(ctx, req.Email, sourceIP, "账户已停用")
		if err != nil {
			logger.WithContext(ctx).Error("记录登录失败出错", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
			return
		}
		respondOutcome(c, out)
		return
	}

	identity, err := h.provider.Verify(ctx, req.Email, req.Password)
	if err != nil {
		logger.WithContext(ctx).Error("身份服务校验失败", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "身份校验服务不可用"})
		return
	}

	if !identity.Valid {
		out, err := h.guard.RecordFailure(ctx, req.Email, sourceIP, "凭证校验未通过")
		if err != nil {
			logger.WithContext(ctx).Error("记录登录失败出错", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
			return
		}
		respondOutcome(c, out)
		return
	}

	succ, err := h.guard.RecordSuccess(ctx, req.Email, sourceIP)
	if err != nil {
		logger.WithContext(ctx).Error("记录登录成功出错", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
		return
	}
	if succ.Kind != security.OutcomeSuccess {
		respondOutcome(c, succ)
		return
	}

	token, err := h.jwtService.GenerateToken(identity.SubjectID, req.Email, "auditor")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "生成令牌失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"accessToken": token.AccessToken,
		"tokenType":   token.TokenType,
		"expiresIn":   token.ExpiresIn,
	})
}

// LoginEvent 上报一次登录尝试的结果
// @Summary 上报登录结果
// @Description 成功清零失败计数并留痕；失败自增计数，达到阈值触发锁定
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body LoginEventRequest true "登录结果"
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} map[string]interface{} "失败计数未达阈值"
// @Failure 403 {object} map[string]interface{} "触发锁定或锁定窗口内"
// @Router /api/auth/login-event [post]
func (h *AuthHandler) LoginEvent(c *gin.Context) {
	var req LoginEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "参数错误: " + err.Error()})
		return
	}

	sourceIP := auditpkg.ClientIP(c)
	ctx := c.Request.Context()

	if req.Success {
		out, err := h.guard.RecordSuccess(ctx, req.Email, sourceIP)
		if err != nil {
			logger.WithContext(ctx).Error("记录登录成功出错", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
			return
		}
		if out.Kind != security.OutcomeSuccess {
			respondOutcome(c, out)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message":       "登录成功已记录",
			"auditEventIds": out.AuditEventIDs,
		})
		return
	}

	out, err := h.guard.RecordFailure(ctx, req.Email, sourceIP, req.ErrorMessage)
	if err != nil {
		logger.WithContext(ctx).Error("记录登录失败出错", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
		return
	}
	respondOutcome(c, out)
}

// CheckLockStatus 查询账户锁定状态
// 未知邮箱与未锁定账户返回相同响应，防止账户枚举。
// @Summary 查询账户锁定状态
// @Tags Auth
// @Produce json
// @Param email query string true "账户邮箱"
// @Success 200 {object} security.LockStatus
// @Router /api/auth/check-lock-status [get]
func (h *AuthHandler) CheckLockStatus(c *gin.Context) {
	email := c.Query("email")
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少 email 参数"})
		return
	}

	status, err := h.guard.CheckLockStatus(c.Request.Context(), email)
	if err != nil {
		logger.WithContext(c.Request.Context()).Error("查询锁定状态失败", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
		return
	}

	c.JSON(http.StatusOK, status)
}

// LogoutEvent 登出留痕
// @Summary 上报登出事件
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body LogoutEventRequest true "登出信息"
// @Success 200 {object} map[string]string
// @Router /api/auth/logout-event [post]
func (h *AuthHandler) LogoutEvent(c *gin.Context) {
	var req LogoutEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "参数错误: " + err.Error()})
		return
	}

	ctx := c.Request.Context()

	// 优先取 JWT 上下文中的主体，其次取请求体
	actorID := req.SubjectID
	if userCtx, ok := auth.GetUserContext(c); ok {
		actorID = userCtx.UserID
	}

	if _, err := h.ledger.LogLogout(ctx, actorID, req.Email, auditpkg.ClientIP(c)); err != nil {
		logger.WithContext(ctx).Error("记录登出事件失败", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
		return
	}

	// 同时将当前访问令牌拉黑（若携带）
	if tokenString := auth.ExtractTokenFromBearer(c.GetHeader("Authorization")); tokenString != "" {
		if err := h.jwtService.InvalidateToken(ctx, tokenString); err != nil {
			logger.WithContext(ctx).Warn("令牌拉黑失败", zap.Error(err))
		}
	}

	c.JSON(http.StatusOK, gin.H{"message": "登出已记录"})
}

// respondOutcome 按登录结果类型返回统一的响应形状
func respondOutcome(c *gin.Context, out *security.Outcome) {
	switch out.Kind {
	case security.OutcomeBlocked, security.OutcomeLocked:
		c.JSON(http.StatusForbidden, gin.H{
			"message":          "账户已锁定，请稍后再试",
			"lockedUntil":      out.LockedUntil,
			"attempts":         out.Attempts,
			"remainingSeconds": out.RemainingSeconds,
		})
	case security.OutcomeAccountDisabled:
		c.JSON(http.StatusForbidden, gin.H{
			"message": "账户已停用",
		})
	case security.OutcomeUnauthorized:
		c.JSON(http.StatusUnauthorized, gin.H{
			"message":           "邮箱或密码错误",
			"attempts":          out.Attempts,
			"remainingAttempts": out.RemainingAttempts,
		})
	default:
		c.JSON(http.StatusOK, gin.H{
			"message":       "OK",
			"auditEventIds": out.AuditEventIDs,
		})
	}
}
