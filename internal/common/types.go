package common

// ============================================================================
// 通用请求类型
// ============================================================================

const (
	// DefaultPageLimit 默认每页数量
	DefaultPageLimit = 100
	// MaxPageLimit 每页数量上限
	MaxPageLimit = 1000
)

// PageRequest 分页请求参数（skip/limit 风格）
type PageRequest struct {
	Skip  int `json:"skip" form:"skip" binding:"omitempty,min=0"`   // 跳过的记录数
	Limit int `json:"limit" form:"limit" binding:"omitempty,min=1"` // 每页数量
}

// GetSkip 获取偏移量，负值按 0 处理
func (p PageRequest) GetSkip() int {
	if p.Skip < 0 {
		return 0
	}
	return p.Skip
}

// GetLimit 获取每页数量，钳制在 [1, MaxPageLimit]，缺省为 DefaultPageLimit
func (p PageRequest) GetLimit() int {
	if p.Limit < 1 {
		return DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		return MaxPageLimit
	}
	return p.Limit
}

// IDRequest 通过ID查询的请求
type IDRequest struct {
	ID string `json:"id" uri:"id" binding:"required"` // 资源ID
}

// ============================================================================
// 通用响应类型
// ============================================================================

// APIResponse 统一API响应格式
type APIResponse struct {
	Success bool   `json:"success"`           // 是否成功
	Data    any    `json:"data,omitempty"`    // 响应数据
	Message string `json:"message,omitempty"` // 提示信息
	Code    int    `json:"code"`              // 业务状态码
}

// SuccessResponse 成功响应
func SuccessResponse(data any) APIResponse {
	return APIResponse{
		Success: true,
		Data:    data,
		Code:    0,
	}
}

// SuccessMessageResponse 成功响应（带消息）
func SuccessMessageResponse(message string, data any) APIResponse {
	return APIResponse{
		Success: true,
		Data:    data,
		Message: message,
		Code:    0,
	}
}

// ErrorResponse 错误响应
func ErrorResponse(code int, message string) APIResponse {
	return APIResponse{
		Success: false,
		Message: message,
		Code:    code,
	}
}

// PaginationMeta 分页元信息
type PaginationMeta struct {
	Skip  int   `json:"skip"`  // 偏移量
	Limit int   `json:"limit"` // 每页数量
	Total int64 `json:"total"` // 总记录数
}

// ListResponse 列表响应（包含分页信息）
type ListResponse struct {
	Items      any            `json:"items"`      // 数据列表
	Pagination PaginationMeta `json:"pagination"` // 分页信息
}

// NewListResponse 创建列表响应
func NewListResponse(items any, page PageRequest, total int64) ListResponse {
	return ListResponse{
		Items: items,
		Pagination: PaginationMeta{
			Skip:  page.GetSkip(),
			Limit: page.GetLimit(),
			Total: total,
		},
	}
}

// ============================================================================
// 业务状态码定义
// ============================================================================

const (
	// 成功状态码
	CodeSuccess = 0

	// 通用错误码 (1000-1999)
	CodeInvalidRequest     = 1000 // 请求参数错误
	CodeUnauthorized       = 1001 // 未授权
	CodeForbidden          = 1002 // 禁止访问
	CodeNotFound           = 1003 // 资源不存在
	CodeConflict           = 1004 // 资源冲突
	CodeInternalError      = 1005 // 内部错误
	CodeServiceUnavailable = 1006 // 服务不可用
	CodeTooManyRequests    = 1007 // 请求过于频繁

	// 账户与登录相关错误码 (2000-2099)
	CodeAccountNotFound    = 2000 // 账户不存在
	CodeAccountDisabled    = 2001 // 账户已停用
	CodeAccountLocked      = 2002 // 账户已锁定
	CodeInvalidCredentials = 2003 // 凭证无效
	CodeTokenExpired       = 2010 // 令牌已过期
	CodeTokenInvalid       = 2011 // 令牌无效

	// 审计相关错误码 (3000-3099)
	CodeAuditEventNotFound   = 3000 // 审计事件不存在
	CodeAuditInvalidRange    = 3001 // 查询时间范围无效
	CodeAuditAppendFailed    = 3002 // 审计事件写入失败
	CodeAuditInvalidEvent    = 3003 // 事件类型不在允许范围内
	CodeIntegrityUnsupported = 3010 // 完整性校验不支持
)

// ErrorMessages 错误码对应的默认消息
var ErrorMessages = map[int]string{
	CodeSuccess:            "操作成功",
	CodeInvalidRequest:     "请求参数错误",
	CodeUnauthorized:       "未授权，请先登录",
	CodeForbidden:          "无权限访问",
	CodeNotFound:           "资源不存在",
	CodeConflict:           "资源冲突",
	CodeInternalError:      "系统内部错误",
	CodeServiceUnavailable: "服务暂不可用",
	CodeTooManyRequests:    "请求过于频繁，请稍后再试",

	CodeAccountNotFound:    "账户不存在",
	CodeAccountDisabled:    "账户已停用",
	CodeAccountLocked:      "账户已锁定",
	CodeInvalidCredentials: "邮箱或密码错误",
	CodeTokenExpired:       "令牌已过期",
	CodeTokenInvalid:       "令牌无效",

	CodeAuditEventNotFound:   "审计事件不存在",
	CodeAuditInvalidRange:    "查询时间范围无效",
	CodeAuditAppendFailed:    "审计事件写入失败",
	CodeAuditInvalidEvent:    "事件类型不在允许范围内",
	CodeIntegrityUnsupported: "不支持对历史事件重新校验完整性哈希",
}

// GetErrorMessage 获取错误码对应的消息
func GetErrorMessage(code int) string {
	if msg, ok := ErrorMessages[code]; ok {
		return msg
	}
	return "未知错误"
}

// ============================================================================
// 通用业务错误类型
// ============================================================================

// BusinessError 业务错误
type BusinessError struct {
	Code    int    // 错误码
	Message string // 错误信息
}

// Error 实现error接口
func (e *BusinessError) Error() string {
	return e.Message
}

// NewBusinessError 创建业务错误
func NewBusinessError(code int, message string) *BusinessError {
	if message == "" {
		message = GetErrorMessage(code)
	}
	return &BusinessError{
		Code:    code,
		Message: message,
	}
}

// NewBusinessErrorWithCode 根据错误码创建业务错误
func NewBusinessErrorWithCode(code int) *BusinessError {
	return NewBusinessError(code, GetErrorMessage(code))
}
