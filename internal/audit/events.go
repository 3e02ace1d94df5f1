package audit

import "fmt"

// EventType 审计事件类型（封闭枚举，入口处经 ParseEventType 校验）
type EventType string

// 实体操作事件
const (
	EventCreate     EventType = "CREATE"     // 创建记录
	EventUpdate     EventType = "UPDATE"     // 更新记录
	EventDelete     EventType = "DELETE"     // 删除记录
	EventDeactivate EventType = "DEACTIVATE" // 停用记录
	EventReactivate EventType = "REACTIVATE" // 重新启用记录
	EventActivate   EventType = "ACTIVATE"   // 激活记录
	EventRead       EventType = "READ"       // 读取敏感记录
)

// 认证与账户安全事件
const (
	EventLoginSuccess        EventType = "LOGIN_SUCCESS"         // 登录成功
	EventLoginFailed         EventType = "LOGIN_FAILED"          // 登录失败
	EventLoginFailedDetailed EventType = "LOGIN_FAILED_DETAILED" // 登录失败（含计数详情）
	EventLogout              EventType = "LOGOUT"                // 登出
	EventAccountLocked       EventType = "ACCOUNT_LOCKED"        // 账户锁定
	EventPasswordChange      EventType = "PASSWORD_CHANGE"       // 修改密码
	EventForcePasswordChange EventType = "FORCE_PASSWORD_CHANGE" // 强制修改密码
)

// 受影响实体类型
const (
	EntityUsers             = "users"
	EntityPatients          = "patients"
	EntityGuardians         = "guardians"
	EntityClinicalHistories = "clinical_histories"
	EntityDentalServices    = "dental_services"
	EntityAuth              = "auth"
)

// allEventTypes 合法事件类型集合
var allEventTypes = map[EventType]struct{}{
	EventCreate:              {},
	EventUpdate:              {},
	EventDelete:              {},
	EventDeactivate:          {},
	EventReactivate:          {},
	EventActivate:            {},
	EventRead:                {},
	EventLoginSuccess:        {},
	EventLoginFailed:         {},
	EventLoginFailedDetailed: {},
	EventLogout:              {},
	EventAccountLocked:       {},
	EventPasswordChange:      {},
	EventForcePasswordChange: {},
}

// ParseEventType 校验并解析事件类型字符串
func ParseEventType(s string) (EventType, error) {
	et := EventType(s)
	if _, ok := allEventTypes[et]; !ok {
		return "", fmt.Errorf("未知的审计事件类型: %q", s)
	}
	return et, nil
}

// IsValid 事件类型是否在封闭枚举内
func (t EventType) IsValid() bool {
	_, ok := allEventTypes[t]
	return ok
}

// IsAuthEvent 是否为认证类事件
func (t EventType) IsAuthEvent() bool {
	switch t {
	case EventLoginSuccess, EventLoginFailed, EventLoginFailedDetailed,
		EventLogout, EventAccountLocked, EventPasswordChange, EventForcePasswordChange:
		return true
	}
	return false
}

// GetEventDescription 获取事件默认描述
func GetEventDescription(eventType EventType) string {
	descriptions := map[EventType]string{
		EventCreate:     "创建记录",
		EventUpdate:     "更新记录",
		EventDelete:     "删除记录",
		EventDeactivate: "停用记录",
		EventReactivate: "重新启用记录",
		EventActivate:   "激活记录",
		EventRead:       "读取敏感记录",

		EventLoginSuccess:        "登录成功",
		EventLoginFailed:         "登录失败",
		EventLoginFailedDetailed: "登录失败（含计数详情）",
		EventLogout:              "登出",
		EventAccountLocked:       "账户因连续登录失败被锁定",
		EventPasswordChange:      "修改密码",
		EventForcePasswordChange: "强制修改密码",
	}

	if desc, exists := descriptions[eventType]; exists {
		return desc
	}
	return string(eventType)
}
