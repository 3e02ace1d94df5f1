package auth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	auditpkg "clinicore/internal/audit"
	internalauth "clinicore/internal/auth"
	"clinicore/internal/logger"
	"clinicore/internal/models"
	"clinicore/internal/security"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupAuthRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	_ = logger.Init("error", "console", "stdout")

	dsn := fmt.Sprintf("file:auth_handler_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Account{}, &models.AuditEvent{}))

	ledger := auditpkg.NewLedger(db)
	guard := security.NewLoginGuard(db, ledger, security.Policy{
		MaxAttempts:  3,
		LockDuration: 15 * time.Minute,
	})
	jwtService := internalauth.NewJWTService("test-secret", "ClinicCore", time.Hour, nil)
	provider := &internalauth.StaticIdentityProvider{
		Credentials: map[string]string{"dentist@clinic.test": "correct-horse"},
		Subjects:    map[string]string{"dentist@clinic.test": "subject-1"},
	}

	handler := NewAuthHandler(jwtService, provider, guard, ledger)

	router := gin.New()
	router.POST("/api/auth/login", handler.Login)
	router.POST("/api/auth/login-event", handler.LoginEvent)
	router.GET("/api/auth/check-lock-status", handler.CheckLockStatus)
	router.POST("/api/auth/logout-event", handler.LogoutEvent)
	return router, db
}

func createTestAccount(t *testing.T, db *gorm.DB, email string) {
	t.Helper()
	require.NoError(t, db.Create(&models.Account{
		Email:    email,
		FullName: "测试账户",
		Role:     "dentist",
		Status:   models.AccountStatusActive,
	}).Error)
}

func postJSON(t *testing.T, router *gin.Engine, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func TestLoginSuccessIssuesToken(t *testing.T) {
	router, db := setupAuthRouter(t)
	createTestAccount(t, db, "dentist@clinic.test")

	w, resp := postJSON(t, router, "/api/auth/login", gin.H{
		"email":    "dentist@clinic.test",
		"password": "correct-horse",
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, resp["accessToken"])
	require.Equal(t, "Bearer", resp["tokenType"])

	var count int64
	require.NoError(t, db.Model(&models.AuditEvent{}).
		Where("event_type = ?", "LOGIN_SUCCESS").Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestLoginWrongPassword(t *testing.T) {
	router, db := setupAuthRouter(t)
	createTestAccount(t, db, "dentist@clinic.test")

	w, resp := postJSON(t, router, "/api/auth/login", gin.H{
		"email":    "dentist@clinic.test",
		"password": "wrong",
	})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "邮箱或密码错误", resp["message"])
	require.Equal(t, float64(2), resp["remainingAttempts"])
}

func TestLoginEventLockoutFlow(t *testing.T) {
	router, db := setupAuthRouter(t)
	createTestAccount(t, db, "dentist@clinic.test")

	fail := gin.H{
		"email":        "dentist@clinic.test",
		"success":      false,
		"errorMessage": "密码错误",
	}

	t.Run("前两次失败返回 401", func(t *testing.T) {
		for i := 1; i <= 2; i++ {
			w, resp := postJSON(t, router, "/api/auth/login-event", fail)
			require.Equal(t, http.StatusUnauthorized, w.Code)
			require.Equal(t, float64(i), resp["attempts"])
		}
	})

	t.Run("第三次失败触发锁定返回 403", func(t *testing.T) {
		w, resp := postJSON(t, router, "/api/auth/login-event", fail)
		require.Equal(t, http.StatusForbidden, w.Code)
		require.NotEmpty(t, resp["lockedUntil"])
		require.Equal(t, float64(3), resp["attempts"])
		require.Equal(t, float64(15*60), resp["remainingSeconds"])
	})

	t.Run("锁定窗口内登录被直接拒绝", func(t *testing.T) {
		w, _ := postJSON(t, router, "/api/auth/login", gin.H{
			"email":    "dentist@clinic.test",
			"password": "correct-horse",
		})
		require.Equal(t, http.StatusForbidden, w.Code, "正确密码在锁定窗口内也应被拒绝")
	})

	t.Run("锁定状态可查询", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet,
			"/api/auth/check-lock-status?email=dentist@clinic.test", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)

		var status security.LockStatus
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
		require.True(t, status.IsLocked)
		require.Equal(t, 3, status.Attempts)
	})

	var locked int64
	require.NoError(t, db.Model(&models.AuditEvent{}).
		Where("event_type = ?", "ACCOUNT_LOCKED").Count(&locked).Error)
	require.Equal(t, int64(1), locked)
}

func TestLoginEventSuccessResets(t *testing.T) {
	router, db := setupAuthRouter(t)
	createTestAccount(t, db, "dentist@clinic.test")

	_, _ = postJSON(t, router, "/api/auth/login-event", gin.H{
		"email":        "dentist@clinic.test",
		"success":      false,
		"errorMessage": "密码错误",
	})

	w, resp := postJSON(t, router, "/api/auth/login-event", gin.H{
		"email":     "dentist@clinic.test",
		"success":   true,
		"subjectId": "subject-1",
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "登录成功已记录", resp["message"])
	require.NotEmpty(t, resp["auditEventIds"])

	var acct models.Account
	require.NoError(t, db.Where("email = ?", "dentist@clinic.test").First(&acct).Error)
	require.Equal(t, 0, acct.FailedLoginAttempts)
}

func TestLoginDisabledAccount(t *testing.T) {
	router, db := setupAuthRouter(t)
	require.NoError(t, db.Create(&models.Account{
		Email:    "dentist@clinic.test",
		FullName: "测试账户",
		Role:     "dentist",
		Status:   models.AccountStatusInactive,
	}).Error)

	t.Run("凭证正确也不签发令牌", func(t *testing.T) {
		w, resp := postJSON(t, router, "/api/auth/login", gin.H{
			"email":    "dentist@clinic.test",
			"password": "correct-horse",
		})
		require.Equal(t, http.StatusForbidden, w.Code)
		require.Equal(t, "账户已停用", resp["message"])
		require.Nil(t, resp["accessToken"])

		var successCount int64
		require.NoError(t, db.Model(&models.AuditEvent{}).
			Where("event_type = ?", "LOGIN_SUCCESS").Count(&successCount).Error)
		require.Equal(t, int64(0), successCount)

		var failCount int64
		require.NoError(t, db.Model(&models.AuditEvent{}).
			Where("event_type = ?", "LOGIN_FAILED").Count(&failCount).Error)
		require.Equal(t, int64(1), failCount, "停用账户的尝试应留痕")
	})

	t.Run("上报成功结果同样被拒绝", func(t *testing.T) {
		w, resp := postJSON(t, router, "/api/auth/login-event", gin.H{
			"email":     "dentist@clinic.test",
			"success":   true,
			"subjectId": "subject-1",
		})
		require.Equal(t, http.StatusForbidden, w.Code)
		require.Equal(t, "账户已停用", resp["message"])

		var acct models.Account
		require.NoError(t, db.Where("email = ?", "dentist@clinic.test").First(&acct).Error)
		require.Nil(t, acct.LastLoginAt, "停用账户不应记录最近登录")

		var successCount int64
		require.NoError(t, db.Model(&models.AuditEvent{}).
			Where("event_type = ?", "LOGIN_SUCCESS").Count(&successCount).Error)
		require.Equal(t, int64(0), successCount)
	})
}

func TestCheckLockStatusUnknownEmail(t *testing.T) {
	router, _ := setupAuthRouter(t)

	req := httptest.NewRequest(http.MethodGet,
		"/api/auth/check-lock-status?email=ghost@clinic.test", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var status security.LockStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	require.False(t, status.IsLocked)
	require.Equal(t, "OK", status.Message)
}

func TestLogoutEventWritesAudit(t *testing.T) {
	router, db := setupAuthRouter(t)

	w, resp := postJSON(t, router, "/api/auth/logout-event", gin.H{
		"email":     "dentist@clinic.test",
		"subjectId": "subject-1",
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "登出已记录", resp["message"])

	var event models.AuditEvent
	require.NoError(t, db.Where("event_type = ?", "LOGOUT").First(&event).Error)
	require.Equal(t, "subject-1", event.ActorID)
	require.Equal(t, "dentist@clinic.test", event.ActorEmail)
}

func TestLoginRejectsMalformedRequest(t *testing.T) {
	router, _ := setupAuthRouter(t)

	w, _ := postJSON(t, router, "/api/auth/login", gin.H{"email": "not-an-email"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}
