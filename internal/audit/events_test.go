package audit

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseEventType(t *testing.T) {
	t.Run("合法类型", func(t *testing.T) {
		et, err := ParseEventType("LOGIN_FAILED")
		require.NoError(t, err)
		require.Equal(t, EventLoginFailed, et)
	})

	t.Run("未知类型返回错误", func(t *testing.T) {
		_, err := ParseEventType("SOMETHING_ELSE")
		require.Error(t, err)
	})

	t.Run("大小写敏感", func(t *testing.T) {
		_, err := ParseEventType("login_failed")
		require.Error(t, err)
	})
}

func TestEventTypeIsAuthEvent(t *testing.T) {
	require.True(t, EventLoginSuccess.IsAuthEvent())
	require.True(t, EventAccountLocked.IsAuthEvent())
	require.False(t, EventCreate.IsAuthEvent())
	require.False(t, EventRead.IsAuthEvent())
}

func TestGetEventDescription(t *testing.T) {
	require.Equal(t, "账户因连续登录失败被锁定", GetEventDescription(EventAccountLocked))
	// 未收录的类型回退为类型名本身
	require.Equal(t, "UNKNOWN", GetEventDescription(EventType("UNKNOWN")))
}
