package auth

import (
	"context"
	"fmt"
	"time"

	"clinicore/pkg/httputil"
)

// Identity 外部身份服务返回的主体信息
type Identity struct {
	SubjectID string `json:"subject_id"`
	Valid     bool   `json:"valid"`
}

// IdentityProvider 外部身份校验接口
// 凭证校验不在本服务内完成，密码仅透传给外部身份服务。
type IdentityProvider interface {
	Verify(ctx context.Context, email, password string) (*Identity, error)
}

// RemoteIdentityProvider 基于 HTTP 的外部身份服务客户端
type RemoteIdentityProvider struct {
	client  *httputil.Client
	baseURL string
}

// NewRemoteIdentityProvider 创建外部身份服务客户端
func NewRemoteIdentityProvider(baseURL string, timeout time.Duration) *RemoteIdentityProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RemoteIdentityProvider{
		client:  httputil.NewClient(httputil.WithTimeout(timeout), httputil.WithRetries(1)),
		baseURL: baseURL,
	}
}

// Verify 校验邮箱与密码
func (p *RemoteIdentityProvider) Verify(ctx context.Context, email, password string) (*Identity, error) {
	var identity Identity
	payload := map[string]string{
		"email":    email,
		"password": password,
	}
	if err := p.client.PostJSON(ctx, p.baseURL+"/verify", payload, &identity); err != nil {
		return nil, fmt.Errorf("身份服务调用失败: %w", err)
	}
	return &identity, nil
}

// StaticIdentityProvider 进程内固定凭证实现，用于本地开发与测试
type StaticIdentityProvider struct {
	// email -> password
	Credentials map[string]string
	// email -> subjectID
	Subjects map[string]string
}

// Verify 按内置表校验
func (p *StaticIdentityProvider) Verify(ctx context.Context, email, password string) (*Identity, error) {
	expected, ok := p.Credentials[email]
	if !ok || expected != password {
		return &Identity{Valid: false}, nil
	}
	return &Identity{SubjectID: p.Subjects[email], Valid: true}, nil
}
