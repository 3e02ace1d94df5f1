package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestJWTGenerateAndValidate(t *testing.T) {
	ctx := context.Background()
	svc := NewJWTService("test-secret", "ClinicCore", time.Hour, nil)

	issued, err := svc.GenerateToken("user-1", "dentist@clinic.test", "dentist")
	require.NoError(t, err)
	require.NotEmpty(t, issued.AccessToken)
	require.Equal(t, "Bearer", issued.TokenType)
	require.Equal(t, int64(3600), issued.ExpiresIn)

	claims, err := svc.ValidateToken(ctx, issued.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.UserID)
	require.Equal(t, "dentist@clinic.test", claims.Email)
	require.Equal(t, "dentist", claims.Role)
	require.Equal(t, "ClinicCore", claims.Issuer)
}

func TestJWTValidateRejectsWrongSecret(t *testing.T) {
	ctx := context.Background()
	issuer := NewJWTService("secret-a", "ClinicCore", time.Hour, nil)
	verifier := NewJWTService("secret-b", "ClinicCore", time.Hour, nil)

	issued, err := issuer.GenerateToken("user-1", "a@clinic.test", "admin")
	require.NoError(t, err)

	_, err = verifier.ValidateToken(ctx, issued.AccessToken)
	require.Error(t, err, "不同密钥签发的令牌应被拒绝")
}

func TestJWTValidateRejectsExpired(t *testing.T) {
	ctx := context.Background()
	svc := NewJWTService("test-secret", "ClinicCore", time.Hour, nil)
	svc.accessExpiry = -time.Minute

	issued, err := svc.GenerateToken("user-1", "a@clinic.test", "admin")
	require.NoError(t, err)

	_, err = svc.ValidateToken(ctx, issued.AccessToken)
	require.Error(t, err, "过期令牌应被拒绝")
}

func TestJWTValidateRejectsGarbage(t *testing.T) {
	ctx := context.Background()
	svc := NewJWTService("test-secret", "ClinicCore", time.Hour, nil)

	_, err := svc.ValidateToken(ctx, "not-a-token")
	require.Error(t, err)
}

func TestInvalidateTokenWithoutRedis(t *testing.T) {
	ctx := context.Background()
	svc := NewJWTService("test-secret", "ClinicCore", time.Hour, nil)

	issued, err := svc.GenerateToken("user-1", "a@clinic.test", "admin")
	require.NoError(t, err)

	// 无 Redis 时黑名单降级为空操作，fail-open
	require.NoError(t, svc.InvalidateToken(ctx, issued.AccessToken))
	require.False(t, svc.IsTokenBlacklisted(ctx, issued.AccessToken))
}

func TestExtractTokenFromBearer(t *testing.T) {
	require.Equal(t, "abc.def.ghi", ExtractTokenFromBearer("Bearer abc.def.ghi"))
	require.Equal(t, "abc.def.ghi", ExtractTokenFromBearer("abc.def.ghi"))
	require.Equal(t, "", ExtractTokenFromBearer(""))
}
