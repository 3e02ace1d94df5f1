package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestComputeIntegrityHashDeterministic(t *testing.T) {
	ts := time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)

	h1 := ComputeIntegrityHash("actor-1", EventLoginSuccess, "entity-1", ts)
	h2 := ComputeIntegrityHash("actor-1", EventLoginSuccess, "entity-1", ts)
	require.Equal(t, h1, h2, "相同输入应得到相同哈希")
	require.Len(t, h1, 64, "SHA-256 十六进制哈希长度应为 64")
}

func TestComputeIntegrityHashNormalizesToUTC(t *testing.T) {
	utc := time.Date(2026, 3, 15, 15, 0, 0, 0, time.UTC)
	local := utc.In(time.FixedZone("UTC-5", -5*3600))

	h1 := ComputeIntegrityHash("actor-1", EventCreate, "entity-1", utc)
	h2 := ComputeIntegrityHash("actor-1", EventCreate, "entity-1", local)
	require.Equal(t, h1, h2, "同一时刻不同时区表示应得到相同哈希")
}

func TestComputeIntegrityHashSensitiveToInputs(t *testing.T) {
	ts := time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)
	base := ComputeIntegrityHash("actor-1", EventUpdate, "entity-1", ts)

	require.NotEqual(t, base, ComputeIntegrityHash("actor-2", EventUpdate, "entity-1", ts))
	require.NotEqual(t, base, ComputeIntegrityHash("actor-1", EventDelete, "entity-1", ts))
	require.NotEqual(t, base, ComputeIntegrityHash("actor-1", EventUpdate, "entity-2", ts))
	require.NotEqual(t, base, ComputeIntegrityHash("actor-1", EventUpdate, "entity-1", ts.Add(time.Second)))
}

func TestVerifyIntegrityUnsupported(t *testing.T) {
	err := VerifyIntegrity("any-event-id")
	require.ErrorIs(t, err, ErrIntegrityVerificationUnsupported)
}
