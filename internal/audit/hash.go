package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// ErrIntegrityVerificationUnsupported 历史事件的哈希基于写入时的实体快照字段计算，
// ChangeDetails 不参与哈希，事后无法以同样输入重算比对。
var ErrIntegrityVerificationUnsupported = errors.New("不支持对历史审计事件重新校验完整性哈希")

// ComputeIntegrityHash 计算审计事件完整性哈希
// 输入串格式: actorId:eventType:affectedEntityId:RFC3339时间戳(UTC)
// 注意: ChangeDetails 不参与哈希，篡改检测范围仅覆盖上述四个字段。
func ComputeIntegrityHash(actorID string, eventType EventType, affectedEntityID string, ts time.Time) string {
	payload := fmt.Sprintf("%s:%s:%s:%s",
		actorID, eventType, affectedEntityID, ts.UTC().Format(time.RFC3339))
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// VerifyIntegrity 预留的完整性复核入口，当前哈希方案不支持事后复核
func VerifyIntegrity(eventID string) error {
	return ErrIntegrityVerificationUnsupported
}
