package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"time"

	"clinicore/internal/common"
	"clinicore/pkg/types"
)

// ExportFormat 导出格式
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatJSON ExportFormat = "json"
)

// 单次导出条数上限
const maxExportLimit = 10000

// ExportRequest 审计事件导出请求
type ExportRequest struct {
	Format ExportFormat `json:"format"`
	Filter Filter       `json:"filter"`
	Limit  int          `json:"limit,omitempty"`
}

// ExportResult 导出结果
type ExportResult struct {
	Data        []byte `json:"data,omitempty"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	TotalCount  int    `json:"totalCount"`
}

// Exporter 审计事件导出器，供审计员离线归档
type Exporter struct {
	query *QueryService
	now   func() time.Time
}

// NewExporter 创建导出器
func NewExporter(query *QueryService) *Exporter {
	return &Exporter{query: query, now: time.Now}
}

// Export 按过滤条件导出审计事件
func (e *Exporter) Export(ctx context.Context, req ExportRequest) (*ExportResult, error) {
	limit := req.Limit
	if limit <= 0 || limit > maxExportLimit {
		limit = maxExportLimit
	}

	events, _, err := e.query.ListEvents(ctx, req.Filter, common.PageRequest{Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("导出审计事件失败: %w", err)
	}

	timestamp := e.now().UTC().Format("20060102_150405")
	switch req.Format {
	case FormatCSV:
		return exportCSV(events, timestamp)
	case FormatJSON:
		return exportJSON(events, timestamp)
	default:
		return exportJSON(events, timestamp)
	}
}

func exportCSV(events []types.AuditEventView, timestamp string) (*ExportResult, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	header := []string{"ID", "操作者", "角色", "事件类型", "描述", "实体ID", "实体类型", "变更详情", "完整性哈希", "时间(UTC)", "本地时间", "来源IP"}
	if err := writer.Write(header); err != nil {
		return nil, err
	}

	for _, event := range events {
		detailsStr := ""
		if event.ChangeDetails != nil {
			if b, err := json.Marshal(event.ChangeDetails); err == nil {
				detailsStr = string(b)
			}
		}

		row := []string{
			event.ID,
			event.ActorID,
			event.ActorRole,
			event.EventType,
			event.Description,
			event.AffectedEntityID,
			event.AffectedEntityType,
			detailsStr,
			event.IntegrityHash,
			event.Timestamp.Format(time.RFC3339),
			event.LocalTimestamp.Format(time.RFC3339),
			event.SourceIP,
		}
		if err := writer.Write(row); err != nil {
			return nil, err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}

	return &ExportResult{
		Data:        buf.Bytes(),
		Filename:    fmt.Sprintf("audit_events_%s.csv", timestamp),
		ContentType: "text/csv; charset=utf-8",
		TotalCount:  len(events),
	}, nil
}

func exportJSON(events []types.AuditEventView, timestamp string) (*ExportResult, error) {
	payload := struct {
		ExportedAt string                 `json:"exportedAt"`
		TotalCount int                    `json:"totalCount"`
		Events     []types.AuditEventView `json:"events"`
	}{
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		TotalCount: len(events),
		Events:     events,
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, err
	}

	return &ExportResult{
		Data:        data,
		Filename:    fmt.Sprintf("audit_events_%s.json", timestamp),
		ContentType: "application/json; charset=utf-8",
		TotalCount:  len(events),
	}, nil
}
