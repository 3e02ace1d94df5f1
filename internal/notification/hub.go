package notification

import (
	"encoding/json"
	"sync"
	"time"

	"clinicore/internal/metrics"
	"clinicore/internal/models"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type clientConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// StreamHub 管理审计实时监控端的 WebSocket 连接
// 推送是尽力而为的：写失败的连接被移除，不影响其他连接，也不影响审计写入。
type StreamHub struct {
	mu                sync.RWMutex
	clients           map[*websocket.Conn]*clientConn
	keepAliveInterval time.Duration
	logger            *zap.Logger
}

// HubOption 配置 hub
type HubOption func(*StreamHub)

// WithKeepAliveInterval 设置心跳间隔
func WithKeepAliveInterval(interval time.Duration) HubOption {
	return func(h *StreamHub) { h.keepAliveInterval = interval }
}

// WithHubLogger 设置日志器
func WithHubLogger(l *zap.Logger) HubOption {
	return func(h *StreamHub) { h.logger = l }
}

// NewStreamHub 创建 Hub
func NewStreamHub(opts ...HubOption) *StreamHub {
	hub := &StreamHub{
		clients:           make(map[*websocket.Conn]*clientConn),
		keepAliveInterval: 30 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(hub)
		}
	}
	return hub
}

// Register 注册连接
func (h *StreamHub) Register(conn *websocket.Conn) {
	client := &clientConn{conn: conn}
	h.mu.Lock()
	h.clients[conn] = client
	h.mu.Unlock()

	metrics.AuditStreamConnections.Inc()
	h.startKeepAlive(client)
}

// Unregister 移除连接
func (h *StreamHub) Unregister(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		metrics.AuditStreamConnections.Dec()
	}
}

// PublishEvent 将审计事件广播到所有监控端连接
func (h *StreamHub) PublishEvent(event *models.AuditEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		if h.logger != nil {
			h.logger.Warn("审计事件序列化失败", zap.Error(err))
		}
		return
	}

	h.mu.RLock()
	conns := make([]*clientConn, 0, len(h.clients))
	for _, client := range h.clients {
		conns = append(conns, client)
	}
	h.mu.RUnlock()

	for _, client := range conns {
		client.mu.Lock()
		client.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		err := client.conn.WriteMessage(websocket.TextMessage, data)
		client.mu.Unlock()
		if err != nil {
			h.Unregister(client.conn)
			_ = client.conn.Close()
			if h.logger != nil {
				h.logger.Debug("审计事件推送失败，移除连接", zap.Error(err))
			}
		}
	}
}

// ConnectedCount 当前在线连接数（用于调试/指标）
func (h *StreamHub) ConnectedCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close 关闭所有连接
func (h *StreamHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		_ = conn.Close()
		delete(h.clients, conn)
		metrics.AuditStreamConnections.Dec()
	}
}

func (h *StreamHub) startKeepAlive(client *clientConn) {
	if h.keepAliveInterval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(h.keepAliveInterval)
		defer ticker.Stop()
		for range ticker.C {
			client.mu.Lock()
			err := client.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			client.mu.Unlock()
			if err != nil {
				h.Unregister(client.conn)
				_ = client.conn.Close()
				return
			}
		}
	}()
}
