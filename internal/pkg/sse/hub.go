package sse

import (
	"encoding/json"
	"sync"
)

// Event SSE 事件
type Event struct {
	Type string `json:"type"` // 事件类型
	Data any    `json:"data"` // 事件数据
}

// FormatSSE 格式化为 SSE 消息格式
func (e Event) FormatSSE() string {
	data, _ := json.Marshal(e.Data)
	return "event: " + e.Type + "\ndata: " + string(data) + "\n\n"
}

// Client SSE 客户端连接
type Client struct {
	ID       string
	Channel  chan Event
	Resource string // 订阅的资源，例如 session:<id>
}

// Hub SSE 连接管理器
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{} // resource -> clients
}

// NewHub 创建 Hub
func NewHub() *Hub {
	return &Hub{clients: make(map[string]map[*Client]struct{})}
}

// Register 注册客户端
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.Resource] == nil {
		h.clients[client.Resource] = make(map[*Client]struct{})
	}
	h.clients[client.Resource][client] = struct{}{}
}

// Unregister 注销客户端并关闭其 Channel，重复调用无副作用
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.clients[client.Resource]
	if !ok {
		return
	}
	if _, exists := clients[client]; !exists {
		return
	}
	delete(clients, client)
	close(client.Channel)
	if len(clients) == 0 {
		delete(h.clients, client.Resource)
	}
}

// Publish 向订阅 resource 的所有客户端广播；缓冲区满的客户端直接跳过
func (h *Hub) Publish(resource, eventType string, data any) {
	h.Broadcast(resource, Event{Type: eventType, Data: data})
}

// Broadcast 向订阅指定资源的所有客户端广播消息
func (h *Hub) Broadcast(resource string, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[resource] {
		select {
		case client.Channel <- event:
		default:
		}
	}
}

// CloseResource 断开某个资源下的全部客户端（会话销毁时调用）
func (h *Hub) CloseResource(resource string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients[resource] {
		close(client.Channel)
	}
	delete(h.clients, resource)
}

// ClientCount 获取订阅指定资源的客户端数量
func (h *Hub) ClientCount(resource string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[resource])
}
