package sse

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SetHeaders 设置 SSE 响应头
func SetHeaders(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
}

// Serve 订阅 resource 并把事件写给客户端，阻塞直到客户端断开或资源被关闭。
// heartbeat 为 0 时不发送心跳。
func Serve(c *gin.Context, hub *Hub, resource string, bufferSize int, heartbeat time.Duration) {
	if bufferSize <= 0 {
		bufferSize = 16
	}
	client := &Client{
		ID:       uuid.New().String(),
		Channel:  make(chan Event, bufferSize),
		Resource: resource,
	}

	SetHeaders(c)
	hub.Register(client)
	defer hub.Unregister(client)

	connected := Event{Type: "connected", Data: map[string]string{"client_id": client.ID, "resource": resource}}
	if _, err := fmt.Fprint(c.Writer, connected.FormatSSE()); err != nil {
		return
	}
	c.Writer.Flush()

	var tick <-chan time.Time
	if heartbeat > 0 {
		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()
		tick = ticker.C
	}

	clientGone := c.Request.Context().Done()
	for {
		select {
		case <-clientGone:
			return

		case event, ok := <-client.Channel:
			if !ok {
				return
			}
			if _, err := fmt.Fprint(c.Writer, event.FormatSSE()); err != nil {
				return
			}
			c.Writer.Flush()

		case <-tick:
			if _, err := fmt.Fprint(c.Writer, ": heartbeat\n\n"); err != nil {
				return
			}
			c.Writer.Flush()
		}
	}
}
