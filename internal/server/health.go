package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// PersistenceStatus 对话存储状态；Notice 为启动时的降级提示
type PersistenceStatus struct {
	Available bool   `json:"available"`
	Notice    string `json:"notice,omitempty"`
}

// HealthResponse /health 响应
type HealthResponse struct {
	Status      string            `json:"status"`
	Time        string            `json:"time"`
	Sessions    int               `json:"sessions"`
	Persistence PersistenceStatus `json:"persistence"`
	Redis       string            `json:"redis,omitempty"`
}

func healthHandler(src HealthSources) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := HealthResponse{
			Status: "ok",
			Time:   time.Now().Format(time.RFC3339),
		}
		if src.Sessions != nil {
			resp.Sessions = src.Sessions.Count()
		}
		if src.History != nil {
			resp.Persistence = PersistenceStatus{
				Available: src.History.Available(),
				Notice:    src.History.Notice(),
			}
		}
		if src.Redis != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			resp.Redis = "ok"
			if err := src.Redis.HealthCheck(ctx); err != nil {
				resp.Redis = "unavailable"
				resp.Status = "degraded"
			}
		}
		c.JSON(http.StatusOK, resp)
	}
}
