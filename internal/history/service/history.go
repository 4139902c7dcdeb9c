package service

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AGIOS-UPDATED/midday-test/internal/history/biz"
	"github.com/AGIOS-UPDATED/midday-test/internal/history/types"
	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/logger"
	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/response"
)

// HistoryService handles chat history HTTP requests
type HistoryService struct {
	uc     *biz.HistoryUseCase
	logger *logger.Logger
}

// NewHistoryService creates a new history service
func NewHistoryService(uc *biz.HistoryUseCase, log *logger.Logger) *HistoryService {
	return &HistoryService{uc: uc, logger: log.Named("history-service")}
}

// RegisterRoutes registers chat history routes
func (s *HistoryService) RegisterRoutes(r *gin.RouterGroup) {
	chats := r.Group("/chats")
	{
		chats.GET("", s.ListChats)
		chats.POST("/import", s.ImportChat)
		chats.GET("/:id", s.GetChat)
		chats.GET("/:id/export", s.ExportChat)
		chats.POST("/:id/duplicate", s.DuplicateChat)
		chats.DELETE("/:id", s.DeleteChat)
	}
}

// URLResponse 新建对话后返回的地址
type URLResponse struct {
	URLID string `json:"urlId"`
}

// ListChats 按日期分组的对话列表
func (s *HistoryService) ListChats(c *gin.Context) {
	groups, err := s.uc.ListChats(c.Request.Context())
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.JSON(c, groups)
}

// GetChat 按 id 或 urlId 取对话，可选 rewindTo
func (s *HistoryService) GetChat(c *gin.Context) {
	item, err := s.uc.Load(c.Request.Context(), c.Param("id"), c.Query("rewindTo"))
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.JSON(c, item)
}

// ExportChat 以附件形式下载 JSON
func (s *HistoryService) ExportChat(c *gin.Context) {
	data, err := s.uc.Export(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.HandleError(c, err)
		return
	}
	filename := fmt.Sprintf("chat-%s.json", time.Now().UTC().Format("2006-01-02T15-04-05Z"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.IndentedJSON(http.StatusOK, data)
}

// ImportChat 导入对话
func (s *HistoryService) ImportChat(c *gin.Context) {
	var req types.ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid chat file format")
		return
	}
	urlID, err := s.uc.ImportChat(c.Request.Context(), req.Description, req.Messages)
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.Created(c, URLResponse{URLID: urlID})
}

// DuplicateChat 复制对话
func (s *HistoryService) DuplicateChat(c *gin.Context) {
	urlID, err := s.uc.Duplicate(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.Created(c, URLResponse{URLID: urlID})
}

// DeleteChat 删除对话
func (s *HistoryService) DeleteChat(c *gin.Context) {
	if err := s.uc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.HandleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
