package service

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/logger"
	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/response"
	"github.com/AGIOS-UPDATED/midday-test/internal/websearch/biz"
)

// WebSearchService handles web search requests
type WebSearchService struct {
	uc     *biz.SearchUseCase
	logger *logger.Logger
}

// NewWebSearchService creates a new web search service
func NewWebSearchService(uc *biz.SearchUseCase, log *logger.Logger) *WebSearchService {
	return &WebSearchService{uc: uc, logger: log.Named("web-search-service")}
}

// RegisterRoutes registers web search routes
func (s *WebSearchService) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/web-search", s.Search)
}

// SearchRequest 请求体
type SearchRequest struct {
	Query string `json:"query"`
}

// Search 网页搜索，返回 {results:[{title,snippet,link}]}
func (s *WebSearchService) Search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		// 请求体无法解析按搜索失败处理
		s.logger.Warn("invalid web search body")
		response.Error(c, http.StatusInternalServerError, "Failed to perform web search")
		return
	}

	resp, err := s.uc.Search(c.Request.Context(), req.Query)
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.JSON(c, gin.H{"results": resp.Results})
}
