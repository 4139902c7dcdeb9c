package service

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/AGIOS-UPDATED/midday-test/internal/llm/biz"
	"github.com/AGIOS-UPDATED/midday-test/internal/llm/provider"
	"github.com/AGIOS-UPDATED/midday-test/internal/llm/types"
	apperrors "github.com/AGIOS-UPDATED/midday-test/internal/pkg/errors"
	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/logger"
	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/response"
)

// LLMService handles the stateless model endpoints
type LLMService struct {
	manager  *provider.Manager
	llmCall  *biz.LLMCallUseCase
	enhancer *biz.EnhancerUseCase
	logger   *logger.Logger
}

// NewLLMService creates a new llm service
func NewLLMService(manager *provider.Manager, llmCall *biz.LLMCallUseCase, enhancer *biz.EnhancerUseCase, log *logger.Logger) *LLMService {
	return &LLMService{
		manager:  manager,
		llmCall:  llmCall,
		enhancer: enhancer,
		logger:   log.Named("llm-service"),
	}
}

// RegisterRoutes registers llm routes
func (s *LLMService) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/models", s.ListModels)
	r.GET("/models/:provider", s.ListModels)
	r.POST("/llmcall", s.LLMCall)
	r.POST("/enhancer", s.Enhance)
	r.GET("/check-env-key", s.CheckEnvKey)
}

// Credentials 读取 apiKeys / providers cookie
func Credentials(c *gin.Context) provider.Credentials {
	apiKeys, _ := c.Cookie("apiKeys")
	providers, _ := c.Cookie("providers")
	return provider.CredentialsFromCookies(apiKeys, providers)
}

// ListModels 全部模型或单个供应商的模型；未知供应商返回空列表
func (s *LLMService) ListModels(c *gin.Context) {
	creds := Credentials(c)
	providers, def := s.manager.Infos()

	modelList := make([]types.ModelInfo, 0)
	if name := c.Param("provider"); name != "" {
		if p, ok := s.manager.Provider(name); ok {
			modelList = append(modelList, s.manager.ModelListFor(c.Request.Context(), p, creds)...)
		}
	} else {
		modelList = append(modelList, s.manager.ModelList(c.Request.Context(), creds)...)
	}

	response.JSON(c, types.ModelsResponse{
		ModelList:       modelList,
		Providers:       providers,
		DefaultProvider: def,
	})
}

// LLMCallRequest POST /api/llmcall 的请求体
type LLMCallRequest struct {
	System   string `json:"system"`
	Message  string `json:"message"`
	Model    string `json:"model"`
	Provider struct {
		Name string `json:"name"`
	} `json:"provider"`
	StreamOutput bool `json:"streamOutput"`
}

// LLMCall 单轮调用
func (s *LLMService) LLMCall(c *gin.Context) {
	var req LLMCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.InternalError(c)
		return
	}

	call := biz.LLMCallRequest{
		System:   req.System,
		Message:  req.Message,
		Model:    req.Model,
		Provider: req.Provider.Name,
	}
	creds := Credentials(c)

	if req.StreamOutput {
		r, err := s.llmCall.Stream(c.Request.Context(), creds, call)
		if err != nil {
			s.handleJSONError(c, err)
			return
		}
		defer r.Close()
		c.Header("Content-Type", "text/plain; charset=utf-8")
		c.Status(http.StatusOK)
		copyFlush(c, r)
		return
	}

	result, err := s.llmCall.Generate(c.Request.Context(), creds, call)
	if err != nil {
		s.handleJSONError(c, err)
		return
	}
	response.JSON(c, result)
}

// handleJSONError 只暴露 400/401/404，其余一律 500 Internal Server Error
func (s *LLMService) handleJSONError(c *gin.Context, err error) {
	switch apperrors.ExtractCode(err) {
	case apperrors.ErrValidation, apperrors.ErrMissingAPIKey, apperrors.ErrModelNotFound, apperrors.ErrProviderNotFound:
		response.HandleError(c, err)
	default:
		s.logger.Error("llm call failed", zap.Error(err))
		_ = c.Error(err)
		response.InternalError(c)
	}
}

// EnhanceRequest POST /api/enhancer 的请求体
type EnhanceRequest struct {
	Message  string `json:"message"`
	Model    string `json:"model"`
	Provider struct {
		Name string `json:"name"`
	} `json:"provider"`
}

// Enhance 错误以纯文本返回
func (s *LLMService) Enhance(c *gin.Context) {
	var req EnhanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Text(c, http.StatusInternalServerError, "")
		return
	}

	r, err := s.enhancer.Enhance(c.Request.Context(), Credentials(c), biz.EnhanceRequest{
		Message:  req.Message,
		Model:    req.Model,
		Provider: req.Provider.Name,
	})
	if err != nil {
		switch apperrors.ExtractCode(err) {
		case apperrors.ErrValidation:
			response.Text(c, http.StatusBadRequest, apperrors.PublicMessage(err))
		case apperrors.ErrMissingAPIKey:
			response.Text(c, http.StatusUnauthorized, apperrors.PublicMessage(err))
		default:
			s.logger.Error("enhancer failed", zap.Error(err))
			response.Text(c, http.StatusInternalServerError, "")
		}
		return
	}
	defer r.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Connection", "keep-alive")
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)
	copyFlush(c, r)
}

// CheckEnvKey 服务端是否配置了该供应商的 key
func (s *LLMService) CheckEnvKey(c *gin.Context) {
	isSet := false
	if p, ok := s.manager.Provider(c.Query("provider")); ok {
		isSet = s.manager.HasServerKey(p)
	}
	response.JSON(c, gin.H{"isSet": isSet})
}

// copyFlush 边读边写，每块都 flush
func copyFlush(c *gin.Context, r io.Reader) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := c.Writer.Write(buf[:n]); werr != nil {
				return
			}
			c.Writer.Flush()
		}
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			logger.FromContext(c.Request.Context()).Warn("stream copy aborted", zap.Error(err))
			return
		}
	}
}
