package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/AGIOS-UPDATED/midday-test/internal/pkg/errors"
)

// ErrorBody is the JSON error envelope: {"error": "..."}
type ErrorBody struct {
	Error string `json:"error"`
}

// JSON 成功响应，直接返回数据本身
func JSON(c *gin.Context, data any) {
	if data == nil {
		data = struct{}{}
	}
	c.JSON(http.StatusOK, data)
}

// Created 创建资源成功（201）
func Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, data)
}

// Error 错误响应 {"error": message}
func Error(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, ErrorBody{Error: message})
}

// BadRequest 400 错误
func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

// Unauthorized 401 错误
func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, message)
}

// NotFound 404 错误
func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, message)
}

// InternalError 500 错误
func InternalError(c *gin.Context) {
	Error(c, http.StatusInternalServerError, "Internal Server Error")
}

// Text 纯文本错误，用于 enhancer 这类返回 text 的接口
func Text(c *gin.Context, status int, message string) {
	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.String(status, message)
	c.Abort()
}

// HandleError 根据 AppError 的 code 选择状态码；未知错误一律 500 且不暴露细节
func HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	Error(c, apperrors.GetHTTPStatus(apperrors.ExtractCode(err)), apperrors.PublicMessage(err))
}
