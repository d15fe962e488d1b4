// Package response 统一的 HTTP JSON 响应结构
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/fraudreview/pkg/logger"
	"github.com/wyfcoding/fraudreview/pkg/utils"
)

// Response 响应体
type Response struct {
	Code       int               `json:"code"`
	Message    string            `json:"message"`
	Data       any               `json:"data,omitempty"`
	Details    string            `json:"details,omitempty"`
	Pagination *utils.Pagination `json:"pagination,omitempty"`
	RequestID  string            `json:"request_id,omitempty"`
}

// Success 200 成功响应
func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{
		Code:      http.StatusOK,
		Message:   "success",
		Data:      data,
		RequestID: logger.RequestID(c.Request.Context()),
	})
}

// SuccessWithPagination 带分页信息的成功响应
func SuccessWithPagination(c *gin.Context, data any, page *utils.Pagination) {
	c.JSON(http.StatusOK, Response{
		Code:       http.StatusOK,
		Message:    "success",
		Data:       data,
		Pagination: page,
		RequestID:  logger.RequestID(c.Request.Context()),
	})
}

// ErrorWithStatus 以指定状态码返回错误
func ErrorWithStatus(c *gin.Context, status int, message, details string) {
	c.AbortWithStatusJSON(status, Response{
		Code:      status,
		Message:   message,
		Details:   details,
		RequestID: logger.RequestID(c.Request.Context()),
	})
}
