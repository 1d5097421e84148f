package httptransport

import (
	"github.com/gin-gonic/gin"
)

// APIResponse 查询类接口统一返回结构
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Message string      `json:"message"`
	Code    int         `json:"code"`
}

// DetailResponse 识别接口的错误返回体，只有 detail 一个字段
type DetailResponse struct {
	Detail string `json:"detail"`
}

// RespondSuccess 返回成功响应，message 为空时填 "ok"
func RespondSuccess(c *gin.Context, httpStatus int, data interface{}, message string) {
	if message == "" {
		message = "ok"
	}
	c.JSON(httpStatus, APIResponse{
		Success: true,
		Data:    data,
		Message: message,
		Code:    httpStatus,
	})
}

// RespondError 返回查询类接口的失败响应
func RespondError(c *gin.Context, httpStatus int, message string, data interface{}) {
	c.JSON(httpStatus, APIResponse{
		Success: false,
		Data:    data,
		Message: message,
		Code:    httpStatus,
	})
}

// RespondDetail 写入 {"detail": ...} 并终止后续中间件
func RespondDetail(c *gin.Context, httpStatus int, detail string) {
	c.AbortWithStatusJSON(httpStatus, DetailResponse{Detail: detail})
}
