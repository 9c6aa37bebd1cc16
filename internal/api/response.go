package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// 所有错误响应统一为 {"message": ...}，内部错误细节只进日志。

func Message(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"message": msg})
}

func BadRequest(c *gin.Context, msg string) { Message(c, http.StatusBadRequest, msg) }
func NotFound(c *gin.Context, msg string)   { Message(c, http.StatusNotFound, msg) }
func Conflict(c *gin.Context, msg string)   { Message(c, http.StatusConflict, msg) }

func AbortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Invalid token"})
}

// ServerError 对客户端只暴露固定文案，绝不携带底层错误。
func ServerError(c *gin.Context) {
	Message(c, http.StatusInternalServerError, "Server error")
}
