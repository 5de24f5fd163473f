package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
)

const requestTimeout = 10 * time.Second

// Response is the envelope every endpoint returns.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func respond(c *gin.Context, status int, data interface{}, message string) {
	c.JSON(status, Response{Success: true, Data: data, Message: message})
}

func respondError(c *gin.Context, status int, errMsg string) {
	c.JSON(status, Response{Success: false, Error: errMsg})
}

// requestContext derives a bounded context for store calls from the inbound
// request.
func requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), requestTimeout)
}
