package router

import (
	"github.com/gin-gonic/gin"

	"github.com/sr-verde/gitmentario/internal/http/handler"
)

func CommentRouter(rg *gin.RouterGroup, h *handler.CommentHandler) {
	rg.POST("", h.Submit)
	rg.GET("/schema", h.Schema)
}
