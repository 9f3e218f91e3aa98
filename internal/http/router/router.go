package router

import (
	"github.com/gin-gonic/gin"

	"github.com/sr-verde/gitmentario/internal/http/handler"
)

func SetupRoutes(router *gin.Engine, submitter handler.Submitter) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	{
		commentHandler := handler.NewCommentHandler(submitter)
		CommentRouter(v1.Group("/comments"), commentHandler)
	}
}
