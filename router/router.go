package router

import (
	"github.com/gin-gonic/gin"

	"mathchat-backend/controller"
	"mathchat-backend/middleware"
)

func Register(h *controller.Handler, jwtSecret string) *gin.Engine {
	r := gin.Default()
	r.Use(middleware.CORSMiddleware())

	api := r.Group("/api")
	api.Use(middleware.AuthMiddleware(jwtSecret))
	{
		api.POST("/chat", h.Chat)

		api.POST("/collection", h.CreateCollection)
		api.GET("/collections", h.GetCollections)
		api.GET("/collection/:id/stats", h.GetCollectionStats)
		api.DELETE("/collection/:id", h.DeleteCollection)

		api.POST("/collection/:id/document", h.UploadDocument)
		api.GET("/collection/:id/documents", h.GetDocuments)
		api.GET("/document/:id", h.GetDocument)
		api.DELETE("/document/:id", h.DeleteDocument)
	}

	return r
}
