package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/neka-nat/lecturia/internal/handlers"
)

type RouterConfig struct {
	LectureHandler *handlers.LectureHandler
	AllowOrigins   []string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	origins := cfg.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")
	{
		api.POST("/lectures", cfg.LectureHandler.Create)
		api.POST("/lectures/:id/regenerate", cfg.LectureHandler.Regenerate)
		api.GET("/lectures/:id/status", cfg.LectureHandler.GetStatus)
		api.GET("/lectures/:id/manifest", cfg.LectureHandler.GetManifest)
		api.DELETE("/lectures/:id", cfg.LectureHandler.Delete)
	}

	return router
}
