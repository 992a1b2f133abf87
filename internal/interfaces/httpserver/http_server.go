package httpserver

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"keygate/internal/config"
	"keygate/internal/interfaces/httpserver/handlers/chathandler"
	"keygate/internal/interfaces/httpserver/handlers/usagehandler"
	middleware "keygate/internal/interfaces/httpserver/middlewares"
)

type HTTPServer struct {
	engine       *gin.Engine
	chatHandler  *chathandler.ChatHandler
	usageHandler *usagehandler.UsageHandler
	config       *config.Config
}

func NewHTTPServer(
	chatHandler *chathandler.ChatHandler,
	usageHandler *usagehandler.UsageHandler,
	cfg *config.Config,
	logger zerolog.Logger,
) *HTTPServer {
	gin.SetMode(gin.ReleaseMode)
	server := &HTTPServer{
		engine:       gin.New(),
		chatHandler:  chatHandler,
		usageHandler: usageHandler,
		config:       cfg,
	}
	server.engine.Use(middleware.RequestID())
	server.engine.Use(middleware.LoggingMiddleware(logger))
	server.engine.Use(middleware.CORSMiddleware())

	server.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	server.engine.GET("/readyz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	return server
}

func (s *HTTPServer) Run() error {
	v1 := s.engine.Group("/v1")
	v1.POST("/chat/completions", s.chatHandler.CreateChatCompletion)
	v1.GET("/keys/usage", s.usageHandler.GetUsage)

	if err := s.engine.Run(fmt.Sprintf(":%d", s.config.HTTPPort)); err != nil {
		return err
	}
	return nil
}
