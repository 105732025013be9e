package http

import (
	"time"

	"github.com/gin-gonic/gin"

	"nimbus/internal/ai"
	appsvc "nimbus/internal/app"
	"nimbus/internal/bootstrap"
	"nimbus/internal/cache"
	rabbitmqClient "nimbus/internal/platform/rabbitmq"
	"nimbus/internal/repository"
	"nimbus/internal/transport/http/handler"
	"nimbus/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	userRepo := repository.NewUserRepository(app.Postgres)
	docRepo := repository.NewDocumentRepository(app.Postgres)
	sessionRepo := repository.NewChatSessionRepository(app.Postgres)
	messageRepo := repository.NewChatMessageRepository(app.Postgres)
	embeddingRepo := repository.NewEmbeddingRepository(app.Postgres)

	llmClient := ai.NewOpenAICompatibleClient()
	publisher := rabbitmqClient.NewMessagePublisher(app.MQConn, app.Config.RabbitMQ.MessagePersistQueue)
	historyCache := cache.NewHistoryCache(
		app.Redis,
		time.Duration(app.Config.Redis.HistoryTTLSeconds)*time.Second,
		time.Duration(app.Config.Redis.HistoryDirtyTTLSeconds)*time.Second,
	)

	authService := appsvc.NewAuthService(
		userRepo,
		app.Config.Auth.JWTSecret,
		time.Duration(app.Config.Auth.JWTExpireMinute)*time.Minute,
	)
	docService := appsvc.NewDocumentService(
		docRepo, embeddingRepo, app.Files, llmClient,
		app.Config.LLM, app.Config.RAG, app.Config.Uploads, app.Logger,
	)
	retriever := appsvc.NewRetriever(
		llmClient, embeddingRepo,
		app.Config.RAG.ModelRegistry(), app.Config.LLM,
		app.Config.RAG.TopKPerModel, app.Config.RAG.TopKOverall, app.Logger,
	)
	chatService := appsvc.NewChatService(
		sessionRepo, messageRepo, docRepo, retriever, publisher, historyCache,
		llmClient, app.Config.LLM, app.Config.RAG, app.Logger,
	)

	authHandler := handler.NewAuthHandler(authService)
	chatHandler := handler.NewChatHandler(chatService)
	docHandler := handler.NewDocumentHandler(docService)

	v1 := router.Group("/api/v1")
	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.GET("/me", middleware.AuthJWT(app.Config.Auth.JWTSecret), authHandler.Me)
	authGroup.POST("/password", middleware.AuthJWT(app.Config.Auth.JWTSecret), authHandler.ChangePassword)

	chatGroup := v1.Group("/chat")
	chatGroup.Use(middleware.AuthJWT(app.Config.Auth.JWTSecret))
	chatGroup.GET("/models", chatHandler.ListModels)
	chatGroup.POST("/sessions", chatHandler.CreateSession)
	chatGroup.GET("/sessions", chatHandler.ListSessions)
	chatGroup.DELETE("/sessions/:id", chatHandler.DeleteSession)
	chatGroup.POST("/messages", chatHandler.SendMessage)
	chatGroup.GET("/history", chatHandler.GetHistory)

	docGroup := v1.Group("/documents")
	docGroup.Use(middleware.AuthJWT(app.Config.Auth.JWTSecret))
	docGroup.POST("", docHandler.Upload)
	docGroup.GET("", docHandler.List)
	docGroup.PATCH("/:filename/enable", docHandler.ToggleEnable)
	docGroup.POST("/:filename/parse", docHandler.Parse)
	docGroup.POST("/:filename/split", docHandler.Split)
	docGroup.GET("/:filename/chunks", docHandler.Preview)
	docGroup.POST("/:filename/embed", docHandler.Embed)
	docGroup.DELETE("/:filename", docHandler.Delete)

	return router
}
