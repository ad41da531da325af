package config

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"marketplace-chat/broker"
	"marketplace-chat/config/common"
	"marketplace-chat/config/logger"
	"marketplace-chat/handler"
	"marketplace-chat/middleware"
	"marketplace-chat/repository"
	"marketplace-chat/routes"
	"marketplace-chat/security"
	"marketplace-chat/storage"
	"marketplace-chat/usecase"
)

type AppConfig struct {
	*fiber.App
	*validator.Validate
	*logrus.Logger
	*DBConfig
	*middleware.Middleware
	Config    *common.Config
	AppLogger *logger.AppLogger
	Uploader  storage.Uploader
	Registry  broker.Registry
	Metrics   *prometheus.Registry
}

func RunServer() {
	newConfig := common.NewViper()
	log := NewLogger()
	appLogger := logger.NewLogger(newConfig.GetLogDir())
	app := NewFiber(newConfig, log)
	newDB := NewDB(newConfig, appLogger)
	newValidator := NewValidator()
	newJWT := security.NewJWT(newConfig)
	newMiddleware := middleware.NewMiddleware(newConfig, newJWT, log)

	uploader, err := storage.NewUploader(newConfig.GetS3Config(), log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialise attachment storage")
	}

	metrics := prometheus.NewRegistry()
	metrics.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	app.Use(cors.New(cors.Config{
		AllowOrigins: newConfig.GetCorsOrigins(),
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	App(&AppConfig{
		App:        app,
		Validate:   newValidator,
		Logger:     log,
		DBConfig:   newDB,
		Middleware: newMiddleware,
		Config:     newConfig,
		AppLogger:  appLogger,
		Uploader:   uploader,
		Registry:   NewPresenceRegistry(newConfig, appLogger),
		Metrics:    metrics,
	})

	if err := app.Listen(newConfig.GetListenAddr()); err != nil {
		log.WithError(err).Errorf("Failed to start server: %v", err)
	}
}

func App(aC *AppConfig) {
	pageSize, window := aC.Config.GetMessagingConfig()

	newUserRepository := repository.NewUserRepository()
	newChatRepository := repository.NewChatRepository()
	newMessageRepository := repository.NewMessageRepository()

	newUserUsecase := usecase.NewUserUsecase(newUserRepository, aC.GetDB(), aC.AppLogger)
	newChatUsecase := usecase.NewChatUsecase(newChatRepository, newMessageRepository, aC.Logger, aC.GetDB(), pageSize)
	newMessageUsecase := usecase.NewMessageUsecase(usecase.MessageUsecaseConfig{
		DB:          aC.GetDB(),
		Logger:      aC.Logger,
		Validate:    aC.Validate,
		Messages:    newMessageRepository,
		Users:       newUserRepository,
		Chats:       newChatRepository,
		ChatUsecase: newChatUsecase,
		Uploader:    aC.Uploader,
		Policy:      storage.DefaultPolicy(),
		Window:      window,
	})

	hub := broker.NewHub(aC.Registry, broker.NewMetrics(aC.Metrics), aC.AppLogger)
	go hub.RunHeartbeat(context.Background(), broker.PresenceTTL/3)

	route := routes.ConfigRoute{
		App:              aC.App,
		Middleware:       aC.Middleware,
		UserHandler:      handler.NewUserHandler(newUserUsecase, aC.Logger),
		ChatHandler:      handler.NewChatHandler(newChatUsecase, aC.Logger, aC.Validate),
		MessageHandler:   handler.NewMessageHandler(newMessageUsecase, aC.Logger),
		WebSocketHandler: handler.NewWebSocketHandler(hub, aC.AppLogger),
		Gatherer:         aC.Metrics,
	}
	route.GetRoute()
}
