package config

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"marketplace-chat/config/common"
	"marketplace-chat/handler"
	"marketplace-chat/storage"
)

func NewFiber(cfg *common.Config, log *logrus.Logger) *fiber.App {
	appName := cfg.GetAppConfig()
	return fiber.New(fiber.Config{
		Prefork:       false,
		CaseSensitive: true,
		StrictRouting: true,
		AppName:       appName,
		BodyLimit:     storage.DefaultPolicy().BodyLimit(),
		ErrorHandler:  handler.ErrorHandler(log),
	})
}
