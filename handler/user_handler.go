package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"marketplace-chat/dto/res"
	"marketplace-chat/middleware"
	"marketplace-chat/usecase"
)

type UserHandler struct {
	usecase.UserUsecase
	*logrus.Logger
}

func NewUserHandler(userUsecase usecase.UserUsecase, logger *logrus.Logger) *UserHandler {
	return &UserHandler{UserUsecase: userUsecase, Logger: logger}
}

func (handler *UserHandler) GetUserByToken(ctx *fiber.Ctx) error {
	userResponse, err := handler.UserUsecase.GetUserByID(ctx.UserContext(), middleware.ActorID(ctx))
	if err != nil {
		handler.Logger.WithError(err).Errorln("Failed to get user by token")
		return err
	}
	return ctx.Status(fiber.StatusOK).JSON(res.OK("Successfully To Get User By ID", userResponse))
}
