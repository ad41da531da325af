package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"marketplace-chat/apperror"
	"marketplace-chat/dto/res"
)

// ErrorHandler renders every error returned by a handler in the common envelope.
func ErrorHandler(log *logrus.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		message := "Internal server error"

		var fiberErr *fiber.Error
		switch apperror.KindOf(err) {
		case apperror.KindValidation:
			status, message = fiber.StatusBadRequest, err.Error()
		case apperror.KindNotFound:
			status, message = fiber.StatusNotFound, err.Error()
		case apperror.KindForbidden:
			status, message = fiber.StatusForbidden, err.Error()
		case apperror.KindUpload:
			status, message = fiber.StatusUnprocessableEntity, err.Error()
		case apperror.KindTransport:
			status, message = fiber.StatusServiceUnavailable, err.Error()
		default:
			if errors.As(err, &fiberErr) {
				status, message = fiberErr.Code, fiberErr.Message
			}
		}

		if status >= fiber.StatusInternalServerError {
			log.WithError(err).Errorf("Request %s %s failed", c.Method(), c.Path())
		}
		return c.Status(status).JSON(res.Fail(message))
	}
}
