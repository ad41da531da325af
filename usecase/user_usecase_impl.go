package usecase

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"marketplace-chat/apperror"
	"marketplace-chat/config/logger"
	"marketplace-chat/dto/res"
	"marketplace-chat/entity"
	"marketplace-chat/repository"
)

type UserUsecaseImpl struct {
	*repository.UserRepository
	*gorm.DB
	Log *logger.AppLogger
}

func NewUserUsecase(userRepository *repository.UserRepository, DB *gorm.DB, logger *logger.AppLogger) UserUsecase {
	return &UserUsecaseImpl{UserRepository: userRepository, DB: DB, Log: logger}
}

func (uc *UserUsecaseImpl) GetUserByID(ctx context.Context, userID string) (res.UserResponse, error) {
	uc.Log.Http.Trace.Trace().
		Str("userId", userID).
		Msg("Finding user by ID")

	var user entity.User
	if err := uc.UserRepository.FindById(ctx, uc.DB, &user, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			uc.Log.Http.Warning.Warn().
				Str("userId", userID).
				Msg("User not found")
			return res.UserResponse{}, apperror.NotFound("user %s not found", userID)
		}
		uc.Log.Http.Error.Error().
			Err(err).
			Str("userId", userID).
			Msg("Failed to find user")
		return res.UserResponse{}, err
	}

	uc.Log.Http.Info.Info().
		Str("userId", user.ID).
		Msg("Successfully retrieved user")

	return res.UserResponse{
		ID:          user.ID,
		Name:        user.Name,
		Email:       user.Email,
		Avatar:      user.Avatar,
		PhoneNumber: user.PhoneNumber,
		CreatedAt:   user.CreatedAt.Format("2006-01-02 15:04:05"),
	}, nil
}
