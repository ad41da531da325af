package usecase

import (
	"context"

	"marketplace-chat/dto/res"
)

type UserUsecase interface {
	GetUserByID(ctx context.Context, userID string) (res.UserResponse, error)
}
