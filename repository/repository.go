package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repository holds the queries every entity shares. The handle is passed per call so the same
// repository works inside and outside a transaction.
type Repository[T any] struct{}

func (repo Repository[T]) Save(ctx context.Context, db *gorm.DB, entity *T) error {
	return db.WithContext(ctx).Create(entity).Error
}

func (repo Repository[T]) FindById(ctx context.Context, db *gorm.DB, entity *T, id string) error {
	return db.WithContext(ctx).Where("id = ?", id).Take(entity).Error
}

