package repository

import (
	"context"

	"userService/models"
)

// UserRepositoryI defines read operations on User entities.
type UserRepositoryI interface {
	List(ctx context.Context) ([]models.User, error)
}

var _ UserRepositoryI = (*UserRepository)(nil)
