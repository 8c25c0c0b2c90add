package storage

import (
	"context"

	"github.com/UkralStul/content-service/internal/domain"
)

// MutateFunc изменяет приватную копию поста, пока пост захвачен.
// Ненулевая ошибка отменяет изменение целиком.
type MutateFunc func(post *domain.Post) error

// UserMutateFunc - то же для пользователя.
type UserMutateFunc func(user *domain.User) error

// PostFilter - фильтр выборки постов. Пустой AuthorID означает все посты.
type PostFilter struct {
	AuthorID string
}

// UserStore хранит учётные записи.
type UserStore interface {
	CreateUser(ctx context.Context, user *domain.User) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	ListUsers(ctx context.Context) ([]*domain.User, error)
	UpdateUser(ctx context.Context, id string, fn UserMutateFunc) (*domain.User, error)
	DeleteUser(ctx context.Context, id string) error

	// Для Dataloader'ов
	GetUsersByIDs(ctx context.Context, ids []string) (map[string]*domain.User, error)
}

// PostStore хранит посты вместе с комментариями и лайками.
// UpdatePost и DeletePost сериализуются по посту: fn видит последнее
// зафиксированное состояние, и никакое параллельное изменение не теряется.
type PostStore interface {
	CreatePost(ctx context.Context, post *domain.Post) (*domain.Post, error)
	GetPostByID(ctx context.Context, id string) (*domain.Post, error)
	ListPosts(ctx context.Context, filter PostFilter) ([]*domain.Post, error)
	UpdatePost(ctx context.Context, id string, fn MutateFunc) (*domain.Post, error)
	// DeletePost удаляет пост, если fn не вернула ошибку, и возвращает удалённую запись.
	DeletePost(ctx context.Context, id string, fn MutateFunc) (*domain.Post, error)
}

// Storage определяет контракт для хранилищ.
type Storage interface {
	UserStore
	PostStore
}
