package dataloader

import (
	"context"
	"net/http"
	"time"

	"github.com/UkralStul/content-service/internal/domain"
	"github.com/UkralStul/content-service/internal/storage"
	"github.com/graph-gophers/dataloader"
)

type contextKey string

const key = contextKey("dataloaders")

// Loaders содержит все дата-лоадеры приложения.
type Loaders struct {
	UserByID *dataloader.Loader
}

// NewLoaders создает лоадеры поверх хранилища пользователей.
func NewLoaders(store storage.UserStore) *Loaders {
	// Создаем батч-функцию для лоадера
	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		ids := keys.Keys()

		// Вызываем метод хранилища, который делает ОДИН запрос к БД
		users, err := store.GetUsersByIDs(ctx, ids)
		results := make([]*dataloader.Result, len(keys))
		if err != nil {
			// В случае ошибки, возвращаем ее для всех ключей
			for i := range results {
				results[i] = &dataloader.Result{Error: err}
			}
			return results
		}

		// Формируем результат в том же порядке, что и ключи.
		// Отсутствующий пользователь - это nil, а не ошибка: автор мог быть удален.
		for i, id := range ids {
			results[i] = &dataloader.Result{Data: users[id]}
		}
		return results
	}

	return &Loaders{
		UserByID: dataloader.NewBatchedLoader(batchFn, dataloader.WithWait(time.Millisecond)),
	}
}

// Middleware для внедрения лоадеров в контекст запроса.
func Middleware(store storage.UserStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), key, NewLoaders(store))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// For извлекает лоадеры из контекста; nil, если их нет.
func For(ctx context.Context) *Loaders {
	loaders, _ := ctx.Value(key).(*Loaders)
	return loaders
}

// AuthorResolver находит авторов по id: через лоадер запроса, если он есть,
// иначе напрямую в хранилище.
type AuthorResolver struct {
	Store storage.UserStore
}

// Users возвращает найденных пользователей; удаленные в результат не попадают.
func (a AuthorResolver) Users(ctx context.Context, ids []string) (map[string]*domain.User, error) {
	ids = unique(ids)
	if len(ids) == 0 {
		return map[string]*domain.User{}, nil
	}

	loaders := For(ctx)
	if loaders == nil {
		return a.Store.GetUsersByIDs(ctx, ids)
	}

	thunk := loaders.UserByID.LoadMany(ctx, dataloader.NewKeysFromStrings(ids))
	data, errs := thunk()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	result := make(map[string]*domain.User, len(ids))
	for i, v := range data {
		if u, ok := v.(*domain.User); ok && u != nil {
			result[ids[i]] = u
		}
	}
	return result, nil
}

func unique(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
