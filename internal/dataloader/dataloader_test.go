package dataloader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/UkralStul/content-service/internal/domain"
	"github.com/UkralStul/content-service/internal/storage"
	"github.com/UkralStul/content-service/internal/storage/inmemory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore считает батч-запросы к хранилищу
type countingStore struct {
	storage.UserStore
	batches atomic.Int32
}

func (c *countingStore) GetUsersByIDs(ctx context.Context, ids []string) (map[string]*domain.User, error) {
	c.batches.Add(1)
	return c.UserStore.GetUsersByIDs(ctx, ids)
}

func newTestUsers(t *testing.T) (*countingStore, *domain.User, *domain.User) {
	store := inmemory.New()
	ctx := context.Background()
	alice, err := store.CreateUser(ctx, &domain.User{Username: "alice", Role: domain.RoleUser})
	require.NoError(t, err)
	bob, err := store.CreateUser(ctx, &domain.User{Username: "bob", Role: domain.RoleAdmin})
	require.NoError(t, err)
	return &countingStore{UserStore: store}, alice, bob
}

func TestAuthorResolver_WithoutLoader(t *testing.T) {
	store, alice, _ := newTestUsers(t)
	resolver := AuthorResolver{Store: store}

	users, err := resolver.Users(context.Background(), []string{alice.ID, alice.ID, "ghost", ""})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "alice", users[alice.ID].Username)
	assert.EqualValues(t, 1, store.batches.Load())
}

func TestAuthorResolver_UsesRequestLoader(t *testing.T) {
	store, alice, bob := newTestUsers(t)
	resolver := AuthorResolver{Store: store}

	var got map[string]*domain.User
	handler := Middleware(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NotNil(t, For(r.Context()))
		var err error
		got, err = resolver.Users(r.Context(), []string{alice.ID, bob.ID, "ghost"})
		require.NoError(t, err)
		// Повторный запрос обслуживается из кеша лоадера
		_, err = resolver.Users(r.Context(), []string{alice.ID})
		require.NoError(t, err)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	require.Len(t, got, 2)
	assert.Equal(t, "bob", got[bob.ID].Username)
	assert.EqualValues(t, 1, store.batches.Load())
}

func TestFor_MissingLoaders(t *testing.T) {
	assert.Nil(t, For(context.Background()))
}
