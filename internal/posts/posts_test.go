package posts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/UkralStul/content-service/internal/auth"
	"github.com/UkralStul/content-service/internal/dataloader"
	"github.com/UkralStul/content-service/internal/domain"
	"github.com/UkralStul/content-service/internal/observer"
	"github.com/UkralStul/content-service/internal/storage/inmemory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMedia запоминает освобождённые вложения и может падать
type fakeMedia struct {
	mu       sync.Mutex
	released []string
	fail     bool
}

func (m *fakeMedia) Release(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("disk on fire")
	}
	m.released = append(m.released, name)
	return nil
}

type testEnv struct {
	store  *inmemory.Store
	repo   *Repository
	engine *Engine
	media  *fakeMedia
	events *observer.CommentObserver
	logs   *bytes.Buffer
	alice  auth.Identity
	bob    auth.Identity
	admin  auth.Identity
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := inmemory.New()
	ctx := context.Background()

	mkUser := func(name string, role domain.Role) auth.Identity {
		u, err := store.CreateUser(ctx, &domain.User{Username: name, PasswordHash: "x", Role: role})
		require.NoError(t, err)
		return auth.Identity{UserID: u.ID, Role: u.Role}
	}

	logs := &bytes.Buffer{}
	media := &fakeMedia{}
	events := observer.NewCommentObserver()
	authors := dataloader.AuthorResolver{Store: store}
	return &testEnv{
		store:  store,
		repo:   NewRepository(store, authors, media, slog.New(slog.NewTextHandler(logs, nil))),
		engine: NewEngine(store, authors, events),
		media:  media,
		events: events,
		logs:   logs,
		alice:  mkUser("alice", domain.RoleUser),
		bob:    mkUser("bob", domain.RoleEditor),
		admin:  mkUser("root", domain.RoleAdmin),
	}
}

func (env *testEnv) createPost(t *testing.T, author auth.Identity, image string) *domain.Post {
	t.Helper()
	post, err := env.repo.Create(context.Background(), author.UserID, CreateInput{Title: "Hello", Content: "World", Image: image})
	require.NoError(t, err)
	return post
}

func strPtr(s string) *string { return &s }

// === Repository ===

func TestRepository_CreateValidates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.repo.Create(ctx, env.alice.UserID, CreateInput{Title: "  ", Content: "x"})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = env.repo.Create(ctx, env.alice.UserID, CreateInput{Title: "x", Content: ""})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = env.repo.Create(ctx, "", CreateInput{Title: "x", Content: "y"})
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	post := env.createPost(t, env.alice, "")
	assert.Equal(t, env.alice.UserID, post.AuthorID)
	assert.Empty(t, post.Comments)
	assert.Empty(t, post.Likes)
}

func TestRepository_ListAnnotatesLikes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	alicePost := env.createPost(t, env.alice, "")
	env.createPost(t, env.bob, "")

	_, err := env.engine.ToggleLike(ctx, alicePost.ID, env.bob.UserID)
	require.NoError(t, err)

	views, err := env.repo.List(ctx, ListFilter{Requester: &env.bob})
	require.NoError(t, err)
	require.Len(t, views, 2)
	for _, v := range views {
		if v.ID == alicePost.ID {
			assert.Equal(t, 1, v.LikesCount)
			assert.True(t, v.LikedByCurrentUser)
			assert.Equal(t, "alice", v.Author.Username)
		} else {
			assert.Equal(t, 0, v.LikesCount)
			assert.False(t, v.LikedByCurrentUser)
		}
	}

	anonymous, err := env.repo.List(ctx, ListFilter{})
	require.NoError(t, err)
	for _, v := range anonymous {
		assert.False(t, v.LikedByCurrentUser)
	}
}

func TestRepository_ListMineOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	alicePost := env.createPost(t, env.alice, "")
	env.createPost(t, env.bob, "")

	mine, err := env.repo.List(ctx, ListFilter{MineOnly: true, Requester: &env.alice})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, alicePost.ID, mine[0].ID)

	_, err = env.repo.List(ctx, ListFilter{MineOnly: true})
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestRepository_UpdateByOwnerReplacesImage(t *testing.T) {
	env := newTestEnv(t)
	post := env.createPost(t, env.alice, "old.png")

	updated, err := env.repo.Update(context.Background(), post.ID, env.alice, PostPatch{
		Title: strPtr("New title"),
		Image: strPtr("new.png"),
	})
	require.NoError(t, err)
	assert.Equal(t, "New title", updated.Title)
	assert.Equal(t, "World", updated.Content)
	assert.Equal(t, "new.png", updated.Image)
	assert.Equal(t, []string{"old.png"}, env.media.released)
}

func TestRepository_UpdateByAdmin(t *testing.T) {
	env := newTestEnv(t)
	post := env.createPost(t, env.alice, "")

	updated, err := env.repo.Update(context.Background(), post.ID, env.admin, PostPatch{Content: strPtr("moderated")})
	require.NoError(t, err)
	assert.Equal(t, "moderated", updated.Content)
	assert.Equal(t, env.alice.UserID, updated.AuthorID)
}

func TestRepository_NonOwnerGetsNotFoundOrUnauthorized(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	post := env.createPost(t, env.alice, "keep.png")

	_, err := env.repo.Update(ctx, post.ID, env.bob, PostPatch{Title: strPtr("hijack"), Image: strPtr("bob.png")})
	assert.ErrorIs(t, err, domain.ErrNotFoundOrUnauthorized)

	err = env.repo.Delete(ctx, post.ID, env.bob)
	assert.ErrorIs(t, err, domain.ErrNotFoundOrUnauthorized)

	// Несуществующий пост даёт тот же ответ
	_, err = env.repo.Update(ctx, "missing", env.bob, PostPatch{Title: strPtr("x")})
	assert.Equal(t, domain.ErrNotFoundOrUnauthorized, err)
	assert.Equal(t, domain.ErrNotFoundOrUnauthorized, env.repo.Delete(ctx, "missing", env.admin))

	got, err := env.store.GetPostByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hello", got.Title)
	assert.Equal(t, "keep.png", got.Image)
	// Загруженный, но неиспользованный файл освобождён
	assert.Equal(t, []string{"bob.png"}, env.media.released)
}

func TestRepository_UpdateValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	post := env.createPost(t, env.alice, "")

	_, err := env.repo.Update(ctx, post.ID, env.alice, PostPatch{Title: strPtr(""), Image: strPtr("new.png")})
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, []string{"new.png"}, env.media.released)

	// Чужому посту невалидный patch даёт тот же ответ, что и отсутствующему посту
	_, err = env.repo.Update(ctx, post.ID, env.bob, PostPatch{Title: strPtr("")})
	assert.ErrorIs(t, err, domain.ErrNotFoundOrUnauthorized)
	assert.Equal(t, domain.ErrNotFoundOrUnauthorized.Message, domain.MessageOf(err))
	_, err = env.repo.Update(ctx, "missing", env.alice, PostPatch{Title: strPtr("")})
	assert.ErrorIs(t, err, domain.ErrNotFoundOrUnauthorized)

	got, err := env.store.GetPostByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hello", got.Title)
}

func TestRepository_DeleteReleasesImage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	post := env.createPost(t, env.alice, "pic.png")

	require.NoError(t, env.repo.Delete(ctx, post.ID, env.alice))
	assert.Equal(t, []string{"pic.png"}, env.media.released)

	_, err := env.repo.Get(ctx, post.ID, nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRepository_DeleteSucceedsWhenReleaseFails(t *testing.T) {
	env := newTestEnv(t)
	env.media.fail = true
	post := env.createPost(t, env.alice, "pic.png")

	require.NoError(t, env.repo.Delete(context.Background(), post.ID, env.admin))
	assert.Contains(t, env.logs.String(), "failed to release media attachment")
}

// === Engine ===

func TestEngine_ToggleLikeScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	post := env.createPost(t, env.alice, "")

	state, err := env.engine.ToggleLike(ctx, post.ID, env.bob.UserID)
	require.NoError(t, err)
	assert.Equal(t, LikeState{LikesCount: 1, LikedByCurrentUser: true}, state)

	state, err = env.engine.ToggleLike(ctx, post.ID, env.bob.UserID)
	require.NoError(t, err)
	assert.Equal(t, LikeState{LikesCount: 0, LikedByCurrentUser: false}, state)

	_, err = env.engine.ToggleLike(ctx, "missing", env.bob.UserID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = env.engine.ToggleLike(ctx, post.ID, "")
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestEngine_ConcurrentTogglesFromManyUsers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	post := env.createPost(t, env.alice, "")

	const users = 40
	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		userID := fmt.Sprintf("user-%d", i)
		toggles := 1 + i%3 // 1, 2 или 3 переключения
		for j := 0; j < toggles; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := env.engine.ToggleLike(ctx, post.ID, userID)
				assert.NoError(t, err)
			}()
		}
	}
	wg.Wait()

	expected := 0
	for i := 0; i < users; i++ {
		if (1+i%3)%2 == 1 {
			expected++
		}
	}
	got, err := env.store.GetPostByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, expected, got.LikeCount())
}

func TestEngine_ConcurrentTogglesFromSameUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	post := env.createPost(t, env.alice, "")

	const calls = 25
	var wg sync.WaitGroup
	var mu sync.Mutex
	likedResults := 0
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			state, err := env.engine.ToggleLike(ctx, post.ID, env.bob.UserID)
			assert.NoError(t, err)
			mu.Lock()
			if state.LikedByCurrentUser {
				likedResults++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	// Вызовы строго чередуются: лайк, снятие, лайк...
	assert.Equal(t, (calls+1)/2, likedResults)
	got, err := env.store.GetPostByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.LikeCount())
}

func TestEngine_AddAndDeleteComment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	post := env.createPost(t, env.alice, "")

	_, err := env.engine.AddComment(ctx, post.ID, env.alice.UserID, "first")
	require.NoError(t, err)
	before, err := env.engine.AddComment(ctx, post.ID, env.bob.UserID, "second")
	require.NoError(t, err)
	require.Len(t, before, 2)

	after, err := env.engine.AddComment(ctx, post.ID, env.bob.UserID, "third")
	require.NoError(t, err)
	require.Len(t, after, 3)
	assert.Equal(t, "third", after[2].Text)
	assert.Equal(t, "bob", after[2].User.Username)

	require.NoError(t, env.engine.DeleteComment(ctx, post.ID, after[2].ID, env.bob))

	thread, err := env.engine.Comments(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, before, thread)
}

func TestEngine_DeleteMiddleCommentKeepsOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	post := env.createPost(t, env.alice, "")

	var thread []CommentView
	for _, text := range []string{"a", "b", "c"} {
		var err error
		thread, err = env.engine.AddComment(ctx, post.ID, env.bob.UserID, text)
		require.NoError(t, err)
	}

	require.NoError(t, env.engine.DeleteComment(ctx, post.ID, thread[1].ID, env.admin))
	rest, err := env.engine.Comments(ctx, post.ID)
	require.NoError(t, err)
	require.Len(t, rest, 2)
	assert.Equal(t, "a", rest[0].Text)
	assert.Equal(t, "c", rest[1].Text)
}

func TestEngine_CommentValidationAndPermissions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	post := env.createPost(t, env.alice, "")

	_, err := env.engine.AddComment(ctx, post.ID, env.bob.UserID, "   ")
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = env.engine.AddComment(ctx, "missing", env.bob.UserID, "hi")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	thread, err := env.engine.AddComment(ctx, post.ID, env.bob.UserID, "hi")
	require.NoError(t, err)

	// Автор поста не может удалить чужой комментарий
	err = env.engine.DeleteComment(ctx, post.ID, thread[0].ID, env.alice)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	err = env.engine.DeleteComment(ctx, post.ID, "missing", env.admin)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	err = env.engine.DeleteComment(ctx, "missing", thread[0].ID, env.admin)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	rest, err := env.engine.Comments(ctx, post.ID)
	require.NoError(t, err)
	assert.Len(t, rest, 1)
}

func TestEngine_DeletedAuthorBecomesUnknown(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	post := env.createPost(t, env.alice, "")

	_, err := env.engine.AddComment(ctx, post.ID, env.bob.UserID, "still here")
	require.NoError(t, err)
	require.NoError(t, env.store.DeleteUser(ctx, env.bob.UserID))

	thread, err := env.engine.Comments(ctx, post.ID)
	require.NoError(t, err)
	require.Len(t, thread, 1)
	assert.Equal(t, "still here", thread[0].Text)
	assert.Equal(t, domain.UnknownAuthor, thread[0].User.Username)
}

func TestEngine_PublishesCommentEvents(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	post := env.createPost(t, env.alice, "")

	events, cancel := env.events.Subscribe(post.ID, 4)
	defer cancel()

	thread, err := env.engine.AddComment(ctx, post.ID, env.bob.UserID, "live")
	require.NoError(t, err)
	require.NoError(t, env.engine.DeleteComment(ctx, post.ID, thread[0].ID, env.bob))

	added := <-events
	assert.Equal(t, observer.CommentAdded, added.Type)
	assert.Equal(t, "live", added.Text)
	require.NotNil(t, added.Author)
	assert.Equal(t, "bob", added.Author.Username)

	deleted := <-events
	assert.Equal(t, observer.CommentDeleted, deleted.Type)
	assert.Equal(t, thread[0].ID, deleted.CommentID)
}
