package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/UkralStul/content-service/internal/domain"
	"github.com/UkralStul/content-service/internal/storage"
	"github.com/google/uuid"
)

// postEntry хранит последнюю зафиксированную версию поста.
// Изменения сериализуются через lock, чтение идёт без блокировок через cur.
type postEntry struct {
	lock chan struct{}
	cur  atomic.Pointer[domain.Post]
}

func newPostEntry(p *domain.Post) *postEntry {
	e := &postEntry{lock: make(chan struct{}, 1)}
	e.cur.Store(p)
	return e
}

// acquire ждёт захвата поста не дольше, чем живёт ctx.
func (e *postEntry) acquire(ctx context.Context) error {
	select {
	case e.lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *postEntry) release() { <-e.lock }

// Store реализует интерфейс Storage в памяти.
type Store struct {
	mu         sync.RWMutex
	users      map[string]*domain.User
	userByName map[string]string // map[username]userID
	posts      map[string]*postEntry
	postOrder  []string // порядок создания
	now        func() time.Time
}

var _ storage.Storage = (*Store)(nil)

// New создает новый экземпляр in-memory хранилища.
func New() *Store {
	return &Store{
		users:      make(map[string]*domain.User),
		userByName: make(map[string]string),
		posts:      make(map[string]*postEntry),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// === User Methods ===

func (s *Store) CreateUser(ctx context.Context, user *domain.User) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.userByName[user.Username]; taken {
		return nil, domain.Conflictf("username %q already exists", user.Username)
	}
	u := *user
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now()
	}
	u.UpdatedAt = u.CreatedAt
	s.users[u.ID] = &u
	s.userByName[u.Username] = u.ID

	out := u
	return &out, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, domain.NotFoundf("user %s not found", id)
	}
	out := *u
	return &out, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.userByName[username]
	if !ok {
		return nil, domain.NotFoundf("user %q not found", username)
	}
	out := *s.users[id]
	return &out, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.User, 0, len(s.users))
	for _, u := range s.users {
		cp := *u
		out = append(out, &cp)
	}
	sortUsers(out)
	return out, nil
}

func (s *Store) UpdateUser(ctx context.Context, id string, fn storage.UserMutateFunc) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.users[id]
	if !ok {
		return nil, domain.NotFoundf("user %s not found", id)
	}
	next := *cur
	if err := fn(&next); err != nil {
		return nil, err
	}
	next.ID = cur.ID
	next.CreatedAt = cur.CreatedAt
	if next.Username != cur.Username {
		if _, taken := s.userByName[next.Username]; taken {
			return nil, domain.Conflictf("username %q already exists", next.Username)
		}
		delete(s.userByName, cur.Username)
		s.userByName[next.Username] = next.ID
	}
	next.UpdatedAt = s.now()
	s.users[id] = &next

	out := next
	return &out, nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return domain.NotFoundf("user %s not found", id)
	}
	delete(s.userByName, u.Username)
	delete(s.users, id)
	return nil
}

// === Dataloader Methods ===

func (s *Store) GetUsersByIDs(ctx context.Context, ids []string) (map[string]*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]*domain.User, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			cp := *u
			result[id] = &cp
		}
	}
	return result, nil
}

// === Post Methods ===

func (s *Store) CreatePost(ctx context.Context, post *domain.Post) (*domain.Post, error) {
	p := post.Clone()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	p.UpdatedAt = p.CreatedAt

	s.mu.Lock()
	s.posts[p.ID] = newPostEntry(p)
	s.postOrder = append(s.postOrder, p.ID)
	s.mu.Unlock()

	return p.Clone(), nil
}

func (s *Store) GetPostByID(ctx context.Context, id string) (*domain.Post, error) {
	s.mu.RLock()
	e, ok := s.posts[id]
	s.mu.RUnlock()

	if !ok {
		return nil, domain.NotFoundf("post %s not found", id)
	}
	p := e.cur.Load()
	if p == nil {
		return nil, domain.NotFoundf("post %s not found", id)
	}
	return p.Clone(), nil
}

func (s *Store) ListPosts(ctx context.Context, filter storage.PostFilter) ([]*domain.Post, error) {
	s.mu.RLock()
	entries := make([]*postEntry, 0, len(s.postOrder))
	// Новые посты первыми
	for i := len(s.postOrder) - 1; i >= 0; i-- {
		entries = append(entries, s.posts[s.postOrder[i]])
	}
	s.mu.RUnlock()

	out := make([]*domain.Post, 0, len(entries))
	for _, e := range entries {
		p := e.cur.Load()
		if p == nil {
			continue
		}
		if filter.AuthorID != "" && p.AuthorID != filter.AuthorID {
			continue
		}
		out = append(out, p.Clone())
	}
	return out, nil
}

func (s *Store) UpdatePost(ctx context.Context, id string, fn storage.MutateFunc) (*domain.Post, error) {
	e, err := s.lockPost(ctx, id)
	if err != nil {
		return nil, err
	}
	defer e.release()

	cur := e.cur.Load()
	if cur == nil {
		return nil, domain.NotFoundf("post %s not found", id)
	}
	next := cur.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	// Идентичность и автор поста неизменяемы
	next.ID = cur.ID
	next.AuthorID = cur.AuthorID
	next.CreatedAt = cur.CreatedAt
	next.UpdatedAt = s.now()
	e.cur.Store(next)

	return next.Clone(), nil
}

func (s *Store) DeletePost(ctx context.Context, id string, fn storage.MutateFunc) (*domain.Post, error) {
	e, err := s.lockPost(ctx, id)
	if err != nil {
		return nil, err
	}
	defer e.release()

	cur := e.cur.Load()
	if cur == nil {
		return nil, domain.NotFoundf("post %s not found", id)
	}
	if fn != nil {
		if err := fn(cur.Clone()); err != nil {
			return nil, err
		}
	}
	e.cur.Store(nil)

	s.mu.Lock()
	delete(s.posts, id)
	for i, pid := range s.postOrder {
		if pid == id {
			s.postOrder = append(s.postOrder[:i:i], s.postOrder[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	return cur.Clone(), nil
}

// lockPost находит пост и захватывает его для изменения.
func (s *Store) lockPost(ctx context.Context, id string) (*postEntry, error) {
	s.mu.RLock()
	e, ok := s.posts[id]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.NotFoundf("post %s not found", id)
	}
	if err := e.acquire(ctx); err != nil {
		return nil, fmt.Errorf("acquire post %s: %w", id, err)
	}
	return e, nil
}

func sortUsers(users []*domain.User) {
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].Username < users[j].Username
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
}
