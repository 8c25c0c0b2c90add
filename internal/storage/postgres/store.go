package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/UkralStul/content-service/internal/domain"
	"github.com/UkralStul/content-service/internal/storage"
	"github.com/google/uuid"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Store реализует интерфейс Storage с использованием PostgreSQL.
type Store struct {
	db *gorm.DB
}

var _ storage.Storage = (*Store)(nil)

// New создает новый экземпляр хранилища PostgreSQL.
func New(dsn string, logLevel logger.LogLevel) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Выполняем миграцию схемы
	if err := db.AutoMigrate(&domain.User{}, &domain.Post{}, &domain.Comment{}, &domain.Like{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close закрывает пул соединений.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// === User Methods ===

func (s *Store) CreateUser(ctx context.Context, user *domain.User) (*domain.User, error) {
	u := *user
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if err := s.db.WithContext(ctx).Create(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, domain.Conflictf("username %q already exists", u.Username)
		}
		return nil, domain.Internal("failed to create user", err)
	}
	return &u, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.NotFoundf("user %s not found", id)
	}
	var user domain.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "user %s not found", id)
	}
	return &user, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	var user domain.User
	if err := s.db.WithContext(ctx).First(&user, "username = ?", username).Error; err != nil {
		return nil, notFound(err, "user %q not found", username)
	}
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]*domain.User, error) {
	var users []*domain.User
	if err := s.db.WithContext(ctx).Order("created_at ASC, username ASC").Find(&users).Error; err != nil {
		return nil, domain.Internal("failed to list users", err)
	}
	return users, nil
}

func (s *Store) UpdateUser(ctx context.Context, id string, fn storage.UserMutateFunc) (*domain.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.NotFoundf("user %s not found", id)
	}
	var user domain.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, "id = ?", id).Error; err != nil {
			return notFound(err, "user %s not found", id)
		}
		if err := fn(&user); err != nil {
			return err
		}
		user.ID = id
		return tx.Model(&domain.User{}).Where("id = ?", id).Updates(map[string]interface{}{
			"username":      user.Username,
			"password_hash": user.PasswordHash,
			"role":          string(user.Role),
			"updated_at":    time.Now().UTC(),
		}).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, domain.Conflictf("username %q already exists", user.Username)
		}
		return nil, wrap(err, "failed to update user")
	}
	return s.GetUserByID(ctx, id)
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return domain.NotFoundf("user %s not found", id)
	}
	// Комментарии и лайки пользователя остаются: ссылка на автора слабая
	res := s.db.WithContext(ctx).Delete(&domain.User{}, "id = ?", id)
	if res.Error != nil {
		return domain.Internal("failed to delete user", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.NotFoundf("user %s not found", id)
	}
	return nil
}

// === Dataloader Method ===

func (s *Store) GetUsersByIDs(ctx context.Context, ids []string) (map[string]*domain.User, error) {
	result := make(map[string]*domain.User, len(ids))
	ids = validUUIDs(ids)
	if len(ids) == 0 {
		return result, nil
	}
	var users []*domain.User
	// Загружаем всех пользователей одним запросом
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, domain.Internal("failed to load users", err)
	}
	for _, u := range users {
		result[u.ID] = u
	}
	return result, nil
}

// === Post Methods ===

func (s *Store) CreatePost(ctx context.Context, post *domain.Post) (*domain.Post, error) {
	p := post.Clone()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	// Новый пост создаётся без комментариев и лайков
	p.Comments, p.Likes = nil, nil
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(p).Error; err != nil {
		return nil, domain.Internal("failed to create post", err)
	}
	p.Comments, p.Likes = []*domain.Comment{}, []*domain.Like{}
	return p, nil
}

func (s *Store) GetPostByID(ctx context.Context, id string) (*domain.Post, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.NotFoundf("post %s not found", id)
	}
	var post domain.Post
	if err := withChildren(s.db.WithContext(ctx)).First(&post, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "post %s not found", id)
	}
	return &post, nil
}

func (s *Store) ListPosts(ctx context.Context, filter storage.PostFilter) ([]*domain.Post, error) {
	var posts []*domain.Post
	query := withChildren(s.db.WithContext(ctx)).Order("created_at DESC")
	if filter.AuthorID != "" {
		query = query.Where("author_id = ?", filter.AuthorID)
	}
	if err := query.Find(&posts).Error; err != nil {
		return nil, domain.Internal("failed to list posts", err)
	}
	return posts, nil
}

func (s *Store) UpdatePost(ctx context.Context, id string, fn storage.MutateFunc) (*domain.Post, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.NotFoundf("post %s not found", id)
	}
	var updated *domain.Post
	// Используем транзакцию с блокировкой строки поста, чтобы чтение-изменение-запись
	// по одному посту выполнялись строго последовательно
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		before, err := lockPost(tx, id)
		if err != nil {
			return err
		}
		next := before.Clone()
		if err := fn(next); err != nil {
			return err
		}
		next.ID, next.AuthorID, next.CreatedAt = before.ID, before.AuthorID, before.CreatedAt
		next.UpdatedAt = time.Now().UTC()
		if err := applyDiff(tx, before, next); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, wrap(err, "failed to update post")
	}
	return updated, nil
}

func (s *Store) DeletePost(ctx context.Context, id string, fn storage.MutateFunc) (*domain.Post, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.NotFoundf("post %s not found", id)
	}
	var deleted *domain.Post
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		post, err := lockPost(tx, id)
		if err != nil {
			return err
		}
		if fn != nil {
			if err := fn(post.Clone()); err != nil {
				return err
			}
		}
		if err := tx.Where("post_id = ?", id).Delete(&domain.Comment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", id).Delete(&domain.Like{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&domain.Post{}, "id = ?", id).Error; err != nil {
			return err
		}
		deleted = post
		return nil
	})
	if err != nil {
		return nil, wrap(err, "failed to delete post")
	}
	return deleted, nil
}

// lockPost читает пост с блокировкой FOR UPDATE до конца транзакции.
func lockPost(tx *gorm.DB, id string) (*domain.Post, error) {
	var post domain.Post
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&post, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "post %s not found", id)
	}
	if err := tx.Where("post_id = ?", id).Order("position ASC").Find(&post.Comments).Error; err != nil {
		return nil, err
	}
	if err := tx.Where("post_id = ?", id).Order("created_at ASC").Find(&post.Likes).Error; err != nil {
		return nil, err
	}
	return &post, nil
}

// childDiff - изменения лайков и комментариев между двумя версиями поста.
type childDiff struct {
	addedLikes       []*domain.Like
	removedLikes     []string // user_id
	appendedComments []*domain.Comment
	droppedComments  []string // id комментариев
}

func (d childDiff) empty() bool {
	return len(d.addedLikes) == 0 && len(d.removedLikes) == 0 &&
		len(d.appendedComments) == 0 && len(d.droppedComments) == 0
}

// diffChildren сравнивает версии поста. Новым лайкам и комментариям
// проставляется PostID; комментарии только добавляются и удаляются,
// текст не редактируется.
func diffChildren(before, next *domain.Post) childDiff {
	var d childDiff

	oldLikes := make(map[string]bool, len(before.Likes))
	for _, l := range before.Likes {
		oldLikes[l.UserID] = true
	}
	newLikes := make(map[string]bool, len(next.Likes))
	for _, l := range next.Likes {
		newLikes[l.UserID] = true
		if !oldLikes[l.UserID] {
			l.PostID = before.ID
			d.addedLikes = append(d.addedLikes, l)
		}
	}
	for _, l := range before.Likes {
		if !newLikes[l.UserID] {
			d.removedLikes = append(d.removedLikes, l.UserID)
		}
	}

	oldComments := make(map[string]bool, len(before.Comments))
	for _, c := range before.Comments {
		oldComments[c.ID] = true
	}
	newComments := make(map[string]bool, len(next.Comments))
	for _, c := range next.Comments {
		newComments[c.ID] = true
		if !oldComments[c.ID] {
			c.PostID = before.ID
			d.appendedComments = append(d.appendedComments, c)
		}
	}
	for _, c := range before.Comments {
		if !newComments[c.ID] {
			d.droppedComments = append(d.droppedComments, c.ID)
		}
	}
	return d
}

// applyDiff записывает разницу между двумя версиями поста.
func applyDiff(tx *gorm.DB, before, next *domain.Post) error {
	if err := tx.Model(&domain.Post{}).Where("id = ?", before.ID).Updates(map[string]interface{}{
		"title":      next.Title,
		"content":    next.Content,
		"image":      next.Image,
		"updated_at": next.UpdatedAt,
	}).Error; err != nil {
		return err
	}

	d := diffChildren(before, next)
	if d.empty() {
		return nil
	}
	if len(d.removedLikes) > 0 {
		if err := tx.Where("post_id = ? AND user_id IN ?", before.ID, d.removedLikes).Delete(&domain.Like{}).Error; err != nil {
			return err
		}
	}
	if len(d.addedLikes) > 0 {
		if err := tx.Create(&d.addedLikes).Error; err != nil {
			return err
		}
	}
	if len(d.droppedComments) > 0 {
		if err := tx.Where("post_id = ? AND id IN ?", before.ID, d.droppedComments).Delete(&domain.Comment{}).Error; err != nil {
			return err
		}
	}
	if len(d.appendedComments) > 0 {
		if err := tx.Create(&d.appendedComments).Error; err != nil {
			return err
		}
	}
	return nil
}

func withChildren(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Comments", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Likes", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") })
}

// notFound превращает gorm.ErrRecordNotFound в доменную ошибку.
func notFound(err error, format string, args ...any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.NotFoundf(format, args...)
	}
	return domain.Internal("database query failed", err)
}

// wrap оставляет доменные ошибки как есть, остальное считает внутренней ошибкой.
func wrap(err error, msg string) error {
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	return domain.Internal(msg, err)
}

func validUUIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			out = append(out, id)
		}
	}
	return out
}
