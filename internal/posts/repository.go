package posts

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/UkralStul/content-service/internal/auth"
	"github.com/UkralStul/content-service/internal/domain"
	"github.com/UkralStul/content-service/internal/metrics"
	"github.com/UkralStul/content-service/internal/storage"
)

const maxTitleLength = 255

// MediaReleaser освобождает вложение по имени.
type MediaReleaser interface {
	Release(name string) error
}

// CreateInput - данные нового поста. Image - имя уже сохранённого вложения.
type CreateInput struct {
	Title   string
	Content string
	Image   string
}

// PostPatch - разрешённые к изменению поля поста. nil - поле не меняется.
type PostPatch struct {
	Title   *string
	Content *string
	Image   *string
}

func (p PostPatch) validate() error {
	if p.Title != nil {
		if err := validateTitle(*p.Title); err != nil {
			return err
		}
	}
	if p.Content != nil && strings.TrimSpace(*p.Content) == "" {
		return domain.Validationf("content must not be empty")
	}
	return nil
}

// apply изменяет пост и возвращает имя вытесненного вложения, если оно было заменено.
func (p PostPatch) apply(post *domain.Post) (replaced string) {
	if p.Title != nil {
		post.Title = *p.Title
	}
	if p.Content != nil {
		post.Content = *p.Content
	}
	if p.Image != nil && *p.Image != post.Image {
		replaced = post.Image
		post.Image = *p.Image
	}
	return replaced
}

// ListFilter - параметры выборки. Requester == nil означает анонимный запрос.
type ListFilter struct {
	MineOnly  bool
	Requester *auth.Identity
}

// Repository управляет постами и проверяет права через auth.Allowed.
type Repository struct {
	store   storage.PostStore
	authors Authors
	media   MediaReleaser
	log     *slog.Logger
}

// NewRepository создаёт репозиторий постов.
func NewRepository(store storage.PostStore, authors Authors, media MediaReleaser, log *slog.Logger) *Repository {
	if log == nil {
		log = slog.Default()
	}
	return &Repository{store: store, authors: authors, media: media, log: log}
}

// Create создаёт пост от имени автора.
func (r *Repository) Create(ctx context.Context, authorID string, in CreateInput) (*domain.Post, error) {
	if err := validateCreate(authorID, in); err != nil {
		r.release(in.Image)
		return nil, err
	}

	post, err := r.store.CreatePost(ctx, &domain.Post{
		Title:    in.Title,
		Content:  in.Content,
		Image:    in.Image,
		AuthorID: authorID,
	})
	if err != nil {
		r.release(in.Image)
		return nil, err
	}
	return post, nil
}

// Get возвращает пост с автором и комментариями.
func (r *Repository) Get(ctx context.Context, id string, requester *auth.Identity) (*PostView, error) {
	post, err := r.store.GetPostByID(ctx, id)
	if err != nil {
		return nil, err
	}
	users, err := resolveAuthors(ctx, r.authors, post)
	if err != nil {
		return nil, err
	}
	return postView(users, post, viewerID(requester)), nil
}

// List возвращает все посты или только посты запрашивающего.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]*PostView, error) {
	var query storage.PostFilter
	if filter.MineOnly {
		if filter.Requester == nil {
			return nil, domain.ErrUnauthenticated
		}
		if err := auth.Authorize(auth.ActionReadOwnPosts, *filter.Requester, filter.Requester.UserID); err != nil {
			return nil, err
		}
		query.AuthorID = filter.Requester.UserID
	}

	posts, err := r.store.ListPosts(ctx, query)
	if err != nil {
		return nil, err
	}
	users, err := resolveAuthors(ctx, r.authors, posts...)
	if err != nil {
		return nil, err
	}

	viewer := viewerID(filter.Requester)
	out := make([]*PostView, 0, len(posts))
	for _, p := range posts {
		out = append(out, postView(users, p, viewer))
	}
	return out, nil
}

// Update применяет patch, если запрашивающий - автор или админ.
// Отсутствие поста и отсутствие прав неразличимы для клиента; patch
// проверяется только после проверки прав.
func (r *Repository) Update(ctx context.Context, id string, requester auth.Identity, patch PostPatch) (*domain.Post, error) {
	var replaced string
	post, err := r.store.UpdatePost(ctx, id, func(p *domain.Post) error {
		if !auth.Allowed(auth.ActionUpdatePost, requester, p.AuthorID) {
			return domain.ErrNotFoundOrUnauthorized
		}
		if err := patch.validate(); err != nil {
			return err
		}
		replaced = patch.apply(p)
		return nil
	})
	if err != nil {
		r.releaseUnused(patch)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFoundOrUnauthorized
		}
		return nil, err
	}

	r.release(replaced)
	return post, nil
}

// Delete удаляет пост, если запрашивающий - автор или админ, и освобождает вложение.
func (r *Repository) Delete(ctx context.Context, id string, requester auth.Identity) error {
	deleted, err := r.store.DeletePost(ctx, id, func(p *domain.Post) error {
		if !auth.Allowed(auth.ActionDeletePost, requester, p.AuthorID) {
			return domain.ErrNotFoundOrUnauthorized
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNotFoundOrUnauthorized
		}
		return err
	}

	r.release(deleted.Image)
	return nil
}

// release освобождает вложение; ошибка только логируется, вложение остаётся сиротой.
func (r *Repository) release(name string) {
	if name == "" || r.media == nil {
		return
	}
	if err := r.media.Release(name); err != nil {
		metrics.MediaReleaseFailed()
		r.log.Warn("failed to release media attachment", "name", name, "error", err)
	}
}

func (r *Repository) releaseUnused(patch PostPatch) {
	if patch.Image != nil {
		r.release(*patch.Image)
	}
}

func validateCreate(authorID string, in CreateInput) error {
	if authorID == "" {
		return domain.ErrUnauthenticated
	}
	if err := validateTitle(in.Title); err != nil {
		return err
	}
	if strings.TrimSpace(in.Content) == "" {
		return domain.Validationf("content is required")
	}
	return nil
}

func validateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return domain.Validationf("title is required")
	}
	if len(title) > maxTitleLength {
		return domain.Validationf("title must be at most %d characters", maxTitleLength)
	}
	return nil
}

func viewerID(requester *auth.Identity) string {
	if requester == nil {
		return ""
	}
	return requester.UserID
}
