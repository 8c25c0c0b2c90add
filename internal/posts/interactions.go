package posts

import (
	"context"
	"strings"
	"time"

	"github.com/UkralStul/content-service/internal/auth"
	"github.com/UkralStul/content-service/internal/domain"
	"github.com/UkralStul/content-service/internal/metrics"
	"github.com/UkralStul/content-service/internal/observer"
	"github.com/UkralStul/content-service/internal/storage"
	"github.com/google/uuid"
)

const maxCommentLength = 2000

// Publisher получает события треда комментариев.
type Publisher interface {
	Publish(ev observer.CommentEvent)
}

// Engine выполняет лайки и комментарии поверх хранилища постов.
// Каждое изменение идёт через storage.PostStore.UpdatePost и потому
// сериализуется по посту.
type Engine struct {
	store   storage.PostStore
	authors Authors
	events  Publisher
	now     func() time.Time
}

// NewEngine создаёт движок взаимодействий. events может быть nil.
func NewEngine(store storage.PostStore, authors Authors, events Publisher) *Engine {
	return &Engine{
		store:   store,
		authors: authors,
		events:  events,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// ToggleLike переключает лайк пользователя и возвращает новое состояние.
// Повторный вызов возвращает пост в исходное состояние.
func (e *Engine) ToggleLike(ctx context.Context, postID, userID string) (LikeState, error) {
	if userID == "" {
		return LikeState{}, domain.ErrUnauthenticated
	}

	var state LikeState
	_, err := e.store.UpdatePost(ctx, postID, func(p *domain.Post) error {
		liked := p.ToggleLike(userID, e.now())
		state = LikeState{LikesCount: p.LikeCount(), LikedByCurrentUser: liked}
		return nil
	})
	if err != nil {
		return LikeState{}, err
	}

	metrics.LikeToggled(state.LikedByCurrentUser)
	return state, nil
}

// AddComment добавляет комментарий в конец треда и возвращает весь тред.
func (e *Engine) AddComment(ctx context.Context, postID, userID, text string) ([]CommentView, error) {
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}
	if strings.TrimSpace(text) == "" {
		return nil, domain.Validationf("comment text cannot be empty")
	}
	if len(text) > maxCommentLength {
		return nil, domain.Validationf("comment text is too long")
	}

	comment := &domain.Comment{
		ID:        uuid.NewString(),
		AuthorID:  userID,
		Text:      text,
		CreatedAt: e.now(),
	}
	post, err := e.store.UpdatePost(ctx, postID, func(p *domain.Post) error {
		p.AppendComment(comment)
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.CommentAdded()

	users, err := resolveAuthors(ctx, e.authors, post)
	if err != nil {
		return nil, err
	}
	views := commentViews(users, post.Comments)

	if e.events != nil {
		author := authorOf(users, userID)
		e.events.Publish(observer.CommentEvent{
			Type:      observer.CommentAdded,
			PostID:    post.ID,
			CommentID: comment.ID,
			Text:      comment.Text,
			Author:    &observer.CommentAuthor{ID: author.ID, Username: author.Username},
		})
	}
	return views, nil
}

// DeleteComment удаляет комментарий, если запрашивающий - его автор или админ.
// Порядок остальных комментариев не меняется.
func (e *Engine) DeleteComment(ctx context.Context, postID, commentID string, requester auth.Identity) error {
	_, err := e.store.UpdatePost(ctx, postID, func(p *domain.Post) error {
		c, ok := p.FindComment(commentID)
		if !ok {
			return domain.NotFoundf("comment %s not found", commentID)
		}
		if err := auth.Authorize(auth.ActionDeleteComment, requester, c.AuthorID); err != nil {
			return err
		}
		p.RemoveComment(commentID)
		return nil
	})
	if err != nil {
		return err
	}
	metrics.CommentDeleted()

	if e.events != nil {
		e.events.Publish(observer.CommentEvent{
			Type:      observer.CommentDeleted,
			PostID:    postID,
			CommentID: commentID,
		})
	}
	return nil
}

// Comments возвращает тред поста в порядке добавления.
func (e *Engine) Comments(ctx context.Context, postID string) ([]CommentView, error) {
	post, err := e.store.GetPostByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	users, err := resolveAuthors(ctx, e.authors, post)
	if err != nil {
		return nil, err
	}
	return commentViews(users, post.Comments), nil
}
