package posts

import (
	"context"
	"time"

	"github.com/UkralStul/content-service/internal/domain"
)

// Authors находит пользователей по id. Удаленных пользователей в ответе нет.
type Authors interface {
	Users(ctx context.Context, ids []string) (map[string]*domain.User, error)
}

// AuthorView - автор в ответах API.
type AuthorView struct {
	ID       string      `json:"id"`
	Username string      `json:"username"`
	Role     domain.Role `json:"role,omitempty"`
}

// CommentView - комментарий с автором.
type CommentView struct {
	ID        string     `json:"id"`
	Text      string     `json:"text"`
	User      AuthorView `json:"user"`
	CreatedAt time.Time  `json:"createdAt"`
}

// PostView - пост с автором, тредом и счётчиком лайков.
type PostView struct {
	*domain.Post
	Author             AuthorView    `json:"author"`
	Comments           []CommentView `json:"comments"`
	LikesCount         int           `json:"likesCount"`
	LikedByCurrentUser bool          `json:"likedByCurrentUser"`
}

// LikeState - состояние лайка после переключения.
type LikeState struct {
	LikesCount         int  `json:"likesCount"`
	LikedByCurrentUser bool `json:"likedByCurrentUser"`
}

func authorOf(users map[string]*domain.User, id string) AuthorView {
	u, ok := users[id]
	if !ok {
		return AuthorView{ID: id, Username: domain.UnknownAuthor}
	}
	return AuthorView{ID: u.ID, Username: u.Username, Role: u.Role}
}

func commentViews(users map[string]*domain.User, comments []*domain.Comment) []CommentView {
	out := make([]CommentView, 0, len(comments))
	for _, c := range comments {
		author := authorOf(users, c.AuthorID)
		author.Role = ""
		out = append(out, CommentView{ID: c.ID, Text: c.Text, User: author, CreatedAt: c.CreatedAt})
	}
	return out
}

// resolveAuthors загружает авторов постов и комментариев одним батчем.
func resolveAuthors(ctx context.Context, authors Authors, posts ...*domain.Post) (map[string]*domain.User, error) {
	var ids []string
	for _, p := range posts {
		ids = append(ids, p.AuthorID)
		for _, c := range p.Comments {
			ids = append(ids, c.AuthorID)
		}
	}
	users, err := authors.Users(ctx, ids)
	if err != nil {
		return nil, domain.Internal("failed to resolve authors", err)
	}
	return users, nil
}

func postView(users map[string]*domain.User, p *domain.Post, viewerID string) *PostView {
	return &PostView{
		Post:               p,
		Author:             authorOf(users, p.AuthorID),
		Comments:           commentViews(users, p.Comments),
		LikesCount:         p.LikeCount(),
		LikedByCurrentUser: p.LikedBy(viewerID),
	}
}
