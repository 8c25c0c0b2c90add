package auth

import "github.com/UkralStul/content-service/internal/domain"

// Action - действие, для которого принимается решение о доступе.
type Action string

const (
	ActionReadOwnPosts    Action = "posts:read-own"
	ActionReadPublicPosts Action = "posts:read-public"
	ActionUpdatePost      Action = "posts:update"
	ActionDeletePost      Action = "posts:delete"
	ActionReadUser        Action = "users:read"
	ActionUpdateUser      Action = "users:update"
	ActionDeleteUser      Action = "users:delete"
	ActionChangeRole      Action = "users:change-role"
	ActionDeleteComment   Action = "comments:delete"
	ActionListUsers       Action = "users:list"
)

// Allowed - таблица решений. ownerID - владелец ресурса, если он есть.
// Других проверок владения в коде нет: всё решается здесь.
func Allowed(action Action, requester Identity, ownerID string) bool {
	isOwner := requester.UserID != "" && requester.UserID == ownerID

	switch action {
	case ActionReadPublicPosts:
		return true
	case ActionReadOwnPosts:
		return isOwner
	case ActionUpdatePost, ActionDeletePost,
		ActionReadUser, ActionUpdateUser,
		ActionDeleteComment:
		return requester.IsAdmin() || isOwner
	case ActionDeleteUser, ActionChangeRole, ActionListUsers:
		return requester.IsAdmin()
	}
	return false
}

// Authorize возвращает domain.ErrForbidden, если действие запрещено.
func Authorize(action Action, requester Identity, ownerID string) error {
	if !Allowed(action, requester, ownerID) {
		return domain.ErrForbidden
	}
	return nil
}
