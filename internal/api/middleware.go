package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/UkralStul/content-service/internal/auth"
	"github.com/UkralStul/content-service/internal/dataloader"
	"github.com/UkralStul/content-service/internal/domain"
)

type ctxKey int

const (
	identityKey ctxKey = iota
	authErrorKey
)

// identify разбирает заголовок Authorization. Запрос без заголовка анонимен;
// ошибка проверки токена запоминается и отдаётся только на защищённых маршрутах.
// Владелец токена ищется в хранилище: удалённый пользователь не аутентифицирован,
// а роль берётся из хранилища, а не из токена.
func (s *Server) identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		token, ok := bearerToken(header)
		if !ok {
			ctx = context.WithValue(ctx, authErrorKey, domain.ErrInvalidToken)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}
		id, err := s.Tokens.Verify(token)
		if err == nil {
			id, err = s.currentIdentity(ctx, id)
		}
		switch {
		case err == nil:
			ctx = context.WithValue(ctx, identityKey, id)
		case domain.KindOf(err) == domain.KindAuthentication:
			ctx = context.WithValue(ctx, authErrorKey, err)
		default:
			s.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// currentIdentity сверяет личность из токена с хранилищем через лоадер запроса.
func (s *Server) currentIdentity(ctx context.Context, id auth.Identity) (auth.Identity, error) {
	found, err := dataloader.AuthorResolver{Store: s.UserStore}.Users(ctx, []string{id.UserID})
	if err != nil {
		return auth.Identity{}, err
	}
	user, ok := found[id.UserID]
	if !ok {
		return auth.Identity{}, domain.ErrUnauthenticated
	}
	return auth.Identity{UserID: user.ID, Role: user.Role}, nil
}

// requireAuth пропускает только запросы с действительным токеном.
func requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := identityFrom(r.Context()); ok {
			next.ServeHTTP(w, r)
			return
		}
		err, _ := r.Context().Value(authErrorKey).(error)
		if err == nil {
			err = domain.ErrUnauthenticated
		}
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: errorPayload{
			Kind:    domain.KindAuthentication,
			Message: domain.MessageOf(err),
		}})
	})
}

func identityFrom(ctx context.Context) (auth.Identity, bool) {
	id, ok := ctx.Value(identityKey).(auth.Identity)
	return id, ok
}

// optionalIdentity возвращает nil для анонимного запроса.
func optionalIdentity(ctx context.Context) *auth.Identity {
	if id, ok := identityFrom(ctx); ok {
		return &id
	}
	return nil
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
