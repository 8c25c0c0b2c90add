package users

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/UkralStul/content-service/internal/auth"
	"github.com/UkralStul/content-service/internal/domain"
	"github.com/UkralStul/content-service/internal/storage"
)

const (
	minUsernameLength = 3
	minPasswordLength = 5
	// bcrypt не принимает пароли длиннее 72 байт
	maxPasswordBytes = 72
)

// Tokens выпускает токены сессии.
type Tokens interface {
	Issue(userID string, role domain.Role) (string, error)
}

// RegisterInput - данные публичной регистрации. Роль всегда domain.RoleUser:
// повысить её может только админ через Update.
type RegisterInput struct {
	Username string
	Password string
}

// Patch - разрешённые к изменению поля пользователя. nil - поле не меняется.
type Patch struct {
	Username *string
	Password *string
	Role     *domain.Role
}

// forRequester убирает поля, которые запрашивающему менять нельзя.
// Роль у не-админа отбрасывается молча.
func (p Patch) forRequester(requester auth.Identity) Patch {
	if p.Role != nil && !auth.Allowed(auth.ActionChangeRole, requester, "") {
		p.Role = nil
	}
	return p
}

func (p Patch) validate() error {
	if p.Username != nil {
		if err := validateUsername(strings.TrimSpace(*p.Username)); err != nil {
			return err
		}
	}
	if p.Password != nil {
		if err := validatePassword(*p.Password); err != nil {
			return err
		}
	}
	if p.Role != nil && !p.Role.Valid() {
		return domain.Validationf("invalid role %q", *p.Role)
	}
	return nil
}

// Session - результат входа: токен и пользователь.
type Session struct {
	Token string       `json:"token"`
	User  *domain.User `json:"user"`
}

// Service - регистрация, вход и администрирование пользователей.
type Service struct {
	store  storage.UserStore
	hasher auth.PasswordHasher
	tokens Tokens
	log    *slog.Logger
}

// NewService создаёт сервис пользователей.
func NewService(store storage.UserStore, hasher auth.PasswordHasher, tokens Tokens, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, hasher: hasher, tokens: tokens, log: log}
}

// Register создаёт пользователя и сразу выдаёт токен.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	user, err := s.create(ctx, in.Username, in.Password, domain.RoleUser)
	if err != nil {
		return nil, err
	}
	s.log.Info("user registered", "user_id", user.ID, "role", user.Role)
	return s.session(user)
}

// EnsureAdmin создаёт администратора при старте сервиса. Существующий админ
// с таким именем возвращается как есть, пароль не меняется. Обычный пользователь
// с этим именем не повышается.
func (s *Service) EnsureAdmin(ctx context.Context, username, password string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	existing, err := s.store.GetUserByUsername(ctx, username)
	switch {
	case err == nil:
		if existing.Role != domain.RoleAdmin {
			return nil, domain.Conflictf("username %q is taken by a non-admin user", username)
		}
		return existing, nil
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}

	user, err := s.create(ctx, username, password, domain.RoleAdmin)
	if err != nil {
		return nil, err
	}
	s.log.Info("bootstrap admin created", "user_id", user.ID)
	return user, nil
}

func (s *Service) create(ctx context.Context, username, password string, role domain.Role) (*domain.User, error) {
	username = strings.TrimSpace(username)
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, domain.Internal("failed to register user", err)
	}
	return s.store.CreateUser(ctx, &domain.User{
		Username:     username,
		PasswordHash: hash,
		Role:         role,
	})
}

// Login проверяет пароль и выдаёт токен. Неизвестный пользователь и
// неверный пароль неразличимы.
func (s *Service) Login(ctx context.Context, username, password string) (*Session, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, domain.Validationf("username and password are required")
	}
	if len(password) > maxPasswordBytes {
		return nil, domain.ErrInvalidCredentials
	}
	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}
	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, domain.Internal("failed to verify credentials", err)
	}
	return s.session(user)
}

// Me возвращает пользователя по токену. Удалённый пользователь больше не аутентифицирован.
func (s *Service) Me(ctx context.Context, requester auth.Identity) (*domain.User, error) {
	user, err := s.store.GetUserByID(ctx, requester.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrUnauthenticated
		}
		return nil, err
	}
	return user, nil
}

// List возвращает всех пользователей (только для админа).
func (s *Service) List(ctx context.Context, requester auth.Identity) ([]*domain.User, error) {
	if err := auth.Authorize(auth.ActionListUsers, requester, ""); err != nil {
		return nil, err
	}
	return s.store.ListUsers(ctx)
}

// Get возвращает пользователя админу или ему самому.
func (s *Service) Get(ctx context.Context, id string, requester auth.Identity) (*domain.User, error) {
	if err := auth.Authorize(auth.ActionReadUser, requester, id); err != nil {
		return nil, err
	}
	return s.store.GetUserByID(ctx, id)
}

// Update применяет patch от имени админа или самого пользователя.
func (s *Service) Update(ctx context.Context, id string, requester auth.Identity, patch Patch) (*domain.User, error) {
	if err := auth.Authorize(auth.ActionUpdateUser, requester, id); err != nil {
		return nil, err
	}
	patch = patch.forRequester(requester)
	if err := patch.validate(); err != nil {
		return nil, err
	}

	var hash string
	if patch.Password != nil {
		var err error
		if hash, err = s.hasher.Hash(*patch.Password); err != nil {
			return nil, domain.Internal("failed to update user", err)
		}
	}

	return s.store.UpdateUser(ctx, id, func(u *domain.User) error {
		if patch.Username != nil {
			u.Username = strings.TrimSpace(*patch.Username)
		}
		if hash != "" {
			u.PasswordHash = hash
		}
		if patch.Role != nil {
			u.Role = *patch.Role
		}
		return nil
	})
}

// Delete удаляет пользователя (только админ). Его комментарии и лайки остаются.
func (s *Service) Delete(ctx context.Context, id string, requester auth.Identity) error {
	if err := auth.Authorize(auth.ActionDeleteUser, requester, id); err != nil {
		return err
	}
	if err := s.store.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.log.Info("user deleted", "user_id", id, "by", requester.UserID)
	return nil
}

func (s *Service) session(user *domain.User) (*Session, error) {
	token, err := s.tokens.Issue(user.ID, user.Role)
	if err != nil {
		return nil, domain.Internal("failed to issue token", err)
	}
	return &Session{Token: token, User: user}, nil
}

// validateUsername ожидает уже обрезанное имя.
func validateUsername(username string) error {
	if len(username) < minUsernameLength {
		return domain.Validationf("username must be at least %d characters", minUsernameLength)
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return domain.Validationf("password must be at least %d characters", minPasswordLength)
	}
	if len(password) > maxPasswordBytes {
		return domain.Validationf("password must be at most %d bytes", maxPasswordBytes)
	}
	return nil
}
