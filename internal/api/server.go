package api

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/UkralStul/content-service/internal/auth"
	"github.com/UkralStul/content-service/internal/dataloader"
	"github.com/UkralStul/content-service/internal/metrics"
	"github.com/UkralStul/content-service/internal/observer"
	"github.com/UkralStul/content-service/internal/posts"
	"github.com/UkralStul/content-service/internal/storage"
	"github.com/UkralStul/content-service/internal/users"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultMaxUploadBytes = 10 << 20
	defaultPingInterval   = 10 * time.Second
)

// TokenVerifier проверяет bearer-токены.
type TokenVerifier interface {
	Verify(token string) (auth.Identity, error)
}

// MediaStore сохраняет загруженные файлы и раздаёт их.
type MediaStore interface {
	Save(r io.Reader, originalName string) (string, error)
	Release(name string) error
	Handler() http.Handler
}

// Deps - зависимости HTTP-слоя.
type Deps struct {
	Tokens    TokenVerifier
	Users     *users.Service
	Posts     *posts.Repository
	Engine    *posts.Engine
	UserStore storage.UserStore
	Media     MediaStore
	Observer  *observer.CommentObserver
	Log       *slog.Logger

	RequestTimeout time.Duration
	MaxUploadBytes int64
	PingInterval   time.Duration
}

// Server - HTTP-шлюз: разбирает запросы, определяет личность и вызывает сервисы.
type Server struct {
	Deps
}

// NewServer создаёт шлюз, подставляя значения по умолчанию.
func NewServer(deps Deps) *Server {
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	if deps.RequestTimeout <= 0 {
		deps.RequestTimeout = defaultRequestTimeout
	}
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = defaultMaxUploadBytes
	}
	if deps.PingInterval <= 0 {
		deps.PingInterval = defaultPingInterval
	}
	if deps.Observer == nil {
		deps.Observer = observer.NewCommentObserver()
	}
	return &Server{Deps: deps}
}

// Routes собирает роутер.
func (s *Server) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(metrics.Middleware)

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.Handle("/metrics", metrics.Handler())
	if s.Media != nil {
		router.Handle("/uploads/*", s.Media.Handler())
	}

	router.Group(func(r chi.Router) {
		r.Use(dataloader.Middleware(s.UserStore))
		r.Use(s.identify)

		r.Route("/auth", func(r chi.Router) {
			r.Use(middleware.Timeout(s.RequestTimeout))
			r.Post("/register", s.register)
			r.Post("/login", s.login)
			r.With(requireAuth).Get("/me", s.me)
		})

		r.Route("/posts", func(r chi.Router) {
			// Долгоживущее соединение, таймаут запроса к нему не применяется
			r.Get("/{id}/comments/stream", s.streamComments)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Timeout(s.RequestTimeout))
				r.Get("/", s.listPosts)
				r.Get("/{id}", s.getPost)
				r.Get("/{id}/comments", s.listComments)

				r.Group(func(r chi.Router) {
					r.Use(requireAuth)
					r.Post("/", s.createPost)
					r.Put("/{id}", s.updatePost)
					r.Delete("/{id}", s.deletePost)
					r.Post("/{id}/like", s.toggleLike)
					r.Post("/{id}/comments", s.addComment)
					r.Delete("/{id}/comments/{commentId}", s.deleteComment)
				})
			})
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(middleware.Timeout(s.RequestTimeout))
			r.Use(requireAuth)
			r.Get("/", s.listUsers)
			r.Get("/{id}", s.getUser)
			r.Put("/{id}", s.updateUser)
			r.Delete("/{id}", s.deleteUser)
		})
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: errorPayload{Kind: "not_found", Message: "endpoint not found"}})
	})
	return router
}
