package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/pribylovaa/page-comments/internal/http/handlers"
	"github.com/pribylovaa/page-comments/internal/http/middleware"
	"github.com/pribylovaa/page-comments/internal/metrics"
)

// Options — параметры сборки HTTP-роутера.
type Options struct {
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Timeout  time.Duration
	BasePath string // например, "/api"; если пустой — роуты регистрируются на корне.
	// CORSOrigins — разрешённые источники; пусто — CORS не подключается.
	CORSOrigins []string
	// TrustProxyHeaders — брать IP клиента из X-Forwarded-For и родственных заголовков.
	TrustProxyHeaders bool
	// AdminSecret — HS256-секрет админских токенов; пусто — админские маршруты не регистрируются.
	AdminSecret string
	AdminIssuer string
}

// NewRouter собирает http.Handler с chi и подключёнными middleware/роутами.
func NewRouter(svc handlers.Service, opts Options) http.Handler {
	root := chi.NewRouter()

	// Middleware (внешний -> внутренний).
	root.Use(
		middleware.Recover(),                        // безопасно ловим паники
		middleware.RequestID(),                      // формируем/прокидываем X-Request-Id (до логирования!)
		middleware.Logging(opts.Logger),             // кладём request-scoped логгер в контекст и логируем
		middleware.Metrics(opts.Metrics),            // счётчики по шаблону маршрута
		middleware.ClientIP(opts.TrustProxyHeaders), // IP клиента для лимитов и обогащения
	)
	if len(opts.CORSOrigins) > 0 {
		root.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
			ExposedHeaders: []string{
				"X-Request-Id", "Retry-After",
				"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset",
			},
			MaxAge: 300,
		}))
	}
	if opts.Timeout > 0 {
		root.Use(middleware.Timeout(opts.Timeout)) // общий дедлайн запроса
	}

	h := handlers.New(svc)

	if opts.BasePath != "" {
		sub := chi.NewRouter()
		registerRoutes(sub, h, opts)
		root.Mount(opts.BasePath, sub)
		return root
	}

	registerRoutes(root, h, opts)
	return root
}

// registerRoutes — единая точка регистрации всех REST-эндпойнтов.
// Ключ страницы передаётся в query: он обычно содержит '/'.
func registerRoutes(r chi.Router, h *handlers.Handlers, opts Options) {
	r.Get("/comments", h.ListComments)
	r.Post("/comments", h.CreateComment)
	r.Get("/comments/{id}", h.GetComment)
	r.Get("/comments/{id}/replies", h.ListReplies)
	r.Get("/stats", h.PageStats)

	if opts.AdminSecret == "" {
		return
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.AdminJWT(opts.AdminSecret, opts.AdminIssuer))
		r.Put("/comments/{id}", h.UpdateComment)
		r.Delete("/comments/{id}", h.DeleteComment)
	})
}
