package router

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"residentportal/internal/domain"
	"residentportal/internal/http/handler"
	"residentportal/internal/http/middleware"
	"residentportal/internal/http/response"
	"residentportal/internal/security"
)

type Dependencies struct {
	AuthHandler      *handler.AuthHandler
	UserHandler      *handler.UserHandler
	AdminHandler     *handler.AdminHandler
	TokenCodec       *security.TokenCodec
	Logger           *slog.Logger
	CORSOrigins      []string
	AuthRateLimitRPM int
	EnableOTelHTTP   bool
}

func New(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	if dep.Logger != nil {
		r.Use(middleware.RequestLogger(dep.Logger))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   dep.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	authLimiter := middleware.NewRateLimiter(dep.AuthRateLimitRPM, time.Minute).Middleware()
	authenticated := middleware.AuthMiddleware(dep.TokenCodec)
	adminOnly := middleware.RequireAuthority("ROLE_" + domain.RoleAdmin)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(authLimiter).Post("/login", dep.AuthHandler.Login)
			r.With(authLimiter).Post("/register", dep.AuthHandler.Register)
			r.With(authLimiter).Post("/refresh", dep.AuthHandler.Refresh)
			r.With(authLimiter).Post("/zalo", dep.AuthHandler.ZaloLogin)
			r.Post("/logout", dep.AuthHandler.Logout)
			r.With(authenticated).Post("/logout-all", dep.AuthHandler.LogoutAll)
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(authenticated)
			r.Get("/me", dep.UserHandler.Me)
			r.Get("/me/services", dep.UserHandler.ListRegistrations)
			r.Post("/me/services/{serviceID}", dep.UserHandler.RegisterService)
			r.Delete("/me/services/{serviceID}", dep.UserHandler.UnregisterService)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(authenticated)
			r.Use(adminOnly)
			r.Get("/users/pending", dep.AdminHandler.PendingUsers)
			r.Post("/users/{id}/approve", dep.AdminHandler.ApproveUser)
			r.Post("/users/{id}/reject", dep.AdminHandler.RejectUser)
		})
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}
