package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dormmatehq/dormmate-backend/api/controllers"
	"github.com/dormmatehq/dormmate-backend/api/middleware"
	"github.com/dormmatehq/dormmate-backend/internal/auth"
	"github.com/dormmatehq/dormmate-backend/internal/identity"
	"github.com/dormmatehq/dormmate-backend/internal/match"
	"github.com/dormmatehq/dormmate-backend/internal/notifications"
	"github.com/dormmatehq/dormmate-backend/internal/teams"
	"github.com/dormmatehq/dormmate-backend/pkg/config"
	"github.com/dormmatehq/dormmate-backend/pkg/db"
	"github.com/dormmatehq/dormmate-backend/pkg/logger"
	"github.com/dormmatehq/dormmate-backend/pkg/metrics"
	"github.com/dormmatehq/dormmate-backend/pkg/redis"
	"github.com/dormmatehq/dormmate-backend/pkg/tokens"
)

// Deps carries everything the HTTP surface needs.
type Deps struct {
	Config        *config.Config
	Logger        *logger.Logger
	DB            *db.Client
	Redis         *redis.Client
	Tokens        *tokens.Service
	HTTPMetrics   *metrics.HTTPMetrics
	Auth          *auth.Service
	Identity      *identity.Service
	Match         *match.Service
	Teams         *teams.Service
	Notifications *notifications.Service
}

func NewRouter(d Deps) http.Handler {
	cfg := d.Config
	logg := d.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(d.HTTPMetrics),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	// Interface conversions go through explicit nil checks so a nil
	// client never arrives as a typed non-nil interface.
	var limiterStore middleware.RateLimiterStore
	if d.Redis != nil {
		limiterStore = d.Redis
	}

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginIDLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterIDLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, d.DB, d.Redis))
	})

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(registerPolicy, limiterStore, logg)).
			Post("/register", controllers.AuthRegister(d.Auth, logg))
		r.Post("/activate", controllers.AuthActivate(d.Auth, cfg.JWT, logg))
		r.With(middleware.AuthRateLimit(loginPolicy, limiterStore, logg)).
			Post("/login", controllers.AuthLogin(d.Auth, cfg.JWT, logg))
		r.Post("/logout", controllers.AuthLogout(cfg.JWT))
		r.With(middleware.AuthRateLimit(loginPolicy, limiterStore, logg)).
			Post("/forgot-password", controllers.AuthForgotPassword(d.Auth, logg))
		r.Post("/reset-password", controllers.AuthResetPassword(d.Auth, logg))
		r.Post("/verify-email", controllers.AuthVerifyEmail(d.Auth, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, d.Tokens, logg))

		r.Get("/ping", controllers.PrivatePing())

		r.Get("/me", controllers.Me(d.Identity, logg))
		r.Route("/me/profile", func(r chi.Router) {
			r.Get("/", controllers.GetProfile(d.Identity, logg))
			r.Patch("/", controllers.UpdateProfile(d.Identity, logg))
		})

		r.Route("/students", func(r chi.Router) {
			r.Get("/", controllers.ListStudents(d.Identity, logg))
			r.Get("/{userID}", controllers.GetStudent(d.Identity, logg))
			r.Post("/{userID}/like", controllers.LikeStudent(d.Match, logg))
		})

		r.Get("/likes/received", controllers.ListReceivedLikes(d.Match, logg))

		r.Route("/matches", func(r chi.Router) {
			r.Get("/", controllers.ListMatches(d.Match, logg))
			r.Delete("/{userID}", controllers.Unmatch(d.Match, logg))
		})

		r.Route("/teams", func(r chi.Router) {
			r.Post("/", controllers.CreateTeam(d.Teams, logg))
			r.Get("/", controllers.ListTeams(d.Teams, logg))
			r.Get("/mine", controllers.MyTeam(d.Teams, logg))
			r.Post("/leave", controllers.LeaveTeam(d.Teams, logg))
			r.Post("/requests/{requestID}/review", controllers.ReviewJoinRequest(d.Teams, logg))

			r.Route("/{teamID}", func(r chi.Router) {
				r.Get("/", controllers.GetTeam(d.Teams, logg))
				r.Patch("/", controllers.UpdateTeam(d.Teams, logg))
				r.Delete("/", controllers.DisbandTeam(d.Teams, logg))
				r.Post("/requests", controllers.RequestJoin(d.Teams, logg))
				r.Get("/requests", controllers.ListJoinRequests(d.Teams, logg))
				r.Post("/transfer", controllers.TransferLeadership(d.Teams, logg))
				r.Delete("/members/{userID}", controllers.RemoveMember(d.Teams, logg))
			})
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(d.Notifications, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(d.Notifications, logg))
			r.Post("/{notificationID}/read", controllers.MarkNotificationRead(d.Notifications, logg))
		})
	})

	return r
}
