package api

import (
	"context"
	"net/http"
	"time"

	"github.com/arangkita/arang-chat/internal/api/handler"
	customMiddleware "github.com/arangkita/arang-chat/internal/api/middleware"
	"github.com/arangkita/arang-chat/internal/chat"
	"github.com/arangkita/arang-chat/internal/config"
	"github.com/arangkita/arang-chat/internal/notify"
	"github.com/arangkita/arang-chat/internal/repository/mongo"
	"github.com/arangkita/arang-chat/internal/repository/redis"
	"github.com/arangkita/arang-chat/internal/security"
	"github.com/arangkita/arang-chat/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"
)

// restTimeout bounds REST handlers. Websocket routes are exempt: their
// connections outlive any sane request timeout.
const restTimeout = 30 * time.Second

// NewRouter creates and configures the HTTP router
func NewRouter(cfg *config.Config, db *mongo.DB, redisClient *redis.Client) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(customMiddleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Security components
	jwtManager := security.NewJWTManager(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenTTL,
		cfg.Auth.RefreshTokenTTL,
	)
	guard := security.NewContentGuard(cfg.Security.MaxMessageLength)

	// Persistence gateway: Mongo storage with the Redis change feed
	feed := redis.NewFeed(redisClient)
	gw := mongo.NewGateway(db, feed)

	rateLimiter := redis.NewRateLimiter(
		redisClient,
		cfg.Security.RateLimit.RequestsPerMinute,
		cfg.Security.RateLimit.Burst,
	)

	// Notification channels
	tokenStore := notify.NewTokenStore(gw)
	var channels notify.FanOut
	if cfg.Notify.WhatsApp.BaseURL != "" {
		log.Info().Msg("Registering WhatsApp notifier")
		channels = append(channels, notify.NewWhatsAppClient(
			cfg.Notify.WhatsApp.BaseURL,
			cfg.Notify.WhatsApp.APIKey,
			cfg.Notify.WhatsApp.AdminPhones,
		))
	}
	if cfg.Notify.FCM.CredentialsFile != "" {
		fcm, err := notify.NewFCMNotifier(context.Background(), cfg.Notify.FCM.CredentialsFile, tokenStore)
		if err != nil {
			log.Warn().Err(err).Msg("FCM notifier disabled")
		} else {
			log.Info().Msg("Registering FCM notifier")
			channels = append(channels, fcm)
		}
	}
	var notifier notify.Notifier = channels
	if len(channels) == 0 {
		log.Warn().Msg("No notification channel configured")
		notifier = notify.Nop{}
	}

	// Services and handlers
	resolver := chat.NewSessionResolver(gw)
	authService := service.NewAuthService(gw, jwtManager)

	authHandler := handler.NewAuthHandler(authService)
	chatHandler := handler.NewChatHandler(gw, resolver, notifier, guard)
	inboxHandler := handler.NewInboxHandler(gw)
	notificationHandler := handler.NewNotificationHandler(tokenStore)
	wsHandler := handler.NewWSHandler(gw, resolver, notifier, guard, cfg.Chat.EchoTolerance)

	authMiddleware := customMiddleware.NewAuthMiddleware(jwtManager)
	rateLimitMiddleware := customMiddleware.NewRateLimitMiddleware(rateLimiter)

	r.Route("/api/v1", func(r chi.Router) {
		// Health check
		r.Get("/health", handler.HealthCheck)
		r.Get("/ready", handler.ReadyCheck(db, redisClient))

		// Auth routes (public)
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.Refresh)
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)
			r.Use(rateLimitMiddleware.Limit)

			r.Get("/auth/me", authHandler.Me)
			r.Post("/notifications/token", notificationHandler.RegisterToken)

			// Customer chat
			r.Route("/chat", func(r chi.Router) {
				r.Get("/ws", wsHandler.Chat)

				r.Group(func(r chi.Router) {
					r.Use(middleware.Timeout(restTimeout))
					r.Get("/session", chatHandler.Session)
					r.Get("/history", chatHandler.History)
					r.Post("/messages", chatHandler.Send)
				})
			})

			// Admin surface
			r.Route("/admin", func(r chi.Router) {
				r.Use(customMiddleware.RequireAdmin)

				r.Route("/inbox", func(r chi.Router) {
					r.Get("/ws", wsHandler.Inbox)

					r.Group(func(r chi.Router) {
						r.Use(middleware.Timeout(restTimeout))
						r.Get("/", inboxHandler.List)
						r.Post("/read", inboxHandler.MarkRead)
						r.Post("/read-all", inboxHandler.MarkAllRead)
					})
				})

				r.Route("/chat/{customerID}", func(r chi.Router) {
					r.Use(customMiddleware.CustomerContext)
					r.Get("/ws", wsHandler.Chat)

					r.Group(func(r chi.Router) {
						r.Use(middleware.Timeout(restTimeout))
						r.Get("/session", chatHandler.AdminSession)
						r.Get("/history", chatHandler.AdminHistory)
						r.Post("/messages", chatHandler.AdminSend)
					})
				})
			})
		})
	})

	return r
}
