package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vidtube/internal/auth"
	"vidtube/internal/config"
	"vidtube/internal/http_server/handlers/channel"
	"vidtube/internal/http_server/handlers/login"
	"vidtube/internal/http_server/handlers/logout"
	"vidtube/internal/http_server/handlers/profile"
	"vidtube/internal/http_server/handlers/refresh"
	"vidtube/internal/http_server/handlers/register"
	"vidtube/internal/http_server/middleware/authn"
	"vidtube/internal/lib/api/cookies"
	"vidtube/internal/lib/jwt"
	"vidtube/internal/media"
	rateLimit "vidtube/internal/middleware/ratelimit"
	"vidtube/internal/rabbitmq"
	"vidtube/internal/storage/postgres"
	"vidtube/internal/storage/redis"
	"vidtube/internal/user"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-playground/validator/v10"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	cfg := config.MustLoad("./config/config.yaml")

	log := setupLogger(cfg.Env)

	log.Info("starting vidtube backend", slog.String("env", cfg.Env))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Info("shutdown signal received")
		cancel()
	}()

	storage, err := postgres.New(ctx, cfg)
	if err != nil {
		log.Error("failed to connect postgres", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer storage.Close()

	denylist, err := redis.New(ctx, cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Error("failed to connect redis", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer denylist.Close()

	msgBroker, err := rabbitmq.New(cfg.RabbitMQ.URL, cfg.RabbitMQ.QueueName)
	if err != nil {
		log.Error("failed to connect rabbitmq", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer msgBroker.Close()

	uploader, err := media.NewS3Store(ctx, cfg.Media)
	if err != nil {
		log.Error("failed to create media store", slog.String("err", err.Error()))
		os.Exit(1)
	}

	tokens := jwt.NewManager(jwt.Config{
		AccessSecret:  cfg.Tokens.AccessTokenSecret,
		RefreshSecret: cfg.Tokens.RefreshTokenSecret,
		AccessTTL:     cfg.Tokens.AccessTokenTTL,
		RefreshTTL:    cfg.Tokens.RefreshTokenTTL,
	})

	authService := auth.New(log, storage, storage, storage, denylist, tokens)
	userService := user.New(log, storage, storage, uploader)

	router := setupRouter(log, cfg, tokens, denylist, authService, userService, uploader, msgBroker)

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server is running", slog.String("address", cfg.HTTPServer.Address))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", slog.String("err", err.Error()))
			cancel()
		}
	}()

	<-ctx.Done()

	log.Info("shutting down HTTP server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", slog.String("err", err.Error()))
	} else {
		log.Info("server stopped gracefully")
	}
}

func setupRouter(
	log *slog.Logger,
	cfg *config.Config,
	tokens *jwt.Manager,
	denylist *redis.RedisRepo,
	authService *auth.Auth,
	userService *user.Service,
	uploader media.Uploader,
	msgBroker *rabbitmq.RabbitMQClient,
) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	validate := validator.New()

	cookieOpts := cookies.Options{
		Secure: cfg.Cookies.Secure,
		Domain: cfg.Cookies.Domain,
	}

	requireAuth := authn.New(log, tokens, denylist)

	r.With(rateLimit.Register()).Post("/register",
		register.New(log, validate, authService, uploader, msgBroker),
	)
	r.With(rateLimit.Login()).Post("/login",
		login.New(log, validate, authService, cookieOpts, cfg.Tokens.AccessTokenTTL, cfg.Tokens.RefreshTokenTTL),
	)
	r.With(rateLimit.Refresh()).Post("/refresh",
		refresh.New(log, authService, cookieOpts, cfg.Tokens.AccessTokenTTL, cfg.Tokens.RefreshTokenTTL),
	)

	r.Group(func(r chi.Router) {
		r.Use(requireAuth)

		r.With(rateLimit.Logout()).Post("/logout", logout.New(log, authService, cookieOpts))

		r.Route("/users", func(r chi.Router) {
			r.Get("/me", profile.Me(log, userService))
			r.Post("/change-password", profile.ChangePassword(log, validate, userService))
			r.Patch("/account", profile.UpdateAccount(log, validate, userService))
			r.Patch("/avatar", profile.UpdateAvatar(log, userService))
			r.Patch("/cover-image", profile.UpdateCoverImage(log, userService))
		})

		r.Route("/channels/{username}", func(r chi.Router) {
			r.Get("/", channel.Profile(log, userService))
			r.Post("/subscribe", channel.Subscribe(log, userService))
			r.Delete("/subscribe", channel.Unsubscribe(log, userService))
		})
	})

	return r
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}
