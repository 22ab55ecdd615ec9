package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"archie-core-session-layer/internal/application"
	apiinfra "archie-core-session-layer/internal/infrastructure/api"
	"archie-core-session-layer/internal/infrastructure/cache"
	sessionmiddleware "archie-core-session-layer/internal/infrastructure/middleware"
	"archie-core-session-layer/internal/infrastructure/repository"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	// Initialize logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if err := godotenv.Load(); err != nil {
		logger.Warn().Msg("⚠️  Warning: .env file not found")
	}

	// Get configuration from environment
	mongoURI := os.Getenv("MONGODB_URI")
	if mongoURI == "" {
		mongoURI = "mongodb://localhost:27017"
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379"
	}

	appURL := os.Getenv("APP_URL")
	if appURL == "" {
		appURL = "http://localhost:8080"
	}

	reauthURL := os.Getenv("REAUTH_URL")
	if reauthURL == "" {
		reauthURL = appURL + "/auth/login"
	}

	cacheTTL := envDuration(logger, "CACHE_TTL", 5*time.Minute)
	cacheTimeout := envDuration(logger, "CACHE_TIMEOUT", 250*time.Millisecond)
	storeTimeout := envDuration(logger, "STORE_TIMEOUT", 2*time.Second)
	inactivityWindow := envDuration(logger, "SESSION_INACTIVITY_WINDOW", 72*time.Hour)
	retentionWindow := envDuration(logger, "SESSION_RETENTION_WINDOW", 30*24*time.Hour)
	inactivityInterval := envDuration(logger, "INACTIVITY_SWEEP_INTERVAL", 15*time.Minute)
	retentionInterval := envDuration(logger, "RETENTION_SWEEP_INTERVAL", time.Hour)
	cookieMaxAge := envDuration(logger, "COOKIE_MAX_AGE", 30*24*time.Hour)
	maxSessions := envInt(logger, "MAX_SESSIONS_PER_SHOP", application.DefaultMaxSessions)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to MongoDB
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to MongoDB")
	}
	defer mongoClient.Disconnect(context.Background())

	db := mongoClient.Database(os.Getenv("MONGODB_DATABASE"))

	// Connect to Redis
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid REDIS_URL")
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	// Initialize repositories and cache
	sessionRepo := repository.NewMongoSessionRepository(db)
	shopRepo := repository.NewMongoShopRepository(db)
	tokenCache := cache.NewRedisTokenCache(redisClient, cacheTTL, cacheTimeout, logger)

	if err := sessionRepo.EnsureIndexes(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to create session indexes")
	}

	// Initialize application services
	idPolicy := application.NewSessionIdentifierPolicy()
	resolver := application.NewResolverService(sessionRepo, tokenCache, logger, cacheTimeout, storeTimeout)
	lifecycle := application.NewLifecycleService(sessionRepo, shopRepo, tokenCache, idPolicy, logger)
	limits := application.NewLimitService(sessionRepo, tokenCache, logger, maxSessions)
	recovery := application.NewRecoveryService(sessionRepo, lifecycle, resolver, logger, reauthURL)

	cleanup := application.NewCleanupScheduler(
		sessionRepo,
		tokenCache,
		logger,
		inactivityWindow,
		retentionWindow,
		inactivityInterval,
		retentionInterval,
	)
	cleanup.Start(ctx)

	// Cookie policy scoped to the apex domain of APP_URL
	cookies := sessionmiddleware.NewCookiePolicy(appURL, cookieMaxAge)

	handlers := apiinfra.NewSessionHandlers(lifecycle, limits, cleanup, tokenCache, cookies, logger)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))
	r.Use(sessionmiddleware.SessionContextMiddleware(cookies))

	// Public routes
	// Health check - must be public for monitoring
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	// Swagger documentation - public
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	r.Get("/swagger/doc.json", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		http.ServeFile(w, req, "./docs/swagger.json")
	})

	// OAuth completion intake (the OAuth collaborator calls this after a
	// successful token exchange)
	r.Post("/auth/session", handlers.HandleCreateSession)

	// Session management endpoints, behind token resolution
	r.Route("/api/v1/sessions", func(r chi.Router) {
		r.Use(sessionmiddleware.RequireSession(resolver, recovery, cookies, logger))
		r.Get("/", handlers.HandleListSessions)
		r.Get("/current", handlers.HandleCurrentSession)
		r.Get("/limit", handlers.HandleLimitCheck)
		r.Get("/health", handlers.HandleHealthSummary)
		r.Delete("/others", handlers.HandleTerminateOthers)
		r.Delete("/{sessionID}", handlers.HandleTerminateSession)
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{Addr: ":" + port, Handler: r}

	go func() {
		<-ctx.Done()
		logger.Info().Msg("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
		resolver.Drain()
	}()

	logger.Info().Str("port", port).Msg("Starting session API server")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("Failed to start server")
	}
}

func envDuration(logger zerolog.Logger, key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		logger.Warn().Str("key", key).Str("value", raw).Msg("Invalid duration, using default")
		return fallback
	}
	return d
}

func envInt(logger zerolog.Logger, key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		logger.Warn().Str("key", key).Str("value", raw).Msg("Invalid integer, using default")
		return fallback
	}
	return n
}
