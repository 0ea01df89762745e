package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/jupiterclapton/postfeed/config"
	"github.com/jupiterclapton/postfeed/internal/adapters/primary/graphql"
	"github.com/jupiterclapton/postfeed/internal/adapters/primary/realtime"
	"github.com/jupiterclapton/postfeed/internal/adapters/primary/rest"
	"github.com/jupiterclapton/postfeed/internal/adapters/secondary/eventbroker"
	"github.com/jupiterclapton/postfeed/internal/adapters/secondary/ratelimit"
	"github.com/jupiterclapton/postfeed/internal/adapters/secondary/repository"
	"github.com/jupiterclapton/postfeed/internal/adapters/secondary/security"
	"github.com/jupiterclapton/postfeed/internal/adapters/secondary/storage"
	"github.com/jupiterclapton/postfeed/internal/core/ports"
	"github.com/jupiterclapton/postfeed/internal/core/services"
	"github.com/jupiterclapton/postfeed/internal/platform/telemetry"
)

const (
	serviceName     = "postfeed"
	shutdownTimeout = 10 * time.Second
)

func main() {
	// 1. Configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	// 2. Logger
	logger := telemetry.InitLogger(os.Stdout, cfg.Env)
	logger.Info("🚀 Starting Postfeed", "config", cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Télémétrie (Tracing)
	// Sans endpoint OTLP, seuls les propagateurs W3C sont installés
	tp, err := telemetry.InitTracer(ctx, cfg.OtelEndpoint, serviceName, cfg.Env)
	if err != nil {
		logger.Error("Failed to init tracer", "error", err)
	}

	// 4. Infrastructure: base de données (Driven Adapter)
	// Le schéma de l'URL choisit le backend : postgres:// -> pgx + migrations, mongodb:// -> mongo
	store, err := repository.Open(ctx, cfg.DBURL, cfg.DBName)
	if err != nil {
		logger.Error("Unable to open database", "error", err)
		os.Exit(1)
	}
	logger.Info("✅ Connected to database", "backend", store.Backend)

	// 5. Sécurité: bcrypt pour les mots de passe, JWT HS256 pour les sessions
	hasher := security.NewBcryptHasher(security.DefaultCost)
	tokens, err := security.NewJWTProvider(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		logger.Error("Invalid token configuration", "error", err)
		os.Exit(1)
	}

	// 6. Event Broker (Driven Adapter)
	// Le hub local alimente les websockets ; avec NATS_URL, les événements passent par NATS
	// pour que chaque instance reçoive ceux des autres
	hub := eventbroker.NewHub(eventbroker.DefaultBuffer, logger)
	var publisher ports.EventPublisher = hub
	var relay *eventbroker.NatsRelay
	if cfg.NatsURL != "" {
		nc, err := nats.Connect(cfg.NatsURL, nats.Name(serviceName))
		if err != nil {
			logger.Error("Unable to connect to NATS", "error", err)
			os.Exit(1)
		}
		relay = eventbroker.NewNatsRelay(nc, hub, logger)
		if err := relay.Start(); err != nil {
			logger.Error("Failed to subscribe to NATS", "error", err)
			os.Exit(1)
		}
		publisher = relay
		logger.Info("✅ Connected to NATS", "subject", eventbroker.PostsSubject)
	}

	// 7. Rate limiting sur /signup et /login (token bucket Redis)
	// Sans REDIS_ADDR, pas de limite
	var authLimiter rest.Limiter
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		// Instrumentation Redis
		if err := redisotel.InstrumentTracing(rdb); err != nil {
			logger.Error("Failed to instrument Redis", "error", err)
			os.Exit(1)
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Error("Unable to connect to Redis", "error", err)
			os.Exit(1)
		}
		authLimiter = ratelimit.NewLimiter(rdb, "auth", cfg.AuthRPS, cfg.AuthBurst)
		logger.Info("✅ Connected to Redis")
	}

	// 8. Stockage des images sur disque, servi sous /images
	images, err := storage.NewDiskStore(cfg.UploadDir, logger)
	if err != nil {
		logger.Error("Unable to prepare upload directory", "error", err)
		os.Exit(1)
	}

	// 9. Initialisation du Core
	identityService := services.NewIdentityService(store.Users, hasher, tokens)
	postService := services.NewPostService(store.Posts, store.Users, images, publisher, logger)

	// 10. Driving Adapters: REST (echo), GraphQL et websocket sur le même routeur
	e := rest.NewServer(rest.Deps{
		Identity:    identityService,
		Posts:       postService,
		Images:      images,
		ImagesDir:   images.Dir(),
		AuthLimiter: authLimiter,
		Ready:       store.Ping,
		Logger:      logger,
	})

	gql, err := graphql.NewHandler(&graphql.Resolver{
		Identity: identityService,
		Feed:     postService,
		Logger:   logger,
	})
	if err != nil {
		logger.Error("Invalid GraphQL schema", "error", err)
		os.Exit(1)
	}
	e.POST("/graphql", echo.WrapHandler(gql))
	e.GET("/socket", echo.WrapHandler(realtime.NewHandler(hub, logger)))

	// 11. Chaîne de Middlewares HTTP
	var h http.Handler = e

	// A. CORS
	c := cors.New(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{
			http.MethodOptions, http.MethodGet, http.MethodPost,
			http.MethodPut, http.MethodPatch, http.MethodDelete,
		},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	h = c.Handler(h)

	// B. OTEL HTTP (Racine)
	h = otelhttp.NewHandler(h, serviceName, otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
		return fmt.Sprintf("HTTP %s %s", r.Method, r.URL.Path)
	}))

	// 12. Démarrage Graceful
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("📡 Postfeed listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("🛑 Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	// On laisse finir les publications et suppressions d'images en cours avant de couper les backends
	postService.Wait()
	images.Wait()

	// Fermeture dans l'ordre inverse de l'ouverture
	hub.Close()
	if relay != nil {
		if err := relay.Close(); err != nil {
			logger.Error("NATS drain failed", "error", err)
		}
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	if err := store.Close(shutdownCtx); err != nil {
		logger.Error("Database close failed", "error", err)
	}
	if tp != nil {
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Error("Tracer shutdown failed", "error", err)
		}
	}

	logger.Info("👋 Server exited")
}
