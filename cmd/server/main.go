package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/anirudh-why/codeHub/internal/api"
	"github.com/anirudh-why/codeHub/internal/config"
	"github.com/anirudh-why/codeHub/internal/events"
	"github.com/anirudh-why/codeHub/internal/metrics"
	"github.com/anirudh-why/codeHub/internal/roles"
	"github.com/anirudh-why/codeHub/internal/routers"
	"github.com/anirudh-why/codeHub/internal/session"
	"github.com/anirudh-why/codeHub/internal/store"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	cancel()
	if err != nil {
		logger.Fatal("connect mongodb", zap.Error(err))
	}
	defer mongoClient.Disconnect(context.Background())

	st := store.NewMongo(mongoClient.Database(cfg.MongoDB))
	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	if err := st.EnsureIndexes(ctx); err != nil {
		logger.Warn("ensure indexes", zap.Error(err))
	}
	cancel()

	registry := session.NewRegistry()
	hub := session.NewHub()

	var bridge *events.Bridge
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		bridge = events.NewBridge(rdb, registry, hub, logger)
		go bridge.Run(context.Background())
	}

	var pub roles.Publisher
	if bridge != nil {
		pub = bridge
	}
	resolver := roles.NewResolver(st, registry, pub, logger)
	handlers := api.NewHandlers(logger, st, registry, hub, resolver, bridge)

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
		middleware.Timeout(60*time.Second),
	)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.CORSOrigin},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-Email"},
		AllowCredentials: false,
	}))
	r.Use(metrics.Middleware)

	r.Mount("/", routers.New(handlers))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) })
	r.Handle("/metrics", metrics.Handler())

	addr := ":" + cfg.Port
	logger.Info("codehub listening", zap.String("addr", addr))
	logger.Fatal("server stopped", zap.Error(http.ListenAndServe(addr, r)))
}
