package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/Windi-Fikriyansyah/multimarket_be/internal/config"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/db"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/handlers"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/logger"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/mailer"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/metrics"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/middleware"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/realtime"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/repository"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/server"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/services/auth"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/services/consultation"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/services/deal"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/services/listing"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/services/notification"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/services/ratelimit"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/services/token"
	"github.com/Windi-Fikriyansyah/multimarket_be/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	lg, err := logger.New(logger.Config{Development: cfg.Development()})
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gdb, err := db.Connect(cfg.DBDSN, cfg.Development())
	if err != nil {
		lg.Fatalw("postgres connect failed", "error", err)
	}
	if err := db.Migrate(gdb); err != nil {
		lg.Fatalw("migration failed", "error", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		lg.Fatalw("postgres pool unavailable", "error", err)
	}
	health := map[string]handlers.Check{"postgres": sqlDB.PingContext}

	stores := repository.NewGormStores(gdb)
	metrics.Init()

	hub := realtime.NewHub(lg)
	go hub.Run(ctx)

	// Redis backs the sensitive limiter and fans realtime events out across
	// instances; without it both stay in process.
	var (
		counters ratelimit.CounterStore
		pusher   notification.Pusher = hub
	)
	if cfg.RedisAddr != "" {
		rdb, err := db.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
		if err != nil {
			lg.Fatalw("redis connect failed", "error", err)
		}
		defer rdb.Close()
		counters = ratelimit.NewRedisStore(rdb)
		relay := realtime.NewRelay(hub, rdb, lg)
		go relay.Run(ctx)
		pusher = relay
		health["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		lg.Infow("redis enabled", "addr", cfg.RedisAddr)
	} else {
		mem := ratelimit.NewMemoryStore()
		go mem.RunSweeper(ctx, time.Minute)
		counters = mem
		lg.Warn("REDIS_ADDR not set, rate limits and realtime events are per instance")
	}

	var notifStore repository.NotificationStore
	if cfg.MongoURI != "" {
		client, mdb, err := db.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			lg.Fatalw("mongo connect failed", "error", err)
		}
		defer disconnectMongo(client, lg)
		store := repository.NewMongoNotificationStore(mdb)
		if err := store.EnsureIndexes(ctx); err != nil {
			lg.Fatalw("mongo indexes failed", "error", err)
		}
		notifStore = store
		health["mongo"] = func(ctx context.Context) error { return client.Ping(ctx, nil) }
	} else {
		lg.Warn("MONGO_URI not set, notification history is disabled")
	}

	var images listing.ImageStore
	if cfg.S3.Bucket != "" {
		s3Store, err := storage.NewS3Store(ctx, storage.S3Config{
			Region:    cfg.S3.Region,
			Bucket:    cfg.S3.Bucket,
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			PublicURL: cfg.S3.PublicURL,
			PathStyle: cfg.S3.PathStyle,
		})
		if err != nil {
			lg.Fatalw("s3 init failed", "error", err)
		}
		images = s3Store
	} else {
		lg.Warn("S3_BUCKET not set, image uploads are disabled")
	}

	var mail mailer.Sender = mailer.LogMailer{Log: lg}
	if cfg.SMTP.Host != "" {
		smtp, err := mailer.NewSMTPMailer(mailer.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		}, lg)
		if err != nil {
			lg.Fatalw("smtp init failed", "error", err)
		}
		mail = smtp
	}

	tokens := token.NewService(cfg.JWTAccessSecret, cfg.JWTRefreshSecret, cfg.AccessTTL, cfg.RefreshTTL)
	publisher := notification.NewPublisher(notifStore, pusher, mail, stores.Users, lg)

	deps := server.Deps{
		Config:        cfg,
		Log:           lg,
		Auth:          auth.NewService(stores.Users, tokens, mail, lg),
		Listings:      listing.NewService(stores.Listings, stores.Favorites, images, publisher, lg),
		Deals:         deal.NewService(stores.Deals, stores.Listings, repository.NewGormTransactor(gdb), publisher, lg),
		Consultations: consultation.NewService(stores.Consultations, publisher, lg),
		Notifications: publisher,
		Hub:           hub,
		Limiter:       ratelimit.NewLimiter(counters, cfg.SensitiveMax, cfg.SensitiveWindow),
		Health:        health,
	}
	if cfg.APIRatePerMin > 0 {
		deps.Throttle = middleware.NewIPRateLimiter(cfg.APIRatePerMin, lg)
		go deps.Throttle.Cleanup(ctx.Done())
	}

	app := server.New(deps)

	go func() {
		if err := app.Listen(":" + cfg.AppPort); err != nil {
			lg.Errorw("server stopped", "error", err)
			stop()
		}
	}()
	lg.Infow("listening", "port", cfg.AppPort, "env", cfg.AppEnv)

	<-ctx.Done()
	lg.Info("shutting down")
	if err := app.ShutdownWithTimeout(cfg.ShutdownTimeout); err != nil {
		lg.Errorw("shutdown", "error", err)
	}
	publisher.Wait()
}

func disconnectMongo(client *mongo.Client, lg *zap.SugaredLogger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Disconnect(ctx); err != nil {
		lg.Warnw("mongo disconnect", "error", err)
	}
}
