package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"ms-delivery/internal/auth"
	"ms-delivery/internal/changefeed"
	"ms-delivery/internal/config"
	"ms-delivery/internal/database"
	"ms-delivery/internal/database/migrations"
	"ms-delivery/internal/kafka"
	"ms-delivery/internal/logger"
	"ms-delivery/internal/order"
	"ms-delivery/internal/order/db"
	"ms-delivery/internal/order/order_api"
	"ms-delivery/internal/storeinfo"
)

func main() {
	log, err := logger.NewLogger("delivery-api")
	if err != nil {
		log = logger.NewConsoleLogger()
		log.Warn("APP", fmt.Sprintf("File logging disabled: %v", err))
	}
	defer log.Close()

	log.Info("APP", "Starting Delivery API initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("APP", err.Error())
		log.Close()
		os.Exit(1)
	}
	log.Info("APP", "Delivery API shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	bunDB, err := database.ConnectPostgres(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer bunDB.Close()

	if cfg.Database.AutoMigrate {
		runner := migrations.NewRunner(bunDB, migrations.OptionsFrom(cfg.Database), log)
		if err := runner.Run(); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
	}

	hub := changefeed.NewHub()
	var publishers changefeed.Multi
	var bridge *changefeed.RedisBridge
	var cache storeinfo.Cache
	var redisClient *redis.Client

	if cfg.Redis.Enabled {
		redisClient, err = database.ConnectRedis(ctx, cfg.Redis.Addr, log)
		if err != nil {
			log.Warn("REDIS", fmt.Sprintf("Running without redis, change events stay on this instance: %v", err))
		} else {
			defer redisClient.Close()
			bridge = changefeed.NewRedisBridge(redisClient, cfg.Redis.ChangeChannel, hub, log)
			cache = storeinfo.NewRedisCache(redisClient, cfg.Redis.StoreInfoTTL)
		}
	}
	if bridge != nil {
		publishers = append(publishers, bridge)
	} else {
		publishers = append(publishers, hub)
	}

	if cfg.Kafka.Enabled {
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, []string{cfg.Kafka.ChangeTopic}, log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.ChangeTopic, log)
		defer producer.Close()
		publishers = append(publishers, producer)
		log.Info("KAFKA", fmt.Sprintf("Publishing order changes to %s", cfg.Kafka.ChangeTopic))
	}

	orderService := order.NewOrderService(db.New(bunDB), publishers, log, cfg.Order.DeliveryFee)
	infoService := storeinfo.NewService(storeinfo.NewStore(bunDB), cache, publishers, log)

	verifier, err := auth.NewVerifier(ctx, cfg.Auth, log)
	if err != nil {
		return err
	}
	if redisClient != nil {
		verifier = auth.NewCachedVerifier(verifier, redisClient, log)
	}

	handler := order_api.NewHandler(orderService, infoService, log)
	sse := order_api.NewSSEHandler(log, hub)
	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      order_api.WithCORS(order_api.NewRouter(handler, sse, verifier, log), cfg.Server.AllowedOrigins),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("HTTP", fmt.Sprintf("🚀 Delivery API running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})
	if bridge != nil {
		g.Go(func() error {
			if err := bridge.Run(gctx); err != nil && !errors.Is(err, changefeed.ErrClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("APP", "Shutdown signal received, initiating graceful shutdown")

		// closing the hub ends open SSE streams so Shutdown does not wait on them
		hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
