package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"chat-order-service/config"
	"chat-order-service/internal/api"
	"chat-order-service/internal/broker"
	"chat-order-service/internal/commit"
	"chat-order-service/internal/conversation"
	"chat-order-service/internal/dialogue"
	"chat-order-service/internal/dispatch"
	"chat-order-service/internal/redisclient"
	"chat-order-service/internal/service"
	"chat-order-service/internal/store"
	"chat-order-service/internal/util"
	"chat-order-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const janitorInterval = time.Minute

func main() {
	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting chat order service",
		zap.String("env", cfg.Server.Env),
		zap.String("state_backend", cfg.Conversation.StateBackend))

	tp, err := util.InitTracer(util.ServiceName, cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}
	logger.Info("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	var orderProducer, replyProducer *broker.Producer
	if cfg.Kafka.Enabled {
		orderProducer = broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
		defer orderProducer.Close()
		replyProducer = broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOutbound)
		defer replyProducer.Close()
		logger.Info("Kafka producers initialized")
	}
	eventPublisher := broker.NewEventPublisher(orderProducer, replyProducer)

	inventoryClient := service.NewInventoryClient(db, redisClient)
	if err := inventoryClient.SyncInventoryToRedis(ctx); err != nil {
		logger.Error("Failed to sync inventory to Redis", zap.Error(err))
	}

	orderService := service.NewOrderService(db, inventoryClient, eventPublisher)
	committer := commit.NewAdapter(orderService, cfg.Conversation.CommitTimeout)

	var (
		states      conversation.Store
		memoryStore *conversation.MemoryStore
	)
	switch cfg.Conversation.StateBackend {
	case config.StateBackendMemory:
		memoryStore = conversation.NewMemoryStore()
		states = memoryStore
	case config.StateBackendRedis:
		states = conversation.NewRedisStore(redisClient.GetClient(), cfg.Conversation.IdleTTL)
	default:
		logger.Fatal("Unknown state backend", zap.String("state_backend", cfg.Conversation.StateBackend))
	}

	engine, err := dialogue.NewEngine(dialogue.EngineOpts{
		Store:       states,
		Catalog:     service.NewCatalog(db, inventoryClient),
		Committer:   committer,
		Customers:   service.NewCustomerDirectory(db),
		Logger:      logger,
		SearchLimit: cfg.Conversation.SearchLimit,
	})
	if err != nil {
		logger.Fatal("Failed to create dialogue engine", zap.Error(err))
	}

	dispatcher, err := dispatch.New(dispatch.Opts{
		Handler:  engine,
		Guard:    redisClient,
		LockTTL:  cfg.Conversation.TurnLockTTL,
		DedupTTL: cfg.Conversation.DedupTTL,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal("Failed to create dispatcher", zap.Error(err))
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(api.HandlerOpts{
		Dispatcher: dispatcher,
		States:     states,
		Orders:     orderService,
		Checks: map[string]api.Pinger{
			"postgres": db,
			"redis":    redisClient,
		},
		TelegramSecret: cfg.Telegram.WebhookSecret,
		Logger:         logger,
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if cfg.Kafka.Enabled {
		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicInbound, cfg.Kafka.ConsumerGroup)
		messageWorker := worker.NewMessageWorker(consumer, dispatcher, eventPublisher)
		g.Go(func() error {
			err := messageWorker.Start(gctx)
			if stopErr := messageWorker.Stop(); stopErr != nil {
				logger.Error("Error stopping message worker", zap.Error(stopErr))
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	if memoryStore != nil && cfg.Conversation.IdleTTL > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(janitorInterval)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					if n := memoryStore.ResetIdle(gctx, cfg.Conversation.IdleTTL); n > 0 {
						logger.Info("Reset idle conversations", zap.Int("count", n))
					}
				}
			}
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("Service stopped with error", zap.Error(err))
		return
	}
	logger.Info("Server exited")
}
