package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"chat_sync_service/internal/chat/app"
	"chat_sync_service/internal/chat/domain"
	"chat_sync_service/internal/chat/repository"
	"chat_sync_service/internal/chat/router"
	"chat_sync_service/pkg/config"
	"chat_sync_service/pkg/database"
	"chat_sync_service/pkg/logger"
	testtool "chat_sync_service/pkg/test_tool"
	"chat_sync_service/pkg/token"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	fiber_log "github.com/gofiber/fiber/v2/middleware/logger"
	"go.uber.org/zap"
)

func main() {
	logger.Log = logger.Initialize(config.EnvConfig.ServiceName, config.EnvConfig.LogPath)
	defer logger.Log.Sync()
	logger.Log.SetDebugMode(config.IsLocal())

	cfg, err := config.LoadConfig[config.ChatSync](config.EnvConfig.ServiceName, config.EnvConfig.YAMLPath)
	if err != nil {
		logger.Log.Fatal("load config failed", zap.Error(err))
	}
	if config.EnvConfig.Port != "" {
		cfg.Port = config.EnvConfig.Port
	}
	token.SetSecret(cfg.JWTSecret)

	ctx := context.Background()

	// 1. Mongo (conversation + messages)
	uri := fmt.Sprintf("mongodb://%s:%s@%s:%d", cfg.Mongo.User, cfg.Mongo.Password, cfg.Mongo.Host, cfg.Mongo.Port)
	mongo, err := database.NewMongoDB(ctx,
		database.Connection{
			ConnectStr:    uri,
			RetryCount:    cfg.Mongo.RetryCount,
			RetryInterval: time.Duration(cfg.Mongo.RetryInterval) * time.Second,
		},
		cfg.Mongo.Database)
	if err != nil {
		logger.Log.Fatal("Unable to connect to mongoDB database after retries",
			zap.String("host", cfg.Mongo.Host),
			zap.Error(err),
		)
	}
	defer mongo.Close(ctx)

	// 2. Redis (event pub/sub)
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient, err = database.NewRedisStandalone(cfg.Redis.Addr, cfg.Redis.RedisDB)
	} else {
		masterName, sentinel := config.GetRedisSetting()
		redisClient, err = database.NewRedisClient(masterName, sentinel, cfg.Redis.RedisDB)
	}
	if err != nil {
		logger.Log.Fatal("connect redis failed", zap.Error(err))
	}
	defer redisClient.Close()

	// 3. Kafka (conversation summary stream), 未啟用時不輸出
	var summaries repository.SummaryPublisher = repository.NoopSummaryPublisher{}
	if cfg.Kafka.Enabled {
		writer, err := database.NewKafkaWriterWithRetry(ctx, database.KafkaConnection{
			Brokers:       cfg.Kafka.Brokers,
			Topic:         cfg.Kafka.Topic,
			RetryCount:    cfg.Kafka.RetryCount,
			RetryInterval: time.Duration(cfg.Kafka.RetryInterval) * time.Second,
		})
		if err != nil {
			logger.Log.Fatal("connect kafka failed", zap.Strings("brokers", cfg.Kafka.Brokers), zap.Error(err))
		}
		summaries = repository.NewKafkaSummaryPublisher(writer)
	}
	defer summaries.Close()

	// 4. UseCases
	views := app.NewChatDomainService(
		app.WithCacheTTL(cfg.ViewCache.TTL),
		app.WithUnreadCacheSize(cfg.ViewCache.UnreadSize),
		app.WithDisplayCacheSize(cfg.ViewCache.DisplaySize),
		app.WithShareCodec(domain.NewShareCodec(cfg.Share.Scheme, cfg.Share.Host)),
	)
	inboxUC := app.NewInboxUseCase(
		repository.NewMongoConversationRepository(mongo.Database),
		repository.NewRedisPubSub(redisClient),
		summaries,
		views,
		app.WithBatchSize(cfg.Batch.Size),
		app.WithProgressiveThreshold(cfg.Batch.ProgressiveThreshold),
	)

	// 5. Fiber
	r := fiber.New()
	if err := os.MkdirAll(config.EnvConfig.LogPath, 0o755); err != nil {
		logger.Log.Fatal("create log dir failed", zap.Error(err))
	}
	file, err := os.OpenFile(fmt.Sprintf("%s/access.log", config.EnvConfig.LogPath), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o666)
	if err != nil {
		logger.Log.Fatal("open access log failed", zap.Error(err))
	}
	defer file.Close()

	r.Use(fiber_log.New(fiber_log.Config{
		Output: file,
	}))

	router.RegisterRoutes(r, app.NewChatWebsocketHandler(inboxUC), inboxUC)

	testtool.StartPprof()

	port := ":" + cfg.Port
	logger.Log.Infof("Chat Sync Service listening on", port)
	if err := r.Listen(port); err != nil {
		logger.Log.Fatal("Failed to start Fiber", zap.Error(err))
	}
}
