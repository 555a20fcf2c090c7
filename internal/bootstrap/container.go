package bootstrap

import (
	"context"
	"log"
	"time"

	"textbook-chat-be/internal/config"
	"textbook-chat-be/internal/controller"
	"textbook-chat-be/internal/handler"
	"textbook-chat-be/internal/pkg/logger"
	"textbook-chat-be/internal/repository/contract"
	"textbook-chat-be/internal/repository/memory"
	"textbook-chat-be/internal/repository/redisstore"
	"textbook-chat-be/internal/service"
	"textbook-chat-be/internal/websocket"
	"textbook-chat-be/pkg/ragapi"

	pktNats "textbook-chat-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type Container struct {
	// Controllers
	ChatController   controller.IChatController
	HealthController controller.IHealthController

	// Background Services (Exposed for main.go to run)
	ConsumerService service.IConsumerService

	// WebSockets
	ChatWsHandler *handler.ChatWsHandler
	WebSocketHub  *websocket.Hub

	Logger logger.ILogger

	closers []func()
}

func NewContainer(cfg *config.Config) *Container {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.IsProduction())

	ragClient := ragapi.NewClient(ragapi.Config{
		BaseURL: cfg.Rag.BaseURL,
		Timeout: cfg.Rag.Timeout(),
	})
	log.Printf("[INFO] Using RAG API: %s (timeout %s)", ragClient.Config().BaseURL, ragClient.Config().Timeout)

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

	// 3. Infrastructure
	// NATS
	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
	} else if !natsPub.Connected() {
		log.Printf("[WARN] NATS unreachable at %s, activity events are dropped until it reconnects", cfg.App.NatsURL)
	}

	// Redis
	rdb, redisUp := connectRedis(cfg.App.RedisURL)

	// Session Storage
	storageRepo := newStorageRepository(cfg, rdb, redisUp)

	// WebSocket Hub
	wsLogger := logger.NewIsolatedLogger(cfg.App.WsLogFilePath)
	var hubRedis *redis.Client
	if redisUp {
		hubRedis = rdb
	}
	wsHub := websocket.NewHub(hubRedis, uuid.NewString(), wsLogger)
	go wsHub.Run()

	// 4. Services
	publisherService := service.NewPublisherService(cfg.App.ActivityTopic, pubSub)

	// A nil *Publisher must not end up inside the interface.
	var forwarder service.EventForwarder
	if natsPub != nil {
		forwarder = natsPub
	}
	consumerService := service.NewConsumerService(pubSub, cfg.App.ActivityTopic, forwarder, sysLogger)

	chatService := service.NewChatService(
		ragClient,
		storageRepo,
		wsHub,
		publisherService,
		sysLogger,
		cfg.Session.TTL(),
	)

	chatWsHandler := handler.NewChatWsHandler(chatService, wsHub, wsLogger)

	closers := []func(){
		func() { _ = pubSub.Close() },
		func() { _ = rdb.Close() },
		func() { _ = sysLogger.Sync() },
		func() { _ = wsLogger.Sync() },
	}
	if natsPub != nil {
		closers = append(closers, natsPub.Close)
	}

	// 5. Controllers
	return &Container{
		ChatController:   controller.NewChatController(chatService, cfg.Session.CookieName, chatWsHandler.ServeWs),
		HealthController: controller.NewHealthController(chatService),
		ConsumerService:  consumerService,
		ChatWsHandler:    chatWsHandler,
		WebSocketHub:     wsHub,
		Logger:           sysLogger,
		closers:          closers,
	}
}

// Close releases broker and store connections.
func (c *Container) Close() {
	for _, closeFn := range c.closers {
		closeFn()
	}
}

func connectRedis(url string) (*redis.Client, bool) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{
			Addr: url,
		}
	}
	rdb := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v", err)
		return rdb, false
	}
	return rdb, true
}

func newStorageRepository(cfg *config.Config, rdb *redis.Client, redisUp bool) contract.ISessionStorageRepository {
	if cfg.Session.Store == config.SessionStoreRedis {
		if redisUp {
			log.Printf("[INFO] Using Session Store: REDIS (ttl %s)", cfg.Session.TTL())
			return redisstore.NewSessionRepository(rdb, cfg.Session.TTL())
		}
		log.Printf("[WARN] Redis unavailable, falling back to in-memory session store")
	}
	log.Printf("[INFO] Using Session Store: MEMORY (ttl %s)", cfg.Session.TTL())
	return memory.NewSessionRepository(cfg.Session.TTL())
}
