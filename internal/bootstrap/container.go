package bootstrap

import (
	"context"
	"log"

	"neon-assistant-be/internal/config"
	"neon-assistant-be/internal/controller"
	"neon-assistant-be/internal/pkg/logger"
	"neon-assistant-be/internal/repository/memory"
	"neon-assistant-be/internal/repository/unitofwork"
	"neon-assistant-be/internal/service"
	"neon-assistant-be/pkg/llm/factory"
	pktNats "neon-assistant-be/pkg/nats"
	"neon-assistant-be/pkg/neon"
	"neon-assistant-be/pkg/sqlrunner"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	ChatController controller.IChatController

	// Background Services (Exposed for main.go to run)
	ConsumerService service.IConsumerService

	// Infrastructure shared with the server layer
	Redis  *redis.Client
	Logger logger.ILogger
}

func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core Facades
	uowFactory := unitofwork.NewRepositoryFactory(db)
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

	// 2.5 Infrastructure
	// NATS is optional; without it audit events stay on the local bus.
	var natsPub *pktNats.Publisher
	if cfg.App.NatsURL != "" {
		var err error
		natsPub, err = pktNats.NewPublisher(cfg.App.NatsURL)
		if err != nil {
			log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
			natsPub = nil
		}
	}

	// Redis backs the chat rate limiter.
	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{
			Addr: cfg.App.RedisURL,
		}
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v", err)
	}

	// 3. Providers
	llmBaseURL := cfg.Ai.OpenAIBaseURL
	if cfg.Ai.Provider == "ollama" {
		llmBaseURL = cfg.Ai.OllamaBaseURL
	}
	llmProvider, err := factory.NewLLMProvider(
		cfg.Ai.Provider,
		cfg.Ai.FunctionCallModel,
		llmBaseURL,
		cfg.Ai.OpenAIAPIKey,
	)
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize LLM Provider: %v", err)
	}
	log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.Ai.Provider, cfg.Ai.FunctionCallModel)

	neonClient := neon.NewClient(cfg.Neon.BaseURL)
	sqlRunner := sqlrunner.NewRunner(llmProvider, cfg.Ai.FunctionCallModel)
	executor := neon.NewExecutor(neonClient, sqlRunner)

	historyCache := memory.NewHistoryCache()

	// 4. Services
	publisherService := service.NewPublisherService(service.ActionExecutedTopic, pubSub)
	consumerService := service.NewConsumerService(pubSub, natsPub, sysLogger)

	chatService := service.NewChatService(
		uowFactory,
		llmProvider,
		executor,
		historyCache,
		publisherService,
		sysLogger,
		neon.Tools(),
		cfg.Ai.FunctionCallModel,
		cfg.Ai.ChatModel,
		cfg.Neon.APIKey,
	)

	// 5. Controllers
	return &Container{
		ChatController:  controller.NewChatController(chatService),
		ConsumerService: consumerService,
		Redis:           rdb,
		Logger:          sysLogger,
	}
}
