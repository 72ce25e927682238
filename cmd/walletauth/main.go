package main

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"

	"github.com/ipforge/walletauth/adapters/authority"
	"github.com/ipforge/walletauth/adapters/events"
	"github.com/ipforge/walletauth/adapters/store"
	"github.com/ipforge/walletauth/adapters/wallet"
	"github.com/ipforge/walletauth/config"
	"github.com/ipforge/walletauth/core"
	"github.com/ipforge/walletauth/internal/logger"
	"github.com/ipforge/walletauth/ports"
	"github.com/ipforge/walletauth/service"
)

// Demo wiring: builds the full stack with an in-process keystore wallet,
// restores any persisted session, connects, prints usage and disconnects.
func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		logger.New(0).Fatal("failed to load config", "error", err)
	}

	log := logger.New(cfg.LogLevel)
	ctx := context.Background()

	secureStore, redisClient, err := buildStore(ctx, cfg)
	if err != nil {
		log.Fatal("failed to build secure store", "error", err)
	}

	publisher, err := buildPublisher(redisClient)
	if err != nil {
		log.Fatal("failed to build event publisher", "error", err)
	}

	authorityClient := authority.NewClient(authority.Config{
		BaseURL:       cfg.Authority.URL,
		ClientID:      cfg.Authority.ClientID,
		Timeout:       time.Duration(cfg.Authority.TimeoutSeconds) * time.Second,
		RatePerSecond: cfg.Authority.RatePerSecond,
		Burst:         cfg.Authority.Burst,
	})

	auth := service.NewAuthenticator(service.Config{
		Store:         secureStore,
		Authority:     authorityClient,
		Events:        events.NewWatermillPublisher(publisher),
		Builder:       core.NewChallengeBuilder(cfg.App.Domain, cfg.App.Statement, cfg.App.URI),
		Logger:        log,
		ChainID:       cfg.Chain.ID,
		RetryAttempts: cfg.Connect.RetryAttempts,
		RetryDelay:    time.Duration(cfg.Connect.RetryDelayMS) * time.Millisecond,
	})

	unsubscribe := auth.Subscribe(func(state core.State) {
		log.Info("session transition", "state", state)
	})
	defer unsubscribe()

	transport, err := wallet.GenerateKeystoreTransport(cfg.Chain.ID)
	if err != nil {
		log.Fatal("failed to create wallet", "error", err)
	}
	log.Info("using in-process wallet", "address", transport.Address())
	auth.SetProvider(wallet.NewBinding(transport))

	if err := auth.Restore(ctx); err != nil {
		log.Warn("session restore failed", "error", err)
	}

	address, err := auth.Connect(ctx)
	if err != nil {
		log.Fatal("connect failed", "error", err)
	}
	log.Info("connected", "address", address)

	capabilities := service.NewCapabilityClient(service.CapabilityConfig{
		Authenticator: auth,
		Authority:     authorityClient,
		Logger:        log,
		MarketAddress: cfg.Chain.MarketAddress,
	})

	usage := capabilities.GetUsage(ctx)
	log.Info("usage", "points", usage.Points, "multiplier", usage.Multiplier, "active", usage.Active)

	auth.Disconnect(ctx)
	log.Info("disconnected")
}

// buildStore selects the secure store backend. The redis client is shared
// with the event publisher when redis is in use.
func buildStore(ctx context.Context, cfg *config.Config) (ports.SecureStore, *redis.Client, error) {
	switch cfg.Store.Backend {
	case config.StoreRedis:
		opts, err := redis.ParseURL(cfg.Store.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, nil, err
		}
		return store.NewRedisStore(client), client, nil

	case config.StoreFile:
		return store.NewFileStore(cfg.Store.FilePath, cfg.Store.Passphrase), nil, nil

	default:
		return store.NewMemoryStore(), nil, nil
	}
}

// buildPublisher uses a redis stream publisher when a redis client exists,
// and an in-process channel publisher otherwise.
func buildPublisher(redisClient *redis.Client) (message.Publisher, error) {
	wmLogger := watermill.NewStdLogger(false, false)

	if redisClient != nil {
		return redisstream.NewPublisher(
			redisstream.PublisherConfig{Client: redisClient},
			wmLogger,
		)
	}

	return gochannel.NewGoChannel(gochannel.Config{}, wmLogger), nil
}
