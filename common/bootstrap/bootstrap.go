package bootstrap

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/docuforge/docuforge/common/bus"
	"github.com/docuforge/docuforge/common/config"
	"github.com/docuforge/docuforge/common/cryptox"
	"github.com/docuforge/docuforge/common/db"
	"github.com/docuforge/docuforge/common/kvstore"
	"github.com/docuforge/docuforge/common/logger"
)

// Setup initializes all service components
// This is the main entry point for the daemon
func Setup(ctx context.Context, serviceName string, opts ...Option) (*Components, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	components := &Components{
		cleanupFuncs: make([]func() error, 0),
	}

	// 1. Load configuration
	var err error
	if options.customConfig != nil {
		components.Config = options.customConfig
	} else {
		components.Config, err = config.Load(serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	// 2. Initialize logger
	if options.customLogger != nil {
		components.Logger = options.customLogger
	} else {
		components.Logger = logger.New(
			components.Config.Service.LogLevel,
			components.Config.Service.LogFormat,
		)
	}

	components.Logger.Info("initializing service",
		"service", serviceName,
		"environment", components.Config.Service.Environment,
	)

	// 3. Crypto provider and session-scoped at-rest key
	components.Crypto = cryptox.NewProvider()
	components.SessionKeys = kvstore.NewSessionKeys(components.Crypto)

	// 4. KV store: redis durable tier with in-memory fallback
	var redisClient *redis.Client
	if !options.skipRedis {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     components.Config.Redis.Addr,
			Password: components.Config.Redis.Password,
			DB:       components.Config.Redis.DB,
		})
		components.addCleanup(func() error {
			return redisClient.Close()
		})
	}

	var crypto *cryptox.Provider
	var keys *kvstore.SessionKeys
	if components.Config.Storage.EncryptAtRest {
		crypto = components.Crypto
		keys = components.SessionKeys
	}
	components.KV = kvstore.Open(ctx, redisClient, components.Config.Storage.KeyPrefix, crypto, keys, components.Logger)
	if components.KV == nil {
		return nil, fmt.Errorf("failed to initialize kv store")
	}

	// 5. Event bus
	components.Bus = bus.New(components.Logger)
	components.addCleanup(func() error {
		components.Logger.Info("closing event bus")
		return components.Bus.Close()
	})

	// 6. Operation-history archive (optional)
	if !options.skipDB {
		components.Logger.Info("connecting to database")
		components.DB, err = db.New(ctx, components.Config, components.Logger)
		if err != nil {
			// The archive is a durable complement, not a dependency of the
			// file plane. Run without it.
			components.Logger.Warn("history archive unavailable", "error", err)
			components.DB = nil
		} else {
			components.addCleanup(func() error {
				components.DB.Close()
				return nil
			})
		}
	}

	components.Logger.Info("service initialization complete",
		"service", serviceName,
		"db", components.DB != nil,
		"kv", components.KV != nil,
	)

	return components, nil
}

// MustSetup is like Setup but panics on error
func MustSetup(ctx context.Context, serviceName string, opts ...Option) *Components {
	components, err := Setup(ctx, serviceName, opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to setup service %s: %v", serviceName, err))
	}
	return components
}
