package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/example/medistore/gateway"
	"github.com/example/medistore/pkg/auth"
	"github.com/example/medistore/pkg/catalog"
	"github.com/example/medistore/pkg/config"
	"github.com/example/medistore/pkg/discovery"
	"github.com/example/medistore/pkg/engine"
	grpcserver "github.com/example/medistore/pkg/grpc"
	"github.com/example/medistore/pkg/logger"
	"github.com/example/medistore/pkg/notify"
	"github.com/example/medistore/pkg/reminder"
	"github.com/example/medistore/pkg/repository"
	"github.com/example/medistore/pkg/storage"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const healthInterval = 30 * time.Second

func main() {
	configPath := os.Getenv("MEDISTORE_CONFIG")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		panic(fmt.Sprintf("Failed to create logger: %v", err))
	}
	defer log.Sync()

	log.Info("Starting storefront",
		zap.String("name", cfg.Server.Name),
		zap.String("storage", cfg.Storage.Backend),
		zap.Int("gateway_port", cfg.Gateway.Port))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, checker, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to open storage", zap.Error(err))
	}
	defer closeStore()

	var auditor engine.Auditor
	var history gateway.AuditHistory
	if cfg.MongoDB.Enabled {
		m, err := repository.NewMongoAuditor(&cfg.MongoDB)
		if err != nil {
			log.Warn("Failed to connect to MongoDB, continuing without audit trail", zap.Error(err))
		} else {
			auditor = m
			history = m
			defer m.Close(context.Background())
		}
	}

	catalogURL, authURL := cfg.Catalog.BaseURL, cfg.Auth.BaseURL
	var sd *discovery.ServiceDiscovery
	if cfg.Etcd.Enabled {
		sd, err = discovery.NewServiceDiscovery(&cfg.Etcd, log.Named("discovery"))
		if err != nil {
			log.Warn("Failed to connect to etcd, continuing without service discovery", zap.Error(err))
		} else {
			defer sd.Close()
			resolveCtx, done := context.WithTimeout(ctx, cfg.Etcd.DialTimeout)
			catalogURL = sd.Resolve(resolveCtx, cfg.Catalog.Name, catalogURL)
			authURL = sd.Resolve(resolveCtx, cfg.Auth.Name, authURL)
			done()
		}
	}

	notifier := notify.NewLogNotifier(log.Named("notify"), nil)
	eng := engine.New(store, notifier, auditor, engine.Options{
		DeliveryFee:         decimal.NewFromFloat(cfg.Checkout.DeliveryFee),
		DefaultDurationDays: cfg.Reminder.DefaultDurationDays,
	}, log.Named("engine"))
	if err := eng.Load(ctx); err != nil {
		log.Fatal("Failed to load state", zap.Error(err))
	}

	system := actor.NewActorSystem()
	dispatcher, err := engine.Spawn(system, eng, cfg.Gateway.IntentTimeout, log)
	if err != nil {
		log.Fatal("Failed to start engine", zap.Error(err))
	}

	alerter := reminder.NewAlerter(cfg.Reminder.TickInterval, func(ctx context.Context, minute time.Time) {
		reply, err := dispatcher.Dispatch(ctx, &engine.CheckReminders{Now: minute})
		if err != nil {
			log.Warn("Reminder check failed", zap.Error(err))
			return
		}
		if len(reply.Alerts) > 0 {
			log.Debug("Reminder alerts sent", zap.Int("count", len(reply.Alerts)))
		}
	}, log.Named("alerter"))
	go alerter.Run(ctx)

	gw := gateway.NewGateway(&cfg.Gateway, log.Named("gateway"), dispatcher,
		catalog.NewClient(catalogURL, cfg.Catalog.Timeout),
		auth.NewClient(authURL, cfg.Auth.Timeout))
	if history != nil {
		gw.SetHistory(history)
	}

	health := grpcserver.NewHealthServer(&cfg.Server, log.Named("health"))
	if checker != nil {
		go health.Watch(ctx, healthInterval, checker)
	}

	errCh := make(chan error, 2)
	go func() {
		if err := gw.Start(); err != nil {
			errCh <- fmt.Errorf("gateway: %w", err)
		}
	}()
	go func() {
		if err := health.Start(); err != nil {
			errCh <- fmt.Errorf("health server: %w", err)
		}
	}()

	instance := &discovery.ServiceInstance{Name: cfg.Server.Name, Host: cfg.Gateway.Host, Port: cfg.Gateway.Port}
	if sd != nil {
		if err := sd.Register(ctx, instance); err != nil {
			log.Warn("Failed to register storefront", zap.Error(err))
		}
	}

	log.Info("Storefront started",
		zap.String("catalog", catalogURL),
		zap.String("auth", authURL))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info("Received shutdown signal")
	case err := <-errCh:
		log.Error("Server error", zap.Error(err))
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()

	if sd != nil {
		if err := sd.Deregister(shutdownCtx, instance); err != nil {
			log.Warn("Failed to deregister storefront", zap.Error(err))
		}
	}
	if err := gw.Shutdown(shutdownCtx); err != nil {
		log.Error("Gateway shutdown error", zap.Error(err))
	}
	health.Stop()
	cancel()
	if err := dispatcher.Stop(); err != nil {
		log.Warn("Engine actor did not stop cleanly", zap.Error(err))
	}

	log.Info("Storefront stopped")
}

// openStore builds the configured persistence backend together with a checker
// for the health server (nil for memory) and a close func.
func openStore(ctx context.Context, cfg *config.Config) (storage.Store, grpcserver.Checker, func(), error) {
	switch cfg.Storage.Backend {
	case config.BackendRedis:
		r := repository.NewRedisStore(&cfg.Redis, cfg.Storage.Namespace)
		if err := r.Ping(ctx); err != nil {
			_ = r.Close()
			return nil, nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		return r, r.Ping, func() { _ = r.Close() }, nil

	case config.BackendMySQL:
		s, err := repository.OpenSQLStore(&cfg.MySQL, cfg.Storage.Namespace)
		if err != nil {
			return nil, nil, nil, err
		}
		return s, s.Ping, func() { _ = s.Close() }, nil
	}
	return storage.NewMemoryStore(), nil, func() {}, nil
}
