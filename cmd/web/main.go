// cmd/web/main.go
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

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go"
	"github.com/LuisEduardoPedra/checkoutPix/internal/adapters/cache"
	"github.com/LuisEduardoPedra/checkoutPix/internal/adapters/checkoutapi"
	"github.com/LuisEduardoPedra/checkoutPix/internal/adapters/events"
	"github.com/LuisEduardoPedra/checkoutPix/internal/api"
	"github.com/LuisEduardoPedra/checkoutPix/internal/api/handlers"
	"github.com/LuisEduardoPedra/checkoutPix/internal/config"
	"github.com/LuisEduardoPedra/checkoutPix/internal/core/auth"
	"github.com/LuisEduardoPedra/checkoutPix/internal/core/checkout"
	"github.com/LuisEduardoPedra/checkoutPix/internal/logging"
	"github.com/LuisEduardoPedra/checkoutPix/internal/ports"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// initFirestoreClient abre o banco de usuários. Sem database_id usa o banco
// padrão do projeto via Firebase Admin.
func initFirestoreClient(ctx context.Context, cfg config.AccountsConfig) (*firestore.Client, error) {
	if cfg.DatabaseID == "" {
		app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID})
		if err != nil {
			return nil, fmt.Errorf("inicializar firebase: %w", err)
		}
		return app.Firestore(ctx)
	}
	return firestore.NewClientWithDatabase(ctx, cfg.ProjectID, cfg.DatabaseID)
}

func newSnapshotStore(ctx context.Context, cfg config.CacheConfig, log *zap.Logger) (ports.SnapshotStore, func(), error) {
	if cfg.RedisURL == "" {
		log.Info("usando cache de sessões em memória")
		return cache.NewMemorySnapshotStore(cfg.TTL), func() {}, nil
	}
	client, err := cache.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	store := cache.NewRedisSnapshotStore(client, cfg.TTL)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("conectar ao redis: %w", err)
	}
	log.Info("conectado ao redis para o cache de sessões")
	return store, func() { client.Close() }, nil
}

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Erro ao carregar configuração: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Erro ao inicializar logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := checkoutapi.NewClient(cfg.CheckoutAPI.BaseURL, cfg.CheckoutAPI.Timeout, checkoutapi.WithLogger(logger))
	deps := checkout.Dependencies{
		Invoices:    client,
		Instruments: client,
		Eligibility: client,
		Accounts:    client,
		Logger:      logger,
	}

	var authHandler *handlers.AuthHandler
	secret := []byte(cfg.Auth.JWTSecret)
	if cfg.Accounts.Provider == config.ProviderFirestore {
		db, err := initFirestoreClient(ctx, cfg.Accounts)
		if err != nil {
			logger.Fatal("Erro ao inicializar cliente Firestore", zap.String("project_id", cfg.Accounts.ProjectID), zap.Error(err))
		}
		defer db.Close()
		authService := auth.NewService(db, secret, cfg.Auth.LoginTokenTTL, logger)
		deps.Accounts = authService
		authHandler = handlers.NewAuthHandler(authService)
		logger.Info("contas criadas no Firestore", zap.String("project_id", cfg.Accounts.ProjectID))
	}

	store, closeStore, err := newSnapshotStore(ctx, cfg.Cache, logger)
	if err != nil {
		logger.Fatal("Erro ao inicializar cache de sessões", zap.Error(err))
	}
	defer closeStore()

	var opts []checkout.RegistryOption
	if len(cfg.Events.KafkaBrokers) > 0 {
		topics := make(map[string]string)
		for _, ev := range []string{checkout.EventSessionPaid, checkout.EventSessionExpired, checkout.EventSessionFailed, checkout.EventAccountCreated} {
			topics[ev] = cfg.Events.Topic
		}
		publisher, err := events.NewKafkaPublisher(cfg.Events.KafkaBrokers, topics)
		if err != nil {
			logger.Fatal("Erro ao inicializar publicador de eventos", zap.Error(err))
		}
		defer publisher.Close()
		opts = append(opts, checkout.WithEventPublisher(publisher))
		logger.Info("eventos de sessão publicados no kafka", zap.Strings("brokers", cfg.Events.KafkaBrokers), zap.String("topic", cfg.Events.Topic))
	}

	registry := checkout.NewRegistry(checkout.RegistryConfig{
		Session: checkout.Config{
			TickInterval:         cfg.Session.TickInterval,
			PollInterval:         cfg.Session.PollInterval,
			MaxPollBackoff:       cfg.Session.MaxPollBackoff,
			MaxTransientFailures: cfg.Session.MaxTransientFailures,
			RequestTimeout:       cfg.CheckoutAPI.Timeout,
			ManualConfirmEvery:   cfg.Session.ManualConfirmEvery,
		},
		RetainTerminal: cfg.Session.RetainTerminal,
		IdleTimeout:    cfg.Session.IdleTimeout,
	}, deps, store, opts...)
	registryDone := make(chan struct{})
	go func() {
		defer close(registryDone)
		registry.Run(ctx)
	}()

	if cfg.Logging.Format != "console" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(api.RouterConfig{
		JWTSecret:      secret,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		Checkout:       handlers.NewCheckoutHandler(registry, secret, cfg.Auth.SessionTokenTTL),
		Auth:           authHandler,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("🚀 Servidor iniciado", zap.Int("port", cfg.HTTP.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Falha ao iniciar o servidor", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("encerrando servidor")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("falha no encerramento do servidor", zap.Error(err))
	}
	<-registryDone
}
