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

	"github.com/gorilla/sessions"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"push-vault-go/internal/config"
	"push-vault-go/internal/crypto"
	"push-vault-go/internal/handlers"
	"push-vault-go/internal/logger"
	"push-vault-go/internal/push"
	"push-vault-go/internal/store"
	"push-vault-go/internal/subscriptions"
)

var port int

var rootCmd = &cobra.Command{
	Use:           "push-vault",
	Short:         "Encrypted web push subscription store",
	RunE:          runServe,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Load subscriptions and serve the push API",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Encrypt every plaintext subscription into the blob table",
	RunE:  runMigrate,
}

func init() {
	rootCmd.PersistentFlags().IntVar(&port, "port", 0, "listen port (overrides PORT)")
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// app holds what both commands need.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	store    store.Store
	svc      *subscriptions.Service
	registry *prometheus.Registry
}

func setup(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if port != 0 {
		cfg.Port = port
	}

	log, err := logger.New(cfg.Env)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Sync()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	keys := crypto.NewKeyManager(cfg.EncryptionKey, cfg.Env, log)
	svc := subscriptions.New(st, crypto.NewCodec(keys), log, subscriptions.NewMetrics(registry))

	return &app{cfg: cfg, log: log, store: st, svc: svc, registry: registry}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.log.Warn("failed to close store", zap.Error(err))
	}
	a.log.Sync()
}

func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (store.Store, error) {
	switch cfg.Backend {
	case config.BackendRedis:
		rs := store.NewRedisStore(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rs.Ping(ctx); err != nil {
			rs.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		log.Info("using redis subscription store", zap.String("addr", cfg.Redis.Addr))
		return rs, nil

	default:
		pg, err := store.NewPostgresStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		if err := pg.RunMigrations(ctx); err != nil {
			pg.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("database migrations completed")
		return pg, nil
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if _, err := a.svc.Initialize(ctx); err != nil {
		return fmt.Errorf("load subscriptions: %w", err)
	}

	vapid, err := push.ResolveVAPIDKeys(a.cfg.VAPID, a.log)
	if err != nil {
		return err
	}
	sender := push.NewSender(a.svc, vapid, nil, a.log)

	sessionStore := sessions.NewCookieStore([]byte(a.cfg.SessionSecret))
	h := handlers.NewHandler(a.svc, sender, sessionStore, handlers.Options{
		SessionName:    a.cfg.SessionName,
		VAPIDPublicKey: vapid.PublicKey,
		WebhookSecret:  a.cfg.WebhookSecret,
	}, a.log)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Port),
		Handler:           h.Routes(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		a.log.Info("listening", zap.String("addr", srv.Addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	a.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	a, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	res, err := a.svc.MigrateToEncrypted(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("migrated %d users (%d subscriptions), %d failed\n",
		res.MigratedUsers, res.MigratedSubscriptions, res.FailedUsers)
	if res.FailedUsers > 0 {
		return fmt.Errorf("%d users could not be migrated", res.FailedUsers)
	}
	return nil
}
