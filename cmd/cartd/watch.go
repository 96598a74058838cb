package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Skotchmaster/cartsync/internal/cartclient"
	"github.com/Skotchmaster/cartsync/internal/catalog"
	"github.com/Skotchmaster/cartsync/internal/engine"
	"github.com/Skotchmaster/cartsync/internal/identity"
	"github.com/Skotchmaster/cartsync/internal/metrics"
	"github.com/Skotchmaster/cartsync/internal/models"
	"github.com/Skotchmaster/cartsync/internal/mykafka"
	"github.com/Skotchmaster/cartsync/internal/notify"
	"github.com/Skotchmaster/cartsync/internal/storage"
	"github.com/Skotchmaster/cartsync/pkg/config"
	"github.com/Skotchmaster/cartsync/pkg/db"
	"github.com/Skotchmaster/cartsync/pkg/logging"
	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run a cart engine against a cart service",
	Long: `Load the shopper's cart from CART_API_URL, keep the promotion monitor
running and log every published cart until interrupted. Local state
(session id and anonymous cart copy) lives in LOCAL_STORE_PATH.

With --token the engine starts logged in and migrates any anonymous
cart left in the local store.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().String("api-url", "", "cart service base URL (overrides CART_API_URL)")
	watchCmd.Flags().String("token", "", "bearer token of the logged-in shopper")
	watchCmd.Flags().String("metrics-addr", "", "serve engine metrics on this address, e.g. :9102")
}

func runWatch(cmd *cobra.Command, args []string) error {
	envFiles, _ := cmd.Flags().GetStringSlice("env-file")
	cfg := config.Load(envFiles...)
	if v, _ := cmd.Flags().GetString("api-url"); v != "" {
		cfg.CartAPIURL = v
	}
	token, _ := cmd.Flags().GetString("token")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	logger := logging.New(cfg.LogLevel).With("service", cfg.ServiceName)
	ctx, stop := signal.NotifyContext(logging.IntoContext(cmd.Context(), logger), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := db.Open(ctx, cfg.LocalStorePath)
	if err != nil {
		return fmt.Errorf("open local store: %w", err)
	}
	defer db.Close(conn)

	kv, err := storage.NewGormKV(conn)
	if err != nil {
		return err
	}

	id := identity.NewState()
	eng := engine.New(cartclient.NewClient(cfg.CartAPIURL), id, kv)
	eng.Notifier = notify.Log{Logger: logger}
	eng.PromotionInterval = cfg.PromotionInterval
	defer eng.State.Close()

	if cfg.ESURL != "" {
		es, err := catalog.NewClient(ctx, cfg)
		if err != nil {
			return err
		}
		eng.Catalog = &catalog.ESCatalog{ES: es, Index: cfg.ESIndex}
	}
	if len(cfg.KafkaBrokers) > 0 {
		p, err := mykafka.NewProducer(cfg.KafkaBrokers)
		if err != nil {
			return err
		}
		defer p.Close()
		eng.Events = p
	}

	if metricsAddr != "" {
		srv := serveMetrics(ctx, logger, metricsAddr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	sub := eng.Subscribe()
	defer eng.Unsubscribe(sub)
	go logCarts(ctx, logger, sub)

	if token != "" {
		if err := id.Login(token); err != nil {
			return fmt.Errorf("login: %w", err)
		}
		report, err := eng.Migrate(ctx)
		if err != nil {
			logger.Warn("initial_migration_failed", "error", err)
		}
		logger.Info("initial_migration", "path", report.Path, "failed_items", report.Failed())
	} else if _, err := eng.Load(ctx); err != nil {
		logger.Warn("initial_load_failed", "error", err)
	}
	go eng.WatchIdentity(ctx)

	eng.WatchPromotions(ctx)
	logger.Info("watch_stopped")
	return nil
}

func logCarts(ctx context.Context, logger *slog.Logger, sub <-chan models.Cart) {
	for {
		select {
		case <-ctx.Done():
			return
		case cart, ok := <-sub:
			if !ok {
				return
			}
			logger.Info("cart_published",
				"cart_id", cart.ID,
				"user_id", cart.UserID,
				"session_id", cart.SessionID,
				"items", len(cart.Items),
				"total", cart.TotalPrice,
			)
		}
	}
}

func serveMetrics(ctx context.Context, logger *slog.Logger, addr string) *http.Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	srv := &http.Server{
		Addr:              addr,
		Handler:           e,
		ReadHeaderTimeout: 3 * time.Second,
	}
	go func() {
		logger.Info("metrics_listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics_server_failed", "error", err)
		}
	}()
	return srv
}
