// Package app assembles the reference cart service so both its own binary
// and cartd can run it.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/Skotchmaster/cartsync/internal/metrics"
	domain "github.com/Skotchmaster/cartsync/internal/models"
	"github.com/Skotchmaster/cartsync/internal/mykafka"
	"github.com/Skotchmaster/cartsync/internal/session"
	"github.com/Skotchmaster/cartsync/pkg/db"
	"github.com/Skotchmaster/cartsync/pkg/logging"
	authmw "github.com/Skotchmaster/cartsync/pkg/middleware/auth"
	loggingmw "github.com/Skotchmaster/cartsync/pkg/middleware/logging"
	"github.com/Skotchmaster/cartsync/services/cart/internal/config"
	"github.com/Skotchmaster/cartsync/services/cart/internal/httpserver"
	"github.com/Skotchmaster/cartsync/services/cart/internal/models"
	"github.com/Skotchmaster/cartsync/services/cart/internal/repo"
	"github.com/Skotchmaster/cartsync/services/cart/internal/service"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"gorm.io/gorm"
)

type App struct {
	Echo     *echo.Echo
	DB       *gorm.DB
	Producer *mykafka.Producer
	Logger   *slog.Logger
	Port     int
}

// New builds the service from the environment.
func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := logging.New(cfg.LogLevel).With("service", "cart")

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	conn, err := config.InitDB(initCtx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		return nil, err
	}

	a := &App{DB: conn, Logger: logger, Port: cfg.Port}
	var publisher mykafka.Publisher = mykafka.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		p, err := mykafka.NewProducer(cfg.KafkaBrokers)
		if err != nil {
			_ = db.Close(conn)
			return nil, err
		}
		a.Producer = p
		publisher = p
	}

	r := &repo.GormRepo{DB: conn}
	if err := r.AutoMigrate(ctx); err != nil {
		a.close()
		return nil, fmt.Errorf("migrate cart tables: %w", err)
	}
	if cfg.SeedFile != "" {
		if err := Seed(ctx, r, cfg.SeedFile); err != nil {
			a.close()
			return nil, err
		}
		logger.Info("catalog_seeded", "file", cfg.SeedFile)
	}

	a.Echo = NewEcho(logger, &service.CartService{Repo: r, Producer: publisher}, cfg.JWTSecret)
	return a, nil
}

// NewEcho wires the cart routes, middleware and the metrics endpoint.
func NewEcho(logger *slog.Logger, svc *service.CartService, secret []byte) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 15 * time.Second
	e.Server.ReadHeaderTimeout = 3 * time.Second

	e.Use(loggingmw.RequestLogger(logger))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowHeaders:  []string{echo.HeaderContentType, echo.HeaderAuthorization, authmw.SessionHeader},
		ExposeHeaders: []string{authmw.SessionHeader},
	}))

	httpserver.Register(e, &httpserver.Deps{
		CartHandler:  &httpserver.CartHTTP{Svc: svc},
		JWTSecret:    secret,
		NewSessionID: func() string { return session.NewID(time.Now()) },
	})
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	return e
}

// Seed loads a JSON array of catalog products into the products table.
func Seed(ctx context.Context, r *repo.GormRepo, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}
	var products []domain.Product
	if err := json.Unmarshal(b, &products); err != nil {
		return fmt.Errorf("decode seed file: %w", err)
	}
	rows := make([]models.Product, 0, len(products))
	for _, p := range products {
		rows = append(rows, service.FromDomainProduct(p))
	}
	return r.SaveProducts(ctx, rows)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("server_starting", "port", a.Port)
		if err := a.Echo.Start(":" + strconv.Itoa(a.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("echo start: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.Logger.Info("server_shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("echo shutdown: %w", err)
	}
	a.Logger.Info("server_stopped")
	return nil
}

func (a *App) close() {
	if a.Producer != nil {
		if err := a.Producer.Close(); err != nil {
			a.Logger.Warn("kafka_close_failed", "error", err)
		}
	}
	if err := db.Close(a.DB); err != nil {
		a.Logger.Warn("db_close_failed", "error", err)
	}
}
