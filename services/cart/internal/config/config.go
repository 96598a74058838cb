package config

import (
	"context"
	"fmt"
	"os"

	pkgconfig "github.com/Skotchmaster/cartsync/pkg/config"
	"github.com/Skotchmaster/cartsync/pkg/db"
	"gorm.io/gorm"
)

type Config struct {
	Port         int
	LogLevel     string
	DatabaseURL  string
	JWTSecret    []byte
	KafkaBrokers []string
	// SeedFile optionally points at a JSON array of catalog products loaded at startup.
	SeedFile string
}

func Load() (*Config, error) {
	base := pkgconfig.Load()
	if err := pkgconfig.Require(map[string]string{
		"JWT_SECRET":   string(base.JWTSecret),
		"DATABASE_URL": base.DatabaseURL,
	}); err != nil {
		return nil, err
	}
	return &Config{
		Port:         base.ServerPort,
		LogLevel:     base.LogLevel,
		DatabaseURL:  base.DatabaseURL,
		JWTSecret:    base.JWTSecret,
		KafkaBrokers: base.KafkaBrokers,
		SeedFile:     os.Getenv("SEED_PRODUCTS"),
	}, nil
}

func InitDB(ctx context.Context, dsn string) (*gorm.DB, error) {
	conn, err := db.Open(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("init cart db: %w", err)
	}
	return conn, nil
}
