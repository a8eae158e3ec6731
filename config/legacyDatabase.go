package config

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/microsoft/go-mssqldb"
)

// ConnectLegacyWithRetry opens the read-only legacy source.
//
// Env:
// - LEGACY_DRIVER (default "sqlserver"; any database/sql driver registered in the binary)
// - LEGACY_DSN (required)
// - LEGACY_MAX_OPEN_CONNS (default 4)
func ConnectLegacyWithRetry(ctx context.Context, maxAttempts int) (*sqlx.DB, error) {
	driver := strings.TrimSpace(os.Getenv("LEGACY_DRIVER"))
	if driver == "" {
		driver = "sqlserver"
	}
	dsn := strings.TrimSpace(os.Getenv("LEGACY_DSN"))
	if dsn == "" {
		return nil, errors.New("LEGACY_DSN is required")
	}

	var attempt int
	for {
		attempt++
		legacyDB, err := openLegacy(ctx, driver, dsn)
		if err == nil {
			log.Printf("connected to legacy source (driver=%s attempt=%d)", driver, attempt)
			return legacyDB, nil
		}
		if maxAttempts > 0 && attempt >= maxAttempts {
			return nil, fmt.Errorf("connect legacy source after %d attempts: %w", attempt, err)
		}

		sleep := backoff(attempt)
		log.Printf("failed to connect legacy source (attempt=%d): %v; retrying in %s", attempt, err, sleep)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
		}
	}
}

func openLegacy(ctx context.Context, driver, dsn string) (*sqlx.DB, error) {
	legacyDB, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	legacyDB.SetMaxOpenConns(intFromEnv("LEGACY_MAX_OPEN_CONNS", 4))
	legacyDB.SetConnMaxLifetime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := legacyDB.PingContext(pingCtx); err != nil {
		legacyDB.Close()
		return nil, fmt.Errorf("ping legacy source: %w", err)
	}
	return legacyDB, nil
}
