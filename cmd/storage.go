package main

import (
	"context"
	"fmt"

	"github.com/mstgnz/kazapay/infra/config"
	"github.com/mstgnz/kazapay/infra/conn"
	"github.com/mstgnz/kazapay/infra/middle"
	"github.com/mstgnz/kazapay/infra/postgres"
	"github.com/mstgnz/kazapay/infra/sqlite"
	"github.com/mstgnz/kazapay/provider"
)

// ledger is what every reference host offers
type ledger interface {
	provider.Platform
	provider.AtomicSettler
	provider.GatewayLogReader
	Ping(ctx context.Context) error
}

// storage is the selected host plus its optional shared rate limit store
type storage struct {
	ledger   ledger
	counters middle.CounterStore
	migrate  func(ctx context.Context) error
	close    func()
}

func openStorage(ctx context.Context, app *config.AppConfig) (*storage, error) {
	switch app.StorageDriver {
	case "sqlite":
		l, err := sqlite.NewLedger(app.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite ledger: %w", err)
		}
		return &storage{
			ledger:  l,
			migrate: l.Migrate,
			close:   func() { _ = l.Close() },
		}, nil

	case "postgres":
		if app.PostgresDSN == "" {
			return nil, fmt.Errorf("POSTGRES_DSN is required for the postgres driver")
		}
		db, err := conn.ConnectDatabase(ctx, app.PostgresDSN)
		if err != nil {
			return nil, err
		}
		l := postgres.NewLedger(db)
		return &storage{
			ledger:   l,
			counters: postgres.NewCounterStore(db),
			migrate:  l.Migrate,
			close:    db.CloseDatabase,
		}, nil

	case "memory":
		return &storage{
			ledger:  provider.NewMemoryPlatform(),
			migrate: func(context.Context) error { return nil },
			close:   func() {},
		}, nil

	default:
		return nil, fmt.Errorf("unknown STORAGE_DRIVER %q (sqlite, postgres or memory)", app.StorageDriver)
	}
}
