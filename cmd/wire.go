package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/cascade-rentals/opsdash/internal/reconcile"
	"github.com/cascade-rentals/opsdash/internal/source"
	"github.com/cascade-rentals/opsdash/internal/store"
)

// openStore builds the configured store backend. The caller owns Close.
func openStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.Path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
	}
	return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
}

// buildEngine wires the three source accessors behind the reconciliation
// engine, applying policy overrides when a policy file is configured.
func buildEngine(st store.Store) (*reconcile.Engine, error) {
	pol := reconcile.DefaultPolicy()
	if cfg.Reconcile.PolicyFile != "" {
		loaded, err := reconcile.LoadPolicy(cfg.Reconcile.PolicyFile)
		if err != nil {
			return nil, err
		}
		pol = loaded
	}

	accessors := []reconcile.Accessor{
		source.NewFinancial(st, zap.L()),
		source.NewPOS(st, time.Duration(cfg.Reconcile.POSFreshnessHours)*time.Hour, zap.L()),
		source.NewRFID(st, cfg.Reconcile.RFIDConfidenceFloor, zap.L()),
	}

	timeout := time.Duration(cfg.Reconcile.AccessorTimeoutSecs) * time.Second
	return reconcile.NewEngine(accessors, pol, timeout), nil
}
