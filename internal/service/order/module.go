package order

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/canteen/internal/config"
	"github.com/Additional-Code/canteen/internal/ledger"
	"github.com/Additional-Code/canteen/internal/slot"
	"github.com/Additional-Code/canteen/internal/store"
)

// Module provides the order ledger and service to Fx.
var Module = fx.Provide(NewLedger, NewService)

// NewLedger builds the ledger over the configured store and restores its
// state when the application starts.
func NewLedger(lc fx.Lifecycle, cfg config.Config, kv store.KV, logger *zap.Logger) (*ledger.Ledger, error) {
	alloc, err := slot.New(slot.FromCanteen(cfg.Canteen))
	if err != nil {
		return nil, err
	}
	l := ledger.New(kv, alloc, ledger.PolicyFromCanteen(cfg.Canteen), ledger.WithLogger(logger))
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return l.Load(ctx)
		},
	})
	return l, nil
}
