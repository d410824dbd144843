package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/coinflow/internal/clock"
	"github.com/smallbiznis/coinflow/internal/coin"
	"github.com/smallbiznis/coinflow/internal/config"
	"github.com/smallbiznis/coinflow/internal/events"
	"github.com/smallbiznis/coinflow/internal/invoice"
	"github.com/smallbiznis/coinflow/internal/migration"
	"github.com/smallbiznis/coinflow/internal/observability"
	"github.com/smallbiznis/coinflow/internal/rates"
	"github.com/smallbiznis/coinflow/internal/scheduler"
	"github.com/smallbiznis/coinflow/internal/store"
	"github.com/smallbiznis/coinflow/internal/wallet"
	"github.com/smallbiznis/coinflow/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		fx.Provide(config.Load),
		fx.Provide(config.NewCheckoutConfigHolder),
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Settlement domains
		rates.Module,
		coin.Module,
		events.Module,
		store.Module,
		wallet.Module,
		invoice.Module,
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
