package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/commissionhub/internal/clock"
	"github.com/smallbiznis/commissionhub/internal/config"
	"github.com/smallbiznis/commissionhub/internal/migration"
	"github.com/smallbiznis/commissionhub/internal/observability"
	"github.com/smallbiznis/commissionhub/internal/server"
	"github.com/smallbiznis/commissionhub/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,

		// HTTP surface, domain services and background workers
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
