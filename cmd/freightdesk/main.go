package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/freightdesk/internal/clock"
	"github.com/smallbiznis/freightdesk/internal/config"
	"github.com/smallbiznis/freightdesk/internal/migration"
	"github.com/smallbiznis/freightdesk/internal/observability"
	"github.com/smallbiznis/freightdesk/internal/server"
	"github.com/smallbiznis/freightdesk/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// Schema first, the HTTP server seeds its policies on start
		migration.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
