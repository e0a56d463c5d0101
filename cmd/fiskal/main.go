package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fiskal/internal/checkout"
	"github.com/smallbiznis/fiskal/internal/clock"
	"github.com/smallbiznis/fiskal/internal/config"
	"github.com/smallbiznis/fiskal/internal/fiscal"
	"github.com/smallbiznis/fiskal/internal/migration"
	"github.com/smallbiznis/fiskal/internal/observability"
	"github.com/smallbiznis/fiskal/internal/server"
	"github.com/smallbiznis/fiskal/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		clock.Module,
		fx.Provide(newSnowflakeNode),
		db.Module,
		migration.Module,

		fiscal.Module,
		checkout.Module,
		server.Module,
	)
	app.Run()
}

func newSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
