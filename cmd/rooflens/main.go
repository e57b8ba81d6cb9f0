package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rooflens/internal/clock"
	"github.com/smallbiznis/rooflens/internal/config"
	"github.com/smallbiznis/rooflens/internal/estimator"
	"github.com/smallbiznis/rooflens/internal/migration"
	"github.com/smallbiznis/rooflens/internal/observability"
	"github.com/smallbiznis/rooflens/internal/order"
	"github.com/smallbiznis/rooflens/internal/providers/eagleview"
	"github.com/smallbiznis/rooflens/internal/providers/googlesolar"
	"github.com/smallbiznis/rooflens/internal/quota"
	"github.com/smallbiznis/rooflens/internal/reconciler"
	"github.com/smallbiznis/rooflens/internal/server"
	"github.com/smallbiznis/rooflens/internal/usage"
	"github.com/smallbiznis/rooflens/pkg/db"
	"go.uber.org/fx"
)

// The monolith: HTTP API plus the background reconciler in one process.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		usage.Module,
		quota.Module,
		googlesolar.Module,
		eagleview.Module,
		order.Module,
		estimator.Module,
		reconciler.Module,

		server.Module,
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
