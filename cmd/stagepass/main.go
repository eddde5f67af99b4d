package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/stagepass/internal/scheduler"
	"github.com/smallbiznis/stagepass/internal/server"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		fx.Provide(RegisterSnowflake),
		server.Module,
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
