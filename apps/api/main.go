package main

import (
	"github.com/smallbiznis/verdant/internal/bootstrap"
	"github.com/smallbiznis/verdant/internal/server"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		bootstrap.Infrastructure(1),
		bootstrap.Domains,
		server.Module,
	)
	app.Run()
}
