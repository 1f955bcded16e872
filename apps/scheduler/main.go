package main

import (
	"github.com/smallbiznis/verdant/internal/bootstrap"
	"github.com/smallbiznis/verdant/internal/scheduler"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		bootstrap.Infrastructure(2),
		bootstrap.Domains,

		// No server module
		scheduler.Module,
	)
	app.Run()
}
