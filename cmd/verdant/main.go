package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/smallbiznis/verdant/internal/bootstrap"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "verdant",
		Short:         "Normalize, link and allocate greenhouse gas inventories",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newImportCmd(),
		newAllocateCmd(),
		newApportionCmd(),
		newRelationsCmd(),
		newScheduleCmd(),
	)
	return root
}

// runTask starts the container with every domain module plus extra,
// populates targets and runs fn once before shutting the container down.
func runTask(ctx context.Context, extra fx.Option, fn func(context.Context) error, targets ...any) error {
	app := fx.New(
		fx.NopLogger,
		bootstrap.Infrastructure(3),
		bootstrap.Domains,
		extra,
		fx.Populate(targets...),
	)
	if err := app.Start(ctx); err != nil {
		return err
	}
	runErr := fn(ctx)

	stopCtx, cancel := context.WithTimeout(context.Background(), fx.DefaultTimeout)
	defer cancel()
	if err := app.Stop(stopCtx); err != nil && runErr == nil {
		return err
	}
	return runErr
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
