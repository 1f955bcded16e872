package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/bwmarrin/snowflake"
	allocationdomain "github.com/smallbiznis/verdant/internal/allocation/domain"
	"github.com/smallbiznis/verdant/internal/bootstrap"
	"github.com/smallbiznis/verdant/internal/importer"
	"github.com/smallbiznis/verdant/internal/migration"
	organizationdomain "github.com/smallbiznis/verdant/internal/organization/domain"
	relationdomain "github.com/smallbiznis/verdant/internal/relation/domain"
	"github.com/smallbiznis/verdant/internal/scheduler"
	"github.com/smallbiznis/verdant/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func newServeCmd() *cobra.Command {
	var withScheduler bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := []fx.Option{
				bootstrap.Infrastructure(1),
				bootstrap.Domains,
				server.Module,
			}
			if withScheduler {
				opts = append(opts, scheduler.Module)
			}
			app := fx.New(opts...)
			app.Run()
			return app.Err()
		},
	}
	cmd.Flags().BoolVar(&withScheduler, "scheduler", false, "Also run the background scheduler in this process")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			var conn *gorm.DB
			return runTask(cmd.Context(), fx.Options(), func(context.Context) error {
				if err := migration.Migrate(conn); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
				return nil
			}, &conn)
		},
	}
}

func newImportCmd() *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "import <file>...",
		Short: "Import inventory, registry, report or region files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var svc *importer.Service
			return runTask(cmd.Context(), fx.Options(), func(ctx context.Context) error {
				var errs []error
				for _, path := range args {
					result, err := svc.ImportFile(ctx, path, kind)
					if err != nil {
						errs = append(errs, fmt.Errorf("%s: %w", path, err))
						continue
					}
					if err := printJSON(cmd, result); err != nil {
						return err
					}
				}
				return errors.Join(errs...)
			}, &svc)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "Import kind: gir4, gir1, ets, registry or region (detected from the file name when empty)")
	return cmd
}

func newAllocateCmd() *cobra.Command {
	var from, to int

	cmd := &cobra.Command{
		Use:   "allocate",
		Short: "Allocate category totals onto site relations for a range of years",
		RunE: func(cmd *cobra.Command, args []string) error {
			if to == 0 {
				to = from
			}
			var engine allocationdomain.Service
			return runTask(cmd.Context(), fx.Options(), func(ctx context.Context) error {
				reports, err := engine.RunRange(ctx, from, to)
				if printErr := printJSON(cmd, reports); printErr != nil {
					return printErr
				}
				return err
			}, &engine)
		},
	}
	cmd.Flags().IntVar(&from, "from", 0, "First year to allocate (required)")
	cmd.Flags().IntVar(&to, "to", 0, "Last year to allocate (defaults to --from)")
	_ = cmd.MarkFlagRequired("from")
	return cmd
}

func newApportionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "apportion <report.json>",
		Short: "Apportion an organization report across its sites",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var report organizationdomain.Report
			if err := json.Unmarshal(raw, &report); err != nil {
				return fmt.Errorf("decode report: %w", err)
			}

			var orgs organizationdomain.Service
			return runTask(cmd.Context(), fx.Options(), func(ctx context.Context) error {
				result, err := orgs.Apportion(ctx, report)
				if err != nil {
					return err
				}
				return printJSON(cmd, result)
			}, &orgs)
		},
	}
}

func newRelationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relations",
		Short: "Manage site category relations",
	}

	var siteID string
	var batch int
	rebuild := &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild relations for one site or every dirty site",
		RunE: func(cmd *cobra.Command, args []string) error {
			var relations relationdomain.Service
			return runTask(cmd.Context(), fx.Options(), func(ctx context.Context) error {
				if siteID != "" {
					id, err := snowflake.ParseString(siteID)
					if err != nil {
						return fmt.Errorf("invalid --site: %w", err)
					}
					n, err := relations.RebuildForSite(ctx, id)
					if err != nil {
						return err
					}
					return printJSON(cmd, relationdomain.RebuildResult{Sites: 1, Relations: n})
				}
				total := relationdomain.RebuildResult{}
				var errs []error
				for {
					res, err := relations.RebuildDirty(ctx, batch)
					total.Sites += res.Sites
					total.Relations += res.Relations
					total.Failed += res.Failed
					if err != nil {
						if ctxErr := ctx.Err(); ctxErr != nil {
							return ctxErr
						}
						errs = append(errs, err)
					}
					// failed sites stay dirty, so only a full batch of successes continues
					if res.Sites == 0 || res.Sites < batch {
						break
					}
				}
				if err := printJSON(cmd, total); err != nil {
					return err
				}
				return errors.Join(errs...)
			}, &relations)
		},
	}
	rebuild.Flags().StringVar(&siteID, "site", "", "Site id to rebuild")
	rebuild.Flags().IntVar(&batch, "batch", 100, "Dirty sites per batch")

	cmd.AddCommand(rebuild)
	return cmd
}

func newScheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run every scheduler job once",
		RunE: func(cmd *cobra.Command, args []string) error {
			var sched *scheduler.Scheduler
			return runTask(cmd.Context(), scheduler.Providers, func(ctx context.Context) error {
				return sched.RunOnce(ctx)
			}, &sched)
		},
	}
}
