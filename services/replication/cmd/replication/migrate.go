package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/chetanchaudhari789/MOBO-sub000/pkg/logging"
	"github.com/chetanchaudhari789/MOBO-sub000/services/replication/domain/entity"
	"github.com/chetanchaudhari789/MOBO-sub000/services/replication/usecase"
)

type migrateOptions struct {
	dryRun bool
	verify bool
	force  bool
	target string
	types  []string
}

func newMigrateCmd(root *rootOptions) *cobra.Command {
	opts := &migrateOptions{}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Backfill the target schemas from MongoDB",
		Long: `Copies every entity type, parents first, into each target schema.

Completed entity types are skipped unless --force is given or the source
has grown. --verify migrates first and then compares source and target
counts; run "replication verify" to compare counts without migrating.
Exits non-zero when any record failed or, with --verify, when counts drift.`,
		Example: `  replication migrate --dry-run
  replication migrate --target tenant_a --types User,Wallet
  replication migrate --verify`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context(), root, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "transform every record without writing")
	cmd.Flags().BoolVar(&opts.verify, "verify", false, "migrate, then compare source and target counts")
	cmd.Flags().BoolVar(&opts.force, "force", false, "re-run entity types already marked completed")
	cmd.Flags().StringVar(&opts.target, "target", "all", "target name, comma separated names, or all")
	cmd.Flags().StringSliceVar(&opts.types, "types", nil, "entity types to migrate (default all)")
	return cmd
}

func runMigrate(ctx context.Context, root *rootOptions, opts *migrateOptions, out io.Writer) error {
	types, err := parseTypes(opts.types)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, root.configFile)
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))

	targets, err := a.migrationTargets(opts.target)
	if err != nil {
		return err
	}

	report := usecase.NewOrchestrator(targets, a.logger).Run(ctx, usecase.MigrationOptions{
		DryRun: opts.dryRun,
		Force:  opts.force,
		Types:  types,
	})
	usecase.PrintRunSummary(out, report)

	failed := report.HasErrors()

	if opts.verify && !opts.dryRun {
		drifted, err := verifyTargets(ctx, a, opts.target, types, out)
		if err != nil {
			return err
		}
		if drifted {
			return errDriftDetected
		}
	}

	if failed {
		return errRecordFailures
	}
	return nil
}

// verifyTargets prints drift for every selected target and reports whether
// any count mismatched. A target that cannot be opened counts as drift.
func verifyTargets(ctx context.Context, a *app, selector string, types []entity.EntityType, out io.Writer) (bool, error) {
	named, err := a.cfg.ResolveTargets(selector)
	if err != nil {
		return false, err
	}

	drifted := false
	for _, nt := range named {
		if ctx.Err() != nil {
			return drifted, ctx.Err()
		}

		stack, err := a.openTarget(ctx, nt)
		if err != nil {
			a.logger.Error("Cannot verify target", logging.String("target", nt.Name), logging.Err(err))
			drifted = true
			continue
		}

		reports, err := verifyStack(ctx, a, stack, types)
		stack.Close()
		if err != nil {
			a.logger.Error("Verification failed", logging.String("target", nt.Name), logging.Err(err))
			drifted = true
			continue
		}

		fmt.Fprintf(out, "\nVerification of schema %s\n", nt.Postgres.Schema)
		usecase.PrintDrift(out, reports)
		for _, r := range reports {
			if !r.Match {
				drifted = true
			}
		}
	}
	return drifted, nil
}

func verifyStack(ctx context.Context, a *app, stack *targetStack, types []entity.EntityType) ([]entity.DriftReport, error) {
	verifier := a.verifier(stack)
	if len(types) == 0 {
		return verifier.VerifyAll(ctx)
	}

	reports := make([]entity.DriftReport, 0, len(types))
	for _, t := range entity.OrderTypes(types) {
		report, err := verifier.Verify(ctx, t, nil)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}
