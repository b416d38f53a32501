package usecase

import (
	"context"
	"time"

	"github.com/chetanchaudhari789/MOBO-sub000/pkg/logging"
	"github.com/chetanchaudhari789/MOBO-sub000/shared/types"
)

// MigrationTarget lazily opens the driver for one target schema. Open
// returns a release function that is called once the schema is done.
type MigrationTarget struct {
	Name string
	Open func(ctx context.Context) (*MigrationDriver, func(), error)
}

// RunReport aggregates the schema reports of one migration run
type RunReport struct {
	RunID     types.RunID     `json:"run_id"`
	StartedAt time.Time       `json:"started_at"`
	Duration  time.Duration   `json:"duration"`
	Schemas   []*SchemaReport `json:"schemas"`
}

// HasErrors reports whether any schema aborted or had record failures
func (r *RunReport) HasErrors() bool {
	for _, s := range r.Schemas {
		if s.HasErrors() {
			return true
		}
	}
	return false
}

// Orchestrator runs a migration against several target schemas in turn.
// A fatal error in one schema never stops the others.
type Orchestrator struct {
	targets []MigrationTarget
	logger  *logging.Logger
}

// NewOrchestrator creates a new Orchestrator
func NewOrchestrator(targets []MigrationTarget, logger *logging.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.Wrap(nil, "replication")
	}
	return &Orchestrator{
		targets: targets,
		logger:  logger.WithComponent("orchestrator"),
	}
}

// Run migrates every target sequentially
func (o *Orchestrator) Run(ctx context.Context, opts MigrationOptions) *RunReport {
	report := &RunReport{
		RunID:     types.NewRunID(),
		StartedAt: time.Now().UTC(),
	}
	logger := o.logger.WithFields(logging.String("run_id", report.RunID.String()))

	for _, target := range o.targets {
		if ctx.Err() != nil {
			break
		}
		report.Schemas = append(report.Schemas, o.runTarget(ctx, target, opts, logger))
	}

	report.Duration = time.Since(report.StartedAt)
	logger.Info("Migration run complete",
		logging.Int("schemas", len(report.Schemas)),
		logging.Bool("errors", report.HasErrors()),
		logging.Duration("duration", report.Duration),
	)
	return report
}

func (o *Orchestrator) runTarget(ctx context.Context, target MigrationTarget, opts MigrationOptions, logger *logging.Logger) *SchemaReport {
	logger = logger.WithSchema(target.Name)

	driver, release, err := target.Open(ctx)
	if err != nil {
		logger.Error("Failed to open target, skipping schema", logging.Err(err))
		return &SchemaReport{Schema: target.Name, DryRun: opts.DryRun, Fatal: err}
	}
	if release != nil {
		defer release()
	}

	report, err := driver.Run(ctx, opts)
	if err != nil {
		logger.Error("Schema migration stopped", logging.Err(err))
		if report.Fatal == nil {
			report.Fatal = err
		}
	}
	return report
}
