package main

import (
	"errors"

	"github.com/spf13/cobra"
)

var (
	// errRecordFailures marks a run that finished with record-level errors
	errRecordFailures = errors.New("migration finished with errors")
	// errDriftDetected marks a verification that found count mismatches
	errDriftDetected = errors.New("drift detected between source and target")
)

type rootOptions struct {
	configFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "replication",
		Short: "MongoDB to PostgreSQL migration and dual-write replication",
		Long: `replication moves the legacy MongoDB collections into PostgreSQL.

  replication migrate             Backfill every target schema
  replication verify              Compare source and target counts
  replication serve               Mirror live writes and expose the admin API`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default is ./config/replication.yaml)")

	cmd.AddCommand(newMigrateCmd(opts))
	cmd.AddCommand(newVerifyCmd(opts))
	cmd.AddCommand(newServeCmd(opts))
	return cmd
}
