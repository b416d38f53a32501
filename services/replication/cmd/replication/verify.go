package main

import (
	"context"
	"io"

	"github.com/spf13/cobra"
)

type verifyOptions struct {
	target string
	types  []string
}

func newVerifyCmd(root *rootOptions) *cobra.Command {
	opts := &verifyOptions{}

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Compare source and target record counts",
		Long:  `Counts every entity type in MongoDB and in each target schema. Exits non-zero on drift.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd.Context(), root, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.target, "target", "all", "target name, comma separated names, or all")
	cmd.Flags().StringSliceVar(&opts.types, "types", nil, "entity types to verify (default all)")
	return cmd
}

func runVerify(ctx context.Context, root *rootOptions, opts *verifyOptions, out io.Writer) error {
	types, err := parseTypes(opts.types)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, root.configFile)
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))

	drifted, err := verifyTargets(ctx, a, opts.target, types, out)
	if err != nil {
		return err
	}
	if drifted {
		return errDriftDetected
	}
	return nil
}
