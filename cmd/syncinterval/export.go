package main

import (
	"fmt"
	"os"

	"codeberg.org/mutker/syncinterval/internal/engine"
	"codeberg.org/mutker/syncinterval/internal/errors"
	"github.com/spf13/cobra"
)

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Print the configured policies and data type mapping as a snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := setup(cmd)
			if err != nil {
				return err
			}
			mgr, err := newEngine(cfg)
			if err != nil {
				return err
			}
			blob, err := mgr.ExportConfig()
			if err != nil {
				return err
			}

			output, _ := cmd.Flags().GetString("output")
			if output == "" {
				_, err = cmd.OutOrStdout().Write(append(blob, '\n'))
				return err
			}
			if err := os.WriteFile(output, blob, 0o644); err != nil {
				return errors.New().Wrap(errors.ErrEncodeConfig, err)
			}
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", "", "Write the snapshot to a file instead of stdout")
	return cmd
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a configuration snapshot without applying it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := setup(cmd); err != nil {
				return err
			}
			blob, err := os.ReadFile(args[0])
			if err != nil {
				return errors.New().Wrap(errors.ErrReadConfig, err)
			}
			if err := engine.ValidateConfig(blob); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "valid")
			return nil
		},
	}
}
