package main

import (
	"encoding/json"
	"os"

	"codeberg.org/mutker/syncinterval/internal/engine"
	"codeberg.org/mutker/syncinterval/internal/errors"
	"codeberg.org/mutker/syncinterval/internal/interval"
	"github.com/spf13/cobra"
)

func resolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve <dataType>",
		Short: "Resolve the next interval for a data type and print the decision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(cmd)
			if err != nil {
				return err
			}
			mgr, err := newEngine(cfg)
			if err != nil {
				return err
			}

			if err := importSnapshot(cmd, mgr); err != nil {
				return err
			}

			ctx := hintsFromFlags(cmd)
			ctx.RecentFailures, _ = cmd.Flags().GetUint("failures")
			d := mgr.ResolveInterval(args[0], ctx)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(d)
		},
	}
	addHintFlags(cmd)
	cmd.Flags().Uint("failures", 0, "Recent consecutive sync failures")
	return cmd
}

func addHintFlags(cmd *cobra.Command) {
	cmd.Flags().Float64("load", 0, "System load in [0,1]")
	cmd.Flags().String("criticality", "", "Patient criticality (low, medium, high)")
	cmd.Flags().String("urgency", "", "Urgency (routine, urgent, emergency)")
	cmd.Flags().Float64("size-mb", 0, "Payload size in megabytes")
	cmd.Flags().String("snapshot", "", "Configuration snapshot to resolve against")
}

func hintsFromFlags(cmd *cobra.Command) interval.Context {
	load, _ := cmd.Flags().GetFloat64("load")
	criticality, _ := cmd.Flags().GetString("criticality")
	urgency, _ := cmd.Flags().GetString("urgency")
	sizeMb, _ := cmd.Flags().GetFloat64("size-mb")

	return interval.Context{
		SystemLoad:         load,
		PatientCriticality: interval.ParseCriticality(criticality),
		Urgency:            interval.ParseUrgency(urgency),
		DataSizeMb:         sizeMb,
	}
}

func importSnapshot(cmd *cobra.Command, mgr *engine.Manager) error {
	path, _ := cmd.Flags().GetString("snapshot")
	if path == "" {
		return nil
	}
	blob, err := os.ReadFile(path)
	if err != nil {
		return errors.New().Wrap(errors.ErrReadConfig, err)
	}
	return mgr.ImportConfig(blob)
}
