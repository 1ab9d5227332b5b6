package main

import (
	"context"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"codeberg.org/mutker/syncinterval/internal/errors"
	"codeberg.org/mutker/syncinterval/internal/interval"
	"codeberg.org/mutker/syncinterval/internal/logger"
	"codeberg.org/mutker/syncinterval/internal/scheduler"
	"github.com/spf13/cobra"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <dataType> -- <command> [args...]",
		Short: "Run a sync command repeatedly on the intervals resolved for a data type",
		Long: `Run executes command, then waits for the interval the engine resolves for
dataType before running it again. A non-zero exit counts as a failed sync and
lengthens the next interval; a success resets the backoff. Data types that
maintenance has suspended are rechecked every scheduler.suspend_recheck.`,
		Args: cobra.MinimumNArgs(2),
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

			count, _ := cmd.Flags().GetInt("count")
			hints := hintsFromFlags(cmd)

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			runner := scheduler.New(mgr, cfg.Scheduler, logger.Default().With("scheduler"))

			dataType, argv := args[0], args[1:]
			attempts := 0
			attempt := func(ctx context.Context) error {
				attempts++
				if count > 0 && attempts >= count {
					defer cancel()
				}
				return execSync(ctx, cmd, argv)
			}

			logger.Info().
				Str("data_type", dataType).
				Str("command", argv[0]).
				Msg("Starting sync loop")
			return runner.Run(ctx, dataType, attempt, func() interval.Context { return hints })
		},
	}
	addHintFlags(cmd)
	cmd.Flags().Int("count", 0, "Stop after this many attempts (0 runs until interrupted)")
	return cmd
}

func execSync(ctx context.Context, cmd *cobra.Command, argv []string) error {
	c := exec.CommandContext(ctx, argv[0], argv[1:]...)
	c.Stdout = cmd.OutOrStdout()
	c.Stderr = cmd.ErrOrStderr()
	if err := c.Run(); err != nil {
		return errors.New().Wrap(errors.ErrSyncFailed, err)
	}
	return nil
}
