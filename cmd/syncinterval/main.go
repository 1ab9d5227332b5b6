// Copyright © 2024 Mutker Telag <witty.text5011@fastmail.com>
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"os"

	"codeberg.org/mutker/syncinterval/internal/config"
	"codeberg.org/mutker/syncinterval/internal/engine"
	"codeberg.org/mutker/syncinterval/internal/errors"
	"codeberg.org/mutker/syncinterval/internal/logger"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "syncinterval",
		Short:         "Dynamic synchronization interval engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	config.BindFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(serveCmd(), resolveCmd(), runCmd(), exportCmd(), validateCmd())
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var appErr errors.Error
		if errors.As(err, &appErr) {
			logger.ErrorWithCode(appErr).Msg("Command failed")
		} else {
			logger.Error().Err(err).Msg("Command failed")
		}
		os.Exit(1)
	}
}

// setup loads configuration and initializes the package logger on stderr,
// keeping stdout free for command output.
func setup(cmd *cobra.Command) (*config.Config, error) {
	// Log load failures even before the configured level is known.
	logger.InitWithWriter(os.Stderr, logger.InfoLevel, logger.IsService())

	cfg, err := config.Load(config.WithFlags(cmd.Flags()))
	if err != nil {
		return nil, err
	}

	logger.InitWithWriter(os.Stderr, cfg.Level(), logger.IsService())
	logger.Debug().Msg("Config loaded")
	return cfg, nil
}

func newEngine(cfg *config.Config, opts ...engine.Option) (*engine.Manager, error) {
	ec, err := cfg.EngineConfig()
	if err != nil {
		return nil, err
	}
	opts = append([]engine.Option{engine.WithLogger(logger.Default().With("engine"))}, opts...)
	return engine.New(ec, opts...)
}
