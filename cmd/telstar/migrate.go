package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Nityam-7/TELSTAR/config"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending store migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath, envFiles...)
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Log, os.Stderr)

			s, err := openStore(cmd.Context(), cfg.Store)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			if err := s.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrate %s store: %w", cfg.Store.Driver, err)
			}
			logger.Info("migrations applied", "store", cfg.Store.Driver)
			return nil
		},
	}
}
