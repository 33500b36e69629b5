package main

import (
	"github.com/spf13/cobra"

	"github.com/iota-uz/identity-sync/migrations"
	"github.com/iota-uz/identity-sync/pkg/configuration"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := configuration.Load([]string{".env", ".env.local"})
			if err != nil {
				return withCode(exitUsage, err)
			}
			if err := migrations.Up(cmd.Context(), conf.Database.Opts, conf.Logger().WithField("command", "migrate")); err != nil {
				return withCode(exitDB, err)
			}
			return nil
		},
	}
}
