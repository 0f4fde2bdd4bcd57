package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/victornm/familytrip/internal/server"
	"github.com/victornm/familytrip/internal/storage/migrations"
)

func newMigrateCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending Postgres migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := load()
			if err != nil {
				return err
			}

			if c.Storage.Driver != server.DriverPostgres {
				return fmt.Errorf("migrate: storage driver is %q, nothing to migrate", c.Storage.Driver)
			}

			return migrations.Run(cmd.Context(), c.PostgresDSN())
		},
	}
}
