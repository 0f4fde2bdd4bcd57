package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/victornm/familytrip/internal/server"
	"github.com/victornm/familytrip/internal/storage/migrations"
)

func newServeCmd(load configLoader) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP, WebSocket and gRPC servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := load()
			if err != nil {
				return err
			}

			if migrate && c.Storage.Driver == server.DriverPostgres {
				if err := migrations.Run(cmd.Context(), c.PostgresDSN()); err != nil {
					return err
				}
			}

			shutdown := make(chan os.Signal, 1)
			signal.Notify(shutdown, syscall.SIGTERM, os.Interrupt)

			s, err := server.Init(c)
			if err != nil {
				return fmt.Errorf("init server: %w", err)
			}

			go s.Start()

			<-shutdown
			s.Shutdown()
			return nil
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", true, "apply pending Postgres migrations before starting")
	return cmd
}
