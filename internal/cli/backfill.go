package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/victornm/familytrip/internal/server"
)

func newBackfillCmd(load configLoader) *cobra.Command {
	var operator int

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Give retroactive points to legacy diary posts and quiz answers",
		Long: "Scores diary posts that have no points by their author's daily rank and credits " +
			"correct quiz answers recorded before scoring. Safe to run again.",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := load()
			if err != nil {
				return err
			}

			s, err := server.Init(c)
			if err != nil {
				return fmt.Errorf("init server: %w", err)
			}
			defer s.Close()

			report, err := s.Backfill(cmd.Context(), operator)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}

	cmd.Flags().IntVar(&operator, "operator", -1, "family index of the operator running the job")
	_ = cmd.MarkFlagRequired("operator")
	return cmd
}
