package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/warp/assignment-engine/api"
)

func newSeedCmd(a *app) *cobra.Command {
	var list bool
	cmd := &cobra.Command{
		Use:   "seed [SCENARIO]",
		Short: "Reset the database and load a demo scenario (default: empty-week)",
		Long: `seed wipes every record and loads one of the demo scenarios used by
POST /api/scenarios/load. Dates are relative to the next Monday.

Scenarios: ` + strings.Join(api.ScenarioIDs(), ", "),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if list {
				for _, id := range api.ScenarioIDs() {
					fmt.Fprintln(a.out, id)
				}
				return nil
			}

			scenario := "empty-week"
			if len(args) == 1 {
				scenario = args[0]
			}

			h := api.NewHandler(a.store, a.service, a.logger)
			h.Now = a.now
			if err := h.Load(cmd.Context(), scenario); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "loaded scenario %s\n", scenario)
			return nil
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "list scenarios and exit")
	return cmd
}
