package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/warp/assignment-engine/factory"
	"github.com/warp/assignment-engine/generic"
)

func newPolicyCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Load, show or validate working-hours policy documents",
	}
	cmd.AddCommand(newPolicyLoadCmd(a), newPolicyShowCmd(a), newPolicyValidateCmd(a))
	return cmd
}

func newPolicyLoadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "load FILE",
		Short: "Validate a YAML/JSON policy file and store it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := factory.NewPolicyFactory()
			doc, err := f.ParseFile(args[0])
			if err != nil {
				return err
			}
			if err := f.Apply(cmd.Context(), a.store, doc); err != nil {
				return err
			}
			a.logger.Info("policy loaded", "file", args[0])

			p, err := a.service.Policy().Resolve(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "loaded %s: season %s, %s h/day, overtime cap %s h\n",
				args[0], p.Season, p.MaxDailyHours, p.MaxDailyOvertimeHours)
			return nil
		},
	}
}

func newPolicyShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the stored policy as YAML and the policy in force today",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := a.store.GetWorkingHoursConfig(ctx)
			if err != nil {
				return err
			}
			if cfg == nil {
				return generic.ErrConfigurationMissing
			}
			season, err := a.store.GetSeasonConfig(ctx)
			if err != nil {
				return err
			}

			f := factory.NewPolicyFactory()
			raw, err := f.ToYAML(&factory.PolicyDocument{WorkingHours: *cfg, Season: season})
			if err != nil {
				return err
			}
			fmt.Fprint(a.out, string(raw))

			p, err := a.service.Policy().Resolve(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "# in force: season %s, %s h/day, overtime cap %s h, work %s, lunch %s\n",
				p.Season, p.MaxDailyHours, p.MaxDailyOvertimeHours, p.Work, p.Lunch)
			return nil
		},
	}
}

func newPolicyValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE",
		Short: "Check a policy file without storing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := factory.NewPolicyFactory().ParseFile(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s: ok\n", args[0])
			return nil
		},
	}
}
