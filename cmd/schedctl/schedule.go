package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/warp/assignment-engine/assignment"
	"github.com/warp/assignment-engine/generic"
)

// =============================================================================
// simulate
// =============================================================================

type generatedBlock struct {
	Date          generic.Date      `json:"date"`
	StartTime     generic.ClockTime `json:"start_time"`
	EndTime       generic.ClockTime `json:"end_time"`
	DurationHours decimal.Decimal   `json:"duration_hours"`
	Mode          generic.Mode      `json:"mode"`
}

func newSimulateCmd(a *app) *cobra.Command {
	var (
		projectID string
		userID    string
		byUserID  string
		start     string
		hours     string
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Propose cascade blocks for a number of hours",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			startDate, err := generic.ParseDate(start)
			if err != nil {
				return err
			}
			total, err := decimal.NewFromString(hours)
			if err != nil {
				return fmt.Errorf("%w: hours %q", generic.ErrInvalidInput, hours)
			}
			if byUserID == "" {
				byUserID = userID
			}

			res, err := a.service.SimulateCascade(cmd.Context(), assignment.CascadeInput{
				ProjectID:      projectID,
				UserID:         userID,
				AssignByUserID: byUserID,
				StartDate:      startDate,
				TotalHours:     total,
			})
			if err != nil {
				return err
			}
			if asJSON {
				out := make([]generatedBlock, len(res.GeneratedTimeBlocks))
				for i, b := range res.GeneratedTimeBlocks {
					out[i] = generatedBlock{Date: b.Date, StartTime: b.Start, EndTime: b.End, DurationHours: b.DurationHours, Mode: b.Mode}
				}
				return writeJSON(a.out, out)
			}

			tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "DATE\tDAY\tSTART\tEND\tHOURS")
			for _, b := range res.GeneratedTimeBlocks {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", b.Date, b.Date.Weekday().String()[:3], b.Start, b.End, b.DurationHours)
			}
			fmt.Fprintf(tw, "\t\t\tTOTAL\t%s\n", res.TotalHours())
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVar(&byUserID, "by", "", "assigning user id (default: --user)")
	cmd.Flags().StringVar(&start, "start", "", "first day, YYYY-MM-DD")
	cmd.Flags().StringVar(&hours, "hours", "", "total hours to place")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	for _, name := range []string{"project", "user", "start", "hours"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

// =============================================================================
// utilization
// =============================================================================

func newUtilizationCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "utilization USER_ID",
		Short: "Booked share of the next 60 days for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pct, err := a.service.UtilizationPercentage(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s: %.2f%%\n", args[0], pct)
			return nil
		},
	}
}

// =============================================================================
// blocks
// =============================================================================

func newBlocksCmd(a *app) *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "blocks USER_ID",
		Short: "List a user's active blocks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fromDate := generic.DateOf(a.now())
			if from != "" {
				d, err := generic.ParseDate(from)
				if err != nil {
					return err
				}
				fromDate = d
			}
			var toDate generic.Date
			if to != "" {
				d, err := generic.ParseDate(to)
				if err != nil {
					return err
				}
				toDate = d
			}

			blocks, err := a.service.ListTimeBlocks(cmd.Context(), args[0], fromDate, toDate)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tDATE\tSTART\tEND\tHOURS\tPROJECT\tMODE")
			for _, b := range blocks {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
					b.ID, b.Date, b.Start, b.End, b.DurationHours, b.ProjectName, b.Mode)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first day, YYYY-MM-DD (default: today)")
	cmd.Flags().StringVar(&to, "to", "", "last day, YYYY-MM-DD (default: open)")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
