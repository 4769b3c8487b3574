package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "List API call log entries, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		page, _ := cmd.Flags().GetInt("page")

		return withStores(cmd, func(s *stores) error {
			result, err := s.calls.List(cmd.Context(), page)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tMETHOD\tSTATUS\tMESSAGE\tENDPOINT\tCREATED")
			for _, rec := range result.Items {
				fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\t%s\n",
					rec.ID, rec.Method, rec.StatusCode, rec.StatusMessage, rec.Endpoint,
					rec.CreatedAt.Local().Format("2006-01-02 15:04:05"))
			}
			if err := w.Flush(); err != nil {
				return err
			}

			pages := (result.Total + int64(result.PageSize) - 1) / int64(result.PageSize)
			fmt.Fprintf(cmd.OutOrStdout(), "Page %d of %d (%d entries)\n", result.Page, max(pages, 1), result.Total)
			return nil
		})
	},
}

var logsShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show one call log entry with headers, request and response",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid log id %q", args[0])
		}

		return withStores(cmd, func(s *stores) error {
			rec, err := s.calls.Get(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("log #%d: %w", id, err)
			}
			out, err := json.MarshalIndent(rec, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		})
	},
}

var logsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every call log entry",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStores(cmd, func(s *stores) error {
			n, err := s.calls.Clear(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d log entries\n", n)
			return nil
		})
	},
}

func init() {
	logsCmd.Flags().Int("page", 1, "Page number (20 entries per page)")
	logsCmd.AddCommand(logsShowCmd, logsClearCmd)
	rootCmd.AddCommand(logsCmd)
}
