package cmd

import (
	"fmt"
	"time"

	"github.com/natserract/harmony/pkg/bulk"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Create or update every profile in a JSON array file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, _ := cmd.Flags().GetString("mode")
		concurrency, _ := cmd.Flags().GetInt("concurrency")

		in, err := openInput(cmd, args[0])
		if err != nil {
			return err
		}
		defer in.Close()

		profiles, err := bulk.ReadProfiles(in)
		if err != nil {
			return err
		}

		return withStores(cmd, func(s *stores) error {
			h, err := s.newClient(cmd.Context())
			if err != nil {
				return err
			}

			importer := bulk.NewImporterWithLogger(h, concurrency, logger)
			report, err := importer.Import(cmd.Context(), profiles, bulk.Mode(mode))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, o := range report.Failures() {
				fmt.Fprintf(out, "  #%d %s: %v\n", o.Index, o.CustomerKey, o.Err)
			}
			fmt.Fprintf(out, "Import finished in %s: %d succeeded, %d failed\n",
				report.Duration.Round(time.Millisecond), report.Metrics.Succeeded, report.Metrics.Failed)

			if report.Metrics.Failed > 0 {
				return fmt.Errorf("%d of %d profiles failed", report.Metrics.Failed, report.Metrics.Total())
			}
			return nil
		})
	},
}

func init() {
	importCmd.Flags().String("mode", string(bulk.ModeCreate), "Operation for every profile (create, update)")
	importCmd.Flags().Int("concurrency", bulk.DefaultMaxConcurrency, "Profiles in flight at once")
	rootCmd.AddCommand(importCmd)
}
