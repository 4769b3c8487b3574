package cmd

import (
	"fmt"

	"github.com/natserract/harmony/pkg/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Save the HARMONY_* credentials from the environment into the settings store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		region, _ := cmd.Flags().GetString("region")

		return withStores(cmd, func(s *stores) error {
			env := config.FromEnv()
			delete(env, config.KeyAccessToken)
			delete(env, config.KeyTokenTimeout)
			if region != "" {
				env[config.KeyRegion] = region
			}

			stored, err := s.settings.Load(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to load settings: %w", err)
			}
			cfg, err := config.Load(config.Merge(stored, env))
			if err != nil {
				return err
			}

			if err := s.settings.Save(cmd.Context(), env); err != nil {
				return fmt.Errorf("failed to save settings: %w", err)
			}

			logger.Info("Settings saved",
				zap.String("region", cfg.Region),
				zap.String("token_url", cfg.TokenURL),
				zap.String("api_url", cfg.APIURL))
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %d settings (token host %s, API host %s)\n", len(env), cfg.TokenURL, cfg.APIURL)
			return nil
		})
	},
}

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Request a new access token to check the stored credentials",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStores(cmd, func(s *stores) error {
			h, err := s.newClient(cmd.Context())
			if err != nil {
				return err
			}
			rec, err := h.TestAPI(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Connection OK: %d %s (log #%d)\n", rec.StatusCode, rec.StatusMessage, rec.ID)
			return nil
		})
	},
}

func init() {
	configureCmd.Flags().String("region", "", "Region (eu selects the EU hosts, anything else the default hosts)")
	rootCmd.AddCommand(configureCmd)
	rootCmd.AddCommand(testCmd)
}
