package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/natserract/harmony/pkg/harmony"
	"github.com/spf13/cobra"
)

var createCmd = &cobra.Command{
	Use:   "create FILE",
	Short: "Create a profile record from a JSON file (- for stdin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		profile, err := readProfile(cmd, args[0])
		if err != nil {
			return err
		}
		return runRecord(cmd, func(ctx context.Context, h *harmony.Harmony) (*harmony.Result, error) {
			return h.CreateRecord(ctx, profile)
		})
	},
}

var updateCmd = &cobra.Command{
	Use:   "update FILE",
	Short: "Update the profile record named by the file's CustomerKey",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		profile, err := readProfile(cmd, args[0])
		if err != nil {
			return err
		}
		return runRecord(cmd, func(ctx context.Context, h *harmony.Harmony) (*harmony.Result, error) {
			return h.UpdateRecord(ctx, profile)
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete KEY",
	Short: "Delete the profile record with the given CustomerKey",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRecord(cmd, func(ctx context.Context, h *harmony.Harmony) (*harmony.Result, error) {
			return h.DeleteRecord(ctx, args[0])
		})
	},
}

var retrieveCmd = &cobra.Command{
	Use:   "retrieve KEY",
	Short: "Fetch the profile record with the given CustomerKey",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRecord(cmd, func(ctx context.Context, h *harmony.Harmony) (*harmony.Result, error) {
			return h.RetrieveRecord(ctx, args[0])
		})
	},
}

func runRecord(cmd *cobra.Command, op func(context.Context, *harmony.Harmony) (*harmony.Result, error)) error {
	return withStores(cmd, func(s *stores) error {
		h, err := s.newClient(cmd.Context())
		if err != nil {
			return err
		}
		res, err := op(cmd.Context(), h)
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(res.Data, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode response: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		fmt.Fprintf(cmd.ErrOrStderr(), "log #%d\n", res.LogID)
		return nil
	})
}

func openInput(cmd *cobra.Command, path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return f, nil
}

func readProfile(cmd *cobra.Command, path string) (harmony.Profile, error) {
	in, err := openInput(cmd, path)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	var profile harmony.Profile
	if err := json.NewDecoder(in).Decode(&profile); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}
	if profile == nil {
		return nil, fmt.Errorf("profile must be a JSON object")
	}
	return profile, nil
}

func init() {
	rootCmd.AddCommand(createCmd, updateCmd, deleteCmd, retrieveCmd)
}
