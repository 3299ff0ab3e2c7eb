package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/keyrelay/internal/server/models"
	"github.com/spf13/cobra"
)

func (a *app) keysCmd() *cobra.Command {
	keys := &cobra.Command{
		Use:   "keys",
		Short: "Manage and fetch pre-key bundles",
	}

	var threshold int
	check := &cobra.Command{
		Use:   "check",
		Short: "Report whether more one-time pre-keys should be uploaded",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.api.Check(cmd.Context(), threshold)
			if err != nil {
				return err
			}
			return printJSON(a.out, res)
		},
	}
	check.Flags().IntVar(&threshold, "threshold", 0, "minimum available pre-keys (0 = server default)")

	keys.AddCommand(
		&cobra.Command{
			Use:   "stats",
			Short: "Show your pre-key inventory",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				st, err := a.api.Stats(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(a.out, st)
			},
		},
		check,
		&cobra.Command{
			Use:   "fetch <user>",
			Short: "Fetch a key bundle for <user>, consuming one one-time pre-key",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				b, err := a.api.FetchBundle(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(a.out, b)
			},
		},
		&cobra.Command{
			Use:   "upload <file>",
			Short: "Publish the key bundle stored as JSON in <file>",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				data, err := os.ReadFile(args[0])
				if err != nil {
					return err
				}
				var b models.UploadBundle
				if err := json.Unmarshal(data, &b); err != nil {
					return fmt.Errorf("parse %s: %w", args[0], err)
				}
				if err := a.api.UploadBundle(cmd.Context(), &b); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "uploaded bundle with %d one-time pre-keys\n", len(b.OneTimePreKeys))
				return nil
			},
		},
	)
	return keys
}
