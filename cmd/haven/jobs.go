package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one staging lifecycle sweep and print the counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := appFor(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.sweeper.Run(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(res)
	},
}

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Embed one batch of assets that have no embedding yet",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := appFor(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.backfill.Run(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(res)
	},
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
