package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var canvasCmd = &cobra.Command{
	Use:   "canvas",
	Short: "Inspect and maintain stored canvases",
}

var canvasListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored canvas ids",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := appFor(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ids, err := a.canvases.List(cmd.Context())
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		return nil
	},
}

var canvasShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a canvas graph as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := appFor(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		c, err := a.canvases.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(c.Snapshot())
	},
}

var canvasDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a stored canvas",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := appFor(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		return a.canvases.Delete(cmd.Context(), args[0])
	},
}

var canvasPurgeAssetCmd = &cobra.Command{
	Use:   "purge-asset <asset-id>",
	Short: "Remove every node that references an asset from all canvases",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := appFor(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.canvases.DeleteByAssetID(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("removed %d node(s)\n", n)
		return nil
	},
}

func appFor(cmd *cobra.Command) (*app, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return newApp(cmd.Context(), cfg, logger)
}

func init() {
	canvasCmd.AddCommand(canvasListCmd, canvasShowCmd, canvasDeleteCmd, canvasPurgeAssetCmd)
}
