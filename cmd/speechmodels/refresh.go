package main

import (
	"fmt"

	"github.com/example/go-speech-models/internal/registry"
	"github.com/spf13/cobra"
)

func newRefreshCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "refresh <category>",
		Short: "Refresh the registry snapshot for a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := parseCategoryArg(args[0])
			if err != nil {
				return err
			}

			mgr, cfg, err := newManager()
			if err != nil {
				return err
			}

			models, err := mgr.RefreshModels(cmd.Context(), cat, registry.RefreshOptions{
				Force: force,
				TTL:   cfg.CacheTTL(),
			})
			if err != nil {
				return err
			}
			fmt.Printf("%d models in %s registry\n", len(models), cat)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Bypass the snapshot TTL")

	return cmd
}
