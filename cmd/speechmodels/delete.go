package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <category> <id>",
		Short: "Remove a downloaded model from local storage",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := parseCategoryArg(args[0])
			if err != nil {
				return err
			}
			id := args[1]

			mgr, _, err := newManager()
			if err != nil {
				return err
			}
			if err := mgr.Delete(cat, id); err != nil {
				return err
			}
			fmt.Printf("deleted %s/%s\n", cat, id)
			return nil
		},
	}
}
