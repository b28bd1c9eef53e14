package main

import (
	"fmt"

	"github.com/example/go-speech-models/internal/model"
	"github.com/spf13/cobra"
)

func newPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path <category> <id>",
		Short: "Print the local path of a ready model",
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
			path, ok := mgr.GetLocalPath(cat, id)
			if !ok {
				return fmt.Errorf("%w: %s/%s", model.ErrNotReady, cat, id)
			}
			fmt.Println(path)
			return nil
		},
	}
}
