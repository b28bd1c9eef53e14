package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/example/go-speech-models/internal/model"
	"github.com/example/go-speech-models/internal/registry"
	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	var refresh bool
	var downloadedOnly bool

	cmd := &cobra.Command{
		Use:   "list <category>",
		Short: "List models available for a category",
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

			var models []model.Meta
			switch {
			case downloadedOnly:
				models, err = mgr.ListDownloaded(cat)
				if err != nil {
					return err
				}
			case refresh:
				models, err = mgr.RefreshModels(cmd.Context(), cat, registry.RefreshOptions{TTL: cfg.CacheTTL()})
				if err != nil {
					return err
				}
			default:
				models = mgr.ListModels(cat)
			}

			if len(models) == 0 {
				fmt.Println("no models; try --refresh")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tLANGS\tQUANT\tSIZE\tSTATE")
			for _, m := range models {
				state := "-"
				if mgr.IsDownloaded(cat, m.ID) {
					state = "downloaded"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					m.ID, m.Subtype, strings.Join(m.Languages, ","), m.Quant, humanBytes(m.Bytes), state)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "Refresh the registry snapshot first (subject to TTL)")
	cmd.Flags().BoolVar(&downloadedOnly, "downloaded", false, "List only downloaded models")

	return cmd
}

func humanBytes(n int64) string {
	switch {
	case n <= 0:
		return "?"
	case n < 1<<20:
		return fmt.Sprintf("%d KB", n>>10)
	case n < 1<<30:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	default:
		return fmt.Sprintf("%.1f GB", float64(n)/(1<<30))
	}
}
