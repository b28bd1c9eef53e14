package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/go-speech-models/internal/engine"
	"github.com/example/go-speech-models/internal/manager"
	"github.com/example/go-speech-models/internal/model"
	"github.com/spf13/cobra"
)

func newDownloadCmd() *cobra.Command {
	var overwrite bool
	var maxRetries int
	var probe bool

	cmd := &cobra.Command{
		Use:   "download <category> <id>",
		Short: "Download, verify and install a model",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := parseCategoryArg(args[0])
			if err != nil {
				return err
			}
			id := args[1]

			mgr, cfg, err := newManager()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			res, err := mgr.Download(ctx, cat, id, manager.DownloadOptions{
				Overwrite:  overwrite,
				MaxRetries: maxRetries,
				OnProgress: printProgress,
			})
			fmt.Fprintln(os.Stderr)
			if errors.Is(err, context.Canceled) {
				// User-initiated cancellation is a normal outcome, not
				// an error worth a non-zero exit.
				fmt.Fprintln(os.Stderr, "download canceled")
				return nil
			}
			if err != nil {
				return err
			}

			fmt.Printf("installed %s at %s\n", res.ID, res.LocalPath)

			if probe {
				probeOpts := engine.ProbeOptions{
					Library:    cfg.Runtime.ORTLibraryPath,
					APIVersion: uint32(cfg.Runtime.ORTAPIVersion),
				}
				if err := engine.Probe(res.LocalPath, probeOpts); err != nil {
					return fmt.Errorf("model installed but failed to load: %w", err)
				}
				fmt.Println("probe passed: model loads in ONNX Runtime")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Re-download even when already installed")
	cmd.Flags().IntVar(&maxRetries, "max-retries", 0, "Max transient retries (0 = default, negative = none)")
	cmd.Flags().BoolVar(&probe, "probe", false, "After install, verify the model loads in ONNX Runtime")

	return cmd
}

// printProgress renders a single carriage-return progress line on stderr.
func printProgress(p model.Progress) {
	switch p.Phase {
	case manager.PhaseDownload:
		if p.Percent >= 0 {
			fmt.Fprintf(os.Stderr, "\rdownloading %5.1f%% (%d/%d bytes, %.0f KB/s)",
				p.Percent, p.BytesDownloaded, p.TotalBytes, p.Speed/1024)
		} else {
			fmt.Fprintf(os.Stderr, "\rdownloading %d bytes", p.BytesDownloaded)
		}
	case manager.PhaseVerify:
		fmt.Fprintf(os.Stderr, "\rverifying checksum...            ")
	case manager.PhaseExtract:
		fmt.Fprintf(os.Stderr, "\rextracting archive...            ")
	}
}
