package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/example/go-speech-models/internal/doctor"
	"github.com/example/go-speech-models/internal/engine"
	"github.com/example/go-speech-models/internal/extract"
	"github.com/example/go-speech-models/internal/model"
	"github.com/example/go-speech-models/internal/registry"
	"github.com/spf13/cobra"
)

func newDoctorCmd() *cobra.Command {
	var probeModel []string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the environment for model downloads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if n := len(probeModel); n != 0 && n != 2 {
				return fmt.Errorf("--probe takes <category>,<id>")
			}
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			dataDir, err := cfg.ResolveDataDir()
			if err != nil {
				return err
			}

			client := &registry.Client{
				BaseURL:    cfg.Registry.BaseURL,
				HTTPClient: http.DefaultClient,
			}
			res := doctor.Run(doctor.Config{
				DataDir: dataDir,
				RegistryReachable: func() error {
					ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
					defer cancel()
					return client.Ping(ctx, model.CategorySTT)
				},
				ExtractorAvailable: extract.New().Available(),
				ORTLibraryPath:     cfg.Runtime.ORTLibraryPath,
			}, os.Stdout)

			if len(probeModel) == 2 {
				if err := runDoctorProbe(cfg.Runtime.ORTLibraryPath, uint32(cfg.Runtime.ORTAPIVersion), probeModel[0], probeModel[1]); err != nil {
					res.AddFailure(err.Error())
					fmt.Printf("%s model probe: %v\n", doctor.FailMark, err)
				} else {
					fmt.Printf("%s model probe: %s/%s loads\n", doctor.PassMark, probeModel[0], probeModel[1])
				}
			}

			if res.Failed() {
				return fmt.Errorf("%d check(s) failed", len(res.Failures()))
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&probeModel, "probe", nil, "Probe a downloaded model: --probe <category>,<id>")

	return cmd
}

// runDoctorProbe loads a downloaded model into ONNX Runtime to confirm the
// artifacts are usable, not just present.
func runDoctorProbe(library string, apiVersion uint32, catArg, id string) error {
	cat, err := parseCategoryArg(catArg)
	if err != nil {
		return err
	}
	mgr, _, err := newManager()
	if err != nil {
		return err
	}
	path, ok := mgr.GetLocalPath(cat, id)
	if !ok {
		return fmt.Errorf("%w: %s/%s", model.ErrNotReady, cat, id)
	}
	return engine.Probe(path, engine.ProbeOptions{Library: library, APIVersion: apiVersion})
}
