// Package engine is the thin seam to the on-device inference runtime. The
// download manager's only obligation to the engine is handing it a ready
// model's local path; Probe closes the loop by confirming such a path
// actually loads in ONNX Runtime.
package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	ort "github.com/shota3506/onnxruntime-purego/onnxruntime"
)

// ProbeOptions locates the ONNX Runtime shared library.
type ProbeOptions struct {
	// Library is the path to the ONNX Runtime shared library. Empty means
	// probing is unavailable on this install.
	Library string

	// APIVersion is the expected ORT C API version; 0 selects the
	// default.
	APIVersion uint32
}

// Available reports whether a probe can run at all.
func (o ProbeOptions) Available() bool { return o.Library != "" }

// FindNetworks returns the .onnx files reachable from a ready model's
// local path (the file itself for single-file models, a shallow directory
// scan for extracted bundles), sorted for deterministic probing.
func FindNetworks(localPath string) ([]string, error) {
	fi, err := os.Stat(localPath)
	if err != nil {
		return nil, fmt.Errorf("stat model path: %w", err)
	}

	if !fi.IsDir() {
		if strings.HasSuffix(localPath, ".onnx") {
			return []string{localPath}, nil
		}
		return nil, nil
	}

	entries, err := os.ReadDir(localPath)
	if err != nil {
		return nil, fmt.Errorf("read model dir: %w", err)
	}
	var nets []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".onnx") {
			nets = append(nets, filepath.Join(localPath, e.Name()))
		}
	}
	sort.Strings(nets)
	return nets, nil
}

// Probe opens and immediately closes an ORT session per network file
// under localPath, proving the downloaded artifact is loadable by the
// inference runtime.
func Probe(localPath string, opts ProbeOptions) error {
	if !opts.Available() {
		return fmt.Errorf("onnxruntime library not configured")
	}
	if opts.APIVersion == 0 {
		opts.APIVersion = 23
	}

	nets, err := FindNetworks(localPath)
	if err != nil {
		return err
	}
	if len(nets) == 0 {
		return fmt.Errorf("no .onnx networks under %s", localPath)
	}

	runtime, err := ort.NewRuntime(opts.Library, opts.APIVersion)
	if err != nil {
		return fmt.Errorf("initialize ONNX Runtime (lib=%q api=%d): %w", opts.Library, opts.APIVersion, err)
	}
	defer func() { _ = runtime.Close() }()

	env, err := runtime.NewEnv("speechmodels-probe", ort.LoggingLevelWarning)
	if err != nil {
		return fmt.Errorf("create ONNX Runtime env: %w", err)
	}
	defer env.Close()

	for _, net := range nets {
		s, err := runtime.NewSession(env, net, nil)
		if err != nil {
			return fmt.Errorf("load %s: %w", filepath.Base(net), err)
		}
		s.Close()
	}
	return nil
}
