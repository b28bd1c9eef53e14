package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/example/go-speech-models/internal/config"
	"github.com/example/go-speech-models/internal/extract"
	"github.com/example/go-speech-models/internal/manager"
	"github.com/example/go-speech-models/internal/model"
	"github.com/example/go-speech-models/internal/registry"
	"github.com/example/go-speech-models/internal/store"
	"github.com/example/go-speech-models/internal/transport"
	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	activeCfg config.Config
	cfgLoaded bool
)

func NewRootCmd() *cobra.Command {
	defaults := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:           "speechmodels",
		Short:         "Manage on-device speech model downloads",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load(config.LoadOptions{
				Cmd:        cmd,
				ConfigFile: cfgFile,
				Defaults:   defaults,
			})
			if err != nil {
				return err
			}
			activeCfg = loaded
			cfgLoaded = true
			setupLogger(loaded.LogLevel)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Optional config file (yaml|toml|json)")
	config.RegisterFlags(cmd.PersistentFlags(), defaults)

	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newRefreshCmd())
	cmd.AddCommand(newDownloadCmd())
	cmd.AddCommand(newDeleteCmd())
	cmd.AddCommand(newPathCmd())
	cmd.AddCommand(newDoctorCmd())

	return cmd
}

// setupLogger configures the process-wide slog default logger.
func setupLogger(levelStr string) {
	var lvl slog.Level
	switch strings.ToLower(levelStr) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	h := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(h))
}

func requireConfig() (config.Config, error) {
	if !cfgLoaded {
		return config.Config{}, fmt.Errorf("configuration not loaded")
	}
	return activeCfg, nil
}

// newManager assembles the download manager from the active configuration.
func newManager() (*manager.Manager, config.Config, error) {
	cfg, err := requireConfig()
	if err != nil {
		return nil, config.Config{}, err
	}

	dataDir, err := cfg.ResolveDataDir()
	if err != nil {
		return nil, config.Config{}, err
	}

	client := &registry.Client{
		BaseURL:    cfg.Registry.BaseURL,
		HTTPClient: http.DefaultClient,
	}
	mgr := manager.New(manager.Options{
		Registry:   registry.NewStore(dataDir, client, slog.Default()),
		Fetcher:    &transport.Fetcher{IdleTimeout: cfg.IdleTimeout()},
		Extractor:  extract.New(),
		Store:      store.New(dataDir),
		Logger:     slog.Default(),
		CacheTTL:   cfg.CacheTTL(),
		MaxRetries: cfg.Download.MaxRetries,
	})
	return mgr, cfg, nil
}

func parseCategoryArg(arg string) (model.Category, error) {
	cat, err := model.ParseCategory(arg)
	if err != nil {
		return "", fmt.Errorf("%w (choose from: %s)", err, categoryList())
	}
	return cat, nil
}

func categoryList() string {
	cats := model.Categories()
	names := make([]string, len(cats))
	for i, c := range cats {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}
