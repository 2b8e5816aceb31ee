package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/waabox/commitwatch/internal/config"
	"github.com/waabox/commitwatch/internal/domain"
	"github.com/waabox/commitwatch/internal/filter"
	"github.com/waabox/commitwatch/internal/logging"
	"github.com/waabox/commitwatch/internal/notify"
	"github.com/waabox/commitwatch/internal/provider"
	githubprovider "github.com/waabox/commitwatch/internal/provider/github"
	gitlabprovider "github.com/waabox/commitwatch/internal/provider/gitlab"
	"github.com/waabox/commitwatch/internal/state"
	"github.com/waabox/commitwatch/internal/watcher"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "commitwatch",
		Short: "Post new commits of watched repositories to a chat webhook",
		Long: `commitwatch polls the branches of the configured repositories and posts
every new commit to a Discord or Slack compatible webhook. It remembers the
last notified commit of each branch so restarts never repeat a notification.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath, false)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "",
		"path to the TOML config file (default $COMMITWATCH_CONFIG or ~/.config/commitwatch/config.toml)")

	var once bool
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Watch the configured repositories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath, once)
		},
	}
	runCmd.Flags().BoolVar(&once, "once", false, "run a single poll cycle and exit")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "commitwatch", version)
		},
	}

	root.AddCommand(runCmd, versionCmd)
	return root
}

// run wires configuration into a Watcher and drives it until ctx is cancelled,
// or for a single cycle when once is set.
func run(ctx context.Context, configPath string, once bool) error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}
	if configPath == "" {
		configPath = os.Getenv("COMMITWATCH_CONFIG")
	}
	if configPath == "" {
		configPath = config.DefaultConfigPath()
	}

	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	log, err := logging.New("commitwatch", cfg.LogLevelOrDefault(), cfg.LogTimezoneOrDefault())
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	defer func() { _ = log.Sync() }()

	targets, err := cfg.Targets()
	if err != nil {
		return err
	}
	registry, err := newRegistry(cfg)
	if err != nil {
		return err
	}
	if err := registry.Check(targets); err != nil {
		return fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}

	store, closeStore, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	rules := filter.ParseRules(cfg.BranchBlacklist)
	for _, r := range rules {
		log.Debugw("branch block rule loaded", "rule", r.String())
	}

	w := watcher.New(watcher.Options{
		Targets:        targets,
		Rules:          rules,
		Interval:       cfg.PollInterval(),
		RequestTimeout: cfg.RequestTimeout(),
	},
		provider.NewClient(registry, provider.Backfill(cfg.BaselineOrDefault()), cfg.MaxScanCommits, log),
		notify.NewFormatter(),
		notify.NewWebhook(cfg.Webhook.URL, notify.Flavor(cfg.WebhookFormatOrDefault()), cfg.RequestTimeout()),
		store,
		log,
	)

	if once {
		_, err = w.RunCycle(ctx)
	} else {
		err = w.Run(ctx)
	}
	if err != nil {
		log.Errorw("commitwatch stopped", "error", err)
	}
	return err
}

// newRegistry registers the GitHub adapter for github.com and the GitLab
// adapter for gitlab.com, plus the hosts of any configured custom instances.
func newRegistry(cfg config.Config) (*provider.Registry, error) {
	registry := provider.NewRegistry()

	gh, err := githubprovider.NewAdapter(cfg.GitHub.Token, cfg.GitHub.BaseURL, cfg.RequestTimeout())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	registry.Register(domain.DefaultHost, gh)
	if host := hostOf(cfg.GitHub.BaseURL); host != "" && host != "api.github.com" {
		registry.Register(host, gh)
	}

	gl := gitlabprovider.NewAdapter(cfg.GitLab.Token, cfg.GitLab.URL, cfg.RequestTimeout())
	registry.Register("gitlab.com", gl)
	if host := hostOf(cfg.GitLab.URL); host != "" {
		registry.Register(host, gl)
	}
	return registry, nil
}

// openStore returns the configured watermark store and its release function.
func openStore(cfg config.Config, log *zap.SugaredLogger) (watcher.WatermarkStore, func(), error) {
	path := cfg.StatePathOrDefault()
	switch cfg.StateBackendOrDefault() {
	case "bolt":
		store, err := state.OpenBoltStore(path, log)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {
			if err := store.Close(); err != nil {
				log.Warnw("closing state database", "error", err)
			}
		}, nil
	case "file":
		return state.NewFileStore(path, log), func() {}, nil
	default:
		return nil, nil, errors.New("unknown state backend " + cfg.StateBackendOrDefault())
	}
}

func hostOf(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}
