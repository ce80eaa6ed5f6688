// Command lipr crawls the platform and rebuilds the package index.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/lippkg/lipr"
	"github.com/lippkg/lipr/client"
	"github.com/lippkg/lipr/internal/config"
	"github.com/lippkg/lipr/internal/forge"
	"github.com/lippkg/lipr/internal/index"
	"github.com/lippkg/lipr/internal/manifest"
)

var (
	configPath string
	verbose    bool
)

func main() {
	root := &cobra.Command{
		Use:           "lipr",
		Short:         "Package index crawler",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	crawl := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl the platform and rebuild the index",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawl(cmd.Context())
		},
	}
	root.AddCommand(crawl)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "lipr:", err)
		os.Exit(1)
	}
}

func runCrawl(ctx context.Context) error {
	// Missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	c := client.NewClient(
		client.WithAuthFunc(authFunc(cfg.Token)),
	)

	var migrator manifest.Migrator
	if len(cfg.MigrateCommand) > 0 {
		migrator, err = manifest.NewCommandMigrator(cfg.MigrateCommand)
		if err != nil {
			return err
		}
	}

	gh := forge.NewGitHub(c,
		forge.WithSearchLimiter(rate.NewLimiter(rate.Every(cfg.SearchInterval.Std()), 1)),
	)

	crawler := lipr.New(
		gh,
		migrator,
		index.NewWriter(cfg.Workspace, forge.Host),
		lipr.WithLogger(logger),
		lipr.WithRepoWorkers(cfg.RepoWorkers),
		lipr.WithVersionWorkers(cfg.VersionWorkers),
	)

	runCtx, cancel := context.WithTimeout(ctx, cfg.Timeout.Std())
	defer cancel()

	if _, err := crawler.Run(runCtx); err != nil {
		return err
	}
	return nil
}

// authFunc sends the bearer token to API calls only; raw content is
// public and the token must not leak to other hosts.
func authFunc(token string) func(url string) (string, string) {
	return func(url string) (string, string) {
		if token == "" {
			return "", ""
		}
		if strings.HasPrefix(url, forge.DefaultAPIURL) {
			return "Authorization", "Bearer " + token
		}
		return "", ""
	}
}
