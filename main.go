package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/grrywlsn/retag/config"
	"github.com/grrywlsn/retag/httpcache"
	"github.com/grrywlsn/retag/library"
	"github.com/grrywlsn/retag/logging"
)

// Version information - set during build
var version = "dev"

// rootFlags holds the values of the root command's flags.
type rootFlags struct {
	configPath string
	source     string
	recursive  bool
	dryRun     bool
	jobs       int
	minTracks  int
	noCache    bool
	debug      bool
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:   "retag [DIRS...]",
		Short: "Fix track titles, numbers, album and artist of audio directories",
		Long: "retag infers track numbers and titles from the file names in each directory,\n" +
			"looks the album up in a release database and renames and retags the files.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          validateDirectories,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadWithOverrides(flags.configPath, flags.overrides(cmd))
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return err
			}

			app, err := NewApplication(cmd.Context(), cfg, logger, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				return fmt.Errorf("failed to create application: %w", err)
			}
			defer app.Close()

			summary, err := app.Run(cmd.Context(), args)
			if err != nil {
				return err
			}
			if summary.Failed > 0 {
				return fmt.Errorf("%d directories failed", summary.Failed)
			}
			return nil
		},
	}

	flags.bind(rootCmd)

	rootCmd.AddCommand(newCacheCommand(flags))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

func (f *rootFlags) bind(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	pf.StringVarP(&f.configPath, "config", "c", "", "Configuration file path (default $XDG_CONFIG_HOME/retag/config.toml)")
	pf.BoolVar(&f.debug, "debug", false, "Enable debug logging")

	fs := cmd.Flags()
	fs.BoolVarP(&f.recursive, "recursive", "r", false, "Also process every subdirectory")
	fs.BoolVarP(&f.dryRun, "dry", "d", false, "Only show what would change")
	fs.StringVar(&f.source, "source", "", "Release database: discogs, musicbrainz or spotify")
	fs.IntVar(&f.jobs, "jobs", 1, "Directories matched in parallel")
	fs.IntVar(&f.minTracks, "min-tracks", 2, "Skip directories with fewer audio files")
	fs.BoolVar(&f.noCache, "no-cache", false, "Bypass the HTTP response cache")
}

// overrides maps the flags the user actually set onto config keys, so unset
// flags never mask the file or environment.
func (f *rootFlags) overrides(cmd *cobra.Command) map[string]string {
	overrides := map[string]string{}
	changed := func(name string) bool {
		flag := cmd.Flags().Lookup(name)
		return flag != nil && flag.Changed
	}

	if changed("source") {
		overrides["RETAG_SOURCE"] = f.source
	}
	if changed("recursive") {
		overrides["RETAG_RECURSIVE"] = strconv.FormatBool(f.recursive)
	}
	if changed("dry") {
		overrides["RETAG_DRY_RUN"] = strconv.FormatBool(f.dryRun)
	}
	if changed("jobs") {
		overrides["RETAG_JOBS"] = strconv.Itoa(f.jobs)
	}
	if changed("min-tracks") {
		overrides["RETAG_MIN_TRACKS"] = strconv.Itoa(f.minTracks)
	}
	if changed("no-cache") {
		overrides["RETAG_CACHE_DISABLED"] = strconv.FormatBool(f.noCache)
	}
	if f.debug {
		overrides["RETAG_LOG_LEVEL"] = "debug"
	}
	return overrides
}

// validateDirectories requires at least one argument and reports every
// argument that is not an existing directory.
func validateDirectories(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return errors.New("at least one directory is required")
	}
	if missing := library.MissingDirectories(args); len(missing) > 0 {
		return fmt.Errorf("not a directory: %s", strings.Join(missing, ", "))
	}
	return nil
}

func newCacheCommand(flags *rootFlags) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the HTTP response cache",
	}

	cacheCmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every cached response",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cacheCfg, err := config.LoadCache(flags.configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			cache, err := httpcache.Open(cacheCfg.Dir, cacheCfg.TTLDuration())
			if err != nil {
				return err
			}
			defer cache.Close()

			removed, err := cache.Clear(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cached responses from %s\n", removed, cache.Path())
			return nil
		},
	})

	return cacheCmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "retag version %s\n", version)
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		stop()
		os.Exit(1)
	}
}
