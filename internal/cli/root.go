package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rshade/jsoncache/internal/config"
	"github.com/rshade/jsoncache/internal/logging"
	"github.com/rshade/jsoncache/pkg/cache"
)

// Exit codes returned by ExitCode.
const (
	ExitOK       = 0
	ExitError    = 1
	ExitNotFound = 2
)

// isTerminal checks if the given file is a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// rootFlags holds the persistent flags shared by every subcommand.
type rootFlags struct {
	dir        string
	prefix     string
	configPath string
	envFile    string
	debug      bool
}

// app is the state built once per invocation by the root PersistentPreRunE.
type app struct {
	flags     rootFlags
	cfg       *config.Config
	cache     *cache.FileCache
	logger    zerolog.Logger
	logResult *logging.LogPathResult
}

// NewRootCmd creates the root Cobra command for the jsoncache CLI.
// Configuration is resolved in order: defaults, config file, .env file and
// environment, then command-line flags.
func NewRootCmd(ver string) *cobra.Command {
	a := &app{logger: zerolog.Nop()}

	cmd := &cobra.Command{
		Use:           "jsoncache",
		Short:         "File-backed JSON cache with max-age expiry",
		Long:          "jsoncache stores JSON values as one file per key and memoizes command output.",
		Version:       ver,
		Example:       rootCmdExample,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			return a.logResult.Close()
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&a.flags.dir, "dir", "", "cache directory (overrides CACHE_DIR and config file)")
	pf.StringVar(&a.flags.prefix, "prefix", "", "key prefix (overrides CACHE_PREFIX and config file)")
	pf.StringVar(&a.flags.configPath, "config", "", "config file (default ~/.jsoncache/config.yaml)")
	pf.StringVar(&a.flags.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	pf.BoolVar(&a.flags.debug, "debug", false, "enable debug logging")

	cmd.AddCommand(
		newGetCmd(a), newPutCmd(a), newHasCmd(a), newDelCmd(a), newStatCmd(a),
		newLsCmd(a), newClearCmd(a), newPurgeCmd(a), newInitCmd(a),
		newRunCmd(a), newConfigCmd(a), newVersionCmd(ver),
	)
	return cmd
}

const rootCmdExample = `  # Store and read a value
  jsoncache put weather.oslo '{"temp": -3}'
  jsoncache get weather.oslo --max-age "15 minutes"

  # Project a field with a GJSON path
  jsoncache get weather.oslo --path temp

  # Memoize a command's JSON output for an hour
  jsoncache run gh-repos --max-age "1 h" -- gh api /user/repos

  # Remove entries older than a day
  jsoncache purge --max-age "1 d"`

// setup loads configuration, builds the logger and opens the cache.
func (a *app) setup(cmd *cobra.Command) error {
	flags := cmd.Flags()

	if err := config.LoadEnvFile(a.flags.envFile, flags.Changed("env-file")); err != nil {
		return err
	}

	path := a.flags.configPath
	required := flags.Changed("config")
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path, required)
	if err != nil {
		return err
	}

	if flags.Changed("dir") {
		cfg.Cache.Directory = a.flags.dir
	}
	if flags.Changed("prefix") {
		cfg.Cache.Prefix = a.flags.prefix
	}
	if a.flags.debug {
		cfg.Logging.Level = "debug"
		cfg.Logging.Format = logging.FormatConsole
		cfg.Logging.File = ""
		cfg.Logging.Caller = true
	}
	if err = cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.cfg = cfg

	a.setupLogging(cmd)
	a.cache = cache.New(cfg.CacheLocation(), cfg.CacheOptions(logging.ComponentLogger(a.logger, "cache"))...)

	a.logger.Debug().
		Ctx(cmd.Context()).
		Str("command", cmd.Name()).
		Str("directory", cfg.Cache.Directory).
		Str("prefix", cfg.Cache.Prefix).
		Msg("command started")
	return nil
}

// ExitCode maps an error returned by the root command to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, cache.ErrNotFound):
		return ExitNotFound
	default:
		return ExitError
	}
}
