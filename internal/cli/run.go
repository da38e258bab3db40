package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/rshade/jsoncache/internal/logging"
	"github.com/rshade/jsoncache/pkg/cache"
)

// errRunUsage is returned when run is not given KEY -- COMMAND.
var errRunUsage = errors.New("usage: jsoncache run KEY [flags] -- COMMAND [ARGS...]")

func newRunCmd(a *app) *cobra.Command {
	var (
		maxAge  string
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "run KEY -- COMMAND [ARGS...]",
		Short: "Print COMMAND's JSON output, served from the cache while fresh",
		Long: "run memoizes a command whose stdout is JSON. On a hit the command is not started; " +
			"on a miss it runs once and its output is stored under KEY.",
		Args: cobra.MinimumNArgs(2), //nolint:mnd // KEY and COMMAND
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.ArgsLenAtDash() != 1 {
				return errRunUsage
			}
			key, command := args[0], args[1:]

			age, err := a.maxAge(maxAge)
			if err != nil {
				return err
			}

			var opts []cache.CallOption
			if verbose {
				opts = append(opts, cache.Verbose())
			}

			producer := func(ctx context.Context) (json.RawMessage, error) {
				return runJSONCommand(ctx, cmd, command)
			}
			res, err := cache.WithCache(cmd.Context(), a.cache, key, producer, age, opts...)
			if err != nil {
				return err
			}

			if verbose {
				state := "miss"
				if res.FromCache {
					state = "hit"
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "cache %s for %s, took %s\n", state, key, cache.FormatDuration(res.Elapsed))
			}
			return writeJSON(cmd.OutOrStdout(), res.Value)
		},
	}

	cmd.Flags().StringVar(&maxAge, "max-age", "", `reuse output younger than this, e.g. "1 h" (default: configured max age)`)
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "report cache hit or miss on stderr")
	return cmd
}

// runJSONCommand runs command and returns its stdout, which must be JSON.
// The command's stderr is passed through.
func runJSONCommand(ctx context.Context, cmd *cobra.Command, command []string) (json.RawMessage, error) {
	logger := logging.FromContext(ctx)
	logger.Debug().Ctx(ctx).Strs("command", command).Msg("running command")

	//nolint:gosec // running the user's command is the purpose of run
	c := exec.CommandContext(ctx, command[0], command[1:]...)
	c.Stdin = cmd.InOrStdin()
	c.Stderr = cmd.ErrOrStderr()

	out, err := c.Output()
	if err != nil {
		return nil, fmt.Errorf("running %s: %w", command[0], err)
	}
	out = bytes.TrimSpace(out)
	logger.Debug().Ctx(ctx).Str("command", command[0]).Int("bytes", len(out)).Msg("command finished")
	if !json.Valid(out) {
		return nil, fmt.Errorf("output of %s is not valid JSON", command[0])
	}
	return json.RawMessage(out), nil
}
