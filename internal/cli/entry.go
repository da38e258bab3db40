package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/rshade/jsoncache/internal/config"
	"github.com/rshade/jsoncache/pkg/cache"
)

// maxAge resolves a --max-age flag, falling back to the configured default.
func (a *app) maxAge(flag string) (time.Duration, error) {
	if flag == "" {
		return a.cfg.Cache.MaxAge.Duration, nil
	}
	d, err := config.ParseMaxAge(flag)
	if err != nil {
		return 0, fmt.Errorf("invalid --max-age: %w", err)
	}
	return d, nil
}

// writeJSON prints raw JSON, indented when w is a terminal.
func writeJSON(w io.Writer, raw []byte) error {
	if f, ok := w.(*os.File); ok && isTerminal(f) {
		var buf bytes.Buffer
		if err := json.Indent(&buf, raw, "", "  "); err == nil {
			raw = buf.Bytes()
		}
	}
	_, err := fmt.Fprintf(w, "%s\n", raw)
	return err
}

func newGetCmd(a *app) *cobra.Command {
	var maxAge, path string

	cmd := &cobra.Command{
		Use:   "get KEY",
		Short: "Print the cached JSON for KEY",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			age, err := a.maxAge(maxAge)
			if err != nil {
				return err
			}

			raw, ok, err := a.cache.GetRaw(key, age)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: %s", cache.ErrNotFound, key)
			}

			if path != "" {
				res := gjson.GetBytes(raw, path)
				if !res.Exists() {
					return fmt.Errorf("path %q not found in entry %s", path, key)
				}
				raw = json.RawMessage(res.Raw)
			}
			return writeJSON(cmd.OutOrStdout(), raw)
		},
	}

	cmd.Flags().StringVar(&maxAge, "max-age", "", `maximum entry age, e.g. "15 minutes" or 60000 (ms)`)
	cmd.Flags().StringVar(&path, "path", "", "GJSON path to print instead of the whole value")
	return cmd
}

func newPutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "put KEY [JSON|-]",
		Short: "Store a JSON value under KEY (reads stdin when JSON is omitted or -)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]

			var data []byte
			if len(args) == 2 && args[1] != "-" {
				data = []byte(args[1])
			} else {
				var err error
				if data, err = io.ReadAll(cmd.InOrStdin()); err != nil {
					return fmt.Errorf("reading stdin: %w", err)
				}
			}
			data = bytes.TrimSpace(data)
			if !json.Valid(data) {
				return fmt.Errorf("value for %s is not valid JSON", key)
			}

			if err := a.cache.Put(key, json.RawMessage(data)); err != nil {
				return err
			}
			a.logger.Debug().Ctx(cmd.Context()).Str("key", key).Int("bytes", len(data)).Msg("stored entry")
			return nil
		},
	}
}

func newHasCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "has KEY",
		Short: "Print whether an entry exists for KEY",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := a.cache.Has(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), ok)
			return err
		},
	}
}

func newDelCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "del KEY...",
		Aliases: []string{"rm"},
		Short:   "Delete the entries for the given keys",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			for _, key := range args {
				if err := a.cache.Delete(key); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newStatCmd(a *app) *cobra.Command {
	var maxAge string

	cmd := &cobra.Command{
		Use:   "stat KEY",
		Short: "Describe the entry for KEY",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			age, err := a.maxAge(maxAge)
			if err != nil {
				return err
			}

			info, ok, err := a.cache.Stat(key)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: %s", cache.ErrNotFound, key)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "key:      %s\n", info.Key)
			fmt.Fprintf(out, "path:     %s\n", info.Path)
			fmt.Fprintf(out, "size:     %s\n", humanize.Bytes(uint64(info.Size))) //nolint:gosec // sizes are non-negative
			fmt.Fprintf(out, "modified: %s (%s)\n", info.ModTime.Format(time.RFC3339), humanize.Time(info.ModTime))
			fmt.Fprintf(out, "age:      %s\n", cache.FormatDuration(info.Age))
			if age >= 0 {
				fmt.Fprintf(out, "fresh:    %t\n", info.Age <= age)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&maxAge, "max-age", "", "report freshness against this max age")
	return cmd
}
