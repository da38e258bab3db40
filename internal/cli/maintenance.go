package cli

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/rshade/jsoncache/internal/config"
)

func newLsCmd(a *app) *cobra.Command {
	var long bool

	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List the keys stored under the current prefix",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			entries, err := a.cache.Entries()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, e := range entries {
				if !long {
					fmt.Fprintln(out, e.Key)
					continue
				}
				//nolint:gosec // sizes are non-negative
				fmt.Fprintf(out, "%-40s %10s  %s\n", e.Key, humanize.Bytes(uint64(e.Size)), humanize.Time(e.ModTime))
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&long, "long", "l", false, "show size and modification time")
	return cmd
}

// errClearAll is returned when clear would remove every entry in the
// directory without --all.
var errClearAll = errors.New("refusing to clear every entry in the directory without a prefix; pass --all")

func newClearCmd(a *app) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every entry under the current prefix",
		Long: "clear removes the entries whose file names start with the current prefix. " +
			"Entries of longer prefixes that start with it (prefix \"a\" and prefix \"ab\") are removed too. " +
			"With an empty prefix every entry in the directory matches, which requires --all.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cache.Config().Prefix == "" && !all {
				return errClearAll
			}
			removed, err := a.cache.Clear()
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d entries\n", removed)
			return err
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "allow clearing with an empty prefix")
	return cmd
}

func newPurgeCmd(a *app) *cobra.Command {
	var maxAge string

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove entries older than --max-age (or the configured max age)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			age, err := a.maxAge(maxAge)
			if err != nil {
				return err
			}
			if age < 0 {
				return errors.New("purge needs --max-age or a configured cache.max_age")
			}

			removed, err := a.cache.Purge(age)
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d entries\n", removed)
			return err
		},
	}

	cmd.Flags().StringVar(&maxAge, "max-age", "", `remove entries older than this, e.g. "1 d"`)
	return cmd
}

func newInitCmd(a *app) *cobra.Command {
	var gitignore bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the cache directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir := a.cache.Config().Directory
			if err := config.EnsureCacheDir(dir); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "cache directory: %s\n", dir)

			if !gitignore {
				return nil
			}
			created, err := config.EnsureGitignore(dir)
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintln(out, "created .gitignore")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&gitignore, "gitignore", false, "also write a .gitignore that excludes cache entries")
	return cmd
}
