// Package main is the entry point for gridcachectl, a CLI that drives
// an in-process engine.Engine the same way a local operator would poke
// at a single cache node: put/get/remove/stats against its keyspace,
// plus a wal-compact verb against the WAL segment index.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/vitaliisemenov/gridcache/gridconfig"
	"github.com/vitaliisemenov/gridcache/internal/engine"
	"github.com/vitaliisemenov/gridcache/internal/obslog"
	"github.com/vitaliisemenov/gridcache/internal/wal/migrations"
)

// CLI bundles the root command's shared state: the loaded config and
// logger. eng is never set; every data-plane verb opens its own engine
// through withEngine.
type CLI struct {
	configPath string
	cfg        *gridconfig.Config
	logger     *slog.Logger
	eng        *engine.Engine
}

// NewCLI constructs an unopened CLI; the root command's PersistentPreRunE
// loads config once cobra has parsed the --config flag, and each verb
// opens and closes its own engine.
func NewCLI() *CLI {
	return &CLI{}
}

// GetRootCommand returns the root cobra.Command with every subcommand
// attached.
func (c *CLI) GetRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "gridcachectl",
		Short: "Operate a gridcache engine node from the command line",
		Long:  "gridcachectl loads a gridcache configuration file, opens an in-process engine against it, and runs a single cache operation.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := gridconfig.Load(c.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			c.cfg = cfg
			c.logger = obslog.New(cfg.Log.ToObslog())
			return nil
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "path to a gridcache config file (defaults applied if omitted)")

	root.AddCommand(
		c.putCommand(),
		c.getCommand(),
		c.removeCommand(),
		c.statsCommand(),
		c.walCompactCommand(),
	)
	return root
}

// Execute runs the root command, building and tearing down the engine
// around whichever data-plane verb was invoked.
func (c *CLI) Execute() error {
	return c.GetRootCommand().Execute()
}

// withEngine opens an Engine from the loaded config, runs fn against
// it, and always closes it afterward, joining any Close error into the
// return value.
func (c *CLI) withEngine(ctx context.Context, fn func(*engine.Engine) error) error {
	eng, err := engine.New(ctx, *c.cfg, c.logger)
	if err != nil {
		return fmt.Errorf("open engine: %w", err)
	}
	runErr := fn(eng)
	if closeErr := eng.Close(); closeErr != nil {
		if runErr != nil {
			return fmt.Errorf("%w; close engine: %w", runErr, closeErr)
		}
		return fmt.Errorf("close engine: %w", closeErr)
	}
	return runErr
}

func (c *CLI) putCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put <key> <value>",
		Short: "Write a string value under key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEngine(cmd.Context(), func(eng *engine.Engine) error {
				if err := eng.Put(cmd.Context(), args[0], args[1]); err != nil {
					return fmt.Errorf("put: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "OK\n")
				return nil
			})
		},
	}
	return cmd
}

func (c *CLI) getCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Read the value stored under key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEngine(cmd.Context(), func(eng *engine.Engine) error {
				val, found, err := eng.Get(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("get: %w", err)
				}
				if !found {
					fmt.Fprintf(cmd.OutOrStdout(), "(not found)\n")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%v\n", val)
				return nil
			})
		},
	}
	return cmd
}

func (c *CLI) removeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <key>",
		Short: "Delete the value stored under key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEngine(cmd.Context(), func(eng *engine.Engine) error {
				removed, err := eng.Remove(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("remove: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed=%t\n", removed)
				return nil
			})
		},
	}
	return cmd
}

func (c *CLI) statsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print the entry count held by each partition",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withEngine(cmd.Context(), func(eng *engine.Engine) error {
				counts := eng.Stats()
				total := 0
				for _, n := range counts {
					total += n
				}
				fmt.Fprintf(cmd.OutOrStdout(), "partitions=%d total_entries=%d\n", len(counts), total)
				for i, n := range counts {
					fmt.Fprintf(cmd.OutOrStdout(), "  partition[%d]=%d\n", i, n)
				}
				return nil
			})
		},
	}
	return cmd
}

// walCompactCommand lists the WAL segment index's tracked segments so
// an operator can see which are fully behind the current row-store
// checkpoint and safe to archive; it does not delete anything itself.
func (c *CLI) walCompactCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wal-compact",
		Short: "List tracked WAL segments and their order ranges",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !c.cfg.WAL.Enabled || c.cfg.WAL.Index == "" {
				return fmt.Errorf("wal-compact: wal.enabled=true and wal.index_path must be set")
			}
			ctx := cmd.Context()
			db, err := migrations.Open(ctx, c.cfg.WAL.Index, c.logger)
			if err != nil {
				return fmt.Errorf("wal-compact: open segment index: %w", err)
			}
			idx := migrations.NewIndex(db)
			defer idx.Close()

			segments, err := idx.Segments(ctx)
			if err != nil {
				return fmt.Errorf("wal-compact: list segments: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(segments)
		},
	}
	return cmd
}
