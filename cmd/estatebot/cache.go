package main

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/hrygo/estatebot/store/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the valuation cache",
}

func init() {
	cacheCmd.AddCommand(
		&cobra.Command{
			Use:   "info",
			Short: "Print cache statistics as JSON",
			Args:  cobra.NoArgs,
			RunE: withCache(func(cmd *cobra.Command, c *cache.PropertyCache, _ []string) error {
				info, err := c.Info(cmd.Context())
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}),
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Remove every cached valuation",
			Args:  cobra.NoArgs,
			RunE: withCache(func(cmd *cobra.Command, c *cache.PropertyCache, _ []string) error {
				res, err := c.ClearAll(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "cleared %d memory and %d disk entries\n", res.Memory, res.Disk)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "prune",
			Short: "Remove expired cache entries",
			Args:  cobra.NoArgs,
			RunE: withCache(func(cmd *cobra.Command, c *cache.PropertyCache, _ []string) error {
				res, err := c.ClearExpired(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "pruned %d memory and %d disk entries\n", res.Memory, res.Disk)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "invalidate <address>",
			Short: "Remove cached valuations that mention an address",
			Args:  cobra.ExactArgs(1),
			RunE: withCache(func(cmd *cobra.Command, c *cache.PropertyCache, args []string) error {
				n, err := c.InvalidateAddress(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "invalidated %d entries for %q\n", n, args[0])
				return nil
			}),
		},
	)
}

// withCache opens the configured cache for the duration of fn.
func withCache(fn func(*cobra.Command, *cache.PropertyCache, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		p, err := loadProfile()
		if err != nil {
			return err
		}
		if err := p.Validate(); err != nil {
			return err
		}
		cfg := p.CacheConfig()
		if !cfg.Enabled {
			return errors.New("cache is disabled (ENABLE_CACHE=false)")
		}
		c, err := cache.New(cfg)
		if err != nil {
			return err
		}
		defer c.Close()
		return fn(cmd, c, args)
	}
}
