// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and evict cached source responses",
	Long: `Cache reports on and prunes the persistent tier of the source response
cache (SQLite or Redis, per cache.backend). The in-memory tier lives only as
long as a single command.`,
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := context.Background()
		c, err := openCache(ctx, cfg)
		if err != nil {
			return err
		}
		defer c.Close()

		s := c.Stats(ctx)
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(s)
		}
		fmt.Printf("Backend:          %s\n", cfg.Cache.Backend)
		fmt.Printf("Persistent items: %d\n", s.StoreEntries)
		fmt.Printf("Memory limit:     %d bytes\n", s.MaxBytes)
		fmt.Printf("TTL:              %s\n", cfg.Cache.TTL)
		return nil
	},
}

var cacheEvictCmd = &cobra.Command{
	Use:   "evict",
	Short: "Remove expired entries, or entries older than --older-than",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := context.Background()
		c, err := openCache(ctx, cfg)
		if err != nil {
			return err
		}
		defer c.Close()

		age, _ := cmd.Flags().GetDuration("older-than")
		var n int
		if age > 0 {
			n = c.EvictOlderThan(ctx, age)
		} else {
			n = c.EvictExpired(ctx)
		}
		fmt.Printf("Evicted %d entries.\n", n)
		return nil
	},
}

func init() {
	cacheStatsCmd.Flags().Bool("json", false, "output counters as JSON")
	cacheEvictCmd.Flags().Duration("older-than", 0, "evict entries stored longer ago than this (e.g. 72h)")

	cacheCmd.AddCommand(cacheStatsCmd, cacheEvictCmd)
	rootCmd.AddCommand(cacheCmd)
}
