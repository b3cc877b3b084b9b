package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cacheDir string

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheClearCmd.Flags().StringVar(&cacheDir, "cache-directory", "", "Directory holding requests-cache.sqlite (default: the configured cache location)")
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the request cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached provider response",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		overrides := map[string]any{}
		if cacheDir != "" {
			overrides["cache.location"] = cacheDir + "/"
		}
		a, err := newApp(cmd, overrides)
		if err != nil {
			return err
		}
		if a.cfg.Cache.Location == "" {
			return asConfigError(fmt.Errorf("no cache location configured; pass --cache-directory"))
		}

		c := a.openCache(cmd.Context())
		defer c.Close()
		if err := c.Clear(cmd.Context()); err != nil {
			return a.finish(fmt.Errorf("clear cache: %w", err))
		}
		return a.finish(nil)
	},
}
