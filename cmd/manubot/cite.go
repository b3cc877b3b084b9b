package main

import (
	"github.com/spf13/cobra"

	"github.com/agitter/manubot/internal/csl"
	"github.com/agitter/manubot/internal/resolver"
)

var (
	citeOutput       string
	citeFormat       string
	citeAllowInvalid bool
	citeManualRefs   string
	citeCacheDir     string
)

func init() {
	rootCmd.AddCommand(citeCmd)
	citeCmd.Flags().StringVarP(&citeOutput, "output", "o", "", "Write references to this file instead of stdout")
	citeCmd.Flags().StringVar(&citeFormat, "format", resolver.FormatJSON, "Output format (json, yaml)")
	citeCmd.Flags().BoolVar(&citeAllowInvalid, "allow-invalid-csl-data", false, "Skip CSL schema validation")
	citeCmd.Flags().StringVar(&citeManualRefs, "manual-references", "", "Manual references file (.json, .yaml or .yml)")
	citeCmd.Flags().StringVar(&citeCacheDir, "cache-directory", "", "Cache requests in this directory")
}

var citeCmd = &cobra.Command{
	Use:   "cite <citation>...",
	Short: "Print CSL-JSON for citations",
	Long: `Resolve the given citations and print their CSL items ordered by citation key.

Examples:
  manubot cite doi:10.7554/elife.32822 pmid:29424689
  manubot cite --format yaml arxiv:1407.3561
  manubot cite --allow-invalid-csl-data https://example.org/article`,
	Args: func(cmd *cobra.Command, args []string) error {
		if err := cobra.MinimumNArgs(1)(cmd, args); err != nil {
			return asConfigError(err)
		}
		return asConfigError(resolver.CheckFormat(citeFormat))
	},
	RunE: runCite,
}

func runCite(cmd *cobra.Command, args []string) error {
	overrides := map[string]any{}
	if citeAllowInvalid {
		overrides["resolver.validation"] = string(csl.ModeOff)
	}
	if citeManualRefs != "" {
		overrides["resolver.manual_references"] = citeManualRefs
	}
	if citeCacheDir != "" {
		overrides["cache.location"] = citeCacheDir + "/"
	}

	a, err := newApp(cmd, overrides)
	if err != nil {
		return err
	}
	return a.finish(a.cite(cmd, args))
}

func (a *app) cite(cmd *cobra.Command, citations []string) error {
	ctx, cancel := a.runContext(cmd.Context())
	defer cancel()

	c := a.openCache(ctx)
	defer c.Close()

	r, err := a.newResolver(c, a.loadOverlay(a.cfg.Resolver.ManualReferences), nil)
	if err != nil {
		return err
	}
	res, runErr := r.Resolve(ctx, citations)

	out, closeOut, err := createFile(citeOutput)
	if err != nil {
		return err
	}
	if err := resolver.WriteReferences(out, res.References, citeFormat); err != nil {
		closeOut()
		return err
	}
	if err := closeOut(); err != nil {
		return err
	}
	return runErr
}
