package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/agitter/manubot/internal/cache"
	"github.com/agitter/manubot/internal/identifier"
	"github.com/agitter/manubot/internal/manuscript"
	"github.com/agitter/manubot/internal/overlay"
	"github.com/agitter/manubot/internal/resolver"
)

// Output file names written by process.
const (
	referencesFile = "references.json"
	citationsFile  = "citations.tsv"
	tagsFile       = "citation-tags.tsv"
)

var (
	processContentDir    string
	processOutputDir     string
	processCacheDir      string
	processClearCache    bool
	processManualRefs    string
	processSkipCitations bool
)

func init() {
	rootCmd.AddCommand(processCmd)
	processCmd.Flags().StringVar(&processContentDir, "content-directory", "", "Directory with the manuscript's Markdown files")
	processCmd.Flags().StringVar(&processOutputDir, "output-directory", "", "Directory for references.json and citations.tsv")
	processCmd.Flags().StringVar(&processCacheDir, "cache-directory", "", "Directory for the request cache (default: the output directory)")
	processCmd.Flags().BoolVar(&processClearCache, "clear-requests-cache", false, "Empty the request cache before resolving")
	processCmd.Flags().StringVar(&processManualRefs, "manual-references", "", "Manual references file (default: manual-references.{json,yaml,yml} in the content directory)")
	processCmd.Flags().BoolVar(&processSkipCitations, "skip-citations", false, "Write empty outputs without resolving citations")
}

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Resolve the citations of a manuscript",
	Long: `Scan the Markdown files of the content directory in name order for
@prefix:value citations, expand citation-tags.tsv tags, apply manual references,
and write references.json and citations.tsv to the output directory.

Examples:
  manubot process --content-directory content --output-directory output
  manubot process --content-directory content --output-directory output --clear-requests-cache`,
	Args: cobra.NoArgs,
	RunE: runProcess,
}

func runProcess(cmd *cobra.Command, _ []string) error {
	if processContentDir == "" || processOutputDir == "" {
		return asConfigError(fmt.Errorf("--content-directory and --output-directory are required"))
	}

	overrides := map[string]any{}
	if processCacheDir != "" {
		overrides["cache.location"] = filepath.Join(processCacheDir, cache.DefaultFileName)
	}
	if processClearCache {
		overrides["cache.clear"] = true
	}
	if processManualRefs != "" {
		overrides["resolver.manual_references"] = processManualRefs
	}

	a, err := newApp(cmd, overrides)
	if err != nil {
		return err
	}
	if a.cfg.Cache.Location == "" {
		a.cfg.Cache.Location = filepath.Join(processOutputDir, cache.DefaultFileName)
	}
	return a.finish(a.process(cmd))
}

func (a *app) process(cmd *cobra.Command) error {
	if info, err := os.Stat(processContentDir); err != nil || !info.IsDir() {
		return asConfigError(fmt.Errorf("content directory %q is not a directory", processContentDir))
	}
	if err := os.MkdirAll(processOutputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	var citations []string
	if !processSkipCitations {
		var err error
		citations, err = manuscript.Citations(processContentDir)
		if err != nil {
			return err
		}
	}
	a.logger.Info().Int("citations", len(citations)).Str("content_directory", processContentDir).Msg("scanned manuscript")

	tags, err := identifier.LoadTags(filepath.Join(processContentDir, tagsFile))
	if err != nil {
		return err
	}

	manualPath := a.cfg.Resolver.ManualReferences
	if manualPath == "" {
		manualPath = overlay.FindFile(processContentDir)
	}

	ctx, cancel := a.runContext(cmd.Context())
	defer cancel()

	c := a.openCache(ctx)
	defer func() {
		if err := c.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("could not close request cache")
		}
	}()

	r, err := a.newResolver(c, a.loadOverlay(manualPath), tags)
	if err != nil {
		return err
	}
	res, runErr := r.Resolve(ctx, citations)

	if err := writeOutputs(processOutputDir, res); err != nil {
		return err
	}
	return runErr
}

func writeOutputs(dir string, res *resolver.Result) error {
	refs, err := os.Create(filepath.Join(dir, referencesFile))
	if err != nil {
		return err
	}
	if err := resolver.WriteReferences(refs, res.References, resolver.FormatJSON); err != nil {
		refs.Close()
		return err
	}
	if err := refs.Close(); err != nil {
		return err
	}

	tsv, err := os.Create(filepath.Join(dir, citationsFile))
	if err != nil {
		return err
	}
	if err := resolver.WriteCitations(tsv, res.Citations); err != nil {
		tsv.Close()
		return err
	}
	return tsv.Close()
}
