// Package observability provides logging, metrics, and run context support
// for the citation pipeline.
//
// # Logging
//
// Create a logger from configuration:
//
//	cfg := observability.DefaultLoggingConfig()
//	cfg.Level = "debug"
//
//	counter := &observability.ErrorCounter{}
//	logger := observability.NewLogger(cfg).Hook(counter)
//	logger.Info().Str("citation", "doi:10.1000/abc").Msg("resolving")
//
// The ErrorCounter hook tallies error-level events so a command can fail
// its exit status whenever an error was logged.
//
// # Metrics
//
// Metrics are registered on an explicit registry:
//
//	reg := prometheus.NewRegistry()
//	metrics := observability.NewMetrics("manubot", reg)
//	metrics.RecordCacheLookup("hit")
//
// # Standard Fields
//
//   - run_id: resolution run identifier
//   - command: CLI command driving the run
//   - citation: citation string as written in the manuscript
//   - provider: identifier provider (doi, pmid, ...)
//   - fingerprint: cache key of a fetched payload
package observability
