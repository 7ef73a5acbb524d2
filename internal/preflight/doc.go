// Package preflight checks that taxctx can run against the configured data
// directory before any document is indexed.
//
// The package validates:
//   - Write permissions in the data directory
//   - Disk space availability (minimum 100MB)
//   - File descriptor limits for watch mode (minimum 1024)
//   - The configured embedder and its dimension
//   - The store, when one exists, and its recorded embedding dimension
//
// Use the Checker type to run all validations:
//
//	checker := preflight.New(cfg)
//	results := checker.RunAll(ctx)
//	if checker.HasCriticalFailures(results) {
//	    // Handle failures
//	}
package preflight
