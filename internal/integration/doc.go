// Package integration holds end-to-end tests that run the indexer, the
// hybrid searcher, the retriever and the inbox watcher together against a
// real SQLite store.
package integration
