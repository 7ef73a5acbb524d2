// Package config loads taxctx configuration from defaults, YAML files and
// environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Bikash9609/ca-ai/internal/logging"
)

// ProjectConfigName is the per-project configuration file.
const ProjectConfigName = ".taxctx.yaml"

// Config represents the complete taxctx configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	DataDir    string           `yaml:"data_dir" json:"data_dir"`
	Chunking   ChunkingConfig   `yaml:"chunking" json:"chunking"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Retrieval  RetrievalConfig  `yaml:"retrieval" json:"retrieval"`
	Store      StoreConfig      `yaml:"store" json:"store"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Cache      CacheConfig      `yaml:"cache" json:"cache"`
	Index      IndexConfig      `yaml:"index" json:"index"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// ChunkingConfig configures the chunker.
type ChunkingConfig struct {
	// ChunkSize is the maximum chunk length in characters.
	ChunkSize int `yaml:"chunk_size" json:"chunk_size"`
	// ChunkOverlap is the number of trailing characters of a chunk that
	// seed the next one. Must be smaller than ChunkSize.
	ChunkOverlap int `yaml:"chunk_overlap" json:"chunk_overlap"`
	// RowsPerChunk is the batch size for tabular files without a vendor column.
	RowsPerChunk int `yaml:"rows_per_chunk" json:"rows_per_chunk"`
	// MaxGroupRows caps rows in one vendor group chunk.
	MaxGroupRows int `yaml:"max_group_rows" json:"max_group_rows"`
}

// SearchConfig configures hybrid search.
// Weights are normalized to sum to 1 at query time, so 7/3 and 0.7/0.3
// behave the same.
type SearchConfig struct {
	SemanticWeight    float64 `yaml:"semantic_weight" json:"semantic_weight"`
	KeywordWeight     float64 `yaml:"keyword_weight" json:"keyword_weight"`
	SemanticThreshold float64 `yaml:"semantic_threshold" json:"semantic_threshold"`
	// Fusion is "minmax" (default) or "rrf".
	Fusion string `yaml:"fusion" json:"fusion"`
}

// RetrievalConfig configures the multi-pass retriever.
type RetrievalConfig struct {
	MaxInitialResults  int     `yaml:"max_initial_results" json:"max_initial_results"`
	Limit              int     `yaml:"limit" json:"limit"`
	FilterFloor        float64 `yaml:"filter_floor" json:"filter_floor"`
	NeighborWindow     int     `yaml:"neighbor_window" json:"neighbor_window"`
	VendorExpansion    int     `yaml:"vendor_expansion" json:"vendor_expansion"`
	MinVendorSubstring int     `yaml:"min_vendor_substring" json:"min_vendor_substring"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	// Backend is "sqlite" (default) or "postgres".
	Backend string `yaml:"backend" json:"backend"`
	// Path is the SQLite database file. Relative paths resolve against DataDir.
	Path string `yaml:"path" json:"path"`
	// LexicalBackend is "fts5" (default) or "bleve". SQLite only.
	LexicalBackend string `yaml:"lexical_backend" json:"lexical_backend"`
	// BlevePath is the Bleve index directory. Relative paths resolve against DataDir.
	BlevePath string `yaml:"bleve_path" json:"bleve_path"`
	// PostgresDSN is the connection string for the postgres backend.
	PostgresDSN   string `yaml:"postgres_dsn" json:"postgres_dsn"`
	SQLiteCacheMB int    `yaml:"sqlite_cache_mb" json:"sqlite_cache_mb"`
}

// EmbeddingsConfig configures the embedding boundary.
type EmbeddingsConfig struct {
	Provider   string `yaml:"provider" json:"provider"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	BatchSize  int    `yaml:"batch_size" json:"batch_size"`
	CacheSize  int    `yaml:"cache_size" json:"cache_size"`
}

// CacheConfig configures the retrieval context cache.
type CacheConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	TTL     string `yaml:"ttl" json:"ttl"`
	Size    int    `yaml:"size" json:"size"`
}

// IndexConfig configures indexing throughput.
type IndexConfig struct {
	Workers       int    `yaml:"workers" json:"workers"`
	WatchDebounce string `yaml:"watch_debounce" json:"watch_debounce"`
}

// LoggingConfig mirrors logging.Config in YAML form.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	Format    string `yaml:"format" json:"format"`
	FilePath  string `yaml:"file_path" json:"file_path"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// NewConfig creates a new Config with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		DataDir: ".taxctx",
		Chunking: ChunkingConfig{
			ChunkSize:    500,
			ChunkOverlap: 50,
			RowsPerChunk: 10,
			MaxGroupRows: 20,
		},
		Search: SearchConfig{
			SemanticWeight:    0.7,
			KeywordWeight:     0.3,
			SemanticThreshold: 0.3,
			Fusion:            "minmax",
		},
		Retrieval: RetrievalConfig{
			MaxInitialResults:  30,
			Limit:              15,
			FilterFloor:        0.4,
			NeighborWindow:     2,
			VendorExpansion:    3,
			MinVendorSubstring: 8,
		},
		Store: StoreConfig{
			Backend:        "sqlite",
			Path:           "taxctx.db",
			LexicalBackend: "fts5",
			BlevePath:      "lexical.bleve",
			SQLiteCacheMB:  64,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "static",
			Dimensions: 256,
			BatchSize:  32,
			CacheSize:  1000,
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     "30m",
			Size:    1000,
		},
		Index: IndexConfig{
			Workers:       runtime.NumCPU(),
			WatchDebounce: "500ms",
		},
		Logging: LoggingConfig{
			Level:     "info",
			Format:    "json",
			FilePath:  logging.DefaultLogPath(),
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

// GetUserConfigPath returns the path to the user configuration file:
// $XDG_CONFIG_HOME/taxctx/config.yaml, or ~/.config/taxctx/config.yaml.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "taxctx", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "taxctx", "config.yaml")
	}
	return filepath.Join(home, ".config", "taxctx", "config.yaml")
}

// Load loads configuration for the project in dir.
// Precedence, lowest first:
//  1. Defaults
//  2. User config (~/.config/taxctx/config.yaml)
//  3. Project config (.taxctx.yaml in dir)
//  4. Environment variables (TAXCTX_*)
//
// Relative data paths are resolved against dir.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if err := cfg.loadYAML(GetUserConfigPath()); err != nil {
		return nil, err
	}
	if err := cfg.loadYAML(filepath.Join(dir, ProjectConfigName)); err != nil {
		return nil, err
	}
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	cfg.resolvePaths(dir)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFile loads defaults overlaid with a single explicit file, then env.
func LoadFile(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	cfg := NewConfig()
	if err := cfg.loadYAML(path); err != nil {
		return nil, err
	}
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	cfg.resolvePaths(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadYAML decodes path over the current values. Keys absent from the
// file keep their current value; a missing file is not an error.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies TAXCTX_* environment variable overrides.
// Explicit zeros are honoured.
func (c *Config) applyEnvOverrides() error {
	floats := map[string]*float64{
		"TAXCTX_SEMANTIC_WEIGHT":    &c.Search.SemanticWeight,
		"TAXCTX_KEYWORD_WEIGHT":     &c.Search.KeywordWeight,
		"TAXCTX_SEMANTIC_THRESHOLD": &c.Search.SemanticThreshold,
		"TAXCTX_FILTER_FLOOR":       &c.Retrieval.FilterFloor,
	}
	for key, dst := range floats {
		if v := os.Getenv(key); v != "" {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = f
		}
	}

	ints := map[string]*int{
		"TAXCTX_CHUNK_SIZE":     &c.Chunking.ChunkSize,
		"TAXCTX_CHUNK_OVERLAP":  &c.Chunking.ChunkOverlap,
		"TAXCTX_LIMIT":          &c.Retrieval.Limit,
		"TAXCTX_INDEX_WORKERS":  &c.Index.Workers,
		"TAXCTX_EMBEDDING_DIMS": &c.Embeddings.Dimensions,
	}
	for key, dst := range ints {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}

	strs := map[string]*string{
		"TAXCTX_DATA_DIR":        &c.DataDir,
		"TAXCTX_STORE_BACKEND":   &c.Store.Backend,
		"TAXCTX_LEXICAL_BACKEND": &c.Store.LexicalBackend,
		"TAXCTX_POSTGRES_DSN":    &c.Store.PostgresDSN,
		"TAXCTX_LOG_LEVEL":       &c.Logging.Level,
		"TAXCTX_CACHE_TTL":       &c.Cache.TTL,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("TAXCTX_CACHE_ENABLED"); v != "" {
		c.Cache.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	return nil
}

func (c *Config) resolvePaths(dir string) {
	if c.DataDir != "" && !filepath.IsAbs(c.DataDir) {
		c.DataDir = filepath.Join(dir, c.DataDir)
	}
	if c.Store.Path != "" && !filepath.IsAbs(c.Store.Path) {
		c.Store.Path = filepath.Join(c.DataDir, c.Store.Path)
	}
	if c.Store.BlevePath != "" && !filepath.IsAbs(c.Store.BlevePath) {
		c.Store.BlevePath = filepath.Join(c.DataDir, c.Store.BlevePath)
	}
}

// SetDataDir moves the data directory to dir. Store paths that lived
// under the old data directory move with it.
func (c *Config) SetDataDir(dir string) {
	old := c.DataDir
	c.DataDir = dir
	rebase := func(p string) string {
		if p == "" || old == "" {
			return p
		}
		rel, err := filepath.Rel(old, p)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return p
		}
		return filepath.Join(dir, rel)
	}
	c.Store.Path = rebase(c.Store.Path)
	c.Store.BlevePath = rebase(c.Store.BlevePath)
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Chunking.ChunkSize <= 0 {
		return fmt.Errorf("chunking.chunk_size must be positive, got %d", c.Chunking.ChunkSize)
	}
	if c.Chunking.ChunkOverlap < 0 || c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("chunking.chunk_overlap must be in [0, chunk_size), got %d", c.Chunking.ChunkOverlap)
	}
	if c.Chunking.RowsPerChunk <= 0 || c.Chunking.MaxGroupRows <= 0 {
		return fmt.Errorf("chunking.rows_per_chunk and chunking.max_group_rows must be positive")
	}

	if c.Search.SemanticWeight < 0 || c.Search.KeywordWeight < 0 {
		return fmt.Errorf("search weights must be non-negative, got %.2f/%.2f", c.Search.SemanticWeight, c.Search.KeywordWeight)
	}
	if c.Search.SemanticWeight+c.Search.KeywordWeight <= 0 {
		return fmt.Errorf("search.semantic_weight + search.keyword_weight must be positive")
	}
	if err := unitInterval("search.semantic_threshold", c.Search.SemanticThreshold); err != nil {
		return err
	}
	switch strings.ToLower(c.Search.Fusion) {
	case "minmax", "rrf":
	default:
		return fmt.Errorf("search.fusion must be 'minmax' or 'rrf', got %s", c.Search.Fusion)
	}
	if err := unitInterval("retrieval.filter_floor", c.Retrieval.FilterFloor); err != nil {
		return err
	}

	if c.Retrieval.Limit <= 0 || c.Retrieval.MaxInitialResults <= 0 {
		return fmt.Errorf("retrieval.limit and retrieval.max_initial_results must be positive")
	}
	if c.Retrieval.NeighborWindow < 0 || c.Retrieval.VendorExpansion < 0 {
		return fmt.Errorf("retrieval.neighbor_window and retrieval.vendor_expansion must be non-negative")
	}

	switch strings.ToLower(c.Store.Backend) {
	case "sqlite":
		switch strings.ToLower(c.Store.LexicalBackend) {
		case "fts5", "bleve":
		default:
			return fmt.Errorf("store.lexical_backend must be 'fts5' or 'bleve', got %s", c.Store.LexicalBackend)
		}
	case "postgres":
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("store.postgres_dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("store.backend must be 'sqlite' or 'postgres', got %s", c.Store.Backend)
	}

	if c.Embeddings.Dimensions <= 0 {
		return fmt.Errorf("embeddings.dimensions must be positive, got %d", c.Embeddings.Dimensions)
	}
	if c.Embeddings.BatchSize <= 0 {
		return fmt.Errorf("embeddings.batch_size must be positive, got %d", c.Embeddings.BatchSize)
	}

	if _, err := time.ParseDuration(c.Cache.TTL); err != nil {
		return fmt.Errorf("cache.ttl: %w", err)
	}
	if _, err := time.ParseDuration(c.Index.WatchDebounce); err != nil {
		return fmt.Errorf("index.watch_debounce: %w", err)
	}

	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}
	return nil
}

func unitInterval(name string, v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("%s must be between 0 and 1, got %f", name, v)
	}
	return nil
}

// CacheTTL returns the parsed cache TTL. Validate guarantees it parses.
func (c *Config) CacheTTL() time.Duration {
	d, _ := time.ParseDuration(c.Cache.TTL)
	return d
}

// WatchDebounce returns the parsed watcher debounce interval.
func (c *Config) WatchDebounce() time.Duration {
	d, _ := time.ParseDuration(c.Index.WatchDebounce)
	return d
}

// LoggingSetup converts the YAML logging section into a logging.Config.
func (c *Config) LoggingSetup(stderr bool) logging.Config {
	return logging.Config{
		Level:         c.Logging.Level,
		Format:        c.Logging.Format,
		FilePath:      c.Logging.FilePath,
		MaxSizeMB:     c.Logging.MaxSizeMB,
		MaxFiles:      c.Logging.MaxFiles,
		WriteToStderr: stderr,
	}
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
