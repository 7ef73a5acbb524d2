package index

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/Bikash9609/ca-ai/internal/store"
	"github.com/Bikash9609/ca-ai/internal/watcher"
)

// DefaultMaxFileSize is the largest inbox text file indexed (50MB).
const DefaultMaxFileSize int64 = 50 * 1024 * 1024

// Inbox file suffixes.
const (
	TextSuffix    = ".txt"
	SidecarSuffix = ".meta.yaml"
	sidecarAlt    = ".meta.yml"
)

// Sidecar is the metadata file that accompanies an inbox text file.
type Sidecar struct {
	ID       string `yaml:"id"`
	Client   string `yaml:"client"`
	Period   string `yaml:"period"`
	DocType  string `yaml:"doc_type"`
	Category string `yaml:"category"`
	FileType string `yaml:"file_type"`
}

// CoordinatorConfig contains configuration for the Coordinator.
type CoordinatorConfig struct {
	// Root is the inbox directory.
	Root    string
	Indexer *Indexer
	// DefaultClient applies when a sidecar names no client.
	DefaultClient string
	// MaxFileSize defaults to DefaultMaxFileSize.
	MaxFileSize int64
	Logger      *slog.Logger
}

// Coordinator keeps the store in step with an inbox directory. An inbox
// item is <name>.txt plus an optional <name>.meta.yaml sidecar.
type Coordinator struct {
	config CoordinatorConfig
	logger *slog.Logger

	mu sync.Mutex
	// docs maps an item stem to the document id it was indexed under.
	docs map[string]string
}

// NewCoordinator creates an inbox coordinator.
func NewCoordinator(config CoordinatorConfig) (*Coordinator, error) {
	if config.Indexer == nil {
		return nil, fmt.Errorf("indexer is required")
	}
	if config.Root == "" {
		return nil, fmt.Errorf("inbox root is required")
	}
	if config.MaxFileSize <= 0 {
		config.MaxFileSize = DefaultMaxFileSize
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{config: config, logger: logger, docs: make(map[string]string)}, nil
}

// Reconcile indexes every item in the inbox, replacing existing chunks.
func (c *Coordinator) Reconcile(ctx context.Context) ([]*Result, error) {
	stems, err := c.scanStems()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	inputs := make([]Input, 0, len(stems))
	var loadErrs []error
	for _, stem := range stems {
		doc, text, err := c.loadItem(stem)
		if err != nil {
			loadErrs = append(loadErrs, fmt.Errorf("%s: %w", stem, err))
			continue
		}
		if doc == nil {
			continue
		}
		c.docs[stem] = doc.ID
		inputs = append(inputs, Input{Document: doc, Text: text, Replace: true})
	}

	results, err := c.config.Indexer.IndexDocuments(ctx, inputs)
	return results, errors.Join(append(loadErrs, err)...)
}

// HandleEvents applies a batch of watcher events. Events are grouped per
// item so a text file and its sidecar written together index once. A
// failing item is logged and does not stop the others.
func (c *Coordinator) HandleEvents(ctx context.Context, events []watcher.FileEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	seen := make(map[string]bool)
	var stems []string
	for _, e := range events {
		if e.IsDir {
			continue
		}
		stem, ok := ItemStem(e.Path)
		if !ok || seen[stem] {
			continue
		}
		seen[stem] = true
		stems = append(stems, stem)
	}
	sort.Strings(stems)

	for _, stem := range stems {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.syncItem(ctx, stem); err != nil {
			c.logger.Warn("inbox_item_failed",
				slog.String("item", stem),
				slog.String("error", err.Error()))
		}
	}
	return nil
}

// syncItem reindexes the item when its text exists and deletes its chunks
// when it does not. Must be called with the lock held.
func (c *Coordinator) syncItem(ctx context.Context, stem string) error {
	doc, text, err := c.loadItem(stem)
	if err != nil {
		return err
	}

	previous, known := c.docs[stem]
	if doc == nil {
		id := previous
		if !known {
			id = DefaultDocumentID(stem)
		}
		delete(c.docs, stem)
		_, err := c.config.Indexer.DeleteDocument(ctx, id)
		return err
	}

	// A sidecar that changed the id leaves the old document behind.
	if known && previous != doc.ID {
		if _, err := c.config.Indexer.DeleteDocument(ctx, previous); err != nil {
			return err
		}
	}
	c.docs[stem] = doc.ID

	res, err := c.config.Indexer.ReindexDocument(ctx, doc, text)
	if err != nil {
		return err
	}
	c.logger.Info("inbox_item_indexed",
		slog.String("item", stem),
		slog.String("document_id", doc.ID),
		slog.Int("chunks", res.ChunksCreated))
	return nil
}

// loadItem reads an item. It returns a nil document when the text file is
// gone.
func (c *Coordinator) loadItem(stem string) (*store.Document, string, error) {
	textPath := filepath.Join(c.config.Root, stem+TextSuffix)

	// Lstat so symlinks are not followed out of the inbox.
	info, err := os.Lstat(textPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to stat text: %w", err)
	}
	if info.Mode()&os.ModeSymlink != 0 || !info.Mode().IsRegular() {
		c.logger.Debug("skipping non-regular file", slog.String("path", textPath))
		return nil, "", nil
	}
	if info.Size() > c.config.MaxFileSize {
		return nil, "", fmt.Errorf("text file is %d bytes, limit is %d", info.Size(), c.config.MaxFileSize)
	}

	content, err := os.ReadFile(textPath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read text: %w", err)
	}
	if isBinaryContent(content) {
		return nil, "", fmt.Errorf("text file looks binary")
	}

	side, err := c.loadSidecar(stem)
	if err != nil {
		return nil, "", err
	}

	doc := &store.Document{
		ID:       side.ID,
		ClientID: side.Client,
		Period:   side.Period,
		DocType:  side.DocType,
		Category: side.Category,
		FileType: side.FileType,
		FilePath: textPath,
	}
	if doc.ID == "" {
		doc.ID = DefaultDocumentID(stem)
	}
	if doc.ClientID == "" {
		doc.ClientID = c.config.DefaultClient
	}
	if doc.FileType == "" {
		doc.FileType = "txt"
	}
	return doc, string(content), nil
}

func (c *Coordinator) loadSidecar(stem string) (Sidecar, error) {
	var side Sidecar
	for _, suffix := range []string{SidecarSuffix, sidecarAlt} {
		data, err := os.ReadFile(filepath.Join(c.config.Root, stem+suffix))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return side, fmt.Errorf("failed to read sidecar: %w", err)
		}
		if err := yaml.Unmarshal(data, &side); err != nil {
			return side, fmt.Errorf("failed to parse sidecar: %w", err)
		}
		return side, nil
	}
	return side, nil
}

func (c *Coordinator) scanStems() ([]string, error) {
	var stems []string
	err := filepath.WalkDir(c.config.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(c.config.Root, path)
		if err != nil || rel == "." {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(rel, TextSuffix) {
			return nil
		}
		if stem, ok := ItemStem(rel); ok {
			stems = append(stems, stem)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan inbox: %w", err)
	}
	sort.Strings(stems)
	return stems, nil
}

// ItemStem returns the item a file belongs to: its path without the text
// or sidecar suffix.
func ItemStem(relPath string) (string, bool) {
	for _, suffix := range []string{SidecarSuffix, sidecarAlt, TextSuffix} {
		if strings.HasSuffix(relPath, suffix) {
			return relPath[:len(relPath)-len(suffix)], true
		}
	}
	return "", false
}

// DefaultDocumentID is the document id of an item without a sidecar id.
func DefaultDocumentID(stem string) string {
	return filepath.ToSlash(stem)
}

// isBinaryContent reports a NUL byte in the first 512 bytes.
func isBinaryContent(content []byte) bool {
	return bytes.IndexByte(content[:min(len(content), 512)], 0) >= 0
}
