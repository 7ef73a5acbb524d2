package chunk

import (
	"fmt"
	"log/slog"
	"runtime/debug"
)

// Strategy is one link in the chunking chain.
type Strategy interface {
	// Name identifies the strategy in logs.
	Name() string
	// Applies reports whether the strategy handles the file type.
	Applies(fileType string) bool
	// Chunk splits text. An empty result passes control to the next strategy.
	Chunk(text string) []*Chunk
}

// Chain evaluates strategies in priority order; the first one that applies
// and returns a non-empty result wins. A strategy that panics is logged and
// skipped, so malformed input degrades to the next strategy instead of
// failing the document.
type Chain struct {
	strategies []Strategy
	logger     *slog.Logger
}

// NewChain creates a chain over strategies, evaluated in order.
func NewChain(logger *slog.Logger, strategies ...Strategy) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{strategies: strategies, logger: logger}
}

// DefaultChain is page, tabular, then plain text.
func DefaultChain(opts Options, logger *slog.Logger) *Chain {
	opts = opts.withDefaults()
	return NewChain(logger,
		NewPageStrategy(opts),
		NewTabularStrategy(opts),
		NewTextStrategy(opts),
	)
}

// Run returns the first non-empty result and the name of the strategy
// that produced it.
func (c *Chain) Run(fileType, text string) ([]*Chunk, string) {
	ft := normalizeFileType(fileType)
	for _, s := range c.strategies {
		if !s.Applies(ft) {
			continue
		}
		chunks, err := c.try(s, text)
		if err != nil {
			c.logger.Warn("chunk_strategy_failed",
				slog.String("strategy", s.Name()),
				slog.String("file_type", ft),
				slog.String("error", err.Error()))
			continue
		}
		if len(chunks) > 0 {
			return chunks, s.Name()
		}
	}
	return nil, ""
}

func (c *Chain) try(s Strategy, text string) (chunks []*Chunk, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Debug("chunk_strategy_panic", slog.String("stack", string(debug.Stack())))
			chunks, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	return s.Chunk(text), nil
}

// TextStrategy splits any text with the recursive splitter into
// paragraph chunks. It applies to every file type and ends the chain.
type TextStrategy struct {
	splitter *Splitter
}

// NewTextStrategy creates the fallback strategy.
func NewTextStrategy(opts Options) *TextStrategy {
	return &TextStrategy{splitter: NewSplitter(opts)}
}

func (s *TextStrategy) Name() string          { return "text" }
func (s *TextStrategy) Applies(_ string) bool { return true }

func (s *TextStrategy) Chunk(text string) []*Chunk {
	pieces := s.splitter.Split(text)
	out := make([]*Chunk, 0, len(pieces))
	for _, p := range pieces {
		out = append(out, &Chunk{
			Text: p.Text,
			Metadata: Metadata{
				Type:        TypeParagraph,
				StartOffset: p.Start,
				EndOffset:   p.End,
			},
		})
	}
	return out
}
