package chunk

import (
	"regexp"
	"strings"
	"unicode"
)

// Piece is one emitted chunk of text with rune offsets into the input.
type Piece struct {
	Text  string
	Start int
	End   int
}

// Splitter is the recursive character splitter. Parts are produced by
// splitting on each separator in priority order (keeping the separator
// attached to the preceding part) and then accumulated into chunks of at
// most ChunkSize runes. Each new chunk is seeded with the last
// ChunkOverlap runes of the previous one, so no chunk exceeds
// ChunkSize+ChunkOverlap.
type Splitter struct {
	size       int
	overlap    int
	separators []string
}

var sentenceEnd = regexp.MustCompile(`[.!?]\s+`)

// NewSplitter creates a splitter from opts, applying defaults.
func NewSplitter(opts Options) *Splitter {
	opts = opts.withDefaults()
	return &Splitter{size: opts.ChunkSize, overlap: opts.ChunkOverlap, separators: opts.Separators}
}

// SplitText returns the chunk texts for text. Empty or whitespace-only
// input yields no chunks.
func (s *Splitter) SplitText(text string) []string {
	pieces := s.Split(text)
	out := make([]string, len(pieces))
	for i, p := range pieces {
		out[i] = p.Text
	}
	return out
}

// Split returns the chunks of text with their offsets.
func (s *Splitter) Split(text string) []Piece {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	src := []rune(text)
	acc := &accumulator{src: src, size: s.size, overlap: s.overlap}

	for _, p := range s.parts(text) {
		if p.len() > s.size {
			// Oversized units are flushed separately and re-split; no
			// overlap crosses into or out of them.
			acc.flush()
			acc.cur = span{}
			sub := &accumulator{src: src, size: s.size, overlap: s.overlap}
			for _, q := range s.splitLarge(src, p) {
				sub.add(q)
			}
			sub.flush()
			acc.out = append(acc.out, sub.out...)
			continue
		}
		acc.add(p)
	}
	acc.flush()
	return acc.out
}

// span is a half-open rune range [start, end) of the source.
type span struct{ start, end int }

func (p span) len() int { return p.end - p.start }

type accumulator struct {
	src     []rune
	size    int
	overlap int
	cur     span
	out     []Piece
}

func (a *accumulator) add(p span) {
	switch {
	case a.cur.len() == 0:
		a.cur = p
	case a.cur.len()+p.len() > a.size:
		a.flush()
		if a.overlap > 0 {
			start := a.cur.end - a.overlap
			if start < a.cur.start {
				start = a.cur.start
			}
			// Parts are contiguous, so the seed and p form one range.
			a.cur = span{start, p.end}
		} else {
			a.cur = p
		}
	default:
		a.cur.end = p.end
	}
}

// flush emits the current range trimmed of surrounding whitespace. The
// untrimmed range stays current so the next chunk can take its overlap.
func (a *accumulator) flush() {
	start, end := a.cur.start, a.cur.end
	for start < end && unicode.IsSpace(a.src[start]) {
		start++
	}
	for end > start && unicode.IsSpace(a.src[end-1]) {
		end--
	}
	if start < end {
		a.out = append(a.out, Piece{Text: string(a.src[start:end]), Start: start, End: end})
	}
}

// parts splits text on every non-empty separator in priority order and
// returns contiguous spans covering the whole input. Whitespace-only parts
// are merged into a neighbour so every span carries content.
func (s *Splitter) parts(text string) []span {
	pieces := []string{text}
	for _, sep := range s.separators {
		if sep == "" {
			continue
		}
		next := make([]string, 0, len(pieces))
		for _, p := range pieces {
			next = append(next, splitKeep(p, sep)...)
		}
		pieces = next
	}

	spans := make([]span, 0, len(pieces))
	pos := 0
	pending := -1
	for _, p := range pieces {
		n := len([]rune(p))
		sp := span{pos, pos + n}
		pos += n
		if n == 0 {
			continue
		}
		if strings.TrimSpace(p) == "" {
			if len(spans) > 0 {
				spans[len(spans)-1].end = sp.end
			} else if pending < 0 {
				pending = sp.start
			}
			continue
		}
		if pending >= 0 {
			sp.start = pending
			pending = -1
		}
		spans = append(spans, sp)
	}
	return spans
}

// splitKeep splits s on sep, keeping sep at the end of each part but the last.
func splitKeep(s, sep string) []string {
	if !strings.Contains(s, sep) {
		return []string{s}
	}
	raw := strings.Split(s, sep)
	out := make([]string, len(raw))
	for i, r := range raw {
		if i < len(raw)-1 {
			out[i] = r + sep
		} else {
			out[i] = r
		}
	}
	return out
}

// splitLarge breaks an oversized span into sentence spans, falling back to
// word spans and finally fixed-width character spans so that every
// returned span fits within the chunk size.
func (s *Splitter) splitLarge(src []rune, p span) []span {
	var out []span
	for _, sent := range sentenceSpans(src, p) {
		if sent.len() <= s.size {
			out = append(out, sent)
			continue
		}
		for _, w := range wordSpans(src, sent) {
			if w.len() <= s.size {
				out = append(out, w)
				continue
			}
			for i := w.start; i < w.end; i += s.size {
				end := i + s.size
				if end > w.end {
					end = w.end
				}
				out = append(out, span{i, end})
			}
		}
	}
	return out
}

// sentenceSpans splits p after each sentence terminator and its trailing
// whitespace.
func sentenceSpans(src []rune, p span) []span {
	text := string(src[p.start:p.end])
	locs := sentenceEnd.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return []span{p}
	}

	var out []span
	start := p.start
	byteToRune := runeIndexer(text)
	for _, loc := range locs {
		end := p.start + byteToRune(loc[1])
		if end > start {
			out = append(out, span{start, end})
			start = end
		}
	}
	if start < p.end {
		out = append(out, span{start, p.end})
	}
	return out
}

// wordSpans splits p after each run of spaces.
func wordSpans(src []rune, p span) []span {
	var out []span
	start := p.start
	for i := p.start; i < p.end; i++ {
		if src[i] == ' ' && (i+1 == p.end || src[i+1] != ' ') {
			out = append(out, span{start, i + 1})
			start = i + 1
		}
	}
	if start < p.end {
		out = append(out, span{start, p.end})
	}
	return out
}

// runeIndexer converts byte offsets of s into rune offsets.
func runeIndexer(s string) func(int) int {
	idx := make(map[int]int, len(s)+1)
	r := 0
	for b := range s {
		idx[b] = r
		r++
	}
	idx[len(s)] = r
	return func(b int) int { return idx[b] }
}
