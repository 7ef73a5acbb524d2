package chunk

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var pageFileTypes = map[string]bool{
	"pdf": true, "image": true, "scan": true,
	"png": true, "jpg": true, "jpeg": true, "tif": true, "tiff": true,
}

var (
	// --- Page 3 --- markers emitted by the text extractor.
	pageMarker = regexp.MustCompile(`^[ \t]*-{2,}[ \t]*(?i:page)[ \t]+(\d+)[ \t]*-{2,}[ \t]*$`)

	// |---|:--:| style rule lines inside a table.
	tableRule = regexp.MustCompile(`^[\s|:+\-]+$`)

	multiSpace = regexp.MustCompile(`\S(?:[ ]{2,}|\t)\S`)
	cellGap    = regexp.MustCompile(`[ ]{2,}`)

	invoiceAnchor = regexp.MustCompile(`(?i)\b(tax\s+invoice(?:\s*(?:no\.?|number|#))?|invoice\s*(?:no\.?|number|#)|bill\s*(?:no\.?|number|#))\s*[:#.\-]?\s*([A-Z0-9][A-Z0-9\-/]*)`)
)

const (
	maxSectionHeaderLen    = 60
	minSectionHeaderLetter = 3
)

// PageStrategy chunks page-oriented documents (PDFs, scans). Tables become
// one table_row chunk per row, each repeating the header line, plus one
// header chunk per table. The remaining text is split by all-caps section
// headers; without sections, by invoice anchors into invoice_block chunks;
// otherwise into page chunks.
type PageStrategy struct {
	splitter *Splitter
}

// NewPageStrategy creates a page strategy.
func NewPageStrategy(opts Options) *PageStrategy {
	return &PageStrategy{splitter: NewSplitter(opts)}
}

func (s *PageStrategy) Name() string { return "page" }

func (s *PageStrategy) Applies(fileType string) bool { return pageFileTypes[fileType] }

type line struct {
	text  string
	start int // rune offset
	end   int
}

func (l line) blank() bool { return strings.TrimSpace(l.text) == "" }

type docPage struct {
	number int
	lines  []line
}

// block is a run of lines that are either all table lines or all text.
type block struct {
	table bool
	lines []line
}

type pageMode int

const (
	modeSections pageMode = iota
	modeInvoices
	modePlain
)

// pageState carries counters across pages of one document.
type pageState struct {
	src        []rune
	tableIndex int
	section    string
	out        []*Chunk
}

func (s *PageStrategy) Chunk(text string) []*Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	st := &pageState{src: []rune(text)}

	for _, pg := range splitPages(st.src) {
		blocks := splitBlocks(pg.lines)
		mode := detectMode(blocks)
		for _, b := range blocks {
			if b.table {
				s.emitTable(st, pg.number, b)
				continue
			}
			switch mode {
			case modeSections:
				s.emitSections(st, pg.number, b)
			case modeInvoices:
				s.emitInvoices(st, pg.number, b)
			default:
				s.emitSplit(st, pg.number, b.lines, TypePage, "", nil)
			}
		}
	}
	return st.out
}

// splitPages breaks src into pages on form feeds and page marker lines.
func splitPages(src []rune) []docPage {
	var pages []docPage
	cur := docPage{number: 1}
	next := 2

	push := func() {
		for _, l := range cur.lines {
			if !l.blank() {
				pages = append(pages, cur)
				break
			}
		}
	}

	start := 0
	for i := 0; i <= len(src); i++ {
		if i < len(src) && src[i] != '\n' && src[i] != '\f' {
			continue
		}
		l := line{text: string(src[start:i]), start: start, end: i}
		if m := pageMarker.FindStringSubmatch(l.text); m != nil {
			push()
			n, _ := strconv.Atoi(m[1])
			cur = docPage{number: n}
			next = n + 1
		} else {
			cur.lines = append(cur.lines, l)
		}
		if i < len(src) && src[i] == '\f' {
			push()
			cur = docPage{number: next}
			next++
		}
		start = i + 1
	}
	push()
	return pages
}

// tableCells splits a line into cells when it looks like a table row.
func tableCells(s string) []string {
	t := strings.TrimSpace(s)
	if t == "" {
		return nil
	}
	var cells []string
	switch {
	case strings.Count(t, "|") >= 2:
		cells = strings.Split(strings.Trim(t, "|"), "|")
	case strings.Contains(t, "\t"):
		cells = strings.Split(t, "\t")
	case len(multiSpace.FindAllStringIndex(t, -1)) >= 2:
		cells = cellGap.Split(t, -1)
	default:
		return nil
	}
	n := 0
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			n++
		}
	}
	if n < 2 {
		return nil
	}
	return cells
}

func isTableLine(s string) bool {
	return tableCells(s) != nil || (strings.Contains(s, "-") && strings.Contains(s, "|") && tableRule.MatchString(s))
}

// splitBlocks groups lines into table runs (two or more consecutive table
// lines) and text runs.
func splitBlocks(lines []line) []block {
	var blocks []block
	var text []line
	flushText := func() {
		if len(text) > 0 {
			blocks = append(blocks, block{lines: text})
			text = nil
		}
	}

	for i := 0; i < len(lines); {
		j := i
		for j < len(lines) && isTableLine(lines[j].text) {
			j++
		}
		if j-i >= 2 && tableCells(lines[i].text) != nil {
			flushText()
			blocks = append(blocks, block{table: true, lines: lines[i:j]})
			i = j
			continue
		}
		text = append(text, lines[i])
		i++
	}
	flushText()
	return blocks
}

// isSectionHeader reports a short all-caps line with at least three letters.
func isSectionHeader(s string) bool {
	t := strings.TrimSpace(s)
	if t == "" || len([]rune(t)) > maxSectionHeaderLen || invoiceAnchor.MatchString(t) {
		return false
	}
	letters := 0
	for _, r := range t {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			letters++
		}
	}
	// Label/value lines and identifiers (GSTINs, invoice numbers) are not headers.
	if strings.Contains(t, ":") {
		return false
	}
	for _, f := range strings.Fields(t) {
		if len(f) >= 6 && strings.ContainsAny(f, "0123456789") {
			return false
		}
	}
	return letters >= minSectionHeaderLetter
}

func detectMode(blocks []block) pageMode {
	anchors := false
	for _, b := range blocks {
		if b.table {
			continue
		}
		for _, l := range b.lines {
			if isSectionHeader(l.text) {
				return modeSections
			}
			if invoiceAnchor.MatchString(l.text) {
				anchors = true
			}
		}
	}
	if anchors {
		return modeInvoices
	}
	return modePlain
}

func (s *PageStrategy) emitTable(st *pageState, pageNum int, b block) {
	header := strings.TrimSpace(b.lines[0].text)
	idx := st.tableIndex
	st.tableIndex++

	st.out = append(st.out, &Chunk{
		Text: header,
		Metadata: Metadata{
			Type:        TypeTableRow,
			Page:        pageNum,
			Section:     st.section,
			StartOffset: b.lines[0].start,
			EndOffset:   b.lines[0].end,
			TableRow:    &TableRow{TableIndex: idx, RowIndex: -1, Header: header, IsHeader: true},
		},
	})

	row := 0
	for _, l := range b.lines[1:] {
		t := strings.TrimSpace(l.text)
		if t == "" || tableRule.MatchString(t) {
			continue
		}
		st.out = append(st.out, &Chunk{
			Text: header + "\n" + t,
			Metadata: Metadata{
				Type:        TypeTableRow,
				Page:        pageNum,
				Section:     st.section,
				StartOffset: l.start,
				EndOffset:   l.end,
				TableRow:    &TableRow{TableIndex: idx, RowIndex: row, Header: header},
			},
		})
		row++
	}
}

func (s *PageStrategy) emitSections(st *pageState, pageNum int, b block) {
	var buf []line
	for _, l := range b.lines {
		if isSectionHeader(l.text) {
			s.emitSplit(st, pageNum, buf, TypeParagraph, st.section, nil)
			buf = nil
			st.section = strings.TrimSpace(l.text)
		}
		buf = append(buf, l)
	}
	s.emitSplit(st, pageNum, buf, TypeParagraph, st.section, nil)
}

func (s *PageStrategy) emitInvoices(st *pageState, pageNum int, b block) {
	var buf []line
	var inv *Invoice
	for _, l := range b.lines {
		if m := invoiceAnchor.FindStringSubmatch(l.text); m != nil {
			s.emitBlock(st, pageNum, buf, inv)
			buf = nil
			inv = &Invoice{Anchor: strings.Join(strings.Fields(m[1]), " "), Number: invoiceNumberOf(m[2])}
		}
		buf = append(buf, l)
	}
	s.emitBlock(st, pageNum, buf, inv)
}

func (s *PageStrategy) emitBlock(st *pageState, pageNum int, lines []line, inv *Invoice) {
	if inv == nil {
		s.emitSplit(st, pageNum, lines, TypePage, "", nil)
		return
	}
	s.emitSplit(st, pageNum, lines, TypeInvoiceBlock, "", inv)
}

// invoiceNumberOf keeps the anchor's identifier only when it looks like one.
func invoiceNumberOf(s string) string {
	s = strings.Trim(s, "-/")
	if strings.ContainsAny(s, "0123456789") {
		return s
	}
	return ""
}

// emitSplit splits a contiguous run of lines and appends chunks of type t.
func (s *PageStrategy) emitSplit(st *pageState, pageNum int, lines []line, t Type, section string, inv *Invoice) {
	if len(lines) == 0 {
		return
	}
	base := lines[0].start
	text := string(st.src[base:lines[len(lines)-1].end])
	for _, p := range s.splitter.Split(text) {
		c := &Chunk{
			Text: p.Text,
			Metadata: Metadata{
				Type:        t,
				Page:        pageNum,
				Section:     section,
				StartOffset: base + p.Start,
				EndOffset:   base + p.End,
			},
		}
		if inv != nil {
			cp := *inv
			c.Metadata.Invoice = &cp
		}
		st.out = append(st.out, c)
	}
}
