package chunk

import (
	"encoding/csv"
	"strings"
)

var tabularFileTypes = map[string]bool{
	"xlsx": true, "xls": true, "csv": true, "tsv": true, "spreadsheet": true,
}

// Header names that identify the counterparty of a row, most specific first.
var vendorColumnKeys = []string{
	"vendor", "supplier", "party", "seller", "customer", "buyer", "deductor", "deductee", "gstin", "pan",
}

// TabularStrategy chunks spreadsheet exports. Rows are grouped by the
// vendor/tax-id column when one exists, otherwise batched; every chunk
// repeats the header line.
type TabularStrategy struct {
	rowsPerChunk int
	maxGroupRows int
}

// NewTabularStrategy creates a tabular strategy.
func NewTabularStrategy(opts Options) *TabularStrategy {
	opts = opts.withDefaults()
	return &TabularStrategy{rowsPerChunk: opts.RowsPerChunk, maxGroupRows: opts.MaxGroupRows}
}

func (s *TabularStrategy) Name() string { return "tabular" }

func (s *TabularStrategy) Applies(fileType string) bool { return tabularFileTypes[fileType] }

type tableLine struct {
	line
	index int // data row index, 0-based
	cells []string
}

func (s *TabularStrategy) Chunk(text string) []*Chunk {
	src := []rune(text)
	var lines []line
	start := 0
	for i := 0; i <= len(src); i++ {
		if i == len(src) || src[i] == '\n' {
			l := line{text: strings.TrimRight(string(src[start:i]), "\r"), start: start, end: i}
			if !l.blank() {
				lines = append(lines, l)
			}
			start = i + 1
		}
	}
	if len(lines) < 2 {
		return nil
	}

	header := lines[0]
	split := cellSplitter(header.text)
	headerText := strings.TrimSpace(header.text)
	rows := make([]tableLine, 0, len(lines)-1)
	for i, l := range lines[1:] {
		rows = append(rows, tableLine{line: l, index: i, cells: split(l.text)})
	}

	if col := vendorColumn(split(header.text)); col >= 0 {
		return s.groupByVendor(headerText, rows, col)
	}
	return s.batch(headerText, rows)
}

// cellSplitter picks the delimiter from the header line.
func cellSplitter(header string) func(string) []string {
	switch {
	case strings.Contains(header, "\t"):
		return func(s string) []string { return trimAll(strings.Split(s, "\t")) }
	case strings.Count(header, "|") >= 2:
		return func(s string) []string { return trimAll(strings.Split(strings.Trim(strings.TrimSpace(s), "|"), "|")) }
	case strings.Contains(header, ","):
		return func(s string) []string {
			r := csv.NewReader(strings.NewReader(s))
			r.LazyQuotes = true
			r.FieldsPerRecord = -1
			rec, err := r.Read()
			if err != nil {
				return trimAll(strings.Split(s, ","))
			}
			return trimAll(rec)
		}
	default:
		return func(s string) []string { return trimAll(cellGap.Split(strings.TrimSpace(s), -1)) }
	}
}

func trimAll(in []string) []string {
	for i := range in {
		in[i] = strings.TrimSpace(in[i])
	}
	return in
}

// vendorColumn returns the index of the counterparty column, or -1.
func vendorColumn(headers []string) int {
	for _, key := range vendorColumnKeys {
		for i, h := range headers {
			if strings.Contains(strings.ToLower(h), key) {
				return i
			}
		}
	}
	return -1
}

func (s *TabularStrategy) groupByVendor(header string, rows []tableLine, col int) []*Chunk {
	var order []string
	groups := map[string][]tableLine{}
	for _, r := range rows {
		key := ""
		if col < len(r.cells) {
			key = r.cells[col]
		}
		norm := strings.ToUpper(strings.Join(strings.Fields(key), " "))
		if _, ok := groups[norm]; !ok {
			order = append(order, norm)
		}
		groups[norm] = append(groups[norm], r)
	}

	var out []*Chunk
	for _, norm := range order {
		g := groups[norm]
		vendor := ""
		if norm != "" && col < len(g[0].cells) {
			vendor = g[0].cells[col]
		}
		for i := 0; i < len(g); i += s.maxGroupRows {
			end := min(i+s.maxGroupRows, len(g))
			c := rowChunk(header, g[i:end])
			c.Metadata.Vendor = vendor
			out = append(out, c)
		}
	}
	return out
}

func (s *TabularStrategy) batch(header string, rows []tableLine) []*Chunk {
	var out []*Chunk
	for i := 0; i < len(rows); i += s.rowsPerChunk {
		end := min(i+s.rowsPerChunk, len(rows))
		out = append(out, rowChunk(header, rows[i:end]))
	}
	return out
}

func rowChunk(header string, rows []tableLine) *Chunk {
	var b strings.Builder
	b.WriteString(header)
	start, end := rows[0].start, rows[0].end
	for _, r := range rows {
		b.WriteByte('\n')
		b.WriteString(strings.TrimSpace(r.text))
		start = min(start, r.start)
		end = max(end, r.end)
	}
	return &Chunk{
		Text: b.String(),
		Metadata: Metadata{
			Type:        TypeTableRow,
			StartOffset: start,
			EndOffset:   end,
			TableRow:    &TableRow{TableIndex: 0, RowIndex: rows[0].index, Header: header},
		},
	}
}
