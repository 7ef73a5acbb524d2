package chunk

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// EntityExtractor pulls dates, amounts, tax identifiers, invoice numbers
// and party names out of chunk text.
type EntityExtractor struct{}

// NewEntityExtractor creates an extractor.
func NewEntityExtractor() *EntityExtractor { return &EntityExtractor{} }

var (
	panPattern   = regexp.MustCompile(`\b([A-Z]{5}[0-9]{4}[A-Z])\b`)
	gstinPattern = regexp.MustCompile(`\b([0-9A-Z]{15})\b`)

	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b(\d{1,2}[-/]\d{1,2}[-/]\d{2,4})\b`),
		regexp.MustCompile(`\b(\d{4}[-/]\d{1,2}[-/]\d{1,2})\b`),
		regexp.MustCompile(`(?i)\b(\d{1,2}\s+(?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\s+\d{2,4})\b`),
	}
	dateLayouts = []string{
		"2-1-2006", "2/1/2006", "2006-1-2", "2006/1/2",
		"2-1-06", "2/1/06",
		"2 Jan 2006", "2 January 2006", "2 Jan 06", "2 January 06",
	}

	amountPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?:₹|\$|€|£|\b(?i:rs\.?|inr))\s*(\d{1,3}(?:,\d{2,3})+(?:\.\d{1,2})?|\d+(?:\.\d{1,2})?)`),
		regexp.MustCompile(`(\d{1,3}(?:,\d{2,3})+(?:\.\d{1,2})?|\d+(?:\.\d{1,2})?)\s*(?:INR|USD|EUR|GBP)\b`),
		regexp.MustCompile(`(?i)\b(?:amount|total|value|tax|paid)\b[^\d\n]{0,12}(\d{1,3}(?:,\d{2,3})+(?:\.\d{1,2})?|\d+(?:\.\d{1,2})?)`),
	}

	invoicePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:tax\s+invoice|invoice|bill|inv)\s*(?:no\.?|number|num\.?|#)?\s*[:#]?\s*([A-Z0-9][A-Z0-9\-/]{2,})`),
		regexp.MustCompile(`(?i)\b((?:inv|bill)[-/][A-Z0-9][A-Z0-9\-/]*)`),
	}

	namePatterns = []*regexp.Regexp{
		labelledName(`from|vendor|supplier|seller|client|customer|deductor|deductee|party`),
		regexp.MustCompile(`(?m)^[ \t]*([A-Z][A-Za-z&]*(?:[ \t]+(?:&|[A-Z][A-Za-z&]*)){0,5})[ \t]+(?:Pvt|Ltd|Private|Limited|LLP|Inc)\b`),
	}

	// Only counterparty labels name a vendor; client and customer labels
	// name the books' owner.
	vendorPattern = labelledName(`from|vendor|supplier|seller`)

	// Labels that trail a name on the same line.
	nameStopWords = map[string]bool{
		"GSTIN": true, "GST": true, "PAN": true, "INVOICE": true, "ADDRESS": true,
		"DATE": true, "DATED": true, "AMOUNT": true, "BILL": true, "NO": true, "NO.": true,
	}
)

// Extract returns all entities found in text, deduplicated in order of
// first appearance. Amounts are sorted descending.
func (x *EntityExtractor) Extract(text string) Entities {
	if strings.TrimSpace(text) == "" {
		return Entities{}
	}
	upper := strings.ToUpper(text)
	return Entities{
		Dates:          x.dates(text),
		Amounts:        x.amounts(text),
		PANs:           allMatches(panPattern, upper, nil),
		GSTINs:         allMatches(gstinPattern, upper, isGSTINLike),
		InvoiceNumbers: x.invoiceNumbers(text),
		Names:          x.names(text),
	}
}

// Identifiers returns the exact-match identifiers in text: PANs,
// GSTIN-like 15-character ids, and invoice numbers.
func (x *EntityExtractor) Identifiers(text string) []string {
	upper := strings.ToUpper(text)
	ids := allMatches(panPattern, upper, nil)
	ids = append(ids, allMatches(gstinPattern, upper, isGSTINLike)...)
	ids = append(ids, x.invoiceNumbers(text)...)
	return dedupe(ids)
}

func (x *EntityExtractor) dates(text string) []string {
	var out []string
	for _, re := range datePatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if validDate(m[1]) {
				out = append(out, m[1])
			}
		}
	}
	return dedupe(out)
}

func validDate(s string) bool {
	s = strings.Join(strings.Fields(s), " ")
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

func (x *EntityExtractor) amounts(text string) []float64 {
	seen := map[float64]bool{}
	var out []float64
	for _, re := range amountPatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
			if err != nil || v <= 0 || seen[v] {
				continue
			}
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(out)))
	return out
}

func (x *EntityExtractor) invoiceNumbers(text string) []string {
	var out []string
	for _, re := range invoicePatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			id := strings.Trim(m[1], "-/")
			if len(id) > 2 && strings.ContainsAny(id, "0123456789") {
				out = append(out, id)
			}
		}
	}
	return dedupeFold(out)
}

func (x *EntityExtractor) names(text string) []string {
	var out []string
	for _, re := range namePatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			name := trimNameLabels(m[1])
			if len(name) >= 3 && len(name) <= 50 {
				out = append(out, name)
			}
		}
	}
	return dedupe(out)
}

// VendorName returns the first name introduced by a vendor, supplier,
// seller or from label, or "" when there is none.
func (x *EntityExtractor) VendorName(text string) string {
	for _, m := range vendorPattern.FindAllStringSubmatch(text, -1) {
		name := trimNameLabels(m[1])
		if len(name) >= 3 && len(name) <= 50 {
			return name
		}
	}
	return ""
}

func labelledName(labels string) *regexp.Regexp {
	return regexp.MustCompile(`\b(?i:` + labels + `)\b[ \t]*(?i:name)?[ \t]*:?[ \t]*([A-Z][A-Za-z&.]*(?:[ \t]+(?:&|[A-Z][A-Za-z&.]*)){0,5})`)
}

func trimNameLabels(name string) string {
	words := strings.Fields(name)
	for len(words) > 0 && nameStopWords[strings.ToUpper(words[len(words)-1])] {
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}

// isGSTINLike rejects 15-letter words; a tax id mixes digits and letters.
func isGSTINLike(s string) bool {
	return strings.ContainsAny(s, "0123456789") && strings.IndexFunc(s, func(r rune) bool {
		return r >= 'A' && r <= 'Z'
	}) >= 0
}

func allMatches(re *regexp.Regexp, text string, keep func(string) bool) []string {
	var out []string
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		if keep == nil || keep(m[1]) {
			out = append(out, m[1])
		}
	}
	return dedupe(out)
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := in[:0:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func dedupeFold(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		k := strings.ToUpper(s)
		if !seen[k] {
			seen[k] = true
			out = append(out, s)
		}
	}
	return out
}
