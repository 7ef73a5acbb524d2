package retrieval

import (
	"regexp"
	"strings"

	"github.com/Bikash9609/ca-ai/internal/chunk"
	"github.com/Bikash9609/ca-ai/internal/store"
)

// PaymentKeywords mark a query as asking about money movement.
var PaymentKeywords = []string{
	"paid", "payment", "tds", "advance", "outstanding", "due", "receipt", "remittance",
}

var (
	yearPattern      = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)
	quarterPattern   = regexp.MustCompile(`(?i)\bQ[1-4]\b`)
	fyPattern        = regexp.MustCompile(`(?i)\bFY(?:\s*'?\d{2,4}(?:\s*[-/]\s*\d{2,4})?)?\b`)
	monthYearPattern = regexp.MustCompile(`(?i)\b(jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\s+((?:19|20)\d{2})\b`)
	paymentPattern   = regexp.MustCompile(`(?i)\b(?:` + strings.Join(PaymentKeywords, "|") + `)\b`)
)

var monthNumbers = map[string]string{
	"jan": "01", "feb": "02", "mar": "03", "apr": "04", "may": "05", "jun": "06",
	"jul": "07", "aug": "08", "sep": "09", "oct": "10", "nov": "11", "dec": "12",
}

// queryHints is what Pass B reads out of the query text.
type queryHints struct {
	identifiers []string
	periods     []string
	payment     bool
}

func parseHints(query string) queryHints {
	ids := chunk.NewEntityExtractor().Identifiers(query)
	return queryHints{
		identifiers: ids,
		periods:     periodHints(withoutIdentifiers(query, ids)),
		payment:     paymentPattern.MatchString(query),
	}
}

// withoutIdentifiers blanks every identifier span in query so a year inside
// "INV-2024-001" is not read as a period. A bare year stays.
func withoutIdentifiers(query string, ids []string) string {
	for _, id := range ids {
		if yearPattern.FindString(id) == id {
			continue
		}
		re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(id))
		query = re.ReplaceAllLiteralString(query, " ")
	}
	return query
}

// periodHints returns the normalized period tokens of the query. A
// "Month Year" also yields its "YYYY-MM" form.
func periodHints(query string) []string {
	seen := make(map[string]struct{})
	var hints []string
	add := func(h string) {
		h = normalizePeriod(h)
		if h == "" {
			return
		}
		if _, ok := seen[h]; ok {
			return
		}
		seen[h] = struct{}{}
		hints = append(hints, h)
	}

	for _, m := range monthYearPattern.FindAllStringSubmatch(query, -1) {
		add(m[1] + m[2])
		add(m[2] + "-" + monthNumbers[strings.ToLower(m[1][:3])])
	}
	for _, m := range fyPattern.FindAllString(query, -1) {
		add(m)
	}
	for _, m := range quarterPattern.FindAllString(query, -1) {
		add(m)
	}
	for _, m := range yearPattern.FindAllString(query, -1) {
		add(m)
	}
	return hints
}

// normalizePeriod lowercases p and drops whitespace and apostrophes so
// "FY 2023-24" and "fy2023-24" compare equal.
func normalizePeriod(p string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\'':
			return -1
		}
		if r >= 'A' && r <= 'Z' {
			return r + ('a' - 'A')
		}
		return r
	}, p)
}

// matchesPeriod reports whether the chunk's period contains any hint.
func matchesPeriod(c *store.Chunk, hints []string) bool {
	period := normalizePeriod(c.Period)
	if period == "" {
		return false
	}
	for _, h := range hints {
		if strings.Contains(period, h) {
			return true
		}
	}
	return false
}

// matchesPaymentIntent keeps structured chunks and any chunk that mentions
// a payment keyword.
func matchesPaymentIntent(c *store.Chunk) bool {
	switch c.Metadata.Type {
	case chunk.TypeTableRow, chunk.TypeInvoiceBlock:
		return true
	}
	return paymentPattern.MatchString(c.Text)
}

// matchesIdentifier reports whether the chunk carries any of ids.
func matchesIdentifier(c *store.Chunk, ids []string) bool {
	for _, id := range ids {
		if c.Metadata.IdentifiesWith(id) {
			return true
		}
	}
	return false
}
