package ledger

import (
	"fmt"
	"regexp"
	"strings"
)

// Span is a contiguous run of columns, 1-based and inclusive.
type Span struct {
	Left  int
	Right int
}

var spanExpr = regexp.MustCompile(`^([A-Za-z]+)(?::([A-Za-z]+))?$`)

// ParseSpans converts a list of column specifications ('B:V', 'AE') into
// column spans.
func ParseSpans(specs []string) ([]Span, error) {
	spans := []Span{}

	for _, spec := range specs {
		match := spanExpr.FindStringSubmatch(strings.TrimSpace(spec))
		if match == nil {
			return nil, fmt.Errorf("invalid column range '%s' - expected something like 'B:V' or 'AE'", spec)
		}

		left := colIndex(match[1])
		right := left
		if match[2] != "" {
			right = colIndex(match[2])
		}

		if right < left {
			return nil, fmt.Errorf("invalid column range '%s'", spec)
		}

		spans = append(spans, Span{Left: left, Right: right})
	}

	return spans, nil
}

// colIndex converts column letters (A, AB, ...) to a 1-based column index.
func colIndex(letters string) int {
	index := 0
	for _, ch := range strings.ToUpper(letters) {
		index = index*26 + int(ch-'A') + 1
	}

	return index
}

// colName converts a 1-based column index to column letters.
func colName(col int) string {
	name := ""
	for col > 0 {
		col--
		name = string(rune('A'+col%26)) + name
		col /= 26
	}

	return name
}
