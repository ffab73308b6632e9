package telemetry

import (
	"sort"
)

// Merge reconciles the result sets from the telemetry sources into a single
// canonical table with exactly one record per distinct client code - the most
// recent reading across all sources combined.
//
// The sources are concatenated in argument order and stable-sorted descending
// by timestamp, so for equal timestamps an earlier source takes precedence
// over a later one. Output order is the sorted order.
func Merge(sources ...[]Record) []Record {
	combined := []Record{}
	for _, source := range sources {
		combined = append(combined, source...)
	}

	sort.SliceStable(combined, func(i, j int) bool {
		return combined[i].ReadTimestampLocal.After(combined[j].ReadTimestampLocal)
	})

	seen := map[string]bool{}
	unique := make([]Record, 0, len(combined))

	for _, record := range combined {
		if !seen[record.ClientCode] {
			seen[record.ClientCode] = true
			unique = append(unique, record)
		}
	}

	return unique
}
