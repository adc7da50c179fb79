package iprange

import (
	"cmp"
	"slices"
)

// Summarize aggregates found lookup results per country code.
// Results that were not found are ignored. Rows are sorted by count, descending;
// countries with equal counts keep the order in which they first appeared.
func Summarize(results []LookupResult) []CountrySummary {
	positions := make(map[string]int)
	rows := make([]CountrySummary, 0)
	total := 0

	for _, res := range results {
		if !res.Found {
			continue
		}
		total++

		pos, has := positions[res.CountryCode]
		if !has {
			pos = len(rows)
			positions[res.CountryCode] = pos
			rows = append(rows, CountrySummary{
				Country:     res.CountryName,
				CountryCode: res.CountryCode,
			})
		}
		rows[pos].Count++
	}

	for i := range rows {
		rows[i].Percentage = float64(rows[i].Count) / float64(total) * 100
	}

	slices.SortStableFunc(rows, func(a, b CountrySummary) int {
		return cmp.Compare(b.Count, a.Count)
	})

	return rows
}

// CountNotFound returns the number of results that were not found.
func CountNotFound(results []LookupResult) int {
	n := 0
	for _, res := range results {
		if !res.Found {
			n++
		}
	}
	return n
}
