package iprange

import (
	"cmp"
	"slices"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// DeriveCountries returns the distinct countries of the ranges, sorted by name.
// Countries are unique by code (case-sensitive); the last name seen for a code wins.
// Ranges without a country code are ignored.
func DeriveCountries(ranges []IpRange) []CountryEntry {
	names := make(map[string]string)
	for _, r := range ranges {
		if r.CountryCode == "" {
			continue
		}
		names[r.CountryCode] = r.CountryName
	}

	countries := make([]CountryEntry, 0, len(names))
	for code, name := range names {
		countries = append(countries, CountryEntry{
			Code: code,
			Name: name,
		})
	}

	SortCountries(countries)
	return countries
}

// SortCountries sorts countries by name using English collation, then by code.
func SortCountries(countries []CountryEntry) {
	col := collate.New(language.English)
	slices.SortFunc(countries, func(a, b CountryEntry) int {
		if c := col.CompareString(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.Code, b.Code)
	})
}
