package iprange

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// WriteGeneratedIps writes addresses separated by newlines, without a header or trailing newline.
func WriteGeneratedIps(w io.Writer, ips []string) error {
	_, err := io.WriteString(w, strings.Join(ips, "\n"))
	return err
}

// WriteLookupResults writes lookup results as CSV with the header `IP Address,Country Code,Country Name,Found`.
func WriteLookupResults(w io.Writer, results []LookupResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(lookupResultsHeader); err != nil {
		return err
	}

	for _, res := range results {
		found := "No"
		if res.Found {
			found = "Yes"
		}
		if err := cw.Write([]string{
			res.Ip,
			res.CountryCode,
			res.CountryName,
			found,
		}); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteCountrySummary writes summary rows as CSV with the header `Country,Country Code,IP Count,Percentage`.
// Percentages are written with two decimals and a percent sign.
func WriteCountrySummary(w io.Writer, rows []CountrySummary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(countrySummaryHeader); err != nil {
		return err
	}

	for _, row := range rows {
		if err := cw.Write([]string{
			row.Country,
			row.CountryCode,
			strconv.Itoa(row.Count),
			fmt.Sprintf("%.2f%%", row.Percentage),
		}); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// GeneratedIpsExportName returns the export name for addresses generated from the selected country.
// An empty country code gives the generic name.
func GeneratedIpsExportName(countryCode string) string {
	if countryCode == "" {
		return ExportNameGeneratedIps
	}
	return "generated_ips_" + strings.ToLower(countryCode) + ".txt"
}
