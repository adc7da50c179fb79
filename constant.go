package iprange

// ExportNameMaxSize is the max size of an export name, in bytes.
const ExportNameMaxSize = 64

// NotFound is the country code and name used in a LookupResult when no loaded range contains the IP.
const NotFound = "Not Found"

// MaxPercentage is the maximum sum of all profile percentages.
const MaxPercentage = 100

// Export file names.
const (
	// ExportNameGeneratedIps is the name of the generated IPs export when no country is selected.
	ExportNameGeneratedIps = "generated_ips.txt"

	// ExportNameLookupResults is the name of the lookup results export.
	ExportNameLookupResults = "ip_lookup_results.csv"

	// ExportNameCountrySummary is the name of the country summary export.
	ExportNameCountrySummary = "country_summary.csv"
)

// Header rows of the CSV exports.
var (
	lookupResultsHeader  = []string{"IP Address", "Country Code", "Country Name", "Found"}
	countrySummaryHeader = []string{"Country", "Country Code", "IP Count", "Percentage"}
)

// The MaxMind file names shown when one of the two tables is missing.
const (
	MaxmindLocationsFileName = "GeoLite2-Country-Locations-en.csv"
	MaxmindBlocksFileName    = "GeoLite2-Country-Blocks-IPv4.csv"
)
