package iprange

// IpRange is a closed interval of IPv4 addresses with optional country attribution.
type IpRange struct {
	// First address, dotted-decimal.
	Start string `json:"start"`

	// Last address, dotted-decimal.
	// Never less than Start.
	End string `json:"end"`

	// Number of addresses in the range.
	// Display only; the index always uses StartLong and EndLong.
	Count uint64 `json:"count"`

	// ISO 3166 country code, if the source carries country attribution.
	CountryCode string `json:"country_code,omitempty"`

	// Country name, if the source carries country attribution.
	CountryName string `json:"country_name,omitempty"`

	// MaxMind geoname ID the range was resolved through, if any.
	GeonameId string `json:"geoname_id,omitempty"`

	// Cached numeric bounds.
	// Populated by NewIndex.
	StartLong uint32 `json:"-"`
	EndLong   uint32 `json:"-"`
}

// Contains returns whether the numeric address falls inside the cached bounds of the range.
func (r IpRange) Contains(long uint32) bool {
	return long >= r.StartLong && long <= r.EndLong
}

// Size returns the number of addresses between the cached bounds.
func (r IpRange) Size() uint64 {
	return uint64(r.EndLong) - uint64(r.StartLong) + 1
}

// CountryEntry is a country observed in the loaded ranges.
type CountryEntry struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// CountryProfile is a requested share of generated addresses drawn from one country.
type CountryProfile struct {
	// Assigned by ProfileSet; opaque.
	Id int `json:"id"`

	CountryCode string `json:"country_code"`

	// Denormalized for display.
	CountryName string `json:"country_name"`

	// 0 to 100.
	Percentage int `json:"percentage"`
}

// LookupResult is the result of looking up the country of one IP address.
type LookupResult struct {
	Ip          string `json:"ip"`
	CountryCode string `json:"country_code"`
	CountryName string `json:"country_name"`
	Found       bool   `json:"found"`
}

// CountrySummary is the aggregated lookup count for one country.
type CountrySummary struct {
	Country     string  `json:"country"`
	CountryCode string  `json:"country_code"`
	Count       int     `json:"count"`
	Percentage  float64 `json:"percentage"`
}

// SourceKind is the parser that produced the currently loaded range set.
type SourceKind string

func (k SourceKind) String() string {
	return string(k)
}

const (
	SourceNone      SourceKind = "none"
	SourcePlainList SourceKind = "json"
	SourceCountries SourceKind = "csv"
	SourceMaxmind   SourceKind = "maxmind"
	SourceMmdb      SourceKind = "mmdb"
)

// Status describes what is currently loaded.
type Status struct {
	Source SourceKind

	// Number of loaded ranges.
	RangeCount int

	// Number of distinct countries in the loaded ranges.
	CountryCount int

	// Selected country code, or empty if none.
	SelectedCountry string

	// Number of ranges available to simple generation.
	ActiveRangeCount int

	MaxmindState MaxmindState

	// MaxMind files that still need to be loaded before the tables can be joined.
	MissingMaxmindFiles []string
}
