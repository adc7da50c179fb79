package iprange

// MaxmindLocation is a row of a MaxMind GeoLite2 country locations file.
type MaxmindLocation struct {
	GeonameId         string
	LocaleCode        string
	ContinentCode     string
	ContinentName     string
	CountryIsoCode    string
	CountryName       string
	IsInEuropeanUnion string
}

// MaxmindBlock is a row of a MaxMind GeoLite2 country IPv4 blocks file.
type MaxmindBlock struct {
	Network                     string
	GeonameId                   string
	RegisteredCountryGeonameId  string
	RepresentedCountryGeonameId string
	IsAnonymousProxy            string
	IsSatelliteProvider         string
	IsAnycast                   string

	// The expanded network.
	Range IpRange
}

// ParseMaxmindLocations parses a MaxMind locations file into a map keyed by geoname ID.
// The first line is a header and is skipped. Rows with fewer than six fields are skipped.
func ParseMaxmindLocations(content []byte) (map[string]MaxmindLocation, error) {
	reader := newLineReader(content)
	locations := make(map[string]MaxmindLocation)

	// Header.
	reader.next()

	for {
		line, ok := reader.next()
		if !ok {
			break
		}

		fields := splitCsvLine(line)
		if len(fields) < 6 {
			continue
		}

		loc := MaxmindLocation{
			GeonameId:         fields[0],
			LocaleCode:        fields[1],
			ContinentCode:     fields[2],
			ContinentName:     fields[3],
			CountryIsoCode:    fields[4],
			CountryName:       fields[5],
			IsInEuropeanUnion: fieldOr(fields, 6, "0"),
		}
		locations[loc.GeonameId] = loc
		reader.ok()
	}

	if err := reader.err(); err != nil {
		return nil, err
	}

	return locations, nil
}

// ParseMaxmindBlocks parses a MaxMind IPv4 blocks file.
// The first line is a header and is skipped. Rows with fewer than three fields are skipped.
// Rows whose network is not a valid IPv4 CIDR count as bad rows.
func ParseMaxmindBlocks(content []byte) ([]MaxmindBlock, error) {
	reader := newLineReader(content)
	blocks := make([]MaxmindBlock, 0, 1024)

	// Header.
	reader.next()

	for {
		line, ok := reader.next()
		if !ok {
			break
		}

		fields := splitCsvLine(line)
		if len(fields) < 3 {
			continue
		}

		r, err := CidrToRange(fields[0])
		if err != nil {
			reader.fail("%v", err)
			continue
		}

		blocks = append(blocks, MaxmindBlock{
			Network:                     fields[0],
			GeonameId:                   fields[1],
			RegisteredCountryGeonameId:  fields[2],
			RepresentedCountryGeonameId: fieldOr(fields, 3, ""),
			IsAnonymousProxy:            fieldOr(fields, 4, "0"),
			IsSatelliteProvider:         fieldOr(fields, 5, "0"),
			IsAnycast:                   fieldOr(fields, 6, "0"),
			Range:                       r,
		})
		reader.ok()
	}

	if err := reader.err(); err != nil {
		return nil, err
	}

	return blocks, nil
}

// JoinMaxmind resolves the country of every block and returns the resulting ranges in block order.
// The geoname ID of a block is used first, falling back to the registered country geoname ID when empty.
// Blocks that resolve to no location, or to a location without an ISO code, are skipped.
func JoinMaxmind(locations map[string]MaxmindLocation, blocks []MaxmindBlock) []IpRange {
	ranges := make([]IpRange, 0, len(blocks))

	for _, block := range blocks {
		geonameId := block.GeonameId
		if geonameId == "" {
			geonameId = block.RegisteredCountryGeonameId
		}

		loc, has := locations[geonameId]
		if !has || loc.CountryIsoCode == "" {
			continue
		}

		r := block.Range
		r.CountryCode = loc.CountryIsoCode
		r.CountryName = loc.CountryName
		r.GeonameId = geonameId
		ranges = append(ranges, r)
	}

	return ranges
}

// MaxmindState is the state of a MaxmindJoiner.
type MaxmindState int

const (
	MaxmindEmpty MaxmindState = iota
	MaxmindLocationsOnly
	MaxmindBlocksOnly
	MaxmindJoined
)

func (s MaxmindState) String() string {
	switch s {
	case MaxmindLocationsOnly:
		return "locations_only"
	case MaxmindBlocksOnly:
		return "blocks_only"
	case MaxmindJoined:
		return "joined"
	default:
		return "empty"
	}
}

// MaxmindJoiner accumulates the two MaxMind tables, which may arrive in either order,
// and joins them once both are present.
// Only the MaxmindJoined state exposes ranges.
//
// Not safe for concurrent use; Db serializes access to it.
type MaxmindJoiner struct {
	state     MaxmindState
	locations map[string]MaxmindLocation
	blocks    []MaxmindBlock
	ranges    []IpRange
}

// NewMaxmindJoiner creates an empty MaxmindJoiner.
func NewMaxmindJoiner() *MaxmindJoiner {
	return &MaxmindJoiner{}
}

// SetLocations replaces the locations table.
// Returns true if both tables are now present and the join ran.
func (j *MaxmindJoiner) SetLocations(locations map[string]MaxmindLocation) bool {
	j.locations = locations
	switch j.state {
	case MaxmindEmpty:
		j.state = MaxmindLocationsOnly
	case MaxmindBlocksOnly, MaxmindJoined:
		j.join()
	}
	return j.state == MaxmindJoined
}

// SetBlocks replaces the blocks table.
// Returns true if both tables are now present and the join ran.
func (j *MaxmindJoiner) SetBlocks(blocks []MaxmindBlock) bool {
	j.blocks = blocks
	switch j.state {
	case MaxmindEmpty:
		j.state = MaxmindBlocksOnly
	case MaxmindLocationsOnly, MaxmindJoined:
		j.join()
	}
	return j.state == MaxmindJoined
}

func (j *MaxmindJoiner) join() {
	j.ranges = JoinMaxmind(j.locations, j.blocks)
	j.state = MaxmindJoined
}

// State returns the current state.
func (j *MaxmindJoiner) State() MaxmindState {
	return j.state
}

// Ranges returns the joined ranges.
// The second return value is false unless the state is MaxmindJoined.
func (j *MaxmindJoiner) Ranges() ([]IpRange, bool) {
	if j.state != MaxmindJoined {
		return nil, false
	}
	return j.ranges, true
}

// Missing returns the file names of the tables that have not been loaded yet.
func (j *MaxmindJoiner) Missing() []string {
	switch j.state {
	case MaxmindEmpty:
		return []string{MaxmindLocationsFileName, MaxmindBlocksFileName}
	case MaxmindLocationsOnly:
		return []string{MaxmindBlocksFileName}
	case MaxmindBlocksOnly:
		return []string{MaxmindLocationsFileName}
	default:
		return nil
	}
}

// Reset drops both tables and returns to MaxmindEmpty.
func (j *MaxmindJoiner) Reset() {
	*j = MaxmindJoiner{}
}
