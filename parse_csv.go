package iprange

import (
	"strconv"
)

// ParseCountryCsv parses a country CSV with rows of startLong,endLong,countryCode,countryName.
// Fields may be wrapped in double quotes. Rows with fewer than four fields are skipped.
func ParseCountryCsv(content []byte) ([]IpRange, error) {
	reader := newLineReader(content)
	ranges := make([]IpRange, 0, 1024)

	for {
		line, ok := reader.next()
		if !ok {
			break
		}

		fields := splitCsvLine(line)
		if len(fields) < 4 {
			continue
		}

		start, err := strconv.ParseUint(fields[0], 10, 32)
		if err != nil {
			reader.fail("invalid start \"%s\"", fields[0])
			continue
		}
		end, err := strconv.ParseUint(fields[1], 10, 32)
		if err != nil {
			reader.fail("invalid end \"%s\"", fields[1])
			continue
		}
		if start > end {
			reader.fail("start %d is after end %d", start, end)
			continue
		}

		r := rangeFromLongs(uint32(start), uint32(end))
		r.CountryCode = fields[2]
		r.CountryName = fields[3]
		ranges = append(ranges, r)
		reader.ok()
	}

	if err := reader.err(); err != nil {
		return nil, err
	}

	return ranges, nil
}
