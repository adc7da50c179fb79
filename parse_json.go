package iprange

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

type plainListDocument struct {
	Data [][]string `json:"data"`
}

// ParsePlainList parses a plain range list document of the form {"data": [[startIp, endIp, "1,024"], ...]}.
// Counts may contain thousands separators. The returned ranges carry no country attribution.
func ParsePlainList(content []byte) ([]IpRange, error) {
	var doc plainListDocument
	if err := json.Unmarshal(content, &doc); err != nil {
		return nil, errors.Wrap(err, "failed to decode plain range list")
	}
	if doc.Data == nil {
		return nil, errors.New(`plain range list has no "data" field`)
	}

	ranges := make([]IpRange, 0, len(doc.Data))
	failures := make([]error, 0, maxLineFailures)
	failCount := 0
	fail := func(i int, format string, args ...any) {
		failCount++
		if len(failures) < maxLineFailures {
			failures = append(failures, fmt.Errorf("entry %d: %s", i, fmt.Sprintf(format, args...)))
		}
	}

	for i, entry := range doc.Data {
		if len(entry) < 3 {
			fail(i, "expected [start, end, count], got %d elements", len(entry))
			continue
		}

		start, err := IpToLong(strings.TrimSpace(entry[0]))
		if err != nil {
			fail(i, "%v", err)
			continue
		}
		end, err := IpToLong(strings.TrimSpace(entry[1]))
		if err != nil {
			fail(i, "%v", err)
			continue
		}
		if start > end {
			fail(i, "start %s is after end %s", entry[0], entry[1])
			continue
		}

		countStr := strings.ReplaceAll(strings.TrimSpace(entry[2]), ",", "")
		if _, err := strconv.ParseUint(countStr, 10, 64); err != nil {
			fail(i, "invalid count \"%s\"", entry[2])
			continue
		}

		ranges = append(ranges, rangeFromLongs(start, end))
	}

	if failCount > len(ranges) {
		return nil, fmt.Errorf("encountered %d bad entries, but only %d entries were parsed successfully: %w", failCount, len(ranges), stderrors.Join(failures...))
	}
	if len(ranges) == 0 {
		return nil, ErrEmptySource
	}

	return ranges, nil
}
