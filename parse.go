package iprange

import (
	"bufio"
	"bytes"
	"encoding/csv"
	stderrors "errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// FileKind is the detected format of an input file.
type FileKind int

const (
	FileKindUnknown FileKind = iota
	FileKindPlainList
	FileKindCountryCsv
	FileKindMaxmindLocations
	FileKindMaxmindBlocks
	FileKindMmdb
)

func (k FileKind) String() string {
	switch k {
	case FileKindPlainList:
		return "plain range list"
	case FileKindCountryCsv:
		return "country CSV"
	case FileKindMaxmindLocations:
		return "MaxMind locations"
	case FileKindMaxmindBlocks:
		return "MaxMind blocks"
	case FileKindMmdb:
		return "MaxMind database"
	default:
		return "unknown"
	}
}

// DetectFileKind detects the format of a file from its name.
// Only the base name is considered, case-insensitively.
func DetectFileKind(name string) FileKind {
	base := strings.ToLower(filepath.Base(name))

	switch {
	case strings.HasSuffix(base, ".json"):
		return FileKindPlainList
	case strings.HasSuffix(base, ".mmdb"):
		return FileKindMmdb
	case strings.Contains(base, "locations"):
		return FileKindMaxmindLocations
	case strings.Contains(base, "blocks"):
		return FileKindMaxmindBlocks
	case strings.HasSuffix(base, ".csv"):
		return FileKindCountryCsv
	default:
		return FileKindUnknown
	}
}

// maxLineFailures is the number of bad-row errors kept for reporting.
const maxLineFailures = 10

// lineReader iterates the non-empty lines of a file and collects per-line failures.
type lineReader struct {
	scanner   *bufio.Scanner
	lineNum   int
	failures  []error
	failCount int
	good      int
}

func newLineReader(content []byte) *lineReader {
	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &lineReader{
		scanner:  scanner,
		failures: make([]error, 0, maxLineFailures),
	}
}

// next returns the next non-empty line, with any trailing carriage return removed.
func (r *lineReader) next() (string, bool) {
	for r.scanner.Scan() {
		r.lineNum++
		line := strings.TrimSpace(strings.TrimSuffix(r.scanner.Text(), "\r"))
		if line == "" {
			continue
		}
		return line, true
	}
	return "", false
}

func (r *lineReader) fail(format string, args ...any) {
	r.failCount++
	if len(r.failures) < maxLineFailures {
		r.failures = append(r.failures, fmt.Errorf("line %d: %s", r.lineNum, fmt.Sprintf(format, args...)))
	}
}

func (r *lineReader) ok() {
	r.good++
}

// err returns the error for the whole file, if any.
// A file fails if reading failed, if bad rows outnumber good rows, or if there were no rows at all.
func (r *lineReader) err() error {
	if err := r.scanner.Err(); err != nil {
		return errors.Wrapf(err, "failed to read line %d", r.lineNum+1)
	}
	if r.failCount > r.good {
		return fmt.Errorf("encountered %d bad rows, but only %d rows were parsed successfully; file is probably malformed: %w", r.failCount, r.good, stderrors.Join(r.failures...))
	}
	if r.good == 0 {
		return ErrEmptySource
	}
	return nil
}

// splitCsvLine splits one CSV line, honoring double quotes so that commas inside quoted fields do not split them.
// Fields are trimmed. Returns nil if the line cannot be split.
func splitCsvLine(line string) []string {
	reader := csv.NewReader(strings.NewReader(line))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	fields, err := reader.Read()
	if err != nil {
		return nil
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return fields
}

// fieldOr returns fields[i], or def if the field is absent or empty.
func fieldOr(fields []string, i int, def string) string {
	if i < len(fields) && fields[i] != "" {
		return fields[i]
	}
	return def
}
