package iprange

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"
	"unicode"

	"github.com/pkg/errors"
	"github.com/puzpuzpuz/xsync/v4"
	"golang.org/x/sync/errgroup"
)

// lookupChunkSize is the number of addresses looked up by one worker task.
const lookupChunkSize = 4096

// Db holds the loaded IP ranges and answers lookup and generation requests against them.
//
// Includes functionality to:
//   - Load plain range lists, country CSVs, MaxMind GeoLite2 CSV pairs and MaxMind databases
//   - List and select the countries present in the loaded ranges
//   - Resolve the country of IPv4 addresses, one at a time or in batches
//   - Generate unique random addresses from the selected country or from a profile plan
//   - Save generated addresses, lookup results and summaries through a StorageDriver.
//
// Every successful load replaces the loaded ranges wholesale.
// The two MaxMind CSV tables are the exception: they accumulate, in either order, until both are present.
//
// Create an instance with NewDb; do not create an empty Db struct and attempt to use it.
// It is safe to use a single instance of Db across multiple goroutines.
type Db struct {
	storage StorageDriver
	logger  *slog.Logger
	sampler *Sampler
	workers int

	mu *xsync.RBMutex

	source    SourceKind
	all       *Index
	active    *Index
	selected  string
	countries []CountryEntry
	maxmind   *MaxmindJoiner
	ranger    *Ranger

	byCountry *xsync.Map[string, *Index]

	isRunning bool
}

// Options are options for creating a Db instance.
type Options struct {
	// By default, Db uses slog.Default.
	// If Logger is specified, it will use it instead.
	Logger *slog.Logger

	// The storage driver used to save exports and checkpoint information.
	// If nil, the Save methods return ErrNoStorageDriver.
	StorageDriver StorageDriver

	// Random source used for generation.
	// If nil, a randomly seeded source is used.
	Rand *rand.Rand

	// If true, generation picks ranges proportionally to their size instead of uniformly.
	// Uniform selection over-represents small ranges relative to their address count.
	WeightByCount bool

	// The number of goroutines used for batch lookups.
	// If zero or negative, defaults to runtime.GOMAXPROCS(0).
	LookupWorkers int
}

// File is an input file.
type File struct {
	// Name is used to detect the format and is reported in errors.
	Name string

	// Open returns the content of the file.
	// The reader is closed after it has been read fully.
	Open func() (io.ReadCloser, error)
}

// BytesFile creates a File from in-memory content.
func BytesFile(name string, content []byte) File {
	return File{
		Name: name,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(content)), nil
		},
	}
}

// PathFile creates a File that reads from the file system.
// The file name is the base name of the path.
func PathFile(path string) File {
	return File{
		Name: filepath.Base(path),
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}
}

// NewDb creates a new Db instance with nothing loaded.
func NewDb(options Options) *Db {
	var logger *slog.Logger
	if options.Logger == nil {
		logger = slog.Default()
	} else {
		logger = options.Logger
	}

	workers := options.LookupWorkers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	s := &Db{
		storage: options.StorageDriver,
		logger:  logger,
		sampler: NewSampler(options.Rand, options.WeightByCount),
		workers: workers,

		mu: xsync.NewRBMutex(),

		source:  SourceNone,
		all:     emptyIndex,
		active:  emptyIndex,
		maxmind: NewMaxmindJoiner(),

		byCountry: xsync.NewMap[string, *Index](),

		isRunning: true,
	}

	s.logger.Debug("initialized",
		"service", "iprange.Db",
		"weight_by_count", options.WeightByCount,
		"lookup_workers", workers,
	)

	return s
}

// LoadFiles loads the files one after another, in order.
// The returned slice has one entry per file: nil if the file loaded, otherwise the error, usually a *ParseError.
// A failing file does not stop the following files from loading.
func (s *Db) LoadFiles(ctx context.Context, files []File) []error {
	errs := make([]error, len(files))

	for i, f := range files {
		if err := ctx.Err(); err != nil {
			errs[i] = err
			continue
		}

		errs[i] = s.loadFile(f)
		if errs[i] != nil {
			s.logger.Error("failed to load file",
				"service", "iprange.Db",
				"file", f.Name,
				"error", errs[i],
			)
		}
	}

	return errs
}

func (s *Db) loadFile(f File) error {
	reader, err := f.Open()
	if err != nil {
		return NewParseError(f.Name, errors.Wrap(err, "failed to open file"))
	}
	defer func() {
		_ = reader.Close()
	}()

	content, err := io.ReadAll(reader)
	if err != nil {
		return NewParseError(f.Name, errors.Wrap(err, "failed to read file"))
	}

	return s.LoadFile(f.Name, content)
}

// LoadFile parses the content of one file, detecting its format from the name, and replaces the loaded ranges.
// Loading one of the two MaxMind CSV tables keeps the loaded ranges until both tables are present.
// Returns a *ParseError if the file could not be parsed; the loaded ranges are unchanged in that case.
func (s *Db) LoadFile(name string, content []byte) error {
	kind := DetectFileKind(name)

	s.logger.Debug("loading file",
		"service", "iprange.Db",
		"file", name,
		"kind", kind.String(),
		"bytes", len(content),
	)

	var ranges []IpRange
	var locations map[string]MaxmindLocation
	var blocks []MaxmindBlock
	var err error

	switch kind {
	case FileKindPlainList:
		ranges, err = ParsePlainList(content)
	case FileKindCountryCsv:
		ranges, err = ParseCountryCsv(content)
	case FileKindMmdb:
		ranges, err = ParseMmdb(content)
	case FileKindMaxmindLocations:
		locations, err = ParseMaxmindLocations(content)
	case FileKindMaxmindBlocks:
		blocks, err = ParseMaxmindBlocks(content)
	default:
		err = ErrUnsupportedFile
	}
	if err != nil {
		return NewParseError(name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return ErrDbClosed
	}

	switch kind {
	case FileKindMaxmindLocations, FileKindMaxmindBlocks:
		var joined bool
		if kind == FileKindMaxmindLocations {
			joined = s.maxmind.SetLocations(locations)
		} else {
			joined = s.maxmind.SetBlocks(blocks)
		}

		if !joined {
			s.logger.Info("loaded MaxMind table; waiting for the other table",
				"service", "iprange.Db",
				"file", name,
				"state", s.maxmind.State().String(),
				"missing", s.maxmind.Missing(),
				"ranges", s.all.Len(),
			)
			return nil
		}

		ranges, _ = s.maxmind.Ranges()
		idx, err := NewIndex(ranges)
		if err != nil {
			return NewParseError(name, err)
		}
		s.commit(SourceMaxmind, idx)
	default:
		idx, err := NewIndex(ranges)
		if err != nil {
			return NewParseError(name, err)
		}
		s.maxmind.Reset()
		s.commit(sourceOf(kind), idx)
	}

	s.logger.Info("loaded IP ranges",
		"service", "iprange.Db",
		"file", name,
		"source", s.source.String(),
		"ranges", s.all.Len(),
		"countries", len(s.countries),
	)
	if s.all.Overlaps() > 0 {
		s.logger.Warn("loaded IP ranges overlap; lookups return the first range found, use LookupMostSpecific for the narrowest one",
			"service", "iprange.Db",
			"file", name,
			"overlapping_ranges", s.all.Overlaps(),
		)
	}

	return nil
}

func sourceOf(kind FileKind) SourceKind {
	switch kind {
	case FileKindPlainList:
		return SourcePlainList
	case FileKindCountryCsv:
		return SourceCountries
	case FileKindMmdb:
		return SourceMmdb
	default:
		return SourceMaxmind
	}
}

// commit replaces the loaded ranges and everything derived from them.
// Must be called with the write lock held.
func (s *Db) commit(source SourceKind, idx *Index) {
	s.source = source
	s.all = idx
	s.countries = DeriveCountries(idx.ranges)
	s.selected = ""
	s.ranger = nil
	s.byCountry = xsync.NewMap[string, *Index]()

	// Ranges without country attribution cannot be filtered, so all of them are available to generation.
	if source == SourcePlainList {
		s.active = idx
	} else {
		s.active = emptyIndex
	}
}

// Countries returns the countries present in the loaded ranges, sorted by name.
func (s *Db) Countries() []CountryEntry {
	tok := s.mu.RLock()
	defer s.mu.RUnlock(tok)

	res := make([]CountryEntry, len(s.countries))
	copy(res, s.countries)
	return res
}

// SelectCountry restricts simple generation to the ranges of one country.
// An empty code clears the selection.
// Returns a ConfigurationError if no loaded range has the country code.
func (s *Db) SelectCountry(code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return ErrDbClosed
	}

	if code == "" {
		s.selected = ""
		if s.source == SourcePlainList {
			s.active = s.all
		} else {
			s.active = emptyIndex
		}
		return nil
	}

	idx := s.countryIndex(code)
	if idx.Len() == 0 {
		return NewConfigurationError("no IP ranges loaded for country %s", code)
	}

	s.selected = code
	s.active = idx

	s.logger.Debug("selected country",
		"service", "iprange.Db",
		"country_code", code,
		"ranges", idx.Len(),
	)

	return nil
}

// countryIndex returns the memoised index of one country.
func (s *Db) countryIndex(code string) *Index {
	if idx, has := s.byCountry.Load(code); has {
		return idx
	}
	idx := s.all.FilterCountry(code)
	s.byCountry.Store(code, idx)
	return idx
}

// Ranges returns a copy of all loaded ranges, sorted by start address.
func (s *Db) Ranges() []IpRange {
	tok := s.mu.RLock()
	defer s.mu.RUnlock(tok)
	return s.all.Ranges()
}

// SelectedRanges returns a copy of the ranges available to simple generation.
func (s *Db) SelectedRanges() []IpRange {
	tok := s.mu.RLock()
	defer s.mu.RUnlock(tok)
	return s.active.Ranges()
}

// Status returns a description of what is currently loaded.
func (s *Db) Status() Status {
	tok := s.mu.RLock()
	defer s.mu.RUnlock(tok)

	status := Status{
		Source:           s.source,
		RangeCount:       s.all.Len(),
		CountryCount:     len(s.countries),
		SelectedCountry:  s.selected,
		ActiveRangeCount: s.active.Len(),
		MaxmindState:     s.maxmind.State(),
	}
	if state := s.maxmind.State(); state == MaxmindLocationsOnly || state == MaxmindBlocksOnly {
		status.MissingMaxmindFiles = s.maxmind.Missing()
	}
	return status
}

// snapshot returns the current full index.
func (s *Db) snapshot() (*Index, error) {
	tok := s.mu.RLock()
	defer s.mu.RUnlock(tok)

	if !s.isRunning {
		return nil, ErrDbClosed
	}
	return s.all, nil
}

// Lookup resolves the country of one IP address against all loaded ranges.
// Returns a wrapped ErrInvalidAddress if ip is not a valid IPv4 address.
func (s *Db) Lookup(ip string) (LookupResult, error) {
	idx, err := s.snapshot()
	if err != nil {
		return LookupResult{}, err
	}
	return idx.Lookup(ip)
}

// LookupMostSpecific is like Lookup, but when loaded ranges overlap, it returns the narrowest containing range.
// The first call after a load builds a CIDR trie over the loaded ranges.
func (s *Db) LookupMostSpecific(ip string) (LookupResult, error) {
	tok := s.mu.RLock()
	ranger := s.ranger
	running := s.isRunning
	s.mu.RUnlock(tok)

	if !running {
		return LookupResult{}, ErrDbClosed
	}

	if ranger == nil {
		s.mu.Lock()
		if s.ranger == nil {
			built, err := NewRanger(s.all)
			if err != nil {
				s.mu.Unlock()
				return LookupResult{}, fmt.Errorf("failed to build most-specific lookup trie: %w", err)
			}
			s.ranger = built
		}
		ranger = s.ranger
		s.mu.Unlock()
	}

	return ranger.Lookup(ip)
}

// ParseLookupInput extracts IPv4 addresses from free-form text.
// Tokens are separated by runs of whitespace and commas, and surrounding quotes are stripped.
// Tokens that are not valid IPv4 addresses are dropped.
func ParseLookupInput(text string) []string {
	tokens := strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || r == ','
	})

	ips := make([]string, 0, len(tokens))
	for _, token := range tokens {
		token = strings.Trim(token, "\"'`")
		if IsValidIpv4(token) {
			ips = append(ips, token)
		}
	}
	return ips
}

// LookupText resolves every IPv4 address found in free-form text, in input order.
// Invalid tokens are dropped silently; if none remain, returns ErrNoValidInput.
// Large batches are split across worker goroutines.
func (s *Db) LookupText(ctx context.Context, text string) ([]LookupResult, error) {
	ips := ParseLookupInput(text)
	if len(ips) == 0 {
		return nil, ErrNoValidInput
	}
	return s.LookupBatch(ctx, ips)
}

// LookupBatch resolves the addresses in order.
// Returns ErrNoValidInput if ips is empty,
// and a wrapped ErrInvalidAddress for the first invalid address before any lookup runs.
func (s *Db) LookupBatch(ctx context.Context, ips []string) ([]LookupResult, error) {
	if len(ips) == 0 {
		return nil, ErrNoValidInput
	}

	longs := make([]uint32, len(ips))
	for i, ip := range ips {
		long, err := IpToLong(ip)
		if err != nil {
			return nil, err
		}
		longs[i] = long
	}

	idx, err := s.snapshot()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	results := make([]LookupResult, len(ips))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for lo := 0; lo < len(ips); lo += lookupChunkSize {
		hi := min(lo+lookupChunkSize, len(ips))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for i := lo; i < hi; i++ {
				results[i] = idx.lookupLong(ips[i], longs[i])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.logger.Debug("finished batch lookup",
		"service", "iprange.Db",
		"ips", len(ips),
		"duration", time.Since(start),
	)

	return results, nil
}

// BatchLookup is the completion value of LookupTextAsync.
type BatchLookup struct {
	Results []LookupResult
	Err     error
}

// LookupTextAsync runs LookupText in the background.
// The returned channel receives exactly one value once the whole batch is done, and is then closed.
func (s *Db) LookupTextAsync(ctx context.Context, text string) <-chan BatchLookup {
	done := make(chan BatchLookup, 1)
	go func() {
		defer close(done)
		results, err := s.LookupText(ctx, text)
		done <- BatchLookup{
			Results: results,
			Err:     err,
		}
	}()
	return done
}

// Generate returns n unique random addresses drawn from the selected ranges.
// Returns a ConfigurationError, without generating anything, if there are no selected ranges
// or if they contain fewer than n addresses.
func (s *Db) Generate(ctx context.Context, n int) ([]string, error) {
	tok := s.mu.RLock()
	running := s.isRunning
	active := s.active
	source := s.source
	selected := s.selected
	s.mu.RUnlock(tok)

	if !running {
		return nil, ErrDbClosed
	}

	if active.Len() == 0 {
		if (source == SourceCountries || source == SourceMaxmind || source == SourceMmdb) && selected == "" {
			return nil, NewConfigurationError("please select a country first")
		}
		return nil, NewConfigurationError("please load IP ranges first")
	}

	ips, err := s.sampler.Sample(ctx, active, n)
	if err != nil {
		return nil, err
	}

	s.logger.Info("generated addresses",
		"service", "iprange.Db",
		"count", len(ips),
		"country_code", selected,
	)

	return ips, nil
}

// GenerateWithProfiles returns n unique random addresses following a profile plan over all loaded ranges.
// See Sampler.SampleProfiles.
func (s *Db) GenerateWithProfiles(ctx context.Context, profiles []CountryProfile, n int) ([]string, error) {
	all, byCountry, err := s.countrySnapshot()
	if err != nil {
		return nil, err
	}

	ips, err := s.sampler.SampleProfiles(ctx, all, byCountry, profiles, n)
	if err != nil {
		return nil, err
	}

	s.logger.Info("generated addresses from profiles",
		"service", "iprange.Db",
		"count", len(ips),
		"profiles", len(profiles),
		"elsewhere_percentage", ElsewherePercentage(profiles),
	)

	return ips, nil
}

// countrySnapshot returns the full index and a memoised per-country filter bound to it.
// The memo map belongs to that index: a later load swaps in a new map instead of clearing this one.
func (s *Db) countrySnapshot() (*Index, func(code string) *Index, error) {
	tok := s.mu.RLock()
	defer s.mu.RUnlock(tok)

	if !s.isRunning {
		return nil, nil, ErrDbClosed
	}

	all := s.all
	cache := s.byCountry
	return all, func(code string) *Index {
		idx, _ := cache.LoadOrCompute(code, func() (*Index, bool) {
			return all.FilterCountry(code), false
		})
		return idx
	}, nil
}

// SaveGeneratedIps saves generated addresses through the storage driver and returns the export name.
// The name includes the selected country, if any.
func (s *Db) SaveGeneratedIps(ips []string) (string, error) {
	tok := s.mu.RLock()
	selected := s.selected
	s.mu.RUnlock(tok)

	name := GeneratedIpsExportName(selected)
	err := s.saveExport(name, len(ips), func(w io.Writer) error {
		return WriteGeneratedIps(w, ips)
	})
	return name, err
}

// SaveLookupResults saves lookup results as CSV through the storage driver and returns the export name.
func (s *Db) SaveLookupResults(results []LookupResult) (string, error) {
	err := s.saveExport(ExportNameLookupResults, len(results), func(w io.Writer) error {
		return WriteLookupResults(w, results)
	})
	return ExportNameLookupResults, err
}

// SaveCountrySummary saves a country summary as CSV through the storage driver and returns the export name.
func (s *Db) SaveCountrySummary(rows []CountrySummary) (string, error) {
	err := s.saveExport(ExportNameCountrySummary, len(rows), func(w io.Writer) error {
		return WriteCountrySummary(w, rows)
	})
	return ExportNameCountrySummary, err
}

func (s *Db) saveExport(name string, rows int, render func(w io.Writer) error) error {
	if s.storage == nil {
		return ErrNoStorageDriver
	}

	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		return fmt.Errorf(`failed to render export "%s": %w`, name, err)
	}

	if err := s.storage.WriteExport(name, io.NopCloser(&buf)); err != nil {
		return fmt.Errorf(`failed to write export "%s": %w`, name, err)
	}

	checkpoints, err := s.storage.ReadCheckpoints()
	if err != nil {
		if !errors.Is(err, syscall.ENOENT) {
			return fmt.Errorf("failed to read checkpoints after writing export \"%s\": %w", name, err)
		}
		checkpoints = &AllCheckpoints{
			Checkpoints: make(map[string]Checkpoint),
		}
	}

	checkpoints.Checkpoints[name] = Checkpoint{
		LastWrittenUnix: time.Now().Unix(),
		Rows:            rows,
	}

	if err := s.storage.WriteCheckpoints(checkpoints); err != nil {
		return fmt.Errorf("failed to save checkpoints after writing export \"%s\": %w", name, err)
	}

	s.logger.Info("saved export",
		"service", "iprange.Db",
		"export_name", name,
		"rows", rows,
	)

	return nil
}

// Close releases the loaded ranges.
// The Db instance is no longer usable after closure.
func (s *Db) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.isRunning = false

	// Assign empty indexes to allow the loaded ones to be freed by the GC.
	s.all = emptyIndex
	s.active = emptyIndex
	s.ranger = nil
	s.countries = nil
	s.maxmind.Reset()
	s.byCountry = xsync.NewMap[string, *Index]()

	return nil
}
