package iprange

import (
	"cmp"
	"slices"
	"sort"

	"github.com/pkg/errors"
)

// Index is an immutable set of ranges sorted ascending by start address.
// Create one with NewIndex.
// It is safe to use a single Index across multiple goroutines.
type Index struct {
	ranges []IpRange

	// cumulative[i] is the total size of ranges[0..i].
	cumulative []uint64

	// Number of distinct addresses covered by the union of all ranges.
	capacity uint64

	// Number of ranges that start before the end of an earlier range.
	overlaps int
}

// NewIndex builds an index over a copy of the ranges.
// The cached numeric bounds of every range are computed from Start and End.
// Ranges with equal starts keep their input order.
func NewIndex(ranges []IpRange) (*Index, error) {
	sorted := make([]IpRange, len(ranges))
	for i, r := range ranges {
		start, err := IpToLong(r.Start)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid start of range %d", i)
		}
		end, err := IpToLong(r.End)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid end of range %d", i)
		}
		if start > end {
			return nil, errors.Errorf("range %d starts at %s, after its end %s", i, r.Start, r.End)
		}

		r.StartLong = start
		r.EndLong = end
		sorted[i] = r
	}

	slices.SortStableFunc(sorted, func(a, b IpRange) int {
		return cmp.Compare(a.StartLong, b.StartLong)
	})

	return newSortedIndex(sorted), nil
}

// newSortedIndex builds an index over ranges that are already sorted and have their bounds cached.
// Takes ownership of the slice.
func newSortedIndex(sorted []IpRange) *Index {
	idx := &Index{
		ranges:     sorted,
		cumulative: make([]uint64, len(sorted)),
	}

	var total uint64
	var covered bool
	var coveredEnd uint32
	for i, r := range sorted {
		total += r.Size()
		idx.cumulative[i] = total

		switch {
		case !covered:
			idx.capacity += r.Size()
			coveredEnd = r.EndLong
			covered = true
		case r.StartLong <= coveredEnd:
			idx.overlaps++
			if r.EndLong > coveredEnd {
				idx.capacity += uint64(r.EndLong) - uint64(coveredEnd)
				coveredEnd = r.EndLong
			}
		default:
			idx.capacity += r.Size()
			coveredEnd = r.EndLong
		}
	}

	return idx
}

// Len returns the number of ranges.
func (idx *Index) Len() int {
	return len(idx.ranges)
}

// At returns the range at position i in start order.
func (idx *Index) At(i int) IpRange {
	return idx.ranges[i]
}

// Ranges returns a copy of all ranges in start order.
func (idx *Index) Ranges() []IpRange {
	return slices.Clone(idx.ranges)
}

// Capacity returns the number of distinct addresses covered by the index.
// Overlapping ranges are counted once.
func (idx *Index) Capacity() uint64 {
	return idx.capacity
}

// TotalSize returns the sum of the sizes of all ranges, counting overlaps more than once.
func (idx *Index) TotalSize() uint64 {
	if len(idx.cumulative) == 0 {
		return 0
	}
	return idx.cumulative[len(idx.cumulative)-1]
}

// Overlaps returns the number of ranges that start inside an earlier range.
func (idx *Index) Overlaps() int {
	return idx.overlaps
}

// Find binary searches for a range containing the address.
// When ranges overlap, the first containing range reached by the search is returned,
// which is not necessarily the most specific one; see Ranger for that.
func (idx *Index) Find(long uint32) (IpRange, bool) {
	lo, hi := 0, len(idx.ranges)-1
	for lo <= hi {
		mid := int(uint(lo+hi) >> 1)
		r := &idx.ranges[mid]
		switch {
		case long < r.StartLong:
			hi = mid - 1
		case long > r.EndLong:
			lo = mid + 1
		default:
			return *r, true
		}
	}
	return IpRange{}, false
}

// Lookup returns the country of the IP address.
// Returns a wrapped ErrInvalidAddress if ip is not a valid IPv4 address.
func (idx *Index) Lookup(ip string) (LookupResult, error) {
	long, err := IpToLong(ip)
	if err != nil {
		return LookupResult{}, err
	}
	return idx.lookupLong(ip, long), nil
}

func (idx *Index) lookupLong(ip string, long uint32) LookupResult {
	r, found := idx.Find(long)
	if !found {
		return notFoundResult(ip)
	}
	return LookupResult{
		Ip:          ip,
		CountryCode: r.CountryCode,
		CountryName: r.CountryName,
		Found:       true,
	}
}

func notFoundResult(ip string) LookupResult {
	return LookupResult{
		Ip:          ip,
		CountryCode: NotFound,
		CountryName: NotFound,
		Found:       false,
	}
}

// Filter returns a new index with the ranges for which keep returns true, in the same order.
func (idx *Index) Filter(keep func(r IpRange) bool) *Index {
	kept := make([]IpRange, 0)
	for _, r := range idx.ranges {
		if keep(r) {
			kept = append(kept, r)
		}
	}
	return newSortedIndex(kept)
}

// FilterCountry returns a new index with the ranges of one country.
// Country codes are compared case-sensitively.
func (idx *Index) FilterCountry(code string) *Index {
	return idx.Filter(func(r IpRange) bool {
		return r.CountryCode == code
	})
}

// pick returns the position of the range containing the n-th address when all ranges are laid end to end.
// n must be less than TotalSize.
func (idx *Index) pick(n uint64) int {
	return sort.Search(len(idx.cumulative), func(i int) bool {
		return idx.cumulative[i] > n
	})
}

var emptyIndex = newSortedIndex(nil)
