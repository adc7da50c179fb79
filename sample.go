package iprange

import (
	"context"
	"math/rand/v2"
	"sync"
)

const (
	// A draw loop gives up after want*drawAttemptFactor+drawAttemptSlack attempts.
	drawAttemptFactor = 32
	drawAttemptSlack  = 1024

	// How many iterations run between context checks.
	ctxCheckInterval = 4096
)

// ipSet is a set of addresses that remembers insertion order.
type ipSet struct {
	seen  map[uint32]struct{}
	order []uint32
}

func newIpSet(capacity int) *ipSet {
	return &ipSet{
		seen:  make(map[uint32]struct{}, capacity),
		order: make([]uint32, 0, capacity),
	}
}

func (s *ipSet) add(long uint32) bool {
	if _, has := s.seen[long]; has {
		return false
	}
	s.seen[long] = struct{}{}
	s.order = append(s.order, long)
	return true
}

func (s *ipSet) len() int {
	return len(s.order)
}

func (s *ipSet) strings() []string {
	res := make([]string, len(s.order))
	for i, long := range s.order {
		res[i] = LongToIp(long)
	}
	return res
}

// Sampler draws unique random addresses from indexed ranges.
//
// By default a range is chosen uniformly among all ranges, regardless of its size, and then an address is chosen
// uniformly inside it. With weightByCount, ranges are chosen proportionally to their size instead, which makes
// every address equally likely.
//
// It is safe to use a single Sampler across multiple goroutines; draws are serialized.
type Sampler struct {
	mu            sync.Mutex
	rng           *rand.Rand
	weightByCount bool
}

// NewSampler creates a new Sampler.
// If rng is nil, a randomly seeded PCG source is used.
func NewSampler(rng *rand.Rand, weightByCount bool) *Sampler {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Sampler{
		rng:           rng,
		weightByCount: weightByCount,
	}
}

// Sample returns n unique addresses drawn from the ranges of the index, in the order they were drawn.
// Returns a ConfigurationError if n is less than 1, if the index is empty, or if the index covers fewer than n addresses.
func (s *Sampler) Sample(ctx context.Context, idx *Index, n int) ([]string, error) {
	if n < 1 {
		return nil, NewConfigurationError("number of addresses must be at least 1, got %d", n)
	}
	if idx.Len() == 0 {
		return nil, NewConfigurationError("no IP ranges to generate addresses from")
	}
	if uint64(n) > idx.Capacity() {
		return nil, NewConfigurationError("requested %d unique addresses, but the selected ranges only contain %d", n, idx.Capacity())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	set := newIpSet(n)
	if _, err := s.draw(ctx, idx, set, n, n); err != nil {
		return nil, err
	}
	if err := fill(ctx, idx, set, n); err != nil {
		return nil, err
	}

	return set.strings(), nil
}

// SampleProfiles returns n unique addresses following a profile plan.
//
// For each profile, floor(percentage*n/100) addresses are drawn from the ranges of its country, as returned by
// byCountry. Then floor(elsewhere*n/100) addresses are drawn from all ranges, where elsewhere is 100 minus the
// sum of the profile percentages. Finally the set is topped up from all ranges until it holds exactly n addresses.
//
// All checks run before anything is drawn: the profiles must be valid, every profile's country must have ranges,
// and all must cover at least n addresses. Otherwise a ConfigurationError is returned.
func (s *Sampler) SampleProfiles(ctx context.Context, all *Index, byCountry func(code string) *Index, profiles []CountryProfile, n int) ([]string, error) {
	if n < 1 {
		return nil, NewConfigurationError("number of addresses must be at least 1, got %d", n)
	}
	if err := ValidateProfiles(profiles); err != nil {
		return nil, err
	}
	if all.Len() == 0 {
		return nil, NewConfigurationError("no IP ranges to generate addresses from")
	}
	if uint64(n) > all.Capacity() {
		return nil, NewConfigurationError("requested %d unique addresses, but the loaded ranges only contain %d", n, all.Capacity())
	}

	buckets := make([]*Index, len(profiles))
	for i, p := range profiles {
		buckets[i] = byCountry(p.CountryCode)
		if buckets[i] == nil || buckets[i].Len() == 0 {
			return nil, NewConfigurationError("no IP ranges loaded for country %s", p.CountryCode)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	set := newIpSet(n)

	for i, p := range profiles {
		target := p.Percentage * n / MaxPercentage
		if uint64(target) > buckets[i].Capacity() {
			target = int(buckets[i].Capacity())
		}
		if _, err := s.draw(ctx, buckets[i], set, target, n); err != nil {
			return nil, err
		}
	}

	if elsewhere := ElsewherePercentage(profiles); elsewhere > 0 {
		remaining := elsewhere * n / MaxPercentage
		if _, err := s.draw(ctx, all, set, remaining, n); err != nil {
			return nil, err
		}
	}

	if set.len() < n {
		if _, err := s.draw(ctx, all, set, n-set.len(), n); err != nil {
			return nil, err
		}
	}
	if err := fill(ctx, all, set, n); err != nil {
		return nil, err
	}

	return set.strings(), nil
}

// draw adds up to want new addresses drawn at random from idx, stopping early if the set reaches n
// or the attempt budget runs out. Returns the number of addresses added.
func (s *Sampler) draw(ctx context.Context, idx *Index, set *ipSet, want int, n int) (int, error) {
	if want <= 0 || idx.Len() == 0 {
		return 0, nil
	}

	maxAttempts := uint64(want)*drawAttemptFactor + drawAttemptSlack
	added := 0
	for attempts := uint64(0); added < want && set.len() < n && attempts < maxAttempts; attempts++ {
		if attempts%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return added, err
			}
		}

		r := &idx.ranges[s.pickRange(idx)]
		long := r.StartLong + uint32(s.rng.Uint64N(r.Size()))
		if set.add(long) {
			added++
		}
	}

	return added, nil
}

func (s *Sampler) pickRange(idx *Index) int {
	if s.weightByCount {
		return idx.pick(s.rng.Uint64N(idx.TotalSize()))
	}
	return s.rng.IntN(idx.Len())
}

// fill walks the ranges of idx in order and adds addresses not yet in the set until it holds n.
// Terminates as long as n is at most the capacity of idx.
func fill(ctx context.Context, idx *Index, set *ipSet, n int) error {
	iterations := 0
	for _, r := range idx.ranges {
		for long := uint64(r.StartLong); long <= uint64(r.EndLong); long++ {
			if set.len() >= n {
				return nil
			}

			iterations++
			if iterations%ctxCheckInterval == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}

			set.add(uint32(long))
		}
	}
	return nil
}
