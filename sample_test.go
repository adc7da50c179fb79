package iprange

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
)

func newTestSampler(weightByCount bool) *Sampler {
	return NewSampler(rand.New(rand.NewPCG(1, 2)), weightByCount)
}

func countryOf(t *testing.T, idx *Index, ip string) string {
	t.Helper()
	res, err := idx.Lookup(ip)
	if err != nil {
		t.Fatalf("Lookup(%s) failed: %v", ip, err)
	}
	if !res.Found {
		t.Fatalf("%s is outside of the indexed ranges", ip)
	}
	return res.CountryCode
}

func assertUnique(t *testing.T, ips []string) {
	t.Helper()
	seen := make(map[string]struct{}, len(ips))
	for _, ip := range ips {
		if _, has := seen[ip]; has {
			t.Fatalf("duplicate address %s", ip)
		}
		seen[ip] = struct{}{}
	}
}

func TestSampler_Sample(t *testing.T) {
	idx := mustIndex(t, testCountryRanges())

	for _, weighted := range []bool{false, true} {
		ips, err := newTestSampler(weighted).Sample(context.Background(), idx, 50)
		if err != nil {
			t.Fatalf("Sample failed: %v", err)
		}
		if len(ips) != 50 {
			t.Fatalf("expected 50 addresses, got %d", len(ips))
		}
		assertUnique(t, ips)
		for _, ip := range ips {
			countryOf(t, idx, ip)
		}
	}
}

func TestSampler_Deterministic(t *testing.T) {
	idx := mustIndex(t, testCountryRanges())

	a, err := newTestSampler(false).Sample(context.Background(), idx, 20)
	if err != nil {
		t.Fatalf("Sample failed: %v", err)
	}
	b, err := newTestSampler(false).Sample(context.Background(), idx, 20)
	if err != nil {
		t.Fatalf("Sample failed: %v", err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("same seed produced different addresses at %d: %s vs %s", i, a[i], b[i])
		}
	}
}

func TestSampler_ExactCapacity(t *testing.T) {
	idx := mustIndex(t, []IpRange{
		{Start: "10.0.0.0", End: "10.0.0.3"},
		{Start: "10.0.0.2", End: "10.0.0.5"},
		{Start: "20.0.0.7", End: "20.0.0.7"},
	})

	ips, err := newTestSampler(false).Sample(context.Background(), idx, 7)
	if err != nil {
		t.Fatalf("Sample failed: %v", err)
	}
	if len(ips) != 7 {
		t.Fatalf("expected 7 addresses, got %d", len(ips))
	}
	assertUnique(t, ips)
}

func TestSampler_OverCapacity(t *testing.T) {
	idx := mustIndex(t, []IpRange{{Start: "10.0.0.0", End: "10.0.0.3"}})

	var configErr *ConfigurationError
	if _, err := newTestSampler(false).Sample(context.Background(), idx, 5); !errors.As(err, &configErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if _, err := newTestSampler(false).Sample(context.Background(), idx, 0); !errors.As(err, &configErr) {
		t.Fatalf("expected ConfigurationError for n = 0, got %v", err)
	}
	if _, err := newTestSampler(false).Sample(context.Background(), emptyIndex, 1); !errors.As(err, &configErr) {
		t.Fatalf("expected ConfigurationError for empty index, got %v", err)
	}
}

func TestSampler_Cancelled(t *testing.T) {
	idx := mustIndex(t, testCountryRanges())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := newTestSampler(false).Sample(ctx, idx, 10); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSampler_SampleProfiles(t *testing.T) {
	all := mustIndex(t, append(testCountryRanges(), IpRange{
		Start: "3.0.0.0", End: "3.0.255.255", CountryCode: "FR", CountryName: "France",
	}))

	profiles := []CountryProfile{
		{Id: 1, CountryCode: "US", Percentage: 60},
		{Id: 2, CountryCode: "CA", Percentage: 30},
	}

	ips, err := newTestSampler(false).SampleProfiles(context.Background(), all, all.FilterCountry, profiles, 100)
	if err != nil {
		t.Fatalf("SampleProfiles failed: %v", err)
	}
	if len(ips) != 100 {
		t.Fatalf("expected 100 addresses, got %d", len(ips))
	}
	assertUnique(t, ips)

	counts := make(map[string]int)
	for _, ip := range ips {
		counts[countryOf(t, all, ip)]++
	}
	if counts["US"] < 60 || counts["CA"] < 30 {
		t.Fatalf("unexpected distribution: %v", counts)
	}
}

func TestSampler_SampleProfiles_Rounding(t *testing.T) {
	all := mustIndex(t, testCountryRanges())

	// Floors of 33% of 10 leave addresses to the top-up.
	profiles := []CountryProfile{
		{CountryCode: "US", Percentage: 33},
		{CountryCode: "CA", Percentage: 67},
	}
	ips, err := newTestSampler(true).SampleProfiles(context.Background(), all, all.FilterCountry, profiles, 10)
	if err != nil {
		t.Fatalf("SampleProfiles failed: %v", err)
	}
	if len(ips) != 10 {
		t.Fatalf("expected 10 addresses, got %d", len(ips))
	}
	assertUnique(t, ips)
}

func TestSampler_SampleProfiles_SmallBucket(t *testing.T) {
	all := mustIndex(t, []IpRange{
		{Start: "1.0.0.0", End: "1.0.0.1", CountryCode: "LI", CountryName: "Liechtenstein"},
		{Start: "2.0.0.0", End: "2.0.0.255", CountryCode: "DE", CountryName: "Germany"},
	})

	// LI only has two addresses, far less than its 50% share.
	profiles := []CountryProfile{{CountryCode: "LI", Percentage: 50}}
	ips, err := newTestSampler(false).SampleProfiles(context.Background(), all, all.FilterCountry, profiles, 100)
	if err != nil {
		t.Fatalf("SampleProfiles failed: %v", err)
	}
	if len(ips) != 100 {
		t.Fatalf("expected 100 addresses, got %d", len(ips))
	}
	assertUnique(t, ips)
}

func TestSampler_SampleProfiles_Invalid(t *testing.T) {
	all := mustIndex(t, testCountryRanges())
	sampler := newTestSampler(false)
	ctx := context.Background()

	var configErr *ConfigurationError

	over := []CountryProfile{{CountryCode: "US", Percentage: 70}, {CountryCode: "CA", Percentage: 31}}
	if _, err := sampler.SampleProfiles(ctx, all, all.FilterCountry, over, 10); !errors.As(err, &configErr) {
		t.Fatalf("expected ConfigurationError for over 100%%, got %v", err)
	}

	missing := []CountryProfile{{CountryCode: "FR", Percentage: 10}}
	if _, err := sampler.SampleProfiles(ctx, all, all.FilterCountry, missing, 10); !errors.As(err, &configErr) {
		t.Fatalf("expected ConfigurationError for country without ranges, got %v", err)
	}

	if _, err := sampler.SampleProfiles(ctx, emptyIndex, emptyIndex.FilterCountry, nil, 10); !errors.As(err, &configErr) {
		t.Fatalf("expected ConfigurationError for empty index, got %v", err)
	}

	if _, err := sampler.SampleProfiles(ctx, all, all.FilterCountry, nil, 1<<17+1); !errors.As(err, &configErr) {
		t.Fatalf("expected ConfigurationError for over capacity, got %v", err)
	}
}
