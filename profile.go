package iprange

import (
	"slices"
)

// ValidateProfiles checks that every percentage is within 0-100 and that they sum to at most 100.
func ValidateProfiles(profiles []CountryProfile) error {
	total := 0
	for _, p := range profiles {
		if p.Percentage < 0 || p.Percentage > MaxPercentage {
			return NewConfigurationError("percentage for %s must be between 0 and %d, got %d", p.CountryCode, MaxPercentage, p.Percentage)
		}
		if p.CountryCode == "" {
			return NewConfigurationError("profile %d has no country", p.Id)
		}
		total += p.Percentage
	}
	if total > MaxPercentage {
		return NewConfigurationError("total percentage cannot exceed %d%%, got %d%%", MaxPercentage, total)
	}
	return nil
}

// ElsewherePercentage returns the share left for addresses drawn from any range, floored at 0.
func ElsewherePercentage(profiles []CountryProfile) int {
	total := 0
	for _, p := range profiles {
		total += p.Percentage
	}
	return max(0, MaxPercentage-total)
}

// ProfileSet is an editable list of country profiles.
// Ids are assigned in increasing order and never reused.
// Every change keeps the total at or below 100; a change that would exceed it fails and leaves the set unchanged.
//
// Not safe for concurrent use.
type ProfileSet struct {
	profiles []CountryProfile
	nextId   int
}

// NewProfileSet creates an empty ProfileSet.
func NewProfileSet() *ProfileSet {
	return &ProfileSet{
		nextId: 1,
	}
}

// Add adds a profile for the country.
func (s *ProfileSet) Add(country CountryEntry, percentage int) (CountryProfile, error) {
	p := CountryProfile{
		Id:          s.nextId,
		CountryCode: country.Code,
		CountryName: country.Name,
		Percentage:  percentage,
	}

	candidate := append(slices.Clone(s.profiles), p)
	if err := ValidateProfiles(candidate); err != nil {
		return CountryProfile{}, err
	}

	s.profiles = candidate
	s.nextId++
	return p, nil
}

// Update changes the percentage of the profile with the id.
func (s *ProfileSet) Update(id int, percentage int) error {
	i := s.find(id)
	if i < 0 {
		return NewConfigurationError("no profile with id %d", id)
	}

	candidate := slices.Clone(s.profiles)
	candidate[i].Percentage = percentage
	if err := ValidateProfiles(candidate); err != nil {
		return err
	}

	s.profiles = candidate
	return nil
}

// Remove removes the profile with the id.
// Returns false if there was none.
func (s *ProfileSet) Remove(id int) bool {
	i := s.find(id)
	if i < 0 {
		return false
	}
	s.profiles = slices.Delete(s.profiles, i, i+1)
	return true
}

// List returns a copy of the profiles in insertion order.
func (s *ProfileSet) List() []CountryProfile {
	return slices.Clone(s.profiles)
}

// Total returns the sum of all profile percentages.
func (s *ProfileSet) Total() int {
	return MaxPercentage - ElsewherePercentage(s.profiles)
}

// Elsewhere returns the share left for addresses drawn from any range.
func (s *ProfileSet) Elsewhere() int {
	return ElsewherePercentage(s.profiles)
}

func (s *ProfileSet) find(id int) int {
	return slices.IndexFunc(s.profiles, func(p CountryProfile) bool {
		return p.Id == id
	})
}
