package domain

import "sort"

// DomainFrame maps each domain of interest to its known population size N_d.
// Out-of-sample domains belong in the frame too.
type DomainFrame map[string]int64

// NewDomainFrame creates an empty frame
func NewDomainFrame() DomainFrame {
	return make(DomainFrame)
}

// PopulationSize returns N_d for a domain and whether it is known
func (f DomainFrame) PopulationSize(domainID string) (int64, bool) {
	n, ok := f[domainID]
	return n, ok
}

// DomainIDs returns the frame's domain identifiers in sorted order
func (f DomainFrame) DomainIDs() []string {
	ids := make([]string, 0, len(f))
	for id := range f {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Total returns the sum of all population sizes
func (f DomainFrame) Total() int64 {
	var total int64
	for _, n := range f {
		total += n
	}
	return total
}

// Validate rejects empty domain ids and non-positive population sizes
func (f DomainFrame) Validate() error {
	for _, id := range f.DomainIDs() {
		if id == "" {
			return &InvalidPopulationSizeError{DomainID: id, Size: f[id], Reason: "empty domain_id"}
		}
		if f[id] <= 0 {
			return &InvalidPopulationSizeError{DomainID: id, Size: f[id], Reason: "population size must be positive"}
		}
	}
	return nil
}

// Clone returns an independent copy of the frame
func (f DomainFrame) Clone() DomainFrame {
	if f == nil {
		return nil
	}
	c := make(DomainFrame, len(f))
	for id, n := range f {
		c[id] = n
	}
	return c
}
