package iprange

import (
	"net"
	"strings"

	"github.com/pkg/errors"
	"github.com/seancfoley/ipaddress-go/ipaddr"
	"github.com/yl2chen/cidranger"
)

// Cidrs returns the minimal list of CIDR blocks that exactly covers the range.
func (r IpRange) Cidrs() ([]string, error) {
	startAddr, err := ipaddr.NewIPAddressString(r.Start).ToAddress()
	if err != nil {
		return nil, errors.Wrapf(err, "invalid start address \"%s\"", r.Start)
	}
	endAddr, err := ipaddr.NewIPAddressString(r.End).ToAddress()
	if err != nil {
		return nil, errors.Wrapf(err, "invalid end address \"%s\"", r.End)
	}

	blocks := ipaddr.NewSequentialRange(startAddr, endAddr).SpanWithPrefixBlocks()
	cidrs := make([]string, 0, len(blocks))
	for _, block := range blocks {
		cidr := block.String()
		if !strings.Contains(cidr, "/") {
			cidr += "/32"
		}
		cidrs = append(cidrs, cidr)
	}
	return cidrs, nil
}

// rangerEntry is a CIDR block of one indexed range.
type rangerEntry struct {
	network   net.IPNet
	prefixLen int

	// Position of the owning range in the index.
	pos int
}

func (e *rangerEntry) Network() net.IPNet {
	return e.network
}

// Ranger answers most-specific lookups over an Index.
// Every range is split into CIDR blocks and stored in a path-compressed trie,
// so overlapping ranges resolve to the narrowest containing block.
//
// Create one with NewRanger. A Ranger is read-only after creation and safe for concurrent use.
type Ranger struct {
	idx  *Index
	trie cidranger.Ranger
}

// NewRanger builds a Ranger over the index.
func NewRanger(idx *Index) (*Ranger, error) {
	trie := cidranger.NewPCTrieRanger()

	// Inserting an existing network replaces its entry; the first range must keep it.
	inserted := make(map[string]struct{})

	for pos, r := range idx.ranges {
		cidrs, err := r.Cidrs()
		if err != nil {
			return nil, err
		}
		for _, cidr := range cidrs {
			if _, has := inserted[cidr]; has {
				continue
			}
			inserted[cidr] = struct{}{}

			_, ipNet, err := net.ParseCIDR(cidr)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to parse CIDR block \"%s\" of range %s-%s", cidr, r.Start, r.End)
			}
			ones, _ := ipNet.Mask.Size()
			err = trie.Insert(&rangerEntry{
				network:   *ipNet,
				prefixLen: ones,
				pos:       pos,
			})
			if err != nil {
				return nil, errors.Wrapf(err, "failed to insert CIDR block \"%s\"", cidr)
			}
		}
	}

	return &Ranger{
		idx:  idx,
		trie: trie,
	}, nil
}

// Lookup returns the country of the most specific range containing the IP address.
// Among equally specific blocks, the range that comes first in the index wins.
func (g *Ranger) Lookup(ip string) (LookupResult, error) {
	if _, err := IpToLong(ip); err != nil {
		return LookupResult{}, err
	}

	entries, err := g.trie.ContainingNetworks(net.ParseIP(ip))
	if err != nil {
		return LookupResult{}, errors.Wrapf(err, "failed to search networks containing \"%s\"", ip)
	}

	var best *rangerEntry
	for _, entry := range entries {
		e, ok := entry.(*rangerEntry)
		if !ok {
			continue
		}
		if best == nil || e.prefixLen > best.prefixLen || (e.prefixLen == best.prefixLen && e.pos < best.pos) {
			best = e
		}
	}

	if best == nil {
		return notFoundResult(ip), nil
	}

	r := g.idx.ranges[best.pos]
	return LookupResult{
		Ip:          ip,
		CountryCode: r.CountryCode,
		CountryName: r.CountryName,
		Found:       true,
	}, nil
}
