package iprange

import (
	"net/netip"

	"github.com/oschwald/maxminddb-golang/v2"
	"github.com/pkg/errors"
)

type mmdbCountry struct {
	IsoCode string            `maxminddb:"iso_code"`
	Names   map[string]string `maxminddb:"names"`
}

// mmdbRecord covers both the GeoLite2-Country layout and the flat layout used by ip-location-db.
type mmdbRecord struct {
	Country           mmdbCountry `maxminddb:"country"`
	RegisteredCountry mmdbCountry `maxminddb:"registered_country"`
	CountryCode       string      `maxminddb:"country_code"`
	CountryName       string      `maxminddb:"country_name"`
}

func (r *mmdbRecord) resolve() (code string, name string) {
	switch {
	case r.Country.IsoCode != "":
		return r.Country.IsoCode, r.Country.Names["en"]
	case r.RegisteredCountry.IsoCode != "":
		return r.RegisteredCountry.IsoCode, r.RegisteredCountry.Names["en"]
	default:
		return r.CountryCode, r.CountryName
	}
}

// ParseMmdb reads every IPv4 network of a MaxMind database (.mmdb) into ranges.
// Networks whose record has no country code are skipped.
func ParseMmdb(content []byte) ([]IpRange, error) {
	db, err := maxminddb.FromBytes(content)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open MaxMind database")
	}
	defer func() {
		_ = db.Close()
	}()

	ranges := make([]IpRange, 0, 1024)
	for result := range db.Networks() {
		if err := result.Err(); err != nil {
			return nil, errors.Wrap(err, "failed to iterate MaxMind database networks")
		}

		prefix, ok := ipv4Prefix(result.Prefix())
		if !ok {
			continue
		}

		var record mmdbRecord
		if err := result.Decode(&record); err != nil {
			return nil, errors.Wrapf(err, "failed to decode record for network %s", prefix.String())
		}

		code, name := record.resolve()
		if code == "" {
			continue
		}

		r, err := CidrToRange(prefix.String())
		if err != nil {
			return nil, err
		}
		r.CountryCode = code
		r.CountryName = name
		ranges = append(ranges, r)
	}

	if len(ranges) == 0 {
		return nil, ErrEmptySource
	}

	return ranges, nil
}

// ipv4Prefix returns the IPv4 form of a network prefix.
// IPv4-mapped (::ffff:0:0/96) and IPv4-compatible (::/96) prefixes are converted.
func ipv4Prefix(prefix netip.Prefix) (netip.Prefix, bool) {
	addr := prefix.Addr()
	bits := prefix.Bits()

	if addr.Is4() {
		return prefix.Masked(), true
	}
	if bits < 96 {
		return netip.Prefix{}, false
	}

	b := addr.As16()
	for i := 0; i < 10; i++ {
		if b[i] != 0 {
			return netip.Prefix{}, false
		}
	}
	mapped := b[10] == 0xff && b[11] == 0xff
	compatible := b[10] == 0 && b[11] == 0
	if !mapped && !compatible {
		return netip.Prefix{}, false
	}

	v4 := netip.AddrFrom4([4]byte{b[12], b[13], b[14], b[15]})
	return netip.PrefixFrom(v4, bits-96).Masked(), true
}
