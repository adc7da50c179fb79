package iprange

import (
	"encoding/binary"
	"net/netip"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// IpToLong converts a dotted-decimal IPv4 address to its unsigned 32-bit form.
// Returns a wrapped ErrInvalidAddress unless the string is exactly four decimal octets in 0-255.
func IpToLong(ip string) (uint32, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil || !addr.Is4() {
		return 0, errors.Wrapf(ErrInvalidAddress, "cannot convert \"%s\"", ip)
	}

	b := addr.As4()
	return binary.BigEndian.Uint32(b[:]), nil
}

// LongToIp converts an unsigned 32-bit value to a dotted-decimal IPv4 address.
func LongToIp(long uint32) string {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], long)
	return netip.AddrFrom4(b).String()
}

// IsValidIpv4 returns whether the string is a canonical dotted-decimal IPv4 address.
func IsValidIpv4(ip string) bool {
	_, err := IpToLong(ip)
	return err == nil
}

// CidrToRange expands an IPv4 CIDR block ("network/prefixLength") to a range.
// The start of the range is the network address as written; it is not masked.
func CidrToRange(cidr string) (IpRange, error) {
	network, prefixStr, ok := strings.Cut(cidr, "/")
	if !ok {
		return IpRange{}, errors.Errorf("CIDR \"%s\" has no prefix length", cidr)
	}

	start, err := IpToLong(network)
	if err != nil {
		return IpRange{}, errors.Wrapf(err, "invalid network in CIDR \"%s\"", cidr)
	}

	prefixLen, err := strconv.Atoi(prefixStr)
	if err != nil || prefixLen < 0 || prefixLen > 32 {
		return IpRange{}, errors.Errorf("invalid prefix length in CIDR \"%s\"", cidr)
	}

	hostBits := 32 - prefixLen
	numHosts := uint64(1) << hostBits
	end := uint64(start) + numHosts - 1
	if end > 0xFFFFFFFF {
		return IpRange{}, errors.Errorf("CIDR \"%s\" extends past 255.255.255.255", cidr)
	}

	return IpRange{
		Start:     LongToIp(start),
		End:       LongToIp(uint32(end)),
		Count:     numHosts,
		StartLong: start,
		EndLong:   uint32(end),
	}, nil
}

// rangeFromLongs builds a range from a start and end value.
func rangeFromLongs(start uint32, end uint32) IpRange {
	return IpRange{
		Start:     LongToIp(start),
		End:       LongToIp(end),
		Count:     uint64(end) - uint64(start) + 1,
		StartLong: start,
		EndLong:   end,
	}
}
