package iprange

import (
	"errors"
	"testing"
)

func TestIpToLong(t *testing.T) {
	cases := map[string]uint32{
		"0.0.0.0":         0,
		"1.0.0.0":         16777216,
		"1.2.3.4":         16909060,
		"192.168.1.1":     3232235777,
		"255.255.255.255": 4294967295,
	}
	for ip, want := range cases {
		got, err := IpToLong(ip)
		if err != nil {
			t.Fatalf("IpToLong(%q) failed: %v", ip, err)
		}
		if got != want {
			t.Fatalf("IpToLong(%q) = %d, want %d", ip, got, want)
		}
		if back := LongToIp(got); back != ip {
			t.Fatalf("LongToIp(%d) = %q, want %q", got, back, ip)
		}
	}
}

func TestIpToLong_Invalid(t *testing.T) {
	for _, ip := range []string{"", "1.2.3", "1.2.3.4.5", "256.1.1.1", "a.b.c.d", "::1", "1.2.3.-4", " 1.2.3.4"} {
		_, err := IpToLong(ip)
		if !errors.Is(err, ErrInvalidAddress) {
			t.Fatalf("IpToLong(%q): expected ErrInvalidAddress, got %v", ip, err)
		}
		if IsValidIpv4(ip) {
			t.Fatalf("IsValidIpv4(%q) = true", ip)
		}
	}
}

func TestCidrToRange(t *testing.T) {
	r, err := CidrToRange("10.0.0.0/24")
	if err != nil {
		t.Fatalf("CidrToRange failed: %v", err)
	}
	if r.Start != "10.0.0.0" || r.End != "10.0.0.255" || r.Count != 256 {
		t.Fatalf("unexpected range: %+v", r)
	}

	r, err = CidrToRange("192.168.1.0/32")
	if err != nil {
		t.Fatalf("CidrToRange failed: %v", err)
	}
	if r.Start != "192.168.1.0" || r.End != "192.168.1.0" || r.Count != 1 {
		t.Fatalf("unexpected range: %+v", r)
	}

	r, err = CidrToRange("0.0.0.0/0")
	if err != nil {
		t.Fatalf("CidrToRange failed: %v", err)
	}
	if r.End != "255.255.255.255" || r.Count != 1<<32 {
		t.Fatalf("unexpected range: %+v", r)
	}
}

func TestCidrToRange_Invalid(t *testing.T) {
	for _, cidr := range []string{"10.0.0.0", "10.0.0.0/33", "10.0.0.0/-1", "10.0.0/8", "10.0.0.0/x", "255.255.255.0/16"} {
		if _, err := CidrToRange(cidr); err == nil {
			t.Fatalf("CidrToRange(%q): expected error", cidr)
		}
	}
}
