// Package cidr provides IPv4 CIDR math for parsing, containment checks,
// overlap detection, and private-range membership.
package cidr

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"
	"strings"
)

var (
	ErrInvalidFormat    = errors.New("invalid cidr notation")
	ErrIPv6NotSupported = errors.New("ipv6 not supported")
	ErrNotCanonical     = errors.New("host bits set")
)

// RFC 1918 private address space.
var privateIPv4Ranges = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
}

// ParseCanonical parses an IPv4 prefix in a.b.c.d/x form. The address must
// be the network address of the prefix. Surrounding whitespace is rejected,
// not trimmed: the text is passed to the provider as written.
func ParseCanonical(s string) (netip.Prefix, error) {
	if strings.TrimSpace(s) != s {
		return netip.Prefix{}, fmt.Errorf("%q: surrounding whitespace: %w", s, ErrInvalidFormat)
	}
	if !strings.Contains(s, "/") {
		return netip.Prefix{}, fmt.Errorf("%q: must be in a.b.c.d/x form: %w", s, ErrInvalidFormat)
	}
	p, err := netip.ParsePrefix(s)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("%q: %w", s, ErrInvalidFormat)
	}
	if !p.Addr().Is4() {
		return netip.Prefix{}, fmt.Errorf("%q: %w", s, ErrIPv6NotSupported)
	}
	if p.Masked() != p {
		return netip.Prefix{}, fmt.Errorf("%q: %w (network address is %s)", s, ErrNotCanonical, p.Masked())
	}
	return p, nil
}

// PrefixContains reports whether outer fully contains inner.
// Both prefixes must be valid IPv4 prefixes; returns false otherwise.
func PrefixContains(outer, inner netip.Prefix) bool {
	if !outer.IsValid() || !inner.IsValid() {
		return false
	}
	// Only IPv4 is supported.
	if !outer.Addr().Is4() || !inner.Addr().Is4() {
		return false
	}
	// Inner must have equal or longer prefix length.
	if inner.Bits() < outer.Bits() {
		return false
	}
	// Both ends of inner must fall inside outer.
	return outer.Contains(inner.Masked().Addr()) && outer.Contains(LastAddr(inner))
}

// StrictlyContains reports whether inner is a proper subset of outer.
func StrictlyContains(outer, inner netip.Prefix) bool {
	// An equal prefix length with containment means the same network.
	return PrefixContains(outer, inner) && inner.Bits() > outer.Bits()
}

// Overlaps reports whether two IPv4 prefixes share any addresses.
func Overlaps(a, b netip.Prefix) bool {
	if !a.IsValid() || !b.IsValid() {
		return false
	}
	as, ae := interval(a)
	bs, be := interval(b)
	// Closed intervals intersect unless one ends before the other starts.
	return ae >= bs && be >= as
}

// IsPrivate reports whether the prefix falls entirely within RFC 1918 space.
func IsPrivate(p netip.Prefix) bool {
	if !p.IsValid() || !p.Addr().Is4() {
		return false
	}
	for _, r := range privateIPv4Ranges {
		if PrefixContains(r, p) {
			return true
		}
	}
	return false
}

// AddressCount returns the total number of addresses in an IPv4 prefix.
func AddressCount(p netip.Prefix) uint64 {
	return 1 << (32 - p.Bits())
}

// LastAddr returns the last (broadcast) address in a prefix.
func LastAddr(p netip.Prefix) netip.Addr {
	a4 := p.Masked().Addr().As4()
	hostBits := 32 - p.Bits()
	// Set every host bit, lowest byte first.
	for i := 0; i < hostBits; i++ {
		a4[3-i/8] |= 1 << (i % 8)
	}
	return netip.AddrFrom4(a4)
}

func interval(p netip.Prefix) (start, end uint32) {
	first := p.Masked().Addr().As4()
	last := LastAddr(p).As4()
	return binary.BigEndian.Uint32(first[:]), binary.BigEndian.Uint32(last[:])
}
