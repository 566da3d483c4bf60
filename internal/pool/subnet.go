package pool

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"wgprov/internal/apperr"
)

// minPrefix ограничивает размер пула (/16 → 65533 адреса).
const minPrefix = 16

// Hosts returns the addresses served by subnet: usable host addresses with
// the first one (the gateway) dropped. A /24 yields .2–.254.
func Hosts(subnet string) ([]netip.Addr, error) {
	p, err := netip.ParsePrefix(subnet)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidArgument, err, "parse subnet %q", subnet)
	}
	if !p.Addr().Is4() {
		return nil, apperr.New(apperr.KindInvalidArgument, "subnet %s: only IPv4 pools are supported", subnet)
	}
	if p.Bits() < minPrefix {
		return nil, apperr.New(apperr.KindInvalidArgument, "subnet %s is larger than /%d", subnet, minPrefix)
	}
	p = p.Masked()

	first := ordinal(p.Addr())
	size := uint32(1) << (32 - p.Bits())
	last := first + size - 1

	var lo, hi uint32
	switch p.Bits() {
	case 32:
		lo, hi = first, first
	case 31:
		lo, hi = first, last
	default:
		lo, hi = first+1, last-1 // без network и broadcast
	}

	out := make([]netip.Addr, 0, hi-lo)
	for n := uint64(lo) + 1; n <= uint64(hi); n++ {
		out = append(out, fromOrdinal(uint32(n)))
	}
	return out, nil
}

// Normalize parses an IPv4 literal (an optional /32 suffix is accepted) and
// returns its canonical form.
func Normalize(addr string) (netip.Addr, error) {
	a, err := netip.ParseAddr(addr)
	if err != nil {
		p, perr := netip.ParsePrefix(addr)
		if perr != nil || p.Bits() != 32 {
			return netip.Addr{}, fmt.Errorf("invalid IPv4 address %q", addr)
		}
		a = p.Addr()
	}
	a = a.Unmap()
	if !a.Is4() {
		return netip.Addr{}, fmt.Errorf("invalid IPv4 address %q", addr)
	}
	return a, nil
}

func ordinal(a netip.Addr) uint32 {
	b := a.As4()
	return binary.BigEndian.Uint32(b[:])
}

func fromOrdinal(n uint32) netip.Addr {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], n)
	return netip.AddrFrom4(b)
}
