// Package validation checks address space requests before anything is planned
// or provisioned.
package validation

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"corenet/internal/cidr"
	"corenet/internal/domain"
)

// Validation error kinds for specific error handling.
var (
	ErrEmptyValue           = errors.New("value cannot be empty")
	ErrTooLong              = errors.New("value exceeds maximum length")
	ErrDuplicateName        = errors.New("duplicate block name")
	ErrEgressSubnet         = errors.New("invalid egress subnet")
	ErrMalformedCIDR        = errors.New("malformed cidr")
	ErrPublicRange          = errors.New("public address range used")
	ErrSubnetNotContained   = errors.New("subnet not contained in network")
	ErrOverlappingSubnets   = errors.New("overlapping subnets")
	ErrInsufficientCapacity = errors.New("insufficient address capacity")
)

// MaxNameLength bounds block names; they end up in resource Name tags.
const MaxNameLength = 255

// Error describes why a request was rejected. Kind is one of the package
// sentinels and is matched by errors.Is.
type Error struct {
	Kind   error
	Block  string
	CIDR   string
	Other  string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Block != "" {
		fmt.Fprintf(&b, ": block %q", e.Block)
		if e.CIDR != "" {
			fmt.Fprintf(&b, " (%s)", e.CIDR)
		}
	}
	if e.Other != "" {
		fmt.Fprintf(&b, " and block %q", e.Other)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// KindLabel returns a short stable label for the kind of a validation error,
// or "unknown" for anything else.
func KindLabel(err error) string {
	switch {
	case errors.Is(err, ErrEmptyValue):
		return "empty_value"
	case errors.Is(err, ErrTooLong):
		return "too_long"
	case errors.Is(err, ErrDuplicateName):
		return "duplicate_name"
	case errors.Is(err, ErrEgressSubnet):
		return "egress_subnet"
	case errors.Is(err, ErrMalformedCIDR):
		return "malformed_cidr"
	case errors.Is(err, ErrPublicRange):
		return "public_range"
	case errors.Is(err, ErrSubnetNotContained):
		return "subnet_not_contained"
	case errors.Is(err, ErrOverlappingSubnets):
		return "overlapping_subnets"
	case errors.Is(err, ErrInsufficientCapacity):
		return "insufficient_capacity"
	default:
		return "unknown"
	}
}

// ValidateName validates a block or network name.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return &Error{Kind: ErrEmptyValue, Reason: "name cannot be empty"}
	}
	if len(name) > MaxNameLength {
		return &Error{
			Kind:   ErrTooLong,
			Block:  truncate(name, 50) + "...",
			Reason: fmt.Sprintf("exceeds maximum length of %d characters", MaxNameLength),
		}
	}
	return nil
}

// ValidateRequest checks a request against the address space rules:
//   - block names are present and unique, and the egress subnet names a
//     subordinate block
//   - every cidr parses as an IPv4 network
//   - every block lies in RFC 1918 private space
//   - every subordinate block is a strict subset of the container
//   - subordinate blocks do not request more addresses than the container has
//   - no two subordinate blocks overlap
//   - every cidr is written in canonical form (no host bits set)
//
// Checks run in that order and the first failure is returned. It has no side
// effects.
func ValidateRequest(req domain.AddressSpaceRequest) error {
	if err := validateStructure(req); err != nil {
		return err
	}

	prefixes := make([]netip.Prefix, len(req.Blocks))
	for i, b := range req.Blocks {
		p, err := netip.ParsePrefix(b.CIDR)
		if err != nil || !p.Addr().Is4() {
			_, perr := cidr.ParseCanonical(b.CIDR)
			return &Error{Kind: ErrMalformedCIDR, Block: b.Name, CIDR: b.CIDR, Reason: "not an ipv4 network in a.b.c.d/x form", Err: perr}
		}
		prefixes[i] = p.Masked()
	}

	for i, p := range prefixes {
		if !cidr.IsPrivate(p) {
			return &Error{
				Kind:   ErrPublicRange,
				Block:  req.Blocks[i].Name,
				CIDR:   req.Blocks[i].CIDR,
				Reason: "must lie within 10.0.0.0/8, 172.16.0.0/12 or 192.168.0.0/16",
			}
		}
	}

	container := prefixes[0]
	for i := 1; i < len(prefixes); i++ {
		if !cidr.StrictlyContains(container, prefixes[i]) {
			reason := fmt.Sprintf("not within container %s", container)
			if prefixes[i] == container {
				reason = "must be smaller than the container"
			}
			return &Error{Kind: ErrSubnetNotContained, Block: req.Blocks[i].Name, CIDR: req.Blocks[i].CIDR, Reason: reason}
		}
	}

	if err := checkCapacity(req.Blocks[0], container, prefixes[1:]); err != nil {
		return err
	}

	for i := 1; i < len(prefixes); i++ {
		for j := i + 1; j < len(prefixes); j++ {
			if cidr.Overlaps(prefixes[i], prefixes[j]) {
				return &Error{
					Kind:   ErrOverlappingSubnets,
					Block:  req.Blocks[i].Name,
					CIDR:   req.Blocks[i].CIDR,
					Other:  req.Blocks[j].Name,
					Reason: fmt.Sprintf("%s intersects %s", prefixes[i], prefixes[j]),
				}
			}
		}
	}

	for _, b := range req.Blocks {
		if _, err := cidr.ParseCanonical(b.CIDR); err != nil {
			return &Error{Kind: ErrMalformedCIDR, Block: b.Name, CIDR: b.CIDR, Reason: "host bits set", Err: err}
		}
	}
	return nil
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

func validateStructure(req domain.AddressSpaceRequest) error {
	if len(req.Blocks) == 0 {
		return &Error{Kind: ErrEmptyValue, Reason: "request has no container block"}
	}
	seen := make(map[string]struct{}, len(req.Blocks))
	for _, b := range req.Blocks {
		if strings.TrimSpace(b.Name) == "" {
			return &Error{Kind: ErrEmptyValue, Reason: fmt.Sprintf("block with cidr %q has no name", b.CIDR)}
		}
		if err := ValidateName(b.Name); err != nil {
			return err
		}
		if _, dup := seen[b.Name]; dup {
			return &Error{Kind: ErrDuplicateName, Block: b.Name}
		}
		seen[b.Name] = struct{}{}
	}

	if len(req.Blocks) < 2 {
		return &Error{Kind: ErrEgressSubnet, Block: req.Blocks[0].Name, Reason: "at least one subnet is required to host the nat gateway"}
	}
	switch idx := req.IndexOf(req.EgressSubnet); {
	case req.EgressSubnet == "":
		return &Error{Kind: ErrEgressSubnet, Reason: "egress subnet is not set"}
	case idx < 0:
		return &Error{Kind: ErrEgressSubnet, Block: req.EgressSubnet, Reason: "no block with this name"}
	case idx == 0:
		return &Error{Kind: ErrEgressSubnet, Block: req.EgressSubnet, Reason: "the container block cannot host the nat gateway"}
	}
	return nil
}

// checkCapacity is a necessary, not sufficient, packing check: the subnets
// together must not ask for more addresses than the container holds.
func checkCapacity(container domain.AddressBlock, total netip.Prefix, subnets []netip.Prefix) error {
	var want uint64
	for _, p := range subnets {
		want += cidr.AddressCount(p)
	}
	if have := cidr.AddressCount(total); want > have {
		return &Error{
			Kind:   ErrInsufficientCapacity,
			Block:  container.Name,
			CIDR:   container.CIDR,
			Reason: fmt.Sprintf("subnets request %d addresses, container has %d", want, have),
		}
	}
	return nil
}
