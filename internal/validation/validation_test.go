package validation

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"corenet/internal/domain"
)

func request(egress string, pairs ...string) domain.AddressSpaceRequest {
	var blocks []domain.AddressBlock
	for i := 0; i+1 < len(pairs); i += 2 {
		blocks = append(blocks, domain.AddressBlock{Name: pairs[i], CIDR: pairs[i+1]})
	}
	return domain.RequestFromOrdered(blocks, egress)
}

func TestValidateRequest(t *testing.T) {
	tests := []struct {
		name    string
		req     domain.AddressSpaceRequest
		wantErr error
	}{
		{
			name: "reference network",
			req: request("",
				"vpc", "10.0.0.0/21",
				"public", "10.0.5.0/28",
				"a", "10.0.1.0/27",
				"b", "10.0.2.0/27",
			),
		},
		{
			name: "default six block layout",
			req: request("",
				"vpc", "10.0.0.0/21",
				"public_subnet_1", "10.0.5.0/28",
				"control_plane_a", "10.0.1.0/27",
				"control_plane_b", "10.0.2.0/27",
				"worker_plane_a", "10.0.3.0/25",
				"worker_plane_b", "10.0.4.0/25",
			),
		},
		{
			name: "explicit egress subnet",
			req:  request("b", "vpc", "172.16.0.0/16", "a", "172.16.1.0/24", "b", "172.16.2.0/24"),
		},
		{
			name: "adjacent subnets",
			req:  request("", "vpc", "192.168.0.0/24", "a", "192.168.0.0/25", "b", "192.168.0.128/25"),
		},
		{
			name:    "empty request",
			req:     domain.AddressSpaceRequest{},
			wantErr: ErrEmptyValue,
		},
		{
			name:    "unnamed block",
			req:     request("", "vpc", "10.0.0.0/16", "", "10.0.1.0/24"),
			wantErr: ErrEmptyValue,
		},
		{
			name:    "duplicate name",
			req:     request("", "vpc", "10.0.0.0/16", "a", "10.0.1.0/24", "a", "10.0.2.0/24"),
			wantErr: ErrDuplicateName,
		},
		{
			name:    "container only",
			req:     request("", "vpc", "10.0.0.0/16"),
			wantErr: ErrEgressSubnet,
		},
		{
			name:    "unknown egress subnet",
			req:     request("missing", "vpc", "10.0.0.0/16", "a", "10.0.1.0/24"),
			wantErr: ErrEgressSubnet,
		},
		{
			name:    "container as egress subnet",
			req:     request("vpc", "vpc", "10.0.0.0/16", "a", "10.0.1.0/24"),
			wantErr: ErrEgressSubnet,
		},
		{
			name:    "garbage cidr",
			req:     request("", "vpc", "10.0.0.0/16", "a", "ten-dot-zero"),
			wantErr: ErrMalformedCIDR,
		},
		{
			name:    "missing prefix length",
			req:     request("", "vpc", "10.0.0.0", "a", "10.0.1.0/24"),
			wantErr: ErrMalformedCIDR,
		},
		{
			name:    "padded container cidr",
			req:     request("", "vpc", " 10.0.0.0/21 ", "public", "10.0.5.0/28"),
			wantErr: ErrMalformedCIDR,
		},
		{
			name:    "subnet cidr with trailing tab",
			req:     request("", "vpc", "10.0.0.0/21", "public", "10.0.5.0/28\t"),
			wantErr: ErrMalformedCIDR,
		},
		{
			name:    "ipv6 block",
			req:     request("", "vpc", "fd00::/56", "a", "fd00::/64"),
			wantErr: ErrMalformedCIDR,
		},
		{
			name:    "host bits set",
			req:     request("", "vpc", "10.0.0.0/16", "a", "10.0.1.7/24"),
			wantErr: ErrMalformedCIDR,
		},
		{
			name:    "public container",
			req:     request("", "vpc", "8.8.8.0/24", "a", "8.8.8.0/25"),
			wantErr: ErrPublicRange,
		},
		{
			name:    "public subnet",
			req:     request("", "vpc", "10.0.0.0/16", "a", "8.8.8.0/24"),
			wantErr: ErrPublicRange,
		},
		{
			name:    "straddles private boundary",
			req:     request("", "vpc", "172.0.0.0/8", "a", "172.16.0.0/24"),
			wantErr: ErrPublicRange,
		},
		{
			name:    "subnet outside container",
			req:     request("", "vpc", "10.0.0.0/28", "a", "10.0.1.0/28"),
			wantErr: ErrSubnetNotContained,
		},
		{
			name:    "subnet wider than container",
			req:     request("", "vpc", "10.0.0.0/24", "a", "10.0.0.0/16"),
			wantErr: ErrSubnetNotContained,
		},
		{
			name:    "subnet equal to container",
			req:     request("", "vpc", "10.0.0.0/24", "a", "10.0.0.0/24"),
			wantErr: ErrSubnetNotContained,
		},
		{
			name:    "overlapping subnets",
			req:     request("", "vpc", "10.0.0.0/24", "a", "10.0.0.0/25", "b", "10.0.0.64/25"),
			wantErr: ErrOverlappingSubnets,
		},
		{
			name:    "nested subnets",
			req:     request("", "vpc", "10.0.0.0/16", "a", "10.0.0.0/24", "b", "10.0.0.128/26"),
			wantErr: ErrOverlappingSubnets,
		},
		{
			// Also overlapping: capacity is checked first.
			name:    "subnets exceed container",
			req:     request("", "vpc", "10.0.0.0/24", "a", "10.0.0.0/25", "b", "10.0.0.128/25", "c", "10.0.0.0/26"),
			wantErr: ErrInsufficientCapacity,
		},
		{
			name:    "overlap within capacity",
			req:     request("", "vpc", "10.0.0.0/24", "a", "10.0.0.0/25", "b", "10.0.0.0/26"),
			wantErr: ErrOverlappingSubnets,
		},
		{
			name:    "non-canonical without overlap",
			req:     request("", "vpc", "10.0.0.0/24", "a", "10.0.0.7/25"),
			wantErr: ErrMalformedCIDR,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRequest(tt.req)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("ValidateRequest() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ValidateRequest() = %v, want %v", err, tt.wantErr)
			}
			var verr *Error
			if !errors.As(err, &verr) {
				t.Fatalf("expected *Error, got %T", err)
			}
		})
	}
}

func TestValidateRequest_OverlapReportsFirstPair(t *testing.T) {
	req := request("",
		"vpc", "10.0.0.0/16",
		"a", "10.0.1.0/24",
		"b", "10.0.2.0/24",
		"c", "10.0.2.0/25",
		"d", "10.0.1.128/25",
	)
	err := ValidateRequest(req)
	var verr *Error
	if !errors.As(err, &verr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if verr.Block != "a" || verr.Other != "d" {
		t.Errorf("conflict = (%s, %s), want (a, d)", verr.Block, verr.Other)
	}
	for i := 0; i < 5; i++ {
		if again := ValidateRequest(req); again.Error() != err.Error() {
			t.Fatalf("non-deterministic error: %q vs %q", again, err)
		}
	}
}

func TestValidateRequest_DoesNotMutateInput(t *testing.T) {
	req := request("", "vpc", "10.0.0.0/16", "a", "10.0.1.0/24")
	before := req.Blocks[0]
	if err := ValidateRequest(req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Blocks[0] != before {
		t.Errorf("request mutated: %+v", req.Blocks[0])
	}
}

func TestError_Message(t *testing.T) {
	err := &Error{
		Kind:   ErrOverlappingSubnets,
		Block:  "a",
		CIDR:   "10.0.0.0/25",
		Other:  "b",
		Reason: "10.0.0.0/25 intersects 10.0.0.0/25",
	}
	msg := err.Error()
	for _, want := range []string{"overlapping subnets", `block "a"`, "10.0.0.0/25", `block "b"`} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q does not contain %q", msg, want)
		}
	}
}

func TestValidateName(t *testing.T) {
	if err := ValidateName("control_plane_a"); err != nil {
		t.Errorf("ValidateName() = %v, want nil", err)
	}
	if err := ValidateName("   "); !errors.Is(err, ErrEmptyValue) {
		t.Errorf("ValidateName(blank) = %v, want %v", err, ErrEmptyValue)
	}
	if err := ValidateName(strings.Repeat("x", MaxNameLength+1)); !errors.Is(err, ErrTooLong) {
		t.Errorf("ValidateName(long) = %v, want %v", err, ErrTooLong)
	}
}

func TestValidateName_TruncatesOnRuneBoundary(t *testing.T) {
	name := strings.Repeat("é", MaxNameLength)
	err := ValidateName(name)
	var verr *Error
	if !errors.As(err, &verr) || !errors.Is(err, ErrTooLong) {
		t.Fatalf("ValidateName() = %v, want %v", err, ErrTooLong)
	}
	if !utf8.ValidString(verr.Block) {
		t.Errorf("truncated name is not valid utf-8: %q", verr.Block)
	}
	if want := strings.Repeat("é", 50) + "..."; verr.Block != want {
		t.Errorf("truncated name = %q, want %q", verr.Block, want)
	}
}

func TestKindLabel(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&Error{Kind: ErrPublicRange}, "public_range"},
		{&Error{Kind: ErrOverlappingSubnets}, "overlapping_subnets"},
		{&Error{Kind: ErrMalformedCIDR}, "malformed_cidr"},
		{errors.New("boom"), "unknown"},
	}
	for _, tt := range tests {
		if got := KindLabel(tt.err); got != tt.want {
			t.Errorf("KindLabel(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
