package memory

import (
	"context"
	"errors"
	"strings"
	"testing"

	"corenet/internal/domain"
)

func TestProvision(t *testing.T) {
	p := New()
	ctx := context.Background()

	vpc, err := p.Provision(ctx, domain.ProvisionRequest{
		NodeID:     "dev-vpc",
		Kind:       domain.KindNetwork,
		Attributes: map[string]string{domain.AttrCIDRBlock: "10.0.0.0/21"},
	})
	if err != nil {
		t.Fatalf("Provision(network) error: %v", err)
	}
	if !strings.HasPrefix(vpc.ID, "vpc-") || len(vpc.ID) != len("vpc-")+17 {
		t.Errorf("unexpected vpc id %q", vpc.ID)
	}
	if vpc.Outputs[domain.AttrCIDRBlock] != "10.0.0.0/21" {
		t.Errorf("cidr output = %q", vpc.Outputs[domain.AttrCIDRBlock])
	}

	again, err := p.Provision(ctx, domain.ProvisionRequest{NodeID: "dev-vpc", Kind: domain.KindNetwork})
	if err != nil {
		t.Fatalf("repeat Provision error: %v", err)
	}
	if again.ID != vpc.ID {
		t.Errorf("repeat call created a new object: %s != %s", again.ID, vpc.ID)
	}
	if p.Objects() != 1 || len(p.Calls()) != 2 {
		t.Errorf("objects=%d calls=%d, want 1 and 2", p.Objects(), len(p.Calls()))
	}
}

func TestProvision_MissingReference(t *testing.T) {
	p := New()
	_, err := p.Provision(context.Background(), domain.ProvisionRequest{
		NodeID:     "dev-natgw",
		Kind:       domain.KindNatGateway,
		Attributes: map[string]string{domain.RefAllocationID: "eipalloc-1"},
	})
	if err == nil || !strings.Contains(err.Error(), domain.RefSubnetID) {
		t.Fatalf("expected missing subnet_id error, got %v", err)
	}
}

func TestProvision_FailOn(t *testing.T) {
	quota := errors.New("quota exceeded")
	p := New(FailOn(domain.KindElasticAddress, quota))
	_, err := p.Provision(context.Background(), domain.ProvisionRequest{NodeID: "eip", Kind: domain.KindElasticAddress})
	if !errors.Is(err, quota) {
		t.Fatalf("Provision() = %v, want %v", err, quota)
	}
	if p.Objects() != 0 {
		t.Errorf("failed call created an object")
	}
}

func TestProvision_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New().Provision(ctx, domain.ProvisionRequest{NodeID: "x", Kind: domain.KindNetwork}); !errors.Is(err, context.Canceled) {
		t.Fatalf("Provision() = %v, want context.Canceled", err)
	}
}

func TestCalls_AreCopies(t *testing.T) {
	p := New()
	attrs := map[string]string{domain.AttrCIDRBlock: "10.0.0.0/16"}
	if _, err := p.Provision(context.Background(), domain.ProvisionRequest{NodeID: "n", Kind: domain.KindNetwork, Attributes: attrs}); err != nil {
		t.Fatal(err)
	}
	attrs[domain.AttrCIDRBlock] = "changed"
	if got := p.Calls()[0].Attributes[domain.AttrCIDRBlock]; got != "10.0.0.0/16" {
		t.Errorf("recorded attributes changed to %q", got)
	}
}
