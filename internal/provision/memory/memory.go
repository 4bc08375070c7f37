// Package memory provides an in-process Provisioner used for dry runs and
// tests. It creates nothing outside the process.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"corenet/internal/domain"
)

// Prefixes mirror the id shapes of the corresponding EC2 objects.
var idPrefixes = map[domain.NodeKind]string{
	domain.KindNetwork:         "vpc",
	domain.KindSubnet:          "subnet",
	domain.KindInternetGateway: "igw",
	domain.KindElasticAddress:  "eipalloc",
	domain.KindNatGateway:      "nat",
	domain.KindRouteTable:      "rtb",
}

// Inputs each kind must receive from its dependencies.
var requiredRefs = map[domain.NodeKind][]string{
	domain.KindSubnet:          {domain.RefVpcID},
	domain.KindInternetGateway: {domain.RefVpcID},
	domain.KindNatGateway:      {domain.RefAllocationID, domain.RefSubnetID},
	domain.KindRouteTable:      {domain.RefVpcID, domain.RefNatGatewayID},
}

// Provisioner records provision calls and hands out fake handles. Provision
// is idempotent per node id: a repeated call returns the existing handle.
// Safe for concurrent use.
type Provisioner struct {
	mu      sync.Mutex
	calls   []domain.ProvisionRequest
	objects map[string]domain.Handle
	failOn  map[domain.NodeKind]error
	eips    int
}

// Option configures a Provisioner.
type Option func(*Provisioner)

// FailOn makes every call for kind fail with err.
func FailOn(kind domain.NodeKind, err error) Option {
	return func(p *Provisioner) { p.failOn[kind] = err }
}

// New creates an empty Provisioner.
func New(opts ...Option) *Provisioner {
	p := &Provisioner{
		objects: make(map[string]domain.Handle),
		failOn:  make(map[domain.NodeKind]error),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Provision implements topology.Provisioner.
func (p *Provisioner) Provision(ctx context.Context, req domain.ProvisionRequest) (domain.Handle, error) {
	if err := ctx.Err(); err != nil {
		return domain.Handle{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, cloneRequest(req))
	if err, ok := p.failOn[req.Kind]; ok {
		return domain.Handle{}, err
	}
	if h, ok := p.objects[req.NodeID]; ok {
		return h, nil
	}

	prefix, ok := idPrefixes[req.Kind]
	if !ok {
		return domain.Handle{}, fmt.Errorf("unsupported node kind %q", req.Kind)
	}
	for _, ref := range requiredRefs[req.Kind] {
		if req.Attributes[ref] == "" {
			return domain.Handle{}, fmt.Errorf("%s %s: missing %s", req.Kind, req.NodeID, ref)
		}
	}

	h := domain.Handle{
		ID:      prefix + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:17],
		Kind:    req.Kind,
		Outputs: map[string]string{},
	}
	switch req.Kind {
	case domain.KindNetwork, domain.KindSubnet:
		h.Outputs[domain.AttrCIDRBlock] = req.Attributes[domain.AttrCIDRBlock]
	case domain.KindElasticAddress:
		p.eips++
		// 203.0.113.0/24 is TEST-NET-3.
		h.Outputs["public_ip"] = fmt.Sprintf("203.0.113.%d", p.eips%256)
	case domain.KindNatGateway:
		h.Outputs[domain.RefSubnetID] = req.Attributes[domain.RefSubnetID]
	case domain.KindRouteTable:
		h.Outputs[domain.RefNatGatewayID] = req.Attributes[domain.RefNatGatewayID]
	}
	p.objects[req.NodeID] = h
	return h, nil
}

// Calls returns every request received, in order.
func (p *Provisioner) Calls() []domain.ProvisionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.ProvisionRequest, len(p.calls))
	copy(out, p.calls)
	return out
}

// Objects returns the number of objects created.
func (p *Provisioner) Objects() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.objects)
}

func cloneRequest(req domain.ProvisionRequest) domain.ProvisionRequest {
	out := req
	out.Attributes = cloneMap(req.Attributes)
	out.Tags = cloneMap(req.Tags)
	out.Dependencies = make(map[string]domain.Handle, len(req.Dependencies))
	for k, v := range req.Dependencies {
		out.Dependencies[k] = v
	}
	return out
}

func cloneMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
