// Package topology turns a validated address space request into a dependency
// ordered node plan and realizes that plan through a Provisioner.
package topology

import (
	"corenet/internal/domain"
)

// RoleTagKey marks a subnet as the egress subnet or a private one.
const RoleTagKey = "corenet/subnet-role"

// NodeIDs holds the ids of the singleton nodes of a plan.
type NodeIDs struct {
	Network         string
	InternetGateway string
	ElasticAddress  string
	NatGateway      string
	RouteTable      string
}

// IDsFor returns the node ids used for a network name.
func IDsFor(name string) NodeIDs {
	return NodeIDs{
		Network:         name + "-vpc",
		InternetGateway: name + "-igw",
		ElasticAddress:  name + "-natgw-eip",
		NatGateway:      name + "-natgw",
		RouteTable:      name + "-nat-route-table",
	}
}

// SubnetID returns the node id of the subnet built from a block.
func SubnetID(name, block string) string {
	return name + "-subnet-" + block
}

// Plan produces the nodes for a validated request, sorted so that every
// node comes after all of its dependencies. The result depends only on its
// inputs.
//
// The route table's only route sends 0.0.0.0/0 to the NAT gateway; the
// internet gateway is never a route target because every subnet is private.
func Plan(name string, req domain.AddressSpaceRequest) []domain.TopologyNode {
	ids := IDsFor(name)
	container, _ := req.Container()
	subnets := req.Subordinates()

	nodes := make([]domain.TopologyNode, 0, len(subnets)+5)
	nodes = append(nodes, domain.TopologyNode{
		ID:     ids.Network,
		Kind:   domain.KindNetwork,
		Parent: name,
		Attributes: map[string]string{
			domain.AttrCIDRBlock:          container.CIDR,
			domain.AttrBlockName:          container.Name,
			domain.AttrEnableDNSHostnames: "true",
			domain.AttrEnableDNSSupport:   "true",
		},
	})

	egressID := ""
	for _, b := range subnets {
		role := domain.RolePrivate
		if b.Name == req.EgressSubnet {
			role = domain.RoleEgress
		}
		id := SubnetID(name, b.Name)
		if role == domain.RoleEgress {
			egressID = id
		}
		nodes = append(nodes, domain.TopologyNode{
			ID:        id,
			Kind:      domain.KindSubnet,
			Parent:    ids.Network,
			DependsOn: []string{ids.Network},
			Attributes: map[string]string{
				domain.AttrCIDRBlock: b.CIDR,
				domain.AttrBlockName: b.Name,
				domain.AttrRole:      role,
			},
			Refs: map[string]string{domain.RefVpcID: ids.Network},
			Tags: map[string]string{RoleTagKey: role},
		})
	}

	nodes = append(nodes,
		domain.TopologyNode{
			ID:        ids.InternetGateway,
			Kind:      domain.KindInternetGateway,
			Parent:    name,
			DependsOn: []string{ids.Network},
			Refs:      map[string]string{domain.RefVpcID: ids.Network},
		},
		domain.TopologyNode{
			ID:         ids.ElasticAddress,
			Kind:       domain.KindElasticAddress,
			Parent:     name,
			Attributes: map[string]string{domain.AttrDomain: "vpc"},
		},
		domain.TopologyNode{
			ID:        ids.NatGateway,
			Kind:      domain.KindNatGateway,
			Parent:    name,
			DependsOn: []string{ids.ElasticAddress, egressID},
			Refs: map[string]string{
				domain.RefAllocationID: ids.ElasticAddress,
				domain.RefSubnetID:     egressID,
			},
		},
		domain.TopologyNode{
			ID:         ids.RouteTable,
			Kind:       domain.KindRouteTable,
			Parent:     name,
			DependsOn:  []string{ids.Network, ids.NatGateway},
			Attributes: map[string]string{domain.AttrDestination: domain.DefaultRoute},
			Refs: map[string]string{
				domain.RefVpcID:        ids.Network,
				domain.RefNatGatewayID: ids.NatGateway,
			},
		},
	)
	return nodes
}
