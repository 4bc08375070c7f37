package domain

import "sort"

// NodeKind identifies the type of infrastructure object a node plans.
type NodeKind string

const (
	KindNetwork         NodeKind = "network"
	KindSubnet          NodeKind = "subnet"
	KindInternetGateway NodeKind = "internet_gateway"
	KindElasticAddress  NodeKind = "elastic_address"
	KindNatGateway      NodeKind = "nat_gateway"
	KindRouteTable      NodeKind = "route_table"
)

// ValidNodeKinds contains all node kinds in planning order.
var ValidNodeKinds = []NodeKind{
	KindNetwork,
	KindSubnet,
	KindInternetGateway,
	KindElasticAddress,
	KindNatGateway,
	KindRouteTable,
}

// IsValidNodeKind checks if a node kind is known.
func IsValidNodeKind(k NodeKind) bool {
	for _, valid := range ValidNodeKinds {
		if k == valid {
			return true
		}
	}
	return false
}

// Well-known attribute and reference keys.
const (
	AttrCIDRBlock          = "cidr_block"
	AttrBlockName          = "block_name"
	AttrRole               = "role"
	AttrEnableDNSHostnames = "enable_dns_hostnames"
	AttrEnableDNSSupport   = "enable_dns_support"
	AttrDomain             = "domain"
	AttrDestination        = "destination_cidr_block"

	RefVpcID        = "vpc_id"
	RefSubnetID     = "subnet_id"
	RefAllocationID = "allocation_id"
	RefNatGatewayID = "nat_gateway_id"

	RoleEgress  = "egress"
	RolePrivate = "private"
)

// TopologyNode is one planned infrastructure object.
//
// Refs maps an input attribute to the id of the node whose realized handle
// supplies its value; every referenced node is also listed in DependsOn.
type TopologyNode struct {
	ID         string            `json:"id"`
	Kind       NodeKind          `json:"kind"`
	Parent     string            `json:"parent,omitempty"`
	DependsOn  []string          `json:"depends_on,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Refs       map[string]string `json:"refs,omitempty"`
	Tags       map[string]string `json:"tags,omitempty"`
}

// DependsOnNode reports whether n declares a dependency on id.
func (n TopologyNode) DependsOnNode(id string) bool {
	for _, d := range n.DependsOn {
		if d == id {
			return true
		}
	}
	return false
}

// Handle is the provisioner's reference to a realized object.
type Handle struct {
	ID      string            `json:"id"`
	Kind    NodeKind          `json:"kind"`
	Outputs map[string]string `json:"outputs,omitempty"`
}

// RealizedTopology is the read-only result of building a plan.
type RealizedTopology struct {
	Request AddressSpaceRequest `json:"request"`
	// Order lists node ids in the order they were realized.
	Order   []string          `json:"order"`
	Handles map[string]Handle `json:"handles"`
	// Subnets maps block names to their realized subnet handles.
	Subnets map[string]Handle `json:"subnets"`
}

// Handle returns the realized handle of a node.
func (t *RealizedTopology) Handle(nodeID string) (Handle, bool) {
	h, ok := t.Handles[nodeID]
	return h, ok
}

// Subnet returns the realized handle of the subnet built from the named block.
func (t *RealizedTopology) Subnet(blockName string) (Handle, bool) {
	h, ok := t.Subnets[blockName]
	return h, ok
}

// SubnetNames returns the realized subnet block names sorted alphabetically.
func (t *RealizedTopology) SubnetNames() []string {
	names := make([]string, 0, len(t.Subnets))
	for n := range t.Subnets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ProvisionRequest is what a provisioner receives to realize one node.
// Attributes already contain the ids resolved from Refs.
type ProvisionRequest struct {
	NodeID       string
	Kind         NodeKind
	Parent       string
	Attributes   map[string]string
	Tags         map[string]string
	Dependencies map[string]Handle
}
