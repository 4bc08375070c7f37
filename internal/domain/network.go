package domain

// DefaultRoute is the destination of the route table's single egress route.
const DefaultRoute = "0.0.0.0/0"

// AddressBlock is a named IPv4 CIDR block submitted as part of a request.
type AddressBlock struct {
	Name string `json:"name" yaml:"name"`
	CIDR string `json:"cidr" yaml:"cidr"`
}

// AddressSpaceRequest describes the address space of one virtual network.
// Blocks[0] is the container block; every later block is a subordinate
// subnet. EgressSubnet names the subordinate block that hosts the NAT gateway.
type AddressSpaceRequest struct {
	Blocks       []AddressBlock `json:"blocks"`
	EgressSubnet string         `json:"egress_subnet"`
}

// RequestFromOrdered builds a request from an ordered name/cidr list. When
// egress is empty the block at position 1 is used as the egress subnet.
func RequestFromOrdered(blocks []AddressBlock, egress string) AddressSpaceRequest {
	req := AddressSpaceRequest{
		Blocks:       append([]AddressBlock(nil), blocks...),
		EgressSubnet: egress,
	}
	if req.EgressSubnet == "" && len(blocks) > 1 {
		req.EgressSubnet = blocks[1].Name
	}
	return req
}

// Container returns the container block and whether the request has one.
func (r AddressSpaceRequest) Container() (AddressBlock, bool) {
	if len(r.Blocks) == 0 {
		return AddressBlock{}, false
	}
	return r.Blocks[0], true
}

// Subordinates returns the subnet blocks in request order.
func (r AddressSpaceRequest) Subordinates() []AddressBlock {
	if len(r.Blocks) < 2 {
		return nil
	}
	return r.Blocks[1:]
}

// IndexOf returns the request position of the named block, or -1.
func (r AddressSpaceRequest) IndexOf(name string) int {
	for i, b := range r.Blocks {
		if b.Name == name {
			return i
		}
	}
	return -1
}
