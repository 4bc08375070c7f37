// Package aws realizes topology nodes as EC2 networking objects.
package aws

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"corenet/internal/domain"
	"corenet/internal/observability"
)

// EC2API is the subset of the EC2 client the provisioner uses.
type EC2API interface {
	CreateVpc(ctx context.Context, params *ec2.CreateVpcInput, optFns ...func(*ec2.Options)) (*ec2.CreateVpcOutput, error)
	ModifyVpcAttribute(ctx context.Context, params *ec2.ModifyVpcAttributeInput, optFns ...func(*ec2.Options)) (*ec2.ModifyVpcAttributeOutput, error)
	CreateSubnet(ctx context.Context, params *ec2.CreateSubnetInput, optFns ...func(*ec2.Options)) (*ec2.CreateSubnetOutput, error)
	CreateInternetGateway(ctx context.Context, params *ec2.CreateInternetGatewayInput, optFns ...func(*ec2.Options)) (*ec2.CreateInternetGatewayOutput, error)
	AttachInternetGateway(ctx context.Context, params *ec2.AttachInternetGatewayInput, optFns ...func(*ec2.Options)) (*ec2.AttachInternetGatewayOutput, error)
	AllocateAddress(ctx context.Context, params *ec2.AllocateAddressInput, optFns ...func(*ec2.Options)) (*ec2.AllocateAddressOutput, error)
	CreateNatGateway(ctx context.Context, params *ec2.CreateNatGatewayInput, optFns ...func(*ec2.Options)) (*ec2.CreateNatGatewayOutput, error)
	DescribeNatGateways(ctx context.Context, params *ec2.DescribeNatGatewaysInput, optFns ...func(*ec2.Options)) (*ec2.DescribeNatGatewaysOutput, error)
	CreateRouteTable(ctx context.Context, params *ec2.CreateRouteTableInput, optFns ...func(*ec2.Options)) (*ec2.CreateRouteTableOutput, error)
	CreateRoute(ctx context.Context, params *ec2.CreateRouteInput, optFns ...func(*ec2.Options)) (*ec2.CreateRouteOutput, error)
}

// ErrMissingInput is returned when a node arrives without an id it needs
// from one of its dependencies.
var ErrMissingInput = errors.New("missing provisioning input")

// DefaultNatGatewayWait bounds how long Provision waits for a NAT gateway to
// become available before routes can target it.
const DefaultNatGatewayWait = 10 * time.Minute

// Provisioner creates EC2 objects for topology nodes.
type Provisioner struct {
	client  EC2API
	limiter *rate.Limiter
	natWait time.Duration
	logger  observability.Logger
}

// Option configures a Provisioner.
type Option func(*Provisioner)

// WithLimiter throttles EC2 calls client side.
func WithLimiter(l *rate.Limiter) Option {
	return func(p *Provisioner) { p.limiter = l }
}

// WithNatGatewayWait sets how long to wait for a NAT gateway to become
// available. Zero skips the wait.
func WithNatGatewayWait(d time.Duration) Option {
	return func(p *Provisioner) { p.natWait = d }
}

// WithLogger sets the provisioner's logger.
func WithLogger(l observability.Logger) Option {
	return func(p *Provisioner) { p.logger = l }
}

// New creates a Provisioner on top of an EC2 client.
func New(client EC2API, opts ...Option) *Provisioner {
	p := &Provisioner{
		client:  client,
		limiter: rate.NewLimiter(rate.Inf, 0),
		natWait: DefaultNatGatewayWait,
		logger:  observability.Discard(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.WithComponent("aws-provisioner")
	return p
}

// Provision implements topology.Provisioner.
func (p *Provisioner) Provision(ctx context.Context, req domain.ProvisionRequest) (domain.Handle, error) {
	var (
		h   domain.Handle
		err error
	)
	switch req.Kind {
	case domain.KindNetwork:
		h, err = p.createVpc(ctx, req)
	case domain.KindSubnet:
		h, err = p.createSubnet(ctx, req)
	case domain.KindInternetGateway:
		h, err = p.createInternetGateway(ctx, req)
	case domain.KindElasticAddress:
		h, err = p.allocateAddress(ctx, req)
	case domain.KindNatGateway:
		h, err = p.createNatGateway(ctx, req)
	case domain.KindRouteTable:
		h, err = p.createRouteTable(ctx, req)
	default:
		return domain.Handle{}, fmt.Errorf("unsupported node kind %q", req.Kind)
	}
	if h.ID != "" {
		h.Kind = req.Kind
	}
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			p.logger.ErrorContext(ctx, "ec2 request failed",
				"node_id", req.NodeID,
				"created", h.ID,
				"code", apiErr.ErrorCode(),
				"message", apiErr.ErrorMessage(),
			)
		}
		return h, err
	}
	return h, nil
}

func (p *Provisioner) createVpc(ctx context.Context, req domain.ProvisionRequest) (domain.Handle, error) {
	cidrBlock, err := input(req, domain.AttrCIDRBlock)
	if err != nil {
		return domain.Handle{}, err
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return domain.Handle{}, err
	}
	out, err := p.client.CreateVpc(ctx, &ec2.CreateVpcInput{
		CidrBlock:         aws.String(cidrBlock),
		TagSpecifications: tagSpecs(ec2types.ResourceTypeVpc, req.Tags),
	})
	if err != nil {
		return domain.Handle{}, fmt.Errorf("create vpc %s: %w", req.NodeID, err)
	}
	vpcID := aws.ToString(out.Vpc.VpcId)
	h := domain.Handle{
		ID:      vpcID,
		Outputs: map[string]string{domain.AttrCIDRBlock: aws.ToString(out.Vpc.CidrBlock)},
	}

	// EC2 accepts a single attribute per ModifyVpcAttribute call.
	if req.Attributes[domain.AttrEnableDNSSupport] == "true" {
		if err := p.modifyVpc(ctx, &ec2.ModifyVpcAttributeInput{
			VpcId:            aws.String(vpcID),
			EnableDnsSupport: &ec2types.AttributeBooleanValue{Value: aws.Bool(true)},
		}); err != nil {
			return h, fmt.Errorf("enable dns support on %s: %w", vpcID, err)
		}
	}
	if req.Attributes[domain.AttrEnableDNSHostnames] == "true" {
		if err := p.modifyVpc(ctx, &ec2.ModifyVpcAttributeInput{
			VpcId:              aws.String(vpcID),
			EnableDnsHostnames: &ec2types.AttributeBooleanValue{Value: aws.Bool(true)},
		}); err != nil {
			return h, fmt.Errorf("enable dns hostnames on %s: %w", vpcID, err)
		}
	}
	return h, nil
}

func (p *Provisioner) modifyVpc(ctx context.Context, in *ec2.ModifyVpcAttributeInput) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := p.client.ModifyVpcAttribute(ctx, in)
	return err
}

func (p *Provisioner) createSubnet(ctx context.Context, req domain.ProvisionRequest) (domain.Handle, error) {
	vpcID, err := input(req, domain.RefVpcID)
	if err != nil {
		return domain.Handle{}, err
	}
	cidrBlock, err := input(req, domain.AttrCIDRBlock)
	if err != nil {
		return domain.Handle{}, err
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return domain.Handle{}, err
	}
	out, err := p.client.CreateSubnet(ctx, &ec2.CreateSubnetInput{
		VpcId:             aws.String(vpcID),
		CidrBlock:         aws.String(cidrBlock),
		TagSpecifications: tagSpecs(ec2types.ResourceTypeSubnet, req.Tags),
	})
	if err != nil {
		return domain.Handle{}, fmt.Errorf("create subnet %s: %w", req.NodeID, err)
	}
	return domain.Handle{
		ID: aws.ToString(out.Subnet.SubnetId),
		Outputs: map[string]string{
			domain.AttrCIDRBlock: aws.ToString(out.Subnet.CidrBlock),
			"availability_zone":  aws.ToString(out.Subnet.AvailabilityZone),
		},
	}, nil
}

func (p *Provisioner) createInternetGateway(ctx context.Context, req domain.ProvisionRequest) (domain.Handle, error) {
	vpcID, err := input(req, domain.RefVpcID)
	if err != nil {
		return domain.Handle{}, err
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return domain.Handle{}, err
	}
	out, err := p.client.CreateInternetGateway(ctx, &ec2.CreateInternetGatewayInput{
		TagSpecifications: tagSpecs(ec2types.ResourceTypeInternetGateway, req.Tags),
	})
	if err != nil {
		return domain.Handle{}, fmt.Errorf("create internet gateway %s: %w", req.NodeID, err)
	}
	igwID := aws.ToString(out.InternetGateway.InternetGatewayId)
	h := domain.Handle{ID: igwID, Outputs: map[string]string{}}

	if err := p.limiter.Wait(ctx); err != nil {
		return h, err
	}
	if _, err := p.client.AttachInternetGateway(ctx, &ec2.AttachInternetGatewayInput{
		InternetGatewayId: aws.String(igwID),
		VpcId:             aws.String(vpcID),
	}); err != nil {
		return h, fmt.Errorf("attach internet gateway %s to %s: %w", igwID, vpcID, err)
	}
	h.Outputs[domain.RefVpcID] = vpcID
	return h, nil
}

func (p *Provisioner) allocateAddress(ctx context.Context, req domain.ProvisionRequest) (domain.Handle, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return domain.Handle{}, err
	}
	out, err := p.client.AllocateAddress(ctx, &ec2.AllocateAddressInput{
		Domain:            ec2types.DomainTypeVpc,
		TagSpecifications: tagSpecs(ec2types.ResourceTypeElasticIp, req.Tags),
	})
	if err != nil {
		return domain.Handle{}, fmt.Errorf("allocate address %s: %w", req.NodeID, err)
	}
	return domain.Handle{
		ID:      aws.ToString(out.AllocationId),
		Outputs: map[string]string{"public_ip": aws.ToString(out.PublicIp)},
	}, nil
}

func (p *Provisioner) createNatGateway(ctx context.Context, req domain.ProvisionRequest) (domain.Handle, error) {
	allocationID, err := input(req, domain.RefAllocationID)
	if err != nil {
		return domain.Handle{}, err
	}
	subnetID, err := input(req, domain.RefSubnetID)
	if err != nil {
		return domain.Handle{}, err
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return domain.Handle{}, err
	}
	out, err := p.client.CreateNatGateway(ctx, &ec2.CreateNatGatewayInput{
		AllocationId:      aws.String(allocationID),
		SubnetId:          aws.String(subnetID),
		ClientToken:       aws.String(ClientToken(req.NodeID)),
		TagSpecifications: tagSpecs(ec2types.ResourceTypeNatgateway, req.Tags),
	})
	if err != nil {
		return domain.Handle{}, fmt.Errorf("create nat gateway %s: %w", req.NodeID, err)
	}
	natID := aws.ToString(out.NatGateway.NatGatewayId)
	h := domain.Handle{
		ID: natID,
		Outputs: map[string]string{
			domain.RefSubnetID:     subnetID,
			domain.RefAllocationID: allocationID,
		},
	}

	if p.natWait > 0 {
		p.logger.InfoContext(ctx, "waiting for nat gateway", "nat_gateway_id", natID, "timeout", p.natWait)
		waiter := ec2.NewNatGatewayAvailableWaiter(p.client)
		if err := waiter.Wait(ctx, &ec2.DescribeNatGatewaysInput{NatGatewayIds: []string{natID}}, p.natWait); err != nil {
			return h, fmt.Errorf("wait for nat gateway %s: %w", natID, err)
		}
	}
	return h, nil
}

func (p *Provisioner) createRouteTable(ctx context.Context, req domain.ProvisionRequest) (domain.Handle, error) {
	vpcID, err := input(req, domain.RefVpcID)
	if err != nil {
		return domain.Handle{}, err
	}
	natID, err := input(req, domain.RefNatGatewayID)
	if err != nil {
		return domain.Handle{}, err
	}
	destination := req.Attributes[domain.AttrDestination]
	if destination == "" {
		destination = domain.DefaultRoute
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return domain.Handle{}, err
	}
	out, err := p.client.CreateRouteTable(ctx, &ec2.CreateRouteTableInput{
		VpcId:             aws.String(vpcID),
		TagSpecifications: tagSpecs(ec2types.ResourceTypeRouteTable, req.Tags),
	})
	if err != nil {
		return domain.Handle{}, fmt.Errorf("create route table %s: %w", req.NodeID, err)
	}
	rtbID := aws.ToString(out.RouteTable.RouteTableId)
	h := domain.Handle{ID: rtbID, Outputs: map[string]string{}}

	if err := p.limiter.Wait(ctx); err != nil {
		return h, err
	}
	if _, err := p.client.CreateRoute(ctx, &ec2.CreateRouteInput{
		RouteTableId:         aws.String(rtbID),
		DestinationCidrBlock: aws.String(destination),
		NatGatewayId:         aws.String(natID),
	}); err != nil {
		return h, fmt.Errorf("create route %s via %s in %s: %w", destination, natID, rtbID, err)
	}
	h.Outputs[domain.AttrDestination] = destination
	h.Outputs[domain.RefNatGatewayID] = natID
	return h, nil
}

// ClientToken derives the EC2 idempotency token for a node. It is stable
// across runs so a repeated create returns the object made earlier.
func ClientToken(nodeID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("corenet/"+nodeID)).String()
}

func input(req domain.ProvisionRequest, key string) (string, error) {
	v := req.Attributes[key]
	if v == "" {
		return "", fmt.Errorf("%s %s: %w: %s", req.Kind, req.NodeID, ErrMissingInput, key)
	}
	return v, nil
}

// tagSpecs converts tags to an EC2 tag specification with keys sorted.
func tagSpecs(rt ec2types.ResourceType, tags map[string]string) []ec2types.TagSpecification {
	if len(tags) == 0 {
		return nil
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ec2Tags := make([]ec2types.Tag, 0, len(keys))
	for _, k := range keys {
		ec2Tags = append(ec2Tags, ec2types.Tag{Key: aws.String(k), Value: aws.String(tags[k])})
	}
	return []ec2types.TagSpecification{{ResourceType: rt, Tags: ec2Tags}}
}
