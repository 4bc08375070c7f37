// Package config loads the network definition and runtime settings from a
// YAML file and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"corenet/internal/domain"
)

// Supported provisioner backends.
const (
	ProviderAWS    = "aws"
	ProviderDryRun = "dryrun"
)

// Config holds the corenet configuration.
type Config struct {
	NetworkName   string            `yaml:"network_name"`
	AddressBlocks AddressBlocks     `yaml:"address_blocks"`
	EgressSubnet  string            `yaml:"egress_subnet"`
	GlobalTags    map[string]string `yaml:"global_tags"`
	Provider      string            `yaml:"provider"`
	AWS           AWSConfig         `yaml:"aws"`
	MetricsFile   string            `yaml:"metrics_file"`
}

// AWSConfig holds settings for the EC2 provisioner.
type AWSConfig struct {
	Region            string        `yaml:"region"`
	RoleARN           string        `yaml:"role_arn"`
	ExternalID        string        `yaml:"external_id"`
	AccessKeyID       string        `yaml:"access_key_id"`
	SecretAccessKey   string        `yaml:"secret_access_key"`
	SessionToken      string        `yaml:"session_token"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	NatGatewayWait    time.Duration `yaml:"nat_gateway_wait"`
}

// AddressBlocks is an ordered list of named CIDR blocks. In YAML it is
// written as a mapping whose key order is kept: the first entry is the
// network, the rest are subnets.
type AddressBlocks []domain.AddressBlock

// UnmarshalYAML decodes either a mapping (name: cidr) or a sequence of
// {name, cidr} objects, keeping document order.
func (b *AddressBlocks) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.MappingNode:
		blocks := make(AddressBlocks, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			key, val := node.Content[i], node.Content[i+1]
			if val.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: cidr for %q must be a string", val.Line, key.Value)
			}
			blocks = append(blocks, domain.AddressBlock{Name: key.Value, CIDR: val.Value})
		}
		*b = blocks
		return nil
	case yaml.SequenceNode:
		var blocks []domain.AddressBlock
		if err := node.Decode(&blocks); err != nil {
			return err
		}
		*b = blocks
		return nil
	default:
		return fmt.Errorf("line %d: address_blocks must be a mapping or a list", node.Line)
	}
}

// Default returns the configuration used when nothing else is given: a /21
// network with one small public subnet for the NAT gateway and two pairs of
// control plane and worker subnets.
func Default() *Config {
	return &Config{
		NetworkName: "dev-cluster-network",
		AddressBlocks: AddressBlocks{
			{Name: "vpc", CIDR: "10.0.0.0/21"},
			{Name: "public_subnet_1", CIDR: "10.0.5.0/28"},
			{Name: "control_plane_a", CIDR: "10.0.1.0/27"},
			{Name: "control_plane_b", CIDR: "10.0.2.0/27"},
			{Name: "worker_plane_a", CIDR: "10.0.3.0/25"},
			{Name: "worker_plane_b", CIDR: "10.0.4.0/25"},
		},
		Provider: ProviderAWS,
		AWS: AWSConfig{
			NatGatewayWait: 10 * time.Minute,
		},
	}
}

// Load loads configuration from a YAML file and environment variables.
// Environment variables override YAML values.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("CORENET_NETWORK_NAME"); v != "" {
		c.NetworkName = v
	}
	if v := os.Getenv("CORENET_EGRESS_SUBNET"); v != "" {
		c.EgressSubnet = v
	}
	if v := os.Getenv("CORENET_PROVIDER"); v != "" {
		c.Provider = v
	}
	if v := os.Getenv("CORENET_METRICS_FILE"); v != "" {
		c.MetricsFile = v
	}
	if v := os.Getenv("CORENET_AWS_REGION"); v != "" {
		c.AWS.Region = v
	}
	if v := os.Getenv("CORENET_AWS_ROLE_ARN"); v != "" {
		c.AWS.RoleARN = v
	}
	if v := os.Getenv("CORENET_AWS_EXTERNAL_ID"); v != "" {
		c.AWS.ExternalID = v
	}
	if v := os.Getenv("CORENET_AWS_REQUESTS_PER_SECOND"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("CORENET_AWS_REQUESTS_PER_SECOND: %w", err)
		}
		c.AWS.RequestsPerSecond = rps
	}
	if v := os.Getenv("CORENET_GLOBAL_TAGS"); v != "" {
		tags, err := ParseTags(v)
		if err != nil {
			return fmt.Errorf("CORENET_GLOBAL_TAGS: %w", err)
		}
		if c.GlobalTags == nil {
			c.GlobalTags = make(map[string]string, len(tags))
		}
		for k, val := range tags {
			c.GlobalTags[k] = val
		}
	}
	return nil
}

// ParseTags parses "k=v,k2=v2". Empty values are allowed, empty keys are not.
func ParseTags(s string) (map[string]string, error) {
	tags := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid tag %q, want key=value", pair)
		}
		tags[k] = strings.TrimSpace(v)
	}
	return tags, nil
}

// Validate checks that required configuration fields are set. Address
// blocks are only checked for presence here; their cidrs are validated by
// the network pipeline.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.NetworkName) == "" {
		return errors.New("network_name is required (set CORENET_NETWORK_NAME or yaml)")
	}
	if len(c.AddressBlocks) < 2 {
		return errors.New("address_blocks needs a network block and at least one subnet")
	}
	switch c.Provider {
	case ProviderAWS, ProviderDryRun:
	default:
		return fmt.Errorf("provider must be %q or %q, got %q", ProviderAWS, ProviderDryRun, c.Provider)
	}
	if c.AWS.RequestsPerSecond < 0 {
		return errors.New("aws.requests_per_second must not be negative")
	}
	if c.AWS.NatGatewayWait < 0 {
		return errors.New("aws.nat_gateway_wait must not be negative")
	}
	return nil
}

// Request returns the address space request described by the config.
func (c *Config) Request() domain.AddressSpaceRequest {
	return domain.RequestFromOrdered(c.AddressBlocks, c.EgressSubnet)
}
