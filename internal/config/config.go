// Package config loads and validates the desired-configuration document that
// drives a deploy. Validation is strict and happens before any provider call.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalid marks a configuration that failed validation. Operations must not
// touch the provider once this is returned.
var ErrInvalid = errors.New("invalid configuration")

// PolicyCPU and PolicyRequestCount are the supported scaling policy choices.
// Exactly one policy is active per environment.
const (
	PolicyCPU          = "cpu"
	PolicyRequestCount = "request_count"
)

// Config is the desired configuration for one environment. It is immutable
// input to a deploy; whatever destroy later needs is captured in the record
// attributes, not here.
type Config struct {
	Region       string `yaml:"region" validate:"required"`
	InstanceType string `yaml:"instance_type" validate:"required"`

	MinCapacity     int `yaml:"min_capacity" validate:"gte=1"`
	DesiredCapacity int `yaml:"desired_capacity" validate:"gte=1"`
	MaxCapacity     int `yaml:"max_capacity" validate:"gte=1"`

	ScalingPolicy ScalingPolicy `yaml:"scaling_policy"`
	VPC           VPC           `yaml:"vpc"`
	ObjectStore   *ObjectStore  `yaml:"object_store"`

	// SSHKeyName optionally names an existing EC2 key pair to attach to
	// instances for debugging.
	SSHKeyName string `yaml:"ssh_key_name"`
}

// ScalingPolicy configures the single active scaling policy.
type ScalingPolicy struct {
	Type              string  `yaml:"type" validate:"omitempty,oneof=cpu request_count"`
	ScaleOutThreshold float64 `yaml:"scale_out_threshold" validate:"gt=0,lte=100"`
	ScaleInThreshold  float64 `yaml:"scale_in_threshold" validate:"gte=0,lt=100"`
}

// VPC configures the network layer.
type VPC struct {
	Cidr        string   `yaml:"cidr" validate:"required,cidrv4"`
	SubnetCidrs []string `yaml:"subnet_cidrs" validate:"required,min=1,dive,cidrv4"`

	// AvailabilityZones pairs one AZ with each subnet CIDR. When omitted the
	// provider picks zones itself.
	AvailabilityZones []string `yaml:"availability_zones"`
}

// ObjectStore configures the optional static-asset bucket.
type ObjectStore struct {
	Bucket string `yaml:"bucket" validate:"required"`
}

// Load reads, parses and validates a configuration file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse parses and validates a configuration document.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("%w: not valid YAML: %v", ErrInvalid, err)
	}
	if cfg.ScalingPolicy.Type == "" {
		cfg.ScalingPolicy.Type = PolicyCPU
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and the cross-field invariants.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: field %s failed %q constraint", ErrInvalid, fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	if c.MinCapacity > c.DesiredCapacity || c.DesiredCapacity > c.MaxCapacity {
		return fmt.Errorf("%w: capacity bounds must satisfy min <= desired <= max (got %d/%d/%d)",
			ErrInvalid, c.MinCapacity, c.DesiredCapacity, c.MaxCapacity)
	}
	if c.ScalingPolicy.ScaleInThreshold >= c.ScalingPolicy.ScaleOutThreshold {
		return fmt.Errorf("%w: scale_in_threshold must be below scale_out_threshold", ErrInvalid)
	}
	if n := len(c.VPC.AvailabilityZones); n > 0 && n != len(c.VPC.SubnetCidrs) {
		return fmt.Errorf("%w: availability_zones must match subnet_cidrs (%d zones for %d subnets)",
			ErrInvalid, n, len(c.VPC.SubnetCidrs))
	}
	return nil
}
