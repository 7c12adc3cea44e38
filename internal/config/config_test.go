package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
region: eu-west-1
instance_type: t3.micro
min_capacity: 1
desired_capacity: 2
max_capacity: 4
scaling_policy:
  scale_out_threshold: 70
  scale_in_threshold: 30
vpc:
  cidr: 10.0.0.0/16
  subnet_cidrs:
    - 10.0.1.0/24
    - 10.0.2.0/24
  availability_zones:
    - eu-west-1a
    - eu-west-1b
object_store:
  bucket: demo-assets
`

func TestParse_Valid(t *testing.T) {
	cfg, err := Parse([]byte(validYAML))
	require.NoError(t, err)

	assert.Equal(t, "eu-west-1", cfg.Region)
	assert.Equal(t, 2, cfg.DesiredCapacity)
	assert.Len(t, cfg.VPC.SubnetCidrs, 2)
	require.NotNil(t, cfg.ObjectStore)
	assert.Equal(t, "demo-assets", cfg.ObjectStore.Bucket)

	// The policy type defaults to cpu when omitted.
	assert.Equal(t, PolicyCPU, cfg.ScalingPolicy.Type)
}

func TestParse_NotYAML(t *testing.T) {
	_, err := Parse([]byte("region: [unclosed"))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestValidate_Invalid(t *testing.T) {
	base := func() *Config {
		cfg, err := Parse([]byte(validYAML))
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing region", func(c *Config) { c.Region = "" }},
		{"missing instance type", func(c *Config) { c.InstanceType = "" }},
		{"bad vpc cidr", func(c *Config) { c.VPC.Cidr = "10.0.0.0/33" }},
		{"bad subnet cidr", func(c *Config) { c.VPC.SubnetCidrs[0] = "not-a-cidr" }},
		{"no subnets", func(c *Config) { c.VPC.SubnetCidrs = nil }},
		{"min above desired", func(c *Config) { c.MinCapacity = 3 }},
		{"desired above max", func(c *Config) { c.DesiredCapacity = 5 }},
		{"zero min", func(c *Config) { c.MinCapacity = 0 }},
		{"unknown policy type", func(c *Config) { c.ScalingPolicy.Type = "disk" }},
		{"scale in above scale out", func(c *Config) { c.ScalingPolicy.ScaleInThreshold = 80 }},
		{"zone count mismatch", func(c *Config) { c.VPC.AvailabilityZones = []string{"eu-west-1a"} }},
		{"empty bucket", func(c *Config) { c.ObjectStore.Bucket = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}

func TestValidate_ObjectStoreOptional(t *testing.T) {
	cfg, err := Parse([]byte(validYAML))
	require.NoError(t, err)
	cfg.ObjectStore = nil
	assert.NoError(t, cfg.Validate())
}

func TestParse_RequestCountPolicy(t *testing.T) {
	cfg, err := Parse([]byte(validYAML + "\n"))
	require.NoError(t, err)
	cfg.ScalingPolicy.Type = PolicyRequestCount
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/does/not/exist.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}
