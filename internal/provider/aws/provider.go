// Package aws implements the CloudProvider contract against AWS. Each file
// covers one service family, mirroring the services the topology touches:
// EC2 networking, ELBv2, Auto Scaling + CloudWatch, IAM and S3.
package aws

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/stackctl-io/stackctl/internal/provider"
	"github.com/stackctl-io/stackctl/internal/resource"
)

// DefaultPollInterval is how often readiness polls re-check the provider.
const DefaultPollInterval = 10 * time.Second

// Provider talks to AWS.
type Provider struct {
	region string

	ec2Client         *ec2.Client
	elbv2Client       *elasticloadbalancingv2.Client
	autoscalingClient *autoscaling.Client
	cloudwatchClient  *cloudwatch.Client
	iamClient         *iam.Client
	s3Client          *s3.Client

	retry        *provider.RetryPolicy
	pollInterval time.Duration
}

var _ provider.CloudProvider = (*Provider)(nil)

// New loads the default AWS configuration for the region and wires up the
// service clients.
func New(ctx context.Context, region string) (*Provider, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}

	return &Provider{
		region:            region,
		ec2Client:         ec2.NewFromConfig(cfg),
		elbv2Client:       elasticloadbalancingv2.NewFromConfig(cfg),
		autoscalingClient: autoscaling.NewFromConfig(cfg),
		cloudwatchClient:  cloudwatch.NewFromConfig(cfg),
		iamClient:         iam.NewFromConfig(cfg),
		s3Client:          s3.NewFromConfig(cfg),
		retry:             provider.DefaultRetryPolicy(),
		pollInterval:      DefaultPollInterval,
	}, nil
}

// Create dispatches to the per-kind implementation.
func (p *Provider) Create(ctx context.Context, kind resource.Kind, name string, inputs map[string]string) (*provider.Created, error) {
	switch kind {
	case resource.KindNetwork:
		return p.createNetwork(ctx, name, inputs)
	case resource.KindSubnet:
		return p.createSubnet(ctx, name, inputs)
	case resource.KindSecurityGroupALB:
		return p.createALBSecurityGroup(ctx, name, inputs)
	case resource.KindSecurityGroupCompute:
		return p.createComputeSecurityGroup(ctx, name, inputs)
	case resource.KindInstanceRole:
		return p.createInstanceRole(ctx, name, inputs)
	case resource.KindObjectStore:
		return p.createBucket(ctx, name, inputs)
	case resource.KindLoadBalancer:
		return p.createLoadBalancer(ctx, name, inputs)
	case resource.KindTargetGroup:
		return p.createTargetGroup(ctx, name, inputs)
	case resource.KindListener:
		return p.createListener(ctx, inputs)
	case resource.KindLaunchTemplate:
		return p.createLaunchTemplate(ctx, name, inputs)
	case resource.KindScalingGroup:
		return p.createScalingGroup(ctx, name, inputs)
	case resource.KindScalingPolicy:
		return p.createScalingPolicy(ctx, name, inputs)
	}
	return nil, fmt.Errorf("unknown resource kind %q", kind)
}

// Describe dispatches to the per-kind implementation.
func (p *Provider) Describe(ctx context.Context, kind resource.Kind, id string) (map[string]string, error) {
	switch kind {
	case resource.KindNetwork:
		return p.describeNetwork(ctx, id)
	case resource.KindSubnet:
		return p.describeSubnet(ctx, id)
	case resource.KindSecurityGroupALB, resource.KindSecurityGroupCompute:
		return p.describeSecurityGroup(ctx, id)
	case resource.KindInstanceRole:
		return p.describeInstanceRole(ctx, id)
	case resource.KindObjectStore:
		return p.describeBucket(ctx, id)
	case resource.KindLoadBalancer:
		return p.describeLoadBalancer(ctx, id)
	case resource.KindTargetGroup:
		return p.describeTargetGroup(ctx, id)
	case resource.KindListener:
		return p.describeListener(ctx, id)
	case resource.KindLaunchTemplate:
		return p.describeLaunchTemplate(ctx, id)
	case resource.KindScalingGroup:
		return p.describeScalingGroup(ctx, id)
	case resource.KindScalingPolicy:
		return p.describeScalingPolicy(ctx, id)
	}
	return nil, fmt.Errorf("unknown resource kind %q", kind)
}

// Delete dispatches to the per-kind implementation.
func (p *Provider) Delete(ctx context.Context, kind resource.Kind, id string, attrs map[string]string) error {
	switch kind {
	case resource.KindNetwork:
		return p.deleteNetwork(ctx, id, attrs)
	case resource.KindSubnet:
		return p.deleteSubnet(ctx, id)
	case resource.KindSecurityGroupALB, resource.KindSecurityGroupCompute:
		return p.deleteSecurityGroup(ctx, id)
	case resource.KindInstanceRole:
		return p.deleteInstanceRole(ctx, id, attrs)
	case resource.KindObjectStore:
		return p.deleteBucket(ctx, id)
	case resource.KindLoadBalancer:
		return p.deleteLoadBalancer(ctx, id)
	case resource.KindTargetGroup:
		return p.deleteTargetGroup(ctx, id)
	case resource.KindListener:
		return p.deleteListener(ctx, id)
	case resource.KindLaunchTemplate:
		return p.deleteLaunchTemplate(ctx, id)
	case resource.KindScalingGroup:
		return p.deleteScalingGroup(ctx, id)
	case resource.KindScalingPolicy:
		return p.deleteScalingPolicy(ctx, id, attrs)
	}
	return fmt.Errorf("unknown resource kind %q", kind)
}

// WaitReady polls until the resource reports ready or the timeout elapses.
func (p *Provider) WaitReady(ctx context.Context, kind resource.Kind, id string, timeout time.Duration) error {
	var check func(context.Context, string) (bool, error)
	switch kind {
	case resource.KindLoadBalancer:
		check = p.loadBalancerActive
	case resource.KindScalingGroup:
		check = p.scalingGroupAtCapacity
	default:
		return nil
	}
	return p.poll(ctx, timeout, func(ctx context.Context) (bool, error) {
		return check(ctx, id)
	})
}

// poll re-checks at a fixed interval until done, error, or timeout.
func (p *Provider) poll(ctx context.Context, timeout time.Duration, check func(context.Context) (bool, error)) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		done, err := check(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if time.Now().After(deadline) {
			return provider.ErrTimedOut
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// do wraps a provider call with transient-error retries.
func (p *Provider) do(ctx context.Context, fn func() error) error {
	return provider.RetryWithBackoff(ctx, p.retry, fn, provider.IsTransient)
}

// notFoundCodes are API error codes that mean the resource is already gone.
var notFoundCodes = []string{
	"NotFound",
	"NoSuchEntity",
	"NoSuchBucket",
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	code := apiErr.ErrorCode()
	for _, c := range notFoundCodes {
		if strings.Contains(code, c) {
			return true
		}
	}
	// Auto Scaling reports a missing group as a ValidationError.
	if code == "ValidationError" && strings.Contains(strings.ToLower(apiErr.ErrorMessage()), "not found") {
		return true
	}
	return false
}

// wrapErr translates an SDK error into the adapter taxonomy.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if isNotFound(err) {
		return fmt.Errorf("%s: %w", op, provider.ErrNotFound)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %w", op, &provider.Error{
			Code:    apiErr.ErrorCode(),
			Message: apiErr.ErrorMessage(),
			Err:     err,
		})
	}
	return fmt.Errorf("%s: %w", op, err)
}
