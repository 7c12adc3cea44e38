package aws

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbv2types "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"

	"github.com/stackctl-io/stackctl/internal/bootstrap"
	"github.com/stackctl-io/stackctl/internal/provider"
	"github.com/stackctl-io/stackctl/internal/resource"
)

func (p *Provider) createLoadBalancer(ctx context.Context, name string, inputs map[string]string) (*provider.Created, error) {
	subnets := strings.Split(inputs[provider.InputSubnetIDs], ",")

	var lb elbv2types.LoadBalancer
	err := p.do(ctx, func() error {
		resp, err := p.elbv2Client.CreateLoadBalancer(ctx, &elasticloadbalancingv2.CreateLoadBalancerInput{
			Name:           awssdk.String(name),
			Subnets:        subnets,
			SecurityGroups: []string{inputs[provider.InputSecurityGroupID]},
			Scheme:         elbv2types.LoadBalancerSchemeEnumInternetFacing,
			Type:           elbv2types.LoadBalancerTypeEnumApplication,
		})
		if err != nil {
			return err
		}
		lb = resp.LoadBalancers[0]
		return nil
	})
	if err != nil {
		return nil, wrapErr("create load balancer", err)
	}

	return &provider.Created{
		ID: awssdk.ToString(lb.LoadBalancerArn),
		Attributes: map[string]string{
			resource.AttrDNSName: awssdk.ToString(lb.DNSName),
		},
	}, nil
}

func (p *Provider) describeLoadBalancer(ctx context.Context, arn string) (map[string]string, error) {
	resp, err := p.elbv2Client.DescribeLoadBalancers(ctx, &elasticloadbalancingv2.DescribeLoadBalancersInput{
		LoadBalancerArns: []string{arn},
	})
	if err != nil {
		return nil, wrapErr("describe load balancer", err)
	}
	if len(resp.LoadBalancers) == 0 {
		return nil, provider.ErrNotFound
	}
	lb := resp.LoadBalancers[0]
	return map[string]string{
		resource.AttrDNSName: awssdk.ToString(lb.DNSName),
		"state":              string(lb.State.Code),
	}, nil
}

func (p *Provider) deleteLoadBalancer(ctx context.Context, arn string) error {
	err := p.do(ctx, func() error {
		_, err := p.elbv2Client.DeleteLoadBalancer(ctx, &elasticloadbalancingv2.DeleteLoadBalancerInput{
			LoadBalancerArn: &arn,
		})
		return err
	})
	return wrapErr("delete load balancer", err)
}

func (p *Provider) loadBalancerActive(ctx context.Context, arn string) (bool, error) {
	attrs, err := p.describeLoadBalancer(ctx, arn)
	if err != nil {
		return false, err
	}
	state := attrs["state"]
	if state == string(elbv2types.LoadBalancerStateEnumFailed) {
		return false, fmt.Errorf("load balancer entered failed state")
	}
	return state == string(elbv2types.LoadBalancerStateEnumActive), nil
}

func (p *Provider) createTargetGroup(ctx context.Context, name string, inputs map[string]string) (*provider.Created, error) {
	var tg elbv2types.TargetGroup
	err := p.do(ctx, func() error {
		resp, err := p.elbv2Client.CreateTargetGroup(ctx, &elasticloadbalancingv2.CreateTargetGroupInput{
			Name:                       awssdk.String(name),
			Protocol:                   elbv2types.ProtocolEnumHttp,
			Port:                       awssdk.Int32(bootstrap.DefaultPort),
			VpcId:                      awssdk.String(inputs[provider.InputVpcID]),
			TargetType:                 elbv2types.TargetTypeEnumInstance,
			HealthCheckProtocol:        elbv2types.ProtocolEnumHttp,
			HealthCheckPath:            awssdk.String("/health"),
			HealthCheckIntervalSeconds: awssdk.Int32(30),
			HealthCheckTimeoutSeconds:  awssdk.Int32(5),
			HealthyThresholdCount:      awssdk.Int32(2),
			UnhealthyThresholdCount:    awssdk.Int32(3),
		})
		if err != nil {
			return err
		}
		tg = resp.TargetGroups[0]
		return nil
	})
	if err != nil {
		return nil, wrapErr("create target group", err)
	}

	arn := awssdk.ToString(tg.TargetGroupArn)
	return &provider.Created{
		ID: arn,
		Attributes: map[string]string{
			resource.AttrTargetGroupArn: arn,
		},
	}, nil
}

// describeTargetGroup reports the group plus how many registered targets are
// currently passing health checks.
func (p *Provider) describeTargetGroup(ctx context.Context, arn string) (map[string]string, error) {
	resp, err := p.elbv2Client.DescribeTargetGroups(ctx, &elasticloadbalancingv2.DescribeTargetGroupsInput{
		TargetGroupArns: []string{arn},
	})
	if err != nil {
		return nil, wrapErr("describe target group", err)
	}
	if len(resp.TargetGroups) == 0 {
		return nil, provider.ErrNotFound
	}

	attrs := map[string]string{
		resource.AttrTargetGroupArn: arn,
	}
	health, err := p.elbv2Client.DescribeTargetHealth(ctx, &elasticloadbalancingv2.DescribeTargetHealthInput{
		TargetGroupArn: &arn,
	})
	if err == nil {
		healthy := 0
		for _, desc := range health.TargetHealthDescriptions {
			if desc.TargetHealth.State == elbv2types.TargetHealthStateEnumHealthy {
				healthy++
			}
		}
		attrs["healthy_targets"] = strconv.Itoa(healthy)
		attrs["total_targets"] = strconv.Itoa(len(health.TargetHealthDescriptions))
	}
	return attrs, nil
}

func (p *Provider) deleteTargetGroup(ctx context.Context, arn string) error {
	err := p.do(ctx, func() error {
		_, err := p.elbv2Client.DeleteTargetGroup(ctx, &elasticloadbalancingv2.DeleteTargetGroupInput{
			TargetGroupArn: &arn,
		})
		return err
	})
	return wrapErr("delete target group", err)
}

// createListener forwards HTTP on the service port to the target group. The
// listener has no name of its own, it is identified by its ARN.
func (p *Provider) createListener(ctx context.Context, inputs map[string]string) (*provider.Created, error) {
	var listener elbv2types.Listener
	err := p.do(ctx, func() error {
		resp, err := p.elbv2Client.CreateListener(ctx, &elasticloadbalancingv2.CreateListenerInput{
			LoadBalancerArn: awssdk.String(inputs[provider.InputLoadBalancerArn]),
			Protocol:        elbv2types.ProtocolEnumHttp,
			Port:            awssdk.Int32(bootstrap.DefaultPort),
			DefaultActions: []elbv2types.Action{{
				Type:           elbv2types.ActionTypeEnumForward,
				TargetGroupArn: awssdk.String(inputs[provider.InputTargetGroupArn]),
			}},
		})
		if err != nil {
			return err
		}
		listener = resp.Listeners[0]
		return nil
	})
	if err != nil {
		return nil, wrapErr("create listener", err)
	}

	arn := awssdk.ToString(listener.ListenerArn)
	return &provider.Created{
		ID: arn,
		Attributes: map[string]string{
			resource.AttrListenerArn:    arn,
			resource.AttrTargetGroupArn: inputs[provider.InputTargetGroupArn],
		},
	}, nil
}

func (p *Provider) describeListener(ctx context.Context, arn string) (map[string]string, error) {
	resp, err := p.elbv2Client.DescribeListeners(ctx, &elasticloadbalancingv2.DescribeListenersInput{
		ListenerArns: []string{arn},
	})
	if err != nil {
		return nil, wrapErr("describe listener", err)
	}
	if len(resp.Listeners) == 0 {
		return nil, provider.ErrNotFound
	}
	l := resp.Listeners[0]
	return map[string]string{
		resource.AttrListenerArn: arn,
		"port":                   strconv.Itoa(int(awssdk.ToInt32(l.Port))),
	}, nil
}

func (p *Provider) deleteListener(ctx context.Context, arn string) error {
	err := p.do(ctx, func() error {
		_, err := p.elbv2Client.DeleteListener(ctx, &elasticloadbalancingv2.DeleteListenerInput{
			ListenerArn: &arn,
		})
		return err
	})
	return wrapErr("delete listener", err)
}
