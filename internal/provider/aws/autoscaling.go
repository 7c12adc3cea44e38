package aws

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	asgtypes "github.com/aws/aws-sdk-go-v2/service/autoscaling/types"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/stackctl-io/stackctl/internal/config"
	"github.com/stackctl-io/stackctl/internal/provider"
	"github.com/stackctl-io/stackctl/internal/resource"
)

const (
	healthCheckGraceSeconds = 300

	// drainTimeout bounds how long a force-deleted group may take to
	// terminate its instances and disappear.
	drainTimeout = 10 * time.Minute
)

func (p *Provider) createScalingGroup(ctx context.Context, name string, inputs map[string]string) (*provider.Created, error) {
	min, err := parseCapacity(inputs, provider.InputMinCapacity)
	if err != nil {
		return nil, err
	}
	desired, err := parseCapacity(inputs, provider.InputDesiredCapacity)
	if err != nil {
		return nil, err
	}
	max, err := parseCapacity(inputs, provider.InputMaxCapacity)
	if err != nil {
		return nil, err
	}

	err = p.do(ctx, func() error {
		_, err := p.autoscalingClient.CreateAutoScalingGroup(ctx, &autoscaling.CreateAutoScalingGroupInput{
			AutoScalingGroupName: awssdk.String(name),
			LaunchTemplate: &asgtypes.LaunchTemplateSpecification{
				LaunchTemplateId: awssdk.String(inputs[provider.InputLaunchTemplateID]),
				Version:          awssdk.String("$Latest"),
			},
			MinSize:         awssdk.Int32(min),
			MaxSize:         awssdk.Int32(max),
			DesiredCapacity: awssdk.Int32(desired),
			// Instance health follows the load balancer health check so
			// failed targets get replaced, with grace for bootstrap.
			HealthCheckType:        awssdk.String("ELB"),
			HealthCheckGracePeriod: awssdk.Int32(healthCheckGraceSeconds),
			VPCZoneIdentifier:      awssdk.String(inputs[provider.InputSubnetIDs]),
			TargetGroupARNs:        []string{inputs[provider.InputTargetGroupArn]},
			Tags: []asgtypes.Tag{{
				Key:               awssdk.String("Name"),
				Value:             awssdk.String(name),
				PropagateAtLaunch: awssdk.Bool(true),
			}},
		})
		return err
	})
	if err != nil {
		return nil, wrapErr("create auto scaling group", err)
	}

	return &provider.Created{
		ID: name,
		Attributes: map[string]string{
			provider.InputDesiredCapacity: inputs[provider.InputDesiredCapacity],
		},
	}, nil
}

func (p *Provider) describeScalingGroup(ctx context.Context, name string) (map[string]string, error) {
	group, err := p.findScalingGroup(ctx, name)
	if err != nil {
		return nil, err
	}

	inService := 0
	for _, inst := range group.Instances {
		if inst.LifecycleState == asgtypes.LifecycleStateInService {
			inService++
		}
	}
	return map[string]string{
		provider.InputDesiredCapacity: strconv.Itoa(int(awssdk.ToInt32(group.DesiredCapacity))),
		"in_service":                  strconv.Itoa(inService),
		"total_instances":             strconv.Itoa(len(group.Instances)),
	}, nil
}

// deleteScalingGroup force-deletes the group, terminating its instances, then
// waits for the group to disappear so dependent resources can be removed.
func (p *Provider) deleteScalingGroup(ctx context.Context, name string) error {
	err := p.do(ctx, func() error {
		_, err := p.autoscalingClient.DeleteAutoScalingGroup(ctx, &autoscaling.DeleteAutoScalingGroupInput{
			AutoScalingGroupName: awssdk.String(name),
			ForceDelete:          awssdk.Bool(true),
		})
		return err
	})
	if err != nil {
		return wrapErr("delete auto scaling group", err)
	}

	return p.poll(ctx, drainTimeout, func(ctx context.Context) (bool, error) {
		_, err := p.findScalingGroup(ctx, name)
		if errors.Is(err, provider.ErrNotFound) {
			return true, nil
		}
		return false, err
	})
}

func (p *Provider) scalingGroupAtCapacity(ctx context.Context, name string) (bool, error) {
	attrs, err := p.describeScalingGroup(ctx, name)
	if err != nil {
		return false, err
	}
	desired, _ := strconv.Atoi(attrs[provider.InputDesiredCapacity])
	inService, _ := strconv.Atoi(attrs["in_service"])
	return desired > 0 && inService >= desired, nil
}

func (p *Provider) findScalingGroup(ctx context.Context, name string) (*asgtypes.AutoScalingGroup, error) {
	resp, err := p.autoscalingClient.DescribeAutoScalingGroups(ctx, &autoscaling.DescribeAutoScalingGroupsInput{
		AutoScalingGroupNames: []string{name},
	})
	if err != nil {
		return nil, wrapErr("describe auto scaling group", err)
	}
	if len(resp.AutoScalingGroups) == 0 {
		return nil, provider.ErrNotFound
	}
	return &resp.AutoScalingGroups[0], nil
}

// createScalingPolicy attaches a target tracking policy to the group and a
// pair of CloudWatch alarms for operator visibility on top of the ones the
// policy manages itself.
func (p *Provider) createScalingPolicy(ctx context.Context, name string, inputs map[string]string) (*provider.Created, error) {
	groupName := inputs[provider.InputScalingGroupName]
	policyType := inputs[provider.InputPolicyType]

	scaleOut, err := strconv.ParseFloat(inputs[provider.InputScaleOutThreshold], 64)
	if err != nil {
		return nil, fmt.Errorf("invalid scale out threshold %q: %w", inputs[provider.InputScaleOutThreshold], err)
	}
	scaleIn, err := strconv.ParseFloat(inputs[provider.InputScaleInThreshold], 64)
	if err != nil {
		return nil, fmt.Errorf("invalid scale in threshold %q: %w", inputs[provider.InputScaleInThreshold], err)
	}

	tracking := &asgtypes.TargetTrackingConfiguration{
		TargetValue: awssdk.Float64(scaleOut),
	}
	switch policyType {
	case config.PolicyRequestCount:
		tracking.PredefinedMetricSpecification = &asgtypes.PredefinedMetricSpecification{
			PredefinedMetricType: asgtypes.MetricTypeALBRequestCountPerTarget,
			ResourceLabel:        awssdk.String(albResourceLabel(inputs)),
		}
	default:
		tracking.PredefinedMetricSpecification = &asgtypes.PredefinedMetricSpecification{
			PredefinedMetricType: asgtypes.MetricTypeASGAverageCPUUtilization,
		}
	}

	var policyArn string
	err = p.do(ctx, func() error {
		resp, err := p.autoscalingClient.PutScalingPolicy(ctx, &autoscaling.PutScalingPolicyInput{
			AutoScalingGroupName:        awssdk.String(groupName),
			PolicyName:                  awssdk.String(name),
			PolicyType:                  awssdk.String("TargetTrackingScaling"),
			TargetTrackingConfiguration: tracking,
		})
		if err != nil {
			return err
		}
		policyArn = awssdk.ToString(resp.PolicyARN)
		return nil
	})
	if err != nil {
		return nil, wrapErr("put scaling policy", err)
	}

	alarmHigh := name + "-cpu-high"
	alarmLow := name + "-cpu-low"
	for _, alarm := range []struct {
		name      string
		op        cwtypes.ComparisonOperator
		threshold float64
	}{
		{alarmHigh, cwtypes.ComparisonOperatorGreaterThanThreshold, scaleOut},
		{alarmLow, cwtypes.ComparisonOperatorLessThanThreshold, scaleIn},
	} {
		_, err := p.cloudwatchClient.PutMetricAlarm(ctx, &cloudwatch.PutMetricAlarmInput{
			AlarmName:          awssdk.String(alarm.name),
			ComparisonOperator: alarm.op,
			Threshold:          awssdk.Float64(alarm.threshold),
			EvaluationPeriods:  awssdk.Int32(2),
			MetricName:         awssdk.String("CPUUtilization"),
			Namespace:          awssdk.String("AWS/EC2"),
			Period:             awssdk.Int32(300),
			Statistic:          cwtypes.StatisticAverage,
			Dimensions: []cwtypes.Dimension{{
				Name:  awssdk.String("AutoScalingGroupName"),
				Value: awssdk.String(groupName),
			}},
		})
		if err != nil {
			return nil, wrapErr("put metric alarm", err)
		}
	}

	return &provider.Created{
		ID: policyArn,
		Attributes: map[string]string{
			resource.AttrPolicyName:         name,
			resource.AttrAlarmHigh:          alarmHigh,
			resource.AttrAlarmLow:           alarmLow,
			provider.InputScalingGroupName:  groupName,
			provider.InputPolicyType:        policyType,
			provider.InputScaleOutThreshold: inputs[provider.InputScaleOutThreshold],
			provider.InputScaleInThreshold:  inputs[provider.InputScaleInThreshold],
		},
	}, nil
}

func (p *Provider) describeScalingPolicy(ctx context.Context, arn string) (map[string]string, error) {
	resp, err := p.autoscalingClient.DescribePolicies(ctx, &autoscaling.DescribePoliciesInput{
		PolicyNames: []string{arn},
	})
	if err != nil {
		return nil, wrapErr("describe scaling policy", err)
	}
	if len(resp.ScalingPolicies) == 0 {
		return nil, provider.ErrNotFound
	}
	policy := resp.ScalingPolicies[0]
	return map[string]string{
		resource.AttrPolicyName: awssdk.ToString(policy.PolicyName),
		"policy_type":           awssdk.ToString(policy.PolicyType),
	}, nil
}

func (p *Provider) deleteScalingPolicy(ctx context.Context, arn string, attrs map[string]string) error {
	alarms := make([]string, 0, 2)
	for _, key := range []string{resource.AttrAlarmHigh, resource.AttrAlarmLow} {
		if a := attrs[key]; a != "" {
			alarms = append(alarms, a)
		}
	}
	if len(alarms) > 0 {
		if _, err := p.cloudwatchClient.DeleteAlarms(ctx, &cloudwatch.DeleteAlarmsInput{AlarmNames: alarms}); err != nil {
			if !isNotFound(err) {
				return wrapErr("delete alarms", err)
			}
		}
	}

	err := p.do(ctx, func() error {
		_, err := p.autoscalingClient.DeletePolicy(ctx, &autoscaling.DeletePolicyInput{
			AutoScalingGroupName: awssdk.String(attrs[provider.InputScalingGroupName]),
			PolicyName:           awssdk.String(arn),
		})
		return err
	})
	return wrapErr("delete scaling policy", err)
}

// albResourceLabel builds the app/<lb>/<id>/targetgroup/<tg>/<id> label the
// request count metric requires, from the two ARNs.
func albResourceLabel(inputs map[string]string) string {
	lbArn := inputs[provider.InputLoadBalancerArn]
	tgArn := inputs[provider.InputTargetGroupArn]
	lbPart := lbArn
	if i := strings.Index(lbArn, "loadbalancer/"); i >= 0 {
		lbPart = lbArn[i+len("loadbalancer/"):]
	}
	tgPart := tgArn
	if i := strings.Index(tgArn, ":targetgroup/"); i >= 0 {
		tgPart = "targetgroup/" + tgArn[i+len(":targetgroup/"):]
	}
	return lbPart + "/" + tgPart
}

func parseCapacity(inputs map[string]string, key string) (int32, error) {
	n, err := strconv.Atoi(inputs[key])
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, inputs[key], err)
	}
	return int32(n), nil
}
