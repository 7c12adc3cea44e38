package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/stackctl-io/stackctl/internal/config"
	"github.com/stackctl-io/stackctl/internal/logging"
	"github.com/stackctl-io/stackctl/internal/provider"
	"github.com/stackctl-io/stackctl/internal/resource"
	"github.com/stackctl-io/stackctl/internal/state"
)

// DeployResult summarizes one deploy invocation.
type DeployResult struct {
	Environment string
	// Created lists the records appended by this invocation, in order.
	Created []resource.Record
	// Skipped counts plan positions already satisfied by existing records.
	Skipped int
	// Failed names the step that halted the deploy, or "" on success.
	Failed string
}

// Deploy brings the environment to the full topology. It is idempotent:
// existing records are skipped, and a partial failure leaves state consistent
// so that re-running resumes at the first missing kind.
func (e *Engine) Deploy(ctx context.Context, environment string, cfg *config.Config) (*DeployResult, error) {
	records, err := e.store.Load(ctx, environment)
	if err != nil {
		return nil, err
	}

	steps, err := PlanDeploy(records, cfg)
	if err != nil {
		return nil, err
	}

	result := &DeployResult{Environment: environment}
	result.Skipped = plannedKindCount(cfg) - len(steps)
	if len(steps) == 0 {
		logging.Info("environment already deployed", "environment", environment)
		return result, nil
	}

	if _, err := e.store.BeginDeployment(ctx, environment, state.StatusInProgress); err != nil {
		return nil, err
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			result.Failed = step.String()
			return result, fmt.Errorf("deploy interrupted before %s: %w", step, err)
		}

		name := resourceName(environment, step, cfg)
		inputs, err := buildInputs(step, environment, cfg, records)
		if err != nil {
			result.Failed = step.String()
			_ = e.store.SetDeploymentStatus(ctx, environment, state.StatusFailed)
			return result, err
		}

		logging.Info("creating resource", "environment", environment, "kind", step.Kind, "name", name)
		created, err := e.provider.Create(ctx, step.Kind, name, inputs)
		if err != nil {
			result.Failed = step.String()
			_ = e.store.SetDeploymentStatus(ctx, environment, state.StatusFailed)
			return result, fmt.Errorf("create %s failed: %w", step.Kind, err)
		}

		rec := resource.Record{
			Kind:        step.Kind,
			ProviderID:  created.ID,
			Environment: environment,
			CreatedAt:   time.Now().UTC(),
			Attributes:  created.Attributes,
		}
		// The record must be durable before the next step: a crash here
		// leaves state matching exactly what the provider holds.
		if err := e.store.Append(ctx, environment, rec); err != nil {
			result.Failed = step.String()
			return result, err
		}
		records = append(records, rec)
		result.Created = append(result.Created, rec)

		if step.Kind.NeedsReadiness() {
			logging.Info("waiting for readiness", "kind", step.Kind, "id", created.ID, "timeout", e.WaitTimeout)
			if err := e.provider.WaitReady(ctx, step.Kind, created.ID, e.WaitTimeout); err != nil {
				result.Failed = step.String()
				_ = e.store.SetDeploymentStatus(ctx, environment, state.StatusFailed)
				return result, fmt.Errorf("%s %s is not ready: %w", step.Kind, created.ID, err)
			}
		}
	}

	if err := e.store.SetDeploymentStatus(ctx, environment, state.StatusCompleted); err != nil {
		return result, err
	}
	logging.Info("deploy complete", "environment", environment, "created", len(result.Created), "skipped", result.Skipped)
	return result, nil
}

// plannedKindCount is the number of steps a deploy of this configuration plans
// against an empty environment.
func plannedKindCount(cfg *config.Config) int {
	n := len(resource.Kinds) - 1 + len(cfg.VPC.SubnetCidrs) // subnet kind expands per CIDR
	if cfg.ObjectStore == nil {
		n--
	}
	return n
}

// resourceName derives the provider-visible name for a step.
func resourceName(environment string, step Step, cfg *config.Config) string {
	switch step.Kind {
	case resource.KindNetwork:
		return environment + "-vpc"
	case resource.KindSubnet:
		return fmt.Sprintf("%s-subnet-%d", environment, step.Index+1)
	case resource.KindSecurityGroupALB:
		return environment + "-alb-sg"
	case resource.KindSecurityGroupCompute:
		return environment + "-ec2-sg"
	case resource.KindInstanceRole:
		return environment + "-instance-role"
	case resource.KindObjectStore:
		if cfg.ObjectStore != nil {
			return cfg.ObjectStore.Bucket
		}
		return environment + "-assets"
	case resource.KindLoadBalancer:
		return environment + "-alb"
	case resource.KindTargetGroup:
		return environment + "-tg"
	case resource.KindListener:
		return environment + "-listener"
	case resource.KindLaunchTemplate:
		return environment + "-lt"
	case resource.KindScalingGroup:
		return environment + "-asg"
	case resource.KindScalingPolicy:
		return environment + "-scale-policy"
	}
	return environment + "-" + string(step.Kind)
}

// buildInputs assembles a create call's inputs from the configuration and from
// the attributes of already-created prerequisite records.
func buildInputs(step Step, environment string, cfg *config.Config, records []resource.Record) (map[string]string, error) {
	find := func(kind resource.Kind) (resource.Record, error) {
		for _, rec := range records {
			if rec.Kind == kind {
				return rec, nil
			}
		}
		return resource.Record{}, fmt.Errorf("missing prerequisite %s record for %s", kind, step.Kind)
	}
	subnetIDs := func() (string, error) {
		var ids []string
		for _, rec := range records {
			if rec.Kind == resource.KindSubnet {
				ids = append(ids, rec.ProviderID)
			}
		}
		if len(ids) == 0 {
			return "", fmt.Errorf("missing prerequisite subnet records for %s", step.Kind)
		}
		return strings.Join(ids, ","), nil
	}

	inputs := map[string]string{
		provider.InputEnvironment: environment,
		provider.InputRegion:      cfg.Region,
	}

	switch step.Kind {
	case resource.KindNetwork:
		inputs[provider.InputCidr] = cfg.VPC.Cidr

	case resource.KindSubnet:
		network, err := find(resource.KindNetwork)
		if err != nil {
			return nil, err
		}
		inputs[provider.InputVpcID] = network.Attr(resource.AttrVpcID)
		inputs[resource.AttrIgwID] = network.Attr(resource.AttrIgwID)
		inputs[resource.AttrRouteTableID] = network.Attr(resource.AttrRouteTableID)
		inputs[provider.InputCidr] = cfg.VPC.SubnetCidrs[step.Index]
		if len(cfg.VPC.AvailabilityZones) > step.Index {
			inputs[provider.InputAvailabilityZone] = cfg.VPC.AvailabilityZones[step.Index]
		}

	case resource.KindSecurityGroupALB:
		network, err := find(resource.KindNetwork)
		if err != nil {
			return nil, err
		}
		inputs[provider.InputVpcID] = network.Attr(resource.AttrVpcID)

	case resource.KindSecurityGroupCompute:
		network, err := find(resource.KindNetwork)
		if err != nil {
			return nil, err
		}
		albSG, err := find(resource.KindSecurityGroupALB)
		if err != nil {
			return nil, err
		}
		inputs[provider.InputVpcID] = network.Attr(resource.AttrVpcID)
		inputs[provider.InputALBSecurityGroup] = albSG.Attr(resource.AttrSecurityGroupID)

	case resource.KindInstanceRole:
		if cfg.ObjectStore != nil {
			inputs[provider.InputBucket] = cfg.ObjectStore.Bucket
		}

	case resource.KindObjectStore:
		inputs[provider.InputBucket] = cfg.ObjectStore.Bucket

	case resource.KindLoadBalancer:
		albSG, err := find(resource.KindSecurityGroupALB)
		if err != nil {
			return nil, err
		}
		ids, err := subnetIDs()
		if err != nil {
			return nil, err
		}
		inputs[provider.InputSecurityGroupID] = albSG.Attr(resource.AttrSecurityGroupID)
		inputs[provider.InputSubnetIDs] = ids

	case resource.KindTargetGroup:
		network, err := find(resource.KindNetwork)
		if err != nil {
			return nil, err
		}
		inputs[provider.InputVpcID] = network.Attr(resource.AttrVpcID)

	case resource.KindListener:
		lb, err := find(resource.KindLoadBalancer)
		if err != nil {
			return nil, err
		}
		tg, err := find(resource.KindTargetGroup)
		if err != nil {
			return nil, err
		}
		inputs[provider.InputLoadBalancerArn] = lb.ProviderID
		inputs[provider.InputTargetGroupArn] = tg.Attr(resource.AttrTargetGroupArn)

	case resource.KindLaunchTemplate:
		computeSG, err := find(resource.KindSecurityGroupCompute)
		if err != nil {
			return nil, err
		}
		role, err := find(resource.KindInstanceRole)
		if err != nil {
			return nil, err
		}
		inputs[provider.InputInstanceType] = cfg.InstanceType
		inputs[provider.InputSecurityGroupID] = computeSG.Attr(resource.AttrSecurityGroupID)
		inputs[provider.InputInstanceProfile] = role.Attr(resource.AttrInstanceProfile)
		if cfg.SSHKeyName != "" {
			inputs[provider.InputKeyName] = cfg.SSHKeyName
		}
		if cfg.ObjectStore != nil {
			inputs[provider.InputBucket] = cfg.ObjectStore.Bucket
		}

	case resource.KindScalingGroup:
		lt, err := find(resource.KindLaunchTemplate)
		if err != nil {
			return nil, err
		}
		tg, err := find(resource.KindTargetGroup)
		if err != nil {
			return nil, err
		}
		ids, err := subnetIDs()
		if err != nil {
			return nil, err
		}
		inputs[provider.InputLaunchTemplateID] = lt.ProviderID
		inputs[provider.InputTargetGroupArn] = tg.Attr(resource.AttrTargetGroupArn)
		inputs[provider.InputSubnetIDs] = ids
		inputs[provider.InputMinCapacity] = strconv.Itoa(cfg.MinCapacity)
		inputs[provider.InputDesiredCapacity] = strconv.Itoa(cfg.DesiredCapacity)
		inputs[provider.InputMaxCapacity] = strconv.Itoa(cfg.MaxCapacity)

	case resource.KindScalingPolicy:
		asg, err := find(resource.KindScalingGroup)
		if err != nil {
			return nil, err
		}
		inputs[provider.InputScalingGroupName] = asg.ProviderID
		inputs[provider.InputPolicyType] = cfg.ScalingPolicy.Type
		if cfg.ScalingPolicy.Type == config.PolicyRequestCount {
			lb, err := find(resource.KindLoadBalancer)
			if err != nil {
				return nil, err
			}
			tg, err := find(resource.KindTargetGroup)
			if err != nil {
				return nil, err
			}
			inputs[provider.InputLoadBalancerArn] = lb.ProviderID
			inputs[provider.InputTargetGroupArn] = tg.Attr(resource.AttrTargetGroupArn)
		}
		inputs[provider.InputScaleOutThreshold] = strconv.FormatFloat(cfg.ScalingPolicy.ScaleOutThreshold, 'f', -1, 64)
		inputs[provider.InputScaleInThreshold] = strconv.FormatFloat(cfg.ScalingPolicy.ScaleInThreshold, 'f', -1, 64)

	default:
		return nil, fmt.Errorf("unknown resource kind %q", step.Kind)
	}

	return inputs, nil
}
