package resource

import "time"

// Kind identifies a provisionable unit in the fixed topology.
type Kind string

const (
	KindNetwork              Kind = "network"
	KindSubnet               Kind = "subnet"
	KindSecurityGroupALB     Kind = "security_group_alb"
	KindSecurityGroupCompute Kind = "security_group_compute"
	KindInstanceRole         Kind = "instance_role"
	KindObjectStore          Kind = "object_store"
	KindLoadBalancer         Kind = "load_balancer"
	KindTargetGroup          Kind = "target_group"
	KindListener             Kind = "listener"
	KindLaunchTemplate       Kind = "launch_template"
	KindScalingGroup         Kind = "scaling_group"
	KindScalingPolicy        Kind = "scaling_policy"
)

// Kinds lists every kind in declaration order. The declaration order is the
// tie-break used by the graph's topological sort, so it must stay stable.
var Kinds = []Kind{
	KindNetwork,
	KindSubnet,
	KindSecurityGroupALB,
	KindSecurityGroupCompute,
	KindInstanceRole,
	KindObjectStore,
	KindLoadBalancer,
	KindTargetGroup,
	KindListener,
	KindLaunchTemplate,
	KindScalingGroup,
	KindScalingPolicy,
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Multi reports whether more than one record of this kind may exist within a
// single environment. Subnets are one-per-AZ; everything else is a singleton.
func (k Kind) Multi() bool {
	return k == KindSubnet
}

// NeedsReadiness reports whether a create must be followed by a wait-until-ready
// poll before dependents can rely on the resource.
func (k Kind) NeedsReadiness() bool {
	return k == KindLoadBalancer || k == KindScalingGroup
}

// Record is one tracked resource: the provider-assigned identifier plus the
// attributes dependents need to reference it (and destroy needs to tear it down).
type Record struct {
	Kind        Kind              `json:"kind"`
	ProviderID  string            `json:"provider_id"`
	Environment string            `json:"environment"`
	CreatedAt   time.Time         `json:"created_at"`
	Attributes  map[string]string `json:"attributes"`
}

// Attr returns an attribute value, or "" when absent.
func (r Record) Attr(key string) string {
	if r.Attributes == nil {
		return ""
	}
	return r.Attributes[key]
}

// Well-known attribute keys shared between the engine and the provider adapter.
const (
	AttrVpcID            = "vpc_id"
	AttrIgwID            = "internet_gateway_id"
	AttrRouteTableID     = "route_table_id"
	AttrCidr             = "cidr"
	AttrAvailabilityZone = "availability_zone"
	AttrSecurityGroupID  = "security_group_id"
	AttrRole             = "role"
	AttrRoleArn          = "role_arn"
	AttrPolicyArn        = "policy_arn"
	AttrInstanceProfile  = "instance_profile"
	AttrBucketName       = "bucket_name"
	AttrDNSName          = "dns_name"
	AttrTargetGroupArn   = "target_group_arn"
	AttrListenerArn      = "listener_arn"
	AttrTemplateID       = "launch_template_id"
	AttrPolicyName       = "policy_name"
	AttrAlarmHigh        = "alarm_high"
	AttrAlarmLow         = "alarm_low"
	AttrDesiredCapacity  = "desired_capacity"
)
