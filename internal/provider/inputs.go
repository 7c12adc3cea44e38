package provider

// Input keys shared between the engine (which assembles create inputs from the
// configuration and prerequisite records) and the adapters (which consume them).
const (
	InputEnvironment       = "environment"
	InputRegion            = "region"
	InputCidr              = "cidr"
	InputAvailabilityZone  = "availability_zone"
	InputVpcID             = "vpc_id"
	InputALBSecurityGroup  = "alb_security_group_id"
	InputSecurityGroupID   = "security_group_id"
	InputSubnetIDs         = "subnet_ids"
	InputBucket            = "bucket"
	InputInstanceType      = "instance_type"
	InputInstanceProfile   = "instance_profile"
	InputKeyName           = "key_name"
	InputMinCapacity       = "min_capacity"
	InputDesiredCapacity   = "desired_capacity"
	InputMaxCapacity       = "max_capacity"
	InputLoadBalancerArn   = "load_balancer_arn"
	InputTargetGroupArn    = "target_group_arn"
	InputLaunchTemplateID  = "launch_template_id"
	InputScalingGroupName  = "scaling_group_name"
	InputPolicyType        = "policy_type"
	InputScaleOutThreshold = "scale_out_threshold"
	InputScaleInThreshold  = "scale_in_threshold"
)
