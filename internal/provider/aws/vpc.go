package aws

import (
	"context"
	"errors"
	"fmt"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/stackctl-io/stackctl/internal/bootstrap"
	"github.com/stackctl-io/stackctl/internal/provider"
	"github.com/stackctl-io/stackctl/internal/resource"
)

const anywhere = "0.0.0.0/0"

// createNetwork provisions the VPC plus its internet gateway and public route
// table. The three are one logical unit: the gateway and route table ids ride
// along in the attributes so teardown can undo all of it.
func (p *Provider) createNetwork(ctx context.Context, name string, inputs map[string]string) (*provider.Created, error) {
	cidr := inputs[provider.InputCidr]

	var vpcID string
	err := p.do(ctx, func() error {
		resp, err := p.ec2Client.CreateVpc(ctx, &ec2.CreateVpcInput{
			CidrBlock:         awssdk.String(cidr),
			TagSpecifications: nameTag(ec2types.ResourceTypeVpc, name),
		})
		if err != nil {
			return err
		}
		vpcID = awssdk.ToString(resp.Vpc.VpcId)
		return nil
	})
	if err != nil {
		return nil, wrapErr("create vpc", err)
	}

	for _, attr := range []*ec2.ModifyVpcAttributeInput{
		{VpcId: &vpcID, EnableDnsHostnames: &ec2types.AttributeBooleanValue{Value: awssdk.Bool(true)}},
		{VpcId: &vpcID, EnableDnsSupport: &ec2types.AttributeBooleanValue{Value: awssdk.Bool(true)}},
	} {
		if _, err := p.ec2Client.ModifyVpcAttribute(ctx, attr); err != nil {
			return nil, wrapErr("enable vpc dns", err)
		}
	}

	igwResp, err := p.ec2Client.CreateInternetGateway(ctx, &ec2.CreateInternetGatewayInput{
		TagSpecifications: nameTag(ec2types.ResourceTypeInternetGateway, name+"-igw"),
	})
	if err != nil {
		return nil, wrapErr("create internet gateway", err)
	}
	igwID := awssdk.ToString(igwResp.InternetGateway.InternetGatewayId)

	if _, err := p.ec2Client.AttachInternetGateway(ctx, &ec2.AttachInternetGatewayInput{
		InternetGatewayId: &igwID,
		VpcId:             &vpcID,
	}); err != nil {
		return nil, wrapErr("attach internet gateway", err)
	}

	rtResp, err := p.ec2Client.CreateRouteTable(ctx, &ec2.CreateRouteTableInput{VpcId: &vpcID})
	if err != nil {
		return nil, wrapErr("create route table", err)
	}
	rtID := awssdk.ToString(rtResp.RouteTable.RouteTableId)

	if _, err := p.ec2Client.CreateRoute(ctx, &ec2.CreateRouteInput{
		RouteTableId:         &rtID,
		DestinationCidrBlock: awssdk.String(anywhere),
		GatewayId:            &igwID,
	}); err != nil {
		return nil, wrapErr("create default route", err)
	}

	return &provider.Created{
		ID: vpcID,
		Attributes: map[string]string{
			resource.AttrVpcID:        vpcID,
			resource.AttrIgwID:        igwID,
			resource.AttrRouteTableID: rtID,
			resource.AttrCidr:         cidr,
		},
	}, nil
}

func (p *Provider) describeNetwork(ctx context.Context, id string) (map[string]string, error) {
	resp, err := p.ec2Client.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{VpcIds: []string{id}})
	if err != nil {
		return nil, wrapErr("describe vpc", err)
	}
	if len(resp.Vpcs) == 0 {
		return nil, provider.ErrNotFound
	}
	vpc := resp.Vpcs[0]
	return map[string]string{
		resource.AttrVpcID: awssdk.ToString(vpc.VpcId),
		resource.AttrCidr:  awssdk.ToString(vpc.CidrBlock),
		"state":            string(vpc.State),
	}, nil
}

// deleteNetwork undoes createNetwork: route table, gateway detach+delete, VPC.
func (p *Provider) deleteNetwork(ctx context.Context, id string, attrs map[string]string) error {
	if rtID := attrs[resource.AttrRouteTableID]; rtID != "" {
		_, err := p.ec2Client.DeleteRouteTable(ctx, &ec2.DeleteRouteTableInput{RouteTableId: &rtID})
		if err != nil && !isNotFound(err) && !isDependencyViolation(err) {
			// A dependency violation here means the table became the main
			// route table and will disappear with the VPC.
			return wrapErr("delete route table", err)
		}
	}

	if igwID := attrs[resource.AttrIgwID]; igwID != "" {
		_, err := p.ec2Client.DetachInternetGateway(ctx, &ec2.DetachInternetGatewayInput{
			InternetGatewayId: &igwID,
			VpcId:             &id,
		})
		if err != nil && !isNotFound(err) {
			return wrapErr("detach internet gateway", err)
		}
		_, err = p.ec2Client.DeleteInternetGateway(ctx, &ec2.DeleteInternetGatewayInput{InternetGatewayId: &igwID})
		if err != nil && !isNotFound(err) {
			return wrapErr("delete internet gateway", err)
		}
	}

	err := p.do(ctx, func() error {
		_, err := p.ec2Client.DeleteVpc(ctx, &ec2.DeleteVpcInput{VpcId: &id})
		return err
	})
	return wrapErr("delete vpc", err)
}

func (p *Provider) createSubnet(ctx context.Context, name string, inputs map[string]string) (*provider.Created, error) {
	input := &ec2.CreateSubnetInput{
		VpcId:             awssdk.String(inputs[provider.InputVpcID]),
		CidrBlock:         awssdk.String(inputs[provider.InputCidr]),
		TagSpecifications: nameTag(ec2types.ResourceTypeSubnet, name),
	}
	if az := inputs[provider.InputAvailabilityZone]; az != "" {
		input.AvailabilityZone = awssdk.String(az)
	}

	resp, err := p.ec2Client.CreateSubnet(ctx, input)
	if err != nil {
		return nil, wrapErr("create subnet", err)
	}
	subnetID := awssdk.ToString(resp.Subnet.SubnetId)

	// Instances need public addresses to reach package repos during bootstrap.
	if _, err := p.ec2Client.ModifySubnetAttribute(ctx, &ec2.ModifySubnetAttributeInput{
		SubnetId:            &subnetID,
		MapPublicIpOnLaunch: &ec2types.AttributeBooleanValue{Value: awssdk.Bool(true)},
	}); err != nil {
		return nil, wrapErr("enable public ip on subnet", err)
	}

	if rtID := inputs[resource.AttrRouteTableID]; rtID != "" {
		if _, err := p.ec2Client.AssociateRouteTable(ctx, &ec2.AssociateRouteTableInput{
			RouteTableId: &rtID,
			SubnetId:     &subnetID,
		}); err != nil {
			return nil, wrapErr("associate route table", err)
		}
	}

	return &provider.Created{
		ID: subnetID,
		Attributes: map[string]string{
			resource.AttrCidr:             inputs[provider.InputCidr],
			resource.AttrAvailabilityZone: awssdk.ToString(resp.Subnet.AvailabilityZone),
			resource.AttrVpcID:            inputs[provider.InputVpcID],
		},
	}, nil
}

func (p *Provider) describeSubnet(ctx context.Context, id string) (map[string]string, error) {
	resp, err := p.ec2Client.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{SubnetIds: []string{id}})
	if err != nil {
		return nil, wrapErr("describe subnet", err)
	}
	if len(resp.Subnets) == 0 {
		return nil, provider.ErrNotFound
	}
	sn := resp.Subnets[0]
	return map[string]string{
		resource.AttrCidr:             awssdk.ToString(sn.CidrBlock),
		resource.AttrAvailabilityZone: awssdk.ToString(sn.AvailabilityZone),
		"state":                       string(sn.State),
	}, nil
}

func (p *Provider) deleteSubnet(ctx context.Context, id string) error {
	err := p.do(ctx, func() error {
		_, err := p.ec2Client.DeleteSubnet(ctx, &ec2.DeleteSubnetInput{SubnetId: &id})
		return err
	})
	return wrapErr("delete subnet", err)
}

// createALBSecurityGroup allows HTTP from anywhere into the load balancer.
func (p *Provider) createALBSecurityGroup(ctx context.Context, name string, inputs map[string]string) (*provider.Created, error) {
	sgID, err := p.createSecurityGroup(ctx, name, "load balancer ingress", inputs[provider.InputVpcID])
	if err != nil {
		return nil, err
	}

	_, err = p.ec2Client.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
		GroupId: &sgID,
		IpPermissions: []ec2types.IpPermission{{
			IpProtocol: awssdk.String("tcp"),
			FromPort:   awssdk.Int32(bootstrap.DefaultPort),
			ToPort:     awssdk.Int32(bootstrap.DefaultPort),
			IpRanges:   []ec2types.IpRange{{CidrIp: awssdk.String(anywhere)}},
		}},
	})
	if err != nil {
		return nil, wrapErr("authorize alb ingress", err)
	}

	return &provider.Created{
		ID: sgID,
		Attributes: map[string]string{
			resource.AttrSecurityGroupID: sgID,
			resource.AttrRole:            "alb",
			resource.AttrVpcID:           inputs[provider.InputVpcID],
		},
	}, nil
}

// createComputeSecurityGroup allows HTTP only from the ALB security group,
// plus SSH for debugging.
func (p *Provider) createComputeSecurityGroup(ctx context.Context, name string, inputs map[string]string) (*provider.Created, error) {
	sgID, err := p.createSecurityGroup(ctx, name, "compute instance ingress", inputs[provider.InputVpcID])
	if err != nil {
		return nil, err
	}

	albSG := inputs[provider.InputALBSecurityGroup]
	_, err = p.ec2Client.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
		GroupId: &sgID,
		IpPermissions: []ec2types.IpPermission{
			{
				IpProtocol:       awssdk.String("tcp"),
				FromPort:         awssdk.Int32(bootstrap.DefaultPort),
				ToPort:           awssdk.Int32(bootstrap.DefaultPort),
				UserIdGroupPairs: []ec2types.UserIdGroupPair{{GroupId: &albSG}},
			},
			{
				IpProtocol: awssdk.String("tcp"),
				FromPort:   awssdk.Int32(22),
				ToPort:     awssdk.Int32(22),
				IpRanges: []ec2types.IpRange{{
					CidrIp:      awssdk.String(anywhere),
					Description: awssdk.String("SSH access for debugging"),
				}},
			},
		},
	})
	if err != nil {
		return nil, wrapErr("authorize compute ingress", err)
	}

	return &provider.Created{
		ID: sgID,
		Attributes: map[string]string{
			resource.AttrSecurityGroupID: sgID,
			resource.AttrRole:            "compute",
			resource.AttrVpcID:           inputs[provider.InputVpcID],
		},
	}, nil
}

func (p *Provider) createSecurityGroup(ctx context.Context, name, description, vpcID string) (string, error) {
	var sgID string
	err := p.do(ctx, func() error {
		resp, err := p.ec2Client.CreateSecurityGroup(ctx, &ec2.CreateSecurityGroupInput{
			GroupName:   awssdk.String(name),
			Description: awssdk.String(description),
			VpcId:       awssdk.String(vpcID),
		})
		if err != nil {
			return err
		}
		sgID = awssdk.ToString(resp.GroupId)
		return nil
	})
	if err != nil {
		return "", wrapErr(fmt.Sprintf("create security group %s", name), err)
	}
	return sgID, nil
}

func (p *Provider) describeSecurityGroup(ctx context.Context, id string) (map[string]string, error) {
	resp, err := p.ec2Client.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{GroupIds: []string{id}})
	if err != nil {
		return nil, wrapErr("describe security group", err)
	}
	if len(resp.SecurityGroups) == 0 {
		return nil, provider.ErrNotFound
	}
	sg := resp.SecurityGroups[0]
	return map[string]string{
		resource.AttrSecurityGroupID: awssdk.ToString(sg.GroupId),
		"name":                       awssdk.ToString(sg.GroupName),
	}, nil
}

// deleteSecurityGroup retries while lingering network interfaces from
// recently-terminated instances still reference the group.
func (p *Provider) deleteSecurityGroup(ctx context.Context, id string) error {
	err := p.poll(ctx, 2*time.Minute, func(ctx context.Context) (bool, error) {
		_, err := p.ec2Client.DeleteSecurityGroup(ctx, &ec2.DeleteSecurityGroupInput{GroupId: &id})
		if err == nil {
			return true, nil
		}
		if isDependencyViolation(err) {
			return false, nil
		}
		return false, wrapErr("delete security group", err)
	})
	if errors.Is(err, provider.ErrTimedOut) {
		return wrapErr("delete security group", fmt.Errorf("still referenced after waiting: %w", err))
	}
	return err
}

func isDependencyViolation(err error) bool {
	var apiErr interface{ ErrorCode() string }
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "DependencyViolation" || code == "ResourceInUse"
	}
	return false
}

func nameTag(resourceType ec2types.ResourceType, name string) []ec2types.TagSpecification {
	return []ec2types.TagSpecification{{
		ResourceType: resourceType,
		Tags: []ec2types.Tag{{
			Key:   awssdk.String("Name"),
			Value: awssdk.String(name),
		}},
	}}
}
