package aws

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"

	"github.com/stackctl-io/stackctl/internal/provider"
	"github.com/stackctl-io/stackctl/internal/resource"
)

const ec2TrustPolicy = `{
  "Version": "2012-10-17",
  "Statement": [{
    "Effect": "Allow",
    "Principal": {"Service": "ec2.amazonaws.com"},
    "Action": "sts:AssumeRole"
  }]
}`

// createInstanceRole provisions the role, an optional bucket read policy, and
// the instance profile launch templates reference. The three are recorded as
// one resource so teardown can undo them together.
func (p *Provider) createInstanceRole(ctx context.Context, name string, inputs map[string]string) (*provider.Created, error) {
	var roleArn string
	err := p.do(ctx, func() error {
		resp, err := p.iamClient.CreateRole(ctx, &iam.CreateRoleInput{
			RoleName:                 awssdk.String(name),
			AssumeRolePolicyDocument: awssdk.String(ec2TrustPolicy),
		})
		if err != nil {
			return err
		}
		roleArn = awssdk.ToString(resp.Role.Arn)
		return nil
	})
	if err != nil {
		return nil, wrapErr("create role", err)
	}

	var policyArn string
	if bucket := inputs[provider.InputBucket]; bucket != "" {
		resp, err := p.iamClient.CreatePolicy(ctx, &iam.CreatePolicyInput{
			PolicyName:     awssdk.String(name + "-s3-read"),
			PolicyDocument: awssdk.String(bucketReadPolicy(bucket)),
		})
		if err != nil {
			return nil, wrapErr("create policy", err)
		}
		policyArn = awssdk.ToString(resp.Policy.Arn)

		if _, err := p.iamClient.AttachRolePolicy(ctx, &iam.AttachRolePolicyInput{
			RoleName:  awssdk.String(name),
			PolicyArn: &policyArn,
		}); err != nil {
			return nil, wrapErr("attach role policy", err)
		}
	}

	profileName := name + "-profile"
	if _, err := p.iamClient.CreateInstanceProfile(ctx, &iam.CreateInstanceProfileInput{
		InstanceProfileName: &profileName,
	}); err != nil {
		return nil, wrapErr("create instance profile", err)
	}
	if _, err := p.iamClient.AddRoleToInstanceProfile(ctx, &iam.AddRoleToInstanceProfileInput{
		InstanceProfileName: &profileName,
		RoleName:            awssdk.String(name),
	}); err != nil {
		return nil, wrapErr("add role to instance profile", err)
	}

	attrs := map[string]string{
		resource.AttrRoleArn:         roleArn,
		resource.AttrInstanceProfile: profileName,
	}
	if policyArn != "" {
		attrs[resource.AttrPolicyArn] = policyArn
	}
	return &provider.Created{ID: name, Attributes: attrs}, nil
}

func (p *Provider) describeInstanceRole(ctx context.Context, name string) (map[string]string, error) {
	resp, err := p.iamClient.GetRole(ctx, &iam.GetRoleInput{RoleName: &name})
	if err != nil {
		return nil, wrapErr("get role", err)
	}
	return map[string]string{
		resource.AttrRoleArn: awssdk.ToString(resp.Role.Arn),
	}, nil
}

// deleteInstanceRole unwinds in reverse of creation. Pieces already gone are
// skipped so a retried teardown converges.
func (p *Provider) deleteInstanceRole(ctx context.Context, name string, attrs map[string]string) error {
	if profile := attrs[resource.AttrInstanceProfile]; profile != "" {
		_, err := p.iamClient.RemoveRoleFromInstanceProfile(ctx, &iam.RemoveRoleFromInstanceProfileInput{
			InstanceProfileName: &profile,
			RoleName:            awssdk.String(name),
		})
		if err != nil && !isNotFound(err) {
			return wrapErr("remove role from instance profile", err)
		}
		_, err = p.iamClient.DeleteInstanceProfile(ctx, &iam.DeleteInstanceProfileInput{
			InstanceProfileName: &profile,
		})
		if err != nil && !isNotFound(err) {
			return wrapErr("delete instance profile", err)
		}
	}

	if policyArn := attrs[resource.AttrPolicyArn]; policyArn != "" {
		_, err := p.iamClient.DetachRolePolicy(ctx, &iam.DetachRolePolicyInput{
			RoleName:  awssdk.String(name),
			PolicyArn: &policyArn,
		})
		if err != nil && !isNotFound(err) {
			return wrapErr("detach role policy", err)
		}
		_, err = p.iamClient.DeletePolicy(ctx, &iam.DeletePolicyInput{PolicyArn: &policyArn})
		if err != nil && !isNotFound(err) {
			return wrapErr("delete policy", err)
		}
	}

	err := p.do(ctx, func() error {
		_, err := p.iamClient.DeleteRole(ctx, &iam.DeleteRoleInput{RoleName: &name})
		return err
	})
	return wrapErr("delete role", err)
}

func bucketReadPolicy(bucket string) string {
	return fmt.Sprintf(`{
  "Version": "2012-10-17",
  "Statement": [{
    "Effect": "Allow",
    "Action": ["s3:GetObject", "s3:ListBucket"],
    "Resource": ["arn:aws:s3:::%[1]s", "arn:aws:s3:::%[1]s/*"]
  }]
}`, bucket)
}
