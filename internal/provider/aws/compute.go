package aws

import (
	"context"
	"fmt"
	"sort"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/stackctl-io/stackctl/internal/bootstrap"
	"github.com/stackctl-io/stackctl/internal/provider"
	"github.com/stackctl-io/stackctl/internal/resource"
)

const amiNamePattern = "amzn2-ami-hvm-*-x86_64-gp2"

func (p *Provider) createLaunchTemplate(ctx context.Context, name string, inputs map[string]string) (*provider.Created, error) {
	imageID, err := p.latestAmazonLinuxAMI(ctx)
	if err != nil {
		return nil, err
	}

	userData, err := bootstrap.RenderBase64(bootstrap.Params{
		Environment: inputs[provider.InputEnvironment],
		Port:        bootstrap.DefaultPort,
		Bucket:      inputs[provider.InputBucket],
	})
	if err != nil {
		return nil, fmt.Errorf("render instance bootstrap: %w", err)
	}

	data := &ec2types.RequestLaunchTemplateData{
		ImageId:          awssdk.String(imageID),
		InstanceType:     ec2types.InstanceType(inputs[provider.InputInstanceType]),
		SecurityGroupIds: []string{inputs[provider.InputSecurityGroupID]},
		UserData:         awssdk.String(userData),
		IamInstanceProfile: &ec2types.LaunchTemplateIamInstanceProfileSpecificationRequest{
			Name: awssdk.String(inputs[provider.InputInstanceProfile]),
		},
	}
	if key := inputs[provider.InputKeyName]; key != "" {
		data.KeyName = awssdk.String(key)
	}

	var templateID string
	err = p.do(ctx, func() error {
		resp, err := p.ec2Client.CreateLaunchTemplate(ctx, &ec2.CreateLaunchTemplateInput{
			LaunchTemplateName: awssdk.String(name),
			LaunchTemplateData: data,
		})
		if err != nil {
			return err
		}
		templateID = awssdk.ToString(resp.LaunchTemplate.LaunchTemplateId)
		return nil
	})
	if err != nil {
		return nil, wrapErr("create launch template", err)
	}

	return &provider.Created{
		ID: templateID,
		Attributes: map[string]string{
			resource.AttrTemplateID: templateID,
			"image_id":              imageID,
		},
	}, nil
}

func (p *Provider) describeLaunchTemplate(ctx context.Context, id string) (map[string]string, error) {
	resp, err := p.ec2Client.DescribeLaunchTemplates(ctx, &ec2.DescribeLaunchTemplatesInput{
		LaunchTemplateIds: []string{id},
	})
	if err != nil {
		return nil, wrapErr("describe launch template", err)
	}
	if len(resp.LaunchTemplates) == 0 {
		return nil, provider.ErrNotFound
	}
	lt := resp.LaunchTemplates[0]
	return map[string]string{
		resource.AttrTemplateID: awssdk.ToString(lt.LaunchTemplateId),
		"name":                  awssdk.ToString(lt.LaunchTemplateName),
	}, nil
}

func (p *Provider) deleteLaunchTemplate(ctx context.Context, id string) error {
	err := p.do(ctx, func() error {
		_, err := p.ec2Client.DeleteLaunchTemplate(ctx, &ec2.DeleteLaunchTemplateInput{
			LaunchTemplateId: &id,
		})
		return err
	})
	return wrapErr("delete launch template", err)
}

// latestAmazonLinuxAMI resolves the newest Amazon Linux 2 image for the
// region at deploy time rather than pinning an image id in configuration.
func (p *Provider) latestAmazonLinuxAMI(ctx context.Context) (string, error) {
	resp, err := p.ec2Client.DescribeImages(ctx, &ec2.DescribeImagesInput{
		Owners: []string{"amazon"},
		Filters: []ec2types.Filter{
			{Name: awssdk.String("name"), Values: []string{amiNamePattern}},
			{Name: awssdk.String("state"), Values: []string{"available"}},
		},
	})
	if err != nil {
		return "", wrapErr("describe images", err)
	}
	if len(resp.Images) == 0 {
		return "", fmt.Errorf("no Amazon Linux 2 image matching %q found", amiNamePattern)
	}

	images := resp.Images
	sort.Slice(images, func(i, j int) bool {
		return awssdk.ToString(images[i].CreationDate) > awssdk.ToString(images[j].CreationDate)
	})
	return awssdk.ToString(images[0].ImageId), nil
}
