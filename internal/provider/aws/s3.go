package aws

import (
	"context"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/stackctl-io/stackctl/internal/provider"
	"github.com/stackctl-io/stackctl/internal/resource"
)

func (p *Provider) createBucket(ctx context.Context, name string, inputs map[string]string) (*provider.Created, error) {
	input := &s3.CreateBucketInput{Bucket: awssdk.String(name)}
	// us-east-1 rejects an explicit location constraint.
	if p.region != "us-east-1" {
		input.CreateBucketConfiguration = &s3types.CreateBucketConfiguration{
			LocationConstraint: s3types.BucketLocationConstraint(p.region),
		}
	}

	err := p.do(ctx, func() error {
		_, err := p.s3Client.CreateBucket(ctx, input)
		return err
	})
	if err != nil {
		return nil, wrapErr("create bucket", err)
	}

	return &provider.Created{
		ID: name,
		Attributes: map[string]string{
			resource.AttrBucketName: name,
		},
	}, nil
}

func (p *Provider) describeBucket(ctx context.Context, name string) (map[string]string, error) {
	_, err := p.s3Client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &name})
	if err != nil {
		return nil, wrapErr("head bucket", err)
	}
	return map[string]string{
		resource.AttrBucketName: name,
	}, nil
}

// deleteBucket empties the bucket first since a bucket with objects cannot be
// removed.
func (p *Provider) deleteBucket(ctx context.Context, name string) error {
	paginator := s3.NewListObjectsV2Paginator(p.s3Client, &s3.ListObjectsV2Input{Bucket: &name})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return wrapErr("list bucket objects", err)
		}
		if len(page.Contents) == 0 {
			continue
		}

		objects := make([]s3types.ObjectIdentifier, 0, len(page.Contents))
		for _, obj := range page.Contents {
			objects = append(objects, s3types.ObjectIdentifier{Key: obj.Key})
		}
		_, err = p.s3Client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: &name,
			Delete: &s3types.Delete{Objects: objects},
		})
		if err != nil {
			return wrapErr("empty bucket", err)
		}
	}

	err := p.do(ctx, func() error {
		_, err := p.s3Client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: &name})
		return err
	})
	return wrapErr("delete bucket", err)
}
