package recording

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Lister reads the recording bucket through the AWS SDK. It only ever lists;
// the video service owns the objects.
type S3Lister struct {
	client   *s3.Client
	bucket   string
	pageSize int32
}

// NewS3Lister builds a lister over the named bucket using the default
// credential chain.
func NewS3Lister(ctx context.Context, bucket, region string) (*S3Lister, error) {
	if bucket == "" {
		return nil, fmt.Errorf("recording bucket not configured")
	}
	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &S3Lister{
		client:   s3.NewFromConfig(awsCfg),
		bucket:   bucket,
		pageSize: MaxPageSize,
	}, nil
}

// ListPage fetches one page of keys under the prefix. Pass the previous
// page's NextToken to continue a listing.
func (l *S3Lister) ListPage(ctx context.Context, prefix, continuationToken string) (Page, error) {
	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(l.bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(l.pageSize),
	}
	if continuationToken != "" {
		input.ContinuationToken = aws.String(continuationToken)
	}

	out, err := l.client.ListObjectsV2(ctx, input)
	if err != nil {
		return Page{}, fmt.Errorf("list objects under %s: %w", prefix, err)
	}

	page := Page{Objects: make([]Object, 0, len(out.Contents))}
	for _, item := range out.Contents {
		obj := Object{Key: aws.ToString(item.Key)}
		if item.LastModified != nil {
			obj.LastModified = *item.LastModified
		}
		if item.Size != nil {
			obj.Size = *item.Size
		}
		page.Objects = append(page.Objects, obj)
	}
	if aws.ToBool(out.IsTruncated) {
		page.NextToken = aws.ToString(out.NextContinuationToken)
	}
	return page, nil
}
