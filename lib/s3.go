package lib

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type S3API interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

func S3ClientFor(cfg *aws.Config) *s3.Client {
	return s3.NewFromConfig(*cfg)
}

// S3BucketExists fails when the bucket is missing or these credentials
// cannot reach it.
func S3BucketExists(ctx context.Context, client S3API, bucket string) error {
	if doDebug {
		d := &Debug{start: time.Now(), name: "S3BucketExists"}
		d.Start()
		defer d.End()
	}
	if bucket == "" {
		return fmt.Errorf("empty bucket name")
	}
	err := Retry(ctx, func() error {
		_, err := client.HeadBucket(ctx, &s3.HeadBucketInput{
			Bucket: aws.String(bucket),
		})
		return err
	})
	var notFound *s3types.NotFound
	if errors.As(err, &notFound) {
		err = fmt.Errorf("no such bucket: %s", bucket)
	}
	if err != nil {
		Logger.Println("error:", err)
		return err
	}
	return nil
}
