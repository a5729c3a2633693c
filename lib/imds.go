package lib

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
)

type IMDSAPI interface {
	GetMetadata(ctx context.Context, params *imds.GetMetadataInput, optFns ...func(*imds.Options)) (*imds.GetMetadataOutput, error)
	GetRegion(ctx context.Context, params *imds.GetRegionInput, optFns ...func(*imds.Options)) (*imds.GetRegionOutput, error)
}

func IMDSClient() *imds.Client {
	return imds.New(imds.Options{})
}

// InstanceID asks the metadata service which instance this process runs on.
func InstanceID(ctx context.Context, client IMDSAPI) (string, error) {
	out, err := client.GetMetadata(ctx, &imds.GetMetadataInput{Path: "instance-id"})
	if err != nil {
		Logger.Println("error:", err)
		return "", err
	}
	defer func() { _ = out.Content.Close() }()
	data, err := io.ReadAll(out.Content)
	if err != nil {
		Logger.Println("error:", err)
		return "", err
	}
	id := strings.TrimSpace(string(data))
	if !strings.HasPrefix(id, "i-") {
		err = fmt.Errorf("unexpected instance id from metadata: %q", id)
		Logger.Println("error:", err)
		return "", err
	}
	return id, nil
}

func InstanceRegion(ctx context.Context, client IMDSAPI) (string, error) {
	out, err := client.GetRegion(ctx, &imds.GetRegionInput{})
	if err != nil {
		Logger.Println("error:", err)
		return "", err
	}
	return out.Region, nil
}
