package lib

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/gofrs/uuid"
)

// EC2API is the part of *ec2.Client this package talks to.
type EC2API interface {
	RequestSpotInstances(ctx context.Context, params *ec2.RequestSpotInstancesInput, optFns ...func(*ec2.Options)) (*ec2.RequestSpotInstancesOutput, error)
	DescribeSpotInstanceRequests(ctx context.Context, params *ec2.DescribeSpotInstanceRequestsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSpotInstanceRequestsOutput, error)
	CancelSpotInstanceRequests(ctx context.Context, params *ec2.CancelSpotInstanceRequestsInput, optFns ...func(*ec2.Options)) (*ec2.CancelSpotInstanceRequestsOutput, error)
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	TerminateInstances(ctx context.Context, params *ec2.TerminateInstancesInput, optFns ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error)
	DescribeSpotPriceHistory(ctx context.Context, params *ec2.DescribeSpotPriceHistoryInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSpotPriceHistoryOutput, error)
}

func EC2ClientExplicit(accessKeyID, accessKeySecret, region string) *ec2.Client {
	return ec2.NewFromConfig(*SessionExplicit(accessKeyID, accessKeySecret, region))
}

func EC2ClientFor(cfg *aws.Config) *ec2.Client {
	return ec2.NewFromConfig(*cfg)
}

type EC2Tag struct {
	Name  string
	Value string
}

type SpotConfig struct {
	Name           string
	Bid            float64
	AmiID          string
	InstanceType   ec2types.InstanceType
	Key            string
	SecurityGroups []string // names, or ids when prefixed with sg-
	SubnetID       string
	Zone           string
	Profile        string
	UserData       string // plain text, encoded on request
	Tags           []EC2Tag
}

func makeTags(config *SpotConfig) []ec2types.Tag {
	tags := []ec2types.Tag{
		{Key: aws.String("Name"), Value: aws.String(config.Name)},
		{Key: aws.String("creation-date"), Value: aws.String(time.Now().UTC().Format(time.RFC3339))},
	}
	for _, tag := range config.Tags {
		tags = append(tags, ec2types.Tag{
			Key:   aws.String(tag.Name),
			Value: aws.String(tag.Value),
		})
	}
	return tags
}

func makeSpotLaunchSpec(config *SpotConfig) *ec2types.RequestSpotLaunchSpecification {
	spec := &ec2types.RequestSpotLaunchSpecification{
		ImageId:      aws.String(config.AmiID),
		InstanceType: config.InstanceType,
		UserData:     aws.String(base64.StdEncoding.EncodeToString([]byte(config.UserData))),
	}
	if config.Key != "" {
		spec.KeyName = aws.String(config.Key)
	}
	for _, sg := range config.SecurityGroups {
		if strings.HasPrefix(sg, "sg-") {
			spec.SecurityGroupIds = append(spec.SecurityGroupIds, sg)
		} else {
			spec.SecurityGroups = append(spec.SecurityGroups, sg)
		}
	}
	if config.SubnetID != "" {
		spec.SubnetId = aws.String(config.SubnetID)
	}
	if config.Zone != "" {
		spec.Placement = &ec2types.SpotPlacement{AvailabilityZone: aws.String(config.Zone)}
	}
	if config.Profile != "" {
		if strings.HasPrefix(config.Profile, "arn:") {
			spec.IamInstanceProfile = &ec2types.IamInstanceProfileSpecification{Arn: aws.String(config.Profile)}
		} else {
			spec.IamInstanceProfile = &ec2types.IamInstanceProfileSpecification{Name: aws.String(config.Profile)}
		}
	}
	return spec
}

// EC2RequestSpotInstance places a one-time request for a single instance and
// returns the spot request id.
func EC2RequestSpotInstance(ctx context.Context, client EC2API, config *SpotConfig) (string, error) {
	if doDebug {
		d := &Debug{start: time.Now(), name: "EC2RequestSpotInstance"}
		d.Start()
		defer d.End()
	}
	if config.AmiID == "" || config.InstanceType == "" {
		err := fmt.Errorf("ami and instance type are required, got ami=%q type=%q", config.AmiID, config.InstanceType)
		Logger.Println("error:", err)
		return "", err
	}
	if config.Bid <= 0 {
		err := fmt.Errorf("bid must be positive, got: %s", FormatBid(config.Bid))
		Logger.Println("error:", err)
		return "", err
	}
	input := &ec2.RequestSpotInstancesInput{
		ClientToken:         aws.String(uuid.Must(uuid.NewV4()).String()),
		InstanceCount:       aws.Int32(1),
		SpotPrice:           aws.String(FormatBid(config.Bid)),
		Type:                ec2types.SpotInstanceTypeOneTime,
		LaunchSpecification: makeSpotLaunchSpec(config),
		TagSpecifications: []ec2types.TagSpecification{{
			ResourceType: ec2types.ResourceTypeSpotInstancesRequest,
			Tags:         makeTags(config),
		}},
	}
	var out *ec2.RequestSpotInstancesOutput
	err := Retry(ctx, func() error {
		var err error
		out, err = client.RequestSpotInstances(ctx, input)
		return err
	})
	if err != nil {
		Logger.Println("error:", err)
		return "", err
	}
	if len(out.SpotInstanceRequests) != 1 {
		err = fmt.Errorf("not the right number of spot requests: %d", len(out.SpotInstanceRequests))
		Logger.Println("error:", err)
		return "", err
	}
	requestID := aws.ToString(out.SpotInstanceRequests[0].SpotInstanceRequestId)
	Logger.Println("requested spot instance", requestID, "type:", config.InstanceType, "bid:", FormatBid(config.Bid))
	return requestID, nil
}

func EC2DescribeSpotRequest(ctx context.Context, client EC2API, requestID string) (*ec2types.SpotInstanceRequest, error) {
	var out *ec2.DescribeSpotInstanceRequestsOutput
	err := Retry(ctx, func() error {
		var err error
		out, err = client.DescribeSpotInstanceRequests(ctx, &ec2.DescribeSpotInstanceRequestsInput{
			SpotInstanceRequestIds: []string{requestID},
		})
		return err
	})
	if err != nil {
		Logger.Println("error:", err)
		return nil, err
	}
	err = atLeastOne("spot request "+requestID, len(out.SpotInstanceRequests))
	if err != nil {
		Logger.Println("error:", err)
		return nil, err
	}
	return &out.SpotInstanceRequests[0], nil
}

func EC2DescribeInstance(ctx context.Context, client EC2API, instanceID string) (*ec2types.Instance, error) {
	var out *ec2.DescribeInstancesOutput
	err := Retry(ctx, func() error {
		var err error
		out, err = client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
			InstanceIds: []string{instanceID},
		})
		return err
	})
	if err != nil {
		Logger.Println("error:", err)
		return nil, err
	}
	for _, reservation := range out.Reservations {
		if len(reservation.Instances) > 0 {
			return &reservation.Instances[0], nil
		}
	}
	err = atLeastOne("instance "+instanceID, 0)
	Logger.Println("error:", err)
	return nil, err
}

func EC2TerminateInstances(ctx context.Context, client EC2API, instanceIDs []string) error {
	if len(instanceIDs) == 0 {
		return nil
	}
	Logger.Println("terminate instances", strings.Join(instanceIDs, " "))
	err := Retry(ctx, func() error {
		_, err := client.TerminateInstances(ctx, &ec2.TerminateInstancesInput{
			InstanceIds: instanceIDs,
		})
		return err
	})
	if err != nil {
		Logger.Println("error:", err)
		return err
	}
	return nil
}

func EC2CancelSpotRequests(ctx context.Context, client EC2API, requestIDs []string) error {
	if len(requestIDs) == 0 {
		return nil
	}
	Logger.Println("cancel spot requests", strings.Join(requestIDs, " "))
	err := Retry(ctx, func() error {
		_, err := client.CancelSpotInstanceRequests(ctx, &ec2.CancelSpotInstanceRequestsInput{
			SpotInstanceRequestIds: requestIDs,
		})
		return err
	})
	if err != nil {
		Logger.Println("error:", err)
		return err
	}
	return nil
}

func EC2ConsoleURL(region, requestID string) string {
	return fmt.Sprintf("https://console.aws.amazon.com/ec2/v2/home?region=%s#SpotInstances:search=%s", region, requestID)
}

func EC2StateColored(state ec2types.InstanceStateName) string {
	switch state {
	case ec2types.InstanceStateNameRunning:
		return Green(string(state))
	case ec2types.InstanceStateNamePending:
		return Cyan(string(state))
	default:
		return Red(string(state))
	}
}
