package lib

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

func init() {
	retryDelay = time.Millisecond
	retryAttempts = 3
}

var fastIntervals = SpotIntervals{
	Open:       time.Millisecond,
	Instance:   time.Millisecond,
	DNS:        time.Millisecond,
	Terminated: time.Millisecond,
}

// fakeEC2 replays canned responses. The last response of a sequence repeats.
type fakeEC2 struct {
	requests     []ec2types.SpotInstanceRequest
	instances    []ec2types.Instance
	pricePages   [][]ec2types.SpotPrice
	requestErrs  []error
	onInstance   func(n int)
	onRequest    func()
	instanceErr  error // returned once instanceFail describes succeeded
	instanceFail int
	cancelErr    error
	requested    []*ec2.RequestSpotInstancesInput
	priceInputs  []ec2.DescribeSpotPriceHistoryInput
	terminated   []string
	cancelled    []string
	requestCalls int
	instanceCall int
}

func spotRequest(state ec2types.SpotInstanceState, instanceID string) ec2types.SpotInstanceRequest {
	req := ec2types.SpotInstanceRequest{
		SpotInstanceRequestId: aws.String("sir-1"),
		State:                 state,
	}
	if instanceID != "" {
		req.InstanceId = aws.String(instanceID)
	}
	return req
}

func fakeInstance(state ec2types.InstanceStateName, dns string) ec2types.Instance {
	return ec2types.Instance{
		InstanceId:    aws.String("i-1"),
		PublicDnsName: aws.String(dns),
		State:         &ec2types.InstanceState{Name: state},
	}
}

func (f *fakeEC2) RequestSpotInstances(ctx context.Context, params *ec2.RequestSpotInstancesInput, optFns ...func(*ec2.Options)) (*ec2.RequestSpotInstancesOutput, error) {
	f.requested = append(f.requested, params)
	if f.onRequest != nil {
		f.onRequest()
	}
	return &ec2.RequestSpotInstancesOutput{
		SpotInstanceRequests: []ec2types.SpotInstanceRequest{spotRequest(ec2types.SpotInstanceStateOpen, "")},
	}, nil
}

func (f *fakeEC2) DescribeSpotInstanceRequests(ctx context.Context, params *ec2.DescribeSpotInstanceRequestsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSpotInstanceRequestsOutput, error) {
	if len(f.requestErrs) > 0 {
		err := f.requestErrs[0]
		f.requestErrs = f.requestErrs[1:]
		return nil, err
	}
	if len(f.requests) == 0 {
		return &ec2.DescribeSpotInstanceRequestsOutput{}, nil
	}
	i := min(f.requestCalls, len(f.requests)-1)
	f.requestCalls++
	return &ec2.DescribeSpotInstanceRequestsOutput{
		SpotInstanceRequests: []ec2types.SpotInstanceRequest{f.requests[i]},
	}, nil
}

func (f *fakeEC2) CancelSpotInstanceRequests(ctx context.Context, params *ec2.CancelSpotInstanceRequestsInput, optFns ...func(*ec2.Options)) (*ec2.CancelSpotInstanceRequestsOutput, error) {
	if f.cancelErr != nil {
		return nil, f.cancelErr
	}
	f.cancelled = append(f.cancelled, params.SpotInstanceRequestIds...)
	return &ec2.CancelSpotInstanceRequestsOutput{}, nil
}

func (f *fakeEC2) DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	if len(f.instances) == 0 {
		return &ec2.DescribeInstancesOutput{}, nil
	}
	if f.instanceErr != nil && f.instanceCall >= f.instanceFail {
		return nil, f.instanceErr
	}
	i := min(f.instanceCall, len(f.instances)-1)
	f.instanceCall++
	if f.onInstance != nil {
		f.onInstance(f.instanceCall)
	}
	return &ec2.DescribeInstancesOutput{
		Reservations: []ec2types.Reservation{{Instances: []ec2types.Instance{f.instances[i]}}},
	}, nil
}

func (f *fakeEC2) TerminateInstances(ctx context.Context, params *ec2.TerminateInstancesInput, optFns ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error) {
	f.terminated = append(f.terminated, params.InstanceIds...)
	return &ec2.TerminateInstancesOutput{}, nil
}

func (f *fakeEC2) DescribeSpotPriceHistory(ctx context.Context, params *ec2.DescribeSpotPriceHistoryInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSpotPriceHistoryOutput, error) {
	f.priceInputs = append(f.priceInputs, *params)
	page := 0
	if params.NextToken != nil {
		_, err := fmt.Sscanf(*params.NextToken, "page-%d", &page)
		if err != nil {
			return nil, err
		}
	}
	out := &ec2.DescribeSpotPriceHistoryOutput{}
	if page < len(f.pricePages) {
		out.SpotPriceHistory = f.pricePages[page]
	}
	if page+1 < len(f.pricePages) {
		out.NextToken = aws.String(fmt.Sprintf("page-%d", page+1))
	}
	return out, nil
}

func spotPrices(xs ...string) []ec2types.SpotPrice {
	var res []ec2types.SpotPrice
	for _, x := range xs {
		res = append(res, ec2types.SpotPrice{SpotPrice: aws.String(x)})
	}
	return res
}
