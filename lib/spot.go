package lib

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

type SpotPhase string

const (
	SpotPhaseWaitingOpen      SpotPhase = "WAITING_OPEN"
	SpotPhaseActive           SpotPhase = "ACTIVE"
	SpotPhaseInstanceAssigned SpotPhase = "INSTANCE_ASSIGNED"
	SpotPhaseDNSAssigned      SpotPhase = "DNS_ASSIGNED"
	SpotPhaseTerminated       SpotPhase = "TERMINATED"
)

func (p SpotPhase) Colored() string {
	switch p {
	case SpotPhaseTerminated:
		return Green(string(p))
	case SpotPhaseDNSAssigned:
		return Cyan(string(p))
	default:
		return Yellow(string(p))
	}
}

// SpotIntervals are the sleeps before each poll, one per waiting phase.
type SpotIntervals struct {
	Open       time.Duration
	Instance   time.Duration
	DNS        time.Duration
	Terminated time.Duration
}

var DefaultSpotIntervals = SpotIntervals{
	Open:       15 * time.Second,
	Instance:   5 * time.Second,
	DNS:        5 * time.Second,
	Terminated: 30 * time.Second,
}

type SpotResult struct {
	RequestID  string
	InstanceID string
	PublicDNS  string
	Phase      SpotPhase
}

type SpotWaiter struct {
	Client    EC2API
	Intervals SpotIntervals
	OnPhase   func(SpotPhase, *SpotResult)
}

func NewSpotWaiter(client EC2API) *SpotWaiter {
	return &SpotWaiter{
		Client:    client,
		Intervals: DefaultSpotIntervals,
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *SpotWaiter) enter(result *SpotResult, phase SpotPhase) {
	result.Phase = phase
	Logger.Debugln("spot request", result.RequestID, "entered", phase)
	if w.OnPhase != nil {
		w.OnPhase(phase, result)
	}
}

func spotStatus(req *ec2types.SpotInstanceRequest) string {
	if req.Status == nil || req.Status.Code == nil {
		return ""
	}
	return fmt.Sprintf(" (%s: %s)", aws.ToString(req.Status.Code), aws.ToString(req.Status.Message))
}

// Wait follows a spot request until its instance terminates. The returned
// result is filled in as far as the lifecycle got, also on error.
func (w *SpotWaiter) Wait(ctx context.Context, requestID string) (*SpotResult, error) {
	if doDebug {
		d := &Debug{start: time.Now(), name: "SpotWaiter.Wait"}
		d.Start()
		defer d.End()
	}
	result := &SpotResult{RequestID: requestID}

	w.enter(result, SpotPhaseWaitingOpen)
	var req *ec2types.SpotInstanceRequest
	for {
		err := sleep(ctx, w.Intervals.Open)
		if err != nil {
			return result, err
		}
		req, err = EC2DescribeSpotRequest(ctx, w.Client, requestID)
		if err != nil {
			return result, err
		}
		if req.State != ec2types.SpotInstanceStateOpen {
			break
		}
		Logger.Debugln("spot request", requestID, "is open"+spotStatus(req))
	}
	if req.State != ec2types.SpotInstanceStateActive {
		err := fmt.Errorf("unexpected spot request state %q%s", req.State, spotStatus(req))
		Logger.Println("error:", err)
		return result, err
	}

	w.enter(result, SpotPhaseActive)
	for {
		err := sleep(ctx, w.Intervals.Instance)
		if err != nil {
			return result, err
		}
		req, err = EC2DescribeSpotRequest(ctx, w.Client, requestID)
		if err != nil {
			return result, err
		}
		if aws.ToString(req.InstanceId) != "" {
			break
		}
		if req.State != ec2types.SpotInstanceStateActive {
			err := fmt.Errorf("spot request %s became %q before an instance was assigned%s", requestID, req.State, spotStatus(req))
			Logger.Println("error:", err)
			return result, err
		}
		Logger.Debugln("waiting for instance id")
	}
	result.InstanceID = aws.ToString(req.InstanceId)

	w.enter(result, SpotPhaseInstanceAssigned)
	var instance *ec2types.Instance
	for {
		err := sleep(ctx, w.Intervals.DNS)
		if err != nil {
			return result, err
		}
		instance, err = EC2DescribeInstance(ctx, w.Client, result.InstanceID)
		if err != nil {
			return result, err
		}
		if aws.ToString(instance.PublicDnsName) != "" {
			break
		}
		if instanceGone(instance) {
			err := fmt.Errorf("instance %s is %s before it got a dns name", result.InstanceID, instance.State.Name)
			Logger.Println("error:", err)
			return result, err
		}
		Logger.Debugln("waiting for instance dns name")
	}
	result.PublicDNS = aws.ToString(instance.PublicDnsName)
	Logger.Println("found instance", result.InstanceID, "at", result.PublicDNS)

	w.enter(result, SpotPhaseDNSAssigned)
	for {
		err := sleep(ctx, w.Intervals.Terminated)
		if err != nil {
			return result, err
		}
		instance, err = EC2DescribeInstance(ctx, w.Client, result.InstanceID)
		if err != nil {
			return result, err
		}
		if instance.State != nil && instance.State.Name == ec2types.InstanceStateNameTerminated {
			Logger.Debugln("instance", result.InstanceID, "has been terminated")
			break
		}
		state := ec2types.InstanceStateName("unknown")
		if instance.State != nil {
			state = instance.State.Name
		}
		Logger.Debugln("waiting for instance", result.InstanceID, "to do its work:", EC2StateColored(state))
	}

	w.enter(result, SpotPhaseTerminated)
	Logger.Println("job complete")
	return result, nil
}

func instanceGone(instance *ec2types.Instance) bool {
	if instance.State == nil {
		return false
	}
	switch instance.State.Name {
	case ec2types.InstanceStateNameShuttingDown, ec2types.InstanceStateNameTerminated:
		return true
	}
	return false
}

// SpotCleanup cancels the spot request. With terminate set it first shuts
// down whatever instance the request has been given.
func SpotCleanup(ctx context.Context, client EC2API, requestID string, terminate bool) error {
	var errs []error
	if terminate {
		req, err := EC2DescribeSpotRequest(ctx, client, requestID)
		if err != nil {
			errs = append(errs, err)
		} else if instanceID := aws.ToString(req.InstanceId); instanceID != "" {
			Logger.Println("shutting down instance", instanceID, "early")
			err = EC2TerminateInstances(ctx, client, []string{instanceID})
			if err != nil {
				errs = append(errs, err)
			}
		}
	}
	err := EC2CancelSpotRequests(ctx, client, []string{requestID})
	if err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// SpotRun waits out a spot request and always cancels it afterwards. Only an
// interrupt terminates the assigned instance, otherwise it is left to finish
// its work and power itself off.
func SpotRun(ctx context.Context, w *SpotWaiter, requestID string) (*SpotResult, error) {
	result, err := w.Wait(ctx, requestID)
	if ctx.Err() != nil {
		Logger.Println("interrupted during", result.Phase)
	}
	cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	cleanupErr := SpotCleanup(cleanupCtx, w.Client, requestID, ctx.Err() != nil)
	if err != nil {
		return result, err
	}
	if cleanupErr != nil {
		Logger.Println("error:", cleanupErr)
		return result, cleanupErr
	}
	return result, nil
}
