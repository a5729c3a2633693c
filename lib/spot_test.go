package lib

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"
)

func fullLifecycle() *fakeEC2 {
	return &fakeEC2{
		requests: []ec2types.SpotInstanceRequest{
			spotRequest(ec2types.SpotInstanceStateOpen, ""),
			spotRequest(ec2types.SpotInstanceStateActive, ""),
			spotRequest(ec2types.SpotInstanceStateActive, "i-1"),
		},
		instances: []ec2types.Instance{
			fakeInstance(ec2types.InstanceStateNamePending, ""),
			fakeInstance(ec2types.InstanceStateNameRunning, "ec2-1.compute.amazonaws.com"),
			fakeInstance(ec2types.InstanceStateNameRunning, "ec2-1.compute.amazonaws.com"),
			fakeInstance(ec2types.InstanceStateNameTerminated, "ec2-1.compute.amazonaws.com"),
		},
	}
}

func testWaiter(client EC2API, phases *[]SpotPhase) *SpotWaiter {
	return &SpotWaiter{
		Client:    client,
		Intervals: fastIntervals,
		OnPhase: func(phase SpotPhase, _ *SpotResult) {
			*phases = append(*phases, phase)
		},
	}
}

func TestSpotWaitLifecycle(t *testing.T) {
	client := fullLifecycle()
	var phases []SpotPhase
	result, err := testWaiter(client, &phases).Wait(context.Background(), "sir-1")
	if err != nil {
		t.Fatal(err)
	}
	want := []SpotPhase{
		SpotPhaseWaitingOpen,
		SpotPhaseActive,
		SpotPhaseInstanceAssigned,
		SpotPhaseDNSAssigned,
		SpotPhaseTerminated,
	}
	if !reflect.DeepEqual(phases, want) {
		t.Errorf("got:\n%v\nwant:\n%v\n", phases, want)
	}
	if result.InstanceID != "i-1" || result.PublicDNS != "ec2-1.compute.amazonaws.com" || result.Phase != SpotPhaseTerminated {
		t.Errorf("unexpected result: %+v", result)
	}
	if client.requestCalls != 3 {
		t.Errorf("spot request describes = %d, want 3", client.requestCalls)
	}
	if client.instanceCall != 4 {
		t.Errorf("instance describes = %d, want 4", client.instanceCall)
	}
}

func TestSpotWaitUnexpectedState(t *testing.T) {
	req := spotRequest(ec2types.SpotInstanceStateFailed, "")
	req.Status = &ec2types.SpotInstanceStatus{
		Code:    aws.String("bad-parameters"),
		Message: aws.String("invalid ami"),
	}
	client := &fakeEC2{requests: []ec2types.SpotInstanceRequest{req}}
	var phases []SpotPhase
	result, err := testWaiter(client, &phases).Wait(context.Background(), "sir-1")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), `unexpected spot request state "failed"`) || !strings.Contains(err.Error(), "bad-parameters") {
		t.Errorf("got: %s", err)
	}
	if result.Phase != SpotPhaseWaitingOpen {
		t.Errorf("phase = %s, want %s", result.Phase, SpotPhaseWaitingOpen)
	}
}

func TestSpotWaitClosedBeforeInstance(t *testing.T) {
	client := &fakeEC2{requests: []ec2types.SpotInstanceRequest{
		spotRequest(ec2types.SpotInstanceStateActive, ""),
		spotRequest(ec2types.SpotInstanceStateClosed, ""),
	}}
	var phases []SpotPhase
	result, err := testWaiter(client, &phases).Wait(context.Background(), "sir-1")
	if err == nil {
		t.Fatal("expected error")
	}
	if result.Phase != SpotPhaseActive {
		t.Errorf("phase = %s, want %s", result.Phase, SpotPhaseActive)
	}
}

func TestSpotWaitInstanceGoneBeforeDNS(t *testing.T) {
	client := &fakeEC2{
		requests:  []ec2types.SpotInstanceRequest{spotRequest(ec2types.SpotInstanceStateActive, "i-1")},
		instances: []ec2types.Instance{fakeInstance(ec2types.InstanceStateNameShuttingDown, "")},
	}
	var phases []SpotPhase
	result, err := testWaiter(client, &phases).Wait(context.Background(), "sir-1")
	if err == nil {
		t.Fatal("expected error")
	}
	if result.Phase != SpotPhaseInstanceAssigned || result.InstanceID != "i-1" {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestSpotWaitRetriesDescribe(t *testing.T) {
	client := fullLifecycle()
	client.requestErrs = []error{errors.New("RequestLimitExceeded")}
	var phases []SpotPhase
	result, err := testWaiter(client, &phases).Wait(context.Background(), "sir-1")
	if err != nil {
		t.Fatal(err)
	}
	if result.Phase != SpotPhaseTerminated {
		t.Errorf("phase = %s, want %s", result.Phase, SpotPhaseTerminated)
	}
}

func TestSpotWaitMissingRequest(t *testing.T) {
	client := &fakeEC2{}
	var phases []SpotPhase
	_, err := testWaiter(client, &phases).Wait(context.Background(), "sir-1")
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestSpotRunCompleteOnlyCancels(t *testing.T) {
	client := fullLifecycle()
	var phases []SpotPhase
	_, err := SpotRun(context.Background(), testWaiter(client, &phases), "sir-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(client.terminated) != 0 {
		t.Errorf("terminated = %v, want none", client.terminated)
	}
	if !reflect.DeepEqual(client.cancelled, []string{"sir-1"}) {
		t.Errorf("cancelled = %v, want [sir-1]", client.cancelled)
	}
}

func TestSpotRunWaitErrorLeavesInstance(t *testing.T) {
	client := fullLifecycle()
	client.instanceErr = errors.New("dial tcp: network is unreachable")
	client.instanceFail = 2
	var phases []SpotPhase
	result, err := SpotRun(context.Background(), testWaiter(client, &phases), "sir-1")
	if err == nil || !strings.Contains(err.Error(), "network is unreachable") {
		t.Fatalf("err = %v, want network is unreachable", err)
	}
	if result.Phase != SpotPhaseDNSAssigned {
		t.Errorf("phase = %s, want %s", result.Phase, SpotPhaseDNSAssigned)
	}
	if len(client.terminated) != 0 {
		t.Errorf("terminated = %v, want none", client.terminated)
	}
	if !reflect.DeepEqual(client.cancelled, []string{"sir-1"}) {
		t.Errorf("cancelled = %v, want [sir-1]", client.cancelled)
	}
}

func TestSpotRunErrors(t *testing.T) {
	denied := &smithy.GenericAPIError{Code: "UnauthorizedOperation", Message: "cancel denied"}
	type test struct {
		name      string
		client    func() *fakeEC2
		err       string
		cancelled []string
	}
	tests := []test{
		{
			"persistent wait error still cancels",
			func() *fakeEC2 { return &fakeEC2{} },
			"no spot request sir-1 found",
			[]string{"sir-1"},
		},
		{
			"cancel error after success",
			func() *fakeEC2 {
				f := fullLifecycle()
				f.cancelErr = denied
				return f
			},
			"cancel denied",
			nil,
		},
		{
			"wait error wins over cancel error",
			func() *fakeEC2 { return &fakeEC2{cancelErr: denied} },
			"no spot request sir-1 found",
			nil,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			client := test.client()
			var phases []SpotPhase
			_, err := SpotRun(context.Background(), testWaiter(client, &phases), "sir-1")
			if err == nil || !strings.Contains(err.Error(), test.err) {
				t.Fatalf("err = %v, want %q", err, test.err)
			}
			if len(client.terminated) != 0 {
				t.Errorf("terminated = %v, want none", client.terminated)
			}
			if !reflect.DeepEqual(client.cancelled, test.cancelled) {
				t.Errorf("cancelled = %v, want %v", client.cancelled, test.cancelled)
			}
		})
	}
}

func TestSpotRunInterruptTerminates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client := &fakeEC2{
		requests:  []ec2types.SpotInstanceRequest{spotRequest(ec2types.SpotInstanceStateActive, "i-1")},
		instances: []ec2types.Instance{fakeInstance(ec2types.InstanceStateNamePending, "")},
		onInstance: func(n int) {
			cancel()
		},
	}
	var phases []SpotPhase
	result, err := SpotRun(ctx, testWaiter(client, &phases), "sir-1")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if result.Phase != SpotPhaseInstanceAssigned {
		t.Errorf("phase = %s, want %s", result.Phase, SpotPhaseInstanceAssigned)
	}
	if !reflect.DeepEqual(client.terminated, []string{"i-1"}) {
		t.Errorf("terminated = %v, want [i-1]", client.terminated)
	}
	if !reflect.DeepEqual(client.cancelled, []string{"sir-1"}) {
		t.Errorf("cancelled = %v, want [sir-1]", client.cancelled)
	}
}

func TestSpotRunInterruptWhileOpen(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client := &fakeEC2{requests: []ec2types.SpotInstanceRequest{spotRequest(ec2types.SpotInstanceStateOpen, "")}}
	var phases []SpotPhase
	_, err := SpotRun(ctx, testWaiter(client, &phases), "sir-1")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(client.terminated) != 0 {
		t.Errorf("terminated = %v, want none", client.terminated)
	}
	if !reflect.DeepEqual(client.cancelled, []string{"sir-1"}) {
		t.Errorf("cancelled = %v, want [sir-1]", client.cancelled)
	}
}

func TestSpotCleanup(t *testing.T) {
	type test struct {
		name       string
		request    ec2types.SpotInstanceRequest
		terminate  bool
		terminated []string
	}
	tests := []test{
		{"cancel only", spotRequest(ec2types.SpotInstanceStateActive, "i-1"), false, nil},
		{"terminate assigned", spotRequest(ec2types.SpotInstanceStateActive, "i-1"), true, []string{"i-1"}},
		{"terminate unassigned", spotRequest(ec2types.SpotInstanceStateOpen, ""), true, nil},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			client := &fakeEC2{requests: []ec2types.SpotInstanceRequest{test.request}}
			err := SpotCleanup(context.Background(), client, "sir-1", test.terminate)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(client.terminated, test.terminated) {
				t.Errorf("terminated = %v, want %v", client.terminated, test.terminated)
			}
			if !reflect.DeepEqual(client.cancelled, []string{"sir-1"}) {
				t.Errorf("cancelled = %v, want [sir-1]", client.cancelled)
			}
		})
	}
}

func TestDefaultSpotIntervals(t *testing.T) {
	w := NewSpotWaiter(&fakeEC2{})
	if w.Intervals.Open.Seconds() != 15 || w.Intervals.Instance.Seconds() != 5 || w.Intervals.DNS.Seconds() != 5 || w.Intervals.Terminated.Seconds() != 30 {
		t.Errorf("unexpected intervals: %+v", w.Intervals)
	}
}
