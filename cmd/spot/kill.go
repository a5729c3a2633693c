package spotrun

import (
	"context"

	"github.com/alexflint/go-arg"
	"github.com/nathants/spotrun/lib"
)

func init() {
	lib.Commands["spot-kill"] = spotKill
	lib.Args["spot-kill"] = spotKillArgs{}
}

type spotKillArgs struct {
	AccessKey string `arg:"positional,required"`
	SecretKey string `arg:"positional,required"`
}

func (spotKillArgs) Description() string {
	return "\nterminate the ec2 instance this runs on\n"
}

func spotKill() {
	var args spotKillArgs
	arg.MustParse(&args)
	ctx := context.Background()
	metadata := lib.IMDSClient()
	instanceID, err := lib.InstanceID(ctx, metadata)
	if err != nil {
		lib.Logger.Fatal("error:", err)
	}
	region, err := lib.InstanceRegion(ctx, metadata)
	if err != nil {
		lib.Logger.Fatal("error:", err)
	}
	client := lib.EC2ClientExplicit(args.AccessKey, args.SecretKey, region)
	err = lib.EC2TerminateInstances(ctx, client, []string{instanceID})
	if err != nil {
		lib.Logger.Fatal("error:", err)
	}
}
