package spotrun

import (
	"context"
	"os"

	"github.com/alexflint/go-arg"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/nathants/spotrun/lib"
)

func init() {
	lib.Commands["spot-cancel"] = spotCancel
	lib.Args["spot-cancel"] = spotCancelArgs{}
}

type spotCancelArgs struct {
	RequestIDs []string `arg:"positional,required" help:"spot instance request ids"`
	Preview    bool     `arg:"-p,--preview" default:"false"`
	Region     string   `arg:"-r,--region"`
}

func (spotCancelArgs) Description() string {
	return "\nterminate the instances of spot requests and cancel the requests\n"
}

func spotCancel() {
	var args spotCancelArgs
	arg.MustParse(&args)
	ctx := context.Background()
	cfg, err := lib.SessionFor("", "", args.Region)
	if err != nil {
		lib.Logger.Fatal("error:", err)
	}
	client := lib.EC2ClientFor(cfg)
	for _, requestID := range args.RequestIDs {
		req, err := lib.EC2DescribeSpotRequest(ctx, client, requestID)
		if err != nil {
			lib.Logger.Fatal("error:", err)
		}
		lib.Logger.Println(lib.PreviewString(args.Preview)+"cancel:", requestID, req.State, aws.ToString(req.InstanceId))
	}
	if args.Preview {
		os.Exit(0)
	}
	for _, requestID := range args.RequestIDs {
		err := lib.SpotCleanup(ctx, client, requestID, true)
		if err != nil {
			lib.Logger.Fatal("error:", err)
		}
	}
}
