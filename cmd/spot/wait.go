package spotrun

import (
	"context"
	"fmt"

	"github.com/alexflint/go-arg"
	"github.com/nathants/spotrun/lib"
)

func init() {
	lib.Commands["spot-wait"] = spotWait
	lib.Args["spot-wait"] = spotWaitArgs{}
}

type spotWaitArgs struct {
	RequestID string `arg:"positional,required" help:"spot instance request id, sir-..."`
	Region    string `arg:"-r,--region"`
}

func (spotWaitArgs) Description() string {
	return "\nfollow an existing spot request until its instance terminates, then cancel it\n"
}

func spotWait() {
	var args spotWaitArgs
	arg.MustParse(&args)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	lib.SignalHandler(cancel)
	cfg, err := lib.SessionFor("", "", args.Region)
	if err != nil {
		lib.Logger.Fatal("error:", err)
	}
	waiter := lib.NewSpotWaiter(lib.EC2ClientFor(cfg))
	waiter.OnPhase = logPhase
	lib.Logger.Println(lib.EC2ConsoleURL(cfg.Region, args.RequestID))
	result, err := lib.SpotRun(ctx, waiter, args.RequestID)
	if err != nil {
		lib.Logger.Fatal("error:", err)
	}
	fmt.Println(result.InstanceID)
}
