package spotrun

import (
	"context"
	"fmt"

	"github.com/alexflint/go-arg"
	"github.com/nathants/spotrun/lib"
)

func init() {
	lib.Commands["spot-bid"] = spotBid
	lib.Args["spot-bid"] = spotBidArgs{}
}

type spotBidArgs struct {
	Type    string `arg:"positional,required" help:"instance type, e.g. m3.xlarge"`
	Days    int    `arg:"-d,--days" default:"7" help:"days of history to take the median of"`
	Zone    string `arg:"-z,--zone"`
	Product string `arg:"--product" default:"Linux/UNIX"`
	Region  string `arg:"-r,--region"`
}

func (spotBidArgs) Description() string {
	return "\nshow the bid spot-run would place: median spot price plus one cent\n"
}

func spotBid() {
	var args spotBidArgs
	arg.MustParse(&args)
	ctx := context.Background()
	cfg, err := lib.SessionFor("", "", args.Region)
	if err != nil {
		lib.Logger.Fatal("error:", err)
	}
	prices, err := lib.SpotPriceHistory(ctx, lib.EC2ClientFor(cfg), lib.SpotPriceInput{
		InstanceType: args.Type,
		Zone:         args.Zone,
		Product:      args.Product,
		Days:         args.Days,
	})
	if err != nil {
		lib.Logger.Fatal("error:", err)
	}
	median, err := lib.MedianPrice(prices)
	if err != nil {
		lib.Logger.Fatal("error:", err)
	}
	bid, err := lib.SpotBid(prices)
	if err != nil {
		lib.Logger.Fatal("error:", err)
	}
	ondemand, err := lib.EC2OnDemandPrice(ctx, lib.PricingClientFor(cfg), cfg.Region, args.Type)
	if err != nil {
		lib.Logger.Println("warn: failed to fetch on-demand price:", err)
	} else {
		lib.Logger.Printf("on demand: %g, bid offers %d%% savings\n", ondemand, lib.SpotSavings(bid, ondemand))
	}
	lib.Logger.Println("median:", lib.FormatBid(median), "samples:", len(prices))
	fmt.Println(lib.FormatBid(bid))
}
