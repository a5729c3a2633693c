package lib

import (
	"context"
	"time"

	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/dustin/go-humanize"
)

// SpotJob runs one batch job: preflight, bid, request, wait, teardown.
type SpotJob struct {
	Config  *SpotJobConfig
	EC2     EC2API
	S3      S3API
	Pricing PricingAPI // optional, only used to log savings
	Region  string
	Waiter  *SpotWaiter
}

func (j *SpotJob) UserData() (string, error) {
	tmpl, err := ReadUserDataTemplate(j.Config.UserData)
	if err != nil {
		return "", err
	}
	userData, err := RenderUserData(tmpl, UserData{
		Bucket:    j.Config.Bucket,
		AccessKey: j.Config.AccessKey,
		SecretKey: j.Config.SecretKey,
		Region:    j.Region,
		Command:   j.Config.Command,
	})
	if err != nil {
		return "", err
	}
	Logger.Println("prepared", humanize.Bytes(uint64(len(userData))), "of instance user data")
	return userData, nil
}

func (j *SpotJob) Bid(ctx context.Context) (float64, error) {
	prices, err := SpotPriceHistory(ctx, j.EC2, SpotPriceInput{
		InstanceType: j.Config.InstanceType,
		Zone:         j.Config.Zone,
		Days:         j.Config.Days,
	})
	if err != nil {
		return 0, err
	}
	bid, err := SpotBid(prices)
	if err != nil {
		Logger.Println("error:", err, "for", j.Config.InstanceType)
		return 0, err
	}
	Logger.Printf("bidding $%s/hour for %s instance\n", FormatBid(bid), j.Config.InstanceType)
	if j.Pricing != nil {
		ondemand, err := EC2OnDemandPrice(ctx, j.Pricing, j.Region, j.Config.InstanceType)
		if err != nil {
			Logger.Println("warn: failed to fetch on-demand price:", err)
		} else {
			Logger.Printf("on demand: $%g/hour, bid offers %d%% savings\n", ondemand, SpotSavings(bid, ondemand))
		}
	}
	return bid, nil
}

func (j *SpotJob) Run(ctx context.Context) (*SpotResult, error) {
	start := time.Now()
	err := j.Config.Validate()
	if err != nil {
		Logger.Println("error:", err)
		return nil, err
	}
	err = S3BucketExists(ctx, j.S3, j.Config.Bucket)
	if err != nil {
		return nil, err
	}
	userData, err := j.UserData()
	if err != nil {
		return nil, err
	}
	bid, err := j.Bid(ctx)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// an interrupt mid request would orphan it, SpotRun sees the interrupt
	// and cancels instead
	requestID, err := EC2RequestSpotInstance(context.WithoutCancel(ctx), j.EC2, &SpotConfig{
		Name:           j.Config.Name,
		Bid:            bid,
		AmiID:          j.Config.MachineImage,
		InstanceType:   ec2types.InstanceType(j.Config.InstanceType),
		Key:            j.Config.KeyName,
		SecurityGroups: j.Config.SecurityGroups,
		SubnetID:       j.Config.Subnet,
		Zone:           j.Config.Zone,
		Profile:        j.Config.Profile,
		UserData:       userData,
		Tags:           []EC2Tag{{Name: "spotrun-bucket", Value: j.Config.Bucket}},
	})
	if err != nil {
		return nil, err
	}
	Logger.Println(EC2ConsoleURL(j.Region, requestID))
	waiter := j.Waiter
	if waiter == nil {
		waiter = NewSpotWaiter(j.EC2)
	}
	result, err := SpotRun(ctx, waiter, requestID)
	if err != nil {
		return result, err
	}
	Logger.Println("finished after", Since(start))
	return result, nil
}
