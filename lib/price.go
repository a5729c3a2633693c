package lib

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// SpotBidMargin is added to the median so the bid clears typical prices.
const SpotBidMargin = 0.01

const DefaultSpotProduct = "Linux/UNIX"

type SpotPriceInput struct {
	InstanceType string
	Zone         string
	Product      string
	Days         int
}

func SpotPriceHistory(ctx context.Context, client EC2API, in SpotPriceInput) ([]float64, error) {
	if doDebug {
		d := &Debug{start: time.Now(), name: "SpotPriceHistory"}
		d.Start()
		defer d.End()
	}
	if in.Days <= 0 {
		in.Days = 7
	}
	if in.Product == "" {
		in.Product = DefaultSpotProduct
	}
	end := time.Now().UTC().Truncate(time.Minute)
	start := end.Add(time.Duration(-in.Days) * 24 * time.Hour)
	input := &ec2.DescribeSpotPriceHistoryInput{
		InstanceTypes:       []ec2types.InstanceType{ec2types.InstanceType(in.InstanceType)},
		ProductDescriptions: []string{in.Product},
		StartTime:           aws.Time(start),
		EndTime:             aws.Time(end),
		MaxResults:          aws.Int32(1000),
	}
	if in.Zone != "" {
		input.AvailabilityZone = aws.String(in.Zone)
	}
	var prices []float64
	for {
		var out *ec2.DescribeSpotPriceHistoryOutput
		err := Retry(ctx, func() error {
			var err error
			out, err = client.DescribeSpotPriceHistory(ctx, input)
			return err
		})
		if err != nil {
			Logger.Println("error:", err)
			return nil, err
		}
		for _, sp := range out.SpotPriceHistory {
			price, err := strconv.ParseFloat(aws.ToString(sp.SpotPrice), 64)
			if err != nil {
				continue
			}
			prices = append(prices, price)
		}
		if out.NextToken == nil || *out.NextToken == "" {
			break
		}
		input.NextToken = out.NextToken
	}
	Logger.Debugln("found", len(prices), "spot prices for", in.InstanceType, "over", in.Days, "days")
	return prices, nil
}

// MedianPrice is the upper median, the element at len/2 after sorting.
func MedianPrice(prices []float64) (float64, error) {
	if len(prices) == 0 {
		return 0, fmt.Errorf("no spot price history")
	}
	sorted := make([]float64, len(prices))
	copy(sorted, prices)
	sort.Float64s(sorted)
	return sorted[len(sorted)/2], nil
}

func SpotBid(prices []float64) (float64, error) {
	median, err := MedianPrice(prices)
	if err != nil {
		return 0, err
	}
	return median + SpotBidMargin, nil
}

func FormatBid(bid float64) string {
	return fmt.Sprintf("%.4f", bid)
}

// SpotSavings is the whole percent saved by paying bid instead of ondemand.
func SpotSavings(bid, ondemand float64) int {
	if ondemand <= 0 {
		return 0
	}
	return int((ondemand - bid) / ondemand * 100)
}
