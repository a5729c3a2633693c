package lib

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/pricing"
	pricingtypes "github.com/aws/aws-sdk-go-v2/service/pricing/types"
)

type PricingAPI interface {
	GetProducts(ctx context.Context, params *pricing.GetProductsInput, optFns ...func(*pricing.Options)) (*pricing.GetProductsOutput, error)
}

// PricingClientFor reuses the credentials of cfg against us-east-1, the
// pricing api is not regional.
func PricingClientFor(cfg *aws.Config) *pricing.Client {
	c := cfg.Copy()
	c.Region = "us-east-1"
	return pricing.NewFromConfig(c)
}

type ec2PriceProduct struct {
	Product struct {
		Attributes struct {
			InstanceType string `json:"instanceType"`
		} `json:"attributes"`
	} `json:"product"`
	Terms struct {
		OnDemand map[string]struct {
			PriceDimensions map[string]struct {
				Unit         string            `json:"unit"`
				PricePerUnit map[string]string `json:"pricePerUnit"`
			} `json:"priceDimensions"`
		} `json:"OnDemand"`
	} `json:"terms"`
}

// parseOnDemandProduct returns the instance type and hourly usd price of one
// price list entry. An empty type means the entry is not an instance.
func parseOnDemandProduct(raw string) (string, float64, error) {
	var product ec2PriceProduct
	err := json.Unmarshal([]byte(raw), &product)
	if err != nil {
		return "", 0, err
	}
	name := product.Product.Attributes.InstanceType
	if name == "" {
		return "", 0, nil
	}
	var keys []string
	for k := range product.Terms.OnDemand {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, dim := range product.Terms.OnDemand[k].PriceDimensions {
			if dim.Unit != "Hrs" || dim.PricePerUnit["USD"] == "" {
				continue
			}
			price, err := strconv.ParseFloat(dim.PricePerUnit["USD"], 64)
			if err != nil {
				return "", 0, fmt.Errorf("parse hourly USD price for %s: %w", name, err)
			}
			if price == 0 {
				return "", 0, fmt.Errorf("zero hourly USD price for %s", name)
			}
			return name, price, nil
		}
	}
	return "", 0, fmt.Errorf("missing hourly USD price for %s", name)
}

func EC2OnDemandPrice(ctx context.Context, client PricingAPI, region, instanceType string) (float64, error) {
	if region == "" {
		return 0, fmt.Errorf("missing aws region")
	}
	var filters []pricingtypes.Filter
	for _, kv := range [][2]string{
		{"productFamily", "Compute Instance"},
		{"operatingSystem", "Linux"},
		{"preInstalledSw", "NA"},
		{"tenancy", "Shared"},
		{"capacitystatus", "Used"},
		{"regionCode", region},
		{"instanceType", instanceType},
	} {
		filters = append(filters, pricingtypes.Filter{
			Type:  pricingtypes.FilterTypeTermMatch,
			Field: aws.String(kv[0]),
			Value: aws.String(kv[1]),
		})
	}
	input := &pricing.GetProductsInput{
		ServiceCode:   aws.String("AmazonEC2"),
		Filters:       filters,
		FormatVersion: aws.String("aws_v1"),
		MaxResults:    aws.Int32(100),
	}
	for {
		var out *pricing.GetProductsOutput
		err := Retry(ctx, func() error {
			var err error
			out, err = client.GetProducts(ctx, input)
			return err
		})
		if err != nil {
			Logger.Println("error:", err)
			return 0, err
		}
		for _, raw := range out.PriceList {
			name, price, err := parseOnDemandProduct(raw)
			if err != nil {
				return 0, err
			}
			if name == instanceType {
				return price, nil
			}
		}
		if out.NextToken == nil || *out.NextToken == "" {
			break
		}
		input.NextToken = out.NextToken
	}
	return 0, fmt.Errorf("no on-demand price for region %s instance-type %s", region, instanceType)
}
