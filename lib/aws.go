package lib

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

var sess *aws.Config
var sessLock sync.Mutex
var sessRegional = make(map[string]*aws.Config)

func loadConfig(opts ...func(*config.LoadOptions) error) (*aws.Config, error) {
	opts = append(opts, config.WithRetryMaxAttempts(5))
	cfg, err := config.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		Logger.Println("error:", err)
		return nil, err
	}
	return &cfg, nil
}

func Session() *aws.Config {
	sessLock.Lock()
	defer sessLock.Unlock()
	if sess == nil {
		cfg, err := loadConfig()
		if err != nil {
			panic(err)
		}
		sess = cfg
	}
	return sess
}

func SessionRegion(region string) (*aws.Config, error) {
	sessLock.Lock()
	defer sessLock.Unlock()
	cfg, ok := sessRegional[region]
	if !ok {
		var err error
		cfg, err = loadConfig(config.WithRegion(region))
		if err != nil {
			return nil, err
		}
		sessRegional[region] = cfg
	}
	return cfg, nil
}

// SessionExplicit uses static keys instead of the default credential chain.
// An empty region falls back to the region of the default chain.
func SessionExplicit(accessKeyID, accessKeySecret, region string) *aws.Config {
	opts := []func(*config.LoadOptions) error{
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyID, accessKeySecret, "")),
	}
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := loadConfig(opts...)
	if err != nil {
		panic(err)
	}
	return cfg
}

// SessionFor picks explicit keys when both are set, otherwise the default chain.
func SessionFor(accessKeyID, accessKeySecret, region string) (*aws.Config, error) {
	if accessKeyID != "" && accessKeySecret != "" {
		return SessionExplicit(accessKeyID, accessKeySecret, region), nil
	}
	if region != "" {
		return SessionRegion(region)
	}
	return Session(), nil
}
