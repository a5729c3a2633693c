package lib

import (
	"context"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

type STSAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

func STSClientFor(cfg *aws.Config) *sts.Client {
	return sts.NewFromConfig(*cfg)
}

var stsAccounts = map[STSAPI]string{}
var stsAccountLock sync.Mutex

func StsAccount(ctx context.Context, client STSAPI) (string, error) {
	stsAccountLock.Lock()
	defer stsAccountLock.Unlock()
	account, ok := stsAccounts[client]
	if !ok {
		if doDebug {
			d := &Debug{start: time.Now(), name: "StsAccount"}
			d.Start()
			defer d.End()
		}
		out, err := client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
		if err != nil {
			Logger.Println("error:", err)
			return "", err
		}
		account = aws.ToString(out.Account)
		stsAccounts[client] = account
	}
	return account, nil
}
