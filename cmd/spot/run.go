package spotrun

import (
	"context"
	"fmt"

	"github.com/alexflint/go-arg"
	"github.com/nathants/spotrun/lib"
)

func init() {
	lib.Commands["spot-run"] = spotRun
	lib.Args["spot-run"] = spotRunArgs{}
}

type spotRunArgs struct {
	Bucket         string   `arg:"positional" help:"s3 bucket the job reads from and writes to"`
	AccessKey      string   `arg:"-a,--access-key,env:AWS_ACCESS_KEY_ID" help:"s3 access key, handed to the instance"`
	SecretKey      string   `arg:"-s,--secret-key,env:AWS_SECRET_ACCESS_KEY" help:"s3 secret key, handed to the instance"`
	EC2AccessKey   string   `arg:"--ec2-access-key" help:"access key for ec2 calls, defaults to the s3 access key"`
	EC2SecretKey   string   `arg:"--ec2-secret-key" help:"secret key for ec2 calls, defaults to the s3 secret key"`
	InstanceType   string   `arg:"-t,--instance-type" help:"default: m3.xlarge"`
	MachineImage   string   `arg:"-m,--machine-image" help:"ami id, default: ami-4ae27e22"`
	KeyName        string   `arg:"-k,--key-name" help:"ec2 keypair, default: cfa-keypair-2013"`
	SecurityGroups []string `arg:"--sg,separate" help:"security group name or id, default: default"`
	Subnet         string   `arg:"--subnet"`
	Zone           string   `arg:"-z,--zone" help:"availability zone for both bidding and placement"`
	Profile        string   `arg:"-p,--profile" help:"iam instance profile name or arn"`
	Command        string   `arg:"--command" help:"job command, called with the bucket, default: openaddr-process-all"`
	UserData       string   `arg:"-u,--user-data" help:"path to a user data template, default is embedded"`
	Days           int      `arg:"-d,--days" help:"days of spot price history to bid from, default: 7"`
	Name           string   `arg:"-n,--name" help:"Name tag of the spot request"`
	Region         string   `arg:"-r,--region"`
	Config         string   `arg:"-c,--config" help:"yaml file with defaults for any of these flags"`
}

func (spotRunArgs) Description() string {
	return "\nrun a job on a spot instance, wait for it to terminate, then clean up\n"
}

func (args spotRunArgs) config() *lib.SpotJobConfig {
	return &lib.SpotJobConfig{
		Bucket:         args.Bucket,
		AccessKey:      args.AccessKey,
		SecretKey:      args.SecretKey,
		EC2AccessKey:   args.EC2AccessKey,
		EC2SecretKey:   args.EC2SecretKey,
		Region:         args.Region,
		InstanceType:   args.InstanceType,
		MachineImage:   args.MachineImage,
		KeyName:        args.KeyName,
		SecurityGroups: args.SecurityGroups,
		Subnet:         args.Subnet,
		Zone:           args.Zone,
		Profile:        args.Profile,
		Command:        args.Command,
		UserData:       args.UserData,
		Days:           args.Days,
		Name:           args.Name,
	}
}

func spotRun() {
	var args spotRunArgs
	arg.MustParse(&args)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	lib.SignalHandler(cancel)
	config, err := lib.LoadSpotJobConfig(args.Config)
	if err != nil {
		lib.Logger.Fatal("error:", err)
	}
	config = config.Merge(args.config()).Defaults()
	err = config.Validate()
	if err != nil {
		lib.Logger.Fatal("error:", err)
	}
	ec2Cfg, err := lib.SessionFor(config.EC2AccessKey, config.EC2SecretKey, config.Region)
	if err != nil {
		lib.Logger.Fatal("error:", err)
	}
	s3Cfg, err := lib.SessionFor(config.AccessKey, config.SecretKey, config.Region)
	if err != nil {
		lib.Logger.Fatal("error:", err)
	}
	account, err := lib.StsAccount(ctx, lib.STSClientFor(ec2Cfg))
	if err != nil {
		lib.Logger.Fatal("error:", err)
	}
	lib.Logger.Println("account:", account, "region:", ec2Cfg.Region)
	job := &lib.SpotJob{
		Config:  config,
		EC2:     lib.EC2ClientFor(ec2Cfg),
		S3:      lib.S3ClientFor(s3Cfg),
		Pricing: lib.PricingClientFor(ec2Cfg),
		Region:  ec2Cfg.Region,
	}
	job.Waiter = lib.NewSpotWaiter(job.EC2)
	job.Waiter.OnPhase = logPhase
	result, err := job.Run(ctx)
	if err != nil {
		lib.Logger.Fatal("error:", err)
	}
	fmt.Println(result.InstanceID)
}

func logPhase(phase lib.SpotPhase, result *lib.SpotResult) {
	switch phase {
	case lib.SpotPhaseInstanceAssigned:
		lib.Logger.Println(phase.Colored(), result.RequestID, result.InstanceID)
	case lib.SpotPhaseDNSAssigned, lib.SpotPhaseTerminated:
		lib.Logger.Println(phase.Colored(), result.RequestID, result.InstanceID, result.PublicDNS)
	default:
		lib.Logger.Println(phase.Colored(), result.RequestID)
	}
}
