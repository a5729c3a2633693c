package spotrun

import (
	"fmt"

	"github.com/alexflint/go-arg"
	"github.com/nathants/spotrun/lib"
)

func init() {
	lib.Commands["spot-user-data"] = spotUserData
	lib.Args["spot-user-data"] = spotUserDataArgs{}
}

type spotUserDataArgs struct {
	Bucket    string `arg:"positional,required"`
	AccessKey string `arg:"-a,--access-key,env:AWS_ACCESS_KEY_ID"`
	SecretKey string `arg:"-s,--secret-key,env:AWS_SECRET_ACCESS_KEY"`
	Command   string `arg:"--command" default:"openaddr-process-all"`
	UserData  string `arg:"-u,--user-data" help:"path to a user data template, default is embedded"`
	Region    string `arg:"-r,--region"`
}

func (spotUserDataArgs) Description() string {
	return "\nprint the init script spot-run would hand to the instance\n"
}

func spotUserData() {
	var args spotUserDataArgs
	arg.MustParse(&args)
	tmpl, err := lib.ReadUserDataTemplate(args.UserData)
	if err != nil {
		lib.Logger.Fatal("error:", err)
	}
	userData, err := lib.RenderUserData(tmpl, lib.UserData{
		Bucket:    args.Bucket,
		AccessKey: args.AccessKey,
		SecretKey: args.SecretKey,
		Region:    args.Region,
		Command:   args.Command,
	})
	if err != nil {
		lib.Logger.Fatal("error:", err)
	}
	fmt.Print(userData)
}
