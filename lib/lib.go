package lib

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/avast/retry-go"
	"github.com/aws/smithy-go"
	"github.com/dustin/go-humanize"
)

var Commands = make(map[string]func())

var Args = make(map[string]interface{ Description() string })

var doDebug = os.Getenv("DEBUG") != ""

type Debug struct {
	start time.Time
	name  string
}

func (d *Debug) Start() {
	Logger.Println("debug: start", d.name)
}

func (d *Debug) End() {
	Logger.Println("debug: end", d.name, "after", time.Since(d.start).Round(time.Millisecond))
}

// errors that no amount of retrying will fix
var retryFatalCodes = []string{
	"AuthFailure",
	"UnauthorizedOperation",
	"InvalidParameterValue",
	"InvalidParameterCombination",
	"MissingParameter",
	"OptInRequired",
	"InvalidClientTokenId",
	"SignatureDoesNotMatch",
	"NotFound",
	"Forbidden",
	"AccessDenied",
}

var retryAttempts uint = 6

var retryDelay = 250 * time.Millisecond

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return !Contains(retryFatalCodes, apiErr.ErrorCode())
	}
	return true
}

func Retry(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return retry.Do(
		func() error {
			err := fn()
			if err != nil {
				Logger.Debugln("retry:", err)
			}
			return err
		},
		retry.Context(ctx),
		retry.Attempts(retryAttempts),
		retry.Delay(retryDelay),
		retry.MaxDelay(10*time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(retryable),
		retry.LastErrorOnly(true),
	)
}

// SignalHandler cancels on the first interrupt and exits on the second.
func SignalHandler(cancel func()) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		Logger.Println("signal handler: interrupted, cleaning up. interrupt again to exit now")
		cancel()
		<-c
		Logger.Println("signal handler: exiting without cleanup")
		os.Exit(1)
	}()
}

func Contains(parts []string, part string) bool {
	for _, p := range parts {
		if p == part {
			return true
		}
	}
	return false
}

func Pformat(i interface{}) string {
	val, err := json.MarshalIndent(i, "", "    ")
	if err != nil {
		panic(err)
	}
	return string(val)
}

func Since(start time.Time) string {
	return strings.TrimSpace(humanize.RelTime(start, time.Now(), "", ""))
}

func PreviewString(preview bool) string {
	if !preview {
		return ""
	}
	return "preview: "
}

func atLeastOne(name string, n int) error {
	if n == 0 {
		return fmt.Errorf("no %s found", name)
	}
	return nil
}
