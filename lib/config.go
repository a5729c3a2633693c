package lib

import (
	"bytes"
	"fmt"
	"os"
	"reflect"

	"gopkg.in/yaml.v3"
)

const (
	DefaultInstanceType = "m3.xlarge"
	DefaultMachineImage = "ami-4ae27e22" // ubuntu 14.04
	DefaultKeyName      = "cfa-keypair-2013"
	DefaultSecurityGrp  = "default"
	DefaultCommand      = "openaddr-process-all"
	DefaultPriceDays    = 7
)

// SpotJobConfig is everything needed to run one job on a spot instance. It
// can be read from yaml, flags are layered on top with Merge.
type SpotJobConfig struct {
	Bucket         string   `yaml:"bucket"`
	AccessKey      string   `yaml:"access_key"`
	SecretKey      string   `yaml:"secret_key"`
	EC2AccessKey   string   `yaml:"ec2_access_key"`
	EC2SecretKey   string   `yaml:"ec2_secret_key"`
	Region         string   `yaml:"region"`
	InstanceType   string   `yaml:"instance_type"`
	MachineImage   string   `yaml:"machine_image"`
	KeyName        string   `yaml:"key_name"`
	SecurityGroups []string `yaml:"security_groups"`
	Subnet         string   `yaml:"subnet"`
	Zone           string   `yaml:"zone"`
	Profile        string   `yaml:"profile"`
	Command        string   `yaml:"command"`
	UserData       string   `yaml:"user_data"` // template path
	Days           int      `yaml:"days"`
	Name           string   `yaml:"name"`
}

func LoadSpotJobConfig(path string) (*SpotJobConfig, error) {
	config := &SpotJobConfig{}
	if path == "" {
		return config, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		Logger.Println("error:", err)
		return nil, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	err = dec.Decode(config)
	if err != nil {
		err = fmt.Errorf("parse %s: %w", path, err)
		Logger.Println("error:", err)
		return nil, err
	}
	return config, nil
}

// Merge copies every non-zero field of other over config.
func (config *SpotJobConfig) Merge(other *SpotJobConfig) *SpotJobConfig {
	dst := reflect.ValueOf(config).Elem()
	src := reflect.ValueOf(other).Elem()
	for i := 0; i < src.NumField(); i++ {
		if !src.Field(i).IsZero() {
			dst.Field(i).Set(src.Field(i))
		}
	}
	return config
}

func (config *SpotJobConfig) Defaults() *SpotJobConfig {
	if config.EC2AccessKey == "" {
		config.EC2AccessKey = config.AccessKey
	}
	if config.EC2SecretKey == "" {
		config.EC2SecretKey = config.SecretKey
	}
	if config.InstanceType == "" {
		config.InstanceType = DefaultInstanceType
	}
	if config.MachineImage == "" {
		config.MachineImage = DefaultMachineImage
	}
	if config.KeyName == "" {
		config.KeyName = DefaultKeyName
	}
	if len(config.SecurityGroups) == 0 {
		config.SecurityGroups = []string{DefaultSecurityGrp}
	}
	if config.Command == "" {
		config.Command = DefaultCommand
	}
	if config.Days == 0 {
		config.Days = DefaultPriceDays
	}
	if config.Name == "" {
		config.Name = "spotrun-" + config.Bucket
	}
	return config
}

func (config *SpotJobConfig) Validate() error {
	if config.Bucket == "" {
		return fmt.Errorf("bucket is required")
	}
	if config.AccessKey == "" || config.SecretKey == "" {
		return fmt.Errorf("access key and secret key are required, the instance uses them to reach %s", config.Bucket)
	}
	if config.Days < 0 {
		return fmt.Errorf("days must be positive, got: %d", config.Days)
	}
	return nil
}
