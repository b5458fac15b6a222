// Package config collects the plugin configuration from command line flags
// and CHECK_RDS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/kekexiaoai/check-rds/pkg/check"
	"github.com/kekexiaoai/check-rds/pkg/inspection"
	"github.com/kekexiaoai/check-rds/pkg/sampler"
)

const (
	EnvPrefix = "CHECK_RDS"

	DefaultRegion   = "eu-central-1"
	DefaultTimeout  = 30 * time.Second
	DefaultLogLevel = "error"
)

// Config is the configuration of one check run.
type Config struct {
	Instance  string `flag:"instance" validate:"required"`
	WarnCPU   string `flag:"warn-cpu" validate:"required"`
	CritCPU   string `flag:"crit-cpu" validate:"required"`
	WarnConns string `flag:"warn-conns" validate:"required"`
	CritConns string `flag:"crit-conns" validate:"required"`
	WarnDisk  string `flag:"warn-disk" validate:"required"`
	CritDisk  string `flag:"crit-disk" validate:"required"`

	LastState bool   `flag:"last_state"`
	Percent   bool   `flag:"percent"`
	Region    string `flag:"region" validate:"required"`

	Source        string            `flag:"source" validate:"oneof=cloudwatch prometheus"`
	PrometheusURL string            `flag:"prometheus-url" validate:"required_if=Source prometheus"`
	Profile       string            `flag:"profile" validate:"omitempty,file"`
	Vars          map[string]string `flag:"var"`

	Window   time.Duration `flag:"window" validate:"gt=0"`
	Timeout  time.Duration `flag:"timeout" validate:"gt=0"`
	Output   string        `flag:"output" validate:"oneof=text json"`
	LogLevel string        `flag:"log-level" validate:"oneof=debug info warn error"`
	LogFile  string        `flag:"log-file"`
}

// CheckOptions converts the configuration into check options.
func (c Config) CheckOptions() check.Options {
	return check.Options{
		Instance: c.Instance,
		Thresholds: check.Thresholds{
			WarnConns: c.WarnConns,
			CritConns: c.CritConns,
			WarnDisk:  c.WarnDisk,
			CritDisk:  c.CritDisk,
			WarnCPU:   c.WarnCPU,
			CritCPU:   c.CritCPU,
		},
		Percent:   c.Percent,
		LastState: c.LastState,
		Window:    c.Window,
		Source:    c.Source,
	}
}

// BindFlags registers all flags on fs.
func BindFlags(fs *pflag.FlagSet) {
	fs.SetNormalizeFunc(normalizeFlagName)

	fs.String("instance", "", "db instance identifier")
	fs.String("warn-cpu", "", "cpu warning threshold")
	fs.String("crit-cpu", "", "cpu critical threshold")
	fs.String("warn-conns", "", "free connections warning threshold")
	fs.String("crit-conns", "", "free connections critical threshold")
	fs.String("warn-disk", "", "disk free warning threshold, units allowed (e.g. \"1000Mi:\", \"8Gi\")")
	fs.String("crit-disk", "", "disk free critical threshold, units allowed")

	fs.Bool("last_state", false, "use last known value")
	fs.Bool("percent", false, "compare usage percent instead of absolute numbers (connections and storage)")
	fs.String("region", DefaultRegion, "AWS region name")

	fs.String("source", inspection.SourceCloudWatch, "metric source: cloudwatch or prometheus")
	fs.String("prometheus-url", "", "Prometheus base URL (source prometheus)")
	fs.String("profile", "", "query profile YAML (source prometheus, default: built-in "+inspection.DefaultProfileName+")")
	fs.StringToString("var", nil, "profile variable override, e.g. --var job=cloudwatch")

	fs.Duration("window", sampler.DefaultWindow, "width of the queried metric window")
	fs.Duration("timeout", DefaultTimeout, "overall check timeout")
	fs.String("output", inspection.OutputText, "output format: text or json")
	fs.String("log-level", DefaultLogLevel, "log level: debug, info, warn, error")
	fs.String("log-file", "", "also write JSON logs to this rotated file")
}

// last-state is accepted as an alias of last_state.
func normalizeFlagName(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	if name == "last-state" {
		name = "last_state"
	}
	return pflag.NormalizedName(name)
}

// Load reads flags from fs, overridden by CHECK_RDS_* environment variables
// for flags not given on the command line, and validates the result.
func Load(fs *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return Config{}, err
	}

	cfg := Config{
		Instance:      v.GetString("instance"),
		WarnCPU:       v.GetString("warn-cpu"),
		CritCPU:       v.GetString("crit-cpu"),
		WarnConns:     v.GetString("warn-conns"),
		CritConns:     v.GetString("crit-conns"),
		WarnDisk:      v.GetString("warn-disk"),
		CritDisk:      v.GetString("crit-disk"),
		LastState:     v.GetBool("last_state"),
		Percent:       v.GetBool("percent"),
		Region:        v.GetString("region"),
		Source:        strings.ToLower(v.GetString("source")),
		PrometheusURL: v.GetString("prometheus-url"),
		Profile:       v.GetString("profile"),
		Vars:          v.GetStringMapString("var"),
		Window:        v.GetDuration("window"),
		Timeout:       v.GetDuration("timeout"),
		Output:        strings.ToLower(v.GetString("output")),
		LogLevel:      strings.ToLower(v.GetString("log-level")),
		LogFile:       v.GetString("log-file"),
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	val := validator.New()
	// report flag names instead of struct fields
	val.RegisterTagNameFunc(func(fld reflect.StructField) string {
		if name := fld.Tag.Get("flag"); name != "" {
			return name
		}
		return fld.Name
	})
	return val
}

// Validate checks cfg and reports every problem by flag name.
func Validate(cfg Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	flag := "--" + fe.Field()
	switch fe.Tag() {
	case "required":
		return flag + " is required"
	case "required_if":
		return fmt.Sprintf("%s is required when %s", flag, strings.Replace(fe.Param(), " ", "=", 1))
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", flag, fe.Param(), fe.Value())
	case "file":
		return fmt.Sprintf("%s: file %q does not exist", flag, fe.Value())
	case "gt":
		return fmt.Sprintf("%s must be positive", flag)
	}
	return fmt.Sprintf("%s failed on %s", flag, fe.Tag())
}
