// Package inspection evaluates sampled metrics against range thresholds and
// reduces them to a single plugin state. It also parses YAML query profiles
// that map metric names to PromQL templates, with two-phase variable
// resolution so that variables may reference other variables.
package inspection

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultProfileName is the profile used when no --profile file is given.
const DefaultProfileName = "rds-cloudwatch-exporter"

//go:embed profiles/*.yaml
var builtinProfiles embed.FS

// 模板中保留的上下文变量
const (
	ReservedMetricName = "MetricName"
	ReservedNamespace  = "Namespace"
	ReservedStatistic  = "Statistic"
	ReservedInstance   = "Instance"
	ReservedRegion     = "Region"
)

// -----------------------------------------------------------------------------
// Data Model (matches YAML profile)
// -----------------------------------------------------------------------------

type Profile struct {
	ProfileName string        `yaml:"profile_name" validate:"required"`
	DisplayName string        `yaml:"display_name" validate:"required"`
	Description string        `yaml:"description"`
	Version     string        `yaml:"version"`
	Source      string        `yaml:"source" validate:"required,oneof=prometheus"`
	Vars        []Variable    `yaml:"vars" validate:"dive"`
	Metrics     []MetricQuery `yaml:"metrics" validate:"required,min=1,dive"`
}

type MetricQuery struct {
	Name        string     `yaml:"name" validate:"required"`
	Description string     `yaml:"description"`
	Query       string     `yaml:"query" validate:"required,promtemplate"`
	Vars        []Variable `yaml:"vars" validate:"dive"`
}

type Variable struct {
	Name         string   `yaml:"name" validate:"required"`
	Type         string   `yaml:"type" validate:"required,oneof=string number boolean enum"`
	Required     bool     `yaml:"required"`
	Value        string   `yaml:"value"`
	DefaultValue string   `yaml:"default_value"`
	Description  string   `yaml:"description"`
	EnumValues   []string `yaml:"enum_values" validate:"required_if=Type enum"`
}

// Metric returns the query definition for the named metric.
func (p *Profile) Metric(name string) (*MetricQuery, bool) {
	for i := range p.Metrics {
		if p.Metrics[i].Name == name {
			return &p.Metrics[i], true
		}
	}
	return nil, false
}

// -----------------------------------------------------------------------------
// Initialisation & Validation helpers
// -----------------------------------------------------------------------------

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("promtemplate", func(fl validator.FieldLevel) bool {
		_, err := template.New("q").Option("missingkey=error").Parse(fl.Field().String())
		return err == nil
	})
}

// -----------------------------------------------------------------------------
// Parsing helpers
// -----------------------------------------------------------------------------

func ParseProfileFile(path string) (*Profile, error) {
	byts, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	return ParseProfileBytes(byts)
}

func ParseProfileBytes(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("yaml unmarshal: %w", err)
	}
	if err := validate.Struct(p); err != nil {
		return nil, fmt.Errorf("profile validation: %w", err)
	}
	if err := validateMetricNames(p); err != nil {
		return nil, fmt.Errorf("profile %s: %w", p.ProfileName, err)
	}
	return &p, nil
}

// LoadBuiltinProfile parses one of the profiles shipped with the binary.
func LoadBuiltinProfile(name string) (*Profile, error) {
	data, err := builtinProfiles.ReadFile("profiles/" + name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("unknown builtin profile %q", name)
	}
	return ParseProfileBytes(data)
}

// validateMetricNames 禁止同名指标重复定义
func validateMetricNames(p Profile) error {
	seen := make(map[string]bool, len(p.Metrics))
	for _, m := range p.Metrics {
		if seen[m.Name] {
			return fmt.Errorf("metric %s defined more than once", m.Name)
		}
		seen[m.Name] = true
	}
	return nil
}

// -----------------------------------------------------------------------------
// Query Rendering (two-phase variable resolution)
// -----------------------------------------------------------------------------

// RenderQuery renders the PromQL of the named metric. reserved carries the
// context of the current query (MetricName, Statistic, dimensions, ...);
// input overrides variable values from the profile.
func (p *Profile) RenderQuery(metric string, reserved, input map[string]string) (string, error) {
	mq, ok := p.Metric(metric)
	if !ok {
		return "", fmt.Errorf("metric %s is not defined in profile %s", metric, p.ProfileName)
	}

	ctxValues := make(map[string]string, len(reserved)+len(p.Vars)+len(mq.Vars))
	for k, v := range reserved {
		ctxValues[k] = v
	}
	ctxValues[ReservedMetricName] = metric

	processors := []varProcessor{
		globalVarProcessor{profile: p, input: input},
		metricVarProcessor{metric: mq, input: input},
	}
	for _, proc := range processors {
		if err := proc.processVars(ctxValues); err != nil {
			return "", err
		}
	}

	t, err := template.New(metric).Option("missingkey=error").Parse(mq.Query)
	if err != nil {
		return "", fmt.Errorf("parse query of %s: %w", metric, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, ctxValues); err != nil {
		return "", fmt.Errorf("render query of %s: %w", metric, err)
	}
	return strings.TrimSpace(buf.String()), nil
}
