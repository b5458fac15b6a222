package inspection

import (
	"bytes"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"text/template"
)

// varProcessor 定义变量处理阶段的接口
type varProcessor interface {
	// processVars 解析变量并写入 values
	processVars(values map[string]string) error
}

// globalVarProcessor 处理 profile 级变量
type globalVarProcessor struct {
	profile *Profile
	input   map[string]string
}

// metricVarProcessor 处理单个指标的变量
type metricVarProcessor struct {
	metric *MetricQuery
	input  map[string]string
}

func (p globalVarProcessor) processVars(values map[string]string) error {
	return processVarsInTwoPhases(p.profile.Vars, p.input, values, "global")
}

func (p metricVarProcessor) processVars(values map[string]string) error {
	return processVarsInTwoPhases(p.metric.Vars, p.input, values, "metric "+p.metric.Name)
}

// processVarsInTwoPhases resolves constant values first, then values that
// are themselves templates, so declaration order in the YAML does not matter.
func processVarsInTwoPhases(vars []Variable, input map[string]string, values map[string]string, scope string) error {
	// 第一阶段：处理非模板值
	for _, v := range vars {
		raw := pickRaw(v, input)
		if raw == "" {
			if v.Required {
				return fmt.Errorf("missing required %s variable: %s", scope, v.Name)
			}
			continue
		}
		if !containsTpl(raw) {
			if err := validateVarType(v, raw); err != nil {
				return fmt.Errorf("%s variable %s invalid: %w", scope, v.Name, err)
			}
			values[v.Name] = raw
		}
	}

	// 第二阶段：处理模板值
	for _, v := range vars {
		raw := pickRaw(v, input)
		if raw == "" || !containsTpl(raw) {
			continue
		}
		rendered, err := renderStringTemplate(raw, values)
		if err != nil {
			return fmt.Errorf("render %s variable %s: %w", scope, v.Name, err)
		}
		if err := validateVarType(v, rendered); err != nil {
			return fmt.Errorf("%s variable %s invalid after render: %w", scope, v.Name, err)
		}
		values[v.Name] = rendered
	}

	return nil
}

func containsTpl(s string) bool { return strings.Contains(s, "{{") && strings.Contains(s, "}}") }

// value picking with priority: input -> Variable.Value -> Variable.DefaultValue
func pickRaw(v Variable, input map[string]string) string {
	if val, ok := input[v.Name]; ok {
		return val
	}
	if v.Value != "" {
		return v.Value
	}
	return v.DefaultValue
}

func validateVarType(v Variable, val string) error {
	switch v.Type {
	case VarTypeNumber:
		if _, err := strconv.ParseFloat(val, 64); err != nil {
			return fmt.Errorf("variable %s must be number", v.Name)
		}
	case VarTypeBoolean:
		if val != "true" && val != "false" {
			return fmt.Errorf("variable %s must be true/false", v.Name)
		}
	case VarTypeEnum:
		if !slices.Contains(v.EnumValues, val) {
			return fmt.Errorf("variable %s must be one of %v", v.Name, v.EnumValues)
		}
	}
	return nil
}

// renderStringTemplate executes a small variable template against values.
func renderStringTemplate(tmplStr string, values map[string]string) (string, error) {
	tmpl, err := template.New("var").Option("missingkey=error").Parse(tmplStr)
	if err != nil {
		return tmplStr, err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, values); err != nil {
		return tmplStr, err
	}
	return buf.String(), nil
}
