package runner

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/randomizedcoder/go-forge-runner/internal/forge"
)

// DefaultTemplatePath is the runner pod template, relative to the repo root.
const DefaultTemplatePath = "testsuite/forge-test-runner-template.yaml"

// requiredParams must be non-empty before a spec is submitted. The remaining
// placeholders carry optional CLI flags and may render empty.
var requiredParams = []string{
	"FORGE_POD_NAME",
	"FORGE_TEST_SUITE",
	"FORGE_RUNNER_DURATION_SECS",
	"FORGE_IMAGE_TAG",
	"IMAGE_TAG",
	"UPGRADE_IMAGE_TAG",
	"AWS_ACCOUNT_NUM",
	"AWS_REGION",
	"FORGE_NAMESPACE",
	"FORGE_TRIGGERED_BY",
}

// MissingParameterError means a template placeholder has no usable value.
type MissingParameterError struct {
	Name string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("template parameter %s is missing", e.Name)
}

// TemplateError is a malformed template or a rendered spec that does not
// describe the expected pod.
type TemplateError struct {
	Msg string
}

func (e *TemplateError) Error() string {
	return "runner template: " + e.Msg
}

// TemplateParams builds the placeholder values for podName.
func TemplateParams(fctx *forge.Context, podName string) map[string]string {
	return map[string]string{
		"FORGE_POD_NAME":               podName,
		"FORGE_TEST_SUITE":             fctx.TestSuite,
		"FORGE_RUNNER_DURATION_SECS":   fctx.RunnerDurationSecs,
		"FORGE_IMAGE_TAG":              fctx.ForgeImageTag,
		"IMAGE_TAG":                    fctx.ImageTag,
		"UPGRADE_IMAGE_TAG":            fctx.UpgradeImageTag,
		"AWS_ACCOUNT_NUM":              fctx.AWSAccountNum,
		"AWS_REGION":                   fctx.AWSRegion,
		"FORGE_NAMESPACE":              fctx.Namespace,
		"REUSE_ARGS":                   strings.Join(fctx.ReuseArgs, " "),
		"KEEP_ARGS":                    strings.Join(fctx.KeepArgs, " "),
		"ENABLE_HAPROXY_ARGS":          strings.Join(fctx.HAProxyArgs, " "),
		"NUM_VALIDATORS_ARGS":          strings.Join(fctx.NumValidatorsArgs, " "),
		"NUM_VALIDATOR_FULLNODES_ARGS": strings.Join(fctx.NumValidatorFullnodesArgs, " "),
		"FORGE_TRIGGERED_BY":           fctx.TriggeredBy(),
	}
}

// RenderTemplate substitutes {NAME} placeholders. "{{" and "}}" render as
// literal braces. Any placeholder without a value, and any required
// parameter that is empty, is a *MissingParameterError.
func RenderTemplate(tmpl string, params map[string]string) (string, error) {
	for _, name := range requiredParams {
		if params[name] == "" {
			return "", &MissingParameterError{Name: name}
		}
	}

	var b strings.Builder
	b.Grow(len(tmpl))
	for i := 0; i < len(tmpl); {
		c := tmpl[i]
		switch {
		case c == '{' && strings.HasPrefix(tmpl[i:], "{{"):
			b.WriteByte('{')
			i += 2
		case c == '}' && strings.HasPrefix(tmpl[i:], "}}"):
			b.WriteByte('}')
			i += 2
		case c == '{':
			end := strings.IndexByte(tmpl[i+1:], '}')
			if end < 0 {
				return "", &TemplateError{Msg: fmt.Sprintf("unclosed placeholder at offset %d", i)}
			}
			name := tmpl[i+1 : i+1+end]
			v, ok := params[name]
			if !ok {
				return "", &MissingParameterError{Name: name}
			}
			b.WriteString(v)
			i += end + 2
		case c == '}':
			return "", &TemplateError{Msg: fmt.Sprintf("single '}' at offset %d", i)}
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String(), nil
}

type podHeader struct {
	Kind     string `yaml:"kind"`
	Metadata struct {
		Name string `yaml:"name"`
	} `yaml:"metadata"`
}

// ValidateSpec checks that rendered is a YAML document naming podName.
func ValidateSpec(rendered, podName string) error {
	var hdr podHeader
	if err := yaml.Unmarshal([]byte(rendered), &hdr); err != nil {
		return &TemplateError{Msg: fmt.Sprintf("rendered spec is not valid YAML: %v", err)}
	}
	if hdr.Metadata.Name != podName {
		return &TemplateError{Msg: fmt.Sprintf("rendered spec names %q, want %q", hdr.Metadata.Name, podName)}
	}
	return nil
}
