package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// InfraConfig is the optional per-project infrastructure description at
// <root>/projects/<name>/infrastructure.{json,yaml}. Its shape is
// intentionally loose — the collector never interprets it, only resolves
// ${VAR} references and hands it back verbatim to callers.
type InfraConfig struct {
	Project     interface{} `json:"project,omitempty" yaml:"project,omitempty"`
	Databases   interface{} `json:"databases,omitempty" yaml:"databases,omitempty"`
	Deployments interface{} `json:"deployments,omitempty" yaml:"deployments,omitempty"`
	Services    interface{} `json:"services,omitempty" yaml:"services,omitempty"`
}

// LoadInfraConfig reads infrastructure.json or infrastructure.yaml from dir,
// preferring JSON when both are present. Returns nil, nil when neither file
// exists — the infra config is optional.
func LoadInfraConfig(dir string) (*InfraConfig, error) {
	for _, name := range []string{"infrastructure.json", "infrastructure.yaml"} {
		path := dir + string(os.PathSeparator) + name
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}

		var raw map[string]interface{}
		if strings.HasSuffix(name, ".json") {
			if err := json.Unmarshal(data, &raw); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
			}
		} else {
			if err := yaml.Unmarshal(data, &raw); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
			}
		}

		resolved := ResolveEnvValue(raw)
		out, err := remarshalInfra(resolved)
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, nil
}

func remarshalInfra(v interface{}) (*InfraConfig, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var cfg InfraConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ResolveEnvValue recursively walks a parsed JSON/YAML value, replacing
// "${VAR}" references in every string with the value of the named
// environment variable (empty string if unset). Arrays and objects recurse;
// every other value type passes through unchanged.
func ResolveEnvValue(v interface{}) interface{} {
	switch val := v.(type) {
	case string:
		return resolveEnvString(val)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = ResolveEnvValue(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = ResolveEnvValue(item)
		}
		return out
	default:
		return v
	}
}

// resolveEnvString replaces every "${VAR}" reference in s with the value of
// VAR from the environment, or the empty string if VAR is unset.
func resolveEnvString(s string) string {
	var b strings.Builder
	for {
		start := strings.Index(s, "${")
		if start == -1 {
			b.WriteString(s)
			break
		}
		end := strings.Index(s[start:], "}")
		if end == -1 {
			b.WriteString(s)
			break
		}
		end += start

		b.WriteString(s[:start])
		name := s[start+2 : end]
		b.WriteString(os.Getenv(name))
		s = s[end+1:]
	}
	return b.String()
}
