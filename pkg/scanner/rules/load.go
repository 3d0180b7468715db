package rules

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"regexp"
	"strings"

	"github.com/CompassSecurity/jsleek/pkg/httpclient"
	"github.com/CompassSecurity/jsleek/pkg/scanner/types"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog/log"
	"github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"
)

// RuleFile is the on-disk format for additional rules, in YAML or JSON5.
type RuleFile struct {
	Secrets   []SecretRuleEntry   `yaml:"secrets" json:"secrets"`
	Endpoints []EndpointRuleEntry `yaml:"endpoints" json:"endpoints"`
}

type SecretRuleEntry struct {
	Type        string `yaml:"type" json:"type"`
	Regex       string `yaml:"regex" json:"regex"`
	Confidence  int    `yaml:"confidence" json:"confidence"`
	SecretGroup int    `yaml:"secretGroup" json:"secretGroup"`
	// NameInPattern marks rules whose regex already requires a key-like name.
	NameInPattern bool `yaml:"nameInPattern" json:"nameInPattern"`
}

type EndpointRuleEntry struct {
	Name          string `yaml:"name" json:"name"`
	Method        string `yaml:"method" json:"method"`
	Regex         string `yaml:"regex" json:"regex"`
	Confidence    int    `yaml:"confidence" json:"confidence"`
	Kind          string `yaml:"kind" json:"kind"`
	EndpointGroup int    `yaml:"endpointGroup" json:"endpointGroup"`
	MethodGroup   int    `yaml:"methodGroup" json:"methodGroup"`
	Require       string `yaml:"require" json:"require"`
}

// Load reads a rule file from a local path or an http(s) URL and returns the
// default catalog extended with its rules.
func Load(ctx context.Context, location string) (*Catalog, error) {
	data, err := readRuleSource(ctx, location)
	if err != nil {
		return nil, err
	}

	file, err := ParseRuleFile(location, data)
	if err != nil {
		return nil, err
	}

	secrets, endpoints, err := file.Compile()
	if err != nil {
		return nil, fmt.Errorf("invalid rule file %s: %w", location, err)
	}

	log.Debug().Str("location", location).Int("secretRules", len(secrets)).Int("endpointRules", len(endpoints)).Msg("Loaded additional rules")
	return Default().With(secrets, endpoints), nil
}

// ParseRuleFile decodes rule data; the format is picked from the file extension.
func ParseRuleFile(name string, data []byte) (RuleFile, error) {
	var file RuleFile
	switch strings.ToLower(path.Ext(stripQuery(name))) {
	case ".json", ".json5":
		if err := json5.Unmarshal(data, &file); err != nil {
			return file, fmt.Errorf("failed parsing JSON5 rule file %s: %w", name, err)
		}
	default:
		if err := yaml.Unmarshal(data, &file); err != nil {
			return file, fmt.Errorf("failed parsing YAML rule file %s: %w", name, err)
		}
	}
	return file, nil
}

// Compile validates and compiles every rule of the file.
func (f RuleFile) Compile() ([]types.SecretRule, []types.EndpointRule, error) {
	secrets := make([]types.SecretRule, 0, len(f.Secrets))
	for i, entry := range f.Secrets {
		if entry.Type == "" {
			return nil, nil, fmt.Errorf("secret rule %d has no type", i)
		}
		re, err := compileRule(entry.Regex, entry.Confidence, entry.SecretGroup)
		if err != nil {
			return nil, nil, fmt.Errorf("secret rule %q: %w", entry.Type, err)
		}
		rule := types.SecretRule{Type: entry.Type, Pattern: re, BaseConfidence: entry.Confidence, SecretGroup: entry.SecretGroup}
		if entry.NameInPattern {
			rule.Adjusters = ContextFreeAdjusters
		}
		secrets = append(secrets, rule)
	}

	endpoints := make([]types.EndpointRule, 0, len(f.Endpoints))
	for i, entry := range f.Endpoints {
		name := entry.Name
		if name == "" {
			name = fmt.Sprintf("custom-%d", i)
		}
		group := entry.EndpointGroup
		if group == 0 {
			group = 1
		}
		re, err := compileRule(entry.Regex, entry.Confidence, max(group, entry.MethodGroup))
		if err != nil {
			return nil, nil, fmt.Errorf("endpoint rule %q: %w", name, err)
		}

		kind := types.EndpointKind(entry.Kind)
		switch kind {
		case "":
			kind = types.KindCall
		case types.KindCall, types.KindLiteral, types.KindTemplate, types.KindAbsolute:
		default:
			return nil, nil, fmt.Errorf("endpoint rule %q: unknown kind %q", name, entry.Kind)
		}

		rule := types.EndpointRule{
			Name:           name,
			MethodHint:     types.ParseMethod(entry.Method),
			Pattern:        re,
			BaseConfidence: entry.Confidence,
			Kind:           kind,
			EndpointGroup:  group,
			MethodGroup:    entry.MethodGroup,
		}
		if entry.Require != "" {
			req, err := regexp.Compile(entry.Require)
			if err != nil {
				return nil, nil, fmt.Errorf("endpoint rule %q: invalid require expression: %w", name, err)
			}
			rule.Require = req
		}
		endpoints = append(endpoints, rule)
	}

	return secrets, endpoints, nil
}

func compileRule(expr string, confidence int, group int) (*regexp.Regexp, error) {
	if expr == "" {
		return nil, fmt.Errorf("empty regex")
	}
	if confidence < 0 || confidence > 100 {
		return nil, fmt.Errorf("confidence %d out of range 0-100", confidence)
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid regex: %w", err)
	}
	if group > re.NumSubexp() {
		return nil, fmt.Errorf("capture group %d does not exist (regex has %d)", group, re.NumSubexp())
	}
	return re, nil
}

func readRuleSource(ctx context.Context, location string) ([]byte, error) {
	if !strings.HasPrefix(location, "http://") && !strings.HasPrefix(location, "https://") {
		// #nosec G304 - rule file path is provided by the user via --rules
		data, err := os.ReadFile(location)
		if err != nil {
			return nil, fmt.Errorf("failed reading rule file: %w", err)
		}
		return data, nil
	}

	log.Debug().Str("url", location).Msg("Downloading rule file")
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("failed building rule download request: %w", err)
	}

	resp, err := httpclient.New(httpclient.Options{}).Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed downloading rule file: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed downloading rule file: unexpected status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

func stripQuery(s string) string {
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		return s[:i]
	}
	return s
}
