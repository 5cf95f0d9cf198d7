package extagent

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

// Config selects which foreign frameworks are loaded and where their modules
// live. Relative paths are resolved against the extension directory.
type Config struct {
	Enabled bool
	Paths   map[Identity]string
}

// Path returns the configured module path of id.
func (c Config) Path(id Identity) (string, bool) {
	p, ok := c.Paths[id]
	if !ok || strings.TrimSpace(p) == "" {
		return "", false
	}
	return strings.TrimSpace(p), true
}

// extAgentEnv holds raw env values for the extension bridge.
type extAgentEnv struct {
	LoadExtAgent bool              `env:"EXT_AGENT_LOAD_EXT_AGENT" envDefault:"false"`
	JarPaths     map[string]string `env:"EXT_AGENT_JAR_PATHS"      envSeparator:"," envKeyValSeparator:":"`
}

// LoadConfigFromEnv reads EXT_AGENT_LOAD_EXT_AGENT and EXT_AGENT_JAR_PATHS.
// The latter is a comma separated list of IDENTITY:path pairs.
func LoadConfigFromEnv() (Config, error) {
	var raw extAgentEnv
	if err := env.Parse(&raw); err != nil {
		return Config{}, fmt.Errorf("extagent: parse env: %w", err)
	}
	return newConfig(raw.LoadExtAgent, raw.JarPaths), nil
}

// hclConfigFile is the part of a host config file this package reads.
type hclConfigFile struct {
	ExtAgent *hclExtAgent `hcl:"ext_agent,block"`
	Remain   hcl.Body     `hcl:",remain"`
}

type hclExtAgent struct {
	Enabled  bool              `hcl:"enabled,optional"`
	JarPaths map[string]string `hcl:"jar_paths,optional"`
}

// LoadConfigFile reads the ext_agent block of an HCL file. Expressions may
// refer to ${env.NAME}. Module paths are kept as written; relative ones are
// resolved against the extension directory by the Manager. A file without
// the block yields a disabled Config.
func LoadConfigFile(path string) (Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return Config{}, fmt.Errorf("extagent: failed to parse HCL file %s: %w", path, diags)
	}
	return decodeConfig(file, path)
}

// ParseConfig is LoadConfigFile for in-memory sources.
func ParseConfig(src []byte, filename string) (Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return Config{}, fmt.Errorf("extagent: failed to parse HCL file %s: %w", filename, diags)
	}
	return decodeConfig(file, filename)
}

func decodeConfig(file *hcl.File, filename string) (Config, error) {
	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": environ(),
		},
	}

	var parsed hclConfigFile
	if diags := gohcl.DecodeBody(file.Body, evalCtx, &parsed); diags.HasErrors() {
		return Config{}, fmt.Errorf("extagent: failed to decode HCL file %s: %w", filename, diags)
	}
	if parsed.ExtAgent == nil {
		return Config{}, nil
	}
	return newConfig(parsed.ExtAgent.Enabled, parsed.ExtAgent.JarPaths), nil
}

// environ exposes the process environment as a map of strings.
func environ() cty.Value {
	vars := make(map[string]cty.Value)
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		vars[k] = cty.StringVal(v)
	}
	if len(vars) == 0 {
		return cty.MapValEmpty(cty.String)
	}
	return cty.MapVal(vars)
}

func newConfig(enabled bool, raw map[string]string) Config {
	cfg := Config{Enabled: enabled, Paths: make(map[Identity]string, len(raw))}
	for k, v := range raw {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		cfg.Paths[Identity(k)] = strings.TrimSpace(v)
	}
	return cfg
}

// ResolvePath joins a relative module path onto dir.
func ResolvePath(dir, p string) string {
	if p == "" || dir == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}
