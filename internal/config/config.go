// Package config loads ~/.turnguard/config.yaml and overlays TURNGUARD_*
// environment variables. Command-line flags are applied by the CLI on top.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/turnguard/internal/alert"
	"github.com/ppiankov/turnguard/internal/oracle"
)

const (
	DefaultConfigDir  = ".turnguard"
	DefaultConfigFile = "config.yaml"
	DefaultAuditFile  = "audit.jsonl"
	DefaultPort       = 9443
	EnvPrefix         = "TURNGUARD_"
)

// Config is the process-wide settings record.
type Config struct {
	// PolicyPath is empty for ~/.turnguard/policy.yaml with the built-in fallback.
	PolicyPath string        `yaml:"policy"`
	Audit      string        `yaml:"audit"`
	Oracle     oracle.Config `yaml:"oracle"`
	Guards     GuardConfig   `yaml:"guards"`
	// SystemPromptFile replaces the built-in system prompt when set.
	SystemPromptFile string       `yaml:"system_prompt_file"`
	Fallback         string       `yaml:"fallback"`
	ApprovalDir      string       `yaml:"approval_dir"`
	Server           ServerConfig `yaml:"server"`
	// Alerts are webhooks notified after a turn is durably audited.
	Alerts []alert.AlertConfig `yaml:"alerts"`
	Debug  bool                `yaml:"debug"`
}

// GuardConfig tunes the guard engine.
type GuardConfig struct {
	// UnknownKind is "allow" (default) or "block".
	UnknownKind string `yaml:"unknown_kind"`
}

// ServerConfig configures the gRPC front end.
type ServerConfig struct {
	Port   int  `yaml:"port"`
	Reload bool `yaml:"reload"`
}

// Dir returns ~/.turnguard, or a temp-dir fallback when HOME is unknown.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "turnguard")
	}
	return filepath.Join(home, DefaultConfigDir)
}

// DefaultPath returns ~/.turnguard/config.yaml.
func DefaultPath() string {
	return filepath.Join(Dir(), DefaultConfigFile)
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Audit:  filepath.Join(Dir(), DefaultAuditFile),
		Oracle: oracle.Config{Provider: oracle.ProviderMock},
		Guards: GuardConfig{UnknownKind: "allow"},
		Server: ServerConfig{Port: DefaultPort, Reload: true},
	}
}

// Load reads path (DefaultPath when empty) over the defaults, then applies
// the environment. A missing file is not an error unless path was explicit.
func Load(path string) (Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	str("POLICY", &cfg.PolicyPath)
	str("AUDIT", &cfg.Audit)
	str("ORACLE", &cfg.Oracle.Provider)
	str("MODEL", &cfg.Oracle.Model)
	str("API_URL", &cfg.Oracle.APIURL)
	str("API_KEY", &cfg.Oracle.APIKey)
	str("REGION", &cfg.Oracle.Region)
	str("UNKNOWN_GUARD", &cfg.Guards.UnknownKind)
	str("SYSTEM_PROMPT_FILE", &cfg.SystemPromptFile)
	str("FALLBACK", &cfg.Fallback)
	str("APPROVAL_DIR", &cfg.ApprovalDir)

	if v, ok := lookup(EnvPrefix + "ORACLE"); ok && strings.Contains(v, ":") {
		sel := oracle.ParseSelector(v)
		cfg.Oracle.Provider, cfg.Oracle.Model = sel.Provider, sel.Model
	}
	if v, ok := lookup(EnvPrefix + "TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: %sTIMEOUT: %w", EnvPrefix, err)
		}
		cfg.Oracle.Timeout = d
	}
	if v, ok := lookup(EnvPrefix + "PORT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %sPORT: %w", EnvPrefix, err)
		}
		cfg.Server.Port = n
	}
	if v, ok := lookup(EnvPrefix + "DEBUG"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: %sDEBUG: %w", EnvPrefix, err)
		}
		cfg.Debug = b
	}
	return nil
}

// SystemPrompt returns the contents of SystemPromptFile, or "" when unset.
func (c Config) SystemPrompt() (string, error) {
	if c.SystemPromptFile == "" {
		return "", nil
	}
	data, err := os.ReadFile(c.SystemPromptFile)
	if err != nil {
		return "", fmt.Errorf("config: system prompt: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// ResolvedApprovalDir returns ApprovalDir or ~/.turnguard/pending.
func (c Config) ResolvedApprovalDir() string {
	if c.ApprovalDir != "" {
		return c.ApprovalDir
	}
	return filepath.Join(Dir(), "pending")
}

// Template returns a commented config file for init.
func Template() string {
	return `# turnguard config
# Environment variables TURNGUARD_<NAME> override these values; flags override both.

# policy: ~/.turnguard/policy.yaml
audit: ` + filepath.Join(Dir(), DefaultAuditFile) + `
# audit: sqlite:/var/lib/turnguard/audit.db
# audit: postgres://turnguard@localhost/turnguard?sslmode=disable
# audit: redis://localhost:6379/0
# Comma-separated: the first sink is the record, the rest are best-effort mirrors.

oracle:
  provider: mock        # mock | openai | bedrock
  # model: gpt-4o-mini
  # api_url: https://api.openai.com/v1/chat/completions
  # region: us-east-1
  # timeout: 30s
  # rate_per_second: 2

guards:
  unknown_kind: allow   # allow | block

# system_prompt_file: ~/.turnguard/system.txt
# fallback: goodbye

server:
  port: 9443
  reload: true

# alerts:
#   - url: https://hooks.slack.com/services/T000/B000/XXXX
#     format: slack          # generic | slack | pagerduty
#     events: [block, approval, clamp]
`
}
