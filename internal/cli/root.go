package cli

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/turnguard/internal/config"
	"github.com/ppiankov/turnguard/internal/oracle"
)

var (
	flagConfig       string
	flagPolicy       string
	flagAudit        string
	flagOracle       string
	flagDebug        bool
	flagUnknownGuard string
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "Path to config YAML (default ~/.turnguard/config.yaml)")
	pf.StringVar(&flagPolicy, "policy", "", "Path to policy YAML (default ~/.turnguard/policy.yaml, then built-in)")
	pf.StringVar(&flagAudit, "audit", "", "Audit sink URI: path, sqlite:, postgres://, redis:// (comma-separated for several)")
	pf.StringVar(&flagOracle, "oracle", "", "Oracle as provider[:model] (mock, openai, bedrock)")
	pf.BoolVar(&flagDebug, "debug", false, "Log intent selection and guard decisions")
	pf.StringVar(&flagUnknownGuard, "unknown-guard", "", "Unrecognized guard kinds: allow or block")
}

var rootCmd = &cobra.Command{
	Use:   "turnguard",
	Short: "Policy guardrails for conversational LLM agents",
	Long: "Constrains an LLM agent to a declared intent graph, runs every reply through\n" +
		"ordered guards (PII redaction, blocklists, channel checks, CEL rules) and\n" +
		"writes a hash-chained audit record per turn.",
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file and environment, then applies any
// persistent flag the user set explicitly.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return config.Config{}, err
	}
	changed := func(name string) bool {
		f := cmd.Flag(name)
		return f != nil && f.Changed
	}
	if changed("policy") {
		cfg.PolicyPath = flagPolicy
	}
	if changed("audit") {
		cfg.Audit = flagAudit
	}
	if changed("oracle") {
		sel := oracle.ParseSelector(flagOracle)
		cfg.Oracle.Provider = sel.Provider
		if sel.Model != "" {
			cfg.Oracle.Model = sel.Model
		}
	}
	if changed("debug") {
		cfg.Debug = flagDebug
	}
	if changed("unknown-guard") {
		cfg.Guards.UnknownKind = flagUnknownGuard
	}
	return cfg, nil
}

// newLogger writes JSON for long-running servers and text otherwise.
// Debug mode lowers the level so per-turn decisions are visible.
func newLogger(w io.Writer, cfg config.Config, jsonOutput bool) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if jsonOutput {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
