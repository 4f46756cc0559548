package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/turnguard/internal/graph"
	"github.com/ppiankov/turnguard/internal/policy"
)

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyShowCmd)
	policyCmd.AddCommand(policyValidateCmd)
}

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect and validate conversation policies",
}

var policyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the active policy's intent graph and guards",
	Long: "Loads the policy (--policy, config, ~/.turnguard/policy.yaml, then built-in)\n" +
		"and prints intents with their successors, guard rules in order, and any\n" +
		"undefined references, unreachable intents or dead ends.",
	RunE: runPolicyShow,
}

var policyValidateCmd = &cobra.Command{
	Use:   "validate <path>...",
	Short: "Validate policy files against the schema",
	Long:  "Parses each file and reports schema errors. Undefined intent references\nare reported as warnings. Exit code 1 if any file is invalid.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runPolicyValidate,
}

func runPolicyShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	p, hash, err := policy.LoadWithHash(cfg.PolicyPath)
	if err != nil {
		return err
	}
	fmt.Print(describePolicy(p, hash))
	return nil
}

func runPolicyValidate(cmd *cobra.Command, args []string) error {
	failed := 0
	for _, path := range args {
		p, hash, err := policy.LoadWithHash(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FAIL %s: %v\n", path, err)
			failed++
			continue
		}
		fmt.Printf("OK   %s (%s %s, %s)\n", path, p.ID, p.Version, shortHash(hash))
		for _, g := range p.ReferenceGaps() {
			fmt.Printf("     warning: %s\n", g)
		}
	}
	if failed > 0 {
		os.Exit(1)
	}
	return nil
}

func describePolicy(p *policy.Policy, hash string) string {
	g := graph.New(p)
	var b strings.Builder

	fmt.Fprintf(&b, "Policy %s %s\n", p.ID, p.Version)
	fmt.Fprintf(&b, "Hash   %s\n", hash)
	fmt.Fprintf(&b, "Start  %s\n", p.DefaultIntent)
	if len(p.EndIntents) > 0 {
		fmt.Fprintf(&b, "End    %s\n", strings.Join(p.EndIntents, ", "))
	}

	b.WriteString("\nIntents:\n")
	for _, it := range p.OrderedIntents() {
		next := "(none)"
		if len(it.AllowedNext) > 0 {
			next = strings.Join(it.AllowedNext, ", ")
		}
		fmt.Fprintf(&b, "  %-20s -> %s\n", it.ID, next)
		if it.HumanApproval != "" {
			fmt.Fprintf(&b, "  %-20s    approval: %s\n", "", it.HumanApproval)
		}
	}

	if rules := p.GuardRules(); len(rules) > 0 {
		b.WriteString("\nGuards:\n")
		for i, r := range rules {
			fmt.Fprintf(&b, "  %d. %-20s %-10s %s\n", i+1, r.Name(), r.Kind, r.EffectiveMode())
		}
	}

	var warnings []string
	for _, gap := range p.ReferenceGaps() {
		warnings = append(warnings, gap.String())
	}
	for _, id := range g.Unreachable(p.DefaultIntent) {
		warnings = append(warnings, fmt.Sprintf("intent %q is unreachable from %q", id, p.DefaultIntent))
	}
	for _, id := range g.Dead() {
		warnings = append(warnings, fmt.Sprintf("intent %q has no successors and is not an end intent", id))
	}
	if len(warnings) > 0 {
		b.WriteString("\nWarnings:\n")
		for _, w := range warnings {
			fmt.Fprintf(&b, "  %s\n", w)
		}
	}
	return b.String()
}

// shortHash trims a "sha256:" digest to 12 hex characters for display.
func shortHash(h string) string {
	h = strings.TrimPrefix(h, "sha256:")
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
