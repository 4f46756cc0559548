package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/turnguard/internal/guard"
	"github.com/ppiankov/turnguard/internal/policy"
)

var guardJSON bool

func init() {
	rootCmd.AddCommand(guardCmd)
	guardCmd.Flags().BoolVar(&guardJSON, "json", false, "Print the outcome as JSON")
}

var guardCmd = &cobra.Command{
	Use:   "guard [text...]",
	Short: "Run the policy guards over text (dry-run)",
	Long: "Applies the policy's guard rules, in order, to the given text or to stdin\n" +
		"when no text is given. Prints each rule's action and the final text.\n" +
		"Exit code 1 if a guard blocked the text.",
	RunE: runGuard,
}

func runGuard(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	p, err := policy.Load(cfg.PolicyPath)
	if err != nil {
		return err
	}
	unknown, err := guard.ParseUnknownKind(cfg.Guards.UnknownKind)
	if err != nil {
		return err
	}

	text := strings.Join(args, " ")
	if len(args) == 0 {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		text = strings.TrimRight(string(data), "\n")
	}

	out := guard.NewEngine(guard.Options{UnknownKind: unknown}).Run(text, p.GuardRules())

	if guardJSON {
		data, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(data))
	} else {
		fmt.Print(formatOutcome(out))
	}
	if out.Blocked {
		os.Exit(1)
	}
	return nil
}

func formatOutcome(out guard.Outcome) string {
	var b strings.Builder
	for _, r := range out.Results {
		fmt.Fprintf(&b, "%-7s %-24s %s\n", r.Action, r.RuleID, r.Message)
	}
	if len(out.Results) > 0 {
		b.WriteString("\n")
	}
	b.WriteString(out.Text)
	b.WriteString("\n")
	return b.String()
}
