package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/turnguard/internal/audit"
)

var (
	tailLines int
	tailJSON  bool
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditTailCmd)
	auditTailCmd.Flags().IntVarP(&tailLines, "lines", "n", 10, "Number of recent entries to show")
	auditTailCmd.Flags().BoolVar(&tailJSON, "json", false, "Print full JSON records")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit log operations",
	Long:  "Commands for verifying and inspecting the hash-chained turn audit log.",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify [path]",
	Short: "Verify hash chain integrity of an audit log",
	Long: "Walks the JSONL audit log and validates that every entry's prev_hash\n" +
		"matches the SHA-256 of the previous entry. Exits 0 if valid, 1 if tampered.\n" +
		"Without a path, the file sink from the configured audit URI is used.",
	Args: cobra.MaximumNArgs(1),
	RunE: runAuditVerify,
}

var auditTailCmd = &cobra.Command{
	Use:   "tail [path]",
	Short: "Show recent audit log entries",
	Long:  "Reads the last N turn records from the JSONL audit log.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAuditTail,
}

// auditPath resolves the log to read: the argument, or the first file sink
// in the configured audit URI.
func auditPath(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return "", err
	}
	path, ok := audit.FilePath(cfg.Audit)
	if !ok {
		return "", fmt.Errorf("audit sink %q has no JSONL file; pass a path", cfg.Audit)
	}
	return path, nil
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	path, err := auditPath(cmd, args)
	if err != nil {
		return err
	}
	result := audit.Verify(path)
	if result.Valid {
		fmt.Printf("OK: %d entries verified\n", result.Lines)
		return nil
	}
	fmt.Fprintf(os.Stderr, "FAILED at line %d: %s\n", result.ErrorLine, result.Error)
	os.Exit(1)
	return nil
}

func runAuditTail(cmd *cobra.Command, args []string) error {
	path, err := auditPath(cmd, args)
	if err != nil {
		return err
	}
	events, err := audit.Tail(path, tailLines)
	if err != nil {
		return err
	}
	for _, ev := range events {
		if tailJSON {
			out, _ := json.MarshalIndent(ev, "", "  ")
			fmt.Println(string(out))
			continue
		}
		fmt.Printf("%-10s %s", truncate(ev.SessionID, 10), audit.FormatEvent(ev))
	}
	return nil
}
