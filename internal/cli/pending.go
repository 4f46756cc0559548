package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/turnguard/internal/approval"
)

var (
	pendingAll   bool
	pendingClear bool
)

func init() {
	rootCmd.AddCommand(pendingCmd)
	pendingCmd.Flags().BoolVar(&pendingAll, "all", false, "Include approved, denied and expired tickets")
	pendingCmd.Flags().BoolVar(&pendingClear, "clear", false, "Remove every ticket from the store")
}

var pendingCmd = &cobra.Command{
	Use:   "pending [key]",
	Short: "List approval tickets",
	Long: "Shows tickets filed by sessions that entered an intent requiring human\n" +
		"approval. With a key, prints that ticket's current status.",
	Args: cobra.MaximumNArgs(1),
	RunE: runPending,
}

func runPending(cmd *cobra.Command, args []string) error {
	store, err := openApprovals(cmd)
	if err != nil {
		return err
	}

	if pendingClear {
		if err := store.Cleanup(); err != nil {
			return fmt.Errorf("failed to clear approvals: %w", err)
		}
		fmt.Println("Approval store cleared.")
		return nil
	}

	if len(args) == 1 {
		status, err := store.Check(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s %s\n", args[0], status)
		return nil
	}

	var list []approval.Approval
	if pendingAll {
		list, err = store.List()
	} else {
		list, err = store.Pending()
	}
	if err != nil {
		return fmt.Errorf("failed to list approvals: %w", err)
	}

	if len(list) == 0 {
		fmt.Println("No pending approvals.")
		return nil
	}

	fmt.Printf("%-40s %-10s %-10s %-20s %s\n", "KEY", "STATUS", "ROLE", "INTENT", "CREATED")
	for _, a := range list {
		fmt.Printf("%-40s %-10s %-10s %-20s %s\n",
			truncate(a.Key, 40),
			a.Status,
			truncate(a.Role, 10),
			truncate(a.Intent, 20),
			a.CreatedAt.Format("2006-01-02 15:04:05"),
		)
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
