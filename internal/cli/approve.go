package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/turnguard/internal/approval"
)

var (
	approveDuration time.Duration
	approveNote     string
)

func init() {
	rootCmd.AddCommand(approveCmd)
	approveCmd.Flags().DurationVar(&approveDuration, "duration", 0, "Validity period (e.g., 30m, 24h). Default: no expiry")
	approveCmd.Flags().StringVar(&approveNote, "note", "", "Reviewer note stored with the decision")
}

var approveCmd = &cobra.Command{
	Use:   "approve <key>",
	Short: "Sign off an intent that requires human approval",
	Long: "Approves a pending ticket filed when a session entered an intent with a\n" +
		"human_approval role. Keys are <session>.<intent>; see 'turnguard pending'.\n" +
		"With --duration, the approval expires after the given period.",
	Args: cobra.ExactArgs(1),
	RunE: runApprove,
}

// openApprovals opens the approval store named by the config.
func openApprovals(cmd *cobra.Command) (*approval.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	store, err := approval.NewStore(cfg.ResolvedApprovalDir())
	if err != nil {
		return nil, fmt.Errorf("failed to open approval store: %w", err)
	}
	return store, nil
}

func runApprove(cmd *cobra.Command, args []string) error {
	key := args[0]

	store, err := openApprovals(cmd)
	if err != nil {
		return err
	}

	if err := store.Approve(key, approveDuration, approveNote); err != nil {
		return err
	}

	if approveDuration > 0 {
		fmt.Printf("Approved %q for %s\n", key, approveDuration)
	} else {
		fmt.Printf("Approved %q\n", key)
	}
	return nil
}
