package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var denyNote string

func init() {
	rootCmd.AddCommand(denyCmd)
	denyCmd.Flags().StringVar(&denyNote, "note", "", "Reviewer note stored with the decision")
}

var denyCmd = &cobra.Command{
	Use:   "deny <key>",
	Short: "Explicitly deny an approval ticket",
	Long:  "Denies a pending ticket. The decision is recorded for review; it does not rewrite past turns.",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeny,
}

func runDeny(cmd *cobra.Command, args []string) error {
	key := args[0]

	store, err := openApprovals(cmd)
	if err != nil {
		return err
	}

	if err := store.Deny(key, denyNote); err != nil {
		return err
	}

	fmt.Printf("Denied %q\n", key)
	return nil
}
