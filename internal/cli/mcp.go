package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	tgmcp "github.com/ppiankov/turnguard/internal/mcp"
	"github.com/ppiankov/turnguard/internal/session"
)

func init() {
	rootCmd.AddCommand(mcpCmd)
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP tool server for agent integration",
	Long: "Runs turnguard as an MCP (Model Context Protocol) server over stdio.\n" +
		"Exposes guarded conversation tools: start, turn, guard_check, allowed,\n" +
		"history, end, pending.",
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// stdout carries the MCP protocol; logs go to stderr.
	logger := newLogger(os.Stderr, cfg, true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := session.Build(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	defer rt.Close()

	tgmcp.Version = version
	srv := tgmcp.New(rt, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down MCP server...")
		cancel()
	}()

	p, _ := rt.Policy()
	fmt.Fprintln(os.Stderr, "turnguard MCP server running on stdio")
	fmt.Fprintf(os.Stderr, "Policy: %s %s\n\n", p.ID, p.Version)

	err = srv.Run(ctx)
	fmt.Fprintf(os.Stderr, "\n%d session(s) open at exit\n", rt.Len())
	return err
}
