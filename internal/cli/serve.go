package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/turnguard/internal/policy"
	"github.com/ppiankov/turnguard/internal/server"
	"github.com/ppiankov/turnguard/internal/session"
)

var (
	servePort     int
	serveNoReload bool
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVar(&servePort, "port", 0, "gRPC listen port (default from config, 9443)")
	serveCmd.Flags().BoolVar(&serveNoReload, "no-reload", false, "Disable policy hot-reload")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start gRPC turn server",
	Long: "Runs turnguard as a central server over gRPC (turnguard.v1.TurnService).\n" +
		"Agents start sessions, run turns and check guards remotely.\n" +
		"The policy file is watched and reloaded for new sessions; a version\n" +
		"downgrade is refused.",
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	if serveNoReload {
		cfg.Server.Reload = false
	}
	logger := newLogger(os.Stderr, cfg, true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := session.Build(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	defer rt.Close()

	srv := server.New(rt, server.Config{Port: cfg.Server.Port, Logger: logger})

	watchPath := reloadPath(cfg.PolicyPath)
	if cfg.Server.Reload && watchPath != "" {
		reloader, err := server.NewReloader(srv, logger, watchPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: hot-reload disabled: %v\n", err)
		} else {
			go reloader.Run(ctx)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down turn server...")
		cancel()
		srv.GracefulStop()
	}()

	p, hash := rt.Policy()
	fmt.Fprintf(os.Stderr, "turnguard server listening on :%d\n", cfg.Server.Port)
	fmt.Fprintf(os.Stderr, "Policy: %s %s (%s)\n", p.ID, p.Version, shortHash(hash))
	if watchPath != "" && cfg.Server.Reload {
		fmt.Fprintf(os.Stderr, "Watching: %s\n", watchPath)
	}
	fmt.Fprintln(os.Stderr)

	return srv.Serve()
}

// reloadPath returns the file to watch: the explicit policy path, or the
// default policy file when it exists. The built-in policy is never watched.
func reloadPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	def := policy.DefaultPath()
	if _, err := os.Stat(def); err == nil {
		return def
	}
	return ""
}
