package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	pb "github.com/ppiankov/turnguard/api/turnguard/v1"
	"github.com/ppiankov/turnguard/internal/client"
	"github.com/ppiankov/turnguard/internal/guard"
	"github.com/ppiankov/turnguard/internal/memory"
	"github.com/ppiankov/turnguard/internal/session"
)

var chatServer string

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVar(&chatServer, "server", "", "Talk to a remote turnguard server (host:port) instead of running locally")
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive guarded conversation",
	Long: "Starts a session and reads user messages from stdin. Each line runs one turn.\n\n" +
		"Commands: /allowed shows the current intent and its successors,\n" +
		"/history prints the committed transcript, exit or /quit leaves.",
	RunE: runChat,
}

// chatBackend is a single conversation, either in-process or over gRPC.
type chatBackend interface {
	Start(ctx context.Context) (*pb.StartSessionResponse, error)
	Turn(ctx context.Context, text string) (*pb.RunTurnResponse, error)
	Allowed(ctx context.Context) (*pb.AllowedResponse, error)
	// History returns false when the backend cannot show the transcript.
	History() ([]memory.Message, bool)
	End(ctx context.Context) error
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(os.Stderr, cfg, false)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var backend chatBackend
	if chatServer != "" {
		c, err := client.New(chatServer)
		if err != nil {
			return err
		}
		defer c.Close()
		backend = &remoteChat{c: c}
	} else {
		rt, err := session.Build(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer rt.Close()
		backend = &localChat{m: rt.Manager}
	}

	styles := newChatStyles(term.IsTerminal(int(os.Stdout.Fd())))
	return chatLoop(ctx, os.Stdin, os.Stdout, backend, styles)
}

func chatLoop(ctx context.Context, in io.Reader, out io.Writer, b chatBackend, st chatStyles) error {
	started, err := b.Start(ctx)
	if err != nil {
		return err
	}
	defer b.End(context.WithoutCancel(ctx))

	fmt.Fprintf(out, "%s %s (policy %s %s). Type 'exit' to quit.\n\n",
		st.title.Render("turnguard"), st.dim.Render(started.SessionID),
		started.PolicyID, started.PolicyVersion)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, st.user.Render("You: "))
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit", "/quit":
			return nil
		case "/allowed":
			a, err := b.Allowed(ctx)
			if err != nil {
				fmt.Fprintf(out, "%s\n", st.err.Render(err.Error()))
				continue
			}
			fmt.Fprintf(out, "  intent %s -> [%s]\n", st.intent.Render(a.Intent), strings.Join(a.AllowedNext, ", "))
			continue
		case "/history":
			hist, ok := b.History()
			if !ok {
				fmt.Fprintln(out, st.dim.Render("  history is not available for remote sessions"))
				continue
			}
			for _, m := range hist {
				fmt.Fprintf(out, "  %-9s %s\n", m.Role+":", m.Content)
			}
			continue
		}

		res, err := b.Turn(ctx, line)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			fmt.Fprintf(out, "%s\n", st.err.Render("turn failed: "+err.Error()))
			continue
		}
		fmt.Fprintf(out, "%s %s\n", st.agent.Render("Agent["+res.Intent+"]:"), res.Text)
		for _, ge := range res.GuardEvents {
			if ge.Message == "" || ge.Action == guard.Allow {
				continue
			}
			fmt.Fprintf(out, "  %s\n", st.guard.Render(fmt.Sprintf("(guard: %s -> %s: %s)", ge.RuleID, ge.Action, ge.Message)))
		}
		if res.Approval != "" {
			fmt.Fprintf(out, "  %s\n", st.dim.Render("(approval requested: "+res.Approval+")"))
		}
		if res.Done {
			fmt.Fprintln(out, "Conversation ended.")
			return nil
		}
	}
}

type chatStyles struct {
	title  lipgloss.Style
	user   lipgloss.Style
	agent  lipgloss.Style
	intent lipgloss.Style
	guard  lipgloss.Style
	dim    lipgloss.Style
	err    lipgloss.Style
}

// newChatStyles returns colored styles for a terminal and no-op styles otherwise.
func newChatStyles(color bool) chatStyles {
	if !color {
		plain := lipgloss.NewStyle()
		return chatStyles{plain, plain, plain, plain, plain, plain, plain}
	}
	return chatStyles{
		title:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#f97316")),
		user:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#e0e0e8")),
		agent:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#22c55e")),
		intent: lipgloss.NewStyle().Foreground(lipgloss.Color("#f97316")),
		guard:  lipgloss.NewStyle().Foreground(lipgloss.Color("#eab308")),
		dim:    lipgloss.NewStyle().Foreground(lipgloss.Color("#5a5a70")),
		err:    lipgloss.NewStyle().Foreground(lipgloss.Color("#ef4444")),
	}
}

type localChat struct {
	m    *session.Manager
	sess *session.Session
}

func (l *localChat) Start(ctx context.Context) (*pb.StartSessionResponse, error) {
	s, err := l.m.Start(ctx)
	if err != nil {
		return nil, err
	}
	l.sess = s
	p := s.Policy()
	return &pb.StartSessionResponse{
		SessionID:     s.ID,
		PolicyID:      p.ID,
		PolicyVersion: p.Version,
		PolicyHash:    s.PolicyHash(),
		Intent:        s.Memory().Intent(),
		AllowedNext:   s.Allowed(),
	}, nil
}

func (l *localChat) Turn(ctx context.Context, text string) (*pb.RunTurnResponse, error) {
	res, err := l.sess.RunTurn(ctx, text)
	if err != nil {
		return nil, err
	}
	resp := pb.NewRunTurnResponse(l.sess.ID, res)
	return &resp, nil
}

func (l *localChat) Allowed(ctx context.Context) (*pb.AllowedResponse, error) {
	return &pb.AllowedResponse{
		SessionID:   l.sess.ID,
		Intent:      l.sess.Memory().Intent(),
		AllowedNext: l.sess.Allowed(),
		Done:        l.sess.Done(),
	}, nil
}

func (l *localChat) History() ([]memory.Message, bool) {
	return l.sess.Memory().History(), true
}

func (l *localChat) End(ctx context.Context) error {
	if l.sess == nil {
		return nil
	}
	return l.m.End(l.sess.ID)
}

type remoteChat struct {
	c  *client.Client
	id string
}

func (r *remoteChat) Start(ctx context.Context) (*pb.StartSessionResponse, error) {
	resp, err := r.c.StartSession(ctx)
	if err != nil {
		return nil, err
	}
	r.id = resp.SessionID
	return resp, nil
}

func (r *remoteChat) Turn(ctx context.Context, text string) (*pb.RunTurnResponse, error) {
	return r.c.RunTurn(ctx, r.id, text)
}

func (r *remoteChat) Allowed(ctx context.Context) (*pb.AllowedResponse, error) {
	return r.c.Allowed(ctx, r.id)
}

func (r *remoteChat) History() ([]memory.Message, bool) { return nil, false }

func (r *remoteChat) End(ctx context.Context) error {
	if r.id == "" {
		return nil
	}
	_, err := r.c.EndSession(ctx, r.id)
	return err
}
