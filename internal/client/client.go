// Package client is a typed Go client for a remote turnguard server.
package client

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	pb "github.com/ppiankov/turnguard/api/turnguard/v1"
	"github.com/ppiankov/turnguard/internal/guard"
)

// DefaultTimeout bounds calls whose context carries no deadline.
const DefaultTimeout = 30 * time.Second

// FailClosedRule names the synthetic guard result returned when the server
// cannot be reached for a guard check.
const FailClosedRule = "failclosed.unreachable"

// Client connects to a turnguard gRPC server.
type Client struct {
	conn    *grpc.ClientConn
	client  pb.TurnServiceClient
	Timeout time.Duration
}

// New creates a gRPC client connected to the given address. The connection
// is established lazily on the first call.
func New(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to turnguard server: %w", err)
	}
	return &Client{
		conn:    conn,
		client:  pb.NewTurnServiceClient(conn),
		Timeout: DefaultTimeout,
	}, nil
}

type rpc func(context.Context, *structpb.Struct, ...grpc.CallOption) (*structpb.Struct, error)

func invoke[Resp any](ctx context.Context, c *Client, method rpc, req any) (*Resp, error) {
	if _, ok := ctx.Deadline(); !ok && c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	in, err := pb.Encode(req)
	if err != nil {
		return nil, err
	}
	out, err := method(ctx, in)
	if err != nil {
		return nil, err
	}
	var resp Resp
	if err := pb.Decode(out, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StartSession opens a session on the server's active policy.
func (c *Client) StartSession(ctx context.Context) (*pb.StartSessionResponse, error) {
	return invoke[pb.StartSessionResponse](ctx, c, c.client.StartSession, pb.StartSessionRequest{})
}

// RunTurn sends one user message.
func (c *Client) RunTurn(ctx context.Context, sessionID, text string) (*pb.RunTurnResponse, error) {
	return invoke[pb.RunTurnResponse](ctx, c, c.client.RunTurn, pb.RunTurnRequest{SessionID: sessionID, Text: text})
}

// Allowed returns the current intent and its legal successors.
func (c *Client) Allowed(ctx context.Context, sessionID string) (*pb.AllowedResponse, error) {
	return invoke[pb.AllowedResponse](ctx, c, c.client.Allowed, pb.AllowedRequest{SessionID: sessionID})
}

// EndSession closes a session on the server.
func (c *Client) EndSession(ctx context.Context, sessionID string) (*pb.EndSessionResponse, error) {
	return invoke[pb.EndSessionResponse](ctx, c, c.client.EndSession, pb.EndSessionRequest{SessionID: sessionID})
}

// CheckGuards runs the server's guards over text.
// Fail-closed: if the server cannot answer, the text is reported blocked.
func (c *Client) CheckGuards(ctx context.Context, text string) guard.Outcome {
	out, err := invoke[pb.CheckGuardsResponse](ctx, c, c.client.CheckGuards, pb.CheckGuardsRequest{Text: text})
	if err != nil {
		return guard.Outcome{
			Text: guard.SafeRefusal,
			Results: []guard.Result{{
				RuleID:  FailClosedRule,
				Kind:    "remote",
				Action:  guard.Block,
				Message: fmt.Sprintf("turnguard server unreachable: %v", err),
			}},
			Blocked:   true,
			BlockedBy: FailClosedRule,
		}
	}
	return *out
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
