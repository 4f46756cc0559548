// Package server exposes sessions over gRPC (turnguard.v1.TurnService).
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	pb "github.com/ppiankov/turnguard/api/turnguard/v1"
	"github.com/ppiankov/turnguard/internal/session"
	"github.com/ppiankov/turnguard/internal/turn"
)

// Config holds gRPC server configuration.
type Config struct {
	Port   int
	Logger *slog.Logger
}

// Server implements TurnService on top of a session runtime.
type Server struct {
	rt  *session.Runtime
	cfg Config
	log *slog.Logger

	grpcServer *grpc.Server
}

var _ pb.TurnServiceServer = (*Server)(nil)

// New creates a gRPC server serving rt. The caller keeps ownership of rt.
func New(rt *session.Runtime, cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		rt:         rt,
		cfg:        cfg,
		log:        logger,
		grpcServer: grpc.NewServer(),
	}
	pb.RegisterTurnServiceServer(s.grpcServer, s)
	return s
}

// Serve starts the gRPC server on the configured port. Blocks until stopped.
func (s *Server) Serve() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.cfg.Port, err)
	}
	return s.ServeOn(lis)
}

// ServeOn starts the gRPC server on the given listener.
func (s *Server) ServeOn(lis net.Listener) error {
	s.log.Info("serving", "addr", lis.Addr().String())
	return s.grpcServer.Serve(lis)
}

// GracefulStop gracefully shuts down the gRPC server.
func (s *Server) GracefulStop() {
	s.grpcServer.GracefulStop()
}

// ReloadPolicy re-reads the policy file for new sessions.
func (s *Server) ReloadPolicy() error {
	return s.rt.ReloadPolicy()
}

// StartSession implements the StartSession RPC.
func (s *Server) StartSession(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	sess, err := s.rt.Start(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	p := sess.Policy()
	return encode(pb.StartSessionResponse{
		SessionID:     sess.ID,
		PolicyID:      p.ID,
		PolicyVersion: p.Version,
		PolicyHash:    sess.PolicyHash(),
		Intent:        sess.Memory().Intent(),
		AllowedNext:   sess.Allowed(),
	})
}

// RunTurn implements the RunTurn RPC.
func (s *Server) RunTurn(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req pb.RunTurnRequest
	if err := pb.Decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if req.SessionID == "" {
		return nil, status.Error(codes.InvalidArgument, "session_id is required")
	}
	sess, err := s.rt.Get(req.SessionID)
	if err != nil {
		return nil, toStatus(err)
	}

	res, err := sess.RunTurn(ctx, req.Text)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(pb.NewRunTurnResponse(sess.ID, res))
}

// EndSession implements the EndSession RPC.
func (s *Server) EndSession(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req pb.EndSessionRequest
	if err := pb.Decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	sess, err := s.rt.Get(req.SessionID)
	if err != nil {
		return nil, toStatus(err)
	}
	if err := s.rt.End(req.SessionID); err != nil {
		return nil, toStatus(err)
	}
	return encode(pb.EndSessionResponse{
		SessionID: sess.ID,
		Turns:     sess.Memory().Turns(),
		Intent:    sess.Memory().Intent(),
	})
}

// Allowed implements the Allowed RPC.
func (s *Server) Allowed(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req pb.AllowedRequest
	if err := pb.Decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	sess, err := s.rt.Get(req.SessionID)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(pb.AllowedResponse{
		SessionID:   sess.ID,
		Intent:      sess.Memory().Intent(),
		AllowedNext: sess.Allowed(),
		Done:        sess.Done(),
	})
}

// CheckGuards implements the CheckGuards RPC.
func (s *Server) CheckGuards(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req pb.CheckGuardsRequest
	if err := pb.Decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	p, _ := s.rt.Policy()
	return encode(s.rt.Engine().Run(req.Text, p.Guards))
}

func encode(v any) (*structpb.Struct, error) {
	out, err := pb.Encode(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// toStatus maps domain errors onto gRPC codes.
func toStatus(err error) error {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, turn.ErrOracleUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, turn.ErrAuditFailed):
		return status.Error(codes.Internal, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Unknown, err.Error())
	}
}
