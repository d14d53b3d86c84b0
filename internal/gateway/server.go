package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/erg0nix/petanque/internal/protocol"
	"github.com/erg0nix/petanque/internal/session"
)

// Server implements Service over a single session. Calls are serialized.
type Server struct {
	Bind      string
	StartTime time.Time
	StopFunc  func()

	cfg    session.Config
	logger *slog.Logger

	mu      sync.Mutex
	session *session.Session
}

func NewServer(cfg session.Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		StartTime: time.Now(),
		cfg:       cfg,
		logger:    logger,
		session:   session.New(cfg),
	}
}

// Close closes the session's connection.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Close()
}

// Init connects to the pet-server if needed and initializes the environment.
func (s *Server) Init(ctx context.Context, root *wrapperspb.StringValue) (*wrapperspb.Int64Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session.State() == session.Unconnected {
		if err := s.session.Connect(ctx); err != nil {
			return nil, toStatus(err)
		}
	}

	if err := s.session.Init(ctx, root.GetValue()); err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Int64(int64(s.session.Env())), nil
}

// Start expects {"file": ..., "theorem": ...}.
func (s *Server) Start(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	file := stringField(req, "file")
	thm := stringField(req, "theorem")
	if file == "" || thm == "" {
		return nil, status.Error(codes.InvalidArgument, "start: file and theorem are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.session.Start(ctx, file, thm); err != nil {
		return nil, toStatus(err)
	}
	return s.currentLocked()
}

func (s *Server) RunTactic(ctx context.Context, tactic *wrapperspb.StringValue) (*structpb.Struct, error) {
	tac := strings.TrimSpace(tactic.GetValue())
	if tac == "" {
		return nil, status.Error(codes.InvalidArgument, "run tactic: tactic is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.session.RunTactic(ctx, tac); err != nil {
		return nil, toStatus(err)
	}
	return s.currentLocked()
}

func (s *Server) Goals(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	s.mu.Lock()
	goals, err := s.session.Goals(ctx)
	s.mu.Unlock()
	if err != nil {
		return nil, toStatus(err)
	}

	out := &structpb.Struct{}
	if err := convertJSON(goals, out); err != nil {
		return nil, status.Errorf(codes.Internal, "goals: %v", err)
	}
	return out, nil
}

func (s *Server) Premises(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	s.mu.Lock()
	premises, err := s.session.Premises(ctx)
	s.mu.Unlock()
	if err != nil {
		return nil, toStatus(err)
	}
	if premises == nil {
		premises = []protocol.Premise{}
	}

	out := &structpb.ListValue{}
	if err := convertJSON(premises, out); err != nil {
		return nil, status.Errorf(codes.Internal, "premises: %v", err)
	}
	return out, nil
}

// Backtrack returns the state it popped.
func (s *Server) Backtrack(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.session.Backtrack()
	if err != nil {
		return nil, toStatus(err)
	}
	return proofStateStruct(st)
}

func (s *Server) Reset(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.session.Reset(ctx); err != nil {
		return nil, toStatus(err)
	}
	return s.currentLocked()
}

// History lists the proof stack, oldest first.
func (s *Server) History(_ context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	s.mu.Lock()
	history := s.session.History()
	s.mu.Unlock()

	values := make([]any, 0, len(history))
	for _, st := range history {
		values = append(values, proofStateMap(st))
	}

	out, err := structpb.NewList(values)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "history: %v", err)
	}
	return out, nil
}

func (s *Server) Status(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	s.mu.Lock()
	state := s.session.State()
	depth := s.session.Depth()
	thm := s.session.Theorem()
	s.mu.Unlock()

	uptimeSeconds := int64(0)
	startedAtText := ""
	if !s.StartTime.IsZero() {
		uptimeSeconds = int64(time.Since(s.StartTime).Seconds())
		startedAtText = s.StartTime.Format(time.RFC3339)
	}

	out, err := structpb.NewStruct(map[string]any{
		"bind":           s.Bind,
		"address":        s.cfg.Address,
		"state":          state.String(),
		"theorem":        thm,
		"depth":          depth,
		"uptime_seconds": uptimeSeconds,
		"started_at":     startedAtText,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "status: %v", err)
	}
	return out, nil
}

func (s *Server) Shutdown(_ context.Context, _ *emptypb.Empty) (*wrapperspb.StringValue, error) {
	s.logger.Info("shutdown requested")
	if s.StopFunc != nil {
		go s.StopFunc()
	}
	return wrapperspb.String("shutting down"), nil
}

func (s *Server) currentLocked() (*structpb.Struct, error) {
	st, ok := s.session.Current()
	if !ok {
		return nil, status.Error(codes.Internal, "no current state")
	}
	return proofStateStruct(st)
}

func proofStateMap(st session.ProofState) map[string]any {
	return map[string]any{
		"id":       st.ID,
		"action":   st.Action,
		"finished": st.Finished,
	}
}

func proofStateStruct(st session.ProofState) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(proofStateMap(st))
	if err != nil {
		return nil, status.Errorf(codes.Internal, "proof state: %v", err)
	}
	return out, nil
}

func stringField(st *structpb.Struct, key string) string {
	v, ok := st.GetFields()[key]
	if !ok {
		return ""
	}
	return strings.TrimSpace(v.GetStringValue())
}

// convertJSON moves a JSON-encodable value into a structpb message.
func convertJSON(v any, out proto.Message) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return protojson.Unmarshal(data, out)
}
