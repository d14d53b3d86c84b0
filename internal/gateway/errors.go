package gateway

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/erg0nix/petanque/internal/protocol"
	"github.com/erg0nix/petanque/internal/session"
	"github.com/erg0nix/petanque/internal/transport"
)

// toStatus maps session errors to gRPC status codes.
func toStatus(err error) error {
	if err == nil {
		return nil
	}

	var serverErr *protocol.ServerError
	var protocolErr *protocol.ProtocolError
	var transportErr *transport.TransportError

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	case errors.Is(err, session.ErrInvalidOperation):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, protocol.ErrInvalidRequest):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, protocol.ErrInvalidProofState):
		return status.Error(codes.Internal, err.Error())
	case errors.As(err, &serverErr):
		return status.Error(codes.Aborted, err.Error())
	case errors.As(err, &protocolErr), errors.As(err, &transportErr):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Unknown, err.Error())
	}
}
