package grpcapi

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Leganyst/visit-scheduler/internal/apperr"
)

func codeOf(err error) codes.Code {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return codes.InvalidArgument
	case apperr.KindForbidden:
		return codes.PermissionDenied
	case apperr.KindNotFound:
		return codes.NotFound
	case apperr.KindConflict:
		return codes.FailedPrecondition
	case apperr.KindVersionConflict:
		return codes.Aborted
	default:
		return codes.Internal
	}
}

// toStatus переводит доменную ошибку в gRPC-статус; код apperr идёт в сообщение.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if e, ok := apperr.As(err); ok {
		return status.Error(codeOf(err), e.Code+": "+e.Message)
	}
	return status.Error(codes.Internal, "internal error")
}
