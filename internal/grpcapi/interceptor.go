package grpcapi

import (
	"context"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/Leganyst/visit-scheduler/internal/auth"
	"github.com/Leganyst/visit-scheduler/internal/logging"
)

// AuthInterceptor требует bearer-токен в метаданных authorization для методов планировщика.
// Health и reflection остаются открытыми.
func AuthInterceptor(m *auth.Manager) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		if !strings.HasPrefix(info.FullMethod, "/"+ServiceName+"/") {
			return next(ctx, req)
		}
		if m == nil {
			return nil, status.Error(codes.Unauthenticated, "authentication is not configured")
		}
		md, _ := metadata.FromIncomingContext(ctx)
		var raw string
		if v := md.Get("authorization"); len(v) > 0 {
			raw = v[0]
		}
		if !strings.HasPrefix(raw, "Bearer ") {
			return nil, status.Error(codes.Unauthenticated, "missing bearer token")
		}
		claims, err := m.Verify(strings.TrimPrefix(raw, "Bearer "), time.Now())
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}
		return next(auth.WithActor(ctx, auth.ActorFromClaims(claims)), req)
	}
}

// LoggingInterceptor пишет метод, код и длительность каждого вызова.
func LoggingInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		log := logging.From(ctx).With("request_id", logging.NewID("grpc_", start))
		ctx = logging.With(ctx, log)

		resp, err := next(ctx, req)

		attrs := []any{
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if err != nil && status.Code(err) == codes.Internal {
			log.Error("grpc", append(attrs, "error", err)...)
		} else {
			log.Info("grpc", attrs...)
		}
		return resp, err
	}
}
