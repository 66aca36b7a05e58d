package rpc

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/example/coop-ledger/internal/auth"
	"github.com/example/coop-ledger/internal/logger"
	"github.com/example/coop-ledger/internal/security"
	"github.com/example/coop-ledger/pkg/audit"
)

const correlationIDKey = "x-correlation-id"

// MethodScopes lists the scope each method requires.
var MethodScopes = map[string]string{
	OpenAccountMethod:   auth.ScopeAccountsWrite,
	VerifyVoucherMethod: auth.ScopeVouchersVerify,
	GetVoucherMethod:    auth.ScopeVouchersRead,
}

type Auditor interface {
	Record(ev audit.Event) *audit.LogEntry
}

// RecoveryInterceptor turns a panic in a handler into codes.Internal.
func RecoveryInterceptor(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
		defer func() {
			if p := recover(); p != nil {
				log.Error("rpc panic",
					zap.String("method", info.FullMethod),
					zap.Any("panic", p),
					zap.ByteString("stack", debug.Stack()),
				)
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}

// LoggingInterceptor assigns a correlation id and logs one line per call.
func LoggingInterceptor(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		cid := ""
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if vals := md.Get(correlationIDKey); len(vals) > 0 {
				cid = vals[0]
			}
		}
		if cid == "" || len(cid) > 128 {
			cid = uuid.NewString()
		}
		ctx = security.WithCorrelationID(ctx, cid)
		_ = grpc.SetHeader(ctx, metadata.Pairs(correlationIDKey, cid))

		start := time.Now()
		resp, err := handler(ctx, req)
		logger.WithContext(ctx, log).Info("grpc_request",
			zap.String("cid", cid),
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("duration", time.Since(start)),
		)
		return resp, err
	}
}

// AuthInterceptor authenticates the bearer token in the authorization
// metadata and enforces MethodScopes.
func AuthInterceptor(v *auth.JWTValidator) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "unauthorized")
		}
		vals := md.Get("authorization")
		if len(vals) == 0 {
			return nil, status.Error(codes.Unauthenticated, "unauthorized")
		}
		tok, ok := auth.BearerToken(vals[0])
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "unauthorized")
		}
		ai, err := v.AuthInfo(tok)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "unauthorized")
		}

		scope, known := MethodScopes[info.FullMethod]
		if known && !ai.HasScope(scope) {
			return nil, status.Error(codes.PermissionDenied, "forbidden")
		}
		return handler(auth.WithAuthInfo(ctx, ai), req)
	}
}

// AuditInterceptor records state-changing calls on the audit chain. It must
// run after AuthInterceptor so the actor is known.
func AuditInterceptor(a Auditor) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if info.FullMethod == GetVoucherMethod {
			return handler(ctx, req)
		}

		start := time.Now()
		resp, err := handler(ctx, req)

		ev := audit.Event{
			CorrelationID: security.CorrelationIDFromContext(ctx),
			Method:        "GRPC",
			Path:          info.FullMethod,
			Status:        int(status.Code(err)),
			DurationMS:    time.Since(start).Milliseconds(),
		}
		if actor, ok := auth.ActorFromContext(ctx); ok {
			ev.UserID = actor.UserID
			ev.BranchID = actor.BranchID
		}
		a.Record(ev)
		return resp, err
	}
}

// ServerOptions returns the interceptor chain used by the ledger gRPC server.
func ServerOptions(log *zap.Logger, v *auth.JWTValidator, a Auditor) []grpc.ServerOption {
	chain := []grpc.UnaryServerInterceptor{
		RecoveryInterceptor(log),
		LoggingInterceptor(log),
		AuthInterceptor(v),
	}
	if a != nil {
		chain = append(chain, AuditInterceptor(a))
	}
	return []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(chain...),
		grpc.MaxRecvMsgSize(1 << 20),
		grpc.MaxSendMsgSize(1 << 20),
	}
}
