package middleware

import (
	"context"
	"net"
	"strings"

	"github.com/zengzjie/food-delivery-sass/auth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// CodeMetadataKey is the trailer key carrying the auth.Code of a rejection.
const CodeMetadataKey = "x-auth-code"

// MethodOperation maps "/pkg.Service/GetUserDetail" to "getUserDetail", the
// same casing as the GraphQL field names on the allow-list.
func MethodOperation(fullMethod string) string {
	i := strings.LastIndexByte(fullMethod, '/')
	name := fullMethod[i+1:]
	if name == "" {
		return ""
	}
	return strings.ToLower(name[:1]) + name[1:]
}

// UnaryServerInterceptor authorizes unary calls. The token is read from the
// "authorization" metadata ("Bearer <token>") or from "access_token".
func UnaryServerInterceptor(engine *auth.Engine) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if engine == nil {
			return nil, status.Error(codes.Internal, auth.ErrEngineNotReady.Message)
		}

		if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
			host, _, err := net.SplitHostPort(p.Addr.String())
			if err != nil {
				host = p.Addr.String()
			}
			ctx = auth.WithClientIP(ctx, host)
		}

		ctx, out := engine.AuthorizeContext(ctx, auth.Operation{
			Name:  MethodOperation(info.FullMethod),
			Token: tokenFromMetadata(ctx),
		})
		if !out.Allowed() {
			_ = grpc.SetTrailer(ctx, metadata.Pairs(CodeMetadataKey, string(out.Err.Code)))
			return nil, status.Error(grpcCode(out.Err.Code), out.Err.Message)
		}
		return handler(ctx, req)
	}
}

func tokenFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if vals := md.Get("authorization"); len(vals) > 0 {
		if token, ok := bearerToken(vals[0]); ok {
			return token
		}
	}
	if vals := md.Get("access_token"); len(vals) > 0 {
		return strings.TrimSpace(vals[0])
	}
	return ""
}

func grpcCode(c auth.Code) codes.Code {
	switch c {
	case auth.CodeForbidden:
		return codes.PermissionDenied
	case auth.CodeInternal:
		return codes.Internal
	case auth.CodeRateLimited:
		return codes.ResourceExhausted
	case auth.CodeBadRequest:
		return codes.InvalidArgument
	default:
		return codes.Unauthenticated
	}
}
