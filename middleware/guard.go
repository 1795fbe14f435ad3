package middleware

import (
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/zengzjie/food-delivery-sass/auth"
)

// Option customizes a gate adapter.
type Option func(*options)

type options struct {
	resolve     OperationResolver
	cookieName  string
	graphQLOK   bool
	trustedHops bool
}

func defaultOptions(engine *auth.Engine) options {
	o := options{resolve: GraphQLOperations}
	if engine != nil {
		o.cookieName = engine.Config().Cookie.AccessName
	}
	return o
}

// WithOperationResolver overrides how the operation names are read.
func WithOperationResolver(fn OperationResolver) Option {
	return func(o *options) { o.resolve = fn }
}

// WithAccessCookie overrides the cookie consulted when no Authorization
// header is present. An empty name disables the fallback.
func WithAccessCookie(name string) Option {
	return func(o *options) { o.cookieName = name }
}

// WithGraphQLStatusOK answers rejections with HTTP 200 and the error in the
// GraphQL errors array, as GraphQL servers conventionally do.
func WithGraphQLStatusOK() Option {
	return func(o *options) { o.graphQLOK = true }
}

// WithForwardedFor takes the client IP from X-Forwarded-For. Use it only
// behind a proxy that sets the header.
func WithForwardedFor() Option {
	return func(o *options) { o.trustedHops = true }
}

// Gate authorizes every request through engine before calling next.
func Gate(engine *auth.Engine, opts ...Option) func(http.Handler) http.Handler {
	o := defaultOptions(engine)
	for _, opt := range opts {
		opt(&o)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				WriteError(w, auth.ErrEngineNotReady, o.graphQLOK)
				return
			}

			ctx := auth.WithClientIP(r.Context(), clientIP(r, o.trustedHops))
			ctx, out := engine.AuthorizeContext(ctx, auth.Operation{
				Fields: o.resolve(r),
				Token:  TokenFromRequest(r, o.cookieName),
			})
			if !out.Allowed() {
				WriteError(w, out.Err, o.graphQLOK)
				return
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type errorExtensions struct {
	Code auth.Code `json:"code"`
}

type graphQLError struct {
	Message    string          `json:"message"`
	Extensions errorExtensions `json:"extensions"`
}

type errorBody struct {
	Errors []graphQLError `json:"errors"`
	Data   any            `json:"data"`
}

// WriteError writes err as a GraphQL error response carrying its code in
// errors[0].extensions.code.
func WriteError(w http.ResponseWriter, err error, statusOK bool) {
	ae := auth.AsError(err)
	status := ae.HTTPStatus()
	if statusOK {
		status = http.StatusOK
	}

	w.Header().Set("Content-Type", "application/json")
	if d, ok := auth.RetryAfter(err); ok {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(d.Seconds()))))
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{
		Errors: []graphQLError{{Message: ae.Message, Extensions: errorExtensions{Code: ae.Code}}},
	})
}

func clientIP(r *http.Request, forwarded bool) string {
	if forwarded {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
