package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zengzjie/food-delivery-sass/auth"
)

// IdentityKey is the gin context key holding the *auth.Identity.
const IdentityKey = "auth.identity"

// GinGate is [Gate] for gin routers. The identity is stored both in the
// request context and under [IdentityKey].
func GinGate(engine *auth.Engine, opts ...Option) gin.HandlerFunc {
	o := defaultOptions(engine)
	for _, opt := range opts {
		opt(&o)
	}

	return func(c *gin.Context) {
		if engine == nil {
			abortWithError(c, auth.ErrEngineNotReady, o.graphQLOK)
			return
		}

		ctx := auth.WithClientIP(c.Request.Context(), c.ClientIP())
		ctx, out := engine.AuthorizeContext(ctx, auth.Operation{
			Fields: o.resolve(c.Request),
			Token:  TokenFromRequest(c.Request, o.cookieName),
		})
		if !out.Allowed() {
			abortWithError(c, out.Err, o.graphQLOK)
			return
		}

		c.Request = c.Request.WithContext(ctx)
		if out.Identity != nil {
			c.Set(IdentityKey, out.Identity)
		}
		c.Next()
	}
}

func abortWithError(c *gin.Context, err error, statusOK bool) {
	ae := auth.AsError(err)
	status := ae.HTTPStatus()
	if statusOK {
		status = http.StatusOK
	}
	c.AbortWithStatusJSON(status, errorBody{
		Errors: []graphQLError{{Message: ae.Message, Extensions: errorExtensions{Code: ae.Code}}},
	})
}

// GinIdentity returns the identity attached by [GinGate].
func GinIdentity(c *gin.Context) (*auth.Identity, bool) {
	v, ok := c.Get(IdentityKey)
	if !ok {
		return nil, false
	}
	id, ok := v.(*auth.Identity)
	return id, ok && id != nil
}
