package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/zengzjie/food-delivery-sass/auth"
)

func TestGinGate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := newGateEngine(t)

	router := gin.New()
	router.Use(GinGate(engine))
	router.POST("/graphql", func(c *gin.Context) {
		id, ok := GinIdentity(c)
		if !ok {
			c.String(http.StatusOK, "anonymous")
			return
		}
		c.String(http.StatusOK, id.SubjectID)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, newGraphQLRequest(t, `{ getUserDetail { id } }`, ""))
	if rec.Code != http.StatusUnauthorized || decodeCode(t, rec) != auth.CodeUnauthenticated {
		t.Fatalf("anonymous protected: %d %s", rec.Code, rec.Body.String())
	}

	pair, err := engine.Login(context.Background(), "alice@example.com", "secret-pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, newGraphQLRequest(t, `{ getUserDetail { id } }`, pair.AccessToken))
	if rec.Code != http.StatusOK || rec.Body.String() != "u-1" {
		t.Fatalf("authorized: %d %s", rec.Code, rec.Body.String())
	}
}
