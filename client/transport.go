package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/zengzjie/food-delivery-sass/auth"
)

// IdempotencyKeyHeader is attached to every non-GET/HEAD request so a
// replayed mutation can be deduplicated by the server.
const IdempotencyKeyHeader = "Idempotency-Key"

// maxInspectBody bounds how much of a response body is buffered to look for
// a GraphQL error code.
const maxInspectBody = 1 << 20

// Transport replays a request once after a successful refresh. Use it with
// an http.Client that has no Jar of its own; the transport manages cookies.
type Transport struct {
	Base        http.RoundTripper
	Jar         http.CookieJar
	Credentials *CookieCredentials
	Coordinator *Coordinator
}

// New wires a cookie jar, credentials, refresher, coordinator and transport
// for one GraphQL endpoint. Close the returned coordinator when done.
func New(endpoint string, base http.RoundTripper, opts ...CoordinatorOption) (*http.Client, *Coordinator, error) {
	origin, err := url.Parse(endpoint)
	if err != nil {
		return nil, nil, err
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, nil, err
	}
	if base == nil {
		base = http.DefaultTransport
	}
	creds := NewCookieCredentials(jar, origin)
	refresher := &GraphQLRefresher{
		Endpoint:    endpoint,
		Client:      &http.Client{Transport: base, Jar: jar},
		Credentials: creds,
	}
	coord := NewCoordinator(refresher, creds, opts...)
	t := &Transport{Base: base, Jar: jar, Credentials: creds, Coordinator: coord}
	return &http.Client{Transport: t}, coord, nil
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	body, err := snapshotBody(req)
	if err != nil {
		return nil, err
	}
	key := req.Header.Get(IdempotencyKeyHeader)
	if key == "" && req.Method != http.MethodGet && req.Method != http.MethodHead {
		key = uuid.NewString()
	}

	generation := t.Coordinator.Generation()
	resp, err := t.send(req, body, key)
	if err != nil {
		return nil, err
	}
	if !retryable(resp) {
		return resp, nil
	}

	if err := t.Coordinator.Await(req.Context(), generation); err != nil {
		if errors.Is(err, ErrNotAuthenticated) {
			return resp, nil
		}
		resp.Body.Close()
		return nil, err
	}
	resp.Body.Close()
	return t.send(req, body, key)
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// send issues one attempt with the jar's current cookies.
func (t *Transport) send(req *http.Request, body []byte, key string) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.Header.Del("Cookie")
	if key != "" {
		out.Header.Set(IdempotencyKeyHeader, key)
	}
	if body != nil {
		out.Body = io.NopCloser(bytes.NewReader(body))
		out.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
		out.ContentLength = int64(len(body))
	}

	accessName := DefaultAccessCookie
	if t.Credentials != nil {
		accessName = t.Credentials.AccessName
	}
	for _, ck := range t.Jar.Cookies(req.URL) {
		out.AddCookie(ck)
		if ck.Name == accessName && ck.Value != "" {
			out.Header.Set("Authorization", "Bearer "+ck.Value)
		}
	}

	resp, err := t.base().RoundTrip(out)
	if err != nil {
		return nil, err
	}
	if cookies := resp.Cookies(); len(cookies) > 0 {
		t.Jar.SetCookies(req.URL, cookies)
	}
	return resp, nil
}

func snapshotBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	defer req.Body.Close()
	return io.ReadAll(req.Body)
}

// retryable reports whether resp signals a missing or expired access token.
// The body is restored for the caller.
func retryable(resp *http.Response) bool {
	code, found := ResponseCode(resp)
	if resp.StatusCode == http.StatusUnauthorized && !found {
		return true
	}
	return code == auth.CodeUnauthenticated || code == auth.CodeTokenExpired
}

// ResponseCode extracts the first auth failure code from a GraphQL error
// body. The body is left readable.
func ResponseCode(resp *http.Response) (auth.Code, bool) {
	if resp.Body == nil || !strings.Contains(resp.Header.Get("Content-Type"), "json") {
		return "", false
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxInspectBody))
	rest := resp.Body
	resp.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(raw), rest), rest}
	if err != nil {
		return "", false
	}

	var payload struct {
		Errors []gqlError `json:"errors"`
	}
	if json.Unmarshal(raw, &payload) != nil {
		return "", false
	}
	for _, e := range payload.Errors {
		if c := auth.Code(e.Extensions.Code); c.IsAuthFailure() {
			return c, true
		}
	}
	return "", false
}
