package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// RefreshMutation is the GraphQL document posted by [GraphQLRefresher].
const RefreshMutation = `mutation RefreshToken($refresh_token: String!) { refreshToken(refresh_token: $refresh_token) { success } }`

var (
	errNoRefreshToken = errors.New("client: no refresh token")
	errRefreshDenied  = errors.New("client: refresh not successful")
)

// GraphQLRefresher runs the RefreshToken mutation. The server answers with
// Set-Cookie headers for the new pair, which Client stores in its jar.
type GraphQLRefresher struct {
	Endpoint    string
	Client      *http.Client
	Credentials *CookieCredentials
}

type refreshRequest struct {
	Query         string            `json:"query"`
	OperationName string            `json:"operationName"`
	Variables     map[string]string `json:"variables"`
}

type refreshResponse struct {
	Data struct {
		RefreshToken *struct {
			Success bool `json:"success"`
		} `json:"refreshToken"`
	} `json:"data"`
	Errors []gqlError `json:"errors"`
}

type gqlError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

// Refresh implements [Refresher].
func (r *GraphQLRefresher) Refresh(ctx context.Context) error {
	token := r.Credentials.RefreshToken()
	if token == "" {
		return errNoRefreshToken
	}

	body, err := json.Marshal(refreshRequest{
		Query:         RefreshMutation,
		OperationName: "RefreshToken",
		Variables:     map[string]string{"refresh_token": token},
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	var out refreshResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("client: refresh response (status %d): %w", resp.StatusCode, err)
	}
	if len(out.Errors) > 0 {
		e := out.Errors[0]
		return fmt.Errorf("%w: %s: %s", errRefreshDenied, e.Extensions.Code, e.Message)
	}
	if out.Data.RefreshToken == nil || !out.Data.RefreshToken.Success {
		return errRefreshDenied
	}
	return nil
}
