package api

import (
	"context"
	"net/http"
	"net/url"
)

// VerifiedUser is the user block of a successful /verify.
type VerifiedUser struct {
	Username string `json:"username"`
	UserID   int64  `json:"user_id"`
	Role     string `json:"role"`
}

// Verification is the /verify response.
type Verification struct {
	Valid bool          `json:"valid"`
	User  *VerifiedUser `json:"user,omitempty"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

// Login exchanges credentials for an access token. A 401 means bad credentials.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	resp, err := c.Do(ctx, Request{
		Method:    http.MethodPost,
		Path:      "/login_react",
		Query:     url.Values{"username": {username}, "password": {password}},
		Body:      struct{}{},
		Endpoint:  "login",
		Fallback:  MsgLoginFailed,
		Anonymous: true,
	})
	if err != nil {
		if IsUnauthorized(err) {
			return "", &Error{Status: http.StatusUnauthorized, Endpoint: "login", Message: MsgLoginInvalid}
		}
		return "", err
	}

	var tok tokenResponse
	if err := decode(resp, "login", &tok); err != nil {
		return "", err
	}
	if tok.AccessToken == "" {
		return "", &Error{Status: resp.StatusCode, Endpoint: "login", Message: MsgLoginFailed}
	}
	return tok.AccessToken, nil
}

// Verify asks the backend whether token is still valid.
func (c *Client) Verify(ctx context.Context, token string) (*Verification, error) {
	resp, err := c.Do(ctx, Request{
		Method:   http.MethodPost,
		Path:     "/verify",
		Body:     tokenResponse{AccessToken: token},
		Endpoint: "verify",
		Fallback: MsgVerifyFailed,
	})
	if err != nil {
		return nil, err
	}
	var v Verification
	if err := decode(resp, "verify", &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// Refresh issues a new access token for the current session.
func (c *Client) Refresh(ctx context.Context) (string, error) {
	resp, err := c.Do(ctx, Request{
		Method:   http.MethodPost,
		Path:     "/refresh",
		Endpoint: "refresh",
		Fallback: MsgRefreshFailed,
	})
	if err != nil {
		return "", err
	}
	var tok tokenResponse
	if err := decode(resp, "refresh", &tok); err != nil {
		return "", err
	}
	if tok.AccessToken == "" {
		return "", &Error{Status: resp.StatusCode, Endpoint: "refresh", Message: MsgRefreshFailed}
	}
	return tok.AccessToken, nil
}
