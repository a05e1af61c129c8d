package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/cleared-dev/invoicer/internal/model"
	"github.com/cleared-dev/invoicer/internal/session"
)

type signInRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type signInResponse struct {
	ID           string   `json:"id"`
	Username     string   `json:"username"`
	Email        string   `json:"email"`
	Roles        []string `json:"roles"`
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken"`
}

// SignIn exchanges credentials for a session.
func (c *Client) SignIn(ctx context.Context, username, password string) (session.Session, error) {
	var resp signInResponse
	req := signInRequest{Username: username, Password: password}
	if err := c.do(ctx, http.MethodPost, "/api/auth/signin", req, &resp, false); err != nil {
		return session.Session{}, fmt.Errorf("signing in: %w", err)
	}
	if resp.AccessToken == "" {
		return session.Session{}, fmt.Errorf("signing in: response has no access token")
	}
	return session.Session{
		User: model.User{
			ID:       resp.ID,
			Username: resp.Username,
			Email:    resp.Email,
			Roles:    resp.Roles,
		},
		Tokens: session.Tokens{Access: resp.AccessToken, Refresh: resp.RefreshToken},
	}, nil
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (c *Client) refresh(ctx context.Context, current session.Tokens) error {
	if current.Refresh == "" {
		return ErrUnauthorized
	}
	var next session.Tokens
	err := c.do(ctx, http.MethodPost, "/api/auth/refreshtoken", refreshRequest{RefreshToken: current.Refresh}, &next, false)
	if err != nil {
		var re *Error
		if errors.As(err, &re) && (re.Status == http.StatusUnauthorized || re.Status == http.StatusForbidden) {
			return fmt.Errorf("%w: %w", ErrUnauthorized, err)
		}
		return fmt.Errorf("refreshing token: %w", err)
	}
	if next.Refresh == "" {
		next.Refresh = current.Refresh
	}
	if err := c.tokenSource().SaveTokens(ctx, next); err != nil {
		return fmt.Errorf("storing refreshed token: %w", err)
	}
	c.log.Debug().Msg("remote: access token refreshed")
	return nil
}
