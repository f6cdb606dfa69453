package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/example/ec-storefront-client/internal/session"
	"go.uber.org/zap"
)

// State is the refresh state of a Client.
type State int

const (
	StateIdle State = iota
	StateRefreshing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRefreshing:
		return "refreshing"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// State returns the current refresh state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Pending returns how many requests are waiting on the in-flight refresh.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.len()
}

// recoverUnauthorized handles a 401 on a protected request that has not
// been retried yet. Only one refresh runs at a time; everyone else waits in
// the queue and is replayed with the new token once it lands.
func (c *Client) recoverUnauthorized(ctx context.Context, req *Request) ([]byte, error) {
	req.retried = true

	c.mu.Lock()
	if c.state == StateRefreshing {
		w := newWaiter()
		if !c.queue.push(w) {
			c.mu.Unlock()
			c.logger.Warn("refresh queue full, rejecting request",
				zap.String("method", req.Method),
				zap.String("path", req.Path),
			)
			return nil, ErrQueueOverflow
		}
		c.mu.Unlock()

		select {
		case res := <-w.ch:
			if res.err != nil {
				return nil, res.err
			}
			return c.replay(ctx, req, res.token)
		case <-ctx.Done():
			// Free the slot; once drained the result lands in the buffer.
			c.mu.Lock()
			c.queue.remove(w)
			c.mu.Unlock()
			return nil, ctx.Err()
		}
	}
	c.state = StateRefreshing
	c.mu.Unlock()

	c.logger.Debug("access token rejected, refreshing", zap.String("path", req.Path))

	// One caller giving up must not log out every queued request.
	tokens, err := c.refresh(context.WithoutCancel(ctx))

	c.mu.Lock()
	c.state = StateIdle
	waiters := c.queue.drain()
	onLogout := c.onLogout
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("token refresh failed, logging out",
			zap.Error(err),
			zap.Int("queued", len(waiters)),
		)
		for _, w := range waiters {
			w.ch <- refreshResult{err: ErrRefreshFailed}
		}
		if clearErr := c.tokens.Clear(context.WithoutCancel(ctx)); clearErr != nil {
			c.logger.Error("failed to clear tokens", zap.Error(clearErr))
		}
		if onLogout != nil {
			onLogout()
		}
		return nil, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	c.logger.Debug("token refreshed", zap.Int("replaying", len(waiters)))
	for _, w := range waiters {
		w.ch <- refreshResult{token: tokens.AccessToken}
	}
	return c.replay(ctx, req, tokens.AccessToken)
}

// refresh exchanges the stored refresh token for a new pair and persists it
// before anyone is replayed.
func (c *Client) refresh(ctx context.Context) (session.Tokens, error) {
	refreshToken, err := c.tokens.RefreshToken(ctx)
	if err != nil {
		return session.Tokens{}, err
	}
	if refreshToken == "" {
		return session.Tokens{}, ErrNoRefreshToken
	}

	req := &Request{
		Method: http.MethodPost,
		Path:   "/auth/refresh",
		Body:   map[string]string{"refresh_token": refreshToken},
	}
	status, body, err := c.roundTrip(ctx, req)
	if err != nil {
		return session.Tokens{}, err
	}
	if status >= 400 {
		return session.Tokens{}, newAPIError(status, body)
	}

	var tokens session.Tokens
	if err := json.Unmarshal(body, &tokens); err != nil {
		return session.Tokens{}, fmt.Errorf("failed to decode refresh response: %w", err)
	}
	if tokens.AccessToken == "" {
		return session.Tokens{}, fmt.Errorf("refresh response has no access token")
	}
	if err := c.tokens.SetTokens(ctx, tokens); err != nil {
		return session.Tokens{}, err
	}
	return tokens, nil
}

// replay sends req once more with token. A second 401 is final.
func (c *Client) replay(ctx context.Context, req *Request, token string) ([]byte, error) {
	req.bearer = token
	return c.send(ctx, req)
}
