// Package canvas is a small client of the Canvas LMS REST API.
package canvas

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"
	"golang.org/x/time/rate"

	"github.com/NickGuerrero/cti-sys/core"
	"github.com/NickGuerrero/cti-sys/core/activity"
)

var (
	ErrMissingToken = errors.New("missing Canvas API configuration (access token)")
	ErrUnauthorized = errors.New("canvas rejected the access token: check that it is set correctly and has not expired")
)

type Client struct {
	baseURL string
	token   string
	rest    *rest.Client
	limiter *rate.Limiter
}

var _ activity.LMSClient = (*Client)(nil)

// NewClient returns a client configured from conf.Canvas.
func NewClient(conf *core.Config) *Client {
	return New(conf.Canvas.BaseURL, conf.Canvas.AccessToken, conf.Canvas.Timeout, conf.Canvas.RequestsPerSecond)
}

// New returns a client of the Canvas instance at baseURL.
// requestsPerSecond <= 0 disables rate limiting.
func New(baseURL, token string, timeout time.Duration, requestsPerSecond float64) *Client {
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		rest:    &rest.Client{HTTPClient: &http.Client{Timeout: timeout}},
		limiter: rate.NewLimiter(limit, 1),
	}
}

type user struct {
	ID        int     `json:"id"`
	LastLogin *string `json:"last_login"`
}

// LastLogin returns when the Canvas user last logged in.
// It returns nil when the user does not exist or never logged in.
func (c *Client) LastLogin(ctx context.Context, canvasID int) (*time.Time, error) {
	if c.token == "" {
		return nil, ErrMissingToken
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "waiting for canvas rate limiter")
	}

	req, err := rest.BuildRequestObject(rest.Request{
		Method:  rest.Get,
		BaseURL: fmt.Sprintf("%s/api/v1/users/%d", c.baseURL, canvasID),
		Headers: map[string]string{
			"Authorization": "Bearer " + c.token,
			"Accept":        "application/json",
		},
		QueryParams: map[string]string{"include[]": "last_login"},
	})
	if err != nil {
		return nil, errors.Wrap(err, "building canvas request")
	}
	httpRes, err := c.rest.MakeRequest(req.WithContext(ctx))
	if err != nil {
		return nil, errors.Wrap(err, "requesting canvas user")
	}
	res, err := rest.BuildResponse(httpRes)
	if err != nil {
		return nil, errors.Wrap(err, "reading canvas response")
	}

	switch {
	case res.StatusCode == http.StatusNotFound:
		return nil, nil
	case res.StatusCode == http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case res.StatusCode >= http.StatusBadRequest:
		return nil, errors.Errorf("canvas user %d: unexpected status %d", canvasID, res.StatusCode)
	}

	var usr user
	if err = json.Unmarshal([]byte(res.Body), &usr); err != nil {
		return nil, errors.Wrap(err, "decoding canvas user")
	}
	if usr.LastLogin == nil || *usr.LastLogin == "" {
		return nil, nil
	}
	lastLogin, err := time.Parse(time.RFC3339, *usr.LastLogin)
	if err != nil {
		return nil, errors.Wrap(err, "parsing canvas last login")
	}
	return &lastLogin, nil
}
