// Package edl exchanges an Earthdata Login identity for temporary S3
// credentials issued by a DAAC credentials endpoint.
package edl

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrAuth is returned for any failed step of the credential exchange.
var ErrAuth = errors.New("earthdata authentication failed")

// DefaultTimeout bounds every HTTP call of the exchange.
const DefaultTimeout = 30 * time.Second

// Credentials are temporary S3 access credentials.
type Credentials struct {
	AccessKeyID     string `json:"accessKeyId"`
	SecretAccessKey string `json:"secretAccessKey"`
	SessionToken    string `json:"sessionToken"`
	Expiration      string `json:"expiration"`
}

// Client performs the redirect-based login handshake against a credentials
// endpoint.
type Client struct {
	logger zerolog.Logger
	// noRedirect returns 3xx responses to the caller.
	noRedirect *http.Client
	httpCli    *http.Client
}

// NewClient creates a new credentials client. Every HTTP call is bounded by
// timeout.
func NewClient(logger zerolog.Logger, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:    4,
		IdleConnTimeout: 30 * time.Second,
	}
	return &Client{
		logger: logger,
		noRedirect: &http.Client{
			Transport: transport,
			Timeout:   timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		httpCli: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
	}
}

// Credentials logs in to the credentials endpoint with the given identity and
// returns the temporary S3 credentials it issues:
//
//  1. GET the endpoint; it must redirect to the login service.
//  2. POST the base64 encoded "username:password" as the credentials form
//     field, with Origin set to the endpoint.
//  3. GET the redirect target to obtain the accessToken cookie.
//  4. GET the endpoint presenting the cookie; the body holds the credentials.
func (c *Client) Credentials(ctx context.Context, endpoint, username, password string) (*Credentials, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuth, err)
	}
	loginURL, err := c.redirect(c.noRedirect.Do(req))
	if err != nil {
		return nil, fmt.Errorf("%w: requesting %s: %w", ErrAuth, endpoint, err)
	}

	auth := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
	form := url.Values{"credentials": {auth}}
	req, err = http.NewRequestWithContext(ctx, http.MethodPost, loginURL.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuth, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Origin", endpoint)
	callbackURL, err := c.redirect(c.noRedirect.Do(req))
	if err != nil {
		return nil, fmt.Errorf("%w: logging in at %s: %w", ErrAuth, loginURL.Host, err)
	}

	req, err = http.NewRequestWithContext(ctx, http.MethodGet, callbackURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuth, err)
	}
	res, err := c.noRedirect.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: following login redirect: %w", ErrAuth, err)
	}
	drain(c.logger, res)
	if err := checkStatus(res); err != nil {
		return nil, fmt.Errorf("%w: following login redirect: %w", ErrAuth, err)
	}
	var token *http.Cookie
	for _, ck := range res.Cookies() {
		if ck.Name == "accessToken" {
			token = ck
		}
	}
	if token == nil {
		return nil, fmt.Errorf("%w: login did not set the accessToken cookie", ErrAuth)
	}

	req, err = http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuth, err)
	}
	req.AddCookie(&http.Cookie{Name: "accessToken", Value: token.Value})
	res, err = c.httpCli.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching credentials: %w", ErrAuth, err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		drain(c.logger, res)
		return nil, fmt.Errorf("%w: fetching credentials: unexpected status %d", ErrAuth, res.StatusCode)
	}
	var creds Credentials
	if err := json.NewDecoder(res.Body).Decode(&creds); err != nil {
		return nil, fmt.Errorf("%w: decoding credentials: %w", ErrAuth, err)
	}
	if creds.AccessKeyID == "" || creds.SecretAccessKey == "" || creds.SessionToken == "" {
		return nil, fmt.Errorf("%w: incomplete credentials in response", ErrAuth)
	}
	c.logger.Info().Str("endpoint", endpoint).Str("expiration", creds.Expiration).Msg("Retrieved temporary S3 access credentials")
	return &creds, nil
}

// redirect returns the location of a redirect response.
func (c *Client) redirect(res *http.Response, err error) (*url.URL, error) {
	if err != nil {
		return nil, err
	}
	drain(c.logger, res)
	if err := checkStatus(res); err != nil {
		return nil, err
	}
	if res.StatusCode < 300 || res.StatusCode > 399 {
		return nil, fmt.Errorf("expected a redirect, got status %d", res.StatusCode)
	}
	loc, err := res.Location()
	if err != nil {
		return nil, fmt.Errorf("redirect without location: %w", err)
	}
	return loc, nil
}

func checkStatus(res *http.Response) error {
	if res.StatusCode < 200 || res.StatusCode > 399 {
		return fmt.Errorf("unexpected status %d", res.StatusCode)
	}
	return nil
}

func drain(logger zerolog.Logger, res *http.Response) {
	if _, err := io.Copy(io.Discard, res.Body); err != nil {
		logger.Warn().Err(err).Msg("Failed to drain response body")
	}
	res.Body.Close()
}
