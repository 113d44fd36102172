package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/desertthunder/plexproxy/internal/shared"
)

const (
	defaultPlexBaseURL = "http://127.0.0.1:32400"
	defaultProduct     = "plexproxy"
	productVersion     = "0.3.0"
)

// Upstream issues authenticated requests against the media server.
//
// The token is attached to every request here and nowhere else.
type Upstream struct {
	baseURL  string
	token    string
	clientID string
	product  string
	client   HTTPDoer
}

// UpstreamOpts configures [NewUpstream].
type UpstreamOpts struct {
	BaseURL          string
	Token            string
	ClientIdentifier string
	Product          string
	Client           HTTPDoer
}

// NewUpstream creates an [Upstream] client.
func NewUpstream(opts UpstreamOpts) *Upstream {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultPlexBaseURL
	}
	if opts.Product == "" {
		opts.Product = defaultProduct
	}
	if opts.ClientIdentifier == "" {
		opts.ClientIdentifier = opts.Product
	}
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}

	return &Upstream{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		token:    opts.Token,
		clientID: opts.ClientIdentifier,
		product:  opts.Product,
		client:   opts.Client,
	}
}

// NewHTTPClient returns a client suited for long-lived streams.
//
// There is no overall timeout; headerTimeout bounds the wait for response headers only.
func NewHTTPClient(headerTimeout time.Duration) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: headerTimeout,
			MaxIdleConns:          64,
			MaxIdleConnsPerHost:   32,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
		},
	}
}

func (u *Upstream) newRequest(ctx context.Context, path string, header http.Header) (*http.Request, error) {
	if !strings.HasPrefix(path, "/") {
		return nil, fmt.Errorf("%w: upstream path must be relative to the server root", shared.ErrInvalidInput)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	req.Header.Set("X-Plex-Token", u.token)
	req.Header.Set("X-Plex-Client-Identifier", u.clientID)
	req.Header.Set("X-Plex-Product", u.product)
	req.Header.Set("X-Plex-Version", productVersion)
	req.Header.Set("X-Plex-Platform", runtime.GOOS)
	return req, nil
}

// Open performs a GET for path and returns the response with its body unread.
//
// Any upstream status is returned as a response; only transport failures are errors.
// Compression is disabled so the body reaches the caller byte-for-byte.
func (u *Upstream) Open(ctx context.Context, path string, header http.Header) (*http.Response, error) {
	req, err := u.newRequest(ctx, path, header)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept-Encoding", "identity")

	resp, err := u.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", shared.ErrUpstreamUnavailable, err)
	}
	return resp, nil
}

// getJSON decodes the JSON document at path into out.
//
// Non-2xx responses become [*StatusError]; bodies that fail to decode are reported as
// [shared.ErrLocatorNotFound] since callers treat malformed metadata as missing.
func (u *Upstream) getJSON(ctx context.Context, path string, out any) error {
	req, err := u.newRequest(ctx, path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := u.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v", shared.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, Path: path}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: failed to decode %s: %v", shared.ErrLocatorNotFound, path, err)
	}
	return nil
}
