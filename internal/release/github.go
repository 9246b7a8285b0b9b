package release

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// ErrAssetTooLarge is returned when an asset body exceeds the download limit.
var ErrAssetTooLarge = errors.New("asset_too_large")

type (
	// AssetClient downloads release assets from GitHub.
	AssetClient struct {
		httpClient *http.Client
		baseURL    string
		token      string
		userAgent  string
	}

	// ClientOption configures an AssetClient during construction.
	ClientOption func(*AssetClient)
)

// WithHTTPClient sets the HTTP client used for downloads.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(a *AssetClient) {
		if c != nil {
			a.httpClient = c
		}
	}
}

// WithBaseURL overrides the GitHub API base URL. The token is only sent to
// this host (and github.com when the base is api.github.com).
func WithBaseURL(base string) ClientOption {
	return func(a *AssetClient) {
		if base = strings.TrimRight(strings.TrimSpace(base), "/"); base != "" {
			a.baseURL = base
		}
	}
}

// WithToken sets a GitHub token for private repository assets.
func WithToken(token string) ClientOption {
	return func(a *AssetClient) {
		a.token = strings.TrimSpace(token)
	}
}

func WithUserAgent(ua string) ClientOption {
	return func(a *AssetClient) {
		a.userAgent = ua
	}
}

func NewAssetClient(opts ...ClientOption) *AssetClient {
	c := &AssetClient{
		httpClient: http.DefaultClient,
		baseURL:    "https://api.github.com",
		userAgent:  "packhub",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Download fetches assetURL, reading at most limit bytes.
func (c *AssetClient) Download(ctx context.Context, assetURL string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, assetURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/octet-stream")
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" && isGitHubHost(req.URL, c.baseURL) {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading asset %s: %w", redactURL(assetURL), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("downloading asset %s: unexpected status %d", redactURL(assetURL), resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("downloading asset %s: %w", redactURL(assetURL), err)
	}
	if int64(len(body)) > limit {
		return nil, ErrAssetTooLarge
	}
	return body, nil
}

func isGitHubHost(reqURL *url.URL, baseURL string) bool {
	base, err := url.Parse(baseURL)
	if err != nil {
		return false
	}
	if strings.EqualFold(reqURL.Host, base.Host) {
		return true
	}
	return strings.EqualFold(base.Host, "api.github.com") && strings.EqualFold(reqURL.Host, "github.com")
}

// redactURL strips the query and fragment, which may carry signed tokens.
func redactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid-url>"
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
