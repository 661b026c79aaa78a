// Package registry talks to the HTTP API of a Docker distribution (v2)
// registry: paginated catalog and tag listings, manifest metadata and
// manifest deletion.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/peterhellberg/link"

	"github.com/bnema/regreport/pkg/logger"
)

const (
	manifestV1MediaType = "application/vnd.docker.distribution.manifest.v1+json"
	manifestV2MediaType = "application/vnd.docker.distribution.manifest.v2+json"

	digestHeader = "Docker-Content-Digest"
)

// RegistryError reports a failed interaction with the registry. Path is the
// URL fragment that failed, StatusCode is zero for transport-level failures.
type RegistryError struct {
	Path       string
	StatusCode int
	Err        error
}

func (e *RegistryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("registry request %s failed with status %d", e.Path, e.StatusCode)
	}
	return fmt.Sprintf("registry request %s failed: %v", e.Path, e.Err)
}

func (e *RegistryError) Unwrap() error {
	return e.Err
}

// Client performs authenticated requests against a single registry host.
// Transient network errors are retried by the underlying retryable HTTP
// client, callers only ever see the final outcome.
type Client struct {
	host   string
	scheme string
	auth   string
	http   *retryablehttp.Client
}

// Option configures a Client.
type Option func(*Client)

// WithDockerConfig reads the Basic-Auth credential for the client's host
// from a Docker CLI config file instead of the default
// ~/.docker/config.json.
func WithDockerConfig(path string) Option {
	return func(c *Client) {
		c.auth = credentialFor(path, c.host)
	}
}

// WithInsecure switches to plain HTTP, for registries not served over TLS.
func WithInsecure() Option {
	return func(c *Client) {
		c.scheme = "http"
	}
}

// WithHTTPClient replaces the retryable HTTP client, mostly useful in tests.
func WithHTTPClient(hc *retryablehttp.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// NewClient builds a client for the given registry host (no scheme). The
// Basic-Auth credential is looked up in the Docker CLI config; anonymous
// access is used when none is configured.
func NewClient(host string, opts ...Option) *Client {
	hc := retryablehttp.NewClient()
	hc.RetryMax = 4
	hc.Logger = nil

	c := &Client{
		host:   host,
		scheme: "https",
		auth:   credentialFor(defaultDockerConfigPath(), host),
		http:   hc,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Host returns the registry host the client talks to.
func (c *Client) Host() string {
	return c.host
}

// request performs a single request against the registry. Any transport
// failure or non-2xx status is returned as a *RegistryError.
func (c *Client) request(ctx context.Context, method, pathPart, accept string) (*http.Response, error) {
	url := fmt.Sprintf("%s://%s%s", c.scheme, c.host, pathPart)
	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, &RegistryError{Path: pathPart, Err: err}
	}
	req.Header.Set("Accept", accept)
	if c.auth != "" {
		req.Header.Set("Authorization", "Basic "+c.auth)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &RegistryError{Path: pathPart, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return nil, &RegistryError{Path: pathPart, StatusCode: resp.StatusCode}
	}
	return resp, nil
}

// FetchAllPages performs a GET on pathPart and follows RFC5988 rel="next"
// links until the listing is exhausted. The raw page bodies are returned in
// fetch order.
func (c *Client) FetchAllPages(ctx context.Context, pathPart string) ([][]byte, error) {
	var pages [][]byte
	for {
		resp, err := c.request(ctx, http.MethodGet, pathPart, manifestV1MediaType)
		if err != nil {
			return nil, err
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, &RegistryError{Path: pathPart, Err: err}
		}
		pages = append(pages, body)

		next, ok := link.ParseResponse(resp)["next"]
		if !ok {
			return pages, nil
		}
		pathPart = next.URI
	}
}

// Tags returns all tags of an image, concatenated across pages in server
// order. Some storage backends answer 404 instead of an empty tag list for
// images without tags, so a 404 here means "no tags", not an error.
func (c *Client) Tags(ctx context.Context, image string) ([]string, error) {
	logger.Info("Fetching tags", "image", image)
	pathPart := fmt.Sprintf("/v2/%s/tags/list", image)
	pages, err := c.FetchAllPages(ctx, pathPart)
	if err != nil {
		if regErr, ok := err.(*RegistryError); ok && regErr.StatusCode == http.StatusNotFound {
			logger.Debug("Tag list returned 404, treating as empty", "image", image)
			return nil, nil
		}
		return nil, err
	}

	var tags []string
	for _, page := range pages {
		var payload struct {
			Tags []string `json:"tags"`
		}
		if err := json.Unmarshal(page, &payload); err != nil {
			return nil, &RegistryError{Path: pathPart, Err: err}
		}
		tags = append(tags, payload.Tags...)
	}
	return tags, nil
}

// dockerConfig is the subset of the Docker CLI config we care about.
type dockerConfig struct {
	Auths map[string]struct {
		Auth string `json:"auth"`
	} `json:"auths"`
}

func defaultDockerConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".docker", "config.json")
}

// credentialFor looks up the base64 Basic-Auth credential for a registry
// host in a Docker CLI config file. A missing or unreadable file means
// anonymous access; a malformed one is logged and skipped.
func credentialFor(path, host string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	var cfg dockerConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		logger.Warn("Could not read the Docker config file", "path", path, "error", err)
		return ""
	}
	if entry, ok := cfg.Auths[host]; ok {
		return entry.Auth
	}
	// Some Docker versions key the credential on the full URL.
	if entry, ok := cfg.Auths["https://"+host]; ok {
		return entry.Auth
	}
	return ""
}
