// Package registry fetches FHIR terminology packages from a package
// registry and writes the resources of interest to a working directory.
//
// The FHIR Package Registry (https://packages.fhir.org) serves each
// package version as a gzip-compressed tar archive. Fetch streams that
// archive, keeps the CodeSystem, ValueSet and StructureDefinition entries
// that carry a canonical URL, and writes each one to a file named by the
// SHA-256 of that URL.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	"github.com/onc-healthit/onc-certification-g10-test-kit-sub001/pkg/logger"
)

const (
	// DefaultRegistryURL is the primary FHIR package registry.
	DefaultRegistryURL = "https://packages.fhir.org"

	// DefaultTimeout for HTTP requests.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxRedirects bounds redirect following on downloads.
	DefaultMaxRedirects = 5

	// DefaultRetryMax is the number of retries on transient failures.
	DefaultRetryMax = 3

	// VersionLatest represents the "latest" version tag.
	VersionLatest = "latest"
)

// ErrPackageNotFound is returned when the registry has no such package or version.
var ErrPackageNotFound = errors.New("package not found")

// Client is a FHIR Package Registry client.
type Client struct {
	http         *retryablehttp.Client
	base         *http.Client
	registryURL  string
	timeout      time.Duration
	maxRedirects int
	retryMax     int
	log          zerolog.Logger
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithRegistryURL sets a custom registry URL.
func WithRegistryURL(url string) ClientOption {
	return func(c *Client) {
		c.registryURL = strings.TrimRight(url, "/")
	}
}

// WithHTTPClient sets the underlying HTTP client. The registry client works
// on a copy whose Timeout and CheckRedirect come from its own settings;
// client itself is not modified.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.base = client
	}
}

// WithTimeout sets the HTTP timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithMaxRedirects limits how many redirects a request may follow.
func WithMaxRedirects(n int) ClientOption {
	return func(c *Client) {
		c.maxRedirects = n
	}
}

// WithRetryMax sets how often transient failures are retried.
func WithRetryMax(n int) ClientOption {
	return func(c *Client) {
		c.retryMax = n
	}
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.log = log
	}
}

// NewClient creates a new registry client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		registryURL:  DefaultRegistryURL,
		timeout:      DefaultTimeout,
		maxRedirects: DefaultMaxRedirects,
		retryMax:     DefaultRetryMax,
		log:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	base := &http.Client{}
	if c.base != nil {
		*base = *c.base
	}
	c.base = base
	c.base.Timeout = c.timeout
	c.base.CheckRedirect = LimitRedirects(c.maxRedirects)

	c.http = retryablehttp.NewClient()
	c.http.HTTPClient = c.base
	c.http.RetryMax = c.retryMax
	c.http.RetryWaitMin = 500 * time.Millisecond
	c.http.RetryWaitMax = 10 * time.Second
	c.http.Logger = logger.HTTPLogger{Log: c.log}
	return c
}

// LimitRedirects returns a CheckRedirect function that stops after max hops.
func LimitRedirects(max int) func(*http.Request, []*http.Request) error {
	return func(_ *http.Request, via []*http.Request) error {
		if len(via) > max {
			return fmt.Errorf("stopped after %d redirects", max)
		}
		return nil
	}
}

// RegistryURL returns the registry base URL.
func (c *Client) RegistryURL() string { return c.registryURL }

// PackageInfo contains metadata about a package version.
type PackageInfo struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
	FHIRVersion string `json:"fhirVersion"`
	URL         string `json:"url"`
	Canonical   string `json:"canonical"`
}

// GetPackageInfo retrieves metadata about a package version. An empty
// version or "latest" resolves through the dist-tags.
func (c *Client) GetPackageInfo(ctx context.Context, name, version string) (*PackageInfo, error) {
	url := fmt.Sprintf("%s/%s", c.registryURL, name)

	resp, err := c.get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch package info: %w", err)
	}
	defer resp.Body.Close()

	var pkgInfo struct {
		Name        string            `json:"name"`
		Description string            `json:"description"`
		DistTags    map[string]string `json:"dist-tags"`
		Versions    map[string]struct {
			Version     string `json:"version"`
			FHIRVersion string `json:"fhirVersion"`
			URL         string `json:"url"`
			Canonical   string `json:"canonical"`
		} `json:"versions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&pkgInfo); err != nil {
		return nil, fmt.Errorf("failed to decode package info: %w", err)
	}

	resolvedVersion := version
	if version == VersionLatest || version == "" {
		latest, ok := pkgInfo.DistTags[VersionLatest]
		if !ok {
			return nil, fmt.Errorf("%w: no latest version for %s", ErrPackageNotFound, name)
		}
		resolvedVersion = latest
	}

	versionInfo, ok := pkgInfo.Versions[resolvedVersion]
	if !ok {
		return nil, fmt.Errorf("%w: version %s of %s", ErrPackageNotFound, resolvedVersion, name)
	}

	return &PackageInfo{
		Name:        pkgInfo.Name,
		Version:     resolvedVersion,
		Description: pkgInfo.Description,
		FHIRVersion: versionInfo.FHIRVersion,
		URL:         versionInfo.URL,
		Canonical:   versionInfo.Canonical,
	}, nil
}

// ResolveVersion turns "latest" or an empty version into a concrete one.
// Concrete versions are returned unchanged without a registry call.
func (c *Client) ResolveVersion(ctx context.Context, name, version string) (string, error) {
	if version != "" && version != VersionLatest {
		return version, nil
	}
	info, err := c.GetPackageInfo(ctx, name, VersionLatest)
	if err != nil {
		return "", err
	}
	return info.Version, nil
}

// Download opens the archive of ref. The caller closes the returned body.
func (c *Client) Download(ctx context.Context, ref PackageRef) (io.ReadCloser, error) {
	version, err := c.ResolveVersion(ctx, ref.Name, ref.Version)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/%s/%s", c.registryURL, ref.Name, version)

	c.log.Info().Str("package", ref.Name).Str("version", version).Str("url", url).Msg("downloading package")
	resp, err := c.get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to download package %s#%s: %w", ref.Name, version, err)
	}
	return resp.Body, nil
}

func (c *Client) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s", ErrPackageNotFound, url)
	case resp.StatusCode != http.StatusOK:
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	return resp, nil
}
