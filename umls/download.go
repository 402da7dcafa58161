package umls

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/onc-healthit/onc-certification-g10-test-kit-sub001/pkg/logger"
)

// Defaults for the UTS download.
const (
	DefaultAuthURL      = "https://utslogin.nlm.nih.gov/cas/v1/api-key"
	DefaultTimeout      = 2 * time.Hour
	DefaultMaxRedirects = 10
	DefaultRequestRate  = 5 // requests per second
	ReleaseFile         = "umls.zip"
)

// ErrAuthentication is returned when the ticket exchange is refused.
var ErrAuthentication = errors.New("UTS authentication failed")

// DownloaderConfig configures a Downloader.
type DownloaderConfig struct {
	APIKey     string
	ReleaseURL string
	AuthURL    string

	// Timeout bounds every request including the release download.
	Timeout      time.Duration
	MaxRedirects int

	// RequestRate limits requests per second to UTS.
	RequestRate float64
	RetryMax    int
}

// Downloader fetches a UMLS release through the UTS ticket exchange:
// API key to ticket granting ticket, ticket granting ticket to a single
// use service ticket, then a redirecting GET of the release URL.
type Downloader struct {
	cfg     DownloaderConfig
	client  *retryablehttp.Client
	limiter *rate.Limiter
	log     zerolog.Logger
}

// NewDownloader creates a downloader.
func NewDownloader(cfg DownloaderConfig, log zerolog.Logger) (*Downloader, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: no API key", ErrAuthentication)
	}
	if cfg.ReleaseURL == "" {
		return nil, errors.New("no release URL")
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = DefaultAuthURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = DefaultMaxRedirects
	}
	if cfg.RequestRate <= 0 {
		cfg.RequestRate = DefaultRequestRate
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	maxRedirects := cfg.MaxRedirects
	client := retryablehttp.NewClient()
	client.RetryMax = cfg.RetryMax
	client.Logger = logger.HTTPLogger{Log: log}
	client.HTTPClient = &http.Client{
		Jar:     jar,
		Timeout: cfg.Timeout,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) > maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}

	return &Downloader{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestRate), 1),
		log:     log,
	}, nil
}

// Download writes the release archive to dir and returns its path. The
// file appears only once the transfer completed.
func (d *Downloader) Download(ctx context.Context, dir string) (string, error) {
	tgt, err := d.grantingTicket(ctx)
	if err != nil {
		return "", err
	}
	st, err := d.serviceTicket(ctx, tgt)
	if err != nil {
		return "", err
	}

	u, err := url.Parse(d.cfg.ReleaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid release URL: %w", err)
	}
	q := u.Query()
	q.Set("ticket", st)
	u.RawQuery = q.Encode()

	resp, err := d.do(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("download release: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download release: unexpected status %d", resp.StatusCode)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	target := filepath.Join(dir, ReleaseFile)
	tmp := target + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return "", err
	}

	d.log.Info().Str("url", d.cfg.ReleaseURL).Int64("bytes", resp.ContentLength).Msg("downloading UMLS release")
	n, err := io.Copy(f, &progressReader{r: resp.Body, log: d.log, every: 256 << 20})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("download release: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return "", err
	}
	d.log.Info().Str("path", target).Int64("bytes", n).Msg("UMLS release downloaded")
	return target, nil
}

var formAction = regexp.MustCompile(`action="([^"]+)"`)

// grantingTicket exchanges the API key for a ticket granting ticket URL.
func (d *Downloader) grantingTicket(ctx context.Context) (string, error) {
	form := url.Values{"apikey": {d.cfg.APIKey}}
	resp, err := d.do(ctx, http.MethodPost, d.cfg.AuthURL, form)
	if err != nil {
		return "", fmt.Errorf("request ticket granting ticket: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrAuthentication, resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "" {
		return loc, nil
	}
	if m := formAction.FindSubmatch(body); m != nil {
		return string(m[1]), nil
	}
	return "", fmt.Errorf("%w: no ticket granting ticket in response", ErrAuthentication)
}

// serviceTicket obtains a single use ticket for the release URL.
func (d *Downloader) serviceTicket(ctx context.Context, tgt string) (string, error) {
	form := url.Values{"service": {d.cfg.ReleaseURL}}
	resp, err := d.do(ctx, http.MethodPost, tgt, form)
	if err != nil {
		return "", fmt.Errorf("request service ticket: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: service ticket status %d", ErrAuthentication, resp.StatusCode)
	}
	ticket := strings.TrimSpace(string(body))
	if ticket == "" {
		return "", fmt.Errorf("%w: empty service ticket", ErrAuthentication)
	}
	return ticket, nil
}

func (d *Downloader) do(ctx context.Context, method, target string, form url.Values) (*http.Response, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	var body interface{}
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	return d.client.Do(req)
}

// progressReader logs every `every` bytes read.
type progressReader struct {
	r     io.Reader
	log   zerolog.Logger
	every int64
	n     int64
	next  int64
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.n += int64(n)
	if p.every > 0 && p.n >= p.next+p.every {
		p.next = p.n - p.n%p.every
		p.log.Info().Int64("bytes", p.n).Msg("download progress")
	}
	return n, err
}
