package iana

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/onc-healthit/onc-certification-g10-test-kit-sub001/pkg/logger"
	"github.com/onc-healthit/onc-certification-g10-test-kit-sub001/terminology"
)

// Registry locations.
const (
	DefaultBaseURL      = "https://www.iana.org/assignments"
	LanguageRegistryDir = "language-subtag-registry"
	MediaTypesDir       = "media-types"

	// LanguageFile and the media type CSVs are written under the source
	// directory with these names.
	LanguageFile = "language-subtag-registry.txt"
)

// MediaTypeFile returns the local file name of a top level media type CSV.
func MediaTypeFile(topLevel string) string {
	return "media-types-" + topLevel + ".csv"
}

// Fetcher downloads the IANA registries.
type Fetcher struct {
	base    string
	client  *retryablehttp.Client
	limiter *rate.Limiter
	log     zerolog.Logger
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithBaseURL replaces the IANA assignments URL.
func WithBaseURL(u string) FetcherOption {
	return func(f *Fetcher) { f.base = strings.TrimRight(u, "/") }
}

// WithRateLimit sets the maximum requests per second.
func WithRateLimit(perSecond float64) FetcherOption {
	return func(f *Fetcher) { f.limiter = rate.NewLimiter(rate.Limit(perSecond), 1) }
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) FetcherOption {
	return func(f *Fetcher) { f.log = log }
}

// NewFetcher creates a fetcher that retries transient failures and
// spaces out requests to iana.org.
func NewFetcher(opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		base:    DefaultBaseURL,
		limiter: rate.NewLimiter(rate.Every(500*time.Millisecond), 1),
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.client = retryablehttp.NewClient()
	f.client.RetryMax = 3
	f.client.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	f.client.Logger = logger.HTTPLogger{Log: f.log}
	return f
}

// Download writes the language subtag registry and every media type CSV
// into dir.
func (f *Fetcher) Download(ctx context.Context, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := f.fetchTo(ctx, f.base+"/"+LanguageRegistryDir+"/"+LanguageRegistryDir, filepath.Join(dir, LanguageFile)); err != nil {
		return err
	}
	for _, top := range TopLevelTypes {
		u := fmt.Sprintf("%s/%s/%s.csv", f.base, MediaTypesDir, top)
		if err := f.fetchTo(ctx, u, filepath.Join(dir, MediaTypeFile(top))); err != nil {
			return err
		}
	}
	return nil
}

func (f *Fetcher) fetchTo(ctx context.Context, u, target string) error {
	if err := f.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", u, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: unexpected status %d", u, resp.StatusCode)
	}

	tmp := target + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("fetch %s: %w", u, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	f.log.Debug().Str("url", u).Str("path", target).Msg("registry downloaded")
	return os.Rename(tmp, target)
}

// Load reads the registries from dir. Missing media type files are
// skipped; a missing language registry yields a nil language provider.
func Load(dir string) (*LanguageProvider, *MediaTypeProvider, error) {
	var langs *LanguageProvider
	lf, err := os.Open(filepath.Join(dir, LanguageFile))
	switch {
	case err == nil:
		records, rerr := ReadLanguageRegistry(lf)
		lf.Close()
		if rerr != nil {
			return nil, nil, rerr
		}
		langs = NewLanguageProvider(records)
	case !errors.Is(err, os.ErrNotExist):
		return nil, nil, err
	}

	var codes []string
	found := false
	for _, top := range TopLevelTypes {
		mf, err := os.Open(filepath.Join(dir, MediaTypeFile(top)))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		found = true
		c, rerr := ReadMediaTypes(top, mf)
		mf.Close()
		if rerr != nil {
			return nil, nil, rerr
		}
		codes = append(codes, c...)
	}
	var media *MediaTypeProvider
	if found {
		media = NewMediaTypeProvider(codes)
	}
	return langs, media, nil
}

// Register loads the registries from dir into repo and returns the
// systems it added.
func Register(repo *terminology.Repository, dir string) ([]string, error) {
	langs, media, err := Load(dir)
	if err != nil {
		return nil, err
	}
	var systems []string
	if langs != nil {
		repo.AddProvider(langs)
		systems = append(systems, LanguageSystem)
	}
	if media != nil {
		repo.AddProvider(media)
		systems = append(systems, MediaTypeSystem)
	}
	return systems, nil
}
