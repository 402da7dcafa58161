package registry

import (
	"archive/tar"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gofhir/fhirpath"
	"github.com/gofhir/fhirpath/types"
	"github.com/klauspost/compress/gzip"

	fhirtx "github.com/onc-healthit/onc-certification-g10-test-kit-sub001"
)

// ContentRoot is the directory inside a package archive that holds resources.
const ContentRoot = "package/"

// MaxEntrySize caps a single decompressed archive entry.
const MaxEntrySize = 100 * 1024 * 1024

// DefaultTypes are the filename prefixes kept when FetchOptions.Types is empty.
var DefaultTypes = []string{"CodeSystem-", "ValueSet-", "StructureDefinition-"}

// FetchOptions selects which archive entries are written.
type FetchOptions struct {
	// Dest is the output directory.
	Dest string

	// Types is the filename prefix allowlist. Empty means DefaultTypes.
	Types []string

	// RequiredURLs restricts output to these canonical URLs when non-empty.
	RequiredURLs []string

	// Where is an optional FHIRPath expression; entries for which it is
	// false or empty are skipped.
	Where string

	// MaxEntrySize overrides the per-entry size cap.
	MaxEntrySize int64
}

// FetchReport summarizes one package fetch.
type FetchReport struct {
	Package PackageRef

	// Written lists the files written, one per kept entry.
	Written []string

	// Skipped counts entries that did not pass the filters.
	Skipped int

	// Collisions holds a *fhirtx.CollisionError per refused entry.
	Collisions []error

	// Errors holds per-entry failures that did not stop the fetch.
	Errors []error
}

// Fetch downloads ref and writes the selected entries to opts.Dest.
// Per-entry problems are recorded in the report; the returned error is
// reserved for failures that stop the whole package.
func (c *Client) Fetch(ctx context.Context, ref PackageRef, opts FetchOptions) (*FetchReport, error) {
	body, err := c.Download(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	report, err := extractPackage(ctx, body, opts)
	if report != nil {
		report.Package = ref
		c.logReport(report)
	}
	return report, err
}

// FetchFile reads a package archive from disk.
func (c *Client) FetchFile(ctx context.Context, archive string, opts FetchOptions) (*FetchReport, error) {
	f, err := os.Open(archive)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	report, err := extractPackage(ctx, f, opts)
	if report != nil {
		report.Package = PackageRef{Name: filepath.Base(archive)}
		c.logReport(report)
	}
	return report, err
}

// FetchAll fetches each package in turn. A package that fails is logged
// and its error returned in the map; the others still run.
func (c *Client) FetchAll(ctx context.Context, refs []PackageRef, opts FetchOptions) ([]*FetchReport, map[string]error) {
	var reports []*FetchReport
	failed := make(map[string]error)
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			failed[ref.String()] = err
			continue
		}
		report, err := c.Fetch(ctx, ref, opts)
		if err != nil {
			c.log.Error().Err(err).Str("package", ref.String()).Msg("package fetch failed")
			failed[ref.String()] = err
			continue
		}
		reports = append(reports, report)
	}
	return reports, failed
}

func (c *Client) logReport(r *FetchReport) {
	c.log.Info().
		Str("package", r.Package.String()).
		Int("written", len(r.Written)).
		Int("skipped", r.Skipped).
		Int("collisions", len(r.Collisions)).
		Int("errors", len(r.Errors)).
		Msg("package extracted")
	for _, err := range r.Collisions {
		c.log.Error().Err(err).Msg("output collision")
	}
	for _, err := range r.Errors {
		c.log.Warn().Err(err).Msg("entry skipped")
	}
}

// OutputName returns the file name an entry with canonical url is written to.
func OutputName(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:]) + ".json"
}

type entryFilter struct {
	types    []string
	required map[string]bool
	where    *fhirpath.Expression
}

func newEntryFilter(opts FetchOptions) (*entryFilter, error) {
	f := &entryFilter{types: opts.Types}
	if len(f.types) == 0 {
		f.types = DefaultTypes
	}
	if len(opts.RequiredURLs) > 0 {
		f.required = make(map[string]bool, len(opts.RequiredURLs))
		for _, u := range opts.RequiredURLs {
			f.required[u] = true
		}
	}
	if opts.Where != "" {
		expr, err := fhirpath.Compile(opts.Where)
		if err != nil {
			return nil, fmt.Errorf("failed to compile FHIRPath expression '%s': %w", opts.Where, err)
		}
		f.where = expr
	}
	return f, nil
}

func (f *entryFilter) matchesName(name string) bool {
	base := path.Base(name)
	if !strings.EqualFold(path.Ext(base), ".json") {
		return false
	}
	for _, prefix := range f.types {
		if strings.HasPrefix(base, prefix) {
			return true
		}
	}
	return false
}

// accepts reports whether a parsed entry is kept.
func (f *entryFilter) accepts(url string, data []byte) (bool, error) {
	if f.required != nil && !f.required[url] {
		return false, nil
	}
	if f.where == nil {
		return true, nil
	}
	result, err := f.where.Evaluate(data)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate FHIRPath expression: %w", err)
	}
	return truthy(result), nil
}

func truthy(result types.Collection) bool {
	if len(result) == 0 {
		return false
	}
	if len(result) == 1 {
		if b, ok := result[0].(types.Boolean); ok {
			return b.Bool()
		}
	}
	return true
}

func extractPackage(ctx context.Context, r io.Reader, opts FetchOptions) (*FetchReport, error) {
	if opts.Dest == "" {
		return nil, errors.New("no destination directory")
	}
	filter, err := newEntryFilter(opts)
	if err != nil {
		return nil, err
	}
	maxSize := opts.MaxEntrySize
	if maxSize <= 0 {
		maxSize = MaxEntrySize
	}
	if err := os.MkdirAll(opts.Dest, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	gzr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzr.Close()

	report := &FetchReport{}
	tr := tar.NewReader(gzr)
	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return report, nil
		}
		if err != nil {
			return report, fmt.Errorf("failed to read tar: %w", err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}

		name := path.Clean(strings.TrimPrefix(header.Name, "./"))
		if !strings.HasPrefix(name, ContentRoot) || strings.Contains(strings.TrimPrefix(name, ContentRoot), "/") {
			report.Skipped++
			continue
		}
		if !filter.matchesName(name) {
			report.Skipped++
			continue
		}

		data, err := io.ReadAll(io.LimitReader(tr, maxSize+1))
		if err != nil {
			return report, fmt.Errorf("failed to read %s: %w", name, err)
		}
		if int64(len(data)) > maxSize {
			report.Errors = append(report.Errors, fmt.Errorf("%s exceeds %d bytes", name, maxSize))
			continue
		}

		url, err := canonicalURL(data)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Errorf("%s: %w", name, err))
			continue
		}
		if url == "" {
			report.Skipped++
			continue
		}
		keep, err := filter.accepts(url, data)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Errorf("%s: %w", name, err))
			continue
		}
		if !keep {
			report.Skipped++
			continue
		}

		target := filepath.Join(opts.Dest, OutputName(url))
		if err := writeEntry(target, url, data); err != nil {
			var collision *fhirtx.CollisionError
			if errors.As(err, &collision) {
				report.Collisions = append(report.Collisions, err)
			} else {
				report.Errors = append(report.Errors, err)
			}
			continue
		}
		report.Written = append(report.Written, target)
	}
}

func canonicalURL(data []byte) (string, error) {
	var probe struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return "", fmt.Errorf("invalid JSON: %w", err)
	}
	return strings.TrimSpace(probe.URL), nil
}

// writeEntry writes data to target unless target already holds a resource
// with a different canonical URL.
func writeEntry(target, url string, data []byte) error {
	existing, err := os.ReadFile(target)
	switch {
	case err == nil:
		prev, perr := canonicalURL(existing)
		if perr != nil || prev != url {
			return &fhirtx.CollisionError{Path: target, Existing: prev, Incoming: url}
		}
		if bytes.Equal(existing, data) {
			return nil
		}
	case !errors.Is(err, os.ErrNotExist):
		return err
	}

	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}
