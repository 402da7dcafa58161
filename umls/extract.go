package umls

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/klauspost/compress/zip"
)

// Release files read by the pipeline.
const (
	ConsoFile      = "MRCONSO.RRF"
	SourcesFile    = "MRSAB.RRF"
	RelationsFile  = "MRREL.RRF"
	NormalizedFile = "umls_codes.txt"
)

// Extract copies the named files out of a release archive into dir, by
// base name, wherever they sit inside the archive. It returns the written
// paths keyed by name and fails if any requested file is missing.
func Extract(archive, dir string, names ...string) (map[string]string, error) {
	if len(names) == 0 {
		names = []string{ConsoFile, SourcesFile}
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}

	zr, err := zip.OpenReader(archive)
	if err != nil {
		return nil, fmt.Errorf("open release archive: %w", err)
	}
	defer zr.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	written := make(map[string]string, len(names))
	for _, f := range zr.File {
		base := path.Base(f.Name)
		if !want[base] || f.FileInfo().IsDir() {
			continue
		}
		if _, done := written[base]; done {
			continue
		}
		target := filepath.Join(dir, base)
		if err := extractFile(f, target); err != nil {
			return written, fmt.Errorf("extract %s: %w", f.Name, err)
		}
		written[base] = target
	}

	for _, n := range names {
		if _, ok := written[n]; !ok {
			return written, fmt.Errorf("%s not found in %s", n, archive)
		}
	}
	return written, nil
}

func extractFile(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	tmp := target + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, target)
}

// Intermediates are the files Cleanup removes.
var Intermediates = []string{
	ReleaseFile,
	ReleaseFile + ".part",
	ConsoFile,
	SourcesFile,
	RelationsFile,
}

// Cleanup removes downloaded and extracted release files from dir. It is
// safe to run repeatedly and on a directory that never held a release.
// The normalized vocabulary is kept unless includeOutput is set.
func Cleanup(dir string, includeOutput bool) ([]string, error) {
	names := Intermediates
	if includeOutput {
		names = append(append([]string(nil), Intermediates...), NormalizedFile)
	}

	var removed []string
	var errs []error
	for _, n := range names {
		p := filepath.Join(dir, n)
		err := os.Remove(p)
		switch {
		case err == nil:
			removed = append(removed, p)
		case errors.Is(err, os.ErrNotExist):
		default:
			errs = append(errs, err)
		}
	}
	return removed, errors.Join(errs...)
}
