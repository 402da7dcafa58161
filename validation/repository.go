package validation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	fhirtx "github.com/onc-healthit/onc-certification-g10-test-kit-sub001"
	"github.com/onc-healthit/onc-certification-g10-test-kit-sub001/artifact"
)

type loadedArtifact struct {
	entry artifact.Entry
	set   artifact.Set
}

// Repository holds every artifact of a build in memory.
type Repository struct {
	artifacts map[string]*loadedArtifact
	entries   []artifact.Entry
	metadata  artifact.Metadata
}

// Load reads the manifest, the metadata and every artifact from store.
// Any unreadable artifact fails the load: a partially loaded repository
// would answer false for codes it cannot see.
func Load(ctx context.Context, store artifact.Store, opts ...Option) (*Repository, error) {
	cfg := newConfig(opts)
	start := time.Now()

	manifest, err := artifact.LoadManifest(ctx, store)
	if err != nil {
		return nil, fmt.Errorf("load manifest: %w", err)
	}
	metadata, err := artifact.LoadMetadata(ctx, store)
	if err != nil {
		return nil, fmt.Errorf("load metadata: %w", err)
	}

	loaded := make([]*loadedArtifact, len(manifest.Entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.concurrency)
	for i, entry := range manifest.Entries {
		g.Go(func() error {
			set, err := artifact.ReadEntry(gctx, store, entry)
			if err != nil {
				return fmt.Errorf("load artifact %s: %w", entry.URL, err)
			}
			loaded[i] = &loadedArtifact{entry: entry, set: set}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	repo := &Repository{
		artifacts: make(map[string]*loadedArtifact, len(loaded)),
		entries:   make([]artifact.Entry, 0, len(loaded)),
		metadata:  metadata,
	}
	for _, a := range loaded {
		repo.artifacts[a.entry.URL] = a
		repo.entries = append(repo.entries, a.entry)
	}
	sort.Slice(repo.entries, func(i, j int) bool { return repo.entries[i].URL < repo.entries[j].URL })

	cfg.log.Info().
		Int("artifacts", len(repo.entries)).
		Int("code_systems", len(metadata)).
		Dur("duration", time.Since(start)).
		Msg("artifact repository loaded")
	return repo, nil
}

func (r *Repository) lookup(url string) (*loadedArtifact, bool) {
	a, ok := r.artifacts[fhirtx.StripVersion(url)]
	return a, ok
}

// Entry returns the manifest entry for url.
func (r *Repository) Entry(url string) (artifact.Entry, bool) {
	a, ok := r.lookup(url)
	if !ok {
		return artifact.Entry{}, false
	}
	return a.entry, true
}

// Entries returns every manifest entry sorted by URL. The slice is shared
// and must not be modified.
func (r *Repository) Entries() []artifact.Entry {
	return r.entries
}

// Metadata returns the metadata recorded for system.
func (r *Repository) Metadata(system string) (artifact.SystemMetadata, bool) {
	md, ok := r.metadata[system]
	return md, ok
}

// Len returns the number of loaded artifacts.
func (r *Repository) Len() int {
	return len(r.artifacts)
}
