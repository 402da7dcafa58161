package builder

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	fhirtx "github.com/onc-healthit/onc-certification-g10-test-kit-sub001"
	"github.com/onc-healthit/onc-certification-g10-test-kit-sub001/artifact"
	"github.com/onc-healthit/onc-certification-g10-test-kit-sub001/terminology"
)

// progressEvery is the number of value sets between progress logs.
const progressEvery = 50

// Skip reasons recorded in Report.Skipped.
const (
	SkipExcluded   = "excluded"
	SkipRestricted = "restricted"
	SkipEmpty      = "no codes"
)

// Report is the outcome of a build.
type Report struct {
	// Built lists the manifest entries written by this run, value sets
	// first, then code systems.
	Built []artifact.Entry

	// Failed maps URLs to the error that stopped their artifact.
	Failed map[string]error

	// Skipped maps URLs to the reason they were not built.
	Skipped map[string]string

	Duration time.Duration
}

func newReport() *Report {
	return &Report{Failed: make(map[string]error), Skipped: make(map[string]string)}
}

// FailedURLs returns the failed URLs, sorted.
func (r *Report) FailedURLs() []string {
	out := make([]string, 0, len(r.Failed))
	for u := range r.Failed {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// Builder writes artifacts for value sets and code systems.
type Builder struct {
	expander *terminology.Expander
	store    artifact.Store
	opts     Options
	metadata artifact.Metadata
	log      zerolog.Logger

	excluded   map[string]bool
	restricted map[string]bool
}

// New creates a builder that expands through expander and writes to store.
func New(expander *terminology.Expander, store artifact.Store, opts Options, log zerolog.Logger) *Builder {
	opts = opts.withDefaults()
	return &Builder{
		expander:   expander,
		store:      store,
		opts:       opts,
		metadata:   artifact.Metadata{},
		log:        log,
		excluded:   opts.excluded(),
		restricted: opts.restricted(),
	}
}

// AddMetadata merges source metadata, typically read from MRSAB, into the
// metadata table written at the end of the build.
func (b *Builder) AddMetadata(md artifact.Metadata) {
	b.metadata.Merge(md)
}

// BuildBindings builds the value sets of bindings at or above the
// configured minimum strength.
func (b *Builder) BuildBindings(ctx context.Context, bindings []Binding) (*Report, error) {
	return b.Build(ctx, SelectValueSets(bindings, b.opts.MinimumStrength))
}

// Build writes one artifact per value set URL and one per contributing
// code system, then the manifest and metadata. The returned error is set
// only when the batch itself could not run: cancellation or a store that
// cannot hold the manifest.
func (b *Builder) Build(ctx context.Context, valueSets []string) (*Report, error) {
	start := time.Now()
	report := newReport()

	manifest := &artifact.Manifest{}
	if b.opts.DeleteExisting {
		if _, err := Cleanup(ctx, b.store); err != nil {
			return report, fmt.Errorf("remove previous artifacts: %w", err)
		}
	} else {
		existing, err := artifact.LoadManifest(ctx, b.store)
		if err != nil {
			return report, err
		}
		manifest = existing
		prior, err := artifact.LoadMetadata(ctx, b.store)
		if err != nil {
			return report, err
		}
		prior.Merge(b.metadata)
		b.metadata = prior
	}

	urls := dedupe(valueSets)
	b.log.Info().Int("value_sets", len(urls)).Str("kind", string(b.opts.Kind)).Msg("building value set artifacts")

	systems := make(map[string]bool)
	for i, url := range urls {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if i > 0 && i%progressEvery == 0 {
			b.log.Info().Int("done", i).Int("total", len(urls)).Int("built", len(report.Built)).Msg("build progress")
		}

		entry, err := b.buildValueSet(ctx, url, manifest, report)
		if err != nil {
			b.fail(report, url, err)
			continue
		}
		if entry == nil {
			continue
		}
		for _, s := range entry.CodeSystems {
			systems[s] = true
		}
	}

	systemURLs := sortedKeys(systems)
	b.log.Info().Int("code_systems", len(systemURLs)).Msg("building code system artifacts")
	for _, system := range systemURLs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if !b.opts.IncludeRestricted && b.isRestricted(system) {
			report.Skipped[system] = SkipRestricted
			continue
		}
		if err := b.buildSystem(ctx, system, manifest, report); err != nil {
			b.fail(report, system, err)
		}
	}

	if err := artifact.SaveManifest(ctx, b.store, manifest); err != nil {
		return report, fmt.Errorf("write manifest: %w", err)
	}
	b.recordSystemVersions(systemURLs)
	if err := artifact.SaveMetadata(ctx, b.store, b.metadata); err != nil {
		return report, fmt.Errorf("write metadata: %w", err)
	}

	report.Duration = time.Since(start)
	b.log.Info().
		Int("built", len(report.Built)).
		Int("failed", len(report.Failed)).
		Int("skipped", len(report.Skipped)).
		Dur("duration", report.Duration).
		Msg("build complete")
	return report, nil
}

func (b *Builder) fail(report *Report, url string, err error) {
	report.Failed[url] = err
	b.log.Error().Err(err).Str("url", url).Msg("artifact build failed")
}

// buildValueSet returns a nil entry when the value set was skipped.
func (b *Builder) buildValueSet(ctx context.Context, url string, manifest *artifact.Manifest, report *Report) (*artifact.Entry, error) {
	if b.excluded[url] {
		report.Skipped[url] = SkipExcluded
		return nil, nil
	}
	vs, ok := b.expander.Repository().ValueSet(url)
	if !ok {
		return nil, fhirtx.UnknownValueSet(url)
	}
	if !b.opts.IncludeRestricted && b.whollyRestricted(vs) {
		report.Skipped[url] = SkipRestricted
		return nil, nil
	}

	codings, err := b.expander.Expand(ctx, url)
	if err != nil {
		return nil, err
	}
	if len(codings) == 0 {
		b.log.Warn().Str("url", url).Msg("value set has no codes, artifact dropped")
		report.Skipped[url] = SkipEmpty
		return nil, nil
	}

	entry, err := b.writeArtifact(ctx, url, codings, manifest)
	if err != nil {
		return nil, err
	}
	report.Built = append(report.Built, *entry)
	b.log.Debug().Str("url", url).Int("count", entry.Count).Strs("code_systems", entry.CodeSystems).Msg("value set built")
	return entry, nil
}

func (b *Builder) whollyRestricted(vs *terminology.ValueSet) bool {
	systems := vs.Systems()
	if len(systems) == 0 || len(vs.References()) > 0 {
		return false
	}
	for _, s := range systems {
		if !b.isRestricted(b.opts.Aliases.Canonical(s)) {
			return false
		}
	}
	return true
}

// isRestricted reports whether system is on the restricted list or its
// source restriction level is above MaxRestrictionLevel.
func (b *Builder) isRestricted(system string) bool {
	if b.restricted[system] {
		return true
	}
	if b.opts.MaxRestrictionLevel < 0 {
		return false
	}
	md, ok := b.metadata[system]
	return ok && md.RestrictionLevel > b.opts.MaxRestrictionLevel
}

// buildSystem expands a code system and every alias of it present in the
// repository into one artifact.
func (b *Builder) buildSystem(ctx context.Context, system string, manifest *artifact.Manifest, report *Report) error {
	var codings []fhirtx.Coding
	found := false
	for _, url := range append([]string{system}, b.opts.Aliases.Of(system)...) {
		if _, ok := b.expander.Repository().Provider(url); !ok {
			continue
		}
		found = true
		codes, err := b.expander.ExpandSystem(ctx, url)
		if err != nil {
			return err
		}
		codings = append(codings, codes...)
	}
	if !found {
		return fhirtx.UnknownCodeSystem(system)
	}
	if len(codings) == 0 {
		b.log.Warn().Str("url", system).Msg("code system has no codes, artifact dropped")
		report.Skipped[system] = SkipEmpty
		return nil
	}

	entry, err := b.writeArtifact(ctx, system, codings, manifest)
	if err != nil {
		return err
	}
	report.Built = append(report.Built, *entry)
	return nil
}

// writeArtifact adds codings to a new set, or to the existing artifact of
// url when merging, and persists it.
func (b *Builder) writeArtifact(ctx context.Context, url string, codings []fhirtx.Coding, manifest *artifact.Manifest) (*artifact.Entry, error) {
	file, err := artifact.FileName(url, b.opts.Kind)
	if err != nil {
		return nil, err
	}
	if prev, ok := manifest.FindFile(file); ok && prev.URL != url {
		return nil, &fhirtx.CollisionError{Path: file, Existing: prev.URL, Incoming: url}
	}

	set, systems, err := b.openSet(ctx, url, len(codings), manifest)
	if err != nil {
		return nil, err
	}
	for _, c := range codings {
		system := b.opts.Aliases.Canonical(c.System)
		key, err := fhirtx.CompositeKey(system, c.Code)
		if err != nil {
			return nil, err
		}
		set.Add(key)
		systems[system] = true
	}

	if err := artifact.WriteSet(ctx, b.store, file, set); err != nil {
		return nil, err
	}
	if prev, ok := manifest.Find(url); ok && prev.File != file {
		if err := b.store.Delete(ctx, prev.File); err != nil {
			return nil, fmt.Errorf("remove replaced artifact %s: %w", prev.File, err)
		}
	}
	entry := artifact.Entry{
		URL:         url,
		File:        file,
		Count:       set.Count(),
		Kind:        b.opts.Kind,
		CodeSystems: sortedKeys(systems),
	}
	manifest.Upsert(entry)
	return &entry, nil
}

// openSet returns the set to add to and the systems already recorded for it.
func (b *Builder) openSet(ctx context.Context, url string, n int, manifest *artifact.Manifest) (artifact.Set, map[string]bool, error) {
	systems := make(map[string]bool)
	if !b.opts.DeleteExisting {
		if prev, ok := manifest.Find(url); ok && prev.Kind == b.opts.Kind {
			set, err := artifact.ReadEntry(ctx, b.store, prev)
			switch {
			case err == nil:
				for _, s := range prev.CodeSystems {
					systems[s] = true
				}
				return set, systems, nil
			case !errors.Is(err, artifact.ErrNotFound):
				return nil, nil, fmt.Errorf("reopen artifact: %w", err)
			}
		}
	}
	set, err := artifact.NewSet(b.opts.Kind, artifact.SetOptions{
		Capacity:          n,
		FalsePositiveRate: b.opts.FalsePositiveRate,
	})
	return set, systems, err
}

// recordSystemVersions adds the versions of loaded CodeSystem resources
// to the metadata of each built system. Restricted systems get at least
// RestrictedLevel; Merge keeps a higher source level.
func (b *Builder) recordSystemVersions(systems []string) {
	for _, s := range systems {
		md := artifact.SystemMetadata{}
		if cs, ok := b.expander.Repository().CodeSystem(s); ok && cs.Version != "" {
			md.Versions = []string{cs.Version}
		}
		if b.restricted[s] {
			md.RestrictionLevel = RestrictedLevel
		}
		b.metadata.Merge(artifact.Metadata{s: md})
	}
}

// RestrictedLevel is recorded for restricted systems that carry no source
// restriction level of their own.
const RestrictedLevel = 3

// Cleanup removes every artifact, the manifest and the metadata from
// store. It succeeds on an empty store and can be repeated.
func Cleanup(ctx context.Context, store artifact.Store) (int, error) {
	names, err := store.List(ctx)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, name := range names {
		if !isBuildOutput(name) {
			continue
		}
		if err := store.Delete(ctx, name); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func isBuildOutput(name string) bool {
	switch {
	case name == artifact.ManifestFile, name == artifact.MetadataFile:
		return true
	case strings.HasSuffix(name, artifact.KindBloom.Extension()), strings.HasSuffix(name, artifact.KindTable.Extension()):
		return true
	}
	return false
}

func dedupe(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		u = fhirtx.StripVersion(strings.TrimSpace(u))
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
