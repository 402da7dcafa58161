package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	fhirtx "github.com/onc-healthit/onc-certification-g10-test-kit-sub001"
	"github.com/onc-healthit/onc-certification-g10-test-kit-sub001/artifact"
	"github.com/onc-healthit/onc-certification-g10-test-kit-sub001/builder"
	"github.com/onc-healthit/onc-certification-g10-test-kit-sub001/iana"
	"github.com/onc-healthit/onc-certification-g10-test-kit-sub001/terminology"
	"github.com/onc-healthit/onc-certification-g10-test-kit-sub001/umls"
)

func newBuildCmd(a *app) *cobra.Command {
	var (
		kind              string
		strength          string
		includeRestricted bool
		maxLevel          int
		merge             bool
		only              bool
	)
	cmd := &cobra.Command{
		Use:   "build [value-set-url...]",
		Short: "Build validation artifacts",
		Long: `Loads the fetched packages, the IANA registries and the processed UMLS
vocabularies, then writes one artifact per bound value set and per code system
they draw from. Value sets given as arguments are built in addition to those
bound by profiles, or instead of them with --only.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := a.cfg.Build.Options()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("kind") {
				if opts.Kind, err = artifact.ParseKind(kind); err != nil {
					return err
				}
			}
			if flags.Changed("strength") {
				if opts.MinimumStrength, err = fhirtx.ParseBindingStrength(strength); err != nil {
					return err
				}
			}
			if flags.Changed("include-restricted") {
				opts.IncludeRestricted = includeRestricted
			}
			if flags.Changed("max-restriction-level") {
				opts.MaxRestrictionLevel = maxLevel
			}
			if flags.Changed("merge") {
				opts.DeleteExisting = !merge
			}

			ctx := cmd.Context()
			repo, closeRepo, err := a.loadTerminology(ctx)
			if err != nil {
				return err
			}
			defer closeRepo()

			var urls []string
			if !only {
				bindings, errs := builder.CollectBindings(a.cfg.SourceDir)
				for _, err := range errs {
					a.log.Warn().Err(err).Msg("profile skipped")
				}
				urls = builder.SelectValueSets(bindings, opts.MinimumStrength)
				urls = append(urls, a.cfg.Build.ValueSets...)
			}
			urls = append(urls, args...)

			store, err := a.store()
			if err != nil {
				return err
			}
			b := builder.New(terminology.NewExpander(repo, terminology.WithLogger(a.log)), store, opts, a.log)
			if err := a.addSourceMetadata(b); err != nil {
				return err
			}

			report, err := b.Build(ctx, urls)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "built %d, failed %d, skipped %d in %s\n",
				len(report.Built), len(report.Failed), len(report.Skipped), report.Duration.Round(time.Millisecond))
			for _, u := range report.FailedURLs() {
				fmt.Fprintf(out, "  failed %s: %v\n", u, report.Failed[u])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "artifact kind: bloom or csv")
	cmd.Flags().StringVar(&strength, "strength", "", "minimum binding strength: example, preferred, extensible or required")
	cmd.Flags().BoolVar(&includeRestricted, "include-restricted", false, "build value sets drawn wholly from restricted code systems")
	cmd.Flags().IntVar(&maxLevel, "max-restriction-level", builder.AnyRestrictionLevel, "skip code systems whose source restriction level is above this; -1 ignores levels")
	cmd.Flags().BoolVar(&merge, "merge", false, "merge into existing artifacts instead of deleting them first")
	cmd.Flags().BoolVar(&only, "only", false, "build only the value sets given as arguments")
	return cmd
}

// loadTerminology fills a repository from every configured source. The
// returned func releases the UMLS store when one is used.
func (a *app) loadTerminology(ctx context.Context) (*terminology.Repository, func(), error) {
	closer := func() {}
	repo := terminology.NewRepository()

	stats, err := terminology.LoadDirectory(repo, a.cfg.SourceDir)
	if err != nil {
		return nil, closer, err
	}
	a.log.Info().
		Int("code_systems", stats.CodeSystemsLoaded).
		Int("value_sets", stats.ValueSetsLoaded).
		Int("errors", stats.Errors).
		Msg("packages loaded")

	if exists(a.cfg.IANA.Dir) {
		systems, err := iana.Register(repo, a.cfg.IANA.Dir)
		if err != nil {
			return nil, closer, err
		}
		a.log.Info().Strs("systems", systems).Msg("IANA registries loaded")
	}

	normalized := filepath.Join(a.cfg.UMLS.WorkDir, umls.NormalizedFile)
	if !exists(normalized) {
		return repo, closer, nil
	}

	var hierarchy terminology.Hierarchy
	if a.cfg.UMLS.DatabaseURL != "" {
		store, err := umls.Connect(ctx, a.cfg.UMLS.DatabaseURL, nil, a.log)
		if err != nil {
			return nil, closer, err
		}
		closer = func() { store.Close() }
		hierarchy = store
	}

	f, err := os.Open(normalized)
	if err != nil {
		closer()
		return nil, func() {}, err
	}
	defer f.Close()
	systems, err := terminology.LoadFlatVocabulary(repo, f, hierarchy)
	if err != nil {
		closer()
		return nil, func() {}, err
	}
	a.log.Info().Strs("systems", systems).Bool("hierarchy", hierarchy != nil).Msg("UMLS vocabularies loaded")
	return repo, closer, nil
}

func (a *app) addSourceMetadata(b *builder.Builder) error {
	path := filepath.Join(a.cfg.UMLS.WorkDir, umls.SourcesFile)
	if !exists(path) {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	md, err := umls.ReadSources(f, nil)
	if err != nil {
		return err
	}
	b.AddMetadata(md)
	return nil
}
