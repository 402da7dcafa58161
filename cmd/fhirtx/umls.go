package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/onc-healthit/onc-certification-g10-test-kit-sub001/umls"
)

func newUMLSCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "umls",
		Short: "Download and ingest a UMLS release",
	}
	cmd.AddCommand(newUMLSDownloadCmd(a), newUMLSProcessCmd(a), newUMLSImportCmd(a))
	return cmd
}

func newUMLSDownloadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "download",
		Short: "Download the release archive and extract the RRF files",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := umls.NewDownloader(a.cfg.UMLS.DownloaderConfig(), a.log)
			if err != nil {
				return err
			}
			dir := a.cfg.UMLS.WorkDir
			archive, err := d.Download(cmd.Context(), dir)
			if err != nil {
				return err
			}
			files, err := umls.Extract(archive, dir, umls.ConsoFile, umls.SourcesFile, umls.RelationsFile)
			if err != nil {
				return err
			}
			for name, path := range files {
				a.log.Info().Str("file", name).Str("path", path).Msg("extracted")
			}
			return nil
		},
	}
}

func newUMLSProcessCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "process",
		Short: "Filter MRCONSO into the normalized system|code|description file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir := a.cfg.UMLS.WorkDir
			in, err := os.Open(filepath.Join(dir, umls.ConsoFile))
			if err != nil {
				return err
			}
			defer in.Close()

			outPath := filepath.Join(dir, umls.NormalizedFile)
			tmp := outPath + ".part"
			out, err := os.Create(tmp)
			if err != nil {
				return err
			}
			w := bufio.NewWriterSize(out, 1<<20)

			p := umls.NewProcessor(umls.WithProgressEvery(a.cfg.UMLS.ProgressEvery), umls.WithLogger(a.log))
			stats, err := p.Process(cmd.Context(), in, w)
			if err == nil {
				err = w.Flush()
			}
			if cerr := out.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				os.Remove(tmp)
				return err
			}
			if err := os.Rename(tmp, outPath); err != nil {
				return err
			}
			for i, src := range stats.TopExcluded() {
				if i == 10 {
					break
				}
				a.log.Info().Str("source", src).Int("rows", stats.ExcludedSources[src]).Msg("excluded source")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d codes written to %s\n", stats.Written, outPath)
			return nil
		},
	}
}

func newUMLSImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import",
		Short: "Load atoms and hierarchy into the staging database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.UMLS.DatabaseURL == "" {
				return fmt.Errorf("umls.database_url is not set")
			}
			ctx := cmd.Context()
			store, err := umls.Connect(ctx, a.cfg.UMLS.DatabaseURL, nil, a.log)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Migrate(ctx); err != nil {
				return err
			}
			if err := store.Truncate(ctx); err != nil {
				return err
			}

			dir := a.cfg.UMLS.WorkDir
			atoms, err := os.Open(filepath.Join(dir, umls.ConsoFile))
			if err != nil {
				return err
			}
			defer atoms.Close()
			n, err := store.ImportAtoms(ctx, atoms)
			if err != nil {
				return err
			}

			rels, err := os.Open(filepath.Join(dir, umls.RelationsFile))
			if err != nil {
				return err
			}
			defer rels.Close()
			m, err := store.ImportRelations(ctx, rels)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d atoms and %d relations imported\n", n, m)
			return nil
		},
	}
}
