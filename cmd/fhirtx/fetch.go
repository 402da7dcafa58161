package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/onc-healthit/onc-certification-g10-test-kit-sub001/config"
	"github.com/onc-healthit/onc-certification-g10-test-kit-sub001/registry"
)

func newFetchCmd(a *app) *cobra.Command {
	var (
		files []string
		where string
		types []string
	)
	cmd := &cobra.Command{
		Use:   "fetch [name#version...]",
		Short: "Download terminology packages into the source directory",
		Long: `Downloads packages from the registry and keeps their CodeSystem, ValueSet and
StructureDefinition resources. Without arguments the configured packages are
fetched. A package that fails does not stop the others.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			packages := a.cfg.Packages
			if len(args) > 0 {
				packages = packages[:0:0]
				for _, arg := range args {
					packages = append(packages, config.PackageConfig{Ref: arg})
				}
			}

			client := registry.NewClient(append(a.cfg.Registry.ClientOptions(), registry.WithLogger(a.log))...)
			failed := 0
			for _, p := range packages {
				opts := p.FetchOptions(a.cfg.SourceDir)
				if where != "" {
					opts.Where = where
				}
				if len(types) > 0 {
					opts.Types = types
				}
				ref, err := p.PackageRef()
				if err != nil {
					return err
				}
				if _, err := client.Fetch(cmd.Context(), ref, opts); err != nil {
					a.log.Error().Err(err).Str("package", ref.String()).Msg("package fetch failed")
					failed++
				}
			}
			for _, f := range files {
				opts := registry.FetchOptions{Dest: a.cfg.SourceDir, Types: types, Where: where}
				if _, err := client.FetchFile(cmd.Context(), f, opts); err != nil {
					a.log.Error().Err(err).Str("file", f).Msg("package file failed")
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d packages failed", failed, len(packages)+len(files))
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&files, "file", nil, "local .tgz package to extract as well")
	cmd.Flags().StringVar(&where, "where", "", "FHIRPath expression an entry must satisfy")
	cmd.Flags().StringSliceVar(&types, "type", nil, "file name prefixes to keep (default CodeSystem-, ValueSet-, StructureDefinition-)")
	return cmd
}
