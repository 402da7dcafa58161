package main

import (
	"github.com/spf13/cobra"

	"github.com/onc-healthit/onc-certification-g10-test-kit-sub001/iana"
)

func newIANACmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "iana",
		Short: "IANA language subtag and media type registries",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "download",
		Short: "Download the registries into the IANA directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			f := iana.NewFetcher(iana.WithBaseURL(a.cfg.IANA.BaseURL), iana.WithLogger(a.log))
			return f.Download(cmd.Context(), a.cfg.IANA.Dir)
		},
	})
	return cmd
}
