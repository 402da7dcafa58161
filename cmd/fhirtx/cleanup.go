package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/onc-healthit/onc-certification-g10-test-kit-sub001/builder"
	"github.com/onc-healthit/onc-certification-g10-test-kit-sub001/umls"
)

func newCleanupCmd(a *app) *cobra.Command {
	var artifacts, all bool
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove intermediate files",
		Long: `Removes the UMLS release archive and extracted RRF files. With --all the
normalized vocabulary file goes too, and with --artifacts the built artifacts,
manifest and metadata. Safe to run at any time and more than once.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			removed, err := umls.Cleanup(a.cfg.UMLS.WorkDir, all)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, path := range removed {
				fmt.Fprintf(out, "removed %s\n", path)
			}
			if !artifacts {
				return nil
			}
			store, err := a.store()
			if err != nil {
				return err
			}
			n, err := builder.Cleanup(cmd.Context(), store)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "removed %d artifact files\n", n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "also remove the normalized vocabulary file")
	cmd.Flags().BoolVar(&artifacts, "artifacts", false, "also remove built artifacts")
	return cmd
}
