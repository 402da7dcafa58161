package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/onc-healthit/onc-certification-g10-test-kit-sub001/validation"
)

func newValidateCmd(a *app) *cobra.Command {
	var (
		code, system, url string
		batch             string
		workers           int
	)
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check codes against the built artifacts",
		Long: `Checks one code given by flags, or with --batch a JSON array of
{"id", "code", "system", "url"} queries, and prints the answers as JSON.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if code == "" && batch == "" {
				return errors.New("--code or --batch is required")
			}
			v, err := a.validator(cmd.Context(), nil)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())

			if batch != "" {
				data, err := os.ReadFile(batch)
				if err != nil {
					return err
				}
				var queries []validation.Query
				if err := json.Unmarshal(data, &queries); err != nil {
					return fmt.Errorf("parse %s: %w", batch, err)
				}
				return enc.Encode(v.ValidateBatch(cmd.Context(), queries, workers))
			}

			ok, err := v.Validate(code, system, url)
			if err != nil {
				return err
			}
			return enc.Encode(map[string]bool{"result": ok})
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "code to check")
	cmd.Flags().StringVar(&system, "system", "", "code system URL")
	cmd.Flags().StringVar(&url, "url", "", "value set URL")
	cmd.Flags().StringVar(&batch, "batch", "", "JSON file of queries")
	cmd.Flags().IntVar(&workers, "workers", 0, "concurrent queries in batch mode (default number of CPUs)")
	return cmd
}
