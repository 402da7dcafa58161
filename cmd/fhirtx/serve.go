package main

import (
	"github.com/spf13/cobra"

	fhirtx "github.com/onc-healthit/onc-certification-g10-test-kit-sub001"
	"github.com/onc-healthit/onc-certification-g10-test-kit-sub001/api"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve validation queries over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			metrics := fhirtx.NewMetrics()
			v, err := a.validator(cmd.Context(), metrics)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			return api.NewServer(v, metrics, a.log).Serve(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr)")
	return cmd
}
