package main

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	fhirtx "github.com/onc-healthit/onc-certification-g10-test-kit-sub001"
	"github.com/onc-healthit/onc-certification-g10-test-kit-sub001/artifact"
	"github.com/onc-healthit/onc-certification-g10-test-kit-sub001/builder"
	"github.com/onc-healthit/onc-certification-g10-test-kit-sub001/config"
	"github.com/onc-healthit/onc-certification-g10-test-kit-sub001/validation"
)

var (
	// Version is set via -ldflags.
	Version = "dev"
	// Commit is set via -ldflags.
	Commit = "unknown"
)

// app carries what every command needs once flags are parsed.
type app struct {
	configFile string
	envFile    string
	logLevel   string

	cfg *config.Config
	log zerolog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{log: zerolog.Nop()}

	root := &cobra.Command{
		Use:   "fhirtx",
		Short: "Offline FHIR terminology validation",
		Long: `fhirtx builds approximate-membership artifacts for FHIR value sets and
code systems, then answers code membership queries against them without a
terminology server.

Typical build:
  fhirtx fetch
  fhirtx umls download && fhirtx umls process
  fhirtx iana download
  fhirtx build

Query:
  fhirtx validate --code male --url http://hl7.org/fhir/ValueSet/administrative-gender
  fhirtx serve`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
	}

	root.PersistentFlags().StringVar(&a.configFile, "config", "", "YAML config file")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", "", "dotenv file (default .env when present)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level override (debug, info, warn, error, disabled)")

	root.AddCommand(
		newFetchCmd(a),
		newUMLSCmd(a),
		newIANACmd(a),
		newBuildCmd(a),
		newValidateCmd(a),
		newServeCmd(a),
		newCleanupCmd(a),
		newVersionCmd(),
	)
	return root
}

func (a *app) init() error {
	cfg, err := config.Load(config.LoadOptions{ConfigFile: a.configFile, EnvFile: a.envFile})
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	log, err := cfg.Log.Logger()
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = log
	return nil
}

func (a *app) store() (artifact.Store, error) {
	return a.cfg.Storage.Open(a.cfg.OutputDir)
}

// validator loads the built artifacts and wraps them in a validator.
func (a *app) validator(ctx context.Context, metrics *fhirtx.Metrics) (*validation.Validator, error) {
	store, err := a.store()
	if err != nil {
		return nil, err
	}
	repo, err := validation.Load(ctx, store, validation.WithLogger(a.log))
	if err != nil {
		return nil, err
	}
	opts := []validation.Option{
		validation.WithLogger(a.log),
		validation.WithPolicy(a.cfg.Policy.Policy()),
		validation.WithAliases(builder.DefaultAliases),
	}
	if metrics != nil {
		opts = append(opts, validation.WithMetrics(metrics))
	}
	return validation.New(repo, opts...), nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, fs.ErrNotExist)
}
