// Package config loads the layered configuration: built-in defaults, an
// optional YAML file, an optional .env file and FHIRTX_ environment
// variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	fhirtx "github.com/onc-healthit/onc-certification-g10-test-kit-sub001"
	"github.com/onc-healthit/onc-certification-g10-test-kit-sub001/artifact"
	"github.com/onc-healthit/onc-certification-g10-test-kit-sub001/builder"
	"github.com/onc-healthit/onc-certification-g10-test-kit-sub001/iana"
	"github.com/onc-healthit/onc-certification-g10-test-kit-sub001/pkg/logger"
	"github.com/onc-healthit/onc-certification-g10-test-kit-sub001/registry"
	"github.com/onc-healthit/onc-certification-g10-test-kit-sub001/umls"
	"github.com/onc-healthit/onc-certification-g10-test-kit-sub001/validation"
)

const (
	// EnvPrefix prefixes every environment variable read by Load.
	EnvPrefix = "FHIRTX"
	// DefaultEnvFile is read when present.
	DefaultEnvFile = ".env"
)

// LoadOptions controls where Load looks for configuration.
type LoadOptions struct {
	// ConfigFile is a YAML file. It must exist when set.
	ConfigFile string
	// EnvFile is a dotenv file. It must exist when set; otherwise
	// DefaultEnvFile is read if present.
	EnvFile string
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	opts := builder.DefaultOptions()
	refs, _ := registry.DefaultPackages(fhirtx.R4)
	packages := make([]PackageConfig, 0, len(refs))
	for _, ref := range refs {
		packages = append(packages, PackageConfig{Ref: ref.String()})
	}
	return &Config{
		Log: LogConfig{Level: "info", Format: string(logger.FormatConsole)},
		Registry: RegistryConfig{
			URL:          registry.DefaultRegistryURL,
			Timeout:      registry.DefaultTimeout,
			MaxRedirects: registry.DefaultMaxRedirects,
			RetryMax:     registry.DefaultRetryMax,
		},
		Packages:  packages,
		SourceDir: "resources",
		OutputDir: "validators",
		UMLS: UMLSConfig{
			AuthURL:       umls.DefaultAuthURL,
			WorkDir:       "tmp/umls",
			Timeout:       umls.DefaultTimeout,
			MaxRedirects:  umls.DefaultMaxRedirects,
			RequestRate:   umls.DefaultRequestRate,
			ProgressEvery: umls.DefaultProgressEvery,
		},
		IANA: IANAConfig{BaseURL: iana.DefaultBaseURL, Dir: "tmp/iana"},
		Build: BuildConfig{
			MinimumStrength:     opts.MinimumStrength.String(),
			IncludeRestricted:   opts.IncludeRestricted,
			MaxRestrictionLevel: opts.MaxRestrictionLevel,
			DeleteExisting:      opts.DeleteExisting,
			Kind:                string(opts.Kind),
			FalsePositiveRate:   opts.FalsePositiveRate,
			ExcludedValueSets:   []string{},
			ValueSets:           []string{},
		},
		Policy:  PolicyConfig{MaxRestrictionLevel: validation.AnyRestriction, Allow: []string{}, Deny: []string{}},
		Storage: StorageConfig{Type: StorageLocal, Secure: true},
		Server:  ServerConfig{Addr: ":8080"},
	}
}

// Load reads the configuration.
func Load(opts LoadOptions) (*Config, error) {
	if err := loadEnvFile(opts.EnvFile); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", opts.ConfigFile, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadEnvFile(path string) error {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", path, err)
		}
		return nil
	}
	if _, err := os.Stat(DefaultEnvFile); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(DefaultEnvFile); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", DefaultEnvFile, err)
	}
	return nil
}

// setDefaults registers every scalar key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.caller", d.Log.Caller)

	v.SetDefault("registry.url", d.Registry.URL)
	v.SetDefault("registry.timeout", d.Registry.Timeout)
	v.SetDefault("registry.max_redirects", d.Registry.MaxRedirects)
	v.SetDefault("registry.retry_max", d.Registry.RetryMax)

	packages := make([]map[string]interface{}, 0, len(d.Packages))
	for _, p := range d.Packages {
		packages = append(packages, map[string]interface{}{"ref": p.Ref})
	}
	v.SetDefault("packages", packages)
	v.SetDefault("source_dir", d.SourceDir)
	v.SetDefault("output_dir", d.OutputDir)

	v.SetDefault("umls.api_key", d.UMLS.APIKey)
	v.SetDefault("umls.release_url", d.UMLS.ReleaseURL)
	v.SetDefault("umls.auth_url", d.UMLS.AuthURL)
	v.SetDefault("umls.work_dir", d.UMLS.WorkDir)
	v.SetDefault("umls.database_url", d.UMLS.DatabaseURL)
	v.SetDefault("umls.timeout", d.UMLS.Timeout)
	v.SetDefault("umls.max_redirects", d.UMLS.MaxRedirects)
	v.SetDefault("umls.request_rate", d.UMLS.RequestRate)
	v.SetDefault("umls.progress_every", d.UMLS.ProgressEvery)

	v.SetDefault("iana.base_url", d.IANA.BaseURL)
	v.SetDefault("iana.dir", d.IANA.Dir)

	v.SetDefault("build.minimum_strength", d.Build.MinimumStrength)
	v.SetDefault("build.include_restricted", d.Build.IncludeRestricted)
	v.SetDefault("build.max_restriction_level", d.Build.MaxRestrictionLevel)
	v.SetDefault("build.delete_existing", d.Build.DeleteExisting)
	v.SetDefault("build.kind", d.Build.Kind)
	v.SetDefault("build.false_positive_rate", d.Build.FalsePositiveRate)
	v.SetDefault("build.excluded_value_sets", d.Build.ExcludedValueSets)
	v.SetDefault("build.value_sets", d.Build.ValueSets)

	v.SetDefault("policy.max_restriction_level", d.Policy.MaxRestrictionLevel)
	v.SetDefault("policy.allow", d.Policy.Allow)
	v.SetDefault("policy.deny", d.Policy.Deny)

	v.SetDefault("storage.type", d.Storage.Type)
	v.SetDefault("storage.endpoint", d.Storage.Endpoint)
	v.SetDefault("storage.bucket", d.Storage.Bucket)
	v.SetDefault("storage.prefix", d.Storage.Prefix)
	v.SetDefault("storage.access_key", d.Storage.AccessKey)
	v.SetDefault("storage.secret_key", d.Storage.SecretKey)
	v.SetDefault("storage.secure", d.Storage.Secure)

	v.SetDefault("server.addr", d.Server.Addr)
}

// Validate checks values that the type system cannot.
func (c *Config) Validate() error {
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch logger.Format(c.Log.Format) {
	case logger.FormatConsole, logger.FormatJSON:
	default:
		return fmt.Errorf("invalid log format %q", c.Log.Format)
	}
	if _, err := c.Build.Options(); err != nil {
		return err
	}
	for _, p := range c.Packages {
		if _, err := registry.ParsePackageRef(p.Ref); err != nil {
			return err
		}
	}
	switch c.Storage.Type {
	case StorageLocal:
	case StorageS3:
		if c.Storage.Endpoint == "" || c.Storage.Bucket == "" {
			return errors.New("s3 storage requires endpoint and bucket")
		}
	default:
		return fmt.Errorf("invalid storage type %q", c.Storage.Type)
	}
	return nil
}

// Logger builds the configured logger.
func (c LogConfig) Logger() (zerolog.Logger, error) {
	return logger.New(logger.Options{Level: c.Level, Format: logger.Format(c.Format), Caller: c.Caller})
}

// Options converts the build section to builder options.
func (c BuildConfig) Options() (builder.Options, error) {
	opts := builder.DefaultOptions()
	strength, err := fhirtx.ParseBindingStrength(c.MinimumStrength)
	if err != nil {
		return opts, fmt.Errorf("build.minimum_strength: %w", err)
	}
	kind, err := artifact.ParseKind(c.Kind)
	if err != nil {
		return opts, fmt.Errorf("build.kind: %w", err)
	}
	if c.FalsePositiveRate < 0 || c.FalsePositiveRate >= 1 {
		return opts, fmt.Errorf("build.false_positive_rate must be in [0, 1), got %g", c.FalsePositiveRate)
	}
	opts.MinimumStrength = strength
	opts.Kind = kind
	opts.IncludeRestricted = c.IncludeRestricted
	opts.MaxRestrictionLevel = c.MaxRestrictionLevel
	opts.DeleteExisting = c.DeleteExisting
	opts.FalsePositiveRate = c.FalsePositiveRate
	opts.ExcludedValueSets = c.ExcludedValueSets
	return opts, nil
}

// Policy converts the policy section.
func (c PolicyConfig) Policy() validation.Policy {
	return validation.Policy{MaxRestrictionLevel: c.MaxRestrictionLevel, Allow: c.Allow, Deny: c.Deny}
}

// ClientOptions converts the registry section.
func (c RegistryConfig) ClientOptions() []registry.ClientOption {
	return []registry.ClientOption{
		registry.WithRegistryURL(c.URL),
		registry.WithTimeout(c.Timeout),
		registry.WithMaxRedirects(c.MaxRedirects),
		registry.WithRetryMax(c.RetryMax),
	}
}

// PackageRef parses Ref.
func (c PackageConfig) PackageRef() (registry.PackageRef, error) {
	return registry.ParsePackageRef(c.Ref)
}

// FetchOptions returns the fetch filters for the package.
func (c PackageConfig) FetchOptions(dest string) registry.FetchOptions {
	return registry.FetchOptions{Dest: dest, Types: c.Types, RequiredURLs: c.RequiredURLs, Where: c.Where}
}

// DownloaderConfig converts the UMLS section.
func (c UMLSConfig) DownloaderConfig() umls.DownloaderConfig {
	return umls.DownloaderConfig{
		APIKey:       c.APIKey,
		ReleaseURL:   c.ReleaseURL,
		AuthURL:      c.AuthURL,
		Timeout:      c.Timeout,
		MaxRedirects: c.MaxRedirects,
		RequestRate:  c.RequestRate,
	}
}

// Open returns the configured artifact store rooted at dir for local
// storage.
func (c StorageConfig) Open(dir string) (artifact.Store, error) {
	if c.Type == StorageS3 {
		return artifact.DialMinio(artifact.MinioConfig{
			Endpoint:  c.Endpoint,
			AccessKey: c.AccessKey,
			SecretKey: c.SecretKey,
			Bucket:    c.Bucket,
			Prefix:    c.Prefix,
			Secure:    c.Secure,
		})
	}
	return artifact.NewLocalStore(dir), nil
}
