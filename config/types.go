package config

import "time"

type (
	// Config is the full configuration of the build pipeline and the
	// validation service.
	Config struct {
		Log       LogConfig       `json:"log" mapstructure:"log"`
		Registry  RegistryConfig  `json:"registry" mapstructure:"registry"`
		Packages  []PackageConfig `json:"packages" mapstructure:"packages"`
		SourceDir string          `json:"source_dir" mapstructure:"source_dir"`
		OutputDir string          `json:"output_dir" mapstructure:"output_dir"`
		UMLS      UMLSConfig      `json:"umls" mapstructure:"umls"`
		IANA      IANAConfig      `json:"iana" mapstructure:"iana"`
		Build     BuildConfig     `json:"build" mapstructure:"build"`
		Policy    PolicyConfig    `json:"policy" mapstructure:"policy"`
		Storage   StorageConfig   `json:"storage" mapstructure:"storage"`
		Server    ServerConfig    `json:"server" mapstructure:"server"`
	}

	// LogConfig configures pkg/logger.
	LogConfig struct {
		Level  string `json:"level" mapstructure:"level"`
		Format string `json:"format" mapstructure:"format"`
		Caller bool   `json:"caller" mapstructure:"caller"`
	}

	// RegistryConfig configures the package registry client.
	RegistryConfig struct {
		URL          string        `json:"url" mapstructure:"url"`
		Timeout      time.Duration `json:"timeout" mapstructure:"timeout"`
		MaxRedirects int           `json:"max_redirects" mapstructure:"max_redirects"`
		RetryMax     int           `json:"retry_max" mapstructure:"retry_max"`
	}

	// PackageConfig names one package to fetch and how to filter it.
	PackageConfig struct {
		// Ref is "name#version"; the version defaults to latest.
		Ref          string   `json:"ref" mapstructure:"ref"`
		Types        []string `json:"types,omitempty" mapstructure:"types"`
		RequiredURLs []string `json:"required_urls,omitempty" mapstructure:"required_urls"`
		Where        string   `json:"where,omitempty" mapstructure:"where"`
	}

	// UMLSConfig configures the UMLS download and ingestion steps.
	UMLSConfig struct {
		APIKey        string        `json:"api_key" mapstructure:"api_key"`
		ReleaseURL    string        `json:"release_url" mapstructure:"release_url"`
		AuthURL       string        `json:"auth_url" mapstructure:"auth_url"`
		WorkDir       string        `json:"work_dir" mapstructure:"work_dir"`
		DatabaseURL   string        `json:"database_url" mapstructure:"database_url"`
		Timeout       time.Duration `json:"timeout" mapstructure:"timeout"`
		MaxRedirects  int           `json:"max_redirects" mapstructure:"max_redirects"`
		RequestRate   float64       `json:"request_rate" mapstructure:"request_rate"`
		ProgressEvery int           `json:"progress_every" mapstructure:"progress_every"`
	}

	// IANAConfig configures the IANA registry download.
	IANAConfig struct {
		BaseURL string `json:"base_url" mapstructure:"base_url"`
		Dir     string `json:"dir" mapstructure:"dir"`
	}

	// BuildConfig configures artifact generation.
	BuildConfig struct {
		MinimumStrength     string   `json:"minimum_strength" mapstructure:"minimum_strength"`
		IncludeRestricted   bool     `json:"include_restricted" mapstructure:"include_restricted"`
		MaxRestrictionLevel int      `json:"max_restriction_level" mapstructure:"max_restriction_level"`
		DeleteExisting      bool     `json:"delete_existing" mapstructure:"delete_existing"`
		Kind                string   `json:"kind" mapstructure:"kind"`
		FalsePositiveRate   float64  `json:"false_positive_rate" mapstructure:"false_positive_rate"`
		ExcludedValueSets   []string `json:"excluded_value_sets" mapstructure:"excluded_value_sets"`
		// ValueSets are built in addition to those bound by profiles.
		ValueSets []string `json:"value_sets" mapstructure:"value_sets"`
	}

	// PolicyConfig configures which code systems the validator may use.
	PolicyConfig struct {
		MaxRestrictionLevel int      `json:"max_restriction_level" mapstructure:"max_restriction_level"`
		Allow               []string `json:"allow" mapstructure:"allow"`
		Deny                []string `json:"deny" mapstructure:"deny"`
	}

	// StorageConfig selects where artifacts are written and read.
	StorageConfig struct {
		Type      string `json:"type" mapstructure:"type"`
		Endpoint  string `json:"endpoint" mapstructure:"endpoint"`
		Bucket    string `json:"bucket" mapstructure:"bucket"`
		Prefix    string `json:"prefix" mapstructure:"prefix"`
		AccessKey string `json:"access_key" mapstructure:"access_key"`
		SecretKey string `json:"secret_key" mapstructure:"secret_key"`
		Secure    bool   `json:"secure" mapstructure:"secure"`
	}

	// ServerConfig configures the HTTP service.
	ServerConfig struct {
		Addr string `json:"addr" mapstructure:"addr"`
	}
)

// Storage types.
const (
	StorageLocal = "local"
	StorageS3    = "s3"
)
