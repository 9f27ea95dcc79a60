// Package config loads runtime settings from an optional YAML file and
// TRACEBASE_* environment variables. Environment values win over the file.
//
//	TRACEBASE_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	TRACEBASE_SQLITE_PATH: sqlite file path when driver=sqlite
//	TRACEBASE_POSTGRES_DSN: postgres DSN when driver=postgres
//	TRACEBASE_BLOB_DRIVER: fs|s3|memory; unset disables archiving
//	TRACEBASE_BLOB_FS_ROOT: directory root when driver=fs
//	TRACEBASE_BLOB_S3_BUCKET, _REGION, _ENDPOINT, _PATH_STYLE: s3 settings
//	TRACEBASE_LOG_MODE: development|production
//	TRACEBASE_SUPPRESS_DEPENDENT_ERRORS: true|false
//	TRACEBASE_DEFAULT_SEQUENCE: study wide fallback sequence name
//	TRACEBASE_PIPELINE_YAML: sheet dependency graph override
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	yaml "gopkg.in/yaml.v3"

	"tracebase/internal/blob"
	"tracebase/internal/core"
	"tracebase/internal/loader"
)

// ErrInvalid marks a setting that cannot be parsed.
var ErrInvalid = errors.New("invalid configuration")

// Storage selects the persistent store.
type Storage struct {
	Driver      string `yaml:"driver"`
	SQLitePath  string `yaml:"sqlitePath"`
	PostgresDSN string `yaml:"postgresDSN"`
}

// S3 configures the s3 archive driver. Credentials come from the AWS
// default chain unless given here.
type S3 struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"pathStyle"`
	AccessKeyID     string `yaml:"accessKeyID"`
	SecretAccessKey string `yaml:"secretAccessKey"`
}

// Archive configures where submissions are archived. An empty driver
// disables archiving.
type Archive struct {
	Driver string `yaml:"driver"`
	FSRoot string `yaml:"fsRoot"`
	S3     S3     `yaml:"s3"`
}

// Pipeline tunes loader runs.
type Pipeline struct {
	SuppressDependentErrors bool   `yaml:"suppressDependentErrors"`
	DefaultSequence         string `yaml:"defaultSequence"`
	Variant                 string `yaml:"variant"`
	ReadConcurrency         int    `yaml:"readConcurrency"`
	GraphFile               string `yaml:"graphFile"`
}

// Config is the full runtime configuration.
type Config struct {
	LogMode  string   `yaml:"logMode"`
	Storage  Storage  `yaml:"storage"`
	Archive  Archive  `yaml:"archive"`
	Pipeline Pipeline `yaml:"pipeline"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		LogMode: "development",
		Storage: Storage{Driver: string(core.StorageSQLite), SQLitePath: "tracebase.db"},
	}
}

// Load reads path (when non-empty) over the defaults, then applies the
// environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("%w: %s: %v", ErrInvalid, path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	boolean := func(key string, dst *bool) error {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalid, key, v)
		}
		*dst = b
		return nil
	}

	str("TRACEBASE_LOG_MODE", &c.LogMode)
	str("TRACEBASE_STORAGE_DRIVER", &c.Storage.Driver)
	str("TRACEBASE_SQLITE_PATH", &c.Storage.SQLitePath)
	str("TRACEBASE_POSTGRES_DSN", &c.Storage.PostgresDSN)
	str("TRACEBASE_BLOB_DRIVER", &c.Archive.Driver)
	str("TRACEBASE_BLOB_FS_ROOT", &c.Archive.FSRoot)
	str("TRACEBASE_BLOB_S3_BUCKET", &c.Archive.S3.Bucket)
	str("TRACEBASE_BLOB_S3_REGION", &c.Archive.S3.Region)
	str("TRACEBASE_BLOB_S3_ENDPOINT", &c.Archive.S3.Endpoint)
	str("TRACEBASE_BLOB_S3_ACCESS_KEY_ID", &c.Archive.S3.AccessKeyID)
	str("TRACEBASE_BLOB_S3_SECRET_ACCESS_KEY", &c.Archive.S3.SecretAccessKey)
	str("TRACEBASE_DEFAULT_SEQUENCE", &c.Pipeline.DefaultSequence)
	str("TRACEBASE_PIPELINE_YAML", &c.Pipeline.GraphFile)
	if err := boolean("TRACEBASE_BLOB_S3_PATH_STYLE", &c.Archive.S3.PathStyle); err != nil {
		return err
	}
	return boolean("TRACEBASE_SUPPRESS_DEPENDENT_ERRORS", &c.Pipeline.SuppressDependentErrors)
}

// Validate checks driver names and the settings each driver needs.
func (c Config) Validate() error {
	switch c.LogMode {
	case "", "development", "production":
	default:
		return fmt.Errorf("%w: log mode %q", ErrInvalid, c.LogMode)
	}
	switch core.StorageDriver(c.Storage.Driver) {
	case "", core.StorageMemory, core.StorageSQLite:
	case core.StoragePostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("%w: postgres storage needs a DSN", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: storage driver %q", ErrInvalid, c.Storage.Driver)
	}
	switch blob.Driver(c.Archive.Driver) {
	case "", blob.DriverFilesystem, blob.DriverMemory:
	case blob.DriverS3:
		if c.Archive.S3.Bucket == "" {
			return fmt.Errorf("%w: s3 archive needs a bucket", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: blob driver %q", ErrInvalid, c.Archive.Driver)
	}
	if c.Pipeline.ReadConcurrency < 0 {
		return fmt.Errorf("%w: negative read concurrency", ErrInvalid)
	}
	return nil
}

// StorageConfig maps the storage settings for core.OpenPersistentStore.
func (c Config) StorageConfig() core.StorageConfig {
	return core.StorageConfig{
		Driver:      core.StorageDriver(c.Storage.Driver),
		SQLitePath:  c.Storage.SQLitePath,
		PostgresDSN: c.Storage.PostgresDSN,
	}
}

// ArchiveEnabled reports whether an archive driver is configured.
func (c Config) ArchiveEnabled() bool { return c.Archive.Driver != "" }

// BlobConfig maps the archive settings for blob.Open.
func (c Config) BlobConfig() blob.Config {
	return blob.Config{
		Driver: blob.Driver(c.Archive.Driver),
		FSRoot: c.Archive.FSRoot,
		S3: blob.S3Config{
			Bucket:          c.Archive.S3.Bucket,
			Region:          c.Archive.S3.Region,
			Endpoint:        c.Archive.S3.Endpoint,
			PathStyle:       c.Archive.S3.PathStyle,
			AccessKeyID:     c.Archive.S3.AccessKeyID,
			SecretAccessKey: c.Archive.S3.SecretAccessKey,
		},
	}
}

// LoaderOptions maps the pipeline settings for loader.New.
func (c Config) LoaderOptions() loader.Options {
	return loader.Options{
		SuppressDependentErrors: c.Pipeline.SuppressDependentErrors,
		DefaultSequence:         c.Pipeline.DefaultSequence,
		Variant:                 c.Pipeline.Variant,
		ReadConcurrency:         c.Pipeline.ReadConcurrency,
	}
}

// Graph parses the configured dependency graph file. It returns nil when
// none is configured, leaving the embedded graph in effect.
func (c Config) Graph() (*loader.Graph, error) {
	if c.Pipeline.GraphFile == "" {
		return nil, nil
	}
	data, err := os.ReadFile(c.Pipeline.GraphFile)
	if err != nil {
		return nil, fmt.Errorf("read pipeline graph: %w", err)
	}
	return loader.ParseGraph(data)
}
