package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tracebase/internal/blob"
	"tracebase/internal/core"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, core.StorageConfig{Driver: core.StorageSQLite, SQLitePath: "tracebase.db"}, cfg.StorageConfig())
	assert.False(t, cfg.ArchiveEnabled())
	assert.False(t, cfg.LoaderOptions().SuppressDependentErrors)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := writeFile(t, "tracebase.yaml", `
logMode: production
storage:
  driver: memory
archive:
  driver: s3
  s3:
    bucket: submissions
    region: us-east-1
pipeline:
  defaultSequence: "Xianfeng Zeng, polar-HILIC-25-min, QE2, 2021-04-23"
  readConcurrency: 2
`)
	t.Setenv("TRACEBASE_BLOB_S3_ENDPOINT", "http://localhost:9000")
	t.Setenv("TRACEBASE_BLOB_S3_PATH_STYLE", "true")
	t.Setenv("TRACEBASE_SUPPRESS_DEPENDENT_ERRORS", "1")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "production", cfg.LogMode)
	assert.Equal(t, core.StorageMemory, cfg.StorageConfig().Driver)

	bc := cfg.BlobConfig()
	assert.Equal(t, blob.DriverS3, bc.Driver)
	assert.Equal(t, "submissions", bc.S3.Bucket)
	assert.Equal(t, "http://localhost:9000", bc.S3.Endpoint)
	assert.True(t, bc.S3.PathStyle)

	opts := cfg.LoaderOptions()
	assert.True(t, opts.SuppressDependentErrors)
	assert.Equal(t, 2, opts.ReadConcurrency)
	assert.Equal(t, "Xianfeng Zeng, polar-HILIC-25-min, QE2, 2021-04-23", opts.DefaultSequence)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	cases := map[string]map[string]string{
		"storage driver":   {"TRACEBASE_STORAGE_DRIVER": "cassandra"},
		"postgres dsn":     {"TRACEBASE_STORAGE_DRIVER": "postgres"},
		"blob driver":      {"TRACEBASE_BLOB_DRIVER": "ftp"},
		"s3 bucket":        {"TRACEBASE_BLOB_DRIVER": "s3"},
		"log mode":         {"TRACEBASE_LOG_MODE": "verbose"},
		"suppress boolean": {"TRACEBASE_SUPPRESS_DEPENDENT_ERRORS": "sometimes"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	_, err := Load(writeFile(t, "bad.yaml", "storage: [unterminated"))
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestGraphFromFile(t *testing.T) {
	cfg := Default()
	g, err := cfg.Graph()
	require.NoError(t, err)
	assert.Nil(t, g)

	cfg.Pipeline.GraphFile = writeFile(t, "pipeline.yaml", `
pipeline: study_doc
version: 1
stages:
  - name: study
    sheet: Study
  - name: compounds
    sheet: Compounds
    depends_on: [study]
`)
	g, err = cfg.Graph()
	require.NoError(t, err)
	order, err := g.Order("")
	require.NoError(t, err)
	require.Len(t, order, 2)
	assert.Equal(t, "compounds", order[1].Name)
}
