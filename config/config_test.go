package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/philippfrenzel/msfabric-mapping-etk-sub000/config"
	"github.com/philippfrenzel/msfabric-mapping-etk-sub000/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), config.FileName)
	writeFile(t, path, `
storage:
  backend: badger
  badger:
    in_memory: true
    mem_table_size: 1048576
mapping:
  case_sensitive: true
  max_depth: 3
log_level: debug
`)

	got, err := config.Load(path)
	require.NoError(t, err)

	want := config.Default()
	want.Storage.Backend = config.BackendBadger
	want.Storage.Badger.InMemory = true
	want.Storage.Badger.MemTableSize = 1 << 20
	want.Mapping.CaseSensitive = true
	want.Mapping.MaxDepth = 3
	want.LogLevel = "debug"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), config.FileName)
	writeFile(t, path, "storage:\n  backend: file\n  base_path: /srv/refdata\n")

	t.Setenv("REFDATA_STORAGE_BACKEND", "dynamodb")
	t.Setenv("REFDATA_STORAGE_DYNAMODB_ENDPOINT", "http://localhost:8000")
	t.Setenv("REFDATA_MAPPING_THROW_ON_ERROR", "false")
	t.Setenv("REFDATA_LOG_FORMAT", "json")

	got, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.BackendDynamoDB, got.Storage.Backend)
	assert.Equal(t, "/srv/refdata", got.Storage.BasePath)
	assert.Equal(t, "http://localhost:8000", got.Storage.DynamoDB.Endpoint)
	assert.Equal(t, "ReferenceTables", got.Storage.DynamoDB.Table)
	assert.False(t, got.Mapping.ThrowOnError)
	assert.Equal(t, "json", got.LogFormat)
}

func TestLoad_Discovery(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, config.FileName), "storage:\n  backend: memory\n")
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	t.Chdir(nested)

	assert.Equal(t, filepath.Join(root, config.FileName), config.Discover())

	got, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, config.BackendMemory, got.Storage.Backend)
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())
	if config.Discover() != "" {
		t.Skip("a refdata.yaml exists above the temp dir")
	}

	got, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, config.Default(), got)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := config.Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	tests := map[string]string{
		"unknown backend":        "storage:\n  backend: postgres\n",
		"file without path":      "storage:\n  backend: file\n  base_path: \"\"\n",
		"badger without path":    "storage:\n  backend: badger\n  badger:\n    path: \"\"\n",
		"negative mem table":     "storage:\n  backend: badger\n  badger:\n    mem_table_size: -1\n",
		"dynamodb without table": "storage:\n  backend: dynamodb\n  dynamodb:\n    table: \"\"\n",
		"bad endpoint":           "storage:\n  backend: dynamodb\n  dynamodb:\n    endpoint: \"not a url\"\n",
		"zero max depth":         "mapping:\n  max_depth: 0\n",
		"bad log level":          "log_level: loud\n",
		"bad log format":         "log_format: xml\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".yaml")
			writeFile(t, path, content)
			_, err := config.Load(path)
			assert.Error(t, err)
		})
	}
}

func TestValidate_IgnoresInactiveBackends(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Backend = config.BackendMemory
	cfg.Storage.BasePath = ""
	cfg.Storage.Badger.Path = ""
	cfg.Storage.DynamoDB.Table = ""
	assert.NoError(t, cfg.Validate())
}

func TestWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), config.FileName)
	cfg := config.Default()
	cfg.Storage.Backend = config.BackendMemory

	require.NoError(t, cfg.Write(path, false))

	got, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)

	err = cfg.Write(path, false)
	assert.ErrorIs(t, err, errs.ErrAlreadyExists)

	cfg.LogLevel = "warn"
	require.NoError(t, cfg.Write(path, true))
	got, err = config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", got.LogLevel)
}
