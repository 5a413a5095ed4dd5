package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_WritesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "<DataConvert>"))

	assert.Equal(t, 8089, cfg.Server.Port)
	assert.Equal(t, "json", cfg.Conversion.DefaultOutputFormat)
	assert.Equal(t, 50, cfg.Conversion.MaxFileSizeMB)
	assert.Equal(t, filepath.Join(dir, "data", "artifacts"), cfg.Storage.ArtifactsDirectory)
	assert.Equal(t, filepath.Join(dir, "data", "history.duckdb"), cfg.Storage.HistoryDatabase)
	assert.False(t, cfg.ObjectStorage.Enabled)
}

func TestLoadConfig_ReadsFileAndKeepsMissingDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	xml := `<?xml version="1.0" encoding="UTF-8"?>
<DataConvert>
  <Server><Port>9000</Port></Server>
  <Conversion><DefaultOutputFormat>xml</DefaultOutputFormat><AllowedFileTypes>csv, .XLSX</AllowedFileTypes></Conversion>
</DataConvert>`
	require.NoError(t, os.WriteFile(path, []byte(xml), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "xml", cfg.Conversion.DefaultOutputFormat)
	assert.Equal(t, []string{".csv", ".xlsx"}, cfg.AllowedExtensions())
	assert.Equal(t, 50, cfg.Conversion.MaxFileSizeMB)
	assert.Equal(t, filepath.Join(dir, "data", "settings.yaml"), cfg.Storage.SettingsFile)
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "elsewhere")
	t.Setenv("PORT", "7000")
	t.Setenv("DATA_DIR", dataDir)
	t.Setenv("MINIO_ENDPOINT", "minio.local:9000")
	t.Setenv("MINIO_ACCESS_KEY", "ak")
	t.Setenv("MINIO_SECRET_KEY", "sk")

	cfg, err := LoadConfig(filepath.Join(dir, FileName))
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, dataDir, cfg.Storage.DataDirectory)
	assert.Equal(t, filepath.Join(dataDir, "artifacts"), cfg.Storage.ArtifactsDirectory)
	assert.Equal(t, filepath.Join(dataDir, "organizations.db"), cfg.Storage.OrganizationsDB)
	assert.True(t, cfg.ObjectStorage.Enabled)
	assert.Equal(t, "minio.local:9000", cfg.ObjectStorage.Endpoint)
	assert.Equal(t, "ak", cfg.ObjectStorage.AccessKey)
	assert.Equal(t, "sk", cfg.ObjectStorage.SecretKey)
}

func TestLoadConfig_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("<DataConvert><Server>"), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadConfig(filepath.Join(dir, FileName))
	require.NoError(t, err)
	require.NoError(t, cfg.EnsureDirectories())

	_, err = os.Stat(cfg.Storage.ArtifactsDirectory)
	assert.NoError(t, err)
}

func TestGetServerAddr(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "0.0.0.0:8089", cfg.GetServerAddr())
}
