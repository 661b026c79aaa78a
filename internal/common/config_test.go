package common

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "regreport.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
Registry:
  url: registry.example.org
  dockerConfig: /etc/docker/config.json
  insecure: true
Report:
  concurrency: 4
  filterFile: /etc/regreport/filters.ini
  keepImages: true
  minDebianVersion: "11"
  excludeNamespaces:
    - restricted/
  excludeTagPatterns:
    - ^wip-
`)

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "registry.example.org", config.Registry.URL)
	assert.Equal(t, "/etc/docker/config.json", config.Registry.DockerConfig)
	assert.True(t, config.Registry.Insecure)
	assert.Equal(t, 4, config.Report.Concurrency)
	assert.Equal(t, "/etc/regreport/filters.ini", config.Report.FilterFile)
	assert.True(t, config.Report.KeepImages)
	assert.Equal(t, "11", config.Report.MinDebianVersion)
	assert.Equal(t, []string{"restricted/"}, config.Report.ExcludeNamespaces)
	assert.Equal(t, []string{"^wip-"}, config.Report.ExcludeTagPatterns)
}

func TestLoadConfigDefaults(t *testing.T) {
	config, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 1, config.Report.Concurrency)
	assert.Equal(t, "10", config.Report.MinDebianVersion)
	assert.False(t, config.Report.KeepImages)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}

func TestLoadConfigMalformed(t *testing.T) {
	path := writeConfig(t, "Registry: [not a mapping")
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("REGREPORT_REGISTRY", "override.example.org")
	t.Setenv("REGREPORT_DOCKER_CONFIG", "/override/config.json")

	path := writeConfig(t, `
Registry:
  url: registry.example.org
`)
	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "override.example.org", config.Registry.URL)
	assert.Equal(t, "/override/config.json", config.Registry.DockerConfig)
}

func TestLoadConfigClampsConcurrency(t *testing.T) {
	path := writeConfig(t, `
Report:
  concurrency: -3
`)
	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 1, config.Report.Concurrency)
}
