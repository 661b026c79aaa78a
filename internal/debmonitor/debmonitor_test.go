package debmonitor

import (
	"archive/tar"
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/regreport/internal/reporter"
)

func tarWithFile(t *testing.T, name, content string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name:     name,
		Typeflag: tar.TypeReg,
		Size:     int64(len(content)),
		Mode:     0o644,
	}))
	_, err := tw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	return &buf
}

func TestDebianVersion(t *testing.T) {
	version, err := debianVersion(tarWithFile(t, "debian_version", "10.13\n"))
	require.NoError(t, err)
	assert.Equal(t, uint64(10), version.Major())
	assert.Equal(t, uint64(13), version.Minor())
}

func TestDebianVersionMissingFile(t *testing.T) {
	_, err := debianVersion(tarWithFile(t, "os-release", "something"))
	assert.ErrorContains(t, err, "debian_version not found")
}

func TestDebianVersionUnparsable(t *testing.T) {
	_, err := debianVersion(tarWithFile(t, "debian_version", "bookworm/sid\n"))
	assert.ErrorContains(t, err, "unparsable debian_version")
}

func TestSupportGate(t *testing.T) {
	minVersion := semver.MustParse("10")

	tests := []struct {
		version   string
		supported bool
	}{
		{version: "10.0", supported: true},
		{version: "12.4", supported: true},
		{version: "9.13", supported: false},
	}
	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			version, err := debianVersion(tarWithFile(t, "debian_version", tt.version))
			require.NoError(t, err)
			assert.Equal(t, tt.supported, !version.LessThan(minVersion))
		})
	}
}

func TestNewFilename(t *testing.T) {
	report := New("registry.example.org/foo/bar:1.0", "/tmp/scratch", semver.MustParse("10"))
	assert.Equal(t, "/tmp/scratch/registry.example.org-foo-bar:1.0.debmonitor.json", report.Filename())
}

func TestGenerateArgs(t *testing.T) {
	report := New("registry.example.org/foo:1.0", "/tmp/scratch", semver.MustParse("10"))
	args := report.generateArgs()

	assert.Equal(t, "run", args[0])
	assert.Contains(t, args, "/tmp/scratch:/mnt:rw")
	assert.Contains(t, args, "registry.example.org/foo:1.0")

	script := args[len(args)-1]
	assert.Contains(t, script, "apt-get update")
	assert.Contains(t, script, "debmonitor-client -n -i 'registry.example.org/foo:1.0'")
	assert.Contains(t, script, "/mnt/registry.example.org-foo:1.0.debmonitor.json")
	assert.Contains(t, script, "No proxy configured")
}

func TestGenerateArgsWithProxy(t *testing.T) {
	t.Setenv("http_proxy", "http://proxy.example.org:8080")
	report := New("registry.example.org/foo:1.0", "/tmp/scratch", semver.MustParse("10"))

	script := report.generateArgs()[len(report.generateArgs())-1]
	assert.Contains(t, script, `Acquire::http::Proxy "http://proxy.example.org:8080"`)
	assert.NotContains(t, script, "No proxy configured")
}

func TestRunStage(t *testing.T) {
	report := New("registry.example.org/foo:1.0", t.TempDir(), semver.MustParse("10"))

	require.NoError(t, report.run(context.Background(), "noop", "true"))

	err := report.run(context.Background(), "failing stage", "sh", "-c", "echo broken >&2; exit 4")
	var repErr *reporter.ReportError
	require.ErrorAs(t, err, &repErr)
	assert.Equal(t, "failing stage", repErr.Stage)
	assert.Equal(t, "registry.example.org/foo:1.0", repErr.Ref)
	assert.True(t, strings.Contains(repErr.Error(), "failing stage"))
}
