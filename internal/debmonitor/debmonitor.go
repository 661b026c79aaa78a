// Package debmonitor reports the packages installed in a Debian-based
// image to a debmonitor server. The report itself is produced by the
// debmonitor client running inside the image; this package drives the
// docker invocations around it.
package debmonitor

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"

	"github.com/bnema/regreport/internal/reporter"
	"github.com/bnema/regreport/pkg/logger"
)

// Report generates and submits the debmonitor report for one image.
type Report struct {
	image      string
	reportDir  string
	filename   string
	proxy      string
	minVersion *semver.Version
}

// New builds a report job for a fully-qualified image reference. The
// report file lands in reportDir; minVersion is the lowest Debian release
// still considered supported.
func New(imageRef, reportDir string, minVersion *semver.Version) *Report {
	basename := strings.ReplaceAll(imageRef, "/", "-") + ".debmonitor.json"
	return &Report{
		image:      imageRef,
		reportDir:  reportDir,
		filename:   filepath.Join(reportDir, basename),
		proxy:      os.Getenv("http_proxy"),
		minVersion: minVersion,
	}
}

// Filename returns the path the generated report is written to.
func (r *Report) Filename() string {
	return r.filename
}

// IsSupported reports whether the image is a Debian image recent enough to
// generate a report for. The check pulls the image and reads
// /etc/debian_version out of a throwaway container, so a positive answer
// also means the image is present locally for the generate stage.
func (r *Report) IsSupported(ctx context.Context) bool {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		logger.Error("Failed to create docker client", "error", err)
		return false
	}
	defer cli.Close()

	pull, err := cli.ImagePull(ctx, r.image, image.PullOptions{})
	if err != nil {
		logger.Error("Failed to pull image", "image", r.image, "error", err)
		return false
	}
	io.Copy(io.Discard, pull)
	pull.Close()

	// The container is never started; the bogus command keeps the daemon
	// from complaining about images without an entrypoint.
	created, err := cli.ContainerCreate(ctx, &container.Config{Image: r.image, Cmd: []string{"/false"}}, nil, nil, nil, "")
	if err != nil {
		logger.Error("Failed to create container", "image", r.image, "error", err)
		return false
	}
	defer cli.ContainerRemove(ctx, created.ID, container.RemoveOptions{Force: true})

	stream, _, err := cli.CopyFromContainer(ctx, created.ID, "/etc/debian_version")
	if err != nil {
		if !errdefs.IsNotFound(err) {
			logger.Error("Failed to read debian_version", "image", r.image, "error", err)
		}
		return false
	}
	defer stream.Close()

	version, err := debianVersion(stream)
	if err != nil {
		logger.Error("Failed to extract debian_version", "image", r.image, "error", err)
		return false
	}
	logger.Debug("Image Debian version", "image", r.image, "version", version)
	return !version.LessThan(r.minVersion)
}

// debianVersion parses the tar stream returned by CopyFromContainer and
// extracts the release number from the debian_version file.
func debianVersion(stream io.Reader) (*semver.Version, error) {
	tr := tar.NewReader(stream)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil, fmt.Errorf("debian_version not found in archive")
		}
		if err != nil {
			return nil, err
		}
		if path.Base(hdr.Name) != "debian_version" || hdr.Typeflag != tar.TypeReg {
			continue
		}
		raw, err := io.ReadAll(tr)
		if err != nil {
			return nil, err
		}
		version, err := semver.NewVersion(strings.TrimSpace(string(raw)))
		if err != nil {
			return nil, fmt.Errorf("unparsable debian_version %q: %w", strings.TrimSpace(string(raw)), err)
		}
		return version, nil
	}
}

// Generate runs the debmonitor client inside the image and captures its
// report under the report directory.
func (r *Report) Generate(ctx context.Context) error {
	return r.run(ctx, "report generation", "docker", r.generateArgs()...)
}

// Submit uploads the generated report.
func (r *Report) Submit(ctx context.Context) error {
	return r.run(ctx, "report submission", "debmonitor-client-unpriv", "-f", r.filename)
}

// Prune removes the local copy of the image.
func (r *Report) Prune(ctx context.Context) error {
	return r.run(ctx, "image pruning", "docker", "rmi", "-f", r.image)
}

func (r *Report) generateArgs() []string {
	containerFile := path.Join("/mnt", filepath.Base(r.filename))
	proxyInject := "echo 'No proxy configured'"
	if r.proxy != "" {
		logger.Debug("Using proxy", "proxy", r.proxy)
		proxyInject = fmt.Sprintf(`echo 'Acquire::http::Proxy "%s";' > /etc/apt/apt.conf.d/80_proxy`, r.proxy)
	}
	script := strings.Join([]string{
		proxyInject,
		"apt-get update",
		"apt-get install --yes --no-install-recommends debmonitor-client",
		fmt.Sprintf("/usr/bin/debmonitor-client -n -i '%s' > '%s'", r.image, containerFile),
	}, " && ")

	return []string{
		"run",
		"--user", "root",
		"--rm",
		"-v", r.reportDir + ":/mnt:rw",
		"--entrypoint", "/bin/bash",
		r.image,
		"-c", script,
	}
}

// run wraps one subprocess stage, turning a non-zero exit into a typed
// report error.
func (r *Report) run(ctx context.Context, stage, name string, args ...string) error {
	logger.Info("Running stage", "stage", stage, "image", r.image)
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		logger.Error("Stage failed", "stage", stage, "image", r.image, "output", string(out))
		return &reporter.ReportError{Ref: r.image, Stage: stage, Err: err}
	}
	logger.Debug("Stage output", "stage", stage, "output", string(out))
	return nil
}
