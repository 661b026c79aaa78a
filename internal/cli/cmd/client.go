package cmd

import (
	"fmt"
	"strings"

	"github.com/bnema/regreport/internal/common"
	"github.com/bnema/regreport/pkg/registry"
)

// newClient builds a registry client for a host from the loaded config.
func newClient(config *common.Config, host string) *registry.Client {
	var opts []registry.Option
	if config.Registry.DockerConfig != "" {
		opts = append(opts, registry.WithDockerConfig(config.Registry.DockerConfig))
	}
	if config.Registry.Insecure {
		opts = append(opts, registry.WithInsecure())
	}
	return registry.NewClient(host, opts...)
}

// splitImageArg splits a "registry/name[:glob]" argument into its parts.
// A missing glob selects every tag.
func splitImageArg(arg string) (host, name, glob string, err error) {
	host, rest, found := strings.Cut(arg, "/")
	if !found || rest == "" {
		return "", "", "", fmt.Errorf("invalid image %q, expected REGISTRY/NAME[:GLOB]", arg)
	}
	name, glob, found = strings.Cut(rest, ":")
	if !found {
		glob = "*"
	}
	return host, name, glob, nil
}
