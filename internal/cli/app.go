package cli

import (
	"github.com/bnema/regreport/internal/common"
)

// App carries the loaded configuration and run state across commands.
type App struct {
	Config  *common.Config
	Version string

	// ExitCode is set by commands whose run completed but with per-image
	// failures; command errors are mapped separately.
	ExitCode int
}

// NewApp builds the CLI application with default configuration. The config
// file is loaded by the root command once flags are parsed.
func NewApp(version string) *App {
	return &App{
		Config:  common.DefaultConfig(),
		Version: version,
	}
}
