package common

import (
	"fmt"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"gopkg.in/yaml.v3"

	"github.com/bnema/regreport/pkg/logger"
)

// Initialize package-level logging configuration
func init() {
	logger.GetLogger().ConfigureFromEnv()
}

type Config struct {
	General  GeneralConfig  `yaml:"General"`
	Registry RegistryConfig `yaml:"Registry"`
	Report   ReportConfig   `yaml:"Report"`
}

type GeneralConfig struct {
	LogLevel string `yaml:"logLevel"`
}

type RegistryConfig struct {
	URL          string `yaml:"url"`          // registry host, no scheme
	DockerConfig string `yaml:"dockerConfig"` // Docker CLI config holding the credential
	Insecure     bool   `yaml:"insecure"`     // plain-HTTP registry
}

type ReportConfig struct {
	Concurrency        int      `yaml:"concurrency"`
	FilterFile         string   `yaml:"filterFile"`
	ReportDir          string   `yaml:"reportDir"`
	KeepImages         bool     `yaml:"keepImages"`
	MinDebianVersion   string   `yaml:"minDebianVersion"`
	ExcludeNamespaces  []string `yaml:"excludeNamespaces"`
	ExcludeTagPatterns []string `yaml:"excludeTagPatterns"`
	IncludeNaked       bool     `yaml:"includeNaked"`
}

// DefaultConfig returns the built-in defaults: sequential reporting on
// images supported down to Debian 10.
func DefaultConfig() *Config {
	return &Config{
		Report: ReportConfig{
			Concurrency:      1,
			MinDebianVersion: "10",
		},
	}
}

// LoadConfig reads the YAML config file at path on top of the defaults.
// An empty path returns the defaults unchanged; environment overrides are
// applied last.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", path, err)
		}
	}
	config.applyEnv()

	if config.General.LogLevel != "" {
		logger.GetLogger().SetLogLevel(config.General.LogLevel)
	}
	if config.Report.Concurrency < 1 {
		config.Report.Concurrency = 1
	}
	return config, nil
}

func (c *Config) applyEnv() {
	if url := os.Getenv("REGREPORT_REGISTRY"); url != "" {
		c.Registry.URL = url
	}
	if dockerConfig := os.Getenv("REGREPORT_DOCKER_CONFIG"); dockerConfig != "" {
		c.Registry.DockerConfig = dockerConfig
	}
	if level := os.Getenv("REGREPORT_LOG_LEVEL"); level != "" {
		c.General.LogLevel = level
	}
}
